package drag

import "whiteboard/backend/internal/geometry"

// Renderer 接收状态机产生的绘制命令（坐标均为相对绘图区域）
type Renderer interface {
	DrawDot(p geometry.RelativePoint)
	DrawLine(from, to geometry.RelativePoint)
}

// Machine 把 start/move/end/cancel/multiTouch 五种意图转换为确定的绘制命令序列。
// 不加锁，只能由一个 goroutine 驱动。
type Machine struct {
	r Renderer
	// anchor 非 nil 当且仅当正在拖拽
	anchor *geometry.RelativePoint
	// 本次拖拽是否已经画过线段，决定 end 时是否补一个点
	segmentEmitted bool
}

func NewMachine(r Renderer) *Machine {
	return &Machine{r: r}
}

func (m *Machine) Dragging() bool {
	return m.anchor != nil
}

// Start 开始一次拖拽，仅记录锚点，不绘制。
// 拖拽中再次 Start 视为新的按下，上一次会话被丢弃。
func (m *Machine) Start(p geometry.RelativePoint) {
	m.anchor = &p
	m.segmentEmitted = false
}

func (m *Machine) Move(p geometry.RelativePoint) {
	if !m.Dragging() {
		return
	}
	// 零长度移动（合成事件）直接忽略
	if *m.anchor == p {
		return
	}
	m.r.DrawLine(*m.anchor, p)
	m.anchor = &p
	m.segmentEmitted = true
}

func (m *Machine) End() {
	if !m.Dragging() {
		return
	}
	if !m.segmentEmitted {
		m.r.DrawDot(*m.anchor)
	}
	m.reset()
}

func (m *Machine) Cancel() {
	m.reset()
}

// MultiTouchDetected 第二个触点会中止当前的单点拖拽，与 Cancel 等价
func (m *Machine) MultiTouchDetected() {
	m.Cancel()
}

func (m *Machine) reset() {
	m.anchor = nil
	m.segmentEmitted = false
}
