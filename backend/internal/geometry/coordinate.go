package geometry

// AbsolutePoint 是窗口/文档坐标系下的位置（原始输入事件给出的坐标）
type AbsolutePoint struct {
	X float64
	Y float64
}

// RelativePoint 是相对于绘图区域左上角的位置。
// 进入拖拽状态机和指针通道的坐标必须是这种类型。
type RelativePoint struct {
	X float64
	Y float64
}

// Bounds 绘图区域当前在屏幕上的包围盒
type Bounds struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Surface 能报告自身包围盒的绘图区域。
// 未挂载到可见文档时行为未定义，由调用方保证。
type Surface interface {
	Bounds() Bounds
}

func ToRelative(p AbsolutePoint, s Surface) RelativePoint {
	b := s.Bounds()
	return RelativePoint{X: p.X - b.Left, Y: p.Y - b.Top}
}

func ToAbsolute(p RelativePoint, s Surface) AbsolutePoint {
	b := s.Bounds()
	return AbsolutePoint{X: p.X + b.Left, Y: p.Y + b.Top}
}

// FixedSurface 包围盒固定的区域（无界面环境和测试中使用）
type FixedSurface Bounds

func (f FixedSurface) Bounds() Bounds { return Bounds(f) }
