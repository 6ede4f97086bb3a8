package drag

import (
	"fmt"

	"whiteboard/backend/internal/geometry"
)

type Kind int

const (
	KindStart Kind = iota
	KindMove
	KindEnd
	KindCancel
	KindMultiTouch
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMove:
		return "move"
	case KindEnd:
		return "end"
	case KindCancel:
		return "cancel"
	case KindMultiTouch:
		return "multiTouch"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Target 事件是在绘图区域上收到的，还是在 document/window 级别收到的
type Target int

const (
	OnSurface Target = iota
	OnDocument
)

// Intent 输入源归一化后的逻辑意图。
// 浏览器相关的差异（多点触控检测、默认拖拽行为）都在输入源内部处理，
// 这里只剩五种意图和一个绝对坐标。
type Intent struct {
	Kind   Kind
	Target Target
	// Point 仅对 start/move 有意义，窗口绝对坐标
	Point geometry.AbsolutePoint
}

func Start(x, y float64) Intent {
	return Intent{Kind: KindStart, Target: OnSurface, Point: geometry.AbsolutePoint{X: x, Y: y}}
}

func Move(x, y float64, target Target) Intent {
	return Intent{Kind: KindMove, Target: target, Point: geometry.AbsolutePoint{X: x, Y: y}}
}

func End(target Target) Intent {
	return Intent{Kind: KindEnd, Target: target}
}

func Cancel() Intent {
	return Intent{Kind: KindCancel, Target: OnSurface}
}

func MultiTouch() Intent {
	return Intent{Kind: KindMultiTouch, Target: OnSurface}
}
