package drag

import (
	"testing"

	"whiteboard/backend/internal/drawing"
	"whiteboard/backend/internal/geometry"
)

func pt(x, y float64) geometry.RelativePoint { return geometry.RelativePoint{X: x, Y: y} }

func newMachine() (*Machine, *drawing.Canvas) {
	c := drawing.NewCanvas(geometry.Bounds{Width: 500, Height: 500})
	return NewMachine(c), c
}

func assertCommands(t *testing.T, c *drawing.Canvas, want ...string) {
	t.Helper()
	got := c.Commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("commands[%d] = %s, want %s (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestMachine_StartAloneDrawsNothing(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(10, 10))
	if !m.Dragging() {
		t.Fatalf("Dragging() = false after Start")
	}
	assertCommands(t, c)
}

func TestMachine_SegmentsFollowMoves(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(20, 30))
	m.Move(pt(50, 60))
	m.Move(pt(40, 20))
	m.Move(pt(10, 15))
	m.End()
	assertCommands(t, c, "line(20,30,50,60)", "line(50,60,40,20)", "line(40,20,10,15)")
	if m.Dragging() {
		t.Fatalf("Dragging() = true after End")
	}
}

func TestMachine_ClickDrawsDot(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(50, 60))
	m.End()
	assertCommands(t, c, "dot(50,60)")
}

func TestMachine_ZeroLengthMovesCollapse(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(1, 1))
	m.Move(pt(1, 1))
	m.Move(pt(2, 2))
	m.Move(pt(2, 2))
	m.Move(pt(3, 3))
	m.End()
	assertCommands(t, c, "line(1,1,2,2)", "line(2,2,3,3)")
}

func TestMachine_OnlyAnchorMovesStillDrawDot(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(7, 8))
	m.Move(pt(7, 8))
	m.Move(pt(7, 8))
	m.End()
	assertCommands(t, c, "dot(7,8)")
}

func TestMachine_ReturnToStartDrawsNoDot(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(0, 0))
	m.Move(pt(5, 0))
	m.Move(pt(0, 0))
	m.End()
	assertCommands(t, c, "line(0,0,5,0)", "line(5,0,0,0)")
}

func TestMachine_CancelDiscardsSession(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(10, 10))
	m.Move(pt(20, 20))
	m.Cancel()
	if m.Dragging() {
		t.Fatalf("Dragging() = true after Cancel")
	}
	m.Move(pt(30, 30))
	m.End()
	assertCommands(t, c, "line(10,10,20,20)")
}

func TestMachine_CancelBeforeMoveDrawsNoDot(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(10, 10))
	m.Cancel()
	m.End()
	assertCommands(t, c)
}

func TestMachine_MultiTouchActsLikeCancel(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(10, 10))
	m.MultiTouchDetected()
	m.Move(pt(11, 11))
	m.End()
	assertCommands(t, c)
	if m.Dragging() {
		t.Fatalf("Dragging() = true after MultiTouchDetected")
	}
}

func TestMachine_IdleEventsAreNoops(t *testing.T) {
	m, c := newMachine()
	m.Move(pt(1, 2))
	m.End()
	m.Cancel()
	m.MultiTouchDetected()
	m.End()
	assertCommands(t, c)
	if m.Dragging() {
		t.Fatalf("Dragging() = true while idle")
	}
}

func TestMachine_RestartAbandonsPreviousSession(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(1, 1))
	m.Start(pt(9, 9))
	m.End()
	assertCommands(t, c, "dot(9,9)")
}

func TestMachine_SecondSessionStartsFresh(t *testing.T) {
	m, c := newMachine()
	m.Start(pt(1, 1))
	m.Move(pt(2, 2))
	m.End()
	m.Start(pt(5, 5))
	m.End()
	assertCommands(t, c, "line(1,1,2,2)", "dot(5,5)")
}

func TestKind_String(t *testing.T) {
	if KindMultiTouch.String() != "multiTouch" {
		t.Fatalf("KindMultiTouch.String() = %q", KindMultiTouch.String())
	}
	if Kind(42).String() != "Kind(42)" {
		t.Fatalf("Kind(42).String() = %q", Kind(42).String())
	}
}
