package geometry

import "testing"

func TestToRelative_SubtractsSurfaceOrigin(t *testing.T) {
	s := FixedSurface{Left: 100, Top: 50, Width: 400, Height: 300}
	got := ToRelative(AbsolutePoint{X: 120, Y: 80}, s)
	want := RelativePoint{X: 20, Y: 30}
	if got != want {
		t.Fatalf("ToRelative() = %+v, want %+v", got, want)
	}
}

func TestToAbsolute_InvertsToRelative(t *testing.T) {
	s := FixedSurface{Left: 13.5, Top: 7, Width: 200, Height: 200}
	abs := AbsolutePoint{X: 42.25, Y: 99}
	if got := ToAbsolute(ToRelative(abs, s), s); got != abs {
		t.Fatalf("round trip = %+v, want %+v", got, abs)
	}
}

func TestToRelative_OutsideSurfaceGoesNegative(t *testing.T) {
	s := FixedSurface{Left: 100, Top: 100, Width: 10, Height: 10}
	got := ToRelative(AbsolutePoint{X: 90, Y: 95}, s)
	if got.X != -10 || got.Y != -5 {
		t.Fatalf("ToRelative() = %+v, want (-10,-5)", got)
	}
}
