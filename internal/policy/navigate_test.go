package policy

import (
	"testing"

	"github.com/1broseidon/wmcore/internal/tiling"
	"github.com/1broseidon/wmcore/internal/wm"
)

func TestNeighbor_FlexibleLastRow(t *testing.T) {
	// [0] [1] [2]
	//   [3] [4]
	rects := []wm.Geometry{
		{X: 0, Y: 0, Width: 100, Height: 100},
		{X: 100, Y: 0, Width: 100, Height: 100},
		{X: 200, Y: 0, Width: 100, Height: 100},
		{X: 50, Y: 100, Width: 100, Height: 100},
		{X: 150, Y: 100, Width: 100, Height: 100},
	}

	tests := []struct {
		name     string
		current  int
		dir      Direction
		expected int
	}{
		{"down from 0", 0, DirDown, 3},
		{"down from 2", 2, DirDown, 4},
		{"up from 3", 3, DirUp, 0},
		{"right from 0", 0, DirRight, 1},
		{"right from 3", 3, DirRight, 4},

		{"right wrap from 2", 2, DirRight, 0},
		{"left wrap from 0", 0, DirLeft, 2},
		{"down wrap from 3", 3, DirDown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Neighbor(tt.current, tt.dir, rects); got != tt.expected {
				t.Errorf("Neighbor(%d, %v) = %d, want %d", tt.current, tt.dir, got, tt.expected)
			}
		})
	}
}

func TestNeighbor_NowhereToGo(t *testing.T) {
	one := []wm.Geometry{{Width: 100, Height: 100}}
	if got := Neighbor(0, DirRight, one); got != 0 {
		t.Errorf("Neighbor on a single rect = %d, want 0", got)
	}
	if got := Neighbor(5, DirUp, one); got != 5 {
		t.Errorf("Neighbor out of range = %d, want 5", got)
	}
}

func TestDirectionForKeysym(t *testing.T) {
	tests := []struct {
		sym  uint32
		dir  Direction
		want bool
	}{
		{keysymLeft, DirLeft, true},
		{keysymH, DirLeft, true},
		{keysymJ, DirDown, true},
		{keysymK, DirUp, true},
		{keysymRight, DirRight, true},
		{0x61, 0, false},
	}
	for _, tt := range tests {
		dir, ok := directionForKeysym(tt.sym)
		if ok != tt.want || (ok && dir != tt.dir) {
			t.Errorf("directionForKeysym(%#x) = %v, %v, want %v, %v", tt.sym, dir, ok, tt.dir, tt.want)
		}
	}
}

func TestLogoArrowMovesFocus(t *testing.T) {
	e, rec := setup(t, Options{Layout: tiling.DefaultLayout(tiling.ModeGrid)})

	a, _ := e.ToplevelCreated(0)
	b, _ := e.ToplevelCreated(0)

	left := wm.KeyEvent{Keysym: keysymLeft, Status: wm.KeyPressed}
	verdict, err := e.Key(left)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if verdict != wm.KeyForward {
		t.Fatalf("expected forward without logo, got %v", verdict)
	}

	if err := e.ModifiersChanged(wm.ModLogo); err != nil {
		t.Fatalf("modifiers: %v", err)
	}
	verdict, err = e.Key(left)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if verdict != wm.KeyDrop {
		t.Fatalf("expected drop, got %v", verdict)
	}

	focus := rec.KeyboardFocus()
	if focus[len(focus)-1] != wm.FocusOn(a) {
		t.Fatalf("expected focus on %v, got %v", a, focus)
	}
	if st, _ := last(t, rec, a).Request.State(); !st.Has(wm.StateActivated) {
		t.Errorf("expected %v activated, got %v", a, st)
	}
	if st, _ := last(t, rec, b).Request.State(); st.Has(wm.StateActivated) {
		t.Errorf("expected %v deactivated, got %v", b, st)
	}

	left.Status = wm.KeyReleased
	if verdict, _ := e.Key(left); verdict != wm.KeyDrop {
		t.Fatalf("expected release dropped, got %v", verdict)
	}
}
