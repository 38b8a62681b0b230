package wm

import "fmt"

// Size is a width/height pair in logical pixels.
type Size struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// IsZero reports whether both dimensions are zero. A zero suggested size
// lets the client pick its own dimensions.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Geometry is a positioned rectangle in the global compositor space.
type Geometry struct {
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Size returns the geometry's dimensions.
func (g Geometry) Size() Size {
	return Size{Width: g.Width, Height: g.Height}
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", g.Width, g.Height, g.X, g.Y)
}

// Point is a position in the global compositor space.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("%+d%+d", p.X, p.Y)
}
