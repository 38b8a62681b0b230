package policy

import "github.com/1broseidon/wmcore/internal/wm"

// Direction is a focus movement on the tiled layout.
type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

// Keysyms the built-in policy navigates with while Logo is held.
const (
	keysymLeft  = 0xff51
	keysymUp    = 0xff52
	keysymRight = 0xff53
	keysymDown  = 0xff54
	keysymH     = 0x68
	keysymJ     = 0x6a
	keysymK     = 0x6b
	keysymL     = 0x6c
)

func directionForKeysym(sym uint32) (Direction, bool) {
	switch sym {
	case keysymLeft, keysymH:
		return DirLeft, true
	case keysymRight, keysymL:
		return DirRight, true
	case keysymUp, keysymK:
		return DirUp, true
	case keysymDown, keysymJ:
		return DirDown, true
	}
	return 0, false
}

// Neighbor returns the index of the rectangle reached by moving from
// rects[current] in dir. The closest center in that direction wins; with
// nothing there the search wraps to the far edge, preferring the same
// row or column. It returns current when there is nowhere to go.
func Neighbor(current int, dir Direction, rects []wm.Geometry) int {
	if current < 0 || current >= len(rects) {
		return current
	}
	cx, cy := center(rects[current])

	best, bestDist := -1, int64(0)
	for i, r := range rects {
		if i == current {
			continue
		}
		x, y := center(r)

		var ahead bool
		switch dir {
		case DirUp:
			ahead = y < cy
		case DirDown:
			ahead = y > cy
		case DirLeft:
			ahead = x < cx
		case DirRight:
			ahead = x > cx
		}
		if !ahead {
			continue
		}

		dist := abs(x-cx) + abs(y-cy)
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 {
		return best
	}

	// Wrap to the opposite edge.
	best, bestScore := -1, int64(0)
	for i, r := range rects {
		if i == current {
			continue
		}
		x, y := center(r)

		var score int64
		switch dir {
		case DirUp:
			score = y*10000 - abs(x-cx)
		case DirDown:
			score = -y*10000 - abs(x-cx)
		case DirLeft:
			score = x*10000 - abs(y-cy)
		case DirRight:
			score = -x*10000 - abs(y-cy)
		}
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return best
	}
	return current
}

func center(g wm.Geometry) (int64, int64) {
	return int64(g.X) + int64(g.Width)/2, int64(g.Y) + int64(g.Height)/2
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
