// Package tiling computes window placements for the built-in policy.
package tiling

import (
	"fmt"
	"math"
	"strings"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Mode selects how windows are arranged on an output.
type Mode string

const (
	ModeStack       Mode = "stack"
	ModeGrid        Mode = "grid"
	ModeVertical    Mode = "vertical"
	ModeHorizontal  Mode = "horizontal"
	ModeMasterStack Mode = "master-stack"
)

// Modes lists every supported mode.
func Modes() []Mode {
	return []Mode{ModeStack, ModeGrid, ModeVertical, ModeHorizontal, ModeMasterStack}
}

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported layout mode: %q", s)
}

// Layout configures an arrangement.
type Layout struct {
	Mode Mode
	Gap  int

	// FlexibleLastRow lets a partly filled last grid row stretch to the
	// full width.
	FlexibleLastRow bool

	// Master-stack settings.
	MasterPercent int
	MaxStackRows  int
	MaxStackCols  int
}

// DefaultLayout returns mode with the stock gap and master-stack sizes.
func DefaultLayout(mode Mode) Layout {
	return Layout{
		Mode:            mode,
		Gap:             8,
		FlexibleLastRow: true,
		MasterPercent:   55,
		MaxStackRows:    3,
		MaxStackCols:    2,
	}
}

type rect struct {
	X, Y, Width, Height int
}

func fromGeometry(g wm.Geometry) rect {
	return rect{X: int(g.X), Y: int(g.Y), Width: int(g.Width), Height: int(g.Height)}
}

func (r rect) geometry() wm.Geometry {
	return wm.Geometry{X: int32(r.X), Y: int32(r.Y), Width: uint32(r.Width), Height: uint32(r.Height)}
}

// CalculateGrid determines the grid dimensions for the given number of windows
func CalculateGrid(numWindows int) (rows, cols int) {
	if numWindows == 0 {
		return 0, 0
	}

	cols = int(math.Ceil(math.Sqrt(float64(numWindows))))
	rows = int(math.Ceil(float64(numWindows) / float64(cols)))

	return rows, cols
}

// Arrange returns one geometry per window inside area. Windows beyond a
// layout's capacity get no slot, so the result may be shorter than
// numWindows.
func Arrange(numWindows int, area wm.Geometry, layout Layout) ([]wm.Geometry, error) {
	if numWindows <= 0 {
		return nil, nil
	}
	if layout.Gap < 0 {
		return nil, fmt.Errorf("negative gap: %d", layout.Gap)
	}

	monitor := fromGeometry(area)
	var (
		rects []rect
		err   error
	)
	switch layout.Mode {
	case ModeStack:
		rects, err = stack(numWindows, monitor, layout.Gap)
	case ModeGrid:
		rows, cols := CalculateGrid(numWindows)
		rects, err = grid(numWindows, rows, cols, monitor, layout.Gap, layout.FlexibleLastRow)
	case ModeVertical:
		rects, err = grid(numWindows, numWindows, 1, monitor, layout.Gap, false)
	case ModeHorizontal:
		rects, err = grid(numWindows, 1, numWindows, monitor, layout.Gap, false)
	case ModeMasterStack:
		rects, err = masterStack(numWindows, monitor, layout)
	default:
		return nil, fmt.Errorf("unsupported layout mode: %q", layout.Mode)
	}
	if err != nil {
		return nil, err
	}

	out := make([]wm.Geometry, len(rects))
	for i, r := range rects {
		out[i] = r.geometry()
	}
	return out, nil
}

func stack(numWindows int, monitor rect, gap int) ([]rect, error) {
	full := rect{
		X:      monitor.X + gap,
		Y:      monitor.Y + gap,
		Width:  monitor.Width - 2*gap,
		Height: monitor.Height - 2*gap,
	}
	if full.Width <= 0 || full.Height <= 0 {
		return nil, fmt.Errorf("insufficient space for stack layout: monitor=%dx%d gap=%d", monitor.Width, monitor.Height, gap)
	}
	out := make([]rect, numWindows)
	for i := range out {
		out[i] = full
	}
	return out, nil
}

func grid(numWindows, rows, cols int, monitor rect, gap int, flexibleLastRow bool) ([]rect, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions: rows=%d cols=%d", rows, cols)
	}

	totalHorizontalGaps := (cols + 1) * gap
	totalVerticalGaps := (rows + 1) * gap

	slotWidth := (monitor.Width - totalHorizontalGaps) / cols
	slotHeight := (monitor.Height - totalVerticalGaps) / rows

	if slotWidth <= 0 || slotHeight <= 0 {
		return nil, fmt.Errorf(
			"insufficient space for layout: monitor=%dx%d rows=%d cols=%d gap=%d (slot=%dx%d)",
			monitor.Width, monitor.Height, rows, cols, gap, slotWidth, slotHeight,
		)
	}

	lastRowIndex := rows - 1
	windowsInLastRow := numWindows - (lastRowIndex * cols)
	if windowsInLastRow <= 0 {
		windowsInLastRow = cols
	}

	var lastRowWidth int
	useFlexible := flexibleLastRow && windowsInLastRow < cols
	if useFlexible {
		lastRowWidth = (monitor.Width - (windowsInLastRow+1)*gap) / windowsInLastRow
	}

	positions := make([]rect, numWindows)
	for i := 0; i < numWindows; i++ {
		row := i / cols
		col := i % cols

		width := slotWidth
		x := monitor.X + gap + col*(slotWidth+gap)
		if useFlexible && row == lastRowIndex {
			lastRowCol := i - (lastRowIndex * cols)
			width = lastRowWidth
			x = monitor.X + gap + lastRowCol*(lastRowWidth+gap)
		}

		positions[i] = rect{
			X:      x,
			Y:      monitor.Y + gap + row*(slotHeight+gap),
			Width:  width,
			Height: slotHeight,
		}
	}
	return positions, nil
}

func masterStack(numWindows int, monitor rect, layout Layout) ([]rect, error) {
	gap := layout.Gap
	masterWidth := (monitor.Width * layout.MasterPercent / 100) - gap
	stackHeight := monitor.Height - 2*gap

	if numWindows == 1 {
		if masterWidth <= 0 || stackHeight <= 0 {
			return nil, fmt.Errorf("insufficient space for master-stack layout: monitor=%dx%d gap=%d", monitor.Width, monitor.Height, gap)
		}
		return []rect{{
			X:      monitor.X + gap,
			Y:      monitor.Y + gap,
			Width:  masterWidth,
			Height: stackHeight,
		}}, nil
	}

	maxRows := max(layout.MaxStackRows, 1)
	maxCols := max(layout.MaxStackCols, 1)

	rightStartX := monitor.X + masterWidth + 2*gap
	rightRegionWidth := monitor.Width - masterWidth - 3*gap
	stackCount := numWindows - 1

	stackCols := int(math.Ceil(float64(stackCount) / float64(maxRows)))
	stackCols = min(max(stackCols, 1), maxCols)
	stackRows := min(int(math.Ceil(float64(stackCount)/float64(stackCols))), maxRows)

	if capacity := stackRows * stackCols; stackCount > capacity {
		stackCount = capacity
	}

	cellWidth := (rightRegionWidth - (stackCols-1)*gap) / stackCols
	cellHeight := (stackHeight - (stackRows-1)*gap) / stackRows

	if masterWidth <= 0 || cellWidth <= 0 || cellHeight <= 0 {
		return nil, fmt.Errorf(
			"insufficient space for master-stack layout: monitor=%dx%d masterWidth=%d cellWidth=%d cellHeight=%d gap=%d",
			monitor.Width, monitor.Height, masterWidth, cellWidth, cellHeight, gap,
		)
	}

	positions := make([]rect, stackCount+1)
	positions[0] = rect{
		X:      monitor.X + gap,
		Y:      monitor.Y + gap,
		Width:  masterWidth,
		Height: stackHeight,
	}
	for i := 0; i < stackCount; i++ {
		row := i / stackCols
		col := i % stackCols
		positions[i+1] = rect{
			X:      rightStartX + col*(cellWidth+gap),
			Y:      monitor.Y + gap + row*(cellHeight+gap),
			Width:  cellWidth,
			Height: cellHeight,
		}
	}
	return positions, nil
}
