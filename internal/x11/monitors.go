package x11

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/xgb/randr"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Monitor represents a physical display driven by one CRTC.
type Monitor struct {
	Crtc     randr.Crtc
	Name     string
	Geometry wm.Geometry
	// RefreshRate is in millihertz; zero when the mode is unknown.
	RefreshRate uint32
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	// Get screen resources
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	modes := make(map[randr.Mode]randr.ModeInfo, len(resources.Modes))
	for _, m := range resources.Modes {
		modes[randr.Mode(m.Id)] = m
	}

	var monitors []Monitor

	// Query each CRTC for active monitors
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		// Get output name
		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		var refresh uint32
		if mode, ok := modes[crtcInfo.Mode]; ok {
			refresh = refreshMilliHz(mode)
		}

		monitors = append(monitors, Monitor{
			Crtc: crtc,
			Name: outputName,
			Geometry: wm.Geometry{
				X:      int32(crtcInfo.X),
				Y:      int32(crtcInfo.Y),
				Width:  uint32(crtcInfo.Width),
				Height: uint32(crtcInfo.Height),
			},
			RefreshRate: refresh,
		})
	}

	return monitors, nil
}

// refreshMilliHz derives the refresh rate from a mode's pixel clock and
// total dimensions.
func refreshMilliHz(m randr.ModeInfo) uint32 {
	total := uint64(m.Htotal) * uint64(m.Vtotal)
	if total == 0 {
		return 0
	}
	return uint32(uint64(m.DotClock) * 1000 / total)
}

// monitorDiff is the result of comparing two RandR snapshots.
type monitorDiff struct {
	Added   []Monitor
	Removed []randr.Crtc
	Changed []Monitor
}

// diffMonitors compares the known monitors with a fresh query. A CRTC that
// now drives a different output counts as removed and added.
func diffMonitors(known map[randr.Crtc]Monitor, current []Monitor) monitorDiff {
	var d monitorDiff
	seen := make(map[randr.Crtc]bool, len(current))
	for _, m := range current {
		seen[m.Crtc] = true
		old, ok := known[m.Crtc]
		switch {
		case !ok:
			d.Added = append(d.Added, m)
		case old.Name != m.Name:
			d.Removed = append(d.Removed, m.Crtc)
			d.Added = append(d.Added, m)
		case old != m:
			d.Changed = append(d.Changed, m)
		}
	}
	for crtc := range known {
		if !seen[crtc] {
			d.Removed = append(d.Removed, crtc)
		}
	}
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i] < d.Removed[j] })
	return d
}
