package ipc

import (
	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/module"
)

// StatusFromEngine converts an engine summary into its wire form.
func StatusFromEngine(st engine.Status, backend, modulePath string) StatusData {
	data := StatusData{
		Toplevels:     st.Toplevels,
		Closing:       st.Closing,
		Outputs:       st.Outputs,
		LastSerial:    st.LastSerial,
		PendingAcks:   st.PendingAcks,
		KeyboardFocus: st.KeyboardFocus,
		PointerFocus:  st.PointerFocus,
		Modifiers:     st.Modifiers,
		Backend:       backend,
		UptimeSeconds: int64(st.Uptime.Seconds()),
	}
	if st.Module != nil || st.LastLoadError != "" {
		m := ModuleFromStatus(st.Module, modulePath, st.LastLoadError)
		data.Module = &m
	}
	return data
}

// ModuleFromStatus converts the boundary's view of the active module.
// A nil status describes an engine with nothing loaded.
func ModuleFromStatus(st *module.Status, path, lastLoadError string) ModuleData {
	data := ModuleData{LastLoadError: lastLoadError}
	if st == nil {
		return data
	}
	data.Name = st.Info.Name
	data.Version = st.Info.Version
	data.ABI = st.Info.ABI.String()
	data.InstanceID = st.InstanceID
	data.Builtin = st.Builtin
	data.ActivatedAt = st.ActivatedAt
	data.Failures = st.Failures
	data.LastError = st.LastError
	if !st.Builtin {
		data.Path = path
	}
	return data
}

// ToplevelsFromEngine converts the engine's toplevel listing.
func ToplevelsFromEngine(list []engine.ToplevelStatus) []ToplevelInfo {
	out := make([]ToplevelInfo, 0, len(list))
	for _, t := range list {
		out = append(out, ToplevelInfo{
			ID:          t.ID,
			AppID:       t.AppID,
			Title:       t.Title,
			Phase:       t.Phase,
			Features:    t.Features.Names(),
			State:       t.State.Names(),
			Decorations: t.Decorations.String(),
			Geometry:    t.Geometry,
			Parent:      t.Parent,
			Mapped:      t.Mapped,
			Outstanding: t.Outstanding,
			Snapshots:   t.Snapshots,
		})
	}
	return out
}

// OutputsFromModule converts the engine's output listing.
func OutputsFromModule(list []module.OutputInfo) []OutputInfo {
	out := make([]OutputInfo, 0, len(list))
	for _, o := range list {
		out = append(out, OutputInfo{
			ID:          o.ID,
			Name:        o.Name,
			Geometry:    o.Geometry,
			RefreshRate: o.RefreshRate,
		})
	}
	return out
}
