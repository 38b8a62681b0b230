package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wmcore/internal/ipc"
)

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *Server) handleListToplevels(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListToplevelsOutput, error) {
	list, err := s.daemon.ListToplevels()
	if err != nil {
		return nil, ListToplevelsOutput{}, err
	}
	out := ListToplevelsOutput{Toplevels: make([]ToplevelOutput, 0, len(list))}
	for _, t := range list {
		out.Toplevels = append(out.Toplevels, toplevelOutput(t))
	}
	return nil, out, nil
}

func (s *Server) handleListOutputs(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListOutputsOutput, error) {
	list, err := s.daemon.ListOutputs()
	if err != nil {
		return nil, ListOutputsOutput{}, err
	}
	out := ListOutputsOutput{Outputs: make([]OutputOutput, 0, len(list))}
	for _, o := range list {
		out.Outputs = append(out.Outputs, OutputOutput{
			ID:          uint32(o.ID),
			Name:        o.Name,
			Geometry:    o.Geometry.String(),
			RefreshRate: o.RefreshRate,
		})
	}
	return nil, out, nil
}

func (s *Server) handleModuleInfo(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ModuleOutput, error) {
	m, err := s.daemon.GetModule()
	if err != nil {
		return nil, ModuleOutput{}, err
	}
	return nil, moduleOutput(m), nil
}

func (s *Server) handleReloadModule(_ context.Context, _ *mcpsdk.CallToolRequest, args ReloadModuleInput) (*mcpsdk.CallToolResult, ModuleOutput, error) {
	m, err := s.daemon.ReloadModule(args.Path)
	if err != nil {
		return nil, ModuleOutput{}, err
	}
	return nil, moduleOutput(m), nil
}

func statusOutput(st *ipc.StatusData) StatusOutput {
	out := StatusOutput{
		Backend:       st.Backend,
		Toplevels:     st.Toplevels,
		Closing:       st.Closing,
		Outputs:       st.Outputs,
		PendingAcks:   st.PendingAcks,
		LastSerial:    st.LastSerial,
		KeyboardFocus: st.KeyboardFocus,
		PointerFocus:  st.PointerFocus,
		Modifiers:     nonNil(st.Modifiers),
		Module:        moduleOutput(st.Module),
		UptimeSeconds: st.UptimeSeconds,
	}
	return out
}

func toplevelOutput(t ipc.ToplevelInfo) ToplevelOutput {
	out := ToplevelOutput{
		ID:          uint32(t.ID),
		AppID:       t.AppID,
		Title:       t.Title,
		Phase:       t.Phase,
		State:       nonNil(t.State),
		Decorations: t.Decorations,
		Parent:      uint32(t.Parent),
		Mapped:      t.Mapped,
		Outstanding: t.Outstanding,
	}
	if out.Outstanding == nil {
		out.Outstanding = []uint32{}
	}
	if t.Geometry != nil {
		out.Geometry = t.Geometry.String()
	}
	return out
}

func moduleOutput(m *ipc.ModuleData) ModuleOutput {
	if m == nil {
		return ModuleOutput{}
	}
	out := ModuleOutput{
		Name:          m.Name,
		Version:       m.Version,
		ABI:           m.ABI,
		InstanceID:    m.InstanceID,
		Builtin:       m.Builtin,
		Path:          m.Path,
		Failures:      m.Failures,
		LastError:     m.LastError,
		LastLoadError: m.LastLoadError,
	}
	if !m.ActivatedAt.IsZero() {
		out.ActivatedAt = m.ActivatedAt.Format(time.RFC3339)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
