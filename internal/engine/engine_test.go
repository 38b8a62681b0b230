package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/platform"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

type stubModule struct {
	name string
	abi  module.ABI
	inst *stubInstance

	setup func(*stubInstance)
}

func newStub(name string) *stubModule {
	return &stubModule{name: name, abi: module.HostABI}
}

func (m *stubModule) Info() (module.Info, error) {
	return module.Info{Name: m.name, Version: "1.0.0", ABI: m.abi}, nil
}

func (m *stubModule) Create(srv *module.Server) (module.Instance, error) {
	m.inst = &stubInstance{srv: srv, owned: make(map[wm.ToplevelID]*module.Toplevel)}
	if m.setup != nil {
		m.setup(m.inst)
	}
	return m.inst, nil
}

type stubInstance struct {
	srv    *module.Server
	events []string
	owned  map[wm.ToplevelID]*module.Toplevel
	snaps  []*registry.Snapshot
	acks   []uint32
	// order interleaves acks and commits as the module saw them.
	order []string

	onNew    func(*module.Toplevel) error
	onUpdate func(*module.Toplevel, wm.UpdateFlags) error
	onKey    func(wm.KeyEvent) (wm.KeyFilter, error)
}

func (s *stubInstance) NewToplevel(t *module.Toplevel) error {
	s.events = append(s.events, fmt.Sprintf("new %v", t.ID()))
	s.owned[t.ID()] = t
	if s.onNew != nil {
		return s.onNew(t)
	}
	return nil
}

func (s *stubInstance) ClosedToplevel(id wm.ToplevelID) error {
	s.events = append(s.events, fmt.Sprintf("closed %v", id))
	delete(s.owned, id)
	return nil
}

func (s *stubInstance) UpdateToplevel(t *module.Toplevel, flags wm.UpdateFlags) error {
	s.events = append(s.events, fmt.Sprintf("update %v %v", t.ID(), flags))
	if s.onUpdate != nil {
		return s.onUpdate(t, flags)
	}
	return nil
}

func (s *stubInstance) AckToplevel(t *module.Toplevel, serial uint32) error {
	s.acks = append(s.acks, serial)
	s.order = append(s.order, fmt.Sprintf("ack %d", serial))
	return nil
}

func (s *stubInstance) CommittedToplevel(t *module.Toplevel, snap *registry.Snapshot) error {
	s.events = append(s.events, fmt.Sprintf("committed %v", t.ID()))
	s.order = append(s.order, fmt.Sprintf("committed %v", t.ID()))
	if snap != nil {
		s.snaps = append(s.snaps, snap)
	}
	return nil
}

func (s *stubInstance) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	if s.onKey != nil {
		return s.onKey(ev)
	}
	return wm.KeyForward, nil
}

func (s *stubInstance) KeyModifiers(m wm.Modifiers) error {
	s.events = append(s.events, fmt.Sprintf("modifiers %v", m))
	return nil
}

func (s *stubInstance) NewOutput(o *module.Output) error {
	s.events = append(s.events, fmt.Sprintf("new %v", o.ID()))
	return nil
}

func (s *stubInstance) DisconnectOutput(id wm.OutputID) error {
	s.events = append(s.events, fmt.Sprintf("disconnect %v", id))
	return nil
}

// submit sends a configure for t with the given state.
func (s *stubInstance) submit(t *module.Toplevel, state wm.ToplevelState) (uint32, error) {
	cfg, err := s.srv.NewConfigure(t)
	if err != nil {
		return 0, err
	}
	if err := cfg.SetState(state); err != nil {
		return 0, err
	}
	return cfg.Submit()
}

type staticOutput struct {
	name    string
	geom    wm.Geometry
	refresh uint32
}

func (o *staticOutput) Name() string          { return o.name }
func (o *staticOutput) Geometry() wm.Geometry { return o.geom }
func (o *staticOutput) RefreshRate() uint32   { return o.refresh }

type testBacking struct {
	size     wm.Size
	releases int
}

func (b *testBacking) Size() wm.Size  { return b.size }
func (b *testBacking) Scale() float32 { return 1 }
func (b *testBacking) Release()       { b.releases++ }

func newTestEngine(t *testing.T) (*Engine, *platform.Recorder) {
	t.Helper()
	rec := platform.NewRecorder()
	e, err := New(Config{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: rec,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, rec
}

func load(t *testing.T, e *Engine, m *stubModule) *stubInstance {
	t.Helper()
	if _, err := e.LoadModule(m); err != nil {
		t.Fatalf("load module: %v", err)
	}
	return m.inst
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without backend")
	}
}

func TestCreatedToMappedScenario(t *testing.T) {
	e, rec := newTestEngine(t)
	stub := newStub("wm")
	var serial uint32
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			var err error
			serial, err = s.submit(t, wm.StateActivated)
			return err
		}
	}
	inst := load(t, e, stub)

	id, err := e.ToplevelCreated(0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if serial != 1 {
		t.Fatalf("expected serial 1, got %d", serial)
	}
	if sent := rec.Configures(); len(sent) != 1 || sent[0].Serial != 1 {
		t.Fatalf("expected configure 1 sent to client, got %+v", sent)
	}
	if p, _ := e.Phase(id); p != PhasePendingAck {
		t.Fatalf("expected pending-ack, got %v", p)
	}

	if err := e.ToplevelAcked(id, 1); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(inst.acks) != 1 || inst.acks[0] != 1 {
		t.Fatalf("expected module to see ack 1, got %v", inst.acks)
	}
	if p, _ := e.Phase(id); p != PhaseAcked {
		t.Fatalf("expected acked, got %v", p)
	}

	backing := &testBacking{size: wm.Size{Width: 800, Height: 600}}
	if err := e.ToplevelCommitted(id, Commit{Snapshot: backing}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p, _ := e.Phase(id); p != PhaseMapped {
		t.Fatalf("expected mapped, got %v", p)
	}
	st := e.Toplevels()[0]
	if st.Geometry == nil || st.Geometry.Size() != (wm.Size{Width: 800, Height: 600}) {
		t.Fatalf("expected 800x600 geometry, got %v", st.Geometry)
	}
	if st.State != wm.StateActivated {
		t.Fatalf("expected activated state, got %v", st.State)
	}

	if err := e.ToplevelClosed(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.ToplevelUpdated(id, Update{}); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected closed toplevel to be unknown, got %v", err)
	}
	if p, _ := e.Phase(id); p != PhaseClosing {
		t.Fatalf("expected closing while snapshot held, got %v", p)
	}

	snap := inst.snaps[0]
	size, err := snap.Size()
	if err != nil || size.Width != 800 {
		t.Fatalf("expected snapshot usable after close, got %v %v", size, err)
	}
	if err := snap.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if backing.releases != 1 {
		t.Fatalf("expected backing released, got %d", backing.releases)
	}
	if p, _ := e.Phase(id); p != PhaseRetired {
		t.Fatalf("expected retired, got %v", p)
	}
	if last := inst.events[len(inst.events)-1]; last != fmt.Sprintf("closed %v", id) {
		t.Fatalf("expected close to be the last notification, got %q", last)
	}
}

func TestAcksDeliveredInSubmissionOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var serials []uint32
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			for _, st := range []wm.ToplevelState{wm.StateActivated, wm.StateMaximized} {
				serial, err := s.submit(t, st)
				if err != nil {
					return err
				}
				serials = append(serials, serial)
			}
			return nil
		}
	}
	inst := load(t, e, stub)
	id, _ := e.ToplevelCreated(0)

	if err := e.ToplevelAcked(id, serials[1]); err != nil {
		t.Fatalf("ack %d: %v", serials[1], err)
	}
	if len(inst.acks) != 0 {
		t.Fatalf("ack %d delivered before ack %d: %v", serials[1], serials[0], inst.acks)
	}
	if err := e.ToplevelAcked(id, serials[0]); err != nil {
		t.Fatalf("ack %d: %v", serials[0], err)
	}
	if len(inst.acks) != 2 || inst.acks[0] != serials[0] || inst.acks[1] != serials[1] {
		t.Fatalf("expected acks %v, got %v", serials, inst.acks)
	}
	// The later configure's state wins once both are acknowledged.
	if st := e.Toplevels()[0]; st.State != wm.StateMaximized {
		t.Fatalf("expected maximized, got %v", st.State)
	}
}

func TestCommitBeforeAckRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := e.ToplevelCreated(0)
	err := e.ToplevelCommitted(id, Commit{Snapshot: &testBacking{}})
	if !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestAckUnknownSerialRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := e.ToplevelCreated(0)
	if err := e.ToplevelAcked(id, 42); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := e.ToplevelAcked(99, 1); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	id, _ := e.ToplevelCreated(0)
	if err := e.ToplevelClosed(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.ToplevelClosed(id); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestFocusSetTwiceAppliesOnce(t *testing.T) {
	e, rec := newTestEngine(t)
	stub := newStub("wm")
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			if err := s.srv.SetKeyboardFocus(t); err != nil {
				return err
			}
			return s.srv.SetKeyboardFocus(t)
		}
	}
	load(t, e, stub)
	id, _ := e.ToplevelCreated(0)

	got := rec.KeyboardFocus()
	if len(got) != 1 || got[0] != wm.FocusOn(id) {
		t.Fatalf("expected exactly one focus change to %v, got %v", id, got)
	}

	// Closing the focused toplevel clears focus before the module hears about it.
	_ = e.ToplevelClosed(id)
	if st := e.Status(); st.KeyboardFocus != "none" {
		t.Fatalf("expected focus cleared on close, got %s", st.KeyboardFocus)
	}
}

func TestFeaturesImmutable(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			_, err := s.submit(t, wm.StateActivated|wm.StateTiledLeft|wm.StateSuspended)
			return err
		}
	}
	load(t, e, stub)

	features := wm.FeatureTiledState
	id, _ := e.ToplevelCreated(features)
	title := "editor"
	_ = e.ToplevelUpdated(id, Update{Title: &title})
	_ = e.ToplevelAcked(id, 1)

	st := e.Toplevels()[0]
	if st.Features != features {
		t.Fatalf("expected features %v, got %v", features, st.Features)
	}
	if st.State != wm.StateActivated|wm.StateTiledLeft {
		t.Fatalf("expected unsupported suspended flag masked, got %v", st.State)
	}
}

func TestUpdateFlagsOnlyOnChange(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var seen []wm.UpdateFlags
	var titles []string
	stub.setup = func(s *stubInstance) {
		s.onUpdate = func(t *module.Toplevel, flags wm.UpdateFlags) error {
			seen = append(seen, flags)
			title, err := t.Title()
			titles = append(titles, title)
			return err
		}
	}
	load(t, e, stub)
	id, _ := e.ToplevelCreated(0)

	title := "vim"
	appID := "org.vim"
	_ = e.ToplevelUpdated(id, Update{Title: &title, AppID: &appID})
	_ = e.ToplevelUpdated(id, Update{Title: &title})
	_ = e.ToplevelUpdated(id, Update{Requests: wm.UpdateRequestSetFullscreen | wm.UpdateTitle})

	if len(seen) != 2 {
		t.Fatalf("expected 2 update notifications, got %d (%v)", len(seen), seen)
	}
	if seen[0] != wm.UpdateTitle|wm.UpdateAppID {
		t.Fatalf("expected title|app-id, got %v", seen[0])
	}
	if seen[1] != wm.UpdateRequestSetFullscreen {
		t.Fatalf("expected only the request flag, got %v", seen[1])
	}
	if titles[0] != "vim" {
		t.Fatalf("expected module to read new title, got %q", titles[0])
	}
}

func TestResizeEdgeRaisesResizeRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var seen []wm.UpdateFlags
	var edges []wm.ResizeEdge
	stub.setup = func(s *stubInstance) {
		s.onUpdate = func(t *module.Toplevel, flags wm.UpdateFlags) error {
			seen = append(seen, flags)
			edge, err := t.ResizeEdge()
			edges = append(edges, edge)
			return err
		}
	}
	load(t, e, stub)
	id, _ := e.ToplevelCreated(0)

	edge := wm.EdgeBottomRight
	none := wm.EdgeNone
	_ = e.ToplevelUpdated(id, Update{ResizeEdge: &edge})
	_ = e.ToplevelUpdated(id, Update{ResizeEdge: &edge})
	_ = e.ToplevelUpdated(id, Update{ResizeEdge: &none})

	if len(seen) != 2 {
		t.Fatalf("expected 2 update notifications, got %d (%v)", len(seen), seen)
	}
	for i, flags := range seen {
		if flags != wm.UpdateRequestResize {
			t.Errorf("update %d: expected resize-request, got %v", i, flags)
		}
	}
	if edges[0] != wm.EdgeBottomRight || edges[1] != wm.EdgeNone {
		t.Fatalf("expected module to read bottom-right then none, got %v", edges)
	}
}

func TestParentCycleRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	a, _ := e.ToplevelCreated(0)
	b, _ := e.ToplevelCreated(0)
	if err := e.ToplevelUpdated(b, Update{Parent: &a}); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if err := e.ToplevelUpdated(a, Update{Parent: &b}); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected cycle to be rejected, got %v", err)
	}
	unknown := wm.ToplevelID(77)
	if err := e.ToplevelUpdated(a, Update{Parent: &unknown}); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected unknown parent to be rejected, got %v", err)
	}
}

func TestClosingParentClearsChild(t *testing.T) {
	e, _ := newTestEngine(t)
	inst := load(t, e, newStub("wm"))
	parent, _ := e.ToplevelCreated(0)
	child, _ := e.ToplevelCreated(0)
	_ = e.ToplevelUpdated(child, Update{Parent: &parent})

	_ = e.ToplevelClosed(parent)
	for _, st := range e.Toplevels() {
		if st.ID == child && st.Parent != 0 {
			t.Fatalf("expected child parent cleared, got %v", st.Parent)
		}
	}
	want := fmt.Sprintf("update %v %v", child, wm.UpdateParent)
	if last := inst.events[len(inst.events)-1]; last != want {
		t.Fatalf("expected %q, got %q", want, last)
	}
}

func TestKeyForwardedSynchronously(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var got []wm.KeyEvent
	stub.setup = func(s *stubInstance) {
		s.onKey = func(ev wm.KeyEvent) (wm.KeyFilter, error) {
			got = append(got, ev)
			if ev.Keysym == 'q' {
				return wm.KeyDrop, nil
			}
			return wm.KeyForward, nil
		}
	}
	load(t, e, stub)

	verdict, err := e.Key(wm.KeyEvent{Time: 1, Keysym: 'a', Compose: "a", Status: wm.KeyPressed})
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if verdict != wm.KeyForward {
		t.Fatalf("expected forward, got %v", verdict)
	}
	if len(got) != 1 {
		t.Fatalf("expected module to see the event within the call, got %d events", len(got))
	}
	if verdict, _ := e.Key(wm.KeyEvent{Keysym: 'q', Status: wm.KeyPressed}); verdict != wm.KeyDrop {
		t.Fatalf("expected drop, got %v", verdict)
	}
}

func TestModifiersDeliveredOnChange(t *testing.T) {
	e, _ := newTestEngine(t)
	inst := load(t, e, newStub("wm"))
	_ = e.ModifiersChanged(wm.ModCtrl)
	_ = e.ModifiersChanged(wm.ModCtrl)
	if len(inst.events) != 1 {
		t.Fatalf("expected one modifier notification, got %v", inst.events)
	}
}

func TestIncompatibleModuleKeepsActive(t *testing.T) {
	e, _ := newTestEngine(t)
	load(t, e, newStub("first"))

	bad := newStub("bad")
	bad.abi = module.ABI{Major: module.HostABI.Major + 1}
	if _, err := e.LoadModule(bad); !errors.Is(err, wm.ErrIncompatibleABI) {
		t.Fatalf("expected ErrIncompatibleABI, got %v", err)
	}
	st := e.Status()
	if st.Module == nil || st.Module.Info.Name != "first" {
		t.Fatalf("expected first module to stay active, got %+v", st.Module)
	}
	if st.LastLoadError == "" {
		t.Fatalf("expected load error in status")
	}
}

func TestHotSwapReplaysLiveObjects(t *testing.T) {
	e, _ := newTestEngine(t)
	load(t, e, newStub("old"))
	out, _ := e.OutputConnected(&staticOutput{name: "HDMI-1", geom: wm.Geometry{Width: 1920, Height: 1080}, refresh: 60000})
	a, _ := e.ToplevelCreated(0)
	b, _ := e.ToplevelCreated(0)
	_ = e.ToplevelClosed(a)

	inst := load(t, e, newStub("new"))
	want := []string{fmt.Sprintf("new %v", out), fmt.Sprintf("new %v", b)}
	if len(inst.events) != len(want) {
		t.Fatalf("expected replay %v, got %v", want, inst.events)
	}
	for i := range want {
		if inst.events[i] != want[i] {
			t.Fatalf("replay[%d] = %q, want %q", i, inst.events[i], want[i])
		}
	}
	if _, ok := inst.owned[b]; !ok {
		t.Fatalf("expected new module to own a handle for %v", b)
	}
}

func TestOutputLifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var refresh uint32
	stub.setup = func(s *stubInstance) {
		s.onNew = func(*module.Toplevel) error {
			outs, err := s.srv.Outputs()
			if err != nil || len(outs) == 0 {
				return err
			}
			refresh, err = outs[0].RefreshRate()
			return err
		}
	}
	inst := load(t, e, stub)
	src := &staticOutput{name: "DP-2", geom: wm.Geometry{Width: 2560, Height: 1440}, refresh: 59951}
	id, err := e.OutputConnected(src)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	src.refresh = 143998
	_, _ = e.ToplevelCreated(0)
	if refresh != 143998 {
		t.Fatalf("expected live refresh rate 143998, got %d", refresh)
	}

	if err := e.OutputDisconnected(id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := e.OutputDisconnected(id); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	if last := inst.events[len(inst.events)-1]; last != fmt.Sprintf("disconnect %v", id) {
		t.Fatalf("expected disconnect notification, got %q", last)
	}
	if len(e.Outputs()) != 0 {
		t.Fatalf("expected no outputs after disconnect")
	}
}

func TestReentrantInboundRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	var nested error
	stub.setup = func(s *stubInstance) {
		s.onNew = func(*module.Toplevel) error {
			_, nested = e.ToplevelCreated(0)
			return nil
		}
	}
	load(t, e, stub)
	_, _ = e.ToplevelCreated(0)
	if !errors.Is(nested, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", nested)
	}
}

type failingBackend struct {
	*platform.Recorder
}

func (failingBackend) SendConfigure(uint32, *configure.Request) error {
	return errors.New("client connection lost")
}

func TestSendFailureWithdrawsSerial(t *testing.T) {
	e, err := New(Config{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: failingBackend{platform.NewRecorder()},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stub := newStub("wm")
	var submitErr error
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			_, submitErr = s.submit(t, wm.StateActivated)
			return nil
		}
	}
	load(t, e, stub)
	_, _ = e.ToplevelCreated(0)

	if submitErr == nil {
		t.Fatalf("expected submit to report send failure")
	}
	if st := e.Status(); st.PendingAcks != 0 {
		t.Fatalf("expected withdrawn serial, got %d pending", st.PendingAcks)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := platform.NewRecorder()
	e, err := New(Config{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Backend: rec,
		Metrics: NewMetrics(reg),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stub := newStub("wm")
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			_, err := s.submit(t, wm.StateActivated)
			return err
		}
	}
	load(t, e, stub)
	id, _ := e.ToplevelCreated(0)
	_ = e.ToplevelAcked(id, 1)
	_, _ = e.Key(wm.KeyEvent{Keysym: 'x'})
	_ = e.ToplevelCommitted(99, Commit{})

	m := e.metrics
	if got := testutil.ToFloat64(m.toplevels); got != 1 {
		t.Fatalf("expected 1 toplevel, got %v", got)
	}
	if got := testutil.ToFloat64(m.configures); got != 1 {
		t.Fatalf("expected 1 configure, got %v", got)
	}
	if got := testutil.ToFloat64(m.acks); got != 1 {
		t.Fatalf("expected 1 ack, got %v", got)
	}
	if got := testutil.ToFloat64(m.keys.WithLabelValues("forward")); got != 1 {
		t.Fatalf("expected 1 forwarded key, got %v", got)
	}
	if got := testutil.ToFloat64(m.moduleLoads.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 successful load, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("toplevel-committed", "unknown_handle")); got != 1 {
		t.Fatalf("expected 1 rejected commit, got %v", got)
	}
}

func TestCommitUsesAckedPlacement(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			cfg, err := s.srv.NewConfigure(t)
			if err != nil {
				return err
			}
			_ = cfg.SetPosition(wm.Point{X: 40, Y: 20})
			_ = cfg.SetSize(wm.Size{Width: 640, Height: 480})
			_, err = cfg.Submit()
			return err
		}
	}
	load(t, e, stub)
	id, _ := e.ToplevelCreated(0)
	_ = e.ToplevelAcked(id, 1)
	if err := e.ToplevelCommitted(id, Commit{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	want := wm.Geometry{X: 40, Y: 20, Width: 640, Height: 480}
	st := e.Toplevels()[0]
	if st.Geometry == nil || *st.Geometry != want {
		t.Fatalf("expected geometry %v, got %v", want, st.Geometry)
	}
}

func TestCommitWaitsForHeldAck(t *testing.T) {
	resized := wm.Size{Width: 1024, Height: 768}
	newEngine := func(t *testing.T) (*Engine, *stubInstance) {
		e, _ := newTestEngine(t)
		stub := newStub("wm")
		stub.setup = func(s *stubInstance) {
			s.onNew = func(t *module.Toplevel) error {
				_, err := s.submit(t, wm.StateActivated)
				return err
			}
			s.onUpdate = func(t *module.Toplevel, flags wm.UpdateFlags) error {
				cfg, err := s.srv.NewConfigure(t)
				if err != nil {
					return err
				}
				_ = cfg.SetSize(resized)
				_, err = cfg.Submit()
				return err
			}
		}
		return e, load(t, e, stub)
	}
	title := "resize"

	tests := []struct {
		name string
		run  func(t *testing.T, e *Engine) (a, b wm.ToplevelID)
		// wantHeld is the module's view while A's serial is outstanding.
		wantHeld []string
		want     []string
		wantSize *wm.Size
	}{
		{
			name: "first commit behind another toplevel",
			run: func(t *testing.T, e *Engine) (wm.ToplevelID, wm.ToplevelID) {
				a, _ := e.ToplevelCreated(0) // serial 1
				b, _ := e.ToplevelCreated(0) // serial 2
				if err := e.ToplevelAcked(b, 2); err != nil {
					t.Fatalf("ack 2: %v", err)
				}
				if err := e.ToplevelCommitted(b, Commit{}); err != nil {
					t.Fatalf("commit: %v", err)
				}
				return a, b
			},
			wantHeld: nil,
			want:     []string{"ack 1", "ack 2", "committed toplevel#2"},
		},
		{
			name: "resize commit behind another toplevel",
			run: func(t *testing.T, e *Engine) (wm.ToplevelID, wm.ToplevelID) {
				b, _ := e.ToplevelCreated(0) // serial 1
				if err := e.ToplevelAcked(b, 1); err != nil {
					t.Fatalf("ack 1: %v", err)
				}
				a, _ := e.ToplevelCreated(0) // serial 2
				if err := e.ToplevelUpdated(b, Update{Title: &title}); err != nil {
					t.Fatalf("update: %v", err)
				}
				if err := e.ToplevelAcked(b, 3); err != nil {
					t.Fatalf("ack 3: %v", err)
				}
				if err := e.ToplevelCommitted(b, Commit{}); err != nil {
					t.Fatalf("commit: %v", err)
				}
				return a, b
			},
			wantHeld: []string{"ack 1"},
			want:     []string{"ack 1", "ack 2", "ack 3", "committed toplevel#1"},
			wantSize: &resized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, inst := newEngine(t)
			a, b := tt.run(t, e)
			if fmt.Sprint(inst.order) != fmt.Sprint(tt.wantHeld) {
				t.Fatalf("expected %v before release, got %v", tt.wantHeld, inst.order)
			}

			serials := e.configures.Outstanding(a)
			if len(serials) != 1 {
				t.Fatalf("expected one outstanding serial for %v, got %v", a, serials)
			}
			if err := e.ToplevelAcked(a, serials[0]); err != nil {
				t.Fatalf("ack %d: %v", serials[0], err)
			}
			if fmt.Sprint(inst.order) != fmt.Sprint(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, inst.order)
			}
			if tt.wantSize == nil {
				return
			}
			for _, st := range e.Toplevels() {
				if st.ID != b {
					continue
				}
				if st.Geometry == nil || st.Geometry.Size() != *tt.wantSize {
					t.Fatalf("expected %v committed, got %v", *tt.wantSize, st.Geometry)
				}
			}
		})
	}
}

func TestCloseDropsHeldCommit(t *testing.T) {
	e, _ := newTestEngine(t)
	stub := newStub("wm")
	stub.setup = func(s *stubInstance) {
		s.onNew = func(t *module.Toplevel) error {
			_, err := s.submit(t, wm.StateActivated)
			return err
		}
	}
	inst := load(t, e, stub)
	a, _ := e.ToplevelCreated(0)
	b, _ := e.ToplevelCreated(0)

	backing := &testBacking{size: wm.Size{Width: 300, Height: 200}}
	_ = e.ToplevelAcked(b, 2)
	if err := e.ToplevelCommitted(b, Commit{Snapshot: backing}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := e.ToplevelClosed(b); err != nil {
		t.Fatalf("close: %v", err)
	}
	if backing.releases != 1 {
		t.Fatalf("expected held snapshot released on close, got %d releases", backing.releases)
	}
	if p, _ := e.Phase(b); p != PhaseRetired {
		t.Fatalf("expected retired, got %v", p)
	}

	_ = e.ToplevelAcked(a, 1)
	if want := "[ack 1]"; fmt.Sprint(inst.order) != want {
		t.Fatalf("expected %s, got %v", want, inst.order)
	}
}
