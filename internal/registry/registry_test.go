package registry

import (
	"errors"
	"math"
	"testing"

	"github.com/1broseidon/wmcore/internal/wm"
)

type fakeBacking struct {
	size     wm.Size
	scale    float32
	releases int
}

func (b *fakeBacking) Size() wm.Size  { return b.size }
func (b *fakeBacking) Scale() float32 { return b.scale }
func (b *fakeBacking) Release()       { b.releases++ }

func TestAllocToplevelNeverReuses(t *testing.T) {
	r := New()
	first, _ := r.AllocToplevel()
	if err := r.InvalidateToplevel(first); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	second, _ := r.AllocToplevel()
	if second == first {
		t.Fatalf("expected fresh id, got reused %v", second)
	}
	if second <= first {
		t.Fatalf("expected monotonic ids, got %v after %v", second, first)
	}
}

func TestAllocToplevelExhausted(t *testing.T) {
	r := New()
	r.lastToplevel = math.MaxUint32 - 1
	last, err := r.AllocToplevel()
	if err != nil || last != math.MaxUint32 {
		t.Fatalf("expected id %d, got %v %v", uint32(math.MaxUint32), last, err)
	}
	if err := r.InvalidateToplevel(last); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := r.AllocToplevel(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got := r.Status(1); got != StatusRetired {
		t.Fatalf("expected earlier ids to stay retired, got %v", got)
	}
}

func TestInvalidateToplevelTwice(t *testing.T) {
	r := New()
	id, _ := r.AllocToplevel()
	if err := r.InvalidateToplevel(id); err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	err := r.InvalidateToplevel(id)
	if !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	if err := r.CheckToplevel(id); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected closed id to fail check, got %v", err)
	}
}

func TestCheckUnknownIDs(t *testing.T) {
	r := New()
	if err := r.CheckToplevel(42); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle for toplevel, got %v", err)
	}
	if err := r.CheckOutput(7); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle for output, got %v", err)
	}
	if got := r.Status(42); got != StatusUnknown {
		t.Fatalf("expected unknown status, got %v", got)
	}
}

func TestOutputLifecycle(t *testing.T) {
	r := New()
	a := r.AllocOutput()
	b := r.AllocOutput()
	if err := r.InvalidateOutput(a); err != nil {
		t.Fatalf("invalidate output: %v", err)
	}
	if err := r.InvalidateOutput(a); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	live := r.LiveOutputs()
	if len(live) != 1 || live[0] != b {
		t.Fatalf("expected [%v], got %v", b, live)
	}
	if c := r.AllocOutput(); c == a {
		t.Fatalf("output id %v reused", c)
	}
}

func TestSnapshotOutlivesToplevel(t *testing.T) {
	r := New()
	var retired []wm.ToplevelID
	r.OnRetire(func(id wm.ToplevelID) { retired = append(retired, id) })

	id, _ := r.AllocToplevel()
	backing := &fakeBacking{size: wm.Size{Width: 640, Height: 480}, scale: 2}
	snap, err := r.NewSnapshot(id, backing)
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}

	if err := r.InvalidateToplevel(id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got := r.Status(id); got != StatusClosing {
		t.Fatalf("expected closing, got %v", got)
	}
	if len(retired) != 0 {
		t.Fatalf("expected no retirement while snapshot held, got %v", retired)
	}

	size, err := snap.Size()
	if err != nil {
		t.Fatalf("size after close: %v", err)
	}
	if size != backing.size {
		t.Fatalf("expected %v, got %v", backing.size, size)
	}
	if scale, _ := snap.Scale(); scale != 2 {
		t.Fatalf("expected scale 2, got %v", scale)
	}

	if err := snap.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if backing.releases != 1 {
		t.Fatalf("expected backing released once, got %d", backing.releases)
	}
	if got := r.Status(id); got != StatusRetired {
		t.Fatalf("expected retired, got %v", got)
	}
	if len(retired) != 1 || retired[0] != id {
		t.Fatalf("expected retire hook for %v, got %v", id, retired)
	}
}

func TestSnapshotDoubleRelease(t *testing.T) {
	r := New()
	id, _ := r.AllocToplevel()
	snap, err := r.NewSnapshot(id, &fakeBacking{})
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}
	if err := snap.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := snap.Release(); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
	if _, err := snap.Size(); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle from Size, got %v", err)
	}
	if got := r.Status(id); got != StatusLive {
		t.Fatalf("releasing a snapshot must not close the toplevel, got %v", got)
	}
}

func TestNewSnapshotRequiresLiveToplevel(t *testing.T) {
	r := New()
	id, _ := r.AllocToplevel()
	_ = r.InvalidateToplevel(id)
	if _, err := r.NewSnapshot(id, &fakeBacking{}); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestLiveToplevelsOrdered(t *testing.T) {
	r := New()
	a, _ := r.AllocToplevel()
	b, _ := r.AllocToplevel()
	c, _ := r.AllocToplevel()
	_ = r.InvalidateToplevel(b)

	got := r.LiveToplevels()
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("expected [%v %v], got %v", a, c, got)
	}
}
