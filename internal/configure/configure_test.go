package configure

import (
	"errors"
	"testing"

	"github.com/1broseidon/wmcore/internal/wm"
)

func serials(acks []Ack) []uint32 {
	out := make([]uint32, 0, len(acks))
	for _, a := range acks {
		out = append(out, a.Serial)
	}
	return out
}

func equalSerials(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRequestLastWriteWins(t *testing.T) {
	req := NewRequest(1)
	_ = req.SetSize(wm.Size{Width: 100, Height: 100})
	_ = req.SetSize(wm.Size{Width: 800, Height: 600})

	got, ok := req.Size()
	if !ok {
		t.Fatalf("expected size to be set")
	}
	if got != (wm.Size{Width: 800, Height: 600}) {
		t.Fatalf("expected 800x600, got %v", got)
	}
	if _, ok := req.State(); ok {
		t.Fatalf("expected state to stay unset")
	}
}

func TestRequestFrozenAfterIssue(t *testing.T) {
	tr := NewTracker()
	req := NewRequest(1)
	if _, err := tr.Issue(req); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := req.SetState(wm.StateActivated); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := tr.Issue(req); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected resubmit to fail with ErrInvalidState, got %v", err)
	}
}

func TestSerialsIncreaseAcrossToplevels(t *testing.T) {
	tr := NewTracker()
	var last uint32
	for i, id := range []wm.ToplevelID{1, 2, 1, 3} {
		s, err := tr.Issue(NewRequest(id))
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if s <= last {
			t.Fatalf("serial %d not greater than %d", s, last)
		}
		last = s
	}
}

func TestOutOfOrderAckIsHeld(t *testing.T) {
	tr := NewTracker()
	s5, _ := tr.Issue(NewRequest(1))
	s6, _ := tr.Issue(NewRequest(1))

	acks, err := tr.Ack(1, s6)
	if err != nil {
		t.Fatalf("ack %d: %v", s6, err)
	}
	if len(acks) != 0 {
		t.Fatalf("expected later ack to be held, got %v", serials(acks))
	}

	acks, err = tr.Ack(1, s5)
	if err != nil {
		t.Fatalf("ack %d: %v", s5, err)
	}
	if want := []uint32{s5, s6}; !equalSerials(serials(acks), want) {
		t.Fatalf("expected %v, got %v", want, serials(acks))
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty queue, got %d pending", tr.Len())
	}
}

func TestAckOrderAcrossToplevels(t *testing.T) {
	tr := NewTracker()
	a, _ := tr.Issue(NewRequest(1))
	b, _ := tr.Issue(NewRequest(2))

	acks, _ := tr.Ack(2, b)
	if len(acks) != 0 {
		t.Fatalf("expected ack for toplevel 2 to wait, got %v", serials(acks))
	}
	acks, _ = tr.Ack(1, a)
	if want := []uint32{a, b}; !equalSerials(serials(acks), want) {
		t.Fatalf("expected %v, got %v", want, serials(acks))
	}
}

func TestHeldReportsAckWaitingOnOtherToplevel(t *testing.T) {
	tr := NewTracker()
	a, _ := tr.Issue(NewRequest(1))
	b1, _ := tr.Issue(NewRequest(2))
	b2, _ := tr.Issue(NewRequest(2))

	if _, held := tr.Held(2); held {
		t.Fatalf("expected nothing held before any ack")
	}
	_, _ = tr.Ack(2, b1)
	_, _ = tr.Ack(2, b2)
	if serial, held := tr.Held(2); !held || serial != b2 {
		t.Fatalf("expected serial %d held, got %d %v", b2, serial, held)
	}
	if _, held := tr.Held(1); held {
		t.Fatalf("expected toplevel 1 to hold nothing")
	}
	_, _ = tr.Ack(1, a)
	if _, held := tr.Held(2); held {
		t.Fatalf("expected held acks released after %d", a)
	}
}

func TestAckRejectsUnknownDuplicateAndForeign(t *testing.T) {
	tr := NewTracker()
	s, _ := tr.Issue(NewRequest(1))
	held, _ := tr.Issue(NewRequest(1))
	_, _ = tr.Issue(NewRequest(2))

	if _, err := tr.Ack(1, 99); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("unknown serial: expected ErrInvalidState, got %v", err)
	}
	if _, err := tr.Ack(2, s); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("foreign serial: expected ErrInvalidState, got %v", err)
	}
	if _, err := tr.Ack(1, held); err != nil {
		t.Fatalf("ack held: %v", err)
	}
	if _, err := tr.Ack(1, held); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("duplicate ack: expected ErrInvalidState, got %v", err)
	}
	if _, err := tr.Ack(1, s); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := tr.Ack(1, s); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("delivered ack: expected ErrInvalidState, got %v", err)
	}
}

func TestCancelReleasesHeldAcks(t *testing.T) {
	tr := NewTracker()
	closing, _ := tr.Issue(NewRequest(1))
	other, _ := tr.Issue(NewRequest(2))

	if acks, _ := tr.Ack(2, other); len(acks) != 0 {
		t.Fatalf("expected ack to be held behind %d", closing)
	}

	acks := tr.Cancel(1)
	if want := []uint32{other}; !equalSerials(serials(acks), want) {
		t.Fatalf("expected %v, got %v", want, serials(acks))
	}
	if got := tr.Outstanding(1); len(got) != 0 {
		t.Fatalf("expected no outstanding serials for cancelled toplevel, got %v", got)
	}
	if _, err := tr.Ack(1, closing); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState acking cancelled serial, got %v", err)
	}
}

func TestOutstandingTracksEverySerial(t *testing.T) {
	tr := NewTracker()
	a, _ := tr.Issue(NewRequest(1))
	b, _ := tr.Issue(NewRequest(1))
	_, _ = tr.Issue(NewRequest(2))

	if want := []uint32{a, b}; !equalSerials(tr.Outstanding(1), want) {
		t.Fatalf("expected %v, got %v", want, tr.Outstanding(1))
	}
}

func TestRequestString(t *testing.T) {
	req := NewRequest(3)
	_ = req.SetState(wm.StateActivated | wm.StateMaximized)
	_ = req.SetParent(0)
	want := "configure(toplevel#3){state=maximized|activated parent=none}"
	if got := req.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestWithdrawLatestOnly(t *testing.T) {
	tr := NewTracker()
	first, _ := tr.Issue(NewRequest(1))
	second, _ := tr.Issue(NewRequest(1))

	if err := tr.Withdraw(first); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState withdrawing older serial, got %v", err)
	}
	if err := tr.Withdraw(second); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if want := []uint32{first}; !equalSerials(tr.Outstanding(1), want) {
		t.Fatalf("expected %v, got %v", want, tr.Outstanding(1))
	}
	if next, _ := tr.Issue(NewRequest(1)); next <= second {
		t.Fatalf("expected serials to keep increasing after withdraw, got %d", next)
	}
}
