package sync

import "testing"

func TestResyncClampsAndAdvances(t *testing.T) {
	h := New()
	h.Advance(100)
	if got := h.Resync(Gpu); got != 100 {
		t.Fatalf("got %d want 100", got)
	}
	if got := h.Resync(Gpu); got != 0 {
		t.Fatalf("second resync should be 0, got %d", got)
	}
}

func TestEventPendingAndHandle(t *testing.T) {
	h := New()
	h.ScheduleNext(SysTimer, 50)
	h.ScheduleNext(Gpu, 200)
	h.Advance(50)
	if !h.IsEventPending() {
		t.Fatal("expected event pending at cycle 50")
	}
	var fired []Token
	h.HandleEvents(func(tok Token) { fired = append(fired, tok) })
	if len(fired) != 1 || fired[0] != SysTimer {
		t.Fatalf("expected only SysTimer to fire, got %v", fired)
	}
	if h.Cycle() != 50 {
		t.Fatalf("overshoot not restored: cycle=%d", h.Cycle())
	}
}

func TestFastForwardOnWFI(t *testing.T) {
	h := New()
	h.ScheduleNext(Spu, 1000)
	h.FastForwardToNextEvent()
	if h.Cycle() != 1000 {
		t.Fatalf("expected fast-forward to 1000, got %d", h.Cycle())
	}
}

func TestRebaseCounters(t *testing.T) {
	h := New()
	h.Advance(1_000_000)
	h.ScheduleNext(Dma, 500)
	h.RebaseCounters()
	if h.Cycle() != 0 {
		t.Fatalf("expected cycle 0 after rebase, got %d", h.Cycle())
	}
	next, ok := h.NextEvent()
	if !ok || next != 500 {
		t.Fatalf("expected next event at 500, got %d ok=%v", next, ok)
	}
}

func TestNoNextEvent(t *testing.T) {
	h := New()
	if !h.NoNextEvent() {
		t.Fatal("expected no events scheduled initially")
	}
}
