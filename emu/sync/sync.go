// Package sync implements the lazy peripheral synchronization harness: a
// small array of per-device (last_sync, next_event) timestamps advanced
// against a shared instruction-cycle counter, grounded on the reference
// sync.rs resync/rewind/handle_events design.
package sync

// Token identifies one of the peripherals participating in the lazy
// synchronization harness.
type Token int

const (
	SysTimer Token = iota
	Gpu
	Spu
	InputDev
	Dma
	NumTokens
)

const noEvent = ^uint64(0)

type entry struct {
	lastSync  uint64
	nextEvent uint64
}

// Harness tracks cycle_counter plus one entry per Token, and caches the
// minimum next_event as first_event.
type Harness struct {
	cycleCounter uint64
	entries      [NumTokens]entry
	firstEvent   uint64
}

// New returns a Harness with every token's next event cleared (never).
func New() *Harness {
	h := &Harness{}
	for i := range h.entries {
		h.entries[i].nextEvent = noEvent
	}
	h.firstEvent = noEvent
	return h
}

// Cycle returns the current shared cycle counter.
func (h *Harness) Cycle() uint64 { return h.cycleCounter }

// Advance moves the cycle counter forward by n cycles (called once per
// executed instruction by the machine driver loop).
func (h *Harness) Advance(n uint64) { h.cycleCounter += n }

// Resync returns cycles elapsed since the token's last sync, clamped to
// zero, and updates last_sync to the current cycle.
func (h *Harness) Resync(tok Token) uint64 {
	e := &h.entries[tok]
	var elapsed uint64
	if h.cycleCounter > e.lastSync {
		elapsed = h.cycleCounter - e.lastSync
	}
	e.lastSync = h.cycleCounter
	return elapsed
}

// ScheduleNext records the token's next event deadline as an absolute
// cycle and recomputes first_event.
func (h *Harness) ScheduleNext(tok Token, delay uint64) {
	h.entries[tok].nextEvent = h.cycleCounter + delay
	h.recomputeFirstEvent()
}

// ScheduleNone clears a token's pending event.
func (h *Harness) ScheduleNone(tok Token) {
	h.entries[tok].nextEvent = noEvent
	h.recomputeFirstEvent()
}

func (h *Harness) recomputeFirstEvent() {
	min := noEvent
	for _, e := range h.entries {
		if e.nextEvent < min {
			min = e.nextEvent
		}
	}
	h.firstEvent = min
}

// IsEventPending reports whether the cycle counter has reached the
// earliest scheduled event.
func (h *Harness) IsEventPending() bool {
	return h.firstEvent != noEvent && h.cycleCounter >= h.firstEvent
}

// NoNextEvent reports whether no peripheral has any event scheduled.
func (h *Harness) NoNextEvent() bool { return h.firstEvent == noEvent }

// NextEvent returns the absolute cycle of the earliest pending event and
// whether one exists.
func (h *Harness) NextEvent() (uint64, bool) {
	return h.firstEvent, h.firstEvent != noEvent
}

// Due reports whether tok's own scheduled event has arrived.
func (h *Harness) Due(tok Token) bool {
	e := h.entries[tok]
	return e.nextEvent != noEvent && h.cycleCounter >= e.nextEvent
}

// Rewind sets the cycle counter back to target, used to rewind to
// first_event before dispatching due devices and later restoring the
// overshoot.
func (h *Harness) Rewind(target uint64) uint64 {
	overshoot := h.cycleCounter - target
	h.cycleCounter = target
	return overshoot
}

// FastForwardToNextEvent jumps the cycle counter directly to first_event,
// used when the CPU is halted in WFI and nothing else can advance time.
func (h *Harness) FastForwardToNextEvent() {
	if h.firstEvent != noEvent {
		h.cycleCounter = h.firstEvent
	}
}

// RebaseCounters subtracts the current cycle counter from every stored
// timestamp (and the counter itself), preventing unbounded growth across a
// long-running session.
func (h *Harness) RebaseCounters() {
	base := h.cycleCounter
	for i := range h.entries {
		if h.entries[i].lastSync >= base {
			h.entries[i].lastSync -= base
		} else {
			h.entries[i].lastSync = 0
		}
		if h.entries[i].nextEvent != noEvent {
			if h.entries[i].nextEvent >= base {
				h.entries[i].nextEvent -= base
			} else {
				h.entries[i].nextEvent = 0
			}
		}
	}
	h.cycleCounter = 0
	h.recomputeFirstEvent()
}

// HandleEvents runs fn for every token whose deadline has passed, having
// already rewound to first_event; restores the overshoot afterward. This
// is the main-loop glue described by the harness contract.
func (h *Harness) HandleEvents(fn func(tok Token)) {
	if !h.IsEventPending() {
		return
	}
	target, ok := h.NextEvent()
	if !ok {
		return
	}
	overshoot := h.Rewind(target)
	for tok := Token(0); tok < NumTokens; tok++ {
		if h.Due(tok) {
			fn(tok)
		}
	}
	h.cycleCounter += overshoot
}
