// Package userspace implements the NR32 user-space synchronization
// primitives layered on the kernel's futex syscalls: a counting
// Semaphore and a bounded Vyukov MPMC queue. Grounded on the reference
// nr32-sys/src/sync.rs, redesigned to depend on a small Syscaller
// interface instead of inline ECALL asm, since Go callers invoke the
// kernel directly rather than trapping through an instruction.
package userspace

import "sync/atomic"

// Syscaller abstracts the two futex syscalls these primitives are built
// from, so they can be exercised in tests against a fake kernel as well
// as the real ECALL-driven one.
type Syscaller interface {
	FutexWait(addr *uint32, expected uint32)
	FutexWake(addr *uint32, n int)
}

// Semaphore is a counting semaphore backed by a futex word, matching
// §4.12: try_wait CAS-loops while val > 0; wait parks under the futex
// when it can't decrement immediately; post increments and wakes one
// waiter if any are parked.
type Semaphore struct {
	val     uint32
	waiting uint32
	sys     Syscaller
}

// NewSemaphore builds a Semaphore with the given initial count.
func NewSemaphore(sys Syscaller, initial uint32) *Semaphore {
	return &Semaphore{val: initial, sys: sys}
}

// TryWait attempts to decrement without blocking, reporting success.
func (s *Semaphore) TryWait() bool {
	for {
		cur := atomic.LoadUint32(&s.val)
		if cur == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.val, cur, cur-1) {
			return true
		}
	}
}

// Wait blocks until the semaphore can be decremented.
func (s *Semaphore) Wait() {
	if s.TryWait() {
		return
	}
	atomic.AddUint32(&s.waiting, 1)
	for !s.TryWait() {
		s.sys.FutexWait(&s.val, 0)
	}
	atomic.AddUint32(&s.waiting, ^uint32(0))
}

// Post increments the semaphore and wakes one waiter if any are parked.
func (s *Semaphore) Post() {
	atomic.AddUint32(&s.val, 1)
	if atomic.LoadUint32(&s.waiting) > 0 {
		s.sys.FutexWake(&s.val, 1)
	}
}
