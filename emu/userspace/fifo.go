package userspace

import "sync/atomic"

// Fifo is a bounded multi-producer multi-consumer queue using Vyukov's
// sequence-numbered slot algorithm, sized at construction to a power of
// two. Blocking Push/Pop gate on two counting semaphores (empty_cells,
// filled_cells) before entering the non-blocking try_push/try_pop core,
// per §4.12.
type Fifo struct {
	mask uint64
	buf  []cell

	writeIdx uint64
	readIdx  uint64

	emptyCells  *Semaphore
	filledCells *Semaphore
}

type cell struct {
	seq atomic.Uint64
	val any
}

// NewFifo builds a Fifo of capacity n, which must be a power of two.
func NewFifo(sys Syscaller, n int) *Fifo {
	if n <= 0 || n&(n-1) != 0 {
		panic("userspace: Fifo capacity must be a power of two")
	}
	f := &Fifo{
		mask:        uint64(n - 1),
		buf:         make([]cell, n),
		emptyCells:  NewSemaphore(sys, uint32(n)),
		filledCells: NewSemaphore(sys, 0),
	}
	for i := range f.buf {
		f.buf[i].seq.Store(uint64(i))
	}
	return f
}

// TryPush attempts a non-blocking enqueue, failing if the queue is full.
func (f *Fifo) TryPush(v any) bool {
	if !f.emptyCells.TryWait() {
		return false
	}
	f.pushCore(v)
	f.filledCells.Post()
	return true
}

// Push blocks until space is available, then enqueues v.
func (f *Fifo) Push(v any) {
	f.emptyCells.Wait()
	f.pushCore(v)
	f.filledCells.Post()
}

// pushCore claims a write ticket by CAS against the slot's sequence
// number, per the Vyukov algorithm: a slot is claimable for ticket t the
// moment its seq reads exactly t, i.e. the previous cycle's consumer has
// re-armed it.
func (f *Fifo) pushCore(v any) {
	for {
		pos := atomic.LoadUint64(&f.writeIdx)
		c := &f.buf[pos&f.mask]
		seq := c.seq.Load()
		if seq == pos {
			if atomic.CompareAndSwapUint64(&f.writeIdx, pos, pos+1) {
				c.val = v
				c.seq.Store(pos + 1)
				return
			}
		}
	}
}

// TryPop attempts a non-blocking dequeue, failing if the queue is empty.
func (f *Fifo) TryPop() (any, bool) {
	if !f.filledCells.TryWait() {
		return nil, false
	}
	v := f.popCore()
	f.emptyCells.Post()
	return v, true
}

// Pop blocks until an element is available, then dequeues it.
func (f *Fifo) Pop() any {
	f.filledCells.Wait()
	v := f.popCore()
	f.emptyCells.Post()
	return v
}

func (f *Fifo) popCore() any {
	for {
		pos := atomic.LoadUint64(&f.readIdx)
		c := &f.buf[pos&f.mask]
		seq := c.seq.Load()
		if seq == pos+1 {
			if atomic.CompareAndSwapUint64(&f.readIdx, pos, pos+1) {
				v := c.val
				c.val = nil
				c.seq.Store(pos + f.mask + 1)
				return v
			}
		}
	}
}
