package kernel

import (
	"github.com/nr32/nr32emu/emu/cpu"
	"github.com/nr32/nr32emu/emu/heap"
	"github.com/nr32/nr32emu/emu/timer"
)

// MTimeHz is the system timer's tick rate as seen by the scheduler,
// supplied by the machine at construction (CPU_FREQ / MTimeCPUClkDiv).
//
// RoundRobinQuantum is MTimeHz/120, the maximum slice a task may hold
// while an equal-priority task is runnable.
func RoundRobinQuantum(mtimeHz uint64) uint64 { return mtimeHz / 120 }

// idleStackSize resolves the open question "what stack does the idle
// task get": 128 bytes, enough for a WFI spin loop's own frame and
// nothing else, since the idle task never calls into user code.
const idleStackSize = 128

// Kernel is the single-HART scheduler and syscall dispatcher, owned by
// value by Machine and threaded explicitly through the trap path — never
// a package-level singleton.
type Kernel struct {
	cpu   *cpu.Cpu
	mt    *timer.Timer
	tasks []Task
	cur   int

	mtimeHz uint64
	tick    uint64

	sysHeap  *heap.Heap
	userHeap *heap.Heap

	ramBase uint32
	nextTaskStackArena uint32 // bump allocator for task stacks, carved from the region the bootscript's HEAP record reserved for them
	stackArenaLimit    uint32
}

// New builds a Kernel with only the idle task installed. Call Start once
// the bootscript has configured the heaps.
func New(c *cpu.Cpu, mt *timer.Timer, mtimeHz uint64, sysHeap, userHeap *heap.Heap, idleStackBase uint32) *Kernel {
	k := &Kernel{
		cpu:      c,
		mt:       mt,
		mtimeHz:  mtimeHz,
		sysHeap:  sysHeap,
		userHeap: userHeap,
	}
	idle := Task{
		State:     StateRunning,
		Kind:      KindSystem,
		Priority:  PriorityMin,
		Name:      [4]byte{'i', 'd', 'l', 'e'},
		Stack:     make([]byte, idleStackSize),
		StackBase: idleStackBase,
	}
	k.tasks = append(k.tasks, idle)
	k.cur = 0
	return k
}

// SetStackArena configures the address range new task stacks are carved
// from, sized by the bootscript's HEAP record for task stacks.
func (k *Kernel) SetStackArena(base, length uint32) {
	k.nextTaskStackArena = base
	k.stackArenaLimit = base + length
}

// Start installs the idle task as the running context and drops the CPU
// into it. The idle task's entry point is the machine's idle loop
// (typically a WFI spin). No guest MRET runs at boot, so Start applies
// its effect directly: PC moves to the idle entry and MSTATUS.MIE is
// raised from the MPIE bit DropToUser sets.
func (k *Kernel) Start(idleEntry uint32) {
	idle := &k.tasks[0]
	idle.PC = idleEntry
	idle.SP = idle.StackBase + uint32(len(idle.Stack))
	k.cpu.SetMScratch(idle.SP)
	k.cpu.DropToUser(idleEntry)
	k.cpu.SetPC(idleEntry)
	k.cpu.SetMStatus(k.cpu.MStatus() | (1 << 3)) // MIE
}

// Tasks exposes the table read-only, for tests and the debug console.
func (k *Kernel) Tasks() []Task { return k.tasks }

// CurrentIndex returns the currently running task's slot.
func (k *Kernel) CurrentIndex() int { return k.cur }

func (k *Kernel) allocStack(size uint32) (uint32, []byte, bool) {
	if k.nextTaskStackArena+size > k.stackArenaLimit {
		return 0, nil, false
	}
	base := k.nextTaskStackArena
	k.nextTaskStackArena += size
	return base, make([]byte, size), true
}

// findDeadSlot returns a reusable Dead slot, or -1.
func (k *Kernel) findDeadSlot() int {
	for i := 1; i < len(k.tasks); i++ {
		if k.tasks[i].State == StateDead {
			return i
		}
	}
	return -1
}

// SpawnTask creates a new task per §4.10: trampoline register to land in
// a0=data, a1=entry, gp=gp, ra=trampolineAddr, sp=top of its new stack.
// Returns the new task's index (the syscall-visible task id).
func (k *Kernel) SpawnTask(kind Kind, entry, data uint32, prio int32, stackSize, gp uint32, name [4]byte, trampolineAddr uint32) (int, bool) {
	base, stack, ok := k.allocStack(stackSize)
	if !ok {
		return 0, false
	}
	t := Task{
		State:     StateRunning,
		Kind:      kind,
		Priority:  prio,
		Name:      name,
		Stack:     stack,
		StackBase: base,
		SP:        base + stackSize,
		GP:        gp,
		PC:        entry,
	}
	t.Frame[regA0] = data
	t.Frame[regA1] = entry
	t.Frame[regRA] = trampolineAddr

	if idx := k.findDeadSlot(); idx >= 0 {
		k.tasks[idx] = t
		return idx, true
	}
	k.tasks = append(k.tasks, t)
	return len(k.tasks) - 1, true
}

// register frame slot indices, per the explicit trampoline frame layout:
// x0 unused (hardwired zero), x2 (sp) and x3 (gp) carried in dedicated
// Task fields rather than the frame array.
const (
	regRA = 1
	regA0 = 10
	regA1 = 11
)

// ExitCurrentTask marks the running task Dead and frees its stack. The
// idle task may never exit.
func (k *Kernel) ExitCurrentTask() {
	if k.cur == 0 {
		return
	}
	t := &k.tasks[k.cur]
	t.State = StateDead
	t.Stack = nil
}

// SleepCurrentTask suspends the running task for the given tick count.
func (k *Kernel) SleepCurrentTask(ticks uint64) {
	t := &k.tasks[k.cur]
	t.State = StateSleeping
	t.SleepUntil = k.tick + ticks
}

// FutexWaitCurrentTask suspends the running task under addr, with an
// optional tick deadline (0 means no deadline).
func (k *Kernel) FutexWaitCurrentTask(addr uint32, deadline uint64) {
	t := &k.tasks[k.cur]
	t.State = StateFutexWait
	t.FutexAddr = addr
	t.SleepUntil = deadline
}

// CurrentTaskSetState moves the running task into WaitingForVSync or
// WaitingForInputDev.
func (k *Kernel) CurrentTaskSetState(s State) {
	k.tasks[k.cur].State = s
}

// WakeUpState transitions every task in state s to Running, reporting
// whether any were woken.
func (k *Kernel) WakeUpState(s State) bool {
	woke := false
	for i := range k.tasks {
		if k.tasks[i].State == s {
			k.tasks[i].State = StateRunning
			woke = true
		}
	}
	return woke
}

// FutexWake wakes up to n tasks blocked in FutexWait on addr, returning
// the count actually woken. Order among waiters is unspecified, matching
// the "futex wakes are FIFO-agnostic" guarantee.
func (k *Kernel) FutexWake(addr uint32, n int) int {
	woken := 0
	for i := range k.tasks {
		if woken >= n {
			break
		}
		if k.tasks[i].State == StateFutexWait && k.tasks[i].FutexAddr == addr {
			k.tasks[i].State = StateRunning
			woken++
		}
	}
	return woken
}

// saveCurrent snapshots mepc/mscratch (and the GPR file) into the current
// task's slot, per step 1 of the scheduling algorithm.
func (k *Kernel) saveCurrent() {
	t := &k.tasks[k.cur]
	t.PC = k.cpu.MEPC()
	t.SP = k.cpu.MScratch()
	for i := 1; i < frameSize; i++ {
		if i == 2 || i == 3 { // sp, gp carried separately
			continue
		}
		t.Frame[i] = k.cpu.X(uint8(i))
	}
	t.GP = k.cpu.X(3)
}

// restoreNext loads the target task's saved context back into the CPU
// and arms MRET to drop into it.
func (k *Kernel) restoreNext(idx int) {
	t := &k.tasks[idx]
	for i := 1; i < frameSize; i++ {
		if i == 2 || i == 3 {
			continue
		}
		k.cpu.SetX(uint8(i), t.Frame[i])
	}
	k.cpu.SetX(2, t.SP)
	k.cpu.SetX(3, t.GP)
	k.cpu.SetMScratch(t.SP)
	k.cpu.DropToUser(t.PC)
	t.State = StateRunning
}

// wakeSleepers promotes every Sleeping/FutexWait task whose deadline has
// elapsed, per step 2.
func (k *Kernel) wakeSleepers(now uint64) {
	for i := range k.tasks {
		t := &k.tasks[i]
		switch t.State {
		case StateSleeping:
			if t.SleepUntil <= now {
				t.State = StateRunning
			}
		case StateFutexWait:
			if t.SleepUntil != 0 && t.SleepUntil <= now {
				t.State = StateRunning // Timeout: spurious-wake-safe, caller re-checks
			}
		}
	}
}

// pickNext selects the highest-priority runnable task starting the scan
// at (current+1) mod N, falling back to idle (slot 0) if nothing else is
// runnable.
func (k *Kernel) pickNext() int {
	n := len(k.tasks)
	best := -1
	for off := 1; off <= n; off++ {
		i := (k.cur + off) % n
		if i == 0 {
			continue // idle only picked if nothing else qualifies
		}
		if k.tasks[i].State != StateRunning {
			continue
		}
		if best == -1 || k.tasks[i].Priority > k.tasks[best].Priority {
			best = i
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

// computeDeadline implements step 4: the next preemption deadline.
func (k *Kernel) computeDeadline(now uint64, next int) uint64 {
	quantum := RoundRobinQuantum(k.mtimeHz)
	deadline := now + k.mtimeHz // safety upper bound: now + 1 second

	nextPrio := k.tasks[next].Priority
	for i := range k.tasks {
		if i == next {
			continue
		}
		t := &k.tasks[i]
		switch t.State {
		case StateRunning:
			if t.Priority == nextPrio {
				if d := now + quantum; d < deadline {
					deadline = d
				}
			}
		case StateSleeping:
			if t.Priority > nextPrio {
				if t.SleepUntil < deadline {
					deadline = t.SleepUntil
				}
			} else if t.Priority == nextPrio {
				if d := now + quantum; d < deadline {
					deadline = d
				}
			}
		}
	}
	return deadline
}

// Schedule runs the full scheduling algorithm (§4.10) and switches to
// whichever task it selects, arming mtimecmp for the next preemption.
func (k *Kernel) Schedule() {
	k.saveCurrent()

	now := k.mt.MTime()
	k.tick = now
	k.wakeSleepers(now)

	next := k.pickNext()
	deadline := k.computeDeadline(now, next)
	k.mt.SetMTimeCmp(deadline)
	k.cpu.SetMIE(k.cpu.MIE() | (1 << 7)) // MTIE

	k.cur = next
	k.restoreNext(next)
}
