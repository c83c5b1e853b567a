// Package kernel implements the NR32 minimal preemptive scheduler: a
// fixed task table, priority/round-robin selection driven off the system
// timer, and the ECALL syscall dispatcher. Grounded on the reference
// nr32-sys/src/task.rs and nr32-sys/src/syscall.rs; redesigned as one
// Kernel value owned by Machine rather than package-level singleton
// state, per the architecture's single-owning-aggregate rule.
package kernel

// State is one task's scheduling state.
type State int

const (
	StateDead State = iota
	StateRunning
	StateSleeping
	StateWaitingForVSync
	StateWaitingForInputDev
	StateWaitingForDMA
	StateFutexWait
)

func (s State) String() string {
	switch s {
	case StateDead:
		return "Dead"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateWaitingForVSync:
		return "WaitingForVSync"
	case StateWaitingForInputDev:
		return "WaitingForInputDev"
	case StateWaitingForDMA:
		return "WaitingForDMA"
	case StateFutexWait:
		return "FutexWait"
	default:
		return "Unknown"
	}
}

// Kind distinguishes the idle/system task from ordinary user tasks.
type Kind int

const (
	KindSystem Kind = iota
	KindUser
)

// PriorityMin is the idle task's fixed, never-scheduled-unless-starved
// priority.
const PriorityMin = int32(-1 << 31)

// frameSize is the number of word-sized slots a register frame occupies.
// x2 (sp) and x3 (gp) are carried in dedicated Task fields rather than in
// the frame array, matching the explicit frame layout the assembly
// trampoline documents: offsets 0..31 x word size, with x2/x3 reserved.
const frameSize = 32

// Task is one scheduler table entry. The kernel owns full GPR snapshots
// directly (Frame) rather than pushing them onto the task's own stack the
// way a real assembly trampoline would: the emulator already has direct
// access to the one Cpu value's register file, so there is no need to
// round-trip through memory to save a context switch.
type Task struct {
	State State
	Kind  Kind

	Priority int32
	Name     [4]byte

	Stack     []byte
	StackBase uint32 // address of Stack[0] in the bus address space
	SP        uint32 // banked stack pointer (x2)
	GP        uint32 // banked global pointer (x3)
	PC        uint32 // saved program counter, valid when not Running
	Frame     [frameSize]uint32

	SleepUntil uint64 // wake tick when Sleeping; FutexWait deadline (0 = none)
	FutexAddr  uint32 // valid when State == StateFutexWait

	roundRobinTick uint64 // unused; pickNext breaks priority ties by scan order
}
