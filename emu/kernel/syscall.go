package kernel

import (
	"github.com/nr32/nr32emu/emu/bus"
	"github.com/nr32/nr32emu/emu/device"
)

// Syscall numbers, contractual per §4.11.
const (
	SysSleep        = 0x01
	SysWaitForVSync = 0x02
	SysSpawnTask    = 0x03
	SysExit         = 0x04
	SysAlloc        = 0x05
	SysFree         = 0x06
	SysInputDev     = 0x07
	SysDbgPuts      = 0x08
	SysShutdown     = 0x09
	SysFutexWait    = 0x0A
	SysFutexWake    = 0x0B
	SysDoDMA        = 0x0C
)

// Outcome tells the trap trampoline whether to restore the caller's
// frame (Return), a different task entirely (Preempted), or nothing at
// all because the caller just exited (DeadTask).
type Outcome int

const (
	Return Outcome = iota
	Preempted
	DeadTask
)

// InputDevExchanger is the subset of emu/inputdev's surface the INPUT_DEV
// syscall drives.
type InputDevExchanger interface {
	PushTx(b byte) bool
	PopRx() (byte, bool)
}

// DMAStarter is the subset of emu/dma's surface the DO_DMA syscall
// drives.
type DMAStarter interface {
	Busy() bool
	Start(src, dst, lenWords uint32) bool
}

// DebugWriter routes DBG_PUTS bytes to the host console.
type DebugWriter interface {
	WriteDebug(b []byte)
}

// Shutdowner lets SHUTDOWN halt the machine driver loop.
type Shutdowner interface {
	RequestShutdown(code uint16)
}

// Deps bundles the peripherals the dispatcher needs beyond the CPU and
// bus, so Kernel itself stays free of direct MMIO wiring.
type Deps struct {
	InputDev InputDevExchanger
	DMA      DMAStarter
	Debug    DebugWriter
	Shutdown Shutdowner
}

// trampolineAddr is where a spawned task's `ra` points; emu/machine
// passes the bootscript's EXEC entry point. Kernel only needs the value
// to thread through SpawnTask.
func (k *Kernel) Dispatch(deps Deps, trampolineAddr uint32, b *bus.Bus) Outcome {
	a0 := k.cpu.X(10)
	a1 := k.cpu.X(11)
	a2 := k.cpu.X(12)
	a3 := k.cpu.X(13)
	a4 := k.cpu.X(14)
	a5 := k.cpu.X(15)
	num := k.cpu.X(17)

	// ECALL already advanced mepc by 4 via the CPU's normal nextPC path.

	ret := func(val uint32) {
		k.cpu.SetX(10, val)
		k.cpu.SetX(11, 0)
	}
	fail := func(e device.Errno) {
		k.cpu.SetX(10, 0xFFFFFFFF)
		k.cpu.SetX(11, e.Code())
	}

	switch num {
	case SysSleep:
		ticks := uint64(a1)<<32 | uint64(a0)
		if ticks == 0 {
			k.Schedule()
			return Preempted
		}
		k.SleepCurrentTask(ticks)
		fail(device.Timeout)
		k.Schedule()
		return Preempted

	case SysWaitForVSync:
		k.CurrentTaskSetState(StateWaitingForVSync)
		ret(device.OK.Code())
		k.Schedule()
		return Preempted

	case SysSpawnTask:
		var name [4]byte
		name[0] = byte(a5)
		name[1] = byte(a5 >> 8)
		name[2] = byte(a5 >> 16)
		name[3] = byte(a5 >> 24)
		idx, ok := k.SpawnTask(KindUser, a0, a1, int32(a2), a3, a4, name, trampolineAddr)
		if !ok {
			fail(device.NoMem)
		} else {
			ret(uint32(idx))
		}

	case SysExit:
		k.ExitCurrentTask()
		k.Schedule()
		return DeadTask

	case SysAlloc:
		ptr, ok := k.userHeap.Alloc(a0, a1)
		if !ok {
			fail(device.NoMem)
		} else {
			ret(ptr)
		}

	case SysFree:
		if !k.userHeap.Free(a0) {
			fail(device.Invalid)
		} else {
			ret(0)
		}

	case SysInputDev:
		if a2 > 16 {
			fail(device.TooLong)
			break
		}
		ram := b.RAMSlice()
		for i := uint32(0); i < a2; i++ {
			if !deps.InputDev.PushTx(ram[a1+i]) {
				fail(device.Busy)
				return Return
			}
		}
		ret(device.OK.Code())

	case SysDbgPuts:
		ram := b.RAMSlice()
		if a1 > uint32(len(ram))-a0 {
			fail(device.Invalid)
			break
		}
		deps.Debug.WriteDebug(ram[a0 : a0+a1])
		ret(a1)

	case SysShutdown:
		deps.Shutdown.RequestShutdown(uint16(a0))
		return Return

	case SysFutexWait:
		addr := a0
		expected := a1
		word, err := b.LoadWord(addr)
		if err != nil {
			fail(device.Invalid)
			break
		}
		if word != expected {
			fail(device.Again)
			break
		}
		deadline := uint64(0)
		if a2 != 0 || a3 != 0 {
			deadline = k.tick + (uint64(a3)<<32 | uint64(a2))
		}
		k.FutexWaitCurrentTask(addr, deadline)
		ret(device.OK.Code())
		k.Schedule()
		return Preempted

	case SysFutexWake:
		n := k.FutexWake(a0, int(a1))
		ret(uint32(n))

	case SysDoDMA:
		if deps.DMA.Busy() {
			fail(device.Busy)
			break
		}
		if !deps.DMA.Start(a0, a1, a2) {
			fail(device.Invalid)
			break
		}
		k.CurrentTaskSetState(StateWaitingForDMA)
		ret(device.OK.Code())
		k.Schedule()
		return Preempted

	default:
		fail(device.NoSys)
	}

	return Return
}
