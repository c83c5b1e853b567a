// Package machine assembles every NR32 subsystem into one owning
// aggregate: the bus, CPU, peripherals, kernel, and the lazy
// synchronization harness driving them, plus the bootloader that brings
// a ROM image to life. Grounded on the reference main.rs/machine.rs
// composition root; redesigned per the architecture note to hold every
// subsystem by value and thread a single mutable handle through every
// entry point instead of letting peripherals hold CPU back-references.
package machine

import (
	"encoding/binary"
	"fmt"

	"github.com/nr32/nr32emu/emu/bus"
	"github.com/nr32/nr32emu/emu/console"
	"github.com/nr32/nr32emu/emu/cpu"
	"github.com/nr32/nr32emu/emu/device"
	"github.com/nr32/nr32emu/emu/dma"
	"github.com/nr32/nr32emu/emu/gpu"
	"github.com/nr32/nr32emu/emu/heap"
	"github.com/nr32/nr32emu/emu/inputdev"
	"github.com/nr32/nr32emu/emu/irqctrl"
	"github.com/nr32/nr32emu/emu/kernel"
	"github.com/nr32/nr32emu/emu/spu"
	"github.com/nr32/nr32emu/emu/sync"
	"github.com/nr32/nr32emu/emu/timer"
)

// CPUFreq is NR32's notional clock rate, the basis for every derived
// peripheral rate (MTime, VSync, SPU sample rate).
const CPUFreq = 100_000_000

// cyclesPerInstr is the fixed cost this emulator charges every
// instruction, a deliberate simplification of the reference's
// per-opcode cycle table: it keeps the sync harness's bookkeeping
// exercised (see gpu/spu/inputdev batching below) without modeling
// pipeline timing the spec never asks for.
const cyclesPerInstr = 1

// Batch periods (in cycles) at which non-timing-critical peripherals are
// resynced through the lazy harness, rather than every single cycle.
const (
	gpuSyncPeriod      = 64
	spuSyncPeriod      = 32
	inputDevSyncPeriod = 16
)

// sysTimerSyncPeriod is the system timer's resync period, deliberately
// pinned to MTimeCPUClkDiv: mtime advances once per this many CPU
// cycles, so resyncing at exactly that period lets Timer.Tick receive a
// whole mtime tick every call with no fractional remainder to track.
const sysTimerSyncPeriod = timer.MTimeCPUClkDiv

// Machine owns every subsystem by value (pointers to heap-allocated
// structs, but never shared ownership) and is the one mutable handle
// peripherals call back through.
type Machine struct {
	Bus     *bus.Bus
	CPU     *cpu.Cpu
	IRQCtrl *irqctrl.Controller
	Timer   *timer.Timer
	GPU     *gpu.Gpu
	SPU     *spu.Spu
	Input   *inputdev.InputDev
	DMA     *dma.Engine
	Console *console.Console
	Kernel  *kernel.Kernel

	touch *inputdev.Touchscreen

	harness *sync.Harness

	trampolineAddr uint32
	idleEntry      uint32
}

// VideoSink is the host callback surface the GPU drives.
type VideoSink interface {
	gpu.DrawSink
	gpu.DisplaySink
}

// New builds a Machine with every peripheral attached to the bus but not
// yet booted; call Boot with a ROM image to run the bootscript and start
// the scheduler.
func New(video VideoSink, audio spu.Sink, debugOut console.Sink) *Machine {
	m := &Machine{}
	m.Bus = bus.New()
	m.IRQCtrl = irqctrl.New()
	m.Timer = timer.New()
	m.touch = inputdev.NewTouchscreen()
	m.Input = inputdev.New(m.IRQCtrl, m.touch)
	m.GPU = gpu.New(video, video, m.IRQCtrl, CPUFreq/30)
	m.SPU = spu.New(audio, CPUFreq/44100)
	m.Console = console.New(debugOut)
	m.CPU = cpu.New(m.Bus)
	m.DMA = dma.New(m.Bus, m.GPU, m.IRQCtrl, m.CPU)

	m.Bus.Attach(bus.IRQCtrlBase, bus.IRQCtrlSize, m.IRQCtrl)
	m.Bus.Attach(bus.SysTimerBase, bus.SysTimerSize, m.Timer)
	m.Bus.Attach(bus.GPUBase, 0x10000, m.GPU)
	m.Bus.Attach(bus.SPUBase, 0x10000, m.SPU)
	m.Bus.Attach(bus.InputDevBase, 0x10000, m.Input)
	m.Bus.Attach(bus.DMABase, 0x10000, m.DMA)
	m.Bus.Attach(bus.DebugBase, bus.DebugSize, m.Console)

	m.harness = sync.New()
	m.harness.ScheduleNext(sync.SysTimer, sysTimerSyncPeriod)
	m.harness.ScheduleNext(sync.Gpu, gpuSyncPeriod)
	m.harness.ScheduleNext(sync.Spu, spuSyncPeriod)
	m.harness.ScheduleNext(sync.InputDev, inputDevSyncPeriod)
	m.harness.ScheduleNone(sync.Dma)

	return m
}

// Touchscreen exposes the input device's downstream endpoint so a host
// UI can feed real touch coordinates in.
func (m *Machine) Touchscreen() *inputdev.Touchscreen { return m.touch }

var errBadMagic = fmt.Errorf("machine: ROM missing NR32CRT0 magic")

// LoadROM installs img as ROM and interprets its bootscript, per §6: a
// "NR32CRT0" magic at offset 0, then 16-byte COPY/ZERO/HEAP/EXEC records
// starting at offset 0x10, terminated by code 0xFFFFFFFF.
func (m *Machine) LoadROM(img []byte) error {
	if len(img) < 0x10 || string(img[0:8]) != "NR32CRT0" {
		return errBadMagic
	}
	m.Bus.LoadROM(img)

	var sysHeapBase, sysHeapLen uint32
	var userHeapBase, userHeapLen uint32
	haveSysHeap, haveUserHeap := false, false
	stackArenaBase, stackArenaLen := uint32(0), uint32(0)

	off := 0x10
recordLoop:
	for off+16 <= len(img) {
		code := binary.LittleEndian.Uint32(img[off : off+4])
		p0 := binary.LittleEndian.Uint32(img[off+4 : off+8])
		p1 := binary.LittleEndian.Uint32(img[off+8 : off+12])
		p2 := binary.LittleEndian.Uint32(img[off+12 : off+16])
		off += 16

		switch code {
		case 0xFFFFFFFF:
			break recordLoop
		case bootCOPY:
			m.bootCopy(p0, p1, p2)
		case bootZERO:
			m.bootZero(p0, p1)
		case bootHEAP:
			// First HEAP record sizes the system heap, second sizes the
			// task-stack arena, third (if present) the user heap —
			// matching the bootscript's documented "reserved for" order
			// since the format carries no heap-identity tag of its own.
			switch {
			case !haveSysHeap:
				sysHeapBase, sysHeapLen = p0, p1
				haveSysHeap = true
			case stackArenaLen == 0:
				stackArenaBase, stackArenaLen = p0, p1
			case !haveUserHeap:
				userHeapBase, userHeapLen = p0, p1
				haveUserHeap = true
			}
		case bootEXEC:
			// entry doubles as the idle task's start PC and, per the exit
			// trampoline convention, the address every spawned task's ra
			// points at.
			m.trampolineAddr = p0
			m.idleEntry = p0
		default:
			// %-prefixed / user-reserved codes: no kernel-side meaning.
		}
	}
	sysHeap := &heap.Heap{}
	if haveSysHeap {
		sysHeap.Init(m.Bus.RAMSlice(), int(sysHeapBase), int(sysHeapLen))
	}
	userHeap := &heap.Heap{}
	if haveUserHeap {
		userHeap.Init(m.Bus.RAMSlice(), int(userHeapBase), int(userHeapLen))
	}

	const idleStackBase = 0x100 // fixed low reservation, outside both heaps and the bootscript-configured arena
	m.Kernel = kernel.New(m.CPU, m.Timer, CPUFreq/timer.MTimeCPUClkDiv, sysHeap, userHeap, idleStackBase)
	if stackArenaLen > 0 {
		m.Kernel.SetStackArena(stackArenaBase, stackArenaLen)
	}
	return nil
}

const (
	bootCOPY = 0x59504F43 // "COPY" little-endian
	bootZERO = 0x4F52455A // "ZERO"
	bootHEAP = 0x50414548 // "HEAP"
	bootEXEC = 0x43455845 // "EXEC"
)

func (m *Machine) bootCopy(src, dst, length uint32) {
	for i := uint32(0); i < length; i += 4 {
		if i+4 > length {
			break
		}
		w, err := m.Bus.LoadWord(src + i)
		if err != nil {
			break
		}
		_ = m.Bus.StoreWord(dst+i, w)
	}
}

func (m *Machine) bootZero(dst, length uint32) {
	for i := uint32(0); i < length; i += 4 {
		if i+4 > length {
			break
		}
		_ = m.Bus.StoreWord(dst+i, 0)
	}
}

// Start drops the CPU into the idle task, per §4.10's start() entry
// point. Call after LoadROM.
func (m *Machine) Start() {
	m.Kernel.Start(m.idleEntry)
}

// Run drives the machine for up to maxSteps instructions, or until the
// guest writes the shutdown port. halted reports whether the guest
// actually halted (via ShutdownRequested) as opposed to Run simply
// exhausting its step budget; code is only meaningful when halted is
// true, since a legitimate guest shutdown code of 0 must still be
// distinguishable from "still running".
func (m *Machine) Run(maxSteps uint64) (code uint16, halted bool, fault error) {
	for i := uint64(0); i < maxSteps; i++ {
		m.harness.Advance(cyclesPerInstr)
		m.harness.HandleEvents(m.dispatchToken)

		m.CPU.SetExternalIRQs(m.Timer.IRQPending(), m.IRQCtrl.Active())

		if err := m.CPU.Step(m.ecallHook, m.trapHook); err != nil {
			m.Console.WriteDebug([]byte("!PANIC! " + err.Error()))
			return 0, false, err
		}

		if c, ok := m.Console.ShutdownRequested(); ok {
			return c, true, nil
		}
	}
	return 0, false, nil
}

func (m *Machine) dispatchToken(tok sync.Token) {
	elapsed := m.harness.Resync(tok)
	switch tok {
	case sync.SysTimer:
		m.Timer.Tick(elapsed / timer.MTimeCPUClkDiv)
		m.harness.ScheduleNext(tok, sysTimerSyncPeriod)
	case sync.Gpu:
		m.GPU.Tick(elapsed)
		m.harness.ScheduleNext(tok, gpuSyncPeriod)
	case sync.Spu:
		m.SPU.Tick(elapsed)
		m.harness.ScheduleNext(tok, spuSyncPeriod)
	case sync.InputDev:
		m.Input.Tick(elapsed)
		m.harness.ScheduleNext(tok, inputDevSyncPeriod)
	case sync.Dma:
		if m.DMA.Busy() {
			m.DMA.RunCycles(elapsed)
		}
		if m.DMA.Busy() {
			m.harness.ScheduleNext(tok, 1)
		} else {
			m.harness.ScheduleNone(tok)
		}
	}
}

// ecallHook is the kernel's syscall dispatcher, wired in as the CPU's
// ECALL hook. A Preempted or DeadTask outcome has already switched the
// CPU to the next task via Kernel.Schedule(); this only needs to arm the
// DMA token if the syscall just started a transfer.
func (m *Machine) ecallHook() {
	deps := kernel.Deps{
		InputDev: m.Input,
		DMA:      m.DMA,
		Debug:    m.Console,
		Shutdown: m.Console,
	}
	m.Kernel.Dispatch(deps, m.trampolineAddr, m.Bus)
	if m.DMA.Busy() {
		m.harness.ScheduleNext(sync.Dma, 1)
	}
}

func (m *Machine) trapHook(cause uint32) {
	switch cause {
	case cpu.CauseMachineTimer:
		m.Kernel.Schedule()
	case cpu.CauseMachineExt:
		m.ackExternalIRQs()
		m.Kernel.Schedule()
	}
}

// ackExternalIRQs wakes the tasks blocked on whichever edge-triggered
// lines are pending, then clears them (write-1-to-clear), per the
// controller's MMIO contract.
func (m *Machine) ackExternalIRQs() {
	pending := m.IRQCtrl.LoadWord(0)
	if pending&(1<<device.VSync.Bit()) != 0 {
		m.Kernel.WakeUpState(kernel.StateWaitingForVSync)
	}
	if pending&(1<<device.InputDev.Bit()) != 0 {
		m.Kernel.WakeUpState(kernel.StateWaitingForInputDev)
	}
	if pending&(1<<device.DmaDone.Bit()) != 0 {
		m.Kernel.WakeUpState(kernel.StateWaitingForDMA)
	}
	m.IRQCtrl.StoreWord(0, pending)
}
