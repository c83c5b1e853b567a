// Package cpu implements the NR32 RV32IMAC core: a single-HART,
// tagged-union-dispatch interpreter with a two-level decoded-instruction
// page cache, the CSR set the kernel trap path needs, and LR/SC atomic
// reservation semantics. Grounded on the reference src/cpu.rs and
// src/cpu/decoder.rs, redesigned per the Design Notes to avoid both
// function-pointer dispatch and package-level singleton state.
package cpu

import (
	"fmt"

	"github.com/nr32/nr32emu/emu/bus"
)

// MCause values this core can raise. Interrupts set the top bit.
const (
	causeInterruptBit = uint32(1) << 31
	CauseMachineTimer  = causeInterruptBit | 7
	CauseMachineExt    = causeInterruptBit | 11
	CauseIllegalInstr  = 2
	CauseECALLFromU    = 8
	CauseECALLFromM    = 11
)

// mstatus bit positions this core actually uses.
const (
	mstatusMIEBit  = 1 << 3
	mstatusMPIEBit = 1 << 7
	mstatusMPPMask = 0x3 << 11
	mstatusMPPUser = 0 << 11
)

// Fault is a fatal CPU condition: unknown opcode, misaligned access,
// fetch outside RAM/ROM, or reservation corruption.
type Fault struct {
	PC  uint32
	Msg string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("cpu fault @ pc=0x%08x: %s", f.PC, f.Msg)
}

// Cpu holds the one HART's architectural state. It is owned by value by
// the Machine aggregate, never a package-level global.
type Cpu struct {
	regs [32]uint32
	pc   uint32

	mstatus  uint32
	mie      uint32
	mip      uint32
	mtvec    uint32
	mepc     uint32
	mscratch uint32
	mcause   uint32

	reservationValid bool
	reservationAddr  uint32

	bus   *bus.Bus
	cache *PageCache

	// external IRQ lines, refreshed by the machine driver loop each
	// instruction from the timer and interrupt controller.
	mtip bool
	meip bool
}

// New builds a Cpu wired to bus b, with its decoded-page cache backed by
// b's RAM/ROM.
func New(b *bus.Bus) *Cpu {
	c := &Cpu{bus: b}
	c.cache = NewPageCache(&busPageFetcher{bus: b})
	b.SetInvalidateHook(func(addr uint32) { c.cache.Invalidate() })
	return c
}

type busPageFetcher struct{ bus *bus.Bus }

func (f *busPageFetcher) FetchPage(base uint32) ([]byte, bool) {
	buf := make([]byte, PageSize+4)
	switch {
	case base < bus.RAMBase+bus.RAMSize:
		ram := f.bus.RAMSlice()
		n := copy(buf, ram[base:])
		fillFF(buf[n:])
		// lookahead word: if it runs into ROM or past RAM, try a word load
		if n < len(buf) {
			w, err := f.bus.LoadWord((base + uint32(n)) &^ 3)
			if err == nil {
				putExtra(buf, n, w)
			}
		}
		return buf, true
	case base >= bus.ROMBase && base < bus.ROMBase+bus.ROMSize:
		rom := f.bus.ROMSlice()
		off := base - bus.ROMBase
		n := copy(buf, rom[off:])
		fillFF(buf[n:])
		return buf, true
	default:
		return nil, false
	}
}

func fillFF(b []byte) {
	for i := range b {
		b[i] = 0xFF
	}
}

func putExtra(buf []byte, at int, w uint32) {
	tmp := []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
	copy(buf[at:], tmp)
}

// PC returns the current program counter.
func (c *Cpu) PC() uint32 { return c.pc }

// SetPC forces the program counter (used by the bootloader and scheduler
// context switches).
func (c *Cpu) SetPC(pc uint32) { c.pc = pc }

// X returns general-purpose register i (x0 always reads 0).
func (c *Cpu) X(i uint8) uint32 {
	if i == 0 {
		return 0
	}
	return c.regs[i]
}

// SetX writes general-purpose register i; writes to x0 are discarded.
func (c *Cpu) SetX(i uint8, v uint32) {
	if i == 0 {
		return
	}
	c.regs[i] = v
}

// CSR accessors used by the scheduler and trap path.
func (c *Cpu) MStatus() uint32     { return c.mstatus }
func (c *Cpu) SetMStatus(v uint32) { c.mstatus = v }
func (c *Cpu) MIE() uint32         { return c.mie }
func (c *Cpu) SetMIE(v uint32)     { c.mie = v }
func (c *Cpu) MTVec() uint32       { return c.mtvec }
func (c *Cpu) SetMTVec(v uint32)   { c.mtvec = v }
func (c *Cpu) MEPC() uint32        { return c.mepc }
func (c *Cpu) SetMEPC(v uint32)    { c.mepc = v }
func (c *Cpu) MScratch() uint32    { return c.mscratch }
func (c *Cpu) SetMScratch(v uint32) { c.mscratch = v }
func (c *Cpu) MCause() uint32      { return c.mcause }

// SetExternalIRQs is called once per instruction by the machine driver
// loop to feed in the timer's MTIP and the interrupt controller's MEIP.
func (c *Cpu) SetExternalIRQs(mtip, meip bool) {
	c.mtip = mtip
	c.meip = meip
}

// Cache exposes the decoded-page cache for tests and diagnostics.
func (c *Cpu) Cache() *PageCache { return c.cache }

// InvalidateReservationRange clears the LR/SC reservation if it falls
// within [lo, hi) — the DMA engine's explicit codification of the
// "any incompatible store observed through the bus" rule, resolving the
// open question about implicit DMA reservation invalidation.
func (c *Cpu) InvalidateReservationRange(lo, hi uint32) {
	if c.reservationValid && c.reservationAddr >= lo && c.reservationAddr < hi {
		c.reservationValid = false
	}
}

// pendingInterruptCause reports the cause of an enabled pending
// interrupt, if any, gated by MSTATUS.MIE.
func (c *Cpu) pendingInterruptCause() (uint32, bool) {
	if c.mstatus&mstatusMIEBit == 0 {
		return 0, false
	}
	if c.mtip && c.mie&(1<<7) != 0 {
		return CauseMachineTimer, true
	}
	if c.meip && c.mie&(1<<11) != 0 {
		return CauseMachineExt, true
	}
	return 0, false
}

// enterTrap saves pc to mepc, sets mcause, clears MIE (after saving it
// into MPIE), forces MPP to machine mode semantics are implicit (NR32
// has only M/U, modeled by MPP bit meaning "privilege to restore on
// MRET"), and jumps to mtvec.
func (c *Cpu) enterTrap(cause uint32) {
	c.mepc = c.pc
	c.mcause = cause
	c.reservationValid = false
	if c.mstatus&mstatusMIEBit != 0 {
		c.mstatus |= mstatusMPIEBit
	} else {
		c.mstatus &^= mstatusMPIEBit
	}
	c.mstatus &^= mstatusMIEBit
	c.pc = c.mtvec
}

// MRET restores MSTATUS.MIE from MPIE and jumps to mepc.
func (c *Cpu) mret() {
	if c.mstatus&mstatusMPIEBit != 0 {
		c.mstatus |= mstatusMIEBit
	} else {
		c.mstatus &^= mstatusMIEBit
	}
	c.mstatus |= mstatusMPIEBit
	c.pc = c.mepc
}

// DropToUser lowers privilege and re-enables interrupts, the way the
// scheduler does when dispatching a user task via MRET: sets MPP=User,
// MPIE=1, and mepc to the task's entry/resume PC.
func (c *Cpu) DropToUser(entryPC uint32) {
	c.mstatus &^= mstatusMPPMask
	c.mstatus |= mstatusMPPUser
	c.mstatus |= mstatusMPIEBit
	c.mepc = entryPC
}

// Step executes exactly one instruction (or enters a trap, which also
// counts as the step), per the CPU core's single "step" operation.
// ecallHook runs the kernel's syscall dispatcher on ECALL, with the trap
// already entered and mepc pointing past the ECALL; the CPU then returns
// as MRET does, to whatever mepc the hook left. trapHook is the kernel's
// interrupt trap handler: since NR32 has no real trap-handler machine
// code resident at mtvec, the Machine driver loop supplies it directly,
// matching the architecture note that the kernel is "one value ... passed
// explicitly to every trap handler" rather than guest-executed trampoline
// code. When trapHook is set the CPU returns via MRET after it; when it
// is nil the CPU is left at mtvec.
func (c *Cpu) Step(ecallHook func(), trapHook func(cause uint32)) error {
	if cause, ok := c.pendingInterruptCause(); ok {
		c.enterTrap(cause)
		if trapHook != nil {
			trapHook(cause)
			c.mret()
		}
		return nil
	}

	in, nextPC, ok := c.cache.Lookup(c.pc)
	if !ok {
		return &Fault{PC: c.pc, Msg: "fetch outside RAM/ROM"}
	}
	if in.Op == OpIllegal {
		return &Fault{PC: c.pc, Msg: "illegal instruction"}
	}

	return c.execute(in, nextPC, ecallHook)
}
