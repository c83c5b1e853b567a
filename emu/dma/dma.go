// Package dma implements the NR32 DMA engine: a three-register
// (src, dst, len_words) transfer engine with a 32-word internal FIFO,
// differing RAM/ROM read costs, and GPU-destination backpressure,
// grounded on the reference dma.rs.
package dma

import (
	"github.com/nr32/nr32emu/emu/bus"
	"github.com/nr32/nr32emu/emu/device"
)

const fifoCapacity = 32

const (
	regSrc      = 0x0
	regDst      = 0x4
	regLenWords = 0x8
)

// costs in cycles/word for each source kind.
const (
	ramCostPerWord = 1
	romCostPerWord = 20
)

// Target classifies a DMA endpoint address.
type Target int

const (
	TargetMemory Target = iota
	TargetGPU
)

// GPUSink is the subset of emu/gpu's surface the DMA engine needs to push
// words into the GPU command FIFO, including backpressure.
type GPUSink interface {
	// PushCommand attempts to enqueue a command word; ok is false when
	// the GPU's FIFO is full (backpressure).
	PushCommand(word uint32) (ok bool)
}

// IRQController is satisfied by emu/irqctrl.Controller.
type IRQController interface {
	Trigger(irq device.Interrupt)
}

// ReservationInvalidator lets the DMA engine codify the open question
// from the reference design: completed writes that overlap the CPU's
// current LR/SC reservation must explicitly invalidate it.
type ReservationInvalidator interface {
	InvalidateReservationRange(lo, hi uint32)
}

// Engine is the DMA engine's MMIO-facing and cycle-driven state.
type Engine struct {
	bus  *bus.Bus
	gpu  GPUSink
	irqs IRQController
	cpu  ReservationInvalidator

	src, dst uint32
	remWords uint32
	running  bool

	fifo      []uint32
	fifoCount int

	dstStart uint32
	dstCount uint32
}

// New builds a DMA engine wired to the given bus, GPU sink, and interrupt
// controller. cpu may be nil in tests that don't care about reservation
// invalidation.
func New(b *bus.Bus, gpu GPUSink, irqs IRQController, cpu ReservationInvalidator) *Engine {
	return &Engine{
		bus:  b,
		gpu:  gpu,
		irqs: irqs,
		cpu:  cpu,
		fifo: make([]uint32, 0, fifoCapacity),
	}
}

func classify(addr uint32) Target {
	if addr >= bus.GPUBase && addr < bus.GPUBase+0x10000 {
		return TargetGPU
	}
	return TargetMemory
}

func costPerWord(addr uint32) uint32 {
	if addr >= bus.ROMBase && addr < bus.ROMBase+bus.ROMSize {
		return romCostPerWord
	}
	return ramCostPerWord
}

// LoadWord implements bus.MMIO.
func (e *Engine) LoadWord(offset uint32) uint32 {
	switch offset {
	case regSrc:
		return e.src
	case regDst:
		return e.dst
	case regLenWords:
		return e.remWords
	default:
		return 0
	}
}

// StoreWord implements bus.MMIO. Writing len_words starts the transfer.
func (e *Engine) StoreWord(offset uint32, val uint32) {
	switch offset {
	case regSrc:
		e.src = val
	case regDst:
		e.dst = val
	case regLenWords:
		e.remWords = val
		e.running = val > 0
		e.fifo = e.fifo[:0]
		e.fifoCount = 0
		e.dstStart = e.dst
		e.dstCount = 0
	}
}

// Busy reports whether a transfer is in progress (used by DO_DMA to
// report Busy on a concurrent request).
func (e *Engine) Busy() bool { return e.running }

// Start programs and kicks off a transfer directly, the way the DO_DMA
// syscall drives this engine instead of three separate MMIO stores.
// Reports false (without starting anything) if lenWords is zero.
func (e *Engine) Start(src, dst, lenWords uint32) bool {
	if lenWords == 0 {
		return false
	}
	e.StoreWord(regSrc, src)
	e.StoreWord(regDst, dst)
	e.StoreWord(regLenWords, lenWords)
	return true
}

// RunCycles advances the engine by n cycles' worth of work, refilling the
// FIFO from the source and draining into the destination, honoring the
// RAM/ROM cost model and GPU backpressure. Returns true once the transfer
// has fully completed during this call.
func (e *Engine) RunCycles(n uint64) bool {
	if !e.running {
		return false
	}
	budget := n
	for budget > 0 && e.running {
		if e.fifoCount == 0 && e.remWords == 0 {
			e.finish()
			return true
		}
		if e.fifoCount < fifoCapacity && e.remWords > 0 {
			cost := uint64(costPerWord(e.src))
			if budget < cost {
				break
			}
			w, err := e.bus.LoadWord(e.src)
			if err != nil {
				w = 0
			}
			e.fifo = append(e.fifo, w)
			e.fifoCount++
			e.src += 4
			e.remWords--
			budget -= cost
			continue
		}
		if e.fifoCount > 0 {
			if !e.drainOne() {
				// destination backpressure (GPU FIFO full): stall
				break
			}
			budget--
			continue
		}
		break
	}
	if e.fifoCount == 0 && e.remWords == 0 {
		e.finish()
		return true
	}
	return false
}

func (e *Engine) drainOne() bool {
	w := e.fifo[0]
	target := classify(e.dst)
	if target == TargetGPU {
		if e.gpu == nil || !e.gpu.PushCommand(w) {
			return false
		}
	} else {
		_ = e.bus.StoreWord(e.dst, w)
	}
	e.fifo = e.fifo[1:]
	e.fifoCount--
	e.dst += 4
	e.dstCount++
	return true
}

func (e *Engine) finish() {
	e.running = false
	if e.irqs != nil {
		e.irqs.Trigger(device.DmaDone)
	}
	if e.cpu != nil && e.dstCount > 0 && classify(e.dstStart) == TargetMemory {
		e.cpu.InvalidateReservationRange(e.dstStart, e.dstStart+e.dstCount*4)
	}
}
