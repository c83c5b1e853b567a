package dma

import (
	"testing"

	"github.com/nr32/nr32emu/emu/bus"
	"github.com/nr32/nr32emu/emu/device"
)

type fakeIRQ struct{ fired []device.Interrupt }

func (f *fakeIRQ) Trigger(irq device.Interrupt) { f.fired = append(f.fired, irq) }

func TestMemoryToMemoryTransfer(t *testing.T) {
	b := bus.New()
	for i := uint32(0); i < 4; i++ {
		_ = b.StoreWord(0x1000+i*4, 0x1000+i)
	}
	irq := &fakeIRQ{}
	e := New(b, nil, irq, nil)
	e.StoreWord(regSrc, 0x1000)
	e.StoreWord(regDst, 0x2000)
	e.StoreWord(regLenWords, 4)

	for i := 0; i < 100 && e.Busy(); i++ {
		e.RunCycles(8)
	}
	if e.Busy() {
		t.Fatal("transfer never completed")
	}
	for i := uint32(0); i < 4; i++ {
		v, _ := b.LoadWord(0x2000 + i*4)
		if v != 0x1000+i {
			t.Fatalf("word %d: got 0x%x", i, v)
		}
	}
	if len(irq.fired) != 1 || irq.fired[0] != device.DmaDone {
		t.Fatalf("expected one DmaDone irq, got %v", irq.fired)
	}
}

func TestROMIsSlowerThanRAM(t *testing.T) {
	if costPerWord(bus.ROMBase) <= costPerWord(bus.RAMBase) {
		t.Fatal("expected ROM reads to cost more than RAM reads")
	}
}

type blockingGPU struct{ allow bool }

func (g *blockingGPU) PushCommand(word uint32) bool { return g.allow }

func TestGPUBackpressureStalls(t *testing.T) {
	b := bus.New()
	_ = b.StoreWord(0x1000, 0xAAAA)
	gpu := &blockingGPU{allow: false}
	e := New(b, gpu, &fakeIRQ{}, nil)
	e.StoreWord(regSrc, 0x1000)
	e.StoreWord(regDst, bus.GPUBase)
	e.StoreWord(regLenWords, 1)
	e.RunCycles(10)
	if !e.Busy() {
		t.Fatal("expected transfer to stall on GPU backpressure, not complete")
	}
}
