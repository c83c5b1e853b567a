package gpu

import (
	"testing"

	"github.com/nr32/nr32emu/emu/device"
)

type recordingDraw struct{ batches [][]Triangle }

func (r *recordingDraw) DrawTriangles(tris []Triangle) {
	cp := make([]Triangle, len(tris))
	copy(cp, tris)
	r.batches = append(r.batches, cp)
}

type recordingDisplay struct{ count int }

func (r *recordingDisplay) DisplayFramebuffer() { r.count++ }

type fakeIRQ struct{ fired []device.Interrupt }

func (f *fakeIRQ) Trigger(irq device.Interrupt) { f.fired = append(f.fired, irq) }

func TestTrianglePipeline(t *testing.T) {
	draw := &recordingDraw{}
	disp := &recordingDisplay{}
	irq := &fakeIRQ{}
	g := New(draw, disp, irq, 1000)

	g.StoreWord(0, 0x01000000) // DRAW_START
	g.StoreWord(0, 0x4000FF00) // TRIANGLE, color R=0 G=FF B=00
	// three (Z, YX) pairs
	for i := 0; i < 3; i++ {
		g.StoreWord(0, 0) // Z
		g.StoreWord(0, uint32(i)<<16|uint32(i)) // YX
	}
	g.StoreWord(0, 0x02000000) // DRAW_END

	if len(draw.batches) != 1 || len(draw.batches[0]) != 1 {
		t.Fatalf("expected one batch of one triangle, got %v", draw.batches)
	}
	tri := draw.batches[0][0]
	if tri.R != 0 || tri.G != 0xFF || tri.B != 0x00 {
		t.Fatalf("unexpected color: %+v", tri)
	}
	if disp.count != 1 {
		t.Fatalf("expected display called once, got %d", disp.count)
	}
}

func TestVSyncPeriod(t *testing.T) {
	irq := &fakeIRQ{}
	g := New(nil, nil, irq, 100)
	g.Tick(99)
	if len(irq.fired) != 0 {
		t.Fatal("should not have fired yet")
	}
	g.Tick(1)
	if len(irq.fired) != 1 || irq.fired[0] != device.VSync {
		t.Fatalf("expected one VSync, got %v", irq.fired)
	}
}

func TestMatrixIdentityAndMultiply(t *testing.T) {
	g := New(nil, nil, nil, 1000)
	// set mat[1][0][0] = 2.0 (Fp32 16.16)
	g.StoreWord(0, 0x10110000)
	g.StoreWord(0, 2<<16)
	m1 := g.Matrix(1)
	if m1[0] != 2<<16 {
		t.Fatalf("expected component set, got %d", m1[0])
	}
	// multiply mat[0] * mat[1] into mat[2]
	g.StoreWord(0, 0x10220001)
	m2 := g.Matrix(2)
	if m2[0] != 2<<16 {
		t.Fatalf("expected identity*mat1 == mat1, got %d", m2[0])
	}
}

func TestNopAndCfgDoNotDisturbState(t *testing.T) {
	g := New(nil, nil, nil, 1000)
	g.StoreWord(0, 0x00000000) // NOP
	g.StoreWord(0, 0x03000042) // CFG
	if len(g.fifo) != 0 {
		t.Fatalf("expected fifo drained, got %d pending", len(g.fifo))
	}
}
