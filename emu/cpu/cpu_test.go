package cpu

import (
	"testing"

	"github.com/nr32/nr32emu/emu/bus"
)

func newTestCpu(t *testing.T) (*Cpu, *bus.Bus) {
	t.Helper()
	b := bus.New()
	c := New(b)
	return c, b
}

// asm helpers build raw RV32I words for tests that need more than one
// instruction strung together.
func addi(rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | uint32(rs1)<<15 | 0<<12 | uint32(rd)<<7 | 0x13
}

func TestX0IsAlwaysZero(t *testing.T) {
	c, _ := newTestCpu(t)
	c.SetX(0, 0xDEADBEEF)
	if c.X(0) != 0 {
		t.Fatalf("x0 = 0x%x, want 0", c.X(0))
	}
}

func TestAddiAndFetch(t *testing.T) {
	c, b := newTestCpu(t)
	// addi x1, x0, 5
	w := addi(1, 0, 5)
	b.StoreWord(0, w)
	c.SetPC(0)
	if err := c.Step(nil, nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.X(1) != 5 {
		t.Fatalf("x1 = %d, want 5", c.X(1))
	}
	if c.PC() != 4 {
		t.Fatalf("pc = %d, want 4", c.PC())
	}
}

func TestCacheInvalidatesOnStore(t *testing.T) {
	c, b := newTestCpu(t)
	b.StoreWord(0, addi(1, 0, 1))
	c.SetPC(0)
	if err := c.Step(nil, nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.Cache().Len() != 1 {
		t.Fatalf("expected one cached page, got %d", c.Cache().Len())
	}
	// overwriting RAM must flush the decoded-page cache.
	b.StoreWord(0, addi(1, 0, 99))
	if c.Cache().Len() != 0 {
		t.Fatalf("expected cache invalidated after RAM write, got %d pages", c.Cache().Len())
	}
	c.SetPC(0)
	if err := c.Step(nil, nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.X(1) != 99 {
		t.Fatalf("x1 = %d, want 99 (stale decode not reused)", c.X(1))
	}
}

func TestCSRRWRoundTrip(t *testing.T) {
	c, b := newTestCpu(t)
	// csrrw x1, mscratch, x2 ; preload x2 = 0x123 with one addi
	b.StoreWord(0, addi(2, 0, 0x123))
	csrrw := uint32(csrMScratch)<<20 | uint32(2)<<15 | 1<<12 | uint32(1)<<7 | 0x73
	b.StoreWord(4, csrrw)
	c.SetPC(0)
	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.X(1) != 0 {
		t.Fatalf("old mscratch = %d, want 0", c.X(1))
	}
	if c.MScratch() != 0x123 {
		t.Fatalf("mscratch = 0x%x, want 0x123", c.MScratch())
	}
}

func TestLRSCSucceedsWithoutIntervention(t *testing.T) {
	c, b := newTestCpu(t)
	b.StoreWord(0x100, 42)
	addr := uint32(0x100)

	// lr.w x1, (x2) ; x2 = 0x100
	b.StoreWord(0, addi(2, 0, 0x100))
	lr := uint32(amoLR)<<27 | uint32(0)<<20 | uint32(2)<<15 | 2<<12 | uint32(1)<<7 | 0x2F
	b.StoreWord(4, lr)
	// sc.w x3, x4, (x2) ; x4 = 7
	b.StoreWord(8, addi(4, 0, 7))
	sc := uint32(amoSC)<<27 | uint32(4)<<20 | uint32(2)<<15 | 2<<12 | uint32(3)<<7 | 0x2F
	b.StoreWord(12, sc)

	c.SetPC(0)
	for i := 0; i < 4; i++ {
		if err := c.Step(nil, nil); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if c.X(3) != 0 {
		t.Fatalf("sc.w result = %d, want 0 (success)", c.X(3))
	}
	v, _ := b.LoadWord(addr)
	if v != 7 {
		t.Fatalf("mem[0x100] = %d, want 7", v)
	}
}

func TestLRSCFailsAfterReservationInvalidated(t *testing.T) {
	c, b := newTestCpu(t)
	b.StoreWord(0x100, 42)

	b.StoreWord(0, addi(2, 0, 0x100))
	lr := uint32(amoLR)<<27 | uint32(0)<<20 | uint32(2)<<15 | 2<<12 | uint32(1)<<7 | 0x2F
	b.StoreWord(4, lr)
	b.StoreWord(8, addi(4, 0, 7))
	sc := uint32(amoSC)<<27 | uint32(4)<<20 | uint32(2)<<15 | 2<<12 | uint32(3)<<7 | 0x2F
	b.StoreWord(12, sc)

	c.SetPC(0)
	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Step(nil, nil); err != nil { // lr.w
		t.Fatal(err)
	}
	// simulate a DMA write overlapping the reservation between lr.w and sc.w.
	c.InvalidateReservationRange(0x100, 0x104)

	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Step(nil, nil); err != nil { // sc.w
		t.Fatal(err)
	}
	if c.X(3) != 1 {
		t.Fatalf("sc.w result = %d, want 1 (failure)", c.X(3))
	}
	v, _ := b.LoadWord(0x100)
	if v != 42 {
		t.Fatalf("mem[0x100] = %d, want unchanged 42", v)
	}
}

func TestTrapEntryAndMRET(t *testing.T) {
	c, b := newTestCpu(t)
	c.SetMTVec(0x1000)
	c.SetMStatus(mstatusMIEBit)
	c.SetMIE(1 << 7) // enable machine timer interrupt

	b.StoreWord(0, addi(1, 0, 1)) // never reached this step
	c.SetPC(0)

	c.SetExternalIRQs(true, false)
	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.PC() != 0x1000 {
		t.Fatalf("pc = 0x%x after trap, want 0x1000", c.PC())
	}
	if c.MCause() != CauseMachineTimer {
		t.Fatalf("mcause = 0x%x, want machine timer cause", c.MCause())
	}
	if c.MStatus()&mstatusMIEBit != 0 {
		t.Fatal("MIE should be cleared on trap entry")
	}
	if c.MEPC() != 0 {
		t.Fatalf("mepc = %d, want 0", c.MEPC())
	}

	// mret restores PC and MIE.
	b.StoreWord(0x1000, 0x30200073) // mret
	c.SetExternalIRQs(false, false)
	if err := c.Step(nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.PC() != 0 {
		t.Fatalf("pc after mret = 0x%x, want 0", c.PC())
	}
	if c.MStatus()&mstatusMIEBit == 0 {
		t.Fatal("MIE should be restored after mret")
	}
}

func TestECALLInvokesHook(t *testing.T) {
	c, b := newTestCpu(t)
	ecall := uint32(0x73)
	b.StoreWord(0, ecall)
	c.SetPC(0)
	called := false
	if err := c.Step(func() { called = true }, nil); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("ecall hook not invoked")
	}
	if c.PC() != 4 {
		t.Fatalf("pc = %d, want 4 after ecall", c.PC())
	}
}
