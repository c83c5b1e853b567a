package inputdev

import (
	"testing"

	"github.com/nr32/nr32emu/emu/device"
)

type fakeIRQ struct{ fired []device.Interrupt }

func (f *fakeIRQ) Trigger(irq device.Interrupt) { f.fired = append(f.fired, irq) }

func pushTx(d *InputDev, bytes ...byte) {
	for _, b := range bytes {
		d.StoreWord(regTxRx, uint32(b))
	}
}

func TestTouchscreenHandshake(t *testing.T) {
	ts := NewTouchscreen()
	ts.SetTouch(0x0102, 0x0304)
	irq := &fakeIRQ{}
	d := New(irq, ts)
	d.StoreWord(regConf, confTxIRQ<<0|(0<<16)) // clk_div-1 = 0 -> clk_div = 1

	pushTx(d, 'T', 'S', 0, 0, 0, 0)
	d.Tick(10)

	var got []byte
	for i := 0; i < 6; i++ {
		v := d.LoadWord(regTxRx)
		got = append(got, byte(v))
	}
	// The first exchanged byte ('T') yields a dummy 0 reply; the handshake
	// reply proper ('a' + 4 coordinate bytes) starts at got[1].
	if got[1] != 'a' {
		t.Fatalf("expected 'a' at index 1, got %v", got)
	}
	if got[2] != 0x01 || got[3] != 0x02 || got[4] != 0x03 || got[5] != 0x04 {
		t.Fatalf("unexpected coordinate bytes: %v", got)
	}
}

func TestTxDrainRaisesIRQ(t *testing.T) {
	ts := NewTouchscreen()
	irq := &fakeIRQ{}
	d := New(irq, ts)
	d.StoreWord(regConf, confTxIRQ)
	pushTx(d, 0x01)
	d.Tick(100)
	if len(irq.fired) != 1 || irq.fired[0] != device.InputDev {
		t.Fatalf("expected one InputDev irq, got %v", irq.fired)
	}
}
