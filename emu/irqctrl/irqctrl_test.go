package irqctrl

import (
	"testing"

	"github.com/nr32/nr32emu/emu/device"
)

func TestTriggerRequiresEnable(t *testing.T) {
	c := New()
	c.Trigger(device.VSync)
	if c.Active() {
		t.Fatal("should not be active while masked")
	}
	c.StoreWord(0x4, 1<<device.VSync.Bit())
	if !c.Active() {
		t.Fatal("expected active once enabled")
	}
}

func TestWriteOneToClear(t *testing.T) {
	c := New()
	c.StoreWord(0x4, 0xFFFFFFFF)
	c.Trigger(device.InputDev)
	if !c.Active() {
		t.Fatal("expected active")
	}
	c.StoreWord(0x0, 1<<device.InputDev.Bit())
	if c.Active() {
		t.Fatal("expected cleared after ack")
	}
}
