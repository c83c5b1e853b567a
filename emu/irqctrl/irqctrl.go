// Package irqctrl implements the NR32 interrupt controller: an
// edge-triggered pending/enabled register pair that drives the CPU's MEIP
// line whenever pending&enabled != 0.
package irqctrl

import "github.com/nr32/nr32emu/emu/device"

const (
	regPending = 0x0
	regEnabled = 0x4
)

// Controller is the interrupt controller's MMIO-facing state.
type Controller struct {
	pending uint32
	enabled uint32
}

// New returns a Controller with all lines masked and clear.
func New() *Controller {
	return &Controller{}
}

// Trigger raises the named interrupt's pending bit (edge-triggered: only
// the 0->1 transition matters, so triggering an already-pending line is a
// no-op for outside observers).
func (c *Controller) Trigger(irq device.Interrupt) {
	c.pending |= 1 << irq.Bit()
}

// Active reports whether the CPU's MEIP line should be asserted.
func (c *Controller) Active() bool {
	return c.pending&c.enabled != 0
}

// LoadWord implements bus.MMIO. Offset 0 reads pending, offset 4 reads
// enabled.
func (c *Controller) LoadWord(offset uint32) uint32 {
	switch offset {
	case regPending:
		return c.pending
	case regEnabled:
		return c.enabled
	default:
		return 0
	}
}

// StoreWord implements bus.MMIO. Offset 0 is write-1-to-clear against
// pending; offset 4 replaces enabled outright.
func (c *Controller) StoreWord(offset uint32, val uint32) {
	switch offset {
	case regPending:
		c.pending &^= val
	case regEnabled:
		c.enabled = val
	}
}
