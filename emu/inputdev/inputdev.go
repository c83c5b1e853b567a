// Package inputdev implements the NR32 input-device subsystem: a serial
// transceiver exchanging bytes with a selected downstream device (here,
// always the touchscreen), raising InputDev on TX drain. Grounded on the
// reference input_dev.rs and input_dev/touchscreen.rs.
package inputdev

import "github.com/nr32/nr32emu/emu/device"

const (
	regConf  = 0x0
	regPort  = 0x4
	regTxRx  = 0x8
)

const (
	confClearFIFO = 1 << 0
	confTxIRQ     = 1 << 1
)

const fifoCapacity = 16

// IRQController is satisfied by emu/irqctrl.Controller.
type IRQController interface {
	Trigger(irq device.Interrupt)
}

// Endpoint is a downstream serial device (the touchscreen is the only one
// NR32 defines) that exchanges one byte at a time.
type Endpoint interface {
	Exchange(b byte) byte
}

// InputDev is the transceiver's MMIO-facing and cycle-driven state.
type InputDev struct {
	irqs IRQController
	dev  Endpoint

	conf uint32
	port byte

	txFifo []byte
	rxFifo []byte

	clkDiv  uint32
	accum   uint32
}

// New builds an InputDev wired to the given downstream endpoint.
func New(irqs IRQController, dev Endpoint) *InputDev {
	return &InputDev{irqs: irqs, dev: dev}
}

// LoadWord implements bus.MMIO.
func (d *InputDev) LoadWord(offset uint32) uint32 {
	switch offset {
	case regConf:
		return d.conf
	case regPort:
		return uint32(d.port)
	case regTxRx:
		if len(d.rxFifo) == 0 {
			return 0
		}
		b := d.rxFifo[0]
		d.rxFifo = d.rxFifo[1:]
		return uint32(b)
	default:
		return 0
	}
}

// StoreWord implements bus.MMIO.
func (d *InputDev) StoreWord(offset uint32, val uint32) {
	switch offset {
	case regConf:
		d.conf = val
		if val&confClearFIFO != 0 {
			d.txFifo = d.txFifo[:0]
			d.rxFifo = d.rxFifo[:0]
		}
		d.clkDiv = (val >> 16) + 1
	case regPort:
		d.port = byte(val)
	case regTxRx:
		if len(d.txFifo) < fifoCapacity {
			d.txFifo = append(d.txFifo, byte(val))
		}
	}
}

// PushTx enqueues a byte for transmission, as the INPUT_DEV syscall does
// on behalf of user tasks instead of going through the MMIO tx_rx
// register one word at a time.
func (d *InputDev) PushTx(b byte) bool {
	if len(d.txFifo) >= fifoCapacity {
		return false
	}
	d.txFifo = append(d.txFifo, b)
	return true
}

// PopRx dequeues one received byte, reporting whether one was available.
func (d *InputDev) PopRx() (byte, bool) {
	if len(d.rxFifo) == 0 {
		return 0, false
	}
	b := d.rxFifo[0]
	d.rxFifo = d.rxFifo[1:]
	return b, true
}

// Tick advances the transceiver by n cycles, consuming one TX byte every
// clk_div cycles while the TX FIFO is non-empty.
func (d *InputDev) Tick(n uint64) {
	if d.clkDiv == 0 {
		d.clkDiv = 1
	}
	d.accum += uint32(n)
	for d.accum >= d.clkDiv {
		d.accum -= d.clkDiv
		if len(d.txFifo) == 0 {
			continue
		}
		b := d.txFifo[0]
		d.txFifo = d.txFifo[1:]
		var reply byte
		if d.dev != nil {
			reply = d.dev.Exchange(b)
		}
		d.rxFifo = append(d.rxFifo, reply)
		if len(d.txFifo) == 0 && d.conf&confTxIRQ != 0 && d.irqs != nil {
			d.irqs.Trigger(device.InputDev)
		}
	}
}
