// Package console implements the NR32 debug console and shutdown port:
// a single MMIO window at the DEBUG base address, byte writes at offset
// 0x10 buffering a line for the host log, and a word write at offset
// 0x20 halting the machine. Grounded on the reference debug_console.rs.
package console

import "github.com/nr32/nr32emu/emu/bus"

const (
	offsetPutc     = 0x10
	offsetShutdown = 0x20
)

const shutdownMagic = 0x0D1E0000

// Sink receives flushed debug lines (newline or 1024-byte overflow).
type Sink interface {
	WriteDebug(b []byte)
}

// Console implements bus.MMIO for the debug console and shutdown port.
type Console struct {
	sink Sink
	buf  []byte

	shutdownRequested bool
	shutdownCode      uint16
}

// New builds a Console that flushes completed lines to sink.
func New(sink Sink) *Console {
	return &Console{sink: sink}
}

var _ bus.MMIO = (*Console)(nil)

// LoadWord always reads as zero; the console is write-only.
func (c *Console) LoadWord(offset uint32) uint32 { return 0 }

// StoreWord implements bus.MMIO.
func (c *Console) StoreWord(offset uint32, val uint32) {
	switch offset {
	case offsetPutc:
		b := byte(val)
		if b == '\n' || len(c.buf) >= 1024 {
			c.flush()
		}
		if b != '\n' {
			c.buf = append(c.buf, b)
		}
	case offsetShutdown:
		if val&0xFFFF0000 == shutdownMagic {
			c.shutdownRequested = true
			c.shutdownCode = uint16(val & 0xFFFF)
		}
	}
}

// WriteDebug lets the kernel's DBG_PUTS syscall route bytes through the
// same buffering/flush path as MMIO writes.
func (c *Console) WriteDebug(b []byte) {
	for _, ch := range b {
		c.StoreWord(offsetPutc, uint32(ch))
	}
}

// RequestShutdown lets the kernel's SHUTDOWN syscall drive the same halt
// path as the MMIO shutdown port.
func (c *Console) RequestShutdown(code uint16) {
	c.shutdownRequested = true
	c.shutdownCode = code
}

func (c *Console) flush() {
	if c.sink != nil && len(c.buf) > 0 {
		c.sink.WriteDebug(c.buf)
	}
	c.buf = c.buf[:0]
}

// ShutdownRequested reports whether the shutdown port has been written,
// and with what code, for the driver loop to check each iteration.
func (c *Console) ShutdownRequested() (uint16, bool) {
	return c.shutdownCode, c.shutdownRequested
}
