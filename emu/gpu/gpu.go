// Package gpu implements the NR32 GPU: a command FIFO feeding a small
// state machine that accumulates matrix operations and triangles between
// DRAW_START/DRAW_END brackets, flushing to host callbacks on DRAW_END
// and raising VSync every CPU_FREQ/30 cycles. Grounded on the reference
// gpu.rs command_state/raster_state split.
package gpu

import "github.com/nr32/nr32emu/emu/device"

// Command opcodes, keyed on the top byte of each FIFO word.
const (
	cmdNOP       = 0x00
	cmdDrawStart = 0x01
	cmdDrawEnd   = 0x02
	cmdCfg       = 0x03
	cmdMatrixLo  = 0x10
	cmdMatrixHi  = 0x1F
	cmdTriLo     = 0x40
	cmdTriHi     = 0x7F
)

// Matrix sub-opcodes, carried in bits [23:20] of a MATRIX command word.
const (
	matIdentity = 0x0
	matSetComp  = 0x1
	matMultiply = 0x2
)

const fifoCapacity = 256
const numMatrices = 8

// Vertex is one corner of a batched triangle: the raw 16-bit Y/X and
// Z-ish depth fields the command stream carries.
type Vertex struct {
	X, Y, Z int16
}

// Triangle is one flushed triangle: three vertices plus a flat RGB color.
type Triangle struct {
	Vertices [3]Vertex
	R, G, B  byte
}

// Mat4 is a 4x4 matrix of 16.16 fixed-point (Fp32) components, row-major.
type Mat4 [16]int32

func identityMat() Mat4 {
	var m Mat4
	for i := 0; i < 4; i++ {
		m[i*4+i] = 1 << 16
	}
	return m
}

func mulMat(a, b Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var acc int64
			for k := 0; k < 4; k++ {
				acc += (int64(a[r*4+k]) * int64(b[k*4+c])) >> 16
			}
			out[r*4+c] = int32(acc)
		}
	}
	return out
}

// DrawSink receives a batch of triangles flushed on DRAW_END.
type DrawSink interface {
	DrawTriangles(tris []Triangle)
}

// DisplaySink receives the presented frame on DRAW_END.
type DisplaySink interface {
	DisplayFramebuffer()
}

// IRQController is satisfied by emu/irqctrl.Controller.
type IRQController interface {
	Trigger(irq device.Interrupt)
}

// await describes what the next FIFO word means, since several commands
// need one or more lookahead words before they can be fully applied.
type await int

const (
	awaitNone await = iota
	awaitVertexColorOrZ
	awaitVertexYX
	awaitMatrixValue
)

// Gpu is the GPU's MMIO-facing and cycle-driven state.
type Gpu struct {
	draw    DrawSink
	display DisplaySink
	irqs    IRQController

	cfg uint32
	mat [numMatrices]Mat4

	fifo []uint32

	pending   []Triangle
	curTri    Triangle
	curVertex int

	state        await
	matSetTarget int // packed (dst<<8 | i<<4 | j) while awaitMatrixValue

	frameCycles uint64
	vsyncPeriod uint64
}

// New builds a Gpu with identity matrices and the given CPU_FREQ-derived
// VSync period (CPU_FREQ/30 cycles).
func New(draw DrawSink, display DisplaySink, irqs IRQController, vsyncPeriodCycles uint64) *Gpu {
	g := &Gpu{draw: draw, display: display, irqs: irqs, vsyncPeriod: vsyncPeriodCycles}
	for i := range g.mat {
		g.mat[i] = identityMat()
	}
	return g
}

// PushCommand feeds one 32-bit command word into the FIFO, as both the
// guest MMIO path and the DMA engine's GPU target do. ok is false when the
// FIFO is full (backpressure).
func (g *Gpu) PushCommand(word uint32) bool {
	if len(g.fifo) >= fifoCapacity {
		return false
	}
	g.fifo = append(g.fifo, word)
	g.drainFifo()
	return true
}

// LoadWord implements bus.MMIO; the command port is write-only, reads
// return 0.
func (g *Gpu) LoadWord(offset uint32) uint32 { return 0 }

// StoreWord implements bus.MMIO: every word write feeds the command FIFO.
func (g *Gpu) StoreWord(offset uint32, val uint32) {
	g.PushCommand(val)
}

func (g *Gpu) drainFifo() {
	for len(g.fifo) > 0 {
		w := g.fifo[0]
		g.fifo = g.fifo[1:]
		g.handleWord(w)
	}
}

func (g *Gpu) handleWord(w uint32) {
	switch g.state {
	case awaitVertexColorOrZ:
		g.curTri.Vertices[g.curVertex].Z = int16(w)
		g.state = awaitVertexYX
		return
	case awaitVertexYX:
		g.curTri.Vertices[g.curVertex].Y = int16(w >> 16)
		g.curTri.Vertices[g.curVertex].X = int16(w)
		g.curVertex++
		if g.curVertex == 3 {
			g.pending = append(g.pending, g.curTri)
			g.state = awaitNone
		} else {
			g.state = awaitVertexColorOrZ
		}
		return
	case awaitMatrixValue:
		dst := (g.matSetTarget >> 8) & 0x7
		i := (g.matSetTarget >> 4) & 0xF
		j := g.matSetTarget & 0xF
		g.mat[dst][i*4+j] = int32(w)
		g.state = awaitNone
		return
	}

	op := byte(w >> 24)
	switch {
	case op == cmdNOP:
	case op == cmdDrawStart:
		g.pending = g.pending[:0]
	case op == cmdDrawEnd:
		g.flush()
	case op == cmdCfg:
		g.cfg = w & 0x00FFFFFF
	case op >= cmdMatrixLo && op <= cmdMatrixHi:
		g.handleMatrix(w)
	case op >= cmdTriLo && op <= cmdTriHi:
		g.curTri = Triangle{R: byte(w >> 16), G: byte(w >> 8), B: byte(w)}
		g.curVertex = 0
		g.state = awaitVertexColorOrZ
	}
}

func (g *Gpu) handleMatrix(w uint32) {
	sub := (w >> 20) & 0xF
	dst := (w >> 16) & 0x7
	switch sub {
	case matIdentity:
		g.mat[dst] = identityMat()
	case matSetComp:
		i := (w >> 8) & 0xF
		j := w & 0xF
		g.matSetTarget = int(dst)<<8 | int(i)<<4 | int(j)
		g.state = awaitMatrixValue
	case matMultiply:
		a := (w >> 8) & 0x7
		b := w & 0x7
		g.mat[dst] = mulMat(g.mat[a], g.mat[b])
	}
}

func (g *Gpu) flush() {
	if len(g.pending) > 0 && g.draw != nil {
		g.draw.DrawTriangles(g.pending)
	}
	g.pending = g.pending[:0]
	if g.display != nil {
		g.display.DisplayFramebuffer()
	}
}

// Tick advances the GPU's own frame-cycle counter by n cycles, raising
// VSync once the period elapses (reset each time, like the reference's
// frame_cycles field).
func (g *Gpu) Tick(n uint64) {
	g.frameCycles += n
	if g.frameCycles >= g.vsyncPeriod {
		g.frameCycles -= g.vsyncPeriod
		if g.irqs != nil {
			g.irqs.Trigger(device.VSync)
		}
	}
}

// Matrix returns the current value of matrix slot idx, for tests and
// debugging.
func (g *Gpu) Matrix(idx int) Mat4 { return g.mat[idx] }
