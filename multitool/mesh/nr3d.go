package mesh

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// NR3D GPU command words, matching emu/gpu's decoder exactly: a fixed
// opcode byte 0x10 selects the matrix family, with the sub-operation in
// bits [23:20] and the target matrix slot in bits [18:16]. Triangle
// commands use opcode byte 0x40 with the flat RGB color packed into the
// low 24 bits; emu/gpu has no per-vertex Gouraud path, so (unlike the
// reference Rust dumper) every triangle here carries one flat color.
const (
	matrixOpByte = 0x10
	triOpByte    = 0x40

	matIdentity = 0x0
	matSetComp  = 0x1
	matMultiply = 0x2

	modelMatrixSlot  = 3
	outputMatrixSlot = 0
)

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeI16(w io.Writer, v int16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	_, err := w.Write(b[:])
	return err
}

func matIdentityWord(dst uint32) uint32 {
	return matrixOpByte<<24 | matIdentity<<20 | dst<<16
}

func matSetWord(dst, i, j uint32) uint32 {
	return matrixOpByte<<24 | matSetComp<<20 | dst<<16 | i<<8 | j
}

func matMulWord(dst, a, b uint32) uint32 {
	return matrixOpByte<<24 | matMultiply<<20 | dst<<16 | a<<8 | b
}

// scaleCoord converts one mesh-space coordinate into an NR3D fixed-point
// integer coordinate, applying the model's scale and origin.
func (m *Model) scaleCoord(c float32, axisOrigin float32) int32 {
	v := float64(c-axisOrigin) * float64(m.scale)
	r := math.Round(v)
	if r > math.MaxInt32 {
		r = math.MaxInt32
	}
	if r < math.MinInt32 {
		r = math.MinInt32
	}
	return int32(r)
}

func (m *Model) scaleVertex(v vertex) [3]int32 {
	return [3]int32{
		m.scaleCoord(v.pos[0], m.origin[0]),
		m.scaleCoord(v.pos[1], m.origin[1]),
		m.scaleCoord(v.pos[2], m.origin[2]),
	}
}

// DumpNR3D writes the model as an NR3D command stream: a model-matrix
// setup (translation + scale, folded into the output matrix) followed by
// one flat-shaded GPU triangle command per indexed triangle in the strip.
func (m *Model) DumpNR3D(w io.Writer) error {
	// File identifier, also a harmless GPU NOP (opcode byte 0x00).
	if err := writeU32(w, 0x0000524e); err != nil {
		return err
	}

	if err := m.writeMatrixHeader(w); err != nil {
		return err
	}

	// NOP delineating the end of matrix setup, so a reader that doesn't
	// care about transforms can skip straight to triangle data.
	if err := writeU32(w, 0x00000042); err != nil {
		return err
	}

	clipCount := 0
	series := 0
	for i, idx := range m.indices {
		if idx == restart {
			series = 0
			continue
		}
		series++
		if series < 3 {
			continue
		}

		i0 := m.indices[i-2]
		i1 := m.indices[i-1]
		i2 := idx

		v0 := m.verts[i0]
		v1 := m.verts[i1]
		v2 := m.verts[i2]

		p0 := m.scaleVertex(v0)
		p1 := m.scaleVertex(v1)
		p2 := m.scaleVertex(v2)

		if isClipped(p0) || isClipped(p1) || isClipped(p2) {
			clipCount++
			continue
		}

		cmd := uint32(triOpByte)<<24 | bgr888(v0.col)
		if err := writeU32(w, cmd); err != nil {
			return err
		}
		if err := writeXYZ(w, p0); err != nil {
			return err
		}
		if err := writeXYZ(w, p1); err != nil {
			return err
		}
		if err := writeXYZ(w, p2); err != nil {
			return err
		}
	}

	if clipCount > 0 {
		return fmt.Errorf("mesh: %d triangles clipped, try a smaller scale", clipCount)
	}
	return nil
}

// writeMatrixHeader builds the model matrix (slot 3: translate by -origin,
// then scale) and folds it into the output matrix (slot 0) via a multiply,
// the same two-matrix composition the reference tool uses.
func (m *Model) writeMatrixHeader(w io.Writer) error {
	if err := writeU32(w, matIdentityWord(modelMatrixSlot)); err != nil {
		return err
	}

	for row, t := range m.origin {
		fpt := int32(math.Round(float64(t) * 65536))
		if fpt == 0 {
			continue
		}
		if err := writeU32(w, matSetWord(modelMatrixSlot, uint32(row), 3)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fpt)); err != nil {
			return err
		}
	}

	if m.scale != 1 {
		iscale := math.Round(math.Abs(65536 / float64(m.scale)))
		if iscale < 1 {
			iscale = 1
		}
		if iscale > math.MaxInt32 {
			iscale = math.MaxInt32
		}
		for p := uint32(0); p < 3; p++ {
			if err := writeU32(w, matSetWord(modelMatrixSlot, p, p)); err != nil {
				return err
			}
			if err := writeU32(w, uint32(iscale)); err != nil {
				return err
			}
		}
	}

	// output = output * model, folding the freshly built model matrix in.
	return writeU32(w, matMulWord(outputMatrixSlot, outputMatrixSlot, modelMatrixSlot))
}

func bgr888(c [3]byte) uint32 {
	return uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16
}

func isClipped(p [3]int32) bool {
	for _, c := range p {
		if c < intCoordsMin || c > intCoordsMax {
			return true
		}
	}
	return false
}

func writeXYZ(w io.Writer, p [3]int32) error {
	if err := writeI16(w, int16(p[2])); err != nil {
		return err
	}
	if err := writeI16(w, 0); err != nil {
		return err
	}
	if err := writeI16(w, int16(p[0])); err != nil {
		return err
	}
	return writeI16(w, int16(p[1]))
}
