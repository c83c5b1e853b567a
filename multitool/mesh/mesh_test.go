package mesh

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestTriangleCountSkipsRestarts(t *testing.T) {
	m := &Model{indices: []int32{0, 1, 2, restart, 3, 4, 5, 6}}
	// First run: 0,1,2 -> one triangle. Second run: 3,4,5,6 -> two
	// triangles (3,4,5) and (4,5,6).
	if got := m.TriangleCount(); got != 3 {
		t.Fatalf("TriangleCount() = %d, want 3", got)
	}
}

func TestDumpNR3DSingleFlatTriangle(t *testing.T) {
	m := &Model{
		scale:  1,
		origin: [3]float32{},
		verts: []vertex{
			{pos: [3]float32{0, 0, 0}, col: [3]byte{255, 0, 0}},
			{pos: [3]float32{1, 0, 0}, col: [3]byte{255, 0, 0}},
			{pos: [3]float32{0, 1, 0}, col: [3]byte{255, 0, 0}},
		},
		indices: []int32{0, 1, 2},
	}

	var buf bytes.Buffer
	if err := m.DumpNR3D(&buf); err != nil {
		t.Fatalf("DumpNR3D: %v", err)
	}

	data := buf.Bytes()
	if len(data)%4 != 0 {
		t.Fatalf("output length %d is not word-aligned", len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	if words[0] != 0x0000524e {
		t.Fatalf("file identifier word = %#x, want 0x524e", words[0])
	}

	// Scale is 1 and origin is zero, so no translate/scale words are
	// emitted: identity, multiply, then the NOP delimiter, then the
	// triangle command.
	var triWord uint32
	found := false
	for _, w := range words {
		if byte(w>>24) == triOpByte {
			triWord = w
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no triangle command word found in output")
	}
	if triWord&0xFFFFFF != 0x0000FF {
		t.Fatalf("triangle color = %#x, want BGR888 red (0x0000ff)", triWord&0xFFFFFF)
	}
}

func TestDumpNR3DReportsClippedTriangles(t *testing.T) {
	m := &Model{
		scale:  1,
		origin: [3]float32{},
		verts: []vertex{
			{pos: [3]float32{1e9, 0, 0}, col: [3]byte{0, 255, 0}},
			{pos: [3]float32{1, 0, 0}, col: [3]byte{0, 255, 0}},
			{pos: [3]float32{0, 1, 0}, col: [3]byte{0, 255, 0}},
		},
		indices: []int32{0, 1, 2},
	}
	var buf bytes.Buffer
	if err := m.DumpNR3D(&buf); err == nil {
		t.Fatal("expected DumpNR3D to report a clipped triangle")
	}
}
