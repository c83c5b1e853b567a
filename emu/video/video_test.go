package video

import (
	"testing"

	"github.com/nr32/nr32emu/emu/gpu"
)

func TestClearFillsEveryPixel(t *testing.T) {
	fb := NewFramebuffer()
	fb.Clear(10, 20, 30)
	off := (Height/2*Width + Width/2) * 4
	if fb.Pix[off] != 10 || fb.Pix[off+1] != 20 || fb.Pix[off+2] != 30 || fb.Pix[off+3] != 0xFF {
		t.Fatalf("center pixel = %v, want [10 20 30 255]", fb.Pix[off:off+4])
	}
}

func TestDrawTrianglesFillsInteriorPixel(t *testing.T) {
	fb := NewFramebuffer()
	tri := gpu.Triangle{
		Vertices: [3]gpu.Vertex{
			{X: 10, Y: 10},
			{X: 100, Y: 10},
			{X: 10, Y: 100},
		},
		R: 0xFF, G: 0, B: 0,
	}
	fb.DrawTriangles([]gpu.Triangle{tri})

	off := (20*Width + 20) * 4
	if fb.Pix[off] != 0xFF || fb.Pix[off+1] != 0 || fb.Pix[off+2] != 0 {
		t.Fatalf("interior pixel = %v, want red", fb.Pix[off:off+4])
	}

	outOff := (200*Width + 200) * 4
	if fb.Pix[outOff+3] != 0 {
		t.Fatalf("exterior pixel should be untouched, got %v", fb.Pix[outOff:outOff+4])
	}
}
