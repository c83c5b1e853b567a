//go:build headless

package video

import (
	"sync/atomic"

	"github.com/nr32/nr32emu/emu/gpu"
)

// HeadlessSink discards rasterized frames but still rasterizes into fb,
// so golden-image tests can inspect it without a window.
type HeadlessSink struct {
	fb     *Framebuffer
	frames atomic.Uint64
}

// NewEbitenSink is named to match the !headless build's constructor so
// emu/machine callers don't need a build-tagged switch of their own.
func NewEbitenSink(fb *Framebuffer) *HeadlessSink {
	return &HeadlessSink{fb: fb}
}

// Start is a no-op headless stand-in for the windowed backend's Start.
func (s *HeadlessSink) Start(title string) error { return nil }

// DrawTriangles implements gpu.DrawSink.
func (s *HeadlessSink) DrawTriangles(tris []gpu.Triangle) { s.fb.DrawTriangles(tris) }

// DisplayFramebuffer implements gpu.DisplaySink.
func (s *HeadlessSink) DisplayFramebuffer() { s.frames.Add(1) }

// FrameCount reports how many frames have been presented.
func (s *HeadlessSink) FrameCount() uint64 { return s.frames.Load() }
