//go:build !headless

package video

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/nr32/nr32emu/emu/gpu"
)

// EbitenSink presents a Framebuffer in a resizable window, started once
// and driven by ebiten's own run loop in a background goroutine (the
// same shape as EbitenOutput.Start in the reference backend).
type EbitenSink struct {
	fb *Framebuffer

	mu      sync.RWMutex
	shot    []byte
	img     *ebiten.Image
	started bool
	frames  uint64
}

// NewEbitenSink builds a sink that rasterizes into fb and mirrors it to
// screen once started.
func NewEbitenSink(fb *Framebuffer) *EbitenSink {
	return &EbitenSink{fb: fb, shot: make([]byte, Width*Height*4)}
}

// Start launches the ebiten window on a background goroutine; RunGame
// blocks until the window closes.
func (s *EbitenSink) Start(title string) error {
	if s.started {
		return nil
	}
	s.started = true
	ebiten.SetWindowSize(Width*2, Height*2)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizable(true)
	go func() { _ = ebiten.RunGame(s) }()
	return nil
}

// DrawTriangles implements gpu.DrawSink by rasterizing straight into the
// shared framebuffer.
func (s *EbitenSink) DrawTriangles(tris []gpu.Triangle) { s.fb.DrawTriangles(tris) }

// DisplayFramebuffer implements gpu.DisplaySink: snapshots the
// framebuffer for ebiten's next Draw call.
func (s *EbitenSink) DisplayFramebuffer() {
	s.mu.Lock()
	copy(s.shot, s.fb.Pix)
	s.frames++
	s.mu.Unlock()
}

// FrameCount reports how many frames have been presented.
func (s *EbitenSink) FrameCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Update implements ebiten.Game.
func (s *EbitenSink) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	return nil
}

// Draw implements ebiten.Game.
func (s *EbitenSink) Draw(screen *ebiten.Image) {
	if s.img == nil {
		s.img = ebiten.NewImage(Width, Height)
	}
	s.mu.RLock()
	s.img.WritePixels(s.shot)
	s.mu.RUnlock()
	screen.DrawImage(s.img, nil)
}

// Layout implements ebiten.Game.
func (s *EbitenSink) Layout(_, _ int) (int, int) { return Width, Height }
