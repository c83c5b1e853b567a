//go:build !headless

package audio

import "github.com/ebitengine/oto/v3"

// OtoSink plays queued samples through an oto.Context, following the
// reference OtoPlayer's atomic-pointer-free, ring-buffer-fed Read shape
// but adapted to oto/v3's int16 PCM format instead of float32.
type OtoSink struct {
	ctx    *oto.Context
	player *oto.Player
	r      *ring
}

// NewOtoSink opens an oto context at SampleRate, stereo, 16-bit PCM.
func NewOtoSink() (*OtoSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4096,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	s := &OtoSink{ctx: ctx, r: newRing(SampleRate * 2)}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// QueueSamples implements spu.Sink.
func (s *OtoSink) QueueSamples(samples []int16) { s.r.push(samples) }

// Read implements io.Reader for oto.Player: pulls interleaved int16
// samples out of the ring and serializes them little-endian.
func (s *OtoSink) Read(p []byte) (int, error) {
	n := len(p) / 2
	samples := make([]int16, n)
	s.r.pull(samples)
	for i, v := range samples {
		p[i*2] = byte(v)
		p[i*2+1] = byte(v >> 8)
	}
	return n * 2, nil
}

// Close stops playback.
func (s *OtoSink) Close() {
	if s.player != nil {
		s.player.Close()
	}
}
