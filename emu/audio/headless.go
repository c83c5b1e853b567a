//go:build headless

package audio

import "sync/atomic"

// HeadlessSink discards queued samples but counts them, so tests can
// assert the SPU actually drained a frame without opening a real device.
type HeadlessSink struct {
	total atomic.Uint64
}

// NewOtoSink is named to match the !headless build's constructor so
// callers don't need a build-tagged switch of their own.
func NewOtoSink() (*HeadlessSink, error) {
	return &HeadlessSink{}, nil
}

// QueueSamples implements spu.Sink.
func (s *HeadlessSink) QueueSamples(samples []int16) {
	s.total.Add(uint64(len(samples)))
}

// Close is a no-op headless stand-in for the oto backend's Close.
func (s *HeadlessSink) Close() {}

// TotalSamples reports how many samples have been queued in total.
func (s *HeadlessSink) TotalSamples() uint64 { return s.total.Load() }
