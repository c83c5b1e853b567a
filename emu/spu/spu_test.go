package spu

import "testing"

type recordingSink struct{ batches [][]int16 }

func (r *recordingSink) QueueSamples(s []int16) {
	cp := make([]int16, len(s))
	copy(cp, s)
	r.batches = append(r.batches, cp)
}

func TestPlaybackEmitsStereoSamples(t *testing.T) {
	sink := &recordingSink{}
	s := New(sink, 10)
	// one silent, stop-flagged block at offset 0
	s.ram[0] = 1 // stop flag
	s.StoreWord(regCtrl, 1)
	s.Tick(10 * 40) // enough cycles for 32+ samples
	s.DrainFrame()
	if len(sink.batches) != 1 {
		t.Fatalf("expected one drained batch, got %d", len(sink.batches))
	}
	if len(sink.batches[0])%2 != 0 {
		t.Fatalf("expected interleaved stereo (even length), got %d", len(sink.batches[0]))
	}
}

func TestStopsAtEndOfRAM(t *testing.T) {
	sink := &recordingSink{}
	s := New(sink, 1)
	s.blockAddr = uint32(len(s.ram))
	s.playing = true
	s.Tick(100)
	if s.playing {
		t.Fatal("expected playback to stop past end of RAM")
	}
}
