// Package audioenc converts a WAV file into NRAD: a 4-byte magic, one
// SPU_STEP divider word, then a run of fixed 20-byte ADPCM blocks. Grounded
// on the reference multitool/src/audio.rs; the actual per-nibble ADPCM
// math is shared with the emulator's playback path through emu/adpcm so
// an encoded cart and the SPU that plays it back stay bit-identical.
package audioenc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nr32/nr32emu/emu/adpcm"
)

// spuBaseHz is the NovaRave SPU's fixed playback rate; SPU_STEP scales a
// track's own sample rate against this base using 12 fractional bits.
const spuBaseHz = 48_000

// blockSamples is the number of PCM samples one 20-byte NRAD block covers:
// one full 16-bit seed sample plus 32 ADPCM-coded deltas.
const blockSamples = 33

// Options configures how a multi-channel WAV file is downmixed before
// encoding.
type Options struct {
	Channel int // -1 downmixes every channel by simple averaging
}

// DefaultOptions downmixes to mono, matching the reference tool's default.
func DefaultOptions() Options {
	return Options{Channel: -1}
}

// AudioBuffer holds decoded mono PCM16 samples ready to be ADPCM-encoded.
type AudioBuffer struct {
	SampleRate uint32
	Samples    []int16
}

// Load reads path as a WAV file and mixes it down to mono PCM16 per opts.
func Load(path string, opts Options) (*AudioBuffer, error) {
	raw, channels, rate, err := loadWAV(path)
	if err != nil {
		return nil, err
	}
	if channels == 0 {
		return nil, fmt.Errorf("audioenc: WAV file declares zero channels")
	}
	if opts.Channel >= 0 && opts.Channel >= channels {
		return nil, fmt.Errorf("audioenc: track has %d channel(s), channel %d requested", channels, opts.Channel)
	}

	frames := len(raw) / channels
	samples := make([]int16, frames)

	switch {
	case channels == 1:
		copy(samples, raw)
	case opts.Channel >= 0:
		for i := 0; i < frames; i++ {
			samples[i] = raw[i*channels+opts.Channel]
		}
	default:
		for i := 0; i < frames; i++ {
			sum := int32(0)
			for c := 0; c < channels; c++ {
				sum += int32(raw[i*channels+c])
			}
			samples[i] = int16(sum / int32(channels))
		}
	}

	return &AudioBuffer{SampleRate: rate, Samples: samples}, nil
}

// spuStep computes the SPU_STEP divider for sampleRate, rounding to the
// nearest representable 12-bit-fraction step and saturating at the
// hardware's 14-bit field width.
func spuStep(sampleRate uint32) uint16 {
	step := (uint64(sampleRate)<<12 + spuBaseHz/2) / spuBaseHz
	if step > 0x3fff {
		step = 0x3fff
	}
	return uint16(step)
}

// DumpNRAD writes b as an NRAD stream: magic, SPU_STEP, then one 20-byte
// ADPCM block per 33 source samples, the step index carried across blocks.
func (b *AudioBuffer) DumpNRAD(w io.Writer) error {
	if _, err := w.Write([]byte("NRAD")); err != nil {
		return err
	}
	step := spuStep(b.SampleRate)
	if err := binary.Write(w, binary.LittleEndian, step); err != nil {
		return err
	}

	samples := b.Samples
	if len(samples) == 0 {
		return nil
	}

	nBlocks := (len(samples) + blockSamples - 1) / blockSamples
	index := 0
	for i := 0; i < nBlocks; i++ {
		start := i * blockSamples
		stop := i+1 == nBlocks

		var chunk [blockSamples]int16
		for j := range chunk {
			if start+j < len(samples) {
				chunk[j] = samples[start+j]
			} else {
				chunk[j] = chunk[maxInt(j-1, 0)] // pad a short tail with its last sample
			}
		}

		predictor := chunk[0]
		var deltas [32]int16
		copy(deltas[:], chunk[1:])

		blk, _, nextIndex := adpcm.Encode(deltas, predictor, index, stop)
		index = nextIndex

		if err := writeBlock(w, blk); err != nil {
			return err
		}
	}
	return nil
}

func writeBlock(w io.Writer, blk adpcm.Block) error {
	stopByte := byte(0)
	if blk.Stop {
		stopByte = 1
	}
	if _, err := w.Write([]byte{stopByte, byte(blk.StepIndex)}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blk.Sample0); err != nil {
		return err
	}
	_, err := w.Write(blk.Payload[:])
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
