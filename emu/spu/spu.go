// Package spu implements the NR32 SPU: a sample sequencer ticking at
// CPU_FREQ/44100, decoding ADPCM blocks out of a 512 KiB SPU RAM into a
// stereo output buffer that DrainFrame hands to the host audio sink.
package spu

import "github.com/nr32/nr32emu/emu/adpcm"

// SPURAMSize is the SPU's dedicated sample RAM. No MMIO register and no
// DMA transfer writes it; its contents are reached only through RAMBytes.
const SPURAMSize = 512 * 1024

const (
	regCtrl     = 0x0 // bit 0: play/stop; bits 8-31: written as the index of the first 20-byte block, read back as the current block's byte address
	regPredictor = 0x4
)

const blockSize = 20 // bytes per NRAD block (1+1+2+16)

// Sink receives drained stereo samples once per frame.
type Sink interface {
	QueueSamples(samples []int16) // interleaved L,R
}

// Spu is the SPU's MMIO-facing and cycle-driven state.
type Spu struct {
	ram []byte

	playing   bool
	blockAddr uint32
	predictor int16
	stepIndex int
	sampleBuf []int16 // decoded samples not yet drained, mono
	posInBlk  int
	curBlock  adpcm.Block
	haveBlock bool

	accumCycles uint64
	samplePeriod uint64 // CPU_FREQ/44100, in cycles per sample

	out  Sink
	frame []int16
}

// New builds an Spu driven at the given CPU_FREQ-derived sample period.
func New(out Sink, samplePeriodCycles uint64) *Spu {
	return &Spu{
		ram:          make([]byte, SPURAMSize),
		samplePeriod: samplePeriodCycles,
		out:          out,
	}
}

// LoadWord implements bus.MMIO for the SPU's control registers; sample
// data itself is reached only through RAMBytes below.
func (s *Spu) LoadWord(offset uint32) uint32 {
	switch offset {
	case regCtrl:
		v := s.blockAddr << 8
		if s.playing {
			v |= 1
		}
		return v
	case regPredictor:
		return uint32(uint16(s.predictor))
	default:
		return 0
	}
}

// StoreWord implements bus.MMIO.
func (s *Spu) StoreWord(offset uint32, val uint32) {
	switch offset {
	case regCtrl:
		s.playing = val&1 != 0
		s.blockAddr = (val >> 8) * blockSize
		s.posInBlk = 0
		s.haveBlock = false
	}
}

// RAMBytes exposes the SPU's sample RAM backing array.
func (s *Spu) RAMBytes() []byte { return s.ram }

func (s *Spu) loadNextBlock() bool {
	if int(s.blockAddr)+blockSize > len(s.ram) {
		return false
	}
	raw := s.ram[s.blockAddr : s.blockAddr+blockSize]
	blk := adpcm.Block{
		Stop:      raw[0] != 0,
		StepIndex: int8(raw[1]),
		Sample0:   int16(uint16(raw[2]) | uint16(raw[3])<<8),
	}
	copy(blk.Payload[:], raw[4:20])
	s.curBlock = blk
	s.predictor = blk.Sample0
	s.stepIndex = int(blk.StepIndex)
	s.haveBlock = true
	s.posInBlk = 0
	return true
}

// Tick advances the SPU by n cycles, emitting samples at the configured
// rate; each emitted sample is decoded one ADPCM nibble at a time and
// buffered as stereo (duplicated mono-to-stereo, since NR32 has a single
// ADPCM voice).
func (s *Spu) Tick(n uint64) {
	if !s.playing {
		return
	}
	s.accumCycles += n
	for s.accumCycles >= s.samplePeriod {
		s.accumCycles -= s.samplePeriod
		s.emitOneSample()
	}
}

func (s *Spu) emitOneSample() {
	if !s.haveBlock {
		if !s.loadNextBlock() {
			s.playing = false
			return
		}
	}
	if s.posInBlk >= 32 {
		if s.curBlock.Stop {
			s.playing = false
			return
		}
		s.blockAddr += blockSize
		if !s.loadNextBlock() {
			s.playing = false
			return
		}
	}
	var code uint8
	if s.posInBlk%2 == 0 {
		code = s.curBlock.Payload[s.posInBlk/2] & 0xF
	} else {
		code = (s.curBlock.Payload[s.posInBlk/2] >> 4) & 0xF
	}
	delta, nidx := adpcm.DecodeNibble(code, s.stepIndex)
	pred := int32(s.predictor)
	if code&8 != 0 {
		pred -= delta
	} else {
		pred += delta
	}
	if pred > 32767 {
		pred = 32767
	}
	if pred < -32768 {
		pred = -32768
	}
	s.predictor = int16(pred)
	s.stepIndex = nidx
	s.posInBlk++

	s.frame = append(s.frame, s.predictor, s.predictor)
}

// DrainFrame flushes the buffered stereo samples to the host audio sink.
// emu/machine's driver loop does not call it; samples stay buffered until
// a caller does.
func (s *Spu) DrainFrame() {
	if len(s.frame) == 0 || s.out == nil {
		s.frame = s.frame[:0]
		return
	}
	s.out.QueueSamples(s.frame)
	s.frame = s.frame[:0]
}
