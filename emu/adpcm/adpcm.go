// Package adpcm implements the NRAD IMA-ADPCM-like codec used by the SPU
// and the multitool's audio encoder: a fixed 89-entry step table and an
// 8-entry index-offset table applied to 4-bit nibble deltas.
package adpcm

// StepTable holds the 89 ADPCM step sizes, verbatim from the glossary.
var StepTable = [89]int16{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17, 19, 21, 23, 25, 28, 31, 34, 37, 41,
	45, 50, 55, 60, 66, 73, 80, 88, 97, 107, 118, 130, 143, 157, 173, 190,
	209, 230, 253, 279, 307, 337, 371, 408, 449, 494, 544, 598, 658, 724,
	796, 876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066, 2272,
	2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358, 5894, 6484, 7132,
	7845, 8630, 9493, 10442, 11487, 12635, 13899, 15289, 16818, 18500,
	20350, 22385, 24623, 27086, 29794, 32767,
}

// IndexTable holds the 8-entry index-offset table.
var IndexTable = [8]int8{-1, -1, -1, -1, 2, 4, 6, 8}

func clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i > 88 {
		return 88
	}
	return i
}

func clampSample(s int32) int16 {
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}

// EncodeNibble produces the 4-bit ADPCM code for delta = sample - predictor,
// given the current step index, and returns the code alongside the
// decoder-equivalent predictor step and next index (so the encoder and decoder
// stay bit-identical, matching the reference encoder in multitool).
func EncodeNibble(delta int32, stepIndex int) (code uint8, nextPredictorDelta int32, nextIndex int) {
	step := int32(StepTable[clampIndex(stepIndex)])
	sign := uint8(0)
	if delta < 0 {
		sign = 0x8
		delta = -delta
	}
	diff := delta
	var codeMag uint8
	tempStep := step
	if diff >= tempStep {
		codeMag |= 4
		diff -= tempStep
	}
	tempStep >>= 1
	if diff >= tempStep {
		codeMag |= 2
		diff -= tempStep
	}
	tempStep >>= 1
	if diff >= tempStep {
		codeMag |= 1
	}
	code = sign | codeMag
	nextPredictorDelta, nextIndex = DecodeNibble(code, stepIndex)
	return code, nextPredictorDelta, nextIndex
}

// DecodeNibble applies one ADPCM code against stepIndex, returning the
// unsigned predictor step and the updated index. Callers subtract the
// step from the running sample when bit 3 of code is set and add it
// otherwise.
func DecodeNibble(code uint8, stepIndex int) (delta int32, nextIndex int) {
	step := int32(StepTable[clampIndex(stepIndex)])
	diff := step >> 3
	if code&4 != 0 {
		diff += step
	}
	if code&2 != 0 {
		diff += step >> 1
	}
	if code&1 != 0 {
		diff += step >> 2
	}
	nextIndex = clampIndex(stepIndex + int(IndexTable[code&7]))
	return diff, nextIndex
}

// Block is one 20-byte NRAD block: a stop flag, starting step index,
// seed sample, and 32 packed 4-bit deltas (16 bytes).
type Block struct {
	Stop      bool
	StepIndex int8
	Sample0   int16
	Payload   [16]byte
}

// Encode converts 32 consecutive PCM samples into one Block, carrying
// forward predictor/index state the same way the reference encoder does.
func Encode(samples [32]int16, predictor int16, stepIndex int, stop bool) (Block, int16, int) {
	var blk Block
	blk.Stop = stop
	blk.StepIndex = int8(stepIndex)
	blk.Sample0 = predictor
	pred := int32(predictor)
	idx := stepIndex
	for i, s := range samples {
		delta := int32(s) - pred
		code, step, nidx := EncodeNibble(delta, idx)
		if code&8 != 0 {
			pred -= step
		} else {
			pred += step
		}
		pred = int32(clampSample(pred))
		idx = nidx
		if i%2 == 0 {
			blk.Payload[i/2] = code
		} else {
			blk.Payload[i/2] |= code << 4
		}
	}
	return blk, int16(pred), idx
}

// Decode reproduces the 32 PCM samples a Block encodes, given the running
// predictor and step index carried from the previous block.
func Decode(blk Block, predictor int16, stepIndex int) ([32]int16, int16, int) {
	var out [32]int16
	pred := int32(predictor)
	idx := stepIndex
	for i := 0; i < 32; i++ {
		var code uint8
		if i%2 == 0 {
			code = blk.Payload[i/2] & 0xF
		} else {
			code = (blk.Payload[i/2] >> 4) & 0xF
		}
		delta, nidx := DecodeNibble(code, idx)
		if code&8 != 0 {
			pred -= delta
		} else {
			pred += delta
		}
		pred = int32(clampSample(pred))
		idx = nidx
		out[i] = int16(pred)
	}
	return out, int16(pred), idx
}
