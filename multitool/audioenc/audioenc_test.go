package audioenc

import (
	"bytes"
	"testing"
)

func TestSPUStepMatchesBaseRate(t *testing.T) {
	if got := spuStep(48_000); got != 1<<12 {
		t.Fatalf("spuStep(48000) = %#x, want %#x", got, 1<<12)
	}
}

func TestSPUStepSaturatesAtFieldWidth(t *testing.T) {
	if got := spuStep(1_000_000); got != 0x3fff {
		t.Fatalf("spuStep(huge) = %#x, want 0x3fff", got)
	}
}

func TestDumpNRADWritesHeaderAndBlocks(t *testing.T) {
	samples := make([]int16, 40) // one full block + a short tail block
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	buf := &AudioBuffer{SampleRate: 48_000, Samples: samples}

	var out bytes.Buffer
	if err := buf.DumpNRAD(&out); err != nil {
		t.Fatalf("DumpNRAD: %v", err)
	}

	data := out.Bytes()
	if string(data[0:4]) != "NRAD" {
		t.Fatalf("magic = %q, want NRAD", data[0:4])
	}
	// header(4+2) + 2 blocks * 20 bytes
	wantLen := 6 + 2*20
	if len(data) != wantLen {
		t.Fatalf("output length = %d, want %d", len(data), wantLen)
	}
	if data[6] != 0 { // first block isn't the final one
		t.Fatalf("first block stop flag = %d, want 0", data[6])
	}
	if data[26] != 1 { // second (last) block
		t.Fatalf("last block stop flag = %d, want 1", data[26])
	}
}

func TestDumpNRADEmptyBufferWritesHeaderOnly(t *testing.T) {
	buf := &AudioBuffer{SampleRate: 48_000}
	var out bytes.Buffer
	if err := buf.DumpNRAD(&out); err != nil {
		t.Fatalf("DumpNRAD: %v", err)
	}
	if out.Len() != 6 {
		t.Fatalf("output length = %d, want 6 (header only)", out.Len())
	}
}
