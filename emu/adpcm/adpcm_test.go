package adpcm

import "testing"

func TestEncodeDecodeIdempotentWithinQuantization(t *testing.T) {
	var samples [32]int16
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	blk, _, _ := Encode(samples, 0, 0, false)
	decoded, _, _ := Decode(blk, 0, 0)
	for i, want := range samples {
		got := decoded[i]
		diff := int(got) - int(want)
		if diff < 0 {
			diff = -diff
		}
		if diff > 600 {
			t.Fatalf("sample %d: got %d want ~%d (diff %d)", i, got, want, diff)
		}
	}
}

func TestStepAndIndexTableSizes(t *testing.T) {
	if len(StepTable) != 89 {
		t.Fatalf("expected 89 step entries, got %d", len(StepTable))
	}
	if StepTable[0] != 7 || StepTable[88] != 32767 {
		t.Fatalf("unexpected boundary values: %d %d", StepTable[0], StepTable[88])
	}
	if IndexTable != [8]int8{-1, -1, -1, -1, 2, 4, 6, 8} {
		t.Fatalf("unexpected index table: %v", IndexTable)
	}
}

func TestSilenceRoundTrips(t *testing.T) {
	var samples [32]int16
	blk, _, _ := Encode(samples, 0, 0, true)
	decoded, _, _ := Decode(blk, 0, 0)
	for i, s := range decoded {
		if s > 50 || s < -50 {
			t.Fatalf("sample %d: expected near-silence, got %d", i, s)
		}
	}
}
