package fsimage

import (
	"encoding/binary"
	"testing"
)

func buildImage(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	entryFixed := make([]byte, entryFixedSize+nameSize)
	binary.LittleEndian.PutUint32(entryFixed[0:4], 0) // next=0 (last), type=TypeFile=0
	binary.LittleEndian.PutUint32(entryFixed[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(entryFixed[8:12], Adler32(payload))
	copy(entryFixed[12:12+nameSize], name)

	body := append(entryFixed, payload...)
	totalLen := headerSize + len(body)

	raw := make([]byte, totalLen)
	copy(raw[0:4], Magic[:])
	binary.LittleEndian.PutUint32(raw[4:8], uint32(totalLen))
	csum := Adler32(append(append([]byte{}, entryFixed...), payload...))
	binary.LittleEndian.PutUint32(raw[8:12], csum)
	copy(raw[headerSize:], body)
	return raw
}

func TestParseAndFind(t *testing.T) {
	raw := buildImage(t, "hello.txt", []byte("hello world"))
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e, ok := img.Find("hello.txt")
	if !ok {
		t.Fatal("entry not found")
	}
	if string(e.Payload) != "hello world" {
		t.Fatalf("got %q", e.Payload)
	}
}

func TestVerifyChecksum(t *testing.T) {
	raw := buildImage(t, "a.bin", []byte{1, 2, 3, 4})
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !img.Verify(raw) {
		t.Fatal("expected checksum to verify")
	}
	raw[len(raw)-1] ^= 0xFF
	if img.Verify(raw) {
		t.Fatal("expected checksum mismatch after corruption")
	}
}

func TestBadMagicRejected(t *testing.T) {
	raw := make([]byte, 32)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error on bad magic")
	}
}
