package cart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nr32/nr32emu/emu/fsimage"
)

func TestBuildRoundTripsThroughFsimageParse(t *testing.T) {
	b := New()
	if err := b.AddFile("hello.txt", []byte("hello world")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := b.AddFile("data.bin", []byte{0, 1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	raw, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	img, err := fsimage.Parse(raw)
	if err != nil {
		t.Fatalf("fsimage.Parse: %v", err)
	}
	if !img.Verify(raw) {
		t.Fatal("fsimage.Verify reported a checksum mismatch")
	}
	if len(img.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(img.Entries))
	}

	e, ok := img.Find("hello.txt")
	if !ok {
		t.Fatal("hello.txt not found")
	}
	if string(e.Payload) != "hello world" {
		t.Fatalf("hello.txt payload = %q", e.Payload)
	}

	e2, ok := img.Find("data.bin")
	if !ok {
		t.Fatal("data.bin not found")
	}
	if len(e2.Payload) != 6 {
		t.Fatalf("data.bin payload length = %d, want 6", len(e2.Payload))
	}
}

func TestAddDirWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("B"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := New()
	if err := b.AddDir(dir); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	raw, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := fsimage.Parse(raw)
	if err != nil {
		t.Fatalf("fsimage.Parse: %v", err)
	}
	if _, ok := img.Find("a.txt"); !ok {
		t.Fatal("a.txt missing")
	}
	if _, ok := img.Find("sub/b.txt"); !ok {
		t.Fatal("sub/b.txt missing")
	}
}

func TestAddFileRejectsLongNames(t *testing.T) {
	b := New()
	if err := b.AddFile("this-name-is-way-too-long-for-nrfs.txt", []byte("x")); err == nil {
		t.Fatal("expected an error for an over-length name")
	}
}
