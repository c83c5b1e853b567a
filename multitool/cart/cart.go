// Package cart packs a directory of files into an NRFS cartridge image:
// the writer counterpart of emu/fsimage's reader, producing the exact
// flat, Adler-32-checked entry list emu/fsimage.Parse consumes. Grounded
// on the reference multitool/src/cart.rs and nr32-sys/src/fs.rs, adapted
// to the flat (non-recursive) entry list emu/fsimage already implements
// rather than nr32-sys's directory-recursive tree (see DESIGN.md).
package cart

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/nr32/nr32emu/emu/fsimage"
)

const headerSize = 16
const entryFixedSize = 12
const nameSize = 16
const entryHeaderSize = entryFixedSize + nameSize

// file is one staged cartridge entry prior to layout.
type file struct {
	name    string
	payload []byte
}

// Builder accumulates files to pack into one NRFS image.
type Builder struct {
	files []file
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// AddFile stages one named file. name must fit in the 16-byte NRFS name
// field once NUL-padded.
func (b *Builder) AddFile(name string, payload []byte) error {
	if len(name) > nameSize {
		return fmt.Errorf("cart: entry name %q longer than %d bytes", name, nameSize)
	}
	b.files = append(b.files, file{name: name, payload: payload})
	return nil
}

// AddDir walks dir recursively and stages every regular file it finds,
// naming each entry by its slash-separated path relative to dir.
func (b *Builder) AddDir(dir string) error {
	var names []string
	payloads := map[string][]byte{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		payloads[rel] = data
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(names) // deterministic layout across runs
	for _, name := range names {
		if err := b.AddFile(name, payloads[name]); err != nil {
			return err
		}
	}
	return nil
}

// align16 rounds n up to the next multiple of 16.
func align16(n int) int {
	return (n + 15) &^ 15
}

// Build serializes every staged file into one NRFS image. Entries are laid
// out back to back, 16-byte aligned, in insertion order; each entry's
// NextOffset points at the following entry's (16-byte aligned) start, and
// the last entry's NextOffset is 0, exactly as emu/fsimage.Parse expects.
func (b *Builder) Build() ([]byte, error) {
	off := headerSize
	starts := make([]int, len(b.files))
	for i, f := range b.files {
		starts[i] = off
		off = align16(off + entryHeaderSize + len(f.payload))
	}
	totalLen := off

	buf := make([]byte, totalLen)
	copy(buf, fsimage.Magic[:])

	for i, f := range b.files {
		start := starts[i]
		next := uint32(0)
		if i+1 < len(b.files) {
			next = uint32(starts[i+1])
		}
		nextWithType := next | uint32(fsimage.TypeFile)
		csum := fsimage.Adler32(f.payload)

		binary.LittleEndian.PutUint32(buf[start:], nextWithType)
		binary.LittleEndian.PutUint32(buf[start+4:], uint32(len(f.payload)))
		binary.LittleEndian.PutUint32(buf[start+8:], csum)

		nameBytes := []byte(f.name)
		copy(buf[start+entryFixedSize:start+entryFixedSize+nameSize], nameBytes)

		payloadStart := start + entryHeaderSize
		copy(buf[payloadStart:payloadStart+len(f.payload)], f.payload)
	}

	binary.LittleEndian.PutUint32(buf[4:], uint32(totalLen))
	csum := fsimage.Adler32(buf[headerSize:totalLen])
	binary.LittleEndian.PutUint32(buf[8:], csum)

	return buf, nil
}
