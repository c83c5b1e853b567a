// Package fsimage reads the NRFS file-system image format: a flat,
// Adler-32 checked directory tree of 16-byte-aligned entries, resident in
// ROM and consumed by user tasks (never by the kernel core itself).
// Grounded on the reference nr32-sys/src/fs.rs.
package fsimage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ModAdler is the Adler-32 modulus NRFS uses.
const ModAdler = 65521

// Magic is the image's leading identifier.
var Magic = [4]byte{'N', 'R', 'F', 'S'}

// EntryType is encoded in the low nibble of an entry's next-pointer word.
type EntryType byte

const (
	TypeFile EntryType = iota
	TypeDir
)

// Entry is one 16-byte-aligned directory record.
type Entry struct {
	NextOffset uint32 // offset of the next sibling entry, 0 if last
	Type       EntryType
	Length     uint32
	Checksum   uint32
	Name       string // up to 16 bytes, NUL-trimmed
	Payload    []byte // file contents, or nil for directories
}

// Image is a parsed NRFS image.
type Image struct {
	TotalLen uint32
	Checksum uint32
	Entries  []Entry
}

var errTooShort = errors.New("fsimage: image too short")
var errBadMagic = errors.New("fsimage: bad magic")

// Adler32 computes the NRFS checksum over data.
func Adler32(data []byte) uint32 {
	var a, b uint32 = 1, 0
	for _, c := range data {
		a = (a + uint32(c)) % ModAdler
		b = (b + a) % ModAdler
	}
	return b<<16 | a
}

const headerSize = 16 // magic(4) + total_len(4) + adler32(4) + pad(4)
const entryHeaderSize = entryFixedSize + nameSize // next_ptr(4) + length(4) + csum(4) + name(16)

// Per §3: entry is {next_ptr_with_type_in_low_nibble, length, csum,
// name[16]} — 12 bytes of fixed fields plus a 16-byte name, aligned to 16.
const entryFixedSize = 12
const nameSize = 16

// Parse decodes an NRFS image from raw bytes.
func Parse(raw []byte) (*Image, error) {
	if len(raw) < headerSize {
		return nil, errTooShort
	}
	if raw[0] != Magic[0] || raw[1] != Magic[1] || raw[2] != Magic[2] || raw[3] != Magic[3] {
		return nil, errBadMagic
	}
	totalLen := binary.LittleEndian.Uint32(raw[4:8])
	csum := binary.LittleEndian.Uint32(raw[8:12])

	img := &Image{TotalLen: totalLen, Checksum: csum}

	off := headerSize
	for off+entryFixedSize+nameSize <= len(raw) && uint32(off) < totalLen {
		nextWithType := binary.LittleEndian.Uint32(raw[off : off+4])
		length := binary.LittleEndian.Uint32(raw[off+4 : off+8])
		ecsum := binary.LittleEndian.Uint32(raw[off+8 : off+12])
		name := trimName(raw[off+12 : off+12+nameSize])

		entry := Entry{
			NextOffset: nextWithType &^ 0xF,
			Type:       EntryType(nextWithType & 0xF),
			Length:     length,
			Checksum:   ecsum,
			Name:       name,
		}
		payloadStart := off + entryFixedSize + nameSize
		if entry.Type == TypeFile {
			payloadEnd := payloadStart + int(length)
			if payloadEnd > len(raw) {
				return nil, fmt.Errorf("fsimage: entry %q payload overruns image", name)
			}
			entry.Payload = raw[payloadStart:payloadEnd]
		}
		img.Entries = append(img.Entries, entry)

		if entry.NextOffset == 0 {
			break
		}
		off = int(entry.NextOffset)
	}
	return img, nil
}

// Verify recomputes the Adler-32 checksum over [headerSize:TotalLen) and
// compares it against the stored value.
func (img *Image) Verify(raw []byte) bool {
	if int(img.TotalLen) > len(raw) || img.TotalLen < headerSize {
		return false
	}
	got := Adler32(raw[headerSize:img.TotalLen])
	return got == img.Checksum
}

// Find looks up an entry by exact name.
func (img *Image) Find(name string) (Entry, bool) {
	for _, e := range img.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func trimName(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
