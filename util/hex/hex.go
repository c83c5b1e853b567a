/*
 * NR32 - Convert bytes/words to hex strings.
 *
 * Copyright 2026, NR32 contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package hex

import "strings"

var hexMap = "0123456789ABCDEF"

// FormatWord appends each 32-bit word as 8 hex digits followed by a space.
func FormatWord(str *strings.Builder, word []uint32) {
	for _, full := range word {
		shift := 28
		for range 8 {
			str.WriteByte(hexMap[(full>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

// FormatBytes appends each byte as two hex digits, optionally space separated.
func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

// FormatByte appends a single byte as two hex digits.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// Dump renders addr plus up to 16 bytes per line, similar to hexdump -C
// but without the ASCII gutter (used by the debug console and CLI tools).
func Dump(base uint32, data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		addr := uint32(off) + base
		b.WriteByte(hexMap[(addr>>28)&0xf])
		b.WriteByte(hexMap[(addr>>24)&0xf])
		b.WriteByte(hexMap[(addr>>20)&0xf])
		b.WriteByte(hexMap[(addr>>16)&0xf])
		b.WriteByte(hexMap[(addr>>12)&0xf])
		b.WriteByte(hexMap[(addr>>8)&0xf])
		b.WriteByte(hexMap[(addr>>4)&0xf])
		b.WriteByte(hexMap[addr&0xf])
		b.WriteString("  ")
		FormatBytes(&b, true, data[off:end])
		b.WriteByte('\n')
	}
	return b.String()
}
