// Package scan holds stateless queries over the hex encoded command stream
// of a replay. Offsets are character offsets into the hex text, so one byte
// of the original file spans two offsets.
package scan

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Body is the lowercase hex text following the replay header.
type Body string

// sub is a bounds-clamped substring. Out of range requests shrink instead
// of panicking.
func (b Body) sub(i, j int) string {
	if i < 0 {
		i = 0
	}
	if j > len(b) {
		j = len(b)
	}
	if i >= j {
		return ""
	}
	return string(b[i:j])
}

// from returns the suffix starting at i. A negative i counts from the end,
// so a failed search (-1) yields the final character.
func (b Body) from(i int) string {
	if i < 0 {
		i += len(b)
		if i < 0 {
			i = 0
		}
	}
	if i > len(b) {
		return ""
	}
	return string(b[i:])
}

// Tail returns the last n characters.
func (b Body) Tail(n int) string {
	return b.from(-n)
}

// Frame decodes the 4 byte little-endian frame stored in the 8 characters
// before off. Offsets below 8 (including the -1 of a failed search) read as 0.
func (b Body) Frame(off int) int {
	if off < 8 {
		return 0
	}
	return LE(b.sub(off-8, off))
}

// FrameHex is the raw 8 character frame before off.
func (b Body) FrameHex(off int) string {
	if off < 8 {
		return ""
	}
	return b.sub(off-8, off)
}

// CRC decodes the checksum of a logic CRC message whose frame starts at off.
func (b Body) CRC(off int) int {
	if off < 0 {
		return 0
	}
	return LE(b.sub(off+34, off+44))
}

// CRCHexAt is the raw checksum field of the CRC check signature at off.
func (b Body) CRCHexAt(off int) string {
	if off < 0 {
		return ""
	}
	return b.sub(off+26, off+34)
}

// ByteAt decodes the single byte at off.
func (b Body) ByteAt(off int) int {
	if off < 0 {
		return 0
	}
	return LE(b.sub(off, off+2))
}

// Index is strings.Index over the body.
func (b Body) Index(sig string) int {
	return strings.Index(string(b), sig)
}

// IndexFrom finds sig at or after start.
func (b Body) IndexFrom(sig string, start int) int {
	if start < 0 {
		start = 0
	}
	if start > len(b) {
		return -1
	}
	i := strings.Index(string(b[start:]), sig)
	if i < 0 {
		return -1
	}
	return i + start
}

// LastIndex is strings.LastIndex over the body.
func (b Body) LastIndex(sig string) int {
	return strings.LastIndex(string(b), sig)
}

// LastIndexBefore finds the last sig that ends at or before end.
func (b Body) LastIndexBefore(sig string, end int) int {
	if end < 0 {
		return -1
	}
	if end > len(b) {
		end = len(b)
	}
	return strings.LastIndex(string(b[:end]), sig)
}

// Contains reports whether sig occurs anywhere.
func (b Body) Contains(sig string) bool {
	return strings.Contains(string(b), sig)
}

// LE decodes little-endian hex. Malformed input decodes as 0.
func LE(h string) int {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return 0
	}
	v := 0
	for i := len(raw) - 1; i >= 0; i-- {
		v = v<<8 | int(raw[i])
	}
	return v
}

// LE32 encodes n as 4 byte little-endian hex.
func LE32(n int) string {
	u := uint32(n)
	return fmt.Sprintf("%02x%02x%02x%02x", byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

// Nibble parses one hex digit, -1 when invalid.
func Nibble(s string) int {
	if len(s) != 1 {
		return -1
	}
	c := s[0]
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// Match is one regexp hit.
type Match struct {
	Text  string
	Start int
}

// FindAll returns every non-overlapping match of re in order.
func (b Body) FindAll(re *regexp.Regexp) []Match {
	locs := re.FindAllStringIndex(string(b), -1)
	out := make([]Match, len(locs))
	for i, l := range locs {
		out[i] = Match{Text: string(b[l[0]:l[1]]), Start: l[0]}
	}
	return out
}
