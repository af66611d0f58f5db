package replay

import (
	"bytes"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Bytes with no mapping in Windows-1252. x/text maps them to C1 controls,
// but a strict cp1252 decoder rejects them and the game tooling then falls
// back to Latin-1, which we reproduce.
var cp1252Undefined = []byte{0x81, 0x8d, 0x8f, 0x90, 0x9d}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)

// decodeNarrow decodes a single-byte-terminated field: UTF-8, then
// Windows-1252, then Latin-1.
func decodeNarrow(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return decodeLegacy(b)
}

func decodeLegacy(b []byte) string {
	dec := charmap.Windows1252.NewDecoder()
	if bytes.ContainsAny(b, string(cp1252Undefined)) {
		dec = charmap.ISO8859_1.NewDecoder()
	}
	out, err := dec.Bytes(b)
	if err != nil {
		// ISO8859_1 decodes every byte
		out, _ = charmap.ISO8859_1.NewDecoder().Bytes(b)
	}
	return string(out)
}

// decodeWide decodes a double-null-terminated UTF-16 field. Odd lengths and
// unpaired surrogates fall back to the single-byte chain over the raw bytes.
func decodeWide(b []byte) string {
	if len(b)%2 != 0 || !validUTF16LE(b) {
		return decodeLegacy(b)
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return decodeLegacy(b)
	}
	return string(out)
}

func validUTF16LE(b []byte) bool {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])|uint16(b[i+1])<<8)
	}
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xdc00 || i+1 >= len(units) {
			return false
		}
		next := rune(units[i+1])
		if next < 0xdc00 || next > 0xdfff {
			return false
		}
		i++
	}
	return true
}

func encodeWide(s string) []byte {
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}

// Latin1 re-encodes text as ISO-8859-1. Runes outside the charset yield an
// *EncodingError.
func Latin1(field, s string) ([]byte, error) {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &EncodingError{Field: field, Err: err}
	}
	return out, nil
}
