package parser

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeSource converts raw file bytes to text, trying UTF-8 first,
// then BOM-marked UTF-16, then Latin-1, before falling back to the raw
// bytes unchanged.
func decodeSource(raw []byte) string {
	if bytes.HasPrefix(raw, bomUTF8) {
		raw = raw[len(bomUTF8):]
	}
	if utf8.Valid(raw) {
		return string(raw)
	}

	if bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if out, _, err := transform.Bytes(dec, raw); err == nil {
			return string(out)
		}
	}

	if out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), raw); err == nil {
		return string(out)
	}

	return string(raw)
}
