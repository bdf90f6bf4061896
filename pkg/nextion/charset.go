// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"golang.org/x/text/encoding/charmap"
)

// Replacement is emitted for code points the panel font cannot show
const Replacement = '?'

// escapeByte prefixes characters that would end or break a quoted string
const escapeByte = '\\'

// ToDisplayCharset converts UTF-8 text to the panel's ISO-8859-15 font.
//
// Decoding is permissive: malformed sequences are folded into whatever code
// point the payload bits produce instead of being rejected, and code points
// above U+10FFFF are dropped. Conversion stops at the first NUL byte, which
// the panel would read as the end of the string. Code points up to U+00FF
// keep their byte value, except the eight Latin-1 positions that ISO-8859-15
// reassigns; those and all other characters outside ISO-8859-15 become '?'.
// Double quote and backslash are escaped with a backslash so the result can
// be placed inside a quoted text command.
func ToDisplayCharset(s string) []byte {
	out := make([]byte, 0, len(s))
	var cp rune

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == 0 {
			break
		}
		switch {
		case ch <= 0x7F:
			cp = rune(ch)
		case ch <= 0xBF:
			cp = cp<<6 | rune(ch&0x3F)
		case ch <= 0xDF:
			cp = rune(ch & 0x1F)
		case ch <= 0xEF:
			cp = rune(ch & 0x0F)
		default:
			cp = rune(ch & 0x07)
		}

		// Emit once the sequence is complete: the next byte is not a
		// continuation byte
		if i+1 < len(s) && s[i+1]&0xC0 == 0x80 {
			continue
		}
		if cp > 0x10FFFF {
			continue
		}

		b := encodeRune(cp)
		if b == '"' || b == escapeByte {
			out = append(out, escapeByte)
		}
		out = append(out, b)
	}
	return out
}

// reassigned holds the Latin-1 positions ISO-8859-15 uses for other glyphs
var reassigned = map[rune]bool{
	0xA4: true, 0xA6: true, 0xA8: true, 0xB4: true,
	0xB8: true, 0xBC: true, 0xBD: true, 0xBE: true,
}

// encodeRune maps one code point to ISO-8859-15
func encodeRune(cp rune) byte {
	if cp <= 0xFF {
		if reassigned[cp] {
			return Replacement
		}
		return byte(cp)
	}
	if b, ok := charmap.ISO8859_15.EncodeRune(cp); ok {
		return b
	}
	return Replacement
}
