// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import "strings"

// Free-text fields (names, comments, aliases) are stored inside a
// colon-delimited, newline-terminated format, so the characters that would
// break that framing are percent-encoded. The scheme is reversible:
// DecodeText(EncodeText(s)) == s for every string.

const escapeSet = "%:,\n\r"

// EncodeText escapes framing characters in a free-text field.
func EncodeText(s string) string {
	if !strings.ContainsAny(s, escapeSet) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(escapeSet, c) >= 0 {
			b.WriteByte('%')
			b.WriteByte(hexDigit(c >> 4))
			b.WriteByte(hexDigit(c & 0x0f))
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DecodeText reverses EncodeText. Malformed escapes are kept verbatim so a
// damaged field never fails the surrounding line.
func DecodeText(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) {
			hi, okHi := hexValue(s[i+1])
			lo, okLo := hexValue(s[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'A' + v - 10
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
