// Package codes generates and normalizes the short session codes
// participants type in by hand or reach through a shared link.
package codes

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet is A-Z and 2-9 without 0, O, I, L and 1 (31 symbols).
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const rejectAbove = 256 - 256%len(Alphabet)

const (
	DefaultLength = 6
	LongLength    = 8
)

// Generate returns a random code of the given length. A non-positive length
// falls back to DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			// Reject the tail of the byte range so every symbol is equally likely.
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Validate reports whether code has exactly length characters and every one
// of them is alphanumeric once uppercased.
func Validate(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range strings.ToUpper(code) {
		if !isAlnum(c) {
			return false
		}
	}
	return true
}

// Format uppercases raw and strips everything that is not A-Z or 0-9.
func Format(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range strings.ToUpper(raw) {
		if isAlnum(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ShareURL builds the link participants scan: <base>/<appType>/<code>.
func ShareURL(base, appType, code string) string {
	return strings.TrimRight(base, "/") + "/" + appType + "/" + Format(code)
}

func isAlnum(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
