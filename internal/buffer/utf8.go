package buffer

import "unicode/utf8"

// SplitIncompleteRune splits p before a trailing UTF-8 sequence that is cut
// short, so the tail can be held back until the rest of it arrives. Invalid
// bytes are not held back.
func SplitIncompleteRune(p []byte) (complete, rest []byte) {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return p, nil
		}
		return p[:i], p[i:]
	}
	return p, nil
}

// TrimPartialRune drops continuation bytes at the start of p, left over when
// a ring buffer overwrote the beginning of a sequence.
func TrimPartialRune(p []byte) []byte {
	i := 0
	for i < len(p) && i < utf8.UTFMax-1 && !utf8.RuneStart(p[i]) {
		i++
	}
	return p[i:]
}
