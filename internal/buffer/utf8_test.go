package buffer

import (
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestSplitIncompleteRune(t *testing.T) {
	euro := []byte("€") // e2 82 ac

	complete, rest := SplitIncompleteRune(append([]byte("ab"), euro[:2]...))
	assert.Equal(t, "ab", string(complete))
	assert.Equal(t, euro[:2], rest)

	complete, rest = SplitIncompleteRune([]byte("ab€"))
	assert.Equal(t, "ab€", string(complete))
	assert.Empty(t, rest)

	complete, rest = SplitIncompleteRune(euro[:1])
	assert.Empty(t, complete)
	assert.Equal(t, euro[:1], rest)

	// Stray continuation bytes and invalid lead bytes pass through.
	for _, p := range [][]byte{{0x80, 0x80, 0x80, 0x80}, {'a', 0xff}, {}} {
		complete, rest = SplitIncompleteRune(p)
		assert.Equal(t, p, complete)
		assert.Empty(t, rest)
	}
}

func TestTrimPartialRune(t *testing.T) {
	euro := []byte("€")
	assert.Equal(t, "x", string(TrimPartialRune(append(euro[1:], 'x'))))
	assert.Equal(t, "€x", string(TrimPartialRune([]byte("€x"))))
	assert.Empty(t, TrimPartialRune(euro[2:]))
	assert.Equal(t, []byte{0x80}, TrimPartialRune([]byte{0x80, 0x80, 0x80, 0x80}))
}

// Splitting text anywhere and carrying the incomplete tail forward emits only
// valid UTF-8 and loses no bytes.
func TestSplitIncompleteRuneCarryProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("carry reassembles every chunking", prop.ForAll(
		func(s string, cuts []int) bool {
			data := []byte(s)
			var carry, out []byte
			prev := 0
			for _, c := range append(cuts, len(data)) {
				c = c % (len(data) + 1)
				if c < prev {
					continue
				}
				chunk := append(carry, data[prev:c]...)
				complete, rest := SplitIncompleteRune(chunk)
				if !utf8.Valid(complete) {
					return false
				}
				out = append(out, complete...)
				carry = append([]byte(nil), rest...)
				prev = c
			}
			return len(carry) == 0 && string(out) == s
		},
		gen.AnyString(),
		gen.SliceOf(gen.IntRange(0, 64)),
	))

	properties.TestingRun(t)
}
