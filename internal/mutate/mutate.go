// Package mutate implements the mutation engine (C2): pure,
// reentrant, seed-deterministic buffer transforms, adapted from
// honggfuzz's mangle_Resize/mangle_mangleContent in mangle.c.
package mutate

import (
	"math/rand"
)

// Kind identifies which perturbation mangle applied to a given byte, for
// callers that want to log or test the mix of operations performed.
type Kind int

const (
	// KindByteReplace overwrites a byte with a uniformly random value.
	KindByteReplace Kind = iota
	// KindDictToken overwrites a run of bytes with a dictionary token.
	KindDictToken
	// KindBitFlip flips a single random bit within a byte.
	KindBitFlip
)

// Resize grows or shrinks buf in place, returning a buffer whose length
// lies in [1, maxSize]. The resize policy carries no content invariant
// beyond legal sizing: spec.md §4.2 only requires the output size be
// legal. This mirrors mangle_Resize's coin-flip grow/shrink-by-a-random-
// amount behavior, rather than any particular resize strategy.
func Resize(rnd *rand.Rand, buf []byte, maxSize int) []byte {
	if maxSize < 1 {
		maxSize = 1
	}
	if len(buf) == 0 {
		return append(buf, 0)
	}
	if rnd.Intn(2) == 0 {
		// Shrink: cut somewhere in [1, len(buf)].
		n := 1 + rnd.Intn(len(buf))
		return buf[:n]
	}
	// Grow: append up to maxSize-len(buf) zero bytes.
	room := maxSize - len(buf)
	if room <= 0 {
		return buf
	}
	n := rnd.Intn(room + 1)
	for i := 0; i < n; i++ {
		buf = append(buf, 0)
	}
	return buf
}

// Mangle applies random byte-level perturbations to buf in place. The
// expected perturbation count is flipRate * len(buf); flipRate == 0 is
// legal and means "no mutation" (dry run). When dict is non-empty, a
// fraction of perturbations substitute a dictionary token instead of a
// single random byte or bit flip.
func Mangle(rnd *rand.Rand, buf []byte, flipRate float64, dict [][]byte) {
	if len(buf) == 0 || flipRate <= 0 {
		return
	}

	count := int(flipRate * float64(len(buf)))
	if count == 0 && rnd.Float64() < flipRate*float64(len(buf)) {
		count = 1
	}

	for i := 0; i < count; i++ {
		pos := rnd.Intn(len(buf))
		switch pickKind(rnd, len(dict) > 0) {
		case KindDictToken:
			tok := dict[rnd.Intn(len(dict))]
			applyToken(buf, pos, tok)
		case KindBitFlip:
			bit := uint(rnd.Intn(8))
			buf[pos] ^= 1 << bit
		default:
			buf[pos] = byte(rnd.Intn(256))
		}
	}
}

func pickKind(rnd *rand.Rand, haveDict bool) Kind {
	if !haveDict {
		if rnd.Intn(2) == 0 {
			return KindByteReplace
		}
		return KindBitFlip
	}
	switch rnd.Intn(3) {
	case 0:
		return KindByteReplace
	case 1:
		return KindDictToken
	default:
		return KindBitFlip
	}
}

// applyToken overwrites buf starting at pos with as much of tok as fits
// without growing buf, per mangle's in-place, non-resizing token
// substitution.
func applyToken(buf []byte, pos int, tok []byte) {
	n := copy(buf[pos:], tok)
	_ = n
}
