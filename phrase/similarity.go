// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package phrase

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// Similarity returns the cosine similarity of two phrases over sparse
// character trigram vectors.  Deterministic for identical inputs, 1.0 for
// equal phrases, 0.0 when no trigram is shared.  Inputs are expected to be
// normalized already.
func Similarity(a string, b string) float64 {
	return cosine(trigramVector(a), trigramVector(b))
}

// trigramVector counts the padded character trigrams of s, keyed by their
// xxhash.  Padding keeps single shared words detectable at the edges.
func trigramVector(s string) map[uint64]float64 {
	if s == "" {
		return nil
	}
	padded := " " + s + " "
	vec := make(map[uint64]float64, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		vec[xxhash.Sum64String(padded[i:i+3])]++
	}
	return vec
}

func cosine(a map[uint64]float64, b map[uint64]float64) float64 {
	var dot, normA, normB float64
	for key, av := range a {
		normA += av * av
		if bv, ok := b[key]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}

// WordRatio returns the Ratcliff/Obershelp similarity of two words: twice
// the number of matching characters over the total length, with matches
// found by recursing around the longest common substring.
func WordRatio(a string, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	return 2 * float64(matchingChars(a, b)) / float64(total)
}

func matchingChars(a string, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a string, b string) (ai int, bi int, size int) {
	// lengths[j] holds the common suffix length ending at a[i-1], b[j-1]
	// for the current i; prev holds the same for i-1.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
