// Package metrics provides the population-level observables: Shannon
// entropy, a compression-based complexity estimate, and their difference,
// the higher-order entropy used to detect emergent structure.
package metrics

import (
	"math"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder; EncodeAll is safe for concurrent use.
var encoder *zstd.Encoder

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic(err)
	}
}

// ShannonEntropy returns the byte-frequency entropy of b in bits per byte.
func ShannonEntropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var counts [256]int
	for _, c := range b {
		counts[c]++
	}
	entropy := 0.0
	n := float64(len(b))
	for _, c := range counts {
		if c > 0 {
			f := float64(c) / n
			entropy += f * math.Log2(f)
		}
	}
	return -entropy
}

// ComplexityEstimate approximates Kolmogorov complexity as compressed bits
// per byte. 8.0 means incompressible; 0.0 means fully compressible.
func ComplexityEstimate(b []byte) float64 {
	if len(b) == 0 {
		return 8.0
	}
	compressed := encoder.EncodeAll(b, nil)
	return float64(len(compressed)) / float64(len(b)) * 8.0
}

// HigherOrderEntropy is the Shannon entropy minus the complexity estimate.
// High values indicate a population that is statistically diverse yet
// algorithmically regular, the signature of replicating structure.
func HigherOrderEntropy(b []byte) float64 {
	return ShannonEntropy(b) - ComplexityEstimate(b)
}

// NormalizedEditDistance is the Levenshtein distance between s1 and s2
// divided by the longer length.
func NormalizedEditDistance(s1, s2 string) float64 {
	n1, n2 := len(s1), len(s2)
	if n1 == 0 && n2 == 0 {
		return 0
	}
	if n1 == 0 || n2 == 0 {
		return 1
	}

	prev := make([]int, n2+1)
	cur := make([]int, n2+1)
	for j := 0; j <= n2; j++ {
		prev[j] = j
	}
	for i := 1; i <= n1; i++ {
		cur[0] = i
		for j := 1; j <= n2; j++ {
			if s1[i-1] == s2[j-1] {
				cur[j] = prev[j-1]
			} else {
				cur[j] = 1 + min(prev[j], cur[j-1], prev[j-1])
			}
		}
		prev, cur = cur, prev
	}

	maxLen := n1
	if n2 > maxLen {
		maxLen = n2
	}
	return float64(prev[n2]) / float64(maxLen)
}
