// Package benchmark measures the hot paths of the revision core: consensus
// scoring on every vote, and the history codec on every archive and listing.
package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/naosu/internal/consensus"
	"github.com/hyperjump/naosu/internal/history"
)

func BenchmarkConsensusScore(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = consensus.Score(i%100, (i*7)%100)
	}
}

func BenchmarkHistoryCompress(b *testing.B) {
	for _, size := range []int{200, 2000, 20000} {
		text := strings.Repeat("paragraph prose with some repetition. ", size/38+1)[:size]
		b.Run(fmt.Sprintf("%dB", size), func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := history.Compress(text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkHistoryDecompress(b *testing.B) {
	text := strings.Repeat("paragraph prose with some repetition. ", 60)
	payload, err := history.Compress(text)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		got, err := history.Decompress(payload)
		if err != nil {
			b.Fatal(err)
		}
		if got != text {
			b.Fatal("round trip mismatch")
		}
	}
}
