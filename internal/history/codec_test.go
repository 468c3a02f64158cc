package history

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/naosu/internal/errdefs"
)

func TestCompressDecompress_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"plain", "The committee shall convene annually."},
		{"unicode", "选挙は四年ごとに行われる。Ééàü 🗳"},
		{"long repetitive", strings.Repeat("paragraph text ", 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Compress(tt.text)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decompress(payload)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.text {
				t.Errorf("round trip mismatch: got %q", got)
			}
		})
	}
}

func TestCompress_Shrinks(t *testing.T) {
	text := strings.Repeat("the same sentence over and over. ", 100)
	payload, err := Compress(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) >= len(text) {
		t.Errorf("payload %d bytes not smaller than text %d bytes", len(payload), len(text))
	}
}

func TestDecompress_Corrupted(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "!!! not base64 !!!"},
		{"valid base64, not deflate", "bm90IGEgZGVmbGF0ZSBzdHJlYW0="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.payload)
			if !errors.Is(err, errdefs.ErrCorruptedVersion) {
				t.Errorf("expected ErrCorruptedVersion, got %v", err)
			}
		})
	}
}
