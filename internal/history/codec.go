package history

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/hyperjump/naosu/internal/errdefs"
)

// Compress encodes UTF-8 text as a deflate-compressed, base64 payload. This
// is the wire format of archived history entries.
func Compress(text string) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create deflate writer: %w", err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("failed to compress text: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to flush deflate stream: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress. Any decoding failure is classified as a
// corrupted-version error so listings can skip the entry instead of failing.
func Decompress(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", errdefs.ErrCorruptedVersion, err)
	}
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	text, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: inflate: %v", errdefs.ErrCorruptedVersion, err)
	}
	return string(text), nil
}
