package b3

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// Hasher accumulates a 256-bit BLAKE3 digest of everything written to it.
type Hasher struct {
	h *blake3.Hasher
}

func New() *Hasher {
	return &Hasher{h: blake3.New(32, nil)}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the hex digest of the bytes written so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Copy writes src to dst and returns the hex digest and byte count of what
// was copied.
func Copy(dst io.Writer, src io.Reader) (string, int64, error) {
	h := New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", n, fmt.Errorf("copying and hashing: %w", err)
	}

	return h.Sum(), n, nil
}
