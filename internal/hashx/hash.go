// Package hashx computes the content digests used as deduplication and
// object-storage keys. The digest is hex-encoded SHA-256: identical bytes
// always produce the identical digest, so a digest can be compared across
// owners and across uploads.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FromReader consumes r to EOF and returns the digest of everything read
// together with the number of bytes consumed. The input is processed in
// chunks and never buffered whole.
func FromReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Reader wraps an io.Reader and hashes bytes as they pass through, so a
// stream can be uploaded and fingerprinted in a single pass.
type Reader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

// NewReader returns a hashing pass-through reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (hr *Reader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		// hash.Hash.Write never returns an error
		hr.h.Write(p[:n])
		hr.size += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of all bytes read so far.
func (hr *Reader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Size returns the number of bytes read so far.
func (hr *Reader) Size() int64 {
	return hr.size
}
