package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/dmitrijs2005/filekeeper/internal/cryptox"
)

// EncryptingStore wraps a Store and encrypts payloads with AES-GCM before
// they reach the backend, so objects are opaque at rest. Payloads are
// buffered in memory to seal and open them whole; the upload size limit
// bounds the buffer.
//
// Copy stays a backend-side byte copy: content-addressed keys within one
// store share the key material, so no re-encryption is needed.
type EncryptingStore struct {
	inner Store
	key   []byte
}

// NewEncryptingStore derives the object key from the passphrase and wraps
// inner. The salt must stay stable for the lifetime of the stored data.
func NewEncryptingStore(inner Store, passphrase, salt []byte) *EncryptingStore {
	return &EncryptingStore{inner: inner, key: cryptox.DeriveKey(passphrase, salt)}
}

func (s *EncryptingStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	sealed, err := cryptox.Seal(plaintext, s.key)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, bytes.NewReader(sealed), int64(len(sealed)))
}

func (s *EncryptingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sealed, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptox.Open(sealed, s.key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func (s *EncryptingStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptingStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}

func (s *EncryptingStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	return s.inner.Copy(ctx, srcKey, dstKey)
}
