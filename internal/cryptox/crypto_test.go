package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := DeriveKey([]byte("passphrase"), []byte("salt"))
	require.Len(t, key, KeySize)

	sealed, err := Seal([]byte("secret payload"), key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret payload")

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret payload"), opened)
}

func TestSealProducesDistinctCiphertexts(t *testing.T) {
	key := DeriveKey([]byte("passphrase"), []byte("salt"))

	a, err := Seal([]byte("same"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("same"), key)
	require.NoError(t, err)

	// Fresh nonce per call.
	assert.NotEqual(t, a, b)
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := Seal([]byte("data"), DeriveKey([]byte("right"), []byte("salt")))
	require.NoError(t, err)

	_, err = Open(sealed, DeriveKey([]byte("wrong"), []byte("salt")))
	assert.Error(t, err)
}

func TestOpenTruncated(t *testing.T) {
	key := DeriveKey([]byte("passphrase"), []byte("salt"))

	_, err := Open([]byte("short"), key)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey([]byte("p"), []byte("s"))
	b := DeriveKey([]byte("p"), []byte("s"))
	c := DeriveKey([]byte("p"), []byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
