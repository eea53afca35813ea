package key

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeterministic(t *testing.T) {
	t.Parallel()

	const id = "https://cdn.example.com/products/42.jpg"
	a := New(id)
	b := New(id)
	assert.Equal(t, a, b)
	assert.Equal(t, a.Hex(), b.Hex())

	// Stable across processes: the key is the plain sha256 of the identifier.
	sum := sha256.Sum256([]byte(id))
	assert.Equal(t, hex.EncodeToString(sum[:]), a.Hex())
	assert.Equal(t, "sha256:"+a.Hex(), a.String())
}

func TestNewDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string)
	for _, id := range []string{
		"",
		"a",
		"A",
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/a.jpg?x=1",
		"https://cdn.example.com/a.jpg#thumb=128",
	} {
		h := New(id).Hex()
		prev, dup := seen[h]
		require.False(t, dup, "identifiers %q and %q collide", prev, id)
		seen[h] = id
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	k := New("round trip")
	got, err := Parse(k.Hex())
	require.NoError(t, err)
	assert.Equal(t, k, got)

	_, err = Parse("not-hex")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = Parse("abcd")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, Key{}.IsZero())
	assert.False(t, New("x").IsZero())
}
