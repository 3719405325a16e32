package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterminism(t *testing.T) {
	v := Object{"composition": String("c1"), "seq": Int(4)}

	h1, err := Hash(DomainPass, v)
	require.NoError(t, err)
	h2, err := Hash(DomainPass, Object{"seq": Int(4), "composition": String("c1")})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key order must not affect the digest")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestHashDomainSeparation(t *testing.T) {
	v := String("same")
	h1, err := Hash(DomainPass, v)
	require.NoError(t, err)
	h2, err := Hash(DomainSnapshot, v)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashRejectsFloat(t *testing.T) {
	_, err := Hash(DomainTree, 0.5)
	assert.Error(t, err)
}
