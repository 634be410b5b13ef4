package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/config"
)

func testHasher() *PasswordHasher {
	return NewPasswordHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher()

	encoded, err := h.Hash("correct-horse-battery")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))
	assert.True(t, h.Verify("correct-horse-battery", encoded))
	assert.False(t, h.Verify("wrong-password", encoded))
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := testHasher()

	first, err := h.Hash("same-password")
	require.NoError(t, err)
	second, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same-password", first))
	assert.True(t, h.Verify("same-password", second))
}

func TestVerifyMalformedHash(t *testing.T) {
	h := testHasher()

	// Malformed hashes must verify as false, never panic or succeed.
	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
	} {
		assert.False(t, h.Verify("any-password", encoded), "hash %q must not verify", encoded)
	}
}

func TestVerifyHonorsEmbeddedParams(t *testing.T) {
	strong := NewPasswordHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  2048,
			Argon2TimeCost:    2,
			Argon2Parallelism: 2,
		},
	})
	encoded, err := strong.Hash("correct-horse-battery")
	require.NoError(t, err)

	// A hasher with different configured params still verifies old hashes
	// using the params embedded in the encoding.
	assert.True(t, testHasher().Verify("correct-horse-battery", encoded))
}

func TestDummyVerifyDoesNotPanic(t *testing.T) {
	h := testHasher()
	h.DummyVerify("any-password")
}
