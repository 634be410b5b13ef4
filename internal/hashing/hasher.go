package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"crm-backend/internal/config"
)

var ErrHashingFailed = errors.New("password hashing failed")

const (
	saltLength = 16
	keyLength  = 32
)

// PasswordHasher produces and verifies Argon2id hashes in the standard
// PHC string format: $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
type PasswordHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func NewPasswordHasher(cfg *config.Config) *PasswordHasher {
	return &PasswordHasher{
		memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		parallelism: uint8(cfg.Hashing.Argon2Parallelism),
	}
}

// Hash derives an Argon2id hash of the password with a fresh random salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailed, err)
	}

	key := argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether the password matches the encoded hash. A malformed
// or unsupported hash verifies as false rather than returning an error, so
// callers can treat every mismatch uniformly.
func (h *PasswordHasher) Verify(password, encodedHash string) bool {
	memory, iterations, parallelism, salt, key, ok := decodeHash(encodedHash)
	if !ok {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// DummyVerify burns the same Argon2id work as a real verification. Called on
// the unknown-account path so lookup misses cost as much as password
// mismatches.
func (h *PasswordHasher) DummyVerify(password string) {
	salt := []byte("static-timing-salt")
	_ = argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, keyLength)
}

func decodeHash(encodedHash string) (memory, iterations uint32, parallelism uint8, salt, key []byte, ok bool) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, false
	}

	var p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &p); err != nil {
		return 0, 0, 0, nil, nil, false
	}
	parallelism = uint8(p)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, false
	}

	return memory, iterations, parallelism, salt, key, true
}
