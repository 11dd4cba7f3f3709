package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2 configuration parameters (recommended by OWASP)
const (
	DefaultMemory      = 64 * 1024 // 64 MB
	DefaultIterations  = 3         // Number of iterations
	DefaultParallelism = 2         // Number of threads
	DefaultSaltLength  = 16        // Salt length in bytes
	DefaultKeyLength   = 32        // Hash length in bytes
)

// MinTokenLength is the shortest admin token accepted by CheckToken
const MinTokenLength = 16

var (
	ErrInvalidHash      = errors.New("invalid hash format")
	ErrWeakToken        = errors.New("token too short")
	ErrIncompatibleHash = errors.New("incompatible hash version")
)

// TokenHasher hashes admin tokens with Argon2id
type TokenHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewTokenHasher creates a hasher with default Argon2id settings
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{
		memory:      DefaultMemory,
		iterations:  DefaultIterations,
		parallelism: DefaultParallelism,
		saltLength:  DefaultSaltLength,
		keyLength:   DefaultKeyLength,
	}
}

// Hash generates an Argon2id hash for the given token
// Returns hash in format: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
func (th *TokenHasher) Hash(token string) (string, error) {
	salt := make([]byte, th.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, th.iterations, th.memory, th.parallelism, th.keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, th.memory, th.iterations, th.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the token matches the encoded hash. The parameters are read
// from the hash, not from th.
func (th *TokenHasher) Verify(token, encodedHash string) (bool, error) {
	params, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(token), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	return subtle.ConstantTimeCompare(hash, other) == 1, nil
}

// SetParams configures Argon2id parameters
func (th *TokenHasher) SetParams(memory, iterations uint32, parallelism uint8) error {
	if memory < 1024 {
		return fmt.Errorf("memory must be at least 1024 KB")
	}
	if iterations < 1 {
		return fmt.Errorf("iterations must be at least 1")
	}
	if parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}

	th.memory = memory
	th.iterations = iterations
	th.parallelism = parallelism
	return nil
}

type hashParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
}

// decodeHash extracts parameters, salt, and hash from an encoded string
func decodeHash(encodedHash string) (*hashParams, []byte, []byte, error) {
	parts := strings.Split(strings.TrimSpace(encodedHash), "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleHash
	}

	params := &hashParams{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.iterations, &params.parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: hash", ErrInvalidHash)
	}
	params.keyLength = uint32(len(hash))

	return params, salt, hash, nil
}

// CheckToken rejects tokens shorter than MinTokenLength
func CheckToken(token string) error {
	if len(token) < MinTokenLength {
		return fmt.Errorf("%w: minimum length is %d", ErrWeakToken, MinTokenLength)
	}
	return nil
}

// ValidateHash reports whether encodedHash can be used by VerifyToken
func ValidateHash(encodedHash string) error {
	_, _, _, err := decodeHash(encodedHash)
	return err
}

// HashToken is a convenience function for hashing tokens
func HashToken(token string) (string, error) {
	return NewTokenHasher().Hash(token)
}

// VerifyToken is a convenience function for verifying tokens
func VerifyToken(token, hash string) (bool, error) {
	return NewTokenHasher().Verify(token, hash)
}
