package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsRehash(encodedHash string) bool
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follow the OWASP 2025 recommendation.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// Floors below which Hash refuses to run.
const (
	minArgonTime   = 1
	minArgonMemory = 8 * 1024
	minKeyLen      = 16
	minSaltLen     = 8
)

var errUnsupportedHash = errors.New("unsupported password hash format")

// PasswordHasher produces argon2id PHC strings and verifies argon2id and
// bcrypt hashes. Bcrypt hashes come from accounts imported from earlier
// installations and are upgraded on the next successful login.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher returns a hasher using p, raised to the safe minimums.
func NewPasswordHasher(p Argon2Params) *PasswordHasher {
	if p.Time < minArgonTime {
		p.Time = minArgonTime
	}
	if p.Memory < minArgonMemory {
		p.Memory = minArgonMemory
	}
	if p.Threads == 0 {
		p.Threads = 1
	}
	if p.KeyLen < minKeyLen {
		p.KeyLen = minKeyLen
	}
	if p.SaltLen < minSaltLen {
		p.SaltLen = minSaltLen
	}
	return &PasswordHasher{params: p}
}

// Hash returns $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<hash>.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The comparison is
// constant time for both formats. A malformed hash is an error, a mismatch
// is (false, nil).
func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2(password, encodedHash)
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("verifying bcrypt hash: %w", err)
		}
		return true, nil
	default:
		return false, errUnsupportedHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// argon2id hash with the current parameters.
func (h *PasswordHasher) NeedsRehash(encodedHash string) bool {
	_, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}
	return params.Time != h.params.Time ||
		params.Memory != h.params.Memory ||
		params.Threads != h.params.Threads ||
		uint32(len(key)) != h.params.KeyLen //nolint:gosec // G115: key length always fits uint32
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

func verifyArgon2(password, encodedHash string) (bool, error) {
	salt, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32

	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// decodePHC parses an argon2id PHC string.
func decodePHC(encoded string) (salt, key []byte, params Argon2Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}

	return salt, key, params, nil
}
