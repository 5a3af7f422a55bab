// Package secrets hashes passwords and generates one-time passcodes.
package secrets

import (
	"errors"
	"fmt"
	"strings"
)

// Hasher turns a plaintext secret into a self-describing hash and checks
// candidates against it. Verify returns (false, nil) on mismatch and an error
// only when the stored hash cannot be evaluated.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

var ErrUnknownHashFormat = errors.New("unknown hash format")

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Chain hashes with Preferred and verifies with whichever hasher produced
// the stored hash, so existing hashes keep working after the configured
// algorithm changes.
type Chain struct {
	Preferred Hasher
	bcrypt    *Bcrypt
	argon2id  *Argon2id
}

// NewHasher returns a Chain preferring algorithm. bcryptCost applies to new
// bcrypt hashes.
func NewHasher(algorithm string, bcryptCost int) (*Chain, error) {
	b, err := NewBcrypt(bcryptCost)
	if err != nil {
		return nil, err
	}
	a := NewArgon2id(DefaultArgon2Params)

	c := &Chain{bcrypt: b, argon2id: a}
	switch algorithm {
	case "", AlgorithmBcrypt:
		c.Preferred = b
	case AlgorithmArgon2id:
		c.Preferred = a
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", algorithm)
	}
	return c, nil
}

func (c *Chain) Hash(plain string) (string, error) {
	return c.Preferred.Hash(plain)
}

func (c *Chain) Verify(plain, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return c.argon2id.Verify(plain, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return c.bcrypt.Verify(plain, hash)
	default:
		return false, ErrUnknownHashFormat
	}
}
