package security

import (
	"errors"
	"fmt"

	"github.com/arklim/marketplace-auth/internal/core/port"
)

// ErrUnknownHashFormat is returned when a stored hash matches no supported algorithm.
var ErrUnknownHashFormat = errors.New("security: unknown password hash format")

// MultiHasher hashes with the configured algorithm and verifies hashes produced by any
// supported algorithm, so switching algorithms does not invalidate stored passwords.
type MultiHasher struct {
	primary port.PasswordHasher
	argon2  *Argon2Hasher
	bcrypt  *BcryptHasher
}

// HasherOptions selects the algorithm used for new hashes.
type HasherOptions struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Config
}

// NewPasswordHasher builds a MultiHasher whose primary algorithm is opts.Algorithm.
func NewPasswordHasher(opts HasherOptions) (*MultiHasher, error) {
	argon, err := NewArgon2Hasher(opts.Argon2)
	if err != nil {
		return nil, err
	}
	bc := NewBcryptHasher(opts.BcryptCost)

	h := &MultiHasher{argon2: argon, bcrypt: bc}
	switch opts.Algorithm {
	case "", "argon2id":
		h.primary = argon
	case "bcrypt":
		h.primary = bc
	default:
		return nil, fmt.Errorf("security: unsupported hash algorithm %q", opts.Algorithm)
	}
	return h, nil
}

func (h *MultiHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *MultiHasher) Verify(password, encoded string) (bool, error) {
	switch {
	case isBcryptHash(encoded):
		return h.bcrypt.Verify(password, encoded)
	case isArgon2Hash(encoded):
		return h.argon2.Verify(password, encoded)
	case encoded == "":
		return false, nil
	default:
		return false, ErrUnknownHashFormat
	}
}
