package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest accepted bcrypt cost factor. The stored admin
// hashes are written at this cost or above; anything weaker is a
// configuration error, not a tunable.
const MinCost = 12

// Config holds the hasher's cost factor. Zero means MinCost.
type Config struct {
	Cost int
}

// Hasher wraps bcrypt with a validated cost factor. It is immutable after
// construction and safe for concurrent use.
type Hasher struct {
	cost int
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = MinCost
	}
	if cost < MinCost {
		return nil, fmt.Errorf("bcrypt cost %d below minimum %d", cost, MinCost)
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d above maximum %d", cost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns the bcrypt hash of plain at the configured cost.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("empty password")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify compares plain against a stored hash. A mismatch is (false, nil);
// an error means the stored hash is malformed.
func (h *Hasher) Verify(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// NeedsUpgrade reports whether a stored hash was written at a cost below
// the hasher's configured cost.
func (h *Hasher) NeedsUpgrade(hash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false, err
	}
	return cost < h.cost, nil
}
