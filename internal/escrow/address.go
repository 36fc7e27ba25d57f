package escrow

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeedTag is the domain-separation prefix of every escrow address.
const SeedTag = "escrow"

// MaxSeedLength is the longest single seed a program address accepts.
const MaxSeedLength = 32

var (
	ErrSeedTooLong = errors.New("subscription id exceeds max seed length")
)

// Derived is an escrow account address and its bump seed.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

type deriveKey struct {
	buyer          solana.PublicKey
	seller         solana.PublicKey
	subscriptionID string
}

// Deriver computes escrow account addresses for one program. Results are
// memoised on the full (buyer, seller, subscription id) tuple.
type Deriver struct {
	programID solana.PublicKey
	cache     *lru.Cache[deriveKey, Derived]
}

// NewDeriver creates a deriver keeping up to cacheSize addresses.
func NewDeriver(programID solana.PublicKey, cacheSize int) (*Deriver, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[deriveKey, Derived](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Deriver{programID: programID, cache: cache}, nil
}

// ProgramID returns the program the addresses belong to.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// Derive returns the address seeded by ("escrow", buyer, seller, subscriptionID).
func (d *Deriver) Derive(buyer, seller solana.PublicKey, subscriptionID string) (Derived, error) {
	key := deriveKey{buyer: buyer, seller: seller, subscriptionID: subscriptionID}
	if v, ok := d.cache.Get(key); ok {
		return v, nil
	}

	v, err := DeriveAddress(d.programID, buyer, seller, subscriptionID)
	if err != nil {
		return Derived{}, err
	}
	d.cache.Add(key, v)
	return v, nil
}

// DeriveAddress is the uncached derivation.
func DeriveAddress(programID, buyer, seller solana.PublicKey, subscriptionID string) (Derived, error) {
	if len(subscriptionID) > MaxSeedLength {
		return Derived{}, fmt.Errorf("%w: %d bytes", ErrSeedTooLong, len(subscriptionID))
	}
	addr, bump, err := solana.FindProgramAddress([][]byte{
		[]byte(SeedTag),
		buyer.Bytes(),
		seller.Bytes(),
		[]byte(subscriptionID),
	}, programID)
	if err != nil {
		return Derived{}, fmt.Errorf("deriving escrow address: %w", err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}
