package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Role names used for parties and in diagnostics.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Party is an identity holding a signing key.
type Party struct {
	Role string
	Key  solana.PrivateKey
}

// NewParty creates a party with a freshly generated key.
func NewParty(role string) (*Party, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", role, err)
	}
	return &Party{Role: role, Key: key}, nil
}

// LoadParty reads a party key from a solana-keygen JSON file.
func LoadParty(role, path string) (*Party, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s key from %s: %w", role, path, err)
	}
	return &Party{Role: role, Key: key}, nil
}

// PartyFromConfig loads the key file when path is set and generates a new key otherwise.
func PartyFromConfig(role, path string) (*Party, error) {
	if path == "" {
		return NewParty(role)
	}
	return LoadParty(role, path)
}

// PublicKey returns the party's address.
func (p *Party) PublicKey() solana.PublicKey {
	return p.Key.PublicKey()
}

func (p *Party) String() string {
	return fmt.Sprintf("%s(%s)", p.Role, p.PublicKey())
}

// KeyGetter returns a signing callback for solana.Transaction.Sign that
// knows the given parties.
func KeyGetter(parties ...*Party) func(solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		for _, p := range parties {
			if p.PublicKey().Equals(key) {
				k := p.Key
				return &k
			}
		}
		return nil
	}
}
