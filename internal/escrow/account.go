package escrow

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
)

// AccountName is the on-chain type name of the escrow account.
const AccountName = "EscrowAccount"

var (
	ErrAccountNotFound      = errors.New("escrow account not found")
	ErrAccountDiscriminator = errors.New("escrow account discriminator mismatch")
)

// AccountDiscriminator is sha256("account:EscrowAccount")[:8].
func AccountDiscriminator() [SelectorSize]byte {
	return selector("account", AccountName)
}

// View is a read-only mirror of the escrow account's state.
type View struct {
	Seller              solana.PublicKey
	Buyer               solana.PublicKey
	SubscriptionID      string
	PaymentCount        uint8
	TotalAmount         uint64
	IsActive            bool
	ValidationThreshold uint64
}

// EncodeFields serializes the view's fields without the discriminator.
func (v *View) EncodeFields() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(v.Seller.Bytes(), false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(v.Buyer.Bytes(), false); err != nil {
		return nil, err
	}
	if err := writeString(enc, v.SubscriptionID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(v.PaymentCount); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(v.TotalAmount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(v.IsActive); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(v.ValidationThreshold, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode returns the account bytes as stored on chain: discriminator || fields.
func (v *View) Encode() ([]byte, error) {
	fields, err := v.EncodeFields()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, AccountName, err)
	}
	disc := AccountDiscriminator()
	return append(disc[:], fields...), nil
}

// DefaultSize is the serialized size of an empty view, used to size the
// rent-exemption reserve.
func DefaultSize() uint64 {
	fields, err := (&View{}).EncodeFields()
	if err != nil {
		panic("encoding empty escrow view: " + err.Error())
	}
	return uint64(len(fields))
}

// DecodeView parses raw account bytes.
func DecodeView(data []byte) (*View, error) {
	if len(data) < SelectorSize {
		return nil, fmt.Errorf("%w: account data too short (%d bytes)", ErrAccountDiscriminator, len(data))
	}
	disc := AccountDiscriminator()
	if !bytes.Equal(disc[:], data[:SelectorSize]) {
		return nil, fmt.Errorf("%w: got %x", ErrAccountDiscriminator, data[:SelectorSize])
	}

	dec := bin.NewBorshDecoder(data[SelectorSize:])
	v := &View{}

	seller, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("decoding seller: %w", err)
	}
	v.Seller = solana.PublicKeyFromBytes(seller)

	buyer, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("decoding buyer: %w", err)
	}
	v.Buyer = solana.PublicKeyFromBytes(buyer)

	if v.SubscriptionID, err = readString(dec); err != nil {
		return nil, fmt.Errorf("decoding subscription_id: %w", err)
	}
	if v.PaymentCount, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("decoding payment_count: %w", err)
	}
	if v.TotalAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("decoding total_amount: %w", err)
	}
	if v.IsActive, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("decoding is_active: %w", err)
	}
	if v.ValidationThreshold, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("decoding validation_threshold: %w", err)
	}
	return v, nil
}

// FetchView reads and decodes the escrow account at addr.
func FetchView(ctx context.Context, lc *ledger.Context, addr solana.PublicKey) (*View, error) {
	data, ok, err := lc.AccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return DecodeView(data)
}
