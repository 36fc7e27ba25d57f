// Package escrow encodes calls to the subscription escrow program, derives its
// account addresses and decodes its account state.
package escrow

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrEncoding marks an argument serialization failure. It indicates a
	// schema mismatch and is never retried.
	ErrEncoding = errors.New("instruction encoding error")
)

// SelectorSize is the length of the method selector prefix.
const SelectorSize = 8

// Method enumerates the remote program's instructions.
type Method uint8

const (
	MethodStartSubscription Method = iota
	MethodMakePayment
	MethodCancelSubscription
	MethodWithdrawFunds
)

var methodNames = [...]string{
	MethodStartSubscription:  "start_subscription",
	MethodMakePayment:        "make_payment",
	MethodCancelSubscription: "cancel_subscription",
	MethodWithdrawFunds:      "withdraw_funds",
}

// Name returns the method name as declared by the program.
func (m Method) Name() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

func (m Method) String() string {
	return m.Name()
}

// Selector returns sha256("global:" + name)[:8].
func (m Method) Selector() [SelectorSize]byte {
	return selector("global", m.Name())
}

func selector(namespace, name string) [SelectorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [SelectorSize]byte
	copy(out[:], sum[:SelectorSize])
	return out
}

// Signer identifies which party must sign and pay for a call.
type Signer int

const (
	SignerBuyer Signer = iota
	SignerSeller
)

// Accounts are the addresses every call references.
type Accounts struct {
	Escrow solana.PublicKey
	Buyer  solana.PublicKey
	Seller solana.PublicKey
}

// Call is one remote procedure invocation. The set of implementations is
// closed: StartSubscription, MakePayment, CancelSubscription, WithdrawFunds.
type Call interface {
	Method() Method
	Signer() Signer
	encodeArgs(enc *bin.Encoder) error
	accounts(a Accounts) solana.AccountMetaSlice
}

// StartSubscription creates the escrow account.
type StartSubscription struct {
	SubscriptionID      string
	ValidationThreshold uint64
}

// MakePayment pays Amount lamports from the buyer.
type MakePayment struct {
	Amount uint64
}

// CancelSubscription deactivates the escrow.
type CancelSubscription struct{}

// WithdrawFunds closes the escrow, releasing funds to the seller or refunding
// the buyer depending on ValidationData.
type WithdrawFunds struct {
	ValidationData uint64
}

func (StartSubscription) Method() Method  { return MethodStartSubscription }
func (MakePayment) Method() Method        { return MethodMakePayment }
func (CancelSubscription) Method() Method { return MethodCancelSubscription }
func (WithdrawFunds) Method() Method      { return MethodWithdrawFunds }

func (StartSubscription) Signer() Signer  { return SignerBuyer }
func (MakePayment) Signer() Signer        { return SignerBuyer }
func (CancelSubscription) Signer() Signer { return SignerBuyer }
func (WithdrawFunds) Signer() Signer      { return SignerSeller }

func (c StartSubscription) encodeArgs(enc *bin.Encoder) error {
	if err := writeString(enc, c.SubscriptionID); err != nil {
		return err
	}
	return enc.WriteUint64(c.ValidationThreshold, binary.LittleEndian)
}

func (c MakePayment) encodeArgs(enc *bin.Encoder) error {
	return enc.WriteUint64(c.Amount, binary.LittleEndian)
}

func (CancelSubscription) encodeArgs(*bin.Encoder) error {
	return nil
}

func (c WithdrawFunds) encodeArgs(enc *bin.Encoder) error {
	return enc.WriteUint64(c.ValidationData, binary.LittleEndian)
}

// [escrow(w), buyer(w,s), seller(r), system(r)]
func (StartSubscription) accounts(a Accounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(a.Escrow).WRITE(),
		solana.Meta(a.Buyer).WRITE().SIGNER(),
		solana.Meta(a.Seller),
		solana.Meta(solana.SystemProgramID),
	}
}

// [escrow(w), buyer(w,s), seller(w), system(r)]
func (MakePayment) accounts(a Accounts) solana.AccountMetaSlice {
	return buyerSignedAccounts(a)
}

// [escrow(w), buyer(w,s), seller(w), system(r)]
func (CancelSubscription) accounts(a Accounts) solana.AccountMetaSlice {
	return buyerSignedAccounts(a)
}

// [escrow(w), buyer(w), seller(w,s), system(r)]
func (WithdrawFunds) accounts(a Accounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(a.Escrow).WRITE(),
		solana.Meta(a.Buyer).WRITE(),
		solana.Meta(a.Seller).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}
}

func buyerSignedAccounts(a Accounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(a.Escrow).WRITE(),
		solana.Meta(a.Buyer).WRITE().SIGNER(),
		solana.Meta(a.Seller).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}
}

// Encode returns selector || borsh(args).
func Encode(c Call) ([]byte, error) {
	buf := new(bytes.Buffer)
	sel := c.Method().Selector()
	buf.Write(sel[:])

	if err := c.encodeArgs(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, c.Method(), err)
	}
	return buf.Bytes(), nil
}

// AccountMetas returns the ordered account references for c.
func AccountMetas(c Call, a Accounts) solana.AccountMetaSlice {
	return c.accounts(a)
}

// Instruction builds the program instruction for c.
func Instruction(programID solana.PublicKey, c Call, a Accounts) (solana.Instruction, error) {
	data, err := Encode(c)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, c.accounts(a), data), nil
}

// DecodeMethod identifies the method from an instruction's selector prefix.
func DecodeMethod(data []byte) (Method, error) {
	if len(data) < SelectorSize {
		return 0, fmt.Errorf("%w: instruction data too short (%d bytes)", ErrEncoding, len(data))
	}
	for m := range methodNames {
		sel := Method(m).Selector()
		if bytes.Equal(sel[:], data[:SelectorSize]) {
			return Method(m), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown selector %x", ErrEncoding, data[:SelectorSize])
}

// DecodeCall parses instruction data back into a Call.
func DecodeCall(data []byte) (Call, error) {
	m, err := DecodeMethod(data)
	if err != nil {
		return nil, err
	}
	return decodeArgs(m, data[SelectorSize:])
}

func decodeArgs(m Method, args []byte) (Call, error) {
	dec := bin.NewBorshDecoder(args)

	switch m {
	case MethodStartSubscription:
		id, err := readString(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s subscription_id: %v", ErrEncoding, m, err)
		}
		threshold, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: %s validation_threshold: %v", ErrEncoding, m, err)
		}
		return StartSubscription{SubscriptionID: id, ValidationThreshold: threshold}, nil
	case MethodMakePayment:
		amount, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: %s amount: %v", ErrEncoding, m, err)
		}
		return MakePayment{Amount: amount}, nil
	case MethodCancelSubscription:
		return CancelSubscription{}, nil
	case MethodWithdrawFunds:
		data, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: %s validation_data: %v", ErrEncoding, m, err)
		}
		return WithdrawFunds{ValidationData: data}, nil
	default:
		return nil, fmt.Errorf("%w: no decoder for %s", ErrEncoding, m)
	}
}

// borsh string: u32 LE length followed by UTF-8 bytes.
func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
