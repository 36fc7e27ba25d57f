// Package ledger holds the connection context shared by every harness
// component: the RPC surface, the commitment level, the program under test and
// the two parties.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrConnectivity marks a transport failure talking to the RPC endpoint.
	ErrConnectivity = errors.New("rpc connectivity error")
)

// Client is the subset of the JSON-RPC API the harness consumes.
// *rpc.Client satisfies it.
type Client interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
}

var _ Client = (*rpc.Client)(nil)

// Context is the connection context handed to every component.
type Context struct {
	Client     Client
	Commitment rpc.CommitmentType
	ProgramID  solana.PublicKey
	Buyer      *Party
	Seller     *Party
}

// Balance reads the lamport balance of an address.
func (c *Context) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.Client.GetBalance(ctx, account, c.Commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get balance of %s: %v", ErrConnectivity, account, err)
	}
	return out.Value, nil
}

// AccountData fetches the raw bytes of an account. The boolean is false when
// the account does not exist.
func (c *Context) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, bool, error) {
	out, err := c.Client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.Commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get account %s: %v", ErrConnectivity, account, err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, false, nil
	}
	return out.Value.Data.GetBinary(), true, nil
}

// RentExemption returns the minimum balance for an account of dataSize bytes.
func (c *Context) RentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	lamports, err := c.Client.GetMinimumBalanceForRentExemption(ctx, dataSize, c.Commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get rent exemption for %d bytes: %v", ErrConnectivity, dataSize, err)
	}
	return lamports, nil
}

// SignatureStatus looks up a single signature. A nil status means the
// signature is not yet known to the node.
func (c *Context) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	out, err := c.Client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: get status of %s: %v", ErrConnectivity, sig, err)
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// Reached reports whether a status has reached the requested commitment.
func Reached(status *rpc.SignatureStatusesResult, commitment rpc.CommitmentType) bool {
	if status == nil {
		return false
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return commitment != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return commitment == rpc.CommitmentProcessed
	default:
		return false
	}
}
