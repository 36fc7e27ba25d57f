// Package ledgertest provides test doubles for ledger.Client.
package ledgertest

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
)

var errNotMocked = errors.New("ledgertest: method not mocked")

// MockClient is a ledger.Client whose methods delegate to optional funcs.
// Unset funcs return an error.
type MockClient struct {
	GetBalanceFunc                        func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdropFunc                    func(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetSignatureStatusesFunc              func(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetLatestBlockhashFunc                func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOptsFunc           func(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetAccountInfoWithOptsFunc            func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemptionFunc func(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
}

var _ ledger.Client = (*MockClient)(nil)

func (m *MockClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if m.GetBalanceFunc == nil {
		return nil, errNotMocked
	}
	return m.GetBalanceFunc(ctx, account, commitment)
}

func (m *MockClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	if m.RequestAirdropFunc == nil {
		return solana.Signature{}, errNotMocked
	}
	return m.RequestAirdropFunc(ctx, account, lamports, commitment)
}

func (m *MockClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.GetSignatureStatusesFunc == nil {
		return nil, errNotMocked
	}
	return m.GetSignatureStatusesFunc(ctx, searchTransactionHistory, sigs...)
}

func (m *MockClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.GetLatestBlockhashFunc == nil {
		return nil, errNotMocked
	}
	return m.GetLatestBlockhashFunc(ctx, commitment)
}

func (m *MockClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if m.SendTransactionWithOptsFunc == nil {
		return solana.Signature{}, errNotMocked
	}
	return m.SendTransactionWithOptsFunc(ctx, tx, opts)
}

func (m *MockClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	if m.GetAccountInfoWithOptsFunc == nil {
		return nil, errNotMocked
	}
	return m.GetAccountInfoWithOptsFunc(ctx, account, opts)
}

func (m *MockClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	if m.GetMinimumBalanceForRentExemptionFunc == nil {
		return 0, errNotMocked
	}
	return m.GetMinimumBalanceForRentExemptionFunc(ctx, dataSize, commitment)
}

// Status builds a one-element GetSignatureStatuses result.
func Status(status rpc.ConfirmationStatusType, txErr interface{}) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: status, Err: txErr}},
	}
}

// Unknown builds a GetSignatureStatuses result for a signature the node has not seen.
func Unknown() *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}
}
