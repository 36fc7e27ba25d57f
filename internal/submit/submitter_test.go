package submit

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/ledger/ledgertest"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/retry"
)

var programID = solana.MustPublicKeyFromBase58("ABkdGF6rfAVxU9zC9n961YBTLKmNAEM3waZ2936fa1f")

type fixture struct {
	buyer, seller *ledger.Party
	escrow        solana.PublicKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	buyer, err := ledger.NewParty(ledger.RoleBuyer)
	require.NoError(t, err)
	seller, err := ledger.NewParty(ledger.RoleSeller)
	require.NoError(t, err)
	d, err := escrow.DeriveAddress(programID, buyer.PublicKey(), seller.PublicKey(), "premium_content")
	require.NoError(t, err)
	return fixture{buyer: buyer, seller: seller, escrow: d.Address}
}

func (f fixture) instruction(t *testing.T, c escrow.Call) []solana.Instruction {
	t.Helper()
	ix, err := escrow.Instruction(programID, c, escrow.Accounts{
		Escrow: f.escrow,
		Buyer:  f.buyer.PublicKey(),
		Seller: f.seller.PublicKey(),
	})
	require.NoError(t, err)
	return []solana.Instruction{ix}
}

func newSubmitter(t *testing.T, client ledger.Client) *Submitter {
	t.Helper()
	lc := &ledger.Context{Client: client, Commitment: rpc.CommitmentConfirmed, ProgramID: programID}
	s, err := NewSubmitter(lc, retry.Policy{MaxAttempts: 1, PollAttempts: 5}, logging.Nop())
	require.NoError(t, err)
	return s
}

func TestSubmitConfirms(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.ConfirmAfter = 3
	f := newFixture(t)
	fake.SetBalance(f.buyer.PublicKey(), solana.LAMPORTS_PER_SOL)

	s := newSubmitter(t, fake)
	sig, err := s.Submit(context.Background(),
		f.instruction(t, escrow.StartSubscription{SubscriptionID: "premium_content", ValidationThreshold: 1000}),
		f.buyer)
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, sig)
	assert.Equal(t, []escrow.Method{escrow.MethodStartSubscription}, fake.Calls())

	rent := ledgertest.Rent(escrow.DefaultSize())
	assert.Equal(t, rent, fake.BalanceOf(f.escrow))
	assert.Equal(t, solana.LAMPORTS_PER_SOL-rent-ledgertest.DefaultFee, fake.BalanceOf(f.buyer.PublicKey()))
}

func TestSubmitSellerPaysWithdraw(t *testing.T) {
	fake := ledgertest.New(programID)
	f := newFixture(t)
	fake.SetBalance(f.buyer.PublicKey(), solana.LAMPORTS_PER_SOL)
	fake.SetBalance(f.seller.PublicKey(), solana.LAMPORTS_PER_SOL)
	s := newSubmitter(t, fake)
	ctx := context.Background()

	_, err := s.Submit(ctx, f.instruction(t, escrow.StartSubscription{SubscriptionID: "premium_content", ValidationThreshold: 1000}), f.buyer)
	require.NoError(t, err)
	_, err = s.Submit(ctx, f.instruction(t, escrow.CancelSubscription{}), f.buyer)
	require.NoError(t, err)

	buyerBefore := fake.BalanceOf(f.buyer.PublicKey())
	_, err = s.Submit(ctx, f.instruction(t, escrow.WithdrawFunds{ValidationData: 2000}), f.seller)
	require.NoError(t, err)

	assert.Equal(t, solana.LAMPORTS_PER_SOL-ledgertest.DefaultFee, fake.BalanceOf(f.seller.PublicKey()))
	assert.Equal(t, buyerBefore+ledgertest.Rent(escrow.DefaultSize()), fake.BalanceOf(f.buyer.PublicKey()))
	assert.Zero(t, fake.BalanceOf(f.escrow))
}

// expiringClient hands out a blockhash and immediately rotates it.
type expiringClient struct {
	*ledgertest.Ledger
}

func (c expiringClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	out, err := c.Ledger.GetLatestBlockhash(ctx, commitment)
	c.ExpireBlockhash()
	return out, err
}

func TestSubmitStaleBlockhashRejected(t *testing.T) {
	fake := ledgertest.New(programID)
	f := newFixture(t)
	fake.SetBalance(f.buyer.PublicKey(), solana.LAMPORTS_PER_SOL)

	s := newSubmitter(t, expiringClient{fake})
	_, err := s.Submit(context.Background(),
		f.instruction(t, escrow.StartSubscription{SubscriptionID: "premium_content", ValidationThreshold: 1000}),
		f.buyer)
	require.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, fake.Calls())
	assert.Equal(t, solana.LAMPORTS_PER_SOL, fake.BalanceOf(f.buyer.PublicKey()))
}

func TestSubmitProgramErrorRejected(t *testing.T) {
	fake := ledgertest.New(programID)
	f := newFixture(t)
	fake.SetBalance(f.buyer.PublicKey(), solana.LAMPORTS_PER_SOL)

	// no subscription yet
	_, err := newSubmitter(t, fake).Submit(context.Background(), f.instruction(t, escrow.MakePayment{Amount: 1}), f.buyer)
	require.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, solana.LAMPORTS_PER_SOL, fake.BalanceOf(f.buyer.PublicKey()))
}

func TestSubmitExecutionFailureLands(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.ConfirmAfter = 1
	fake.FailNext = 1
	f := newFixture(t)
	fake.SetBalance(f.buyer.PublicKey(), solana.LAMPORTS_PER_SOL)
	s := newSubmitter(t, fake)
	start := f.instruction(t, escrow.StartSubscription{SubscriptionID: "premium_content", ValidationThreshold: 1000})

	sig, err := s.Submit(context.Background(), start, f.buyer)
	require.ErrorIs(t, err, ErrTransactionFailed)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.NotEqual(t, solana.Signature{}, sig)
	assert.Contains(t, err.Error(), "InstructionError")

	// the fee is charged but the program left no state behind
	assert.Empty(t, fake.Calls())
	assert.Zero(t, fake.BalanceOf(f.escrow))
	assert.Equal(t, solana.LAMPORTS_PER_SOL-ledgertest.DefaultFee, fake.BalanceOf(f.buyer.PublicKey()))

	// the next transaction executes normally
	_, err = s.Submit(context.Background(), start, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, []escrow.Method{escrow.MethodStartSubscription}, fake.Calls())
}

func TestSubmitMissingSigner(t *testing.T) {
	fake := ledgertest.New(programID)
	f := newFixture(t)

	// withdraw needs the seller's signature
	_, err := newSubmitter(t, fake).Submit(context.Background(), f.instruction(t, escrow.WithdrawFunds{ValidationData: 1}), f.buyer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing")
}

func mockSender(statuses func(polls int) *rpc.GetSignatureStatusesResult) *ledgertest.MockClient {
	var polls int
	return &ledgertest.MockClient{
		GetLatestBlockhashFunc: func(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
			return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}}}, nil
		},
		SendTransactionWithOptsFunc: func(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
			return tx.Signatures[0], nil
		},
		GetSignatureStatusesFunc: func(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			polls++
			return statuses(polls), nil
		},
	}
}

func TestSubmitOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		statuses func(polls int) *rpc.GetSignatureStatusesResult
		wantErr  error
	}{
		{
			name: "confirmed after unknown and processed",
			statuses: func(polls int) *rpc.GetSignatureStatusesResult {
				switch polls {
				case 1:
					return ledgertest.Unknown()
				case 2:
					return ledgertest.Status(rpc.ConfirmationStatusProcessed, nil)
				}
				return ledgertest.Status(rpc.ConfirmationStatusConfirmed, nil)
			},
		},
		{
			name: "execution failure",
			statuses: func(int) *rpc.GetSignatureStatusesResult {
				return ledgertest.Status(rpc.ConfirmationStatusConfirmed, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}})
			},
			wantErr: ErrTransactionFailed,
		},
		{
			name: "never confirmed",
			statuses: func(int) *rpc.GetSignatureStatusesResult {
				return ledgertest.Status(rpc.ConfirmationStatusProcessed, nil)
			},
			wantErr: ErrConfirmationTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := newSubmitter(t, mockSender(tt.statuses)).Submit(context.Background(),
				f.instruction(t, escrow.CancelSubscription{}), f.buyer)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitStatusConnectivity(t *testing.T) {
	client := mockSender(nil)
	client.GetSignatureStatusesFunc = nil
	f := newFixture(t)

	_, err := newSubmitter(t, client).Submit(context.Background(), f.instruction(t, escrow.CancelSubscription{}), f.buyer)
	require.ErrorIs(t, err, ledger.ErrConnectivity)
}
