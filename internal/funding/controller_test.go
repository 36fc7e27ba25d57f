package funding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/ledger/ledgertest"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, PollAttempts: 8}
}

func newController(t *testing.T, client ledger.Client) *Controller {
	t.Helper()
	lc := &ledger.Context{Client: client, Commitment: rpc.CommitmentConfirmed}
	c, err := NewController(lc, fastPolicy(), logging.Nop())
	require.NoError(t, err)
	return c
}

func TestFundWaitsForConfirmationAndCredit(t *testing.T) {
	fake := ledgertest.New(solana.NewWallet().PublicKey())
	fake.ConfirmAfter = 2
	fake.BalanceLag = 2
	addr := solana.NewWallet().PublicKey()

	c := newController(t, fake)
	require.NoError(t, c.Fund(context.Background(), addr, 10*solana.LAMPORTS_PER_SOL))
	assert.Equal(t, 10*solana.LAMPORTS_PER_SOL, fake.BalanceOf(addr))
}

func TestFundRetriesTransportErrors(t *testing.T) {
	fake := ledgertest.New(solana.NewWallet().PublicKey())
	fake.AirdropFailures = 2
	addr := solana.NewWallet().PublicKey()

	c := newController(t, fake)
	require.NoError(t, c.Fund(context.Background(), addr, solana.LAMPORTS_PER_SOL))
	assert.Equal(t, solana.LAMPORTS_PER_SOL, fake.BalanceOf(addr))
}

func TestFundRetriesDroppedAirdrops(t *testing.T) {
	fake := ledgertest.New(solana.NewWallet().PublicKey())
	fake.DroppedAirdrops = 2
	addr := solana.NewWallet().PublicKey()

	c := newController(t, fake)
	require.NoError(t, c.Fund(context.Background(), addr, solana.LAMPORTS_PER_SOL))
	assert.Equal(t, solana.LAMPORTS_PER_SOL, fake.BalanceOf(addr))
}

func TestFundExhausted(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*ledgertest.Ledger)
	}{
		{"transport errors", func(l *ledgertest.Ledger) { l.AirdropFailures = 3 }},
		{"never confirmed", func(l *ledgertest.Ledger) { l.DroppedAirdrops = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := ledgertest.New(solana.NewWallet().PublicKey())
			tt.setup(fake)
			addr := solana.NewWallet().PublicKey()

			err := newController(t, fake).Fund(context.Background(), addr, solana.LAMPORTS_PER_SOL)
			require.ErrorIs(t, err, ErrFundingExhausted)
			assert.Zero(t, fake.BalanceOf(addr))
		})
	}
}

func TestFundConfirmedButBalanceShort(t *testing.T) {
	var airdrops int
	client := &ledgertest.MockClient{
		RequestAirdropFunc: func(context.Context, solana.PublicKey, uint64, rpc.CommitmentType) (solana.Signature, error) {
			airdrops++
			return solana.Signature{1}, nil
		},
		GetSignatureStatusesFunc: func(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return ledgertest.Status(rpc.ConfirmationStatusFinalized, nil), nil
		},
		GetBalanceFunc: func(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{Value: 1}, nil
		},
	}

	err := newController(t, client).Fund(context.Background(), solana.NewWallet().PublicKey(), 100)
	require.ErrorIs(t, err, ErrFundingExhausted)
	assert.Equal(t, 3, airdrops)
}

func TestFundStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &ledgertest.MockClient{
		RequestAirdropFunc: func(context.Context, solana.PublicKey, uint64, rpc.CommitmentType) (solana.Signature, error) {
			cancel()
			return solana.Signature{}, errors.New("connection refused")
		},
	}
	lc := &ledger.Context{Client: client, Commitment: rpc.CommitmentConfirmed}
	policy := fastPolicy()
	policy.Backoff = time.Hour
	c, err := NewController(lc, policy, logging.Nop())
	require.NoError(t, err)

	err = c.Fund(ctx, solana.NewWallet().PublicKey(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFundParties(t *testing.T) {
	fake := ledgertest.New(solana.NewWallet().PublicKey())
	buyer, err := ledger.NewParty(ledger.RoleBuyer)
	require.NoError(t, err)
	seller, err := ledger.NewParty(ledger.RoleSeller)
	require.NoError(t, err)

	c := newController(t, fake)
	amounts := Amounts{
		Buyer:   10 * solana.LAMPORTS_PER_SOL,
		Seller:  solana.LAMPORTS_PER_SOL,
		Minimum: solana.LAMPORTS_PER_SOL,
	}
	require.NoError(t, c.FundParties(context.Background(), buyer, seller, amounts))
	assert.Equal(t, 10*solana.LAMPORTS_PER_SOL, fake.BalanceOf(buyer.PublicKey()))
	assert.Equal(t, solana.LAMPORTS_PER_SOL, fake.BalanceOf(seller.PublicKey()))

	// a second round tops both up by the same amounts; the seller stays at 2 SOL
	amounts.Minimum = 3 * solana.LAMPORTS_PER_SOL
	err = c.FundParties(context.Background(), buyer, seller, amounts)
	require.ErrorIs(t, err, ErrBelowMinimum)
	assert.Contains(t, err.Error(), ledger.RoleSeller)
}

func TestNewControllerRejectsBadPolicy(t *testing.T) {
	_, err := NewController(&ledger.Context{}, retry.Policy{}, logging.Nop())
	assert.Error(t, err)
}
