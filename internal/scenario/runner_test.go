package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goEscrowConform/internal/config"
	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/funding"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/ledger/ledgertest"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/report"
	"github.com/LeJamon/goEscrowConform/internal/retry"
	"github.com/LeJamon/goEscrowConform/internal/submit"
	"github.com/LeJamon/goEscrowConform/internal/verify"
)

var programID = solana.MustPublicKeyFromBase58(config.DefaultProgramID)

func testSettings(t *testing.T) Settings {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	s := SettingsFromConfig(cfg)
	s.PaymentDelay = 0
	s.SecondPaymentDelay = 0
	return s
}

func newEnv(t *testing.T, fake *ledgertest.Ledger, settings Settings) Env {
	t.Helper()
	buyer, err := ledger.NewParty(ledger.RoleBuyer)
	require.NoError(t, err)
	seller, err := ledger.NewParty(ledger.RoleSeller)
	require.NoError(t, err)

	lc := &ledger.Context{
		Client:     fake,
		Commitment: rpc.CommitmentConfirmed,
		ProgramID:  programID,
		Buyer:      buyer,
		Seller:     seller,
	}
	deriver, err := escrow.NewDeriver(programID, 8)
	require.NoError(t, err)
	fc, err := funding.NewController(lc, retry.Policy{MaxAttempts: 3, PollAttempts: 8}, logging.Nop())
	require.NoError(t, err)
	sub, err := submit.NewSubmitter(lc, retry.Policy{MaxAttempts: 1, PollAttempts: 8}, logging.Nop())
	require.NoError(t, err)

	return Env{
		Ledger:    lc,
		Deriver:   deriver,
		Funding:   fc,
		Submitter: sub,
		Log:       logging.Nop(),
		Settings:  settings,
	}
}

func run(t *testing.T, env Env) (*Runner, error) {
	t.Helper()
	r, err := NewRunner(env)
	require.NoError(t, err)
	return r, r.Run(context.Background())
}

func TestRunConformingProgram(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.ConfirmAfter = 1
	env := newEnv(t, fake, testSettings(t))

	store, err := report.OpenStore(context.Background(), report.Config{
		Driver: report.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "results.db"),
	})
	require.NoError(t, err)
	defer store.Close()
	env.Recorder = store

	r, err := run(t, env)
	require.NoError(t, err)

	var want []escrow.Method
	want = append(want, escrow.MethodStartSubscription)
	for i := 0; i < 7; i++ {
		want = append(want, escrow.MethodMakePayment)
	}
	want = append(want, escrow.MethodCancelSubscription, escrow.MethodWithdrawFunds, escrow.MethodStartSubscription)
	for i := 0; i < 5; i++ {
		want = append(want, escrow.MethodMakePayment)
	}
	want = append(want, escrow.MethodCancelSubscription, escrow.MethodWithdrawFunds)
	assert.Equal(t, want, fake.Calls())

	outcomes := r.Outcomes()
	require.NotEmpty(t, outcomes)
	seen := map[string]bool{}
	for _, o := range outcomes {
		assert.True(t, o.Passed, o.String())
		seen[o.Scenario] = true
	}
	for _, s := range Scenarios() {
		assert.True(t, seen[s.Name], "no checks recorded for %s", s.Name)
	}

	entries, err := store.Entries(context.Background(), store.RunID())
	require.NoError(t, err)
	assert.Len(t, entries, len(outcomes))

	d, err := escrow.DeriveAddress(programID, env.Ledger.Buyer.PublicKey(), env.Ledger.Seller.PublicKey(), "premium_content")
	require.NoError(t, err)
	assert.Zero(t, fake.BalanceOf(d.Address))
}

func TestRunDirectPaymentsCounted(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.CountDirectPayments = true
	settings := testSettings(t)
	settings.DirectPaymentsCounted = true

	_, err := run(t, newEnv(t, fake, settings))
	require.NoError(t, err)
}

func TestRunDirectPaymentsCountMismatch(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.CountDirectPayments = true

	r, err := run(t, newEnv(t, fake, testSettings(t)))
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, DirectPayments, se.Scenario)

	var v *verify.InvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "payment_count", v.Check)
	assert.Equal(t, "5", v.Expected)
	assert.Equal(t, "7", v.Actual)

	var failed int
	for _, o := range r.Outcomes() {
		if !o.Passed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	// the run stops at the failing scenario
	assert.NotContains(t, fake.Calls(), escrow.MethodCancelSubscription)
}

func TestRunEscrowLimitMismatch(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.EscrowedPaymentLimit = 3

	_, err := run(t, newEnv(t, fake, testSettings(t)))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, EscrowedPayments, se.Scenario)

	var v *verify.InvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "payment 4 escrow delta", v.Check)
}

func TestRunPaymentCountDrift(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.DropCountAt = 2

	_, err := run(t, newEnv(t, fake, testSettings(t)))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, EscrowedPayments, se.Scenario)

	var v *verify.InvariantViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "payment 2 payment_count", v.Check)
	assert.Equal(t, "2", v.Expected)
	assert.Equal(t, "1", v.Actual)

	// no third payment was sent
	assert.Equal(t, []escrow.Method{escrow.MethodStartSubscription, escrow.MethodMakePayment, escrow.MethodMakePayment}, fake.Calls())
}

func TestRunWithdrawalViolations(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(fake *ledgertest.Ledger, s *Settings)
		scenario string
		check    string
	}{
		{
			name: "seller charged on refund",
			setup: func(fake *ledgertest.Ledger, _ *Settings) {
				fake.Fee = 2 * solana.LAMPORTS_PER_SOL / 100
			},
			scenario: RefundWithdrawal,
			check:    "seller delta",
		},
		{
			name: "refunded account left open",
			setup: func(fake *ledgertest.Ledger, _ *Settings) {
				fake.KeepClosedAccounts = true
			},
			scenario: RefundWithdrawal,
			check:    "account closed",
		},
		{
			name: "release keeps rent",
			setup: func(fake *ledgertest.Ledger, s *Settings) {
				fake.BurnReleasedRent = true
				s.WithdrawalTolerance = 10_000
			},
			scenario: ReleaseWithdrawal,
			check:    "buyer rent refund",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := ledgertest.New(programID)
			settings := testSettings(t)
			tt.setup(fake, &settings)

			r, err := run(t, newEnv(t, fake, settings))
			require.Error(t, err)

			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.scenario, se.Scenario)

			var v *verify.InvariantViolation
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.check, v.Check)

			var failed []string
			for _, o := range r.Outcomes() {
				if !o.Passed {
					failed = append(failed, o.Check)
				}
			}
			assert.Equal(t, []string{tt.check}, failed)
		})
	}
}

func TestRunFundingExhausted(t *testing.T) {
	fake := ledgertest.New(programID)
	fake.AirdropFailures = 100

	_, err := run(t, newEnv(t, fake, testSettings(t)))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SetupName, se.Scenario)
	assert.ErrorIs(t, err, funding.ErrFundingExhausted)
	assert.Empty(t, fake.Calls())
}

func TestRunSecondLifecycleFundingFailure(t *testing.T) {
	fake := ledgertest.New(programID)
	env := newEnv(t, fake, testSettings(t))
	env.NewParty = func(role string) (*ledger.Party, error) {
		if role == ledger.RoleSeller {
			fake.AirdropFailures = 100
		}
		return ledger.NewParty(role)
	}

	_, err := run(t, env)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ReleaseWithdrawal, se.Scenario)
	assert.ErrorIs(t, err, funding.ErrFundingExhausted)
}

func TestRunCancelled(t *testing.T) {
	fake := ledgertest.New(programID)
	settings := testSettings(t)
	settings.PaymentDelay = time.Hour
	r, err := NewRunner(newEnv(t, fake, settings))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunnerRequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Env{})
	assert.Error(t, err)

	env := newEnv(t, ledgertest.New(programID), testSettings(t))
	env.Submitter = nil
	_, err = NewRunner(env)
	assert.Error(t, err)
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Scenario: CancelSubscription, Err: submit.ErrConfirmationTimeout}
	assert.ErrorIs(t, err, submit.ErrConfirmationTimeout)
	assert.Equal(t, "scenario cancel_subscription: confirmation timeout", err.Error())
}
