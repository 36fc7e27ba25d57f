// Package scenario drives the escrow program through its lifecycle and checks
// the observable ledger state after every step.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/LeJamon/goEscrowConform/internal/balance"
	"github.com/LeJamon/goEscrowConform/internal/config"
	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/funding"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/report"
	"github.com/LeJamon/goEscrowConform/internal/submit"
	"github.com/LeJamon/goEscrowConform/internal/verify"
)

// SetupName labels failures that happen before the first scenario.
const SetupName = "setup"

// Error attributes a failure to the scenario that produced it.
type Error struct {
	Scenario string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scenario %s: %v", e.Scenario, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Settings are the inputs of the scenario sequence.
type Settings struct {
	SubscriptionID        string
	SecondSubscriptionID  string
	ValidationThreshold   uint64
	Payment               uint64
	EscrowedPayments      int
	DirectPayments        int
	DirectPaymentsCounted bool
	PaymentDelay          time.Duration
	SecondPaymentDelay    time.Duration
	RefundValidationData  uint64
	ReleaseValidationData uint64
	PaymentTolerance      uint64
	WithdrawalTolerance   uint64
	Funding               funding.Amounts
	Verbose               bool
}

// SettingsFromConfig collects the scenario inputs from a loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SubscriptionID:        cfg.Scenario.SubscriptionID,
		SecondSubscriptionID:  cfg.Scenario.SecondSubscriptionID,
		ValidationThreshold:   cfg.Scenario.ValidationThreshold,
		Payment:               cfg.Scenario.PaymentLamports,
		EscrowedPayments:      cfg.Scenario.EscrowedPayments,
		DirectPayments:        cfg.Scenario.DirectPayments,
		DirectPaymentsCounted: cfg.Scenario.DirectPaymentsCounted,
		PaymentDelay:          cfg.Scenario.PaymentDelay,
		SecondPaymentDelay:    cfg.Scenario.SecondPaymentDelay,
		RefundValidationData:  cfg.Scenario.RefundValidationData,
		ReleaseValidationData: cfg.Scenario.ReleaseValidationData,
		PaymentTolerance:      cfg.Tolerance.PaymentLamports,
		WithdrawalTolerance:   cfg.Tolerance.WithdrawalLamports,
		Funding: funding.Amounts{
			Buyer:   cfg.Funding.BuyerLamports,
			Seller:  cfg.Funding.SellerLamports,
			Minimum: cfg.Funding.MinimumLamports,
		},
		Verbose: cfg.Scenario.Verbose,
	}
}

// Env holds the collaborators of a run.
type Env struct {
	Ledger    *ledger.Context
	Deriver   *escrow.Deriver
	Funding   *funding.Controller
	Submitter *submit.Submitter
	Recorder  report.Recorder
	Log       logging.Logger
	Settings  Settings

	// NewParty creates the identities of the second lifecycle.
	// Defaults to ledger.NewParty.
	NewParty func(role string) (*ledger.Party, error)
}

// Recorded is a verification outcome tagged with its scenario.
type Recorded struct {
	Scenario string
	verify.Outcome
}

// Runner executes the scenarios in order and stops at the first failure.
type Runner struct {
	env      Env
	log      logging.Logger
	rent     uint64
	outcomes []Recorded
}

// NewRunner checks env and creates a runner.
func NewRunner(env Env) (*Runner, error) {
	switch {
	case env.Ledger == nil:
		return nil, errors.New("scenario: ledger context is required")
	case env.Ledger.Buyer == nil || env.Ledger.Seller == nil:
		return nil, errors.New("scenario: buyer and seller are required")
	case env.Deriver == nil:
		return nil, errors.New("scenario: address deriver is required")
	case env.Funding == nil:
		return nil, errors.New("scenario: funding controller is required")
	case env.Submitter == nil:
		return nil, errors.New("scenario: submitter is required")
	}
	if env.Recorder == nil {
		env.Recorder = report.Nop()
	}
	if env.Log == nil {
		env.Log = logging.Nop()
	}
	if env.NewParty == nil {
		env.NewParty = ledger.NewParty
	}
	return &Runner{env: env, log: env.Log}, nil
}

// Outcomes returns every outcome checked so far.
func (r *Runner) Outcomes() []Recorded {
	return append([]Recorded(nil), r.outcomes...)
}

// Run funds the parties and executes every scenario.
func (r *Runner) Run(ctx context.Context) error {
	tl, err := r.setup(ctx)
	if err != nil {
		return &Error{Scenario: SetupName, Err: err}
	}

	for _, s := range Scenarios() {
		log := r.log.With("scenario", s.Name)
		log.Info("running scenario")
		start := time.Now()

		if err := s.Run(ctx, r, tl); err != nil {
			log.Error("scenario failed", "error", err)
			return &Error{Scenario: s.Name, Err: err}
		}
		log.Info("scenario passed", "elapsed", time.Since(start).Round(time.Millisecond))
	}

	r.log.Info("all scenarios passed", "checks", len(r.outcomes), "run_id", r.env.Recorder.RunID())
	return nil
}

func (r *Runner) setup(ctx context.Context) (*timeline, error) {
	rent, err := r.env.Ledger.RentExemption(ctx, escrow.DefaultSize())
	if err != nil {
		return nil, err
	}
	r.rent = rent

	lc := r.env.Ledger
	if err := r.env.Funding.FundParties(ctx, lc.Buyer, lc.Seller, r.env.Settings.Funding); err != nil {
		return nil, err
	}

	tl, err := r.newTimeline(lc.Buyer, lc.Seller, r.env.Settings.SubscriptionID)
	if err != nil {
		return nil, err
	}
	r.log.Info("escrow account derived", "address", tl.escrow.String(), "subscription_id", tl.subscriptionID, "rent", rent)

	if _, err := tl.sample(ctx, "INITIAL", true); err != nil {
		return nil, err
	}
	return tl, nil
}

// timeline is one buyer/seller/subscription triple and its escrow account.
type timeline struct {
	buyer          *ledger.Party
	seller         *ledger.Party
	subscriptionID string
	escrow         solana.PublicKey
	sampler        *balance.Sampler
	verbose        bool
}

func (r *Runner) newTimeline(buyer, seller *ledger.Party, subscriptionID string) (*timeline, error) {
	d, err := r.env.Deriver.Derive(buyer.PublicKey(), seller.PublicKey(), subscriptionID)
	if err != nil {
		return nil, err
	}
	return &timeline{
		buyer:          buyer,
		seller:         seller,
		subscriptionID: subscriptionID,
		escrow:         d.Address,
		sampler:        balance.NewSampler(r.env.Ledger, buyer.PublicKey(), seller.PublicKey(), r.log),
		verbose:        r.env.Settings.Verbose,
	}, nil
}

func (tl *timeline) sample(ctx context.Context, label string, force bool) (balance.Snapshot, error) {
	return tl.sampler.Sample(ctx, tl.escrow, label, force || tl.verbose)
}

// submit sends one program call signed and paid by the party the call names.
func (r *Runner) submit(ctx context.Context, tl *timeline, call escrow.Call) error {
	ix, err := escrow.Instruction(r.env.Ledger.ProgramID, call, escrow.Accounts{
		Escrow: tl.escrow,
		Buyer:  tl.buyer.PublicKey(),
		Seller: tl.seller.PublicKey(),
	})
	if err != nil {
		return err
	}

	payer := tl.buyer
	if call.Signer() == escrow.SignerSeller {
		payer = tl.seller
	}
	sig, err := r.env.Submitter.Submit(ctx, []solana.Instruction{ix}, payer)
	if err != nil {
		return fmt.Errorf("%s: %w", call.Method(), err)
	}
	r.log.Debug("call confirmed", "method", call.Method().Name(), "signature", sig.String())
	return nil
}

// check records every outcome and returns the first violation.
func (r *Runner) check(ctx context.Context, scenario string, outcomes ...verify.Outcome) error {
	for _, o := range outcomes {
		r.outcomes = append(r.outcomes, Recorded{Scenario: scenario, Outcome: o})
		if err := r.env.Recorder.Record(ctx, scenario, o); err != nil {
			return err
		}
		if !o.Passed {
			r.log.Warn("check failed", "scenario", scenario, "check", o.Check, "expected", o.Expected, "actual", o.Actual)
		}
	}
	return verify.FirstViolation(outcomes...)
}

func (r *Runner) view(ctx context.Context, tl *timeline) (*escrow.View, error) {
	return escrow.FetchView(ctx, r.env.Ledger, tl.escrow)
}

func (r *Runner) closed(ctx context.Context, tl *timeline) (bool, error) {
	_, exists, err := r.env.Ledger.AccountData(ctx, tl.escrow)
	return !exists, err
}
