// Package funding acquires test currency from the faucet with bounded retries.
package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/retry"
)

var (
	// ErrFundingExhausted is returned when every airdrop attempt failed to
	// produce the requested balance.
	ErrFundingExhausted = errors.New("funding attempts exhausted")
	// ErrBelowMinimum is returned when a funded party ends up under the
	// configured minimum balance.
	ErrBelowMinimum = errors.New("balance below minimum after funding")
)

// Amounts configures how much each party receives.
type Amounts struct {
	Buyer   uint64
	Seller  uint64
	Minimum uint64
}

// Controller funds addresses through the faucet.
type Controller struct {
	lc     *ledger.Context
	policy retry.Policy
	log    logging.Logger
}

// NewController creates a funding controller.
func NewController(lc *ledger.Context, policy retry.Policy, log logging.Logger) (*Controller, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("funding policy: %w", err)
	}
	return &Controller{lc: lc, policy: policy, log: log}, nil
}

// Fund requests lamports for addr and waits until the balance reaches the
// requested amount. Transport errors and unconfirmed airdrops consume one
// attempt each.
func (c *Controller) Fund(ctx context.Context, addr solana.PublicKey, lamports uint64) error {
	log := c.log.With("address", addr.String(), "lamports", lamports)

	err := c.policy.Attempts(ctx, func(attempt int) error {
		sig, err := c.lc.Client.RequestAirdrop(ctx, addr, lamports, c.lc.Commitment)
		if err != nil {
			log.Warn("airdrop request failed", "attempt", attempt, "error", err)
			return fmt.Errorf("%w: request airdrop: %v", ledger.ErrConnectivity, err)
		}

		err = c.policy.Poll(ctx, func(int) (bool, error) {
			return c.credited(ctx, sig, addr, lamports)
		})
		if err != nil {
			log.Warn("airdrop not confirmed", "attempt", attempt, "error", err)
			return err
		}
		log.Debug("airdrop confirmed", "attempt", attempt, "signature", sig.String())
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrFundingExhausted, addr, c.policy.MaxAttempts, err)
}

// credited reports whether sig is confirmed and the balance already reflects it.
// Poll-time read errors are not fatal; the budget absorbs them.
func (c *Controller) credited(ctx context.Context, sig solana.Signature, addr solana.PublicKey, lamports uint64) (bool, error) {
	status, err := c.lc.SignatureStatus(ctx, sig)
	if err != nil {
		c.log.Debug("status poll failed", "error", err)
		return false, nil
	}
	if !ledger.Reached(status, c.lc.Commitment) {
		return false, nil
	}
	balance, err := c.lc.Balance(ctx, addr)
	if err != nil {
		c.log.Debug("balance read failed", "error", err)
		return false, nil
	}
	return balance >= lamports, nil
}

// FundParties funds buyer then seller and checks both hold at least the
// minimum balance afterwards.
func (c *Controller) FundParties(ctx context.Context, buyer, seller *ledger.Party, amounts Amounts) error {
	for _, p := range []struct {
		party    *ledger.Party
		lamports uint64
	}{
		{buyer, amounts.Buyer},
		{seller, amounts.Seller},
	} {
		if err := c.Fund(ctx, p.party.PublicKey(), p.lamports); err != nil {
			return fmt.Errorf("funding %s: %w", p.party.Role, err)
		}
	}

	for _, p := range []*ledger.Party{buyer, seller} {
		balance, err := c.lc.Balance(ctx, p.PublicKey())
		if err != nil {
			return err
		}
		if balance < amounts.Minimum {
			return fmt.Errorf("%w: %s holds %d lamports, need %d", ErrBelowMinimum, p.Role, balance, amounts.Minimum)
		}
		c.log.Info("party funded", "role", p.Role, "address", p.PublicKey().String(), "balance", balance)
	}
	return nil
}
