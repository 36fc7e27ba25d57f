// Package balance captures per-party balance snapshots.
package balance

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/logging"
)

// Snapshot holds the three balances observed at a labelled point of a scenario.
type Snapshot struct {
	Label  string
	Seller uint64
	Escrow uint64
	Buyer  uint64
}

// Delta is the signed change between two snapshots.
type Delta struct {
	Seller int64
	Escrow int64
	Buyer  int64
}

// Diff returns after - s per party.
func (s Snapshot) Diff(after Snapshot) Delta {
	return Delta{
		Seller: signedDiff(s.Seller, after.Seller),
		Escrow: signedDiff(s.Escrow, after.Escrow),
		Buyer:  signedDiff(s.Buyer, after.Buyer),
	}
}

func signedDiff(before, after uint64) int64 {
	if after >= before {
		return int64(after - before)
	}
	return -int64(before - after)
}

// AbsDiff is |a - b| without overflow.
func AbsDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// SOL renders lamports as SOL for diagnostics.
func SOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// Sampler reads balances for one timeline's parties.
type Sampler struct {
	lc     *ledger.Context
	seller solana.PublicKey
	buyer  solana.PublicKey
	log    logging.Logger
}

// NewSampler creates a sampler for the given buyer and seller.
func NewSampler(lc *ledger.Context, buyer, seller solana.PublicKey, log logging.Logger) *Sampler {
	return &Sampler{lc: lc, seller: seller, buyer: buyer, log: log}
}

// Sample reads seller, escrow and buyer balances in that order. The reads are
// not atomic; callers absorb the skew with tolerance bands.
func (s *Sampler) Sample(ctx context.Context, escrowAddr solana.PublicKey, label string, verbose bool) (Snapshot, error) {
	snap := Snapshot{Label: label}
	var err error

	if snap.Seller, err = s.lc.Balance(ctx, s.seller); err != nil {
		return Snapshot{}, fmt.Errorf("sampling %s: seller: %w", label, err)
	}
	if snap.Escrow, err = s.lc.Balance(ctx, escrowAddr); err != nil {
		return Snapshot{}, fmt.Errorf("sampling %s: escrow: %w", label, err)
	}
	if snap.Buyer, err = s.lc.Balance(ctx, s.buyer); err != nil {
		return Snapshot{}, fmt.Errorf("sampling %s: buyer: %w", label, err)
	}

	if verbose {
		s.log.Info("balances",
			"at", label,
			"seller_sol", SOL(snap.Seller),
			"escrow_sol", SOL(snap.Escrow),
			"buyer_sol", SOL(snap.Buyer),
		)
	}
	return snap, nil
}
