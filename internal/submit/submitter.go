// Package submit builds, signs, sends and confirms transactions.
package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/retry"
)

var (
	// ErrRejected means the node refused the transaction before execution.
	ErrRejected = errors.New("transaction rejected")
	// ErrTransactionFailed means the transaction landed but its execution failed.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrConfirmationTimeout means the commitment was not reached within the poll budget.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// Submitter sends instructions and waits for the configured commitment.
type Submitter struct {
	lc     *ledger.Context
	policy retry.Policy
	log    logging.Logger
}

// NewSubmitter creates a submitter. Only the poll bounds of policy are used;
// a submission is never re-issued.
func NewSubmitter(lc *ledger.Context, policy retry.Policy, log logging.Logger) (*Submitter, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("submit policy: %w", err)
	}
	return &Submitter{lc: lc, policy: policy, log: log}, nil
}

// Submit wraps instructions in one transaction paid by payer, signs it with
// payer and signers and waits until it is confirmed.
func (s *Submitter) Submit(ctx context.Context, instructions []solana.Instruction, payer *ledger.Party, signers ...*ledger.Party) (solana.Signature, error) {
	recent, err := s.lc.Client.GetLatestBlockhash(ctx, s.lc.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: get latest blockhash: %v", ledger.ErrConnectivity, err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("building transaction: %w", err)
	}
	if _, err := tx.Sign(ledger.KeyGetter(append([]*ledger.Party{payer}, signers...)...)); err != nil {
		return solana.Signature{}, fmt.Errorf("signing transaction: %w", err)
	}

	sig, err := s.lc.Client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.lc.Commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	s.log.Debug("transaction sent", "signature", sig.String(), "payer", payer.Role)

	if err := s.Confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// Confirm polls the status of sig until it reaches the configured commitment.
func (s *Submitter) Confirm(ctx context.Context, sig solana.Signature) error {
	var execErr interface{}
	err := s.policy.Poll(ctx, func(attempt int) (bool, error) {
		status, err := s.lc.SignatureStatus(ctx, sig)
		if err != nil {
			return false, err
		}
		if status != nil && status.Err != nil {
			execErr = status.Err
			return true, nil
		}
		if ledger.Reached(status, s.lc.Commitment) {
			s.log.Debug("transaction confirmed", "signature", sig.String(), "polls", attempt)
			return true, nil
		}
		return false, nil
	})
	switch {
	case errors.Is(err, retry.ErrPollBudgetExceeded):
		return fmt.Errorf("%w: %s not %s after %s", ErrConfirmationTimeout, sig, s.lc.Commitment, s.policy.PollBudget())
	case err != nil:
		return err
	case execErr != nil:
		return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, execErr)
	}
	return nil
}
