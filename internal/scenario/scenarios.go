package scenario

import (
	"context"
	"fmt"

	"github.com/LeJamon/goEscrowConform/internal/balance"
	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/retry"
	"github.com/LeJamon/goEscrowConform/internal/verify"
)

// Scenario names, in execution order.
const (
	StartSubscription  = "start_subscription"
	EscrowedPayments   = "escrowed_payments"
	DirectPayments     = "direct_payments"
	CancelSubscription = "cancel_subscription"
	RefundWithdrawal   = "refund_withdrawal"
	ReleaseWithdrawal  = "release_withdrawal"
)

// Scenario is one named step of the sequence.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, r *Runner, tl *timeline) error
}

// Scenarios returns the fixed sequence. Every scenario depends on the ledger
// state left by the previous one.
func Scenarios() []Scenario {
	return []Scenario{
		{StartSubscription, runStartSubscription},
		{EscrowedPayments, runEscrowedPayments},
		{DirectPayments, runDirectPayments},
		{CancelSubscription, runCancelSubscription},
		{RefundWithdrawal, runRefundWithdrawal},
		{ReleaseWithdrawal, runReleaseWithdrawal},
	}
}

func runStartSubscription(ctx context.Context, r *Runner, tl *timeline) error {
	s := r.env.Settings
	if err := r.submit(ctx, tl, escrow.StartSubscription{
		SubscriptionID:      tl.subscriptionID,
		ValidationThreshold: s.ValidationThreshold,
	}); err != nil {
		return err
	}

	v, err := r.view(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, StartSubscription,
		verify.Equal("seller", tl.seller.PublicKey(), v.Seller),
		verify.Equal("buyer", tl.buyer.PublicKey(), v.Buyer),
		verify.Equal("subscription_id", tl.subscriptionID, v.SubscriptionID),
		verify.Equal("payment_count", uint8(0), v.PaymentCount),
		verify.Equal("total_amount", uint64(0), v.TotalAmount),
		verify.Equal("is_active", true, v.IsActive),
		verify.Equal("validation_threshold", s.ValidationThreshold, v.ValidationThreshold),
	)
}

func runEscrowedPayments(ctx context.Context, r *Runner, tl *timeline) error {
	s := r.env.Settings
	for i := 1; i <= s.EscrowedPayments; i++ {
		before, after, err := r.pay(ctx, tl, fmt.Sprintf("PAYMENT %d", i))
		if err != nil {
			return err
		}
		v, err := r.view(ctx, tl)
		if err != nil {
			return err
		}
		if err := r.check(ctx, EscrowedPayments,
			verify.Within(fmt.Sprintf("payment %d escrow delta", i), s.Payment, balance.AbsDiff(after.Escrow, before.Escrow), s.PaymentTolerance),
			verify.Equal(fmt.Sprintf("payment %d seller balance", i), before.Seller, after.Seller),
			verify.Equal(fmt.Sprintf("payment %d payment_count", i), uint8(i), v.PaymentCount),
			verify.Equal(fmt.Sprintf("payment %d total_amount", i), s.Payment*uint64(i), v.TotalAmount),
		); err != nil {
			return err
		}
		if i < s.EscrowedPayments {
			if err := retry.Sleep(ctx, s.PaymentDelay); err != nil {
				return err
			}
		}
	}

	v, err := r.view(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, EscrowedPayments,
		verify.Equal("payment_count", uint8(s.EscrowedPayments), v.PaymentCount),
		verify.Equal("total_amount", s.Payment*uint64(s.EscrowedPayments), v.TotalAmount),
		verify.Equal("is_active", true, v.IsActive),
	)
}

// runDirectPayments pays past the escrow limit; the program credits the
// seller directly and leaves the escrowed total alone.
func runDirectPayments(ctx context.Context, r *Runner, tl *timeline) error {
	s := r.env.Settings
	for i := 1; i <= s.DirectPayments; i++ {
		if err := retry.Sleep(ctx, s.PaymentDelay); err != nil {
			return err
		}
		before, after, err := r.pay(ctx, tl, fmt.Sprintf("DIRECT PAYMENT %d", i))
		if err != nil {
			return err
		}
		if err := r.check(ctx, DirectPayments,
			verify.Within(fmt.Sprintf("direct payment %d seller delta", i), s.Payment, balance.AbsDiff(after.Seller, before.Seller), s.PaymentTolerance),
			verify.Equal(fmt.Sprintf("direct payment %d escrow balance", i), before.Escrow, after.Escrow),
		); err != nil {
			return err
		}
	}

	wantCount := s.EscrowedPayments
	if s.DirectPaymentsCounted {
		wantCount += s.DirectPayments
	}
	v, err := r.view(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, DirectPayments,
		verify.Equal("payment_count", uint8(wantCount), v.PaymentCount),
		verify.Equal("total_amount", s.Payment*uint64(s.EscrowedPayments), v.TotalAmount),
	)
}

func runCancelSubscription(ctx context.Context, r *Runner, tl *timeline) error {
	before, err := tl.sample(ctx, "BEFORE CANCEL", false)
	if err != nil {
		return err
	}
	if err := r.submit(ctx, tl, escrow.CancelSubscription{}); err != nil {
		return err
	}
	after, err := tl.sample(ctx, "AFTER CANCEL", false)
	if err != nil {
		return err
	}

	v, err := r.view(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, CancelSubscription,
		verify.Equal("is_active", false, v.IsActive),
		verify.Equal("escrow balance", before.Escrow, after.Escrow),
		verify.Equal("seller balance", before.Seller, after.Seller),
	)
}

// runRefundWithdrawal withdraws with validation data above the threshold:
// the buyer gets the escrowed total and the rent reserve back.
func runRefundWithdrawal(ctx context.Context, r *Runner, tl *timeline) error {
	s := r.env.Settings
	before, after, err := r.withdraw(ctx, tl, s.RefundValidationData)
	if err != nil {
		return err
	}

	refund := s.Payment*uint64(s.EscrowedPayments) + r.rent
	closed, err := r.closed(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, RefundWithdrawal,
		verify.Within("buyer refund", refund, balance.AbsDiff(after.Buyer, before.Buyer), s.WithdrawalTolerance),
		verify.AtMost("seller delta", s.WithdrawalTolerance, balance.AbsDiff(after.Seller, before.Seller)),
		verify.Equal("escrow balance", uint64(0), after.Escrow),
		verify.Equal("account closed", true, closed),
	)
}

// runReleaseWithdrawal replays the lifecycle with fresh parties and withdraws
// with validation data at or below the threshold: the seller gets the
// escrowed total and the buyer gets the rent reserve.
func runReleaseWithdrawal(ctx context.Context, r *Runner, _ *timeline) error {
	s := r.env.Settings

	buyer, err := r.env.NewParty(ledger.RoleBuyer)
	if err != nil {
		return err
	}
	seller, err := r.env.NewParty(ledger.RoleSeller)
	if err != nil {
		return err
	}
	if err := r.env.Funding.FundParties(ctx, buyer, seller, s.Funding); err != nil {
		return err
	}
	tl, err := r.newTimeline(buyer, seller, s.SecondSubscriptionID)
	if err != nil {
		return err
	}
	r.log.Info("second lifecycle", "buyer", buyer.PublicKey().String(), "seller", seller.PublicKey().String(), "escrow", tl.escrow.String())

	if err := r.submit(ctx, tl, escrow.StartSubscription{
		SubscriptionID:      tl.subscriptionID,
		ValidationThreshold: s.ValidationThreshold,
	}); err != nil {
		return err
	}
	for i := 1; i <= s.EscrowedPayments; i++ {
		if err := r.submit(ctx, tl, escrow.MakePayment{Amount: s.Payment}); err != nil {
			return err
		}
		if err := retry.Sleep(ctx, s.SecondPaymentDelay); err != nil {
			return err
		}
	}
	if err := r.submit(ctx, tl, escrow.CancelSubscription{}); err != nil {
		return err
	}

	before, after, err := r.withdraw(ctx, tl, s.ReleaseValidationData)
	if err != nil {
		return err
	}

	var buyerGain uint64
	if after.Buyer > before.Buyer {
		buyerGain = after.Buyer - before.Buyer
	}
	var rentFloor uint64
	if r.rent > s.WithdrawalTolerance {
		rentFloor = r.rent - s.WithdrawalTolerance
	}
	closed, err := r.closed(ctx, tl)
	if err != nil {
		return err
	}
	return r.check(ctx, ReleaseWithdrawal,
		verify.Within("seller release", s.Payment*uint64(s.EscrowedPayments), balance.AbsDiff(after.Seller, before.Seller), s.WithdrawalTolerance),
		verify.AtLeast("buyer rent refund", rentFloor, buyerGain),
		verify.Equal("escrow balance", uint64(0), after.Escrow),
		verify.Equal("account closed", true, closed),
	)
}

// pay submits one payment between two balance samples.
func (r *Runner) pay(ctx context.Context, tl *timeline, label string) (before, after balance.Snapshot, err error) {
	if before, err = tl.sample(ctx, "BEFORE "+label, false); err != nil {
		return
	}
	if err = r.submit(ctx, tl, escrow.MakePayment{Amount: r.env.Settings.Payment}); err != nil {
		return
	}
	after, err = tl.sample(ctx, "AFTER "+label, false)
	return
}

// withdraw submits a seller-signed withdrawal between two balance samples.
func (r *Runner) withdraw(ctx context.Context, tl *timeline, validationData uint64) (before, after balance.Snapshot, err error) {
	if before, err = tl.sample(ctx, "BEFORE WITHDRAW", false); err != nil {
		return
	}
	if err = r.submit(ctx, tl, escrow.WithdrawFunds{ValidationData: validationData}); err != nil {
		return
	}
	after, err = tl.sample(ctx, "AFTER WITHDRAW", false)
	return
}
