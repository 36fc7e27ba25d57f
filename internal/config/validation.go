package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/logging"
)

var (
	ErrRPCURLRequired    = errors.New("rpc.url is required")
	ErrProgramIDRequired = errors.New("program.id is required")
)

// ValidateConfig validates every section of the configuration.
func ValidateConfig(config *Config) error {
	if err := config.RPC.Validate(); err != nil {
		return fmt.Errorf("rpc validation failed: %w", err)
	}
	if err := config.Program.Validate(); err != nil {
		return fmt.Errorf("program validation failed: %w", err)
	}
	if err := config.Funding.Validate(); err != nil {
		return fmt.Errorf("funding validation failed: %w", err)
	}
	if err := config.Submit.Validate(); err != nil {
		return fmt.Errorf("submit validation failed: %w", err)
	}
	if err := config.Scenario.Validate(); err != nil {
		return fmt.Errorf("scenario validation failed: %w", err)
	}
	if err := config.Report.Validate(); err != nil {
		return fmt.Errorf("report validation failed: %w", err)
	}
	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	// Cross-section checks
	spend := config.Scenario.PaymentLamports * uint64(config.Scenario.EscrowedPayments+config.Scenario.DirectPayments)
	if config.Funding.BuyerLamports <= spend {
		return fmt.Errorf("funding.buyer_lamports (%d) must exceed the total paid by the buyer (%d)",
			config.Funding.BuyerLamports, spend)
	}

	return nil
}

// Validate checks the endpoint URL and the commitment level.
func (c RPCConfig) Validate() error {
	if c.URL == "" {
		return ErrRPCURLRequired
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid rpc.url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("rpc.url must be http or https, got %q", c.URL)
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid rpc.commitment %q (must be processed, confirmed or finalized)", c.Commitment)
	}
	return nil
}

// Validate checks that the program id is a valid public key.
func (c ProgramConfig) Validate() error {
	if c.ID == "" {
		return ErrProgramIDRequired
	}
	if _, err := solana.PublicKeyFromBase58(c.ID); err != nil {
		return fmt.Errorf("invalid program.id %q: %w", c.ID, err)
	}
	if c.AddressCacheSize < 0 {
		return fmt.Errorf("program.address_cache_size must not be negative, got %d", c.AddressCacheSize)
	}
	return nil
}

// Validate checks the retry policy and the funding amounts.
func (c FundingConfig) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.BuyerLamports < c.MinimumLamports {
		return fmt.Errorf("funding.buyer_lamports (%d) is below funding.minimum_lamports (%d)", c.BuyerLamports, c.MinimumLamports)
	}
	if c.SellerLamports < c.MinimumLamports {
		return fmt.Errorf("funding.seller_lamports (%d) is below funding.minimum_lamports (%d)", c.SellerLamports, c.MinimumLamports)
	}
	return nil
}

// Validate checks the confirmation policy.
func (c SubmitConfig) Validate() error {
	return c.Policy.Validate()
}

// Validate checks the scenario inputs against the program's constraints.
func (c ScenarioConfig) Validate() error {
	for name, id := range map[string]string{
		"subscription_id":        c.SubscriptionID,
		"second_subscription_id": c.SecondSubscriptionID,
	} {
		if id == "" {
			return fmt.Errorf("scenario.%s is required", name)
		}
		if len(id) > escrow.MaxSeedLength {
			return fmt.Errorf("scenario.%s %q: %w", name, id, escrow.ErrSeedTooLong)
		}
	}
	if c.PaymentLamports == 0 {
		return errors.New("scenario.payment_lamports must be positive")
	}
	if c.EscrowedPayments < 1 {
		return fmt.Errorf("scenario.escrowed_payments must be at least 1, got %d", c.EscrowedPayments)
	}
	if c.DirectPayments < 0 {
		return fmt.Errorf("scenario.direct_payments must not be negative, got %d", c.DirectPayments)
	}
	if c.EscrowedPayments+c.DirectPayments > math.MaxUint8 {
		return fmt.Errorf("scenario payments (%d) exceed the u8 payment counter", c.EscrowedPayments+c.DirectPayments)
	}
	if c.PaymentDelay < 0 || c.SecondPaymentDelay < 0 {
		return errors.New("scenario delays must not be negative")
	}
	if c.RefundValidationData <= c.ValidationThreshold {
		return fmt.Errorf("scenario.refund_validation_data (%d) must exceed validation_threshold (%d)",
			c.RefundValidationData, c.ValidationThreshold)
	}
	if c.ReleaseValidationData > c.ValidationThreshold {
		return fmt.Errorf("scenario.release_validation_data (%d) must not exceed validation_threshold (%d)",
			c.ReleaseValidationData, c.ValidationThreshold)
	}
	return nil
}

// Validate checks the log level.
func (c LogConfig) Validate() error {
	_, err := logging.ParseLevel(c.Level)
	return err
}
