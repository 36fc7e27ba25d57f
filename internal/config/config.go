package config

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/LeJamon/goEscrowConform/internal/report"
	"github.com/LeJamon/goEscrowConform/internal/retry"
)

// Config represents the complete harness configuration.
type Config struct {
	RPC       RPCConfig       `toml:"rpc" mapstructure:"rpc"`
	Program   ProgramConfig   `toml:"program" mapstructure:"program"`
	Parties   PartiesConfig   `toml:"parties" mapstructure:"parties"`
	Funding   FundingConfig   `toml:"funding" mapstructure:"funding"`
	Submit    SubmitConfig    `toml:"submit" mapstructure:"submit"`
	Scenario  ScenarioConfig  `toml:"scenario" mapstructure:"scenario"`
	Tolerance ToleranceConfig `toml:"tolerance" mapstructure:"tolerance"`
	Report    report.Config   `toml:"report" mapstructure:"report"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`

	configPath string
}

// RPCConfig selects the endpoint and the commitment used for every read and
// confirmation.
type RPCConfig struct {
	URL        string `toml:"url" mapstructure:"url"`
	Commitment string `toml:"commitment" mapstructure:"commitment"`
}

// CommitmentType returns the configured commitment.
func (c RPCConfig) CommitmentType() rpc.CommitmentType {
	return rpc.CommitmentType(c.Commitment)
}

// ProgramConfig identifies the escrow program under test.
type ProgramConfig struct {
	ID               string `toml:"id" mapstructure:"id"`
	AddressCacheSize int    `toml:"address_cache_size" mapstructure:"address_cache_size"`
}

// PublicKey parses the program id. Call after validation.
func (c ProgramConfig) PublicKey() solana.PublicKey {
	pk, _ := solana.PublicKeyFromBase58(c.ID)
	return pk
}

// PartiesConfig optionally points at solana-keygen files. Empty paths mean a
// fresh key per run.
type PartiesConfig struct {
	BuyerKeyfile  string `toml:"buyer_keyfile" mapstructure:"buyer_keyfile"`
	SellerKeyfile string `toml:"seller_keyfile" mapstructure:"seller_keyfile"`
}

// FundingConfig holds faucet amounts and the airdrop retry policy.
type FundingConfig struct {
	retry.Policy `mapstructure:",squash"`

	BuyerLamports   uint64 `toml:"buyer_lamports" mapstructure:"buyer_lamports"`
	SellerLamports  uint64 `toml:"seller_lamports" mapstructure:"seller_lamports"`
	MinimumLamports uint64 `toml:"minimum_lamports" mapstructure:"minimum_lamports"`
}

// SubmitConfig holds the confirmation policy for transactions.
type SubmitConfig struct {
	retry.Policy `mapstructure:",squash"`
}

// ScenarioConfig holds the inputs of the scenario sequence.
type ScenarioConfig struct {
	SubscriptionID        string        `toml:"subscription_id" mapstructure:"subscription_id"`
	SecondSubscriptionID  string        `toml:"second_subscription_id" mapstructure:"second_subscription_id"`
	ValidationThreshold   uint64        `toml:"validation_threshold" mapstructure:"validation_threshold"`
	PaymentLamports       uint64        `toml:"payment_lamports" mapstructure:"payment_lamports"`
	EscrowedPayments      int           `toml:"escrowed_payments" mapstructure:"escrowed_payments"`
	DirectPayments        int           `toml:"direct_payments" mapstructure:"direct_payments"`
	DirectPaymentsCounted bool          `toml:"direct_payments_counted" mapstructure:"direct_payments_counted"`
	PaymentDelay          time.Duration `toml:"payment_delay" mapstructure:"payment_delay"`
	SecondPaymentDelay    time.Duration `toml:"second_payment_delay" mapstructure:"second_payment_delay"`
	RefundValidationData  uint64        `toml:"refund_validation_data" mapstructure:"refund_validation_data"`
	ReleaseValidationData uint64        `toml:"release_validation_data" mapstructure:"release_validation_data"`
	Verbose               bool          `toml:"verbose" mapstructure:"verbose"`
}

// ToleranceConfig holds the fee-noise bands for balance comparisons.
type ToleranceConfig struct {
	PaymentLamports    uint64 `toml:"payment_lamports" mapstructure:"payment_lamports"`
	WithdrawalLamports uint64 `toml:"withdrawal_lamports" mapstructure:"withdrawal_lamports"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
}

// ConfigPath returns the file the configuration was loaded from, if any.
func (c *Config) ConfigPath() string {
	return c.configPath
}

func (c *Config) String() string {
	return fmt.Sprintf("rpc=%s commitment=%s program=%s", c.RPC.URL, c.RPC.Commitment, c.Program.ID)
}
