package config

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/LeJamon/goEscrowConform/internal/retry"
)

// Defaults target a local validator with the escrow program deployed.
const (
	DefaultRPCURL    = "http://localhost:8899"
	DefaultProgramID = "ABkdGF6rfAVxU9zC9n961YBTLKmNAEM3waZ2936fa1f"
)

// setDefaults sets the default value of every key so environment overrides
// are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", DefaultRPCURL)
	v.SetDefault("rpc.commitment", "confirmed")

	v.SetDefault("program.id", DefaultProgramID)
	v.SetDefault("program.address_cache_size", 64)

	v.SetDefault("parties.buyer_keyfile", "")
	v.SetDefault("parties.seller_keyfile", "")

	funding := retry.FundingPolicy()
	v.SetDefault("funding.max_attempts", funding.MaxAttempts)
	v.SetDefault("funding.poll_attempts", funding.PollAttempts)
	v.SetDefault("funding.poll_interval", funding.PollInterval)
	v.SetDefault("funding.backoff", funding.Backoff)
	v.SetDefault("funding.buyer_lamports", 10*solana.LAMPORTS_PER_SOL)
	v.SetDefault("funding.seller_lamports", solana.LAMPORTS_PER_SOL)
	v.SetDefault("funding.minimum_lamports", solana.LAMPORTS_PER_SOL)

	submit := retry.SubmitPolicy()
	v.SetDefault("submit.max_attempts", submit.MaxAttempts)
	v.SetDefault("submit.poll_attempts", submit.PollAttempts)
	v.SetDefault("submit.poll_interval", submit.PollInterval)
	v.SetDefault("submit.backoff", submit.Backoff)

	v.SetDefault("scenario.subscription_id", "premium_content")
	v.SetDefault("scenario.second_subscription_id", "premium_content_2")
	v.SetDefault("scenario.validation_threshold", 1000)
	v.SetDefault("scenario.payment_lamports", solana.LAMPORTS_PER_SOL)
	v.SetDefault("scenario.escrowed_payments", 5)
	v.SetDefault("scenario.direct_payments", 2)
	v.SetDefault("scenario.direct_payments_counted", false)
	v.SetDefault("scenario.payment_delay", 2*time.Second)
	v.SetDefault("scenario.second_payment_delay", time.Second)
	v.SetDefault("scenario.refund_validation_data", 2000)
	v.SetDefault("scenario.release_validation_data", 500)
	v.SetDefault("scenario.verbose", false)

	v.SetDefault("tolerance.payment_lamports", 10_000)
	v.SetDefault("tolerance.withdrawal_lamports", solana.LAMPORTS_PER_SOL/100)

	v.SetDefault("report.driver", "")
	v.SetDefault("report.path", "escrowconform.db")
	v.SetDefault("report.host", "localhost")
	v.SetDefault("report.port", "5432")
	v.SetDefault("report.database", "escrowconform")
	v.SetDefault("report.user", "postgres")
	v.SetDefault("report.password", "postgres")

	v.SetDefault("log.level", "info")
}
