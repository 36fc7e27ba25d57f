package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/LeJamon/goEscrowConform/internal/config"
	"github.com/LeJamon/goEscrowConform/internal/escrow"
	"github.com/LeJamon/goEscrowConform/internal/funding"
	"github.com/LeJamon/goEscrowConform/internal/ledger"
	"github.com/LeJamon/goEscrowConform/internal/logging"
	"github.com/LeJamon/goEscrowConform/internal/report"
	"github.com/LeJamon/goEscrowConform/internal/scenario"
	"github.com/LeJamon/goEscrowConform/internal/submit"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every conformance scenario against the configured program",
	Long: `Fund a buyer and a seller from the faucet, then run the scenarios in order:
start_subscription, escrowed_payments, direct_payments, cancel_subscription,
refund_withdrawal and release_withdrawal. The first failed check stops the run
and the command exits non-zero.`,
	RunE: runScenarios,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := buildEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer env.Recorder.Close()

	runner, err := scenario.NewRunner(env)
	if err != nil {
		return err
	}
	log.Info("starting conformance run", "rpc", cfg.RPC.URL, "program", cfg.Program.ID,
		"buyer", env.Ledger.Buyer.PublicKey().String(), "seller", env.Ledger.Seller.PublicKey().String())
	return runner.Run(ctx)
}

// buildEnv wires the RPC client, parties and harness components from cfg.
func buildEnv(ctx context.Context, cfg *config.Config, log logging.Logger) (scenario.Env, error) {
	buyer, err := ledger.PartyFromConfig(ledger.RoleBuyer, cfg.Parties.BuyerKeyfile)
	if err != nil {
		return scenario.Env{}, err
	}
	seller, err := ledger.PartyFromConfig(ledger.RoleSeller, cfg.Parties.SellerKeyfile)
	if err != nil {
		return scenario.Env{}, err
	}

	lc := &ledger.Context{
		Client:     rpc.New(cfg.RPC.URL),
		Commitment: cfg.RPC.CommitmentType(),
		ProgramID:  cfg.Program.PublicKey(),
		Buyer:      buyer,
		Seller:     seller,
	}

	deriver, err := escrow.NewDeriver(lc.ProgramID, cfg.Program.AddressCacheSize)
	if err != nil {
		return scenario.Env{}, fmt.Errorf("creating address deriver: %w", err)
	}
	fc, err := funding.NewController(lc, cfg.Funding.Policy, log.With("component", "funding"))
	if err != nil {
		return scenario.Env{}, err
	}
	sub, err := submit.NewSubmitter(lc, cfg.Submit.Policy, log.With("component", "submit"))
	if err != nil {
		return scenario.Env{}, err
	}
	recorder, err := report.Open(ctx, cfg.Report)
	if err != nil {
		return scenario.Env{}, fmt.Errorf("opening report store: %w", err)
	}

	return scenario.Env{
		Ledger:    lc,
		Deriver:   deriver,
		Funding:   fc,
		Submitter: sub,
		Recorder:  recorder,
		Log:       log,
		Settings:  scenario.SettingsFromConfig(cfg),
	}, nil
}
