package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goEscrowConform/internal/config"
	"github.com/LeJamon/goEscrowConform/internal/logging"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "escrowconform",
	Short: "escrowconform - ledger-state conformance harness for the subscription escrow program",
	Long: `escrowconform drives a deployed subscription escrow program through its
whole lifecycle over JSON-RPC (start, escrowed and direct payments, cancel,
refund and release withdrawals) and checks account data and party balances
after every step. Without a subcommand it runs every scenario.`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScenarios,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log balance snapshots around every call")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
}

// loadConfig reads the configuration and applies the global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Scenario.Verbose = true
	}
	switch {
	case debug:
		cfg.Log.Level = "debug"
	case quiet:
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.ZapLogger, error) {
	return logging.New(cfg.Log.Level)
}
