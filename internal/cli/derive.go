package cli

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/LeJamon/goEscrowConform/internal/escrow"
)

var (
	deriveBuyer        string
	deriveSeller       string
	deriveSubscription string
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the escrow account address for a buyer, seller and subscription id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		buyer, err := solana.PublicKeyFromBase58(deriveBuyer)
		if err != nil {
			return fmt.Errorf("invalid --buyer: %w", err)
		}
		seller, err := solana.PublicKeyFromBase58(deriveSeller)
		if err != nil {
			return fmt.Errorf("invalid --seller: %w", err)
		}
		subscription := deriveSubscription
		if subscription == "" {
			subscription = cfg.Scenario.SubscriptionID
		}

		d, err := escrow.DeriveAddress(cfg.Program.PublicKey(), buyer, seller, subscription)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "program: %s\n", cfg.Program.ID)
		fmt.Fprintf(out, "escrow: %s\n", d.Address)
		fmt.Fprintf(out, "bump: %d\n", d.Bump)
		return nil
	},
}

func init() {
	deriveCmd.Flags().StringVar(&deriveBuyer, "buyer", "", "buyer public key (base58)")
	deriveCmd.Flags().StringVar(&deriveSeller, "seller", "", "seller public key (base58)")
	deriveCmd.Flags().StringVar(&deriveSubscription, "subscription", "", "subscription id (defaults to scenario.subscription_id)")
	_ = deriveCmd.MarkFlagRequired("buyer")
	_ = deriveCmd.MarkFlagRequired("seller")
	rootCmd.AddCommand(deriveCmd)
}
