package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/earn-alliance/smartwallet/internal/config"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
)

type rootFlags struct {
	logLevel      string
	walletID      string
	account       string
	signerBackend string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errs.UserMessage(err))
		log.Logger().WithError(err).Debug("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "smartwallet",
		Short:         "Send USDC from a custodial wallet through its smart account",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&flags.walletID, "wallet-id", "", "custody wallet to use, overrides CUSTODY_WALLET_ID")
	cmd.PersistentFlags().StringVar(&flags.account, "account", "", "custodial account address to use, overrides CUSTODY_ACCOUNT_ADDRESS")
	cmd.PersistentFlags().StringVar(&flags.signerBackend, "signer", "", "signing backend (provider|walletservice), overrides SIGNER_BACKEND")

	cmd.AddCommand(
		newWhoamiCmd(flags),
		newBalanceCmd(flags),
		newWatchCmd(flags),
		newTransferCmd(flags),
	)
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.walletID != "" {
		cfg.WalletID = flags.walletID
	}
	if flags.account != "" {
		cfg.AccountAddr = flags.account
	}
	if flags.signerBackend != "" {
		cfg.SignerBackend = flags.signerBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := log.SetLevel(cfg.LogLevel); err != nil {
		log.Logger().WithError(err).Warnf("unknown log level %q, keeping %s", cfg.LogLevel, log.Logger().GetLevel())
	}
	return cfg, nil
}
