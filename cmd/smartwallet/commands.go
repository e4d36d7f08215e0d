package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/pkg/constants"
)

// startApp loads the configuration and starts a session. The caller closes
// the returned app.
func startApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.session.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the custodial address and its smart account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := startApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.session.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "organization:   %s\n", snap.Identity.OrganizationID)
			fmt.Fprintf(out, "wallet:         %s\n", snap.Identity.WalletID)
			fmt.Fprintf(out, "custodial:      %s\n", snap.Identity.CustodialAddress.Hex())
			fmt.Fprintf(out, "smart account:  %s\n", snap.Account.Address.Hex())
			fmt.Fprintf(out, "network:        %d\n", snap.Account.NetworkID)
			return nil
		},
	}
}

func newBalanceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the smart account's USDC balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := startApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s USDC\n", a.session.Balance())
			return nil
		},
	}
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print balance changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := startApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: a.metrics.Handler()}
				go func() {
					log.Logger().Infof("serving metrics on %s", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Logger().WithError(err).Error("metrics server stopped")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			out := cmd.OutOrStdout()
			last := a.session.Balance()
			fmt.Fprintf(out, "%s USDC\n", last)

			ticker := time.NewTicker(a.cfg.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if current := a.session.Balance(); current != last {
						last = current
						fmt.Fprintf(out, "%s USDC\n", current)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, overrides METRICS_ADDR")
	return cmd
}

func newTransferCmd(flags *rootFlags) *cobra.Command {
	var to, amount string

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send USDC from the smart account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := startApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.SetRecipient(to)
			a.session.SetAmount(amount)
			attempt, err := a.session.Transfer(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sent %s USDC to %s\n", amount, to)
			fmt.Fprintf(out, "transaction: %s (%s)\n", attempt.Result.TransactionHash.Hex(), attempt.Result.Status)
			fmt.Fprintf(out, "balance:     %s USDC\n", a.session.Balance())
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", fmt.Sprintf("amount in USDC, up to %d decimals", constants.USDC_DECIMALS))
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
