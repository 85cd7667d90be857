package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iurnickita/digimart/internal/service/paymentclient"
	"github.com/iurnickita/digimart/internal/sweeper"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel old purchase intents the payment provider reports as failed or unknown",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			cfg := a.cfg.Sweeper
			if ttl, _ := cmd.Flags().GetDuration("pending-ttl"); ttl > 0 {
				cfg.PendingTTL = ttl
			}
			if cfg.PendingTTL <= 0 {
				return fmt.Errorf("pending TTL is not set, use --pending-ttl or SWEEPER_PENDING_TTL")
			}
			if a.cfg.Service.PaymentProviderAddr == "" {
				return fmt.Errorf("payment provider is not configured, unpaid intents cannot be told from late payments")
			}
			s := sweeper.NewSweeper(cfg, a.store,
				paymentclient.NewPaymentClient(a.cfg.Service.PaymentProviderAddr), a.zaplog)
			expired, err := s.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d purchases\n", expired)
			return nil
		}),
	}
	cmd.Flags().Duration("pending-ttl", 0, "override SWEEPER_PENDING_TTL")
	return cmd
}

func recountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount",
		Short: "Rebuild listing sales counters from completed purchases",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			updated, err := a.store.RecountSales(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recounted %d listings\n", updated)
			return nil
		}),
	}
}
