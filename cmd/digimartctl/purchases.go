package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iurnickita/digimart/internal/issuer"
	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/service"
)

func newService(a *app) (service.Service, error) {
	return service.NewService(a.cfg.Service, a.store, issuer.NewIssuer(a.cfg.Issuer, a.store), a.zaplog)
}

func printPurchase(w io.Writer, purchase model.Purchase) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", purchase.ID, purchase.Data.PaymentRef, purchase.Data.Status, purchase.Data.DownloadToken)
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [payment ref]",
		Short: "Confirm a payment by hand, as the provider webhook would",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			svc, err := newService(a)
			if err != nil {
				return err
			}
			purchase, err := svc.ConfirmPayment(ctx, args[0])
			if err != nil {
				return err
			}
			printPurchase(cmd.OutOrStdout(), purchase)
			return nil
		}),
	}
}

func refundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund [payment ref]",
		Short: "Refund a purchase and revoke its download token",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			svc, err := newService(a)
			if err != nil {
				return err
			}
			purchase, err := svc.Refund(ctx, args[0])
			if err != nil {
				return err
			}
			printPurchase(cmd.OutOrStdout(), purchase)
			return nil
		}),
	}
}
