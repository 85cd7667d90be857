package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iurnickita/digimart/internal/assets"
	"github.com/iurnickita/digimart/internal/model"
)

func listingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Manage catalog listings",
	}
	cmd.AddCommand(listingAddCmd())
	cmd.AddCommand(listingShowCmd())
	return cmd
}

func listingAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [file]",
		Short: "Upload a file and publish it as a listing",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			seller, _ := cmd.Flags().GetString("seller")
			title, _ := cmd.Flags().GetString("title")
			priceText, _ := cmd.Flags().GetString("price")
			locator, _ := cmd.Flags().GetString("locator")

			price, err := decimal.NewFromString(priceText)
			if err != nil {
				return fmt.Errorf("bad price %q: %w", priceText, err)
			}
			if price.IsNegative() {
				return fmt.Errorf("price must not be negative")
			}
			if !price.Equal(price.Round(2)) {
				return fmt.Errorf("price %s has more than 2 decimal places", priceText)
			}
			if seller == "" {
				return fmt.Errorf("--seller is required")
			}

			id := uuid.NewString()
			if locator == "" {
				locator = path.Join(id, filepath.Base(args[0]))
			}
			if title == "" {
				title = filepath.Base(args[0])
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			storage, err := assets.NewStorage(ctx, a.cfg.Assets)
			if err != nil {
				return err
			}
			if err := storage.Put(ctx, locator, f, info.Size()); err != nil {
				return fmt.Errorf("upload %s: %w", args[0], err)
			}

			listing, err := a.store.CreateListing(ctx, model.Listing{
				ID: id,
				Data: model.ListingData{
					Seller:      seller,
					Title:       title,
					Price:       price,
					FileLocator: locator,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
				listing.ID, listing.Data.Title, listing.Data.Price, listing.Data.FileLocator)
			return nil
		}),
	}

	cmd.Flags().String("seller", "", "seller user code")
	cmd.Flags().String("title", "", "listing title (defaults to the file name)")
	cmd.Flags().String("price", "0", "price in the store currency")
	cmd.Flags().String("locator", "", "storage key (defaults to <id>/<file name>)")
	return cmd
}

func listingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [listing id]",
		Short: "Print a listing and its sales counter",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			listing, err := a.store.GetListing(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\nseller:  %s\ntitle:   %s\nprice:   %s\nfile:    %s\nsales:   %d\n",
				listing.ID, listing.Data.Seller, listing.Data.Title,
				listing.Data.Price, listing.Data.FileLocator, listing.Data.Sales)
			return nil
		}),
	}
}
