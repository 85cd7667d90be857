package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iurnickita/digimart/internal/model"
)

const priceScale = 2

func (store *store) CreateListing(ctx context.Context, listing model.Listing) (model.Listing, error) {
	if listing.Data.Price.IsNegative() {
		return model.Listing{}, fmt.Errorf("%w: negative price", ErrInvariant)
	}
	// цена хранится с точностью до копейки, округлять молча нельзя
	if !listing.Data.Price.Equal(listing.Data.Price.Round(priceScale)) {
		return model.Listing{}, fmt.Errorf("%w: price %s has more than %d decimal places",
			ErrInvariant, listing.Data.Price, priceScale)
	}
	created := listing.Data.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := store.database.ExecContext(ctx,
		"INSERT INTO listings (id, seller, title, price, file_locator, sales, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, 0, $6)",
		listing.ID,
		listing.Data.Seller,
		listing.Data.Title,
		listing.Data.Price.StringFixed(priceScale),
		listing.Data.FileLocator,
		created)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Listing{}, ErrAlreadyExists
		}
		return model.Listing{}, fmt.Errorf("create listing: %w", err)
	}
	return store.GetListing(ctx, listing.ID)
}

func (store *store) GetListing(ctx context.Context, id string) (model.Listing, error) {
	var listing model.Listing
	row := store.database.QueryRowContext(ctx,
		"SELECT id, seller, title, price, file_locator, sales, created_at"+
			" FROM listings"+
			" WHERE id = $1",
		id)
	err := row.Scan(&listing.ID,
		&listing.Data.Seller,
		&listing.Data.Title,
		&listing.Data.Price,
		&listing.Data.FileLocator,
		&listing.Data.Sales,
		&listing.Data.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Listing{}, ErrNotFound
		}
		return model.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	listing.Data.CreatedAt = listing.Data.CreatedAt.UTC()
	return listing, nil
}

// AdjustSales изменяет счетчик продаж одной инструкцией, без чтения.
func (store *store) AdjustSales(ctx context.Context, listingID string, delta int64) error {
	result, err := store.database.ExecContext(ctx,
		"UPDATE listings"+
			" SET sales = sales + $1"+
			" WHERE id = $2",
		delta,
		listingID)
	if err != nil {
		return fmt.Errorf("adjust sales of %s: %w", listingID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecountSales пересчитывает счетчики по журналу покупок.
func (store *store) RecountSales(ctx context.Context) (int64, error) {
	result, err := store.database.ExecContext(ctx,
		"UPDATE listings"+
			" SET sales = (SELECT COUNT(*) FROM purchases p"+
			"              WHERE p.listing_id = listings.id AND p.status = $1)",
		string(model.PurchaseStatusCompleted))
	if err != nil {
		return 0, fmt.Errorf("recount sales: %w", err)
	}
	return result.RowsAffected()
}
