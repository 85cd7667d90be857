package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/store/config"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	cfg := config.Config{
		Driver: DriverSQLite,
		DBDsn:  filepath.Join(t.TempDir(), "digimart.db") + "?_pragma=busy_timeout(5000)&_time_format=sqlite",
	}
	store, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestListing(t *testing.T, store Store, seller string, price int64) model.Listing {
	t.Helper()

	listing, err := store.CreateListing(context.Background(), model.Listing{
		ID: uuid.NewString(),
		Data: model.ListingData{
			Seller:      seller,
			Title:       "Go starter kit",
			Price:       decimal.NewFromInt(price),
			FileLocator: "kits/go-starter.zip",
		},
	})
	require.NoError(t, err)
	return listing
}

func newPendingPurchase(buyer string, listing model.Listing, ref string) model.Purchase {
	return model.Purchase{
		ID: uuid.NewString(),
		Data: model.PurchaseData{
			Buyer:      buyer,
			Listing:    listing.ID,
			Amount:     listing.Data.Price,
			PaymentRef: ref,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func TestStoreCreatePurchase(t *testing.T) {
	const (
		buyer  = "buyer-1"
		seller = "seller-1"
	)
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, seller, 500)

	// Создание покупки
	created, err := store.CreatePurchase(ctx, newPendingPurchase(buyer, listing, "ref-1"))
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusPending, created.Data.Status)
	require.True(t, created.Data.Amount.Equal(decimal.NewFromInt(500)))
	require.Empty(t, created.Data.DownloadToken)
	require.True(t, created.Data.TokenExpiry.IsZero())

	// Повтор с тем же payment_ref
	again, err := store.CreatePurchase(ctx, newPendingPurchase(buyer, listing, "ref-1"))
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, created.ID, again.ID)

	found, err := store.FindByPaymentRef(ctx, "ref-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = store.FindByPaymentRef(ctx, "ref-unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreatePurchaseConcurrent(t *testing.T) {
	const attempts = 16
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, "seller-1", 500)

	ids := make([]string, attempts)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			purchase, err := store.CreatePurchase(ctx, newPendingPurchase("buyer-1", listing, "ref-race"))
			if err != nil && err != ErrAlreadyExists {
				return err
			}
			ids[i] = purchase.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	purchases, err := store.FindByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func TestStoreTransition(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, "seller-1", 500)

	created, err := store.CreatePurchase(ctx, newPendingPurchase("buyer-1", listing, "ref-1"))
	require.NoError(t, err)

	// completed без токена запрещен
	_, err = store.Transition(ctx, created.ID, model.PurchaseStatusPending, model.PurchaseStatusCompleted, model.TransitionFields{})
	require.ErrorIs(t, err, ErrInvariant)

	// срок токена раньше создания покупки
	_, err = store.Transition(ctx, created.ID, model.PurchaseStatusPending, model.PurchaseStatusCompleted, model.TransitionFields{
		DownloadToken: uuid.NewString(),
		TokenExpiry:   created.Data.CreatedAt.Add(-time.Hour),
	})
	require.ErrorIs(t, err, ErrInvariant)

	// недопустимый переход
	_, err = store.Transition(ctx, created.ID, model.PurchaseStatusRefunded, model.PurchaseStatusCompleted, model.TransitionFields{})
	require.ErrorIs(t, err, ErrIllegalTransition)

	// pending -> verification_needed
	verifying, err := store.Transition(ctx, created.ID, model.PurchaseStatusPending, model.PurchaseStatusVerificationNeeded, model.TransitionFields{
		ProofRef: "upi-777",
	})
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusVerificationNeeded, verifying.Data.Status)
	require.Equal(t, "upi-777", verifying.Data.ProofRef)
	require.Empty(t, verifying.Data.DownloadToken)

	// устаревший from
	_, err = store.Transition(ctx, created.ID, model.PurchaseStatusPending, model.PurchaseStatusCompleted, model.TransitionFields{
		DownloadToken: uuid.NewString(),
		TokenExpiry:   time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrConflict)

	token := uuid.NewString()
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	completed, err := store.Transition(ctx, created.ID, model.PurchaseStatusVerificationNeeded, model.PurchaseStatusCompleted, model.TransitionFields{
		DownloadToken: token,
		TokenExpiry:   expiry,
	})
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusCompleted, completed.Data.Status)
	require.Equal(t, token, completed.Data.DownloadToken)
	require.WithinDuration(t, expiry, completed.Data.TokenExpiry, time.Millisecond)
	require.Equal(t, "upi-777", completed.Data.ProofRef)

	byToken, err := store.FindByToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, created.ID, byToken.ID)

	// возврат очищает токен
	refunded, err := store.Transition(ctx, created.ID, model.PurchaseStatusCompleted, model.PurchaseStatusRefunded, model.TransitionFields{})
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusRefunded, refunded.Data.Status)
	require.Empty(t, refunded.Data.DownloadToken)
	require.True(t, refunded.Data.TokenExpiry.IsZero())

	_, err = store.FindByToken(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Transition(ctx, uuid.NewString(), model.PurchaseStatusPending, model.PurchaseStatusRefunded, model.TransitionFields{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFindByBuyer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, "seller-1", 500)

	base := time.Now().UTC().Add(-time.Hour)
	refs := []string{"ref-a", "ref-b", "ref-c"}
	for i, ref := range refs {
		purchase := newPendingPurchase("buyer-1", listing, ref)
		purchase.Data.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.CreatePurchase(ctx, purchase)
		require.NoError(t, err)
	}
	_, err := store.CreatePurchase(ctx, newPendingPurchase("buyer-2", listing, "ref-other"))
	require.NoError(t, err)

	purchases, err := store.FindByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, purchases, 3)
	require.Equal(t, "ref-c", purchases[0].Data.PaymentRef)
	require.Equal(t, "ref-b", purchases[1].Data.PaymentRef)
	require.Equal(t, "ref-a", purchases[2].Data.PaymentRef)

	purchases, err = store.FindByBuyer(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func TestStoreCreateListingPrice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tests := []struct {
		price   string
		wantErr bool
	}{
		{price: "9.99"},
		{price: "9.990"},
		{price: "10"},
		{price: "0"},
		{price: "9.999", wantErr: true},
		{price: "0.001", wantErr: true},
		{price: "-1", wantErr: true},
	}
	for _, tt := range tests {
		price := decimal.RequireFromString(tt.price)
		id := uuid.NewString()
		listing, err := store.CreateListing(ctx, model.Listing{
			ID:   id,
			Data: model.ListingData{Seller: "seller-1", Title: "kit", Price: price, FileLocator: "kit.pdf"},
		})
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvariant, tt.price)
			_, err = store.GetListing(ctx, id)
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err, tt.price)
		require.True(t, listing.Data.Price.Equal(price), "%s stored as %s", tt.price, listing.Data.Price)
	}
}

func TestStoreSales(t *testing.T) {
	const increments = 20
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, "seller-1", 500)

	var g errgroup.Group
	for i := 0; i < increments; i++ {
		g.Go(func() error {
			return store.AdjustSales(ctx, listing.ID, 1)
		})
	}
	require.NoError(t, g.Wait())

	stored, err := store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, int64(increments), stored.Data.Sales)

	require.ErrorIs(t, store.AdjustSales(ctx, uuid.NewString(), 1), ErrNotFound)

	// пересчет по журналу: одна завершенная покупка
	created, err := store.CreatePurchase(ctx, newPendingPurchase("buyer-1", listing, "ref-1"))
	require.NoError(t, err)
	_, err = store.Transition(ctx, created.ID, model.PurchaseStatusPending, model.PurchaseStatusCompleted, model.TransitionFields{
		DownloadToken: uuid.NewString(),
		TokenExpiry:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = store.RecountSales(ctx)
	require.NoError(t, err)
	stored, err = store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Data.Sales)
}

func TestStoreFindAbandoned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	listing := newTestListing(t, store, "seller-1", 500)
	now := time.Now().UTC()

	older := newPendingPurchase("buyer-1", listing, "ref-older")
	older.Data.CreatedAt = now.Add(-72 * time.Hour)
	older, err := store.CreatePurchase(ctx, older)
	require.NoError(t, err)

	old := newPendingPurchase("buyer-1", listing, "ref-old")
	old.Data.CreatedAt = now.Add(-48 * time.Hour)
	old, err = store.CreatePurchase(ctx, old)
	require.NoError(t, err)

	_, err = store.CreatePurchase(ctx, newPendingPurchase("buyer-1", listing, "ref-fresh"))
	require.NoError(t, err)

	// старая, но уже с подтверждением оплаты
	proof := newPendingPurchase("buyer-1", listing, "ref-proof")
	proof.Data.CreatedAt = now.Add(-48 * time.Hour)
	proof, err = store.CreatePurchase(ctx, proof)
	require.NoError(t, err)
	_, err = store.Transition(ctx, proof.ID, model.PurchaseStatusPending, model.PurchaseStatusVerificationNeeded,
		model.TransitionFields{ProofRef: "receipt", UpdatedAt: now})
	require.NoError(t, err)

	abandoned, err := store.FindAbandoned(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, abandoned, 2)
	require.Equal(t, older.ID, abandoned[0].ID)
	require.Equal(t, old.ID, abandoned[1].ID)

	abandoned, err = store.FindAbandoned(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)

	// поиск ничего не меняет
	old, err = store.FindByID(ctx, old.ID)
	require.NoError(t, err)
	require.Equal(t, model.PurchaseStatusPending, old.Data.Status)
}
