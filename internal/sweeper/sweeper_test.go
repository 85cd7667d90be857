package sweeper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/digimart/internal/issuer"
	issuerconfig "github.com/iurnickita/digimart/internal/issuer/config"
	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/service"
	serviceconfig "github.com/iurnickita/digimart/internal/service/config"
	"github.com/iurnickita/digimart/internal/service/paymentclient"
	"github.com/iurnickita/digimart/internal/store"
	storeconfig "github.com/iurnickita/digimart/internal/store/config"
	"github.com/iurnickita/digimart/internal/sweeper/config"
)

// providerStub отвечает статусами по payment_ref; неизвестные ссылки - ErrUnknownPayment.
type providerStub map[string]string

func (p providerStub) GetPayment(_ context.Context, paymentRef string) (paymentclient.PaymentAnswer, error) {
	status, ok := p[paymentRef]
	if !ok {
		return paymentclient.PaymentAnswer{}, paymentclient.ErrUnknownPayment
	}
	if status == "" {
		return paymentclient.PaymentAnswer{}, errors.New("provider unavailable")
	}
	return paymentclient.PaymentAnswer{Reference: paymentRef, Status: status}, nil
}

type sweepEnv struct {
	store   store.Store
	listing model.Listing
	now     time.Time
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewStore(storeconfig.Config{
		Driver: store.DriverSQLite,
		DBDsn:  filepath.Join(t.TempDir(), "digimart.db") + "?_pragma=busy_timeout(5000)&_time_format=sqlite",
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	listing, err := st.CreateListing(ctx, model.Listing{
		ID:   uuid.NewString(),
		Data: model.ListingData{Seller: "seller-1", Title: "kit", Price: decimal.NewFromInt(5), FileLocator: "kit.pdf"},
	})
	require.NoError(t, err)
	return &sweepEnv{store: st, listing: listing, now: time.Now().UTC()}
}

func (env *sweepEnv) create(t *testing.T, ref string, age time.Duration) model.Purchase {
	t.Helper()

	p, err := env.store.CreatePurchase(context.Background(), model.Purchase{
		ID: uuid.NewString(),
		Data: model.PurchaseData{
			Buyer: "buyer-1", Listing: env.listing.ID, Amount: env.listing.Data.Price,
			PaymentRef: ref, CreatedAt: env.now.Add(-age),
		},
	})
	require.NoError(t, err)
	return p
}

func (env *sweepEnv) status(t *testing.T, p model.Purchase) model.PurchaseStatus {
	t.Helper()

	got, err := env.store.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	return got.Data.Status
}

func TestSweeperRunNow(t *testing.T) {
	ctx := context.Background()
	env := newSweepEnv(t)

	unknown := env.create(t, "ref-unknown", 2*time.Hour)
	failed := env.create(t, "ref-failed", 2*time.Hour)
	pending := env.create(t, "ref-pending", 2*time.Hour)
	down := env.create(t, "ref-down", 2*time.Hour)
	fresh := env.create(t, "ref-fresh", 0)
	proof := env.create(t, "ref-proof", 2*time.Hour)
	_, err := env.store.Transition(ctx, proof.ID, model.PurchaseStatusPending, model.PurchaseStatusVerificationNeeded,
		model.TransitionFields{ProofRef: "receipt", UpdatedAt: env.now})
	require.NoError(t, err)

	provider := providerStub{
		"ref-failed":  paymentclient.PaymentStatusFailed,
		"ref-pending": paymentclient.PaymentStatusPending,
		"ref-down":    "",
		"ref-proof":   paymentclient.PaymentStatusFailed,
	}
	s := NewSweeper(config.Config{PendingTTL: time.Hour}, env.store, provider, nil)
	s.now = func() time.Time { return env.now }

	expired, err := s.RunNow(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), expired)

	require.Equal(t, model.PurchaseStatusRefunded, env.status(t, unknown))
	require.Equal(t, model.PurchaseStatusRefunded, env.status(t, failed))
	require.Equal(t, model.PurchaseStatusPending, env.status(t, pending))
	require.Equal(t, model.PurchaseStatusPending, env.status(t, down))
	require.Equal(t, model.PurchaseStatusPending, env.status(t, fresh))
	require.Equal(t, model.PurchaseStatusVerificationNeeded, env.status(t, proof))
}

func TestSweeperLateConfirmation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		provider PaymentChecker
	}{
		{name: "provider still processing", provider: providerStub{"ref-late": paymentclient.PaymentStatusPending}},
		{name: "provider already settled", provider: providerStub{"ref-late": paymentclient.PaymentStatusSucceeded}},
		{name: "no provider client", provider: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newSweepEnv(t)
			env.create(t, "ref-late", 2*time.Hour)

			s := NewSweeper(config.Config{PendingTTL: time.Hour}, env.store, tt.provider, nil)
			s.now = func() time.Time { return env.now }
			expired, err := s.RunNow(ctx)
			require.NoError(t, err)
			require.Zero(t, expired)

			// вебхук провайдера приходит после прохода
			svc, err := service.NewService(serviceconfig.Config{}, env.store,
				issuer.NewIssuer(issuerconfig.Config{}, env.store), nil)
			require.NoError(t, err)
			completed, err := svc.ConfirmPayment(ctx, "ref-late")
			require.NoError(t, err)
			require.Equal(t, model.PurchaseStatusCompleted, completed.Data.Status)
			require.NotEmpty(t, completed.Data.DownloadToken)

			listing, err := env.store.GetListing(ctx, env.listing.ID)
			require.NoError(t, err)
			require.Equal(t, int64(1), listing.Data.Sales)
		})
	}
}

func TestSweeperDisabled(t *testing.T) {
	env := newSweepEnv(t)
	env.create(t, "ref-old", 2*time.Hour)

	// без TTL
	s := NewSweeper(config.Config{}, env.store, providerStub{}, nil)
	require.False(t, s.Enabled())
	expired, err := s.RunNow(context.Background())
	require.NoError(t, err)
	require.Zero(t, expired)
	require.NoError(t, s.Run(context.Background()))

	// без клиента провайдера
	s = NewSweeper(config.Config{PendingTTL: time.Hour}, env.store, nil, nil)
	require.False(t, s.Enabled())
	require.NoError(t, s.Run(context.Background()))
}

func TestSweeperRun(t *testing.T) {
	env := newSweepEnv(t)
	old := env.create(t, "ref-old", 2*time.Hour)

	s := NewSweeper(config.Config{PendingTTL: time.Hour, Interval: 10 * time.Millisecond},
		env.store, providerStub{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := env.store.FindByID(context.Background(), old.ID)
		return err == nil && got.Data.Status == model.PurchaseStatusRefunded
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
