package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/issuer"
	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/paymentref"
	"github.com/iurnickita/digimart/internal/sales"
	"github.com/iurnickita/digimart/internal/service/config"
	"github.com/iurnickita/digimart/internal/service/paymentclient"
	"github.com/iurnickita/digimart/internal/store"
)

type Service interface {
	CreatePurchase(ctx context.Context, buyer string, request model.PurchaseRequest) (purchase model.Purchase, created bool, err error)
	SubmitProof(ctx context.Context, buyer string, paymentRef string, proofRef string) (model.Purchase, error)
	ConfirmPayment(ctx context.Context, paymentRef string) (model.Purchase, error)
	Refund(ctx context.Context, paymentRef string) (model.Purchase, error)
	GetPurchases(ctx context.Context, buyer string) ([]model.Purchase, error)
	Download(ctx context.Context, buyer string, token string) (model.Purchase, model.Listing, error)
}

// ErrRejected is the parent of every guard violation. Rejected requests are
// reported to the caller and never retried.
var ErrRejected = errors.New("request rejected")

var (
	ErrInsufficientData = fmt.Errorf("%w: insufficient data", ErrRejected)
	ErrListingNotFound  = fmt.Errorf("%w: listing not found", ErrRejected)
	ErrSelfPurchase     = fmt.Errorf("%w: cannot purchase own listing", ErrRejected)
	ErrPriceMismatch    = fmt.Errorf("%w: amount does not match listing price", ErrRejected)
	ErrMalformedRef     = fmt.Errorf("%w: malformed payment reference", ErrRejected)
	ErrReferenceTaken   = fmt.Errorf("%w: payment reference belongs to another purchase", ErrRejected)
	ErrPurchaseRefunded = fmt.Errorf("%w: purchase refunded", ErrRejected)
)

var (
	ErrNotFound          = errors.New("purchase not found")
	ErrForbidden         = errors.New("purchase belongs to another buyer")
	ErrPaymentNotSettled = errors.New("payment not settled yet")
	ErrContention        = errors.New("purchase is changing concurrently, retry later")
)

const defaultTransitionAttempts = 3

type service struct {
	cfg      config.Config
	store    store.Store
	issuer   issuer.Issuer
	sales    sales.Sales
	payments paymentclient.PaymentClient // nil: доверяем подтверждению покупателя
	zaplog   *zap.Logger
	now      func() time.Time
}

func NewService(cfg config.Config, store store.Store, issuer issuer.Issuer, zaplog *zap.Logger) (Service, error) {
	if store == nil || issuer == nil {
		return nil, errors.New("service dependencies are not configured")
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	if cfg.TransitionAttempts <= 0 {
		cfg.TransitionAttempts = defaultTransitionAttempts
	}

	var payments paymentclient.PaymentClient
	if cfg.PaymentProviderAddr != "" {
		payments = paymentclient.NewPaymentClient(cfg.PaymentProviderAddr)
	}

	service := service{
		cfg:      cfg,
		store:    store,
		issuer:   issuer,
		sales:    sales.NewSales(store),
		payments: payments,
		zaplog:   zaplog,
		now:      time.Now}

	return &service, nil
}

func (service *service) CreatePurchase(ctx context.Context, buyer string, request model.PurchaseRequest) (model.Purchase, bool, error) {
	if buyer == "" || request.ListingID == "" {
		return model.Purchase{}, false, ErrInsufficientData
	}

	listing, err := service.store.GetListing(ctx, request.ListingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Purchase{}, false, ErrListingNotFound
		}
		return model.Purchase{}, false, err
	}
	if listing.Data.Seller == buyer {
		return model.Purchase{}, false, ErrSelfPurchase
	}
	if request.Amount != nil && !request.Amount.Equal(listing.Data.Price) {
		return model.Purchase{}, false, ErrPriceMismatch
	}

	now := service.now().UTC()
	ref := request.PaymentRef
	if ref == "" {
		ref = paymentref.New(now)
	} else if !paymentref.Valid(ref) {
		return model.Purchase{}, false, ErrMalformedRef
	}

	var newPurchase model.Purchase
	newPurchase.ID = uuid.NewString()
	newPurchase.Data.Buyer = buyer
	newPurchase.Data.Listing = listing.ID
	newPurchase.Data.Amount = listing.Data.Price
	newPurchase.Data.PaymentRef = ref
	newPurchase.Data.CreatedAt = now

	purchase, err := service.store.CreatePurchase(ctx, newPurchase)
	if err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) || purchase.ID == "" {
			return model.Purchase{}, false, err
		}
		// повторный запрос с тем же payment_ref
		if purchase.Data.Buyer != buyer || purchase.Data.Listing != listing.ID {
			return model.Purchase{}, false, ErrReferenceTaken
		}
		return purchase, false, nil
	}

	service.zaplog.Info("purchase created",
		zap.String("purchase_id", purchase.ID),
		zap.String("payment_ref", purchase.Data.PaymentRef),
		zap.String("listing_id", purchase.Data.Listing),
		zap.String("amount", purchase.Data.Amount.String()))
	return purchase, true, nil
}

// SubmitProof records the buyer's proof of payment and, once the provider
// agrees (or no provider is configured), completes the purchase.
func (service *service) SubmitProof(ctx context.Context, buyer string, paymentRef string, proofRef string) (model.Purchase, error) {
	if buyer == "" || proofRef == "" {
		return model.Purchase{}, ErrInsufficientData
	}
	purchase, err := service.findByRef(ctx, paymentRef)
	if err != nil {
		return model.Purchase{}, err
	}
	if purchase.Data.Buyer != buyer {
		return model.Purchase{}, ErrForbidden
	}

	for attempt := 0; purchase.Data.Status == model.PurchaseStatusPending; attempt++ {
		if attempt >= service.cfg.TransitionAttempts {
			return model.Purchase{}, ErrContention
		}
		updated, err := service.store.Transition(ctx, purchase.ID,
			model.PurchaseStatusPending, model.PurchaseStatusVerificationNeeded,
			model.TransitionFields{ProofRef: proofRef, UpdatedAt: service.now()})
		if err == nil {
			purchase = updated
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Purchase{}, err
		}
		if purchase, err = service.store.FindByID(ctx, purchase.ID); err != nil {
			return model.Purchase{}, err
		}
	}

	switch purchase.Data.Status {
	case model.PurchaseStatusCompleted:
		return purchase, nil
	case model.PurchaseStatusRefunded:
		return purchase, ErrPurchaseRefunded
	}

	if service.payments == nil {
		return service.complete(ctx, purchase)
	}

	answer, err := service.payments.GetPayment(ctx, purchase.Data.PaymentRef)
	if err != nil {
		if errors.Is(err, paymentclient.ErrUnknownPayment) {
			return purchase, ErrPaymentNotSettled
		}
		return model.Purchase{}, fmt.Errorf("verify payment %s: %w", purchase.Data.PaymentRef, err)
	}
	if answer.Status != paymentclient.PaymentStatusSucceeded {
		service.zaplog.Info("payment not settled",
			zap.String("purchase_id", purchase.ID),
			zap.String("provider_status", answer.Status))
		return purchase, ErrPaymentNotSettled
	}
	return service.complete(ctx, purchase)
}

// ConfirmPayment handles a payment-provider confirmation, which may be
// delivered any number of times.
func (service *service) ConfirmPayment(ctx context.Context, paymentRef string) (model.Purchase, error) {
	purchase, err := service.findByRef(ctx, paymentRef)
	if err != nil {
		return model.Purchase{}, err
	}
	return service.complete(ctx, purchase)
}

// complete moves the purchase to completed. The token is minted before the
// conditional write; a token minted by the losing side of a race is dropped.
func (service *service) complete(ctx context.Context, purchase model.Purchase) (model.Purchase, error) {
	for attempt := 0; ; attempt++ {
		switch purchase.Data.Status {
		case model.PurchaseStatusCompleted:
			return purchase, nil
		case model.PurchaseStatusRefunded:
			return purchase, ErrPurchaseRefunded
		}
		if attempt >= service.cfg.TransitionAttempts {
			return model.Purchase{}, ErrContention
		}

		now := service.now()
		token, expiry, err := service.issuer.Mint(now)
		if err != nil {
			return model.Purchase{}, err
		}
		completed, err := service.store.Transition(ctx, purchase.ID,
			purchase.Data.Status, model.PurchaseStatusCompleted,
			model.TransitionFields{DownloadToken: token, TokenExpiry: expiry, UpdatedAt: now})
		if err == nil {
			service.zaplog.Info("purchase completed",
				zap.String("purchase_id", completed.ID),
				zap.String("payment_ref", completed.Data.PaymentRef),
				zap.Time("token_expiry", completed.Data.TokenExpiry))
			service.recordSale(ctx, completed, service.sales.Increment)
			return completed, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Purchase{}, err
		}

		service.zaplog.Debug("completion race lost, rereading purchase",
			zap.String("purchase_id", purchase.ID))
		if purchase, err = service.store.FindByID(ctx, purchase.ID); err != nil {
			return model.Purchase{}, err
		}
	}
}

// Refund moves the purchase to refunded and revokes its download token.
func (service *service) Refund(ctx context.Context, paymentRef string) (model.Purchase, error) {
	purchase, err := service.findByRef(ctx, paymentRef)
	if err != nil {
		return model.Purchase{}, err
	}

	for attempt := 0; ; attempt++ {
		if purchase.Data.Status == model.PurchaseStatusRefunded {
			return purchase, nil
		}
		if attempt >= service.cfg.TransitionAttempts {
			return model.Purchase{}, ErrContention
		}

		from := purchase.Data.Status
		refunded, err := service.store.Transition(ctx, purchase.ID,
			from, model.PurchaseStatusRefunded,
			model.TransitionFields{UpdatedAt: service.now()})
		if err == nil {
			service.zaplog.Info("purchase refunded",
				zap.String("purchase_id", refunded.ID),
				zap.String("payment_ref", refunded.Data.PaymentRef),
				zap.String("previous_status", string(from)))
			if from == model.PurchaseStatusCompleted {
				service.recordSale(ctx, refunded, service.sales.Decrement)
			}
			return refunded, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Purchase{}, err
		}
		if purchase, err = service.store.FindByID(ctx, purchase.ID); err != nil {
			return model.Purchase{}, err
		}
	}
}

// recordSale is called only by the side that won the transition. A failed
// counter update does not undo the purchase; `digimartctl recount` repairs it.
func (service *service) recordSale(ctx context.Context, purchase model.Purchase, apply func(context.Context, string) error) {
	if err := apply(ctx, purchase.Data.Listing); err != nil {
		service.zaplog.Error("sales counter update failed",
			zap.String("purchase_id", purchase.ID),
			zap.String("listing_id", purchase.Data.Listing),
			zap.String("status", string(purchase.Data.Status)),
			zap.Error(err))
	}
}

func (service *service) GetPurchases(ctx context.Context, buyer string) ([]model.Purchase, error) {
	if buyer == "" {
		return nil, ErrInsufficientData
	}

	return service.store.FindByBuyer(ctx, buyer)
}

// Download validates the token and resolves the asset to stream.
func (service *service) Download(ctx context.Context, buyer string, token string) (model.Purchase, model.Listing, error) {
	if buyer == "" {
		return model.Purchase{}, model.Listing{}, ErrInsufficientData
	}

	purchase, err := service.issuer.Validate(ctx, token, buyer)
	if err != nil {
		return model.Purchase{}, model.Listing{}, err
	}
	listing, err := service.store.GetListing(ctx, purchase.Data.Listing)
	if err != nil {
		return model.Purchase{}, model.Listing{}, fmt.Errorf("listing of purchase %s: %w", purchase.ID, err)
	}
	return purchase, listing, nil
}

func (service *service) findByRef(ctx context.Context, paymentRef string) (model.Purchase, error) {
	if !paymentref.Valid(paymentRef) {
		return model.Purchase{}, ErrNotFound
	}
	purchase, err := service.store.FindByPaymentRef(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Purchase{}, ErrNotFound
		}
		return model.Purchase{}, err
	}
	return purchase, nil
}
