// Package issuer mints and validates download tokens.
//
// A token is a random version-4 UUID (122 bits from crypto/rand). It carries
// no structure and is bound to a purchase only through the store, so clearing
// the purchase's token fields revokes it.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/digimart/internal/issuer/config"
	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/store"
)

type Issuer interface {
	Mint(now time.Time) (token string, expiry time.Time, err error)
	Validate(ctx context.Context, token string, buyer string) (model.Purchase, error)
	TTL() time.Duration
}

var (
	ErrNotFound  = errors.New("download token not found")
	ErrForbidden = errors.New("download token belongs to another buyer")
	ErrExpired   = errors.New("download token expired")
)

const defaultTokenTTL = 30 * 24 * time.Hour

// Store is the part of the entitlement store the issuer reads.
type Store interface {
	FindByToken(ctx context.Context, token string) (model.Purchase, error)
}

type issuer struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewIssuer(cfg config.Config, store Store) Issuer {
	return NewIssuerWithClock(cfg, store, time.Now)
}

func NewIssuerWithClock(cfg config.Config, store Store, now func() time.Time) Issuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &issuer{
		store: store,
		ttl:   ttl,
		now:   now,
	}
}

func (issuer *issuer) TTL() time.Duration {
	return issuer.ttl
}

func (issuer *issuer) Mint(now time.Time) (string, time.Time, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("mint download token: %w", err)
	}
	return id.String(), now.UTC().Add(issuer.ttl), nil
}

// Validate проверяет токен: владелец, затем срок действия.
func (issuer *issuer) Validate(ctx context.Context, token string, buyer string) (model.Purchase, error) {
	if token == "" {
		return model.Purchase{}, ErrNotFound
	}

	purchase, err := issuer.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Purchase{}, ErrNotFound
		}
		return model.Purchase{}, err
	}
	if purchase.Data.Status != model.PurchaseStatusCompleted {
		return model.Purchase{}, ErrNotFound
	}
	if purchase.Data.Buyer != buyer {
		return model.Purchase{}, ErrForbidden
	}
	if !issuer.now().Before(purchase.Data.TokenExpiry) {
		return model.Purchase{}, ErrExpired
	}
	return purchase, nil
}
