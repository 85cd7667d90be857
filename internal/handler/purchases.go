package handler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/assets"
	"github.com/iurnickita/digimart/internal/auth"
	"github.com/iurnickita/digimart/internal/issuer"
	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/service"
)

type PurchaseJSON struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listing_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentRef    string          `json:"payment_ref"`
	ProofRef      string          `json:"proof_ref,omitempty"`
	Status        string          `json:"status"`
	DownloadToken string          `json:"download_token,omitempty"`
	TokenExpiry   *time.Time      `json:"token_expiry,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func purchaseJSON(purchase model.Purchase) PurchaseJSON {
	p := PurchaseJSON{
		ID:            purchase.ID,
		ListingID:     purchase.Data.Listing,
		Amount:        purchase.Data.Amount,
		PaymentRef:    purchase.Data.PaymentRef,
		ProofRef:      purchase.Data.ProofRef,
		Status:        string(purchase.Data.Status),
		DownloadToken: purchase.Data.DownloadToken,
		CreatedAt:     purchase.Data.CreatedAt,
		UpdatedAt:     purchase.Data.UpdatedAt,
	}
	if !purchase.Data.TokenExpiry.IsZero() {
		expiry := purchase.Data.TokenExpiry
		p.TokenExpiry = &expiry
	}
	return p
}

type PostPurchaseJSONRequest struct {
	ListingID  string           `json:"listing_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	PaymentRef string           `json:"payment_ref,omitempty"`
}

func (h *handler) PostPurchase(w http.ResponseWriter, r *http.Request) {
	var request PostPurchaseJSONRequest
	if err := decodeJSON(w, r, &request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buyer, _ := auth.UserFromContext(r.Context())
	purchase, created, err := h.service.CreatePurchase(r.Context(), buyer, model.PurchaseRequest{
		ListingID:  request.ListingID,
		Amount:     request.Amount,
		PaymentRef: request.PaymentRef,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, purchaseJSON(purchase))
}

func (h *handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	buyer, _ := auth.UserFromContext(r.Context())

	purchases, err := h.service.GetPurchases(r.Context(), buyer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	purchasesJSON := make([]PurchaseJSON, 0, len(purchases))
	for _, purchase := range purchases {
		purchasesJSON = append(purchasesJSON, purchaseJSON(purchase))
	}
	writeJSON(w, http.StatusOK, purchasesJSON)
}

type PostProofJSONRequest struct {
	ProofRef string `json:"proof_ref"`
}

func (h *handler) PostProof(w http.ResponseWriter, r *http.Request) {
	var request PostProofJSONRequest
	if err := decodeJSON(w, r, &request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buyer, _ := auth.UserFromContext(r.Context())
	purchase, err := h.service.SubmitProof(r.Context(), buyer, chi.URLParam(r, "ref"), request.ProofRef)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotSettled) {
			// проверка у провайдера еще не завершена
			writeJSON(w, http.StatusAccepted, purchaseJSON(purchase))
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseJSON(purchase))
}

func (h *handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	buyer, _ := auth.UserFromContext(r.Context())

	retryAfter, allowed, err := h.limiter.AllowDownload(r.Context(), buyer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		http.Error(w, "too many downloads", http.StatusTooManyRequests)
		return
	}

	purchase, listing, err := h.service.Download(r.Context(), buyer, chi.URLParam(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, issuer.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, issuer.ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, issuer.ErrExpired):
			http.Error(w, err.Error(), http.StatusGone)
		default:
			h.writeServiceError(w, r, err)
		}
		return
	}

	asset, err := h.storage.Open(r.Context(), listing.Data.FileLocator)
	if err != nil {
		h.zaplog.Error("asset unavailable",
			zap.String("purchase_id", purchase.ID),
			zap.String("listing_id", listing.ID),
			zap.String("locator", listing.Data.FileLocator),
			zap.Error(err))
		if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrBadLocator) {
			http.Error(w, "file is missing", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer asset.Body.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asset.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, asset.Body); err != nil {
		h.zaplog.Warn("download interrupted",
			zap.String("purchase_id", purchase.ID),
			zap.Error(err))
	}
}
