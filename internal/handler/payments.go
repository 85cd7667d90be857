package handler

import (
	"net/http"
)

type PaymentWebhookJSONRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// PostConfirm принимает подтверждение оплаты от провайдера. Повторная
// доставка возвращает ту же покупку с тем же токеном.
func (h *handler) PostConfirm(w http.ResponseWriter, r *http.Request) {
	var request PaymentWebhookJSONRequest
	if err := decodeWebhookJSON(w, r, &request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	purchase, err := h.service.ConfirmPayment(r.Context(), request.PaymentRef)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseJSON(purchase))
}

func (h *handler) PostRefund(w http.ResponseWriter, r *http.Request) {
	var request PaymentWebhookJSONRequest
	if err := decodeWebhookJSON(w, r, &request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	purchase, err := h.service.Refund(r.Context(), request.PaymentRef)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseJSON(purchase))
}
