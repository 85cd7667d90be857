package paymentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// JSON ответ платежного провайдера
type PaymentAnswer struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	ProofRef  string `json:"proof_ref,omitempty"`
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

var (
	ErrUnknownPayment    = fmt.Errorf("payment is unknown to the provider")
	ErrReferenceMismatch = fmt.Errorf("payment provider answered for another reference")
)

type PaymentClient interface {
	GetPayment(ctx context.Context, paymentRef string) (PaymentAnswer, error)
}

type paymentClient struct {
	client *resty.Client
}

func NewPaymentClient(serviceAddr string) PaymentClient {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return paymentClient{client: client}
}

func (client paymentClient) GetPayment(ctx context.Context, paymentRef string) (PaymentAnswer, error) {
	path := "/api/payments/"

	setreq := client.client.R().SetContext(ctx)
	setreq.Method = http.MethodGet
	setreq.URL = path + url.PathEscape(paymentRef)
	setresp, err := setreq.Send()
	if err != nil {
		return PaymentAnswer{}, err
	}

	switch setresp.StatusCode() {
	case http.StatusOK:
		var answer PaymentAnswer
		if err = json.Unmarshal(setresp.Body(), &answer); err != nil {
			return PaymentAnswer{}, err
		}
		// чужой ответ не должен подтвердить нашу покупку
		if answer.Reference != paymentRef {
			return PaymentAnswer{}, fmt.Errorf("%w: asked %q, got %q", ErrReferenceMismatch, paymentRef, answer.Reference)
		}
		return answer, nil
	case http.StatusNotFound:
		return PaymentAnswer{}, ErrUnknownPayment
	default:
		return PaymentAnswer{}, fmt.Errorf("payment provider request status: %d", setresp.StatusCode())
	}
}
