package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Покупки

type PurchaseStatus string

const (
	PurchaseStatusPending            PurchaseStatus = "pending"
	PurchaseStatusVerificationNeeded PurchaseStatus = "verification_needed"
	PurchaseStatusCompleted          PurchaseStatus = "completed"
	PurchaseStatusRefunded           PurchaseStatus = "refunded"
)

// Purchase is a ledger entry: one buyer's attempt to acquire one listing.
type Purchase struct {
	ID   string
	Data PurchaseData
}

type PurchaseData struct {
	Buyer         string
	Listing       string
	Amount        decimal.Decimal
	PaymentRef    string
	ProofRef      string
	Status        PurchaseStatus
	DownloadToken string
	TokenExpiry   time.Time // zero when DownloadToken is empty
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether no further reconciliation can change the purchase.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusRefunded
}

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusVerificationNeeded,
		PurchaseStatusCompleted, PurchaseStatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the purchase lifecycle.
func CanTransition(from, to PurchaseStatus) bool {
	switch from {
	case PurchaseStatusPending:
		return to == PurchaseStatusVerificationNeeded ||
			to == PurchaseStatusCompleted ||
			to == PurchaseStatusRefunded
	case PurchaseStatusVerificationNeeded:
		return to == PurchaseStatusCompleted || to == PurchaseStatusRefunded
	case PurchaseStatusCompleted:
		return to == PurchaseStatusRefunded
	}
	return false
}

// TransitionFields carries the columns written together with a status change.
type TransitionFields struct {
	DownloadToken string
	TokenExpiry   time.Time
	ProofRef      string
	UpdatedAt     time.Time
}

// PurchaseRequest is a buyer's purchase intent.
type PurchaseRequest struct {
	ListingID  string
	Amount     *decimal.Decimal // optional, must match the listing price
	PaymentRef string           // optional, minted locally when empty
}

// Каталог

type Listing struct {
	ID   string
	Data ListingData
}

type ListingData struct {
	Seller      string
	Title       string
	Price       decimal.Decimal
	FileLocator string
	Sales       int64
	CreatedAt   time.Time
}
