// Package paymentref mints and checks external payment references.
//
// Locally minted references look like CM-<millis><check>-<suffix>, where the
// numeric part carries a Luhn check digit so that a mistyped reference is
// rejected before it reaches the store. References minted by a payment
// provider are accepted as long as they are well formed.
package paymentref

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/theplant/luhn"
)

const (
	LocalPrefix = "CM-"
	MaxLength   = 128

	suffixLength = 6
)

// New mints a reference for a purchase intent that arrived without one.
func New(now time.Time) string {
	millis := int(now.UnixMilli())
	number := millis*10 + luhn.CalculateLuhn(millis)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
	return LocalPrefix + strconv.Itoa(number) + "-" + suffix
}

// Valid reports whether ref is well formed. Locally minted references must
// also pass the Luhn check.
func Valid(ref string) bool {
	if ref == "" || len(ref) > MaxLength {
		return false
	}
	for _, r := range ref {
		if !allowed(r) {
			return false
		}
	}
	if !strings.HasPrefix(ref, LocalPrefix) {
		return true
	}

	parts := strings.Split(strings.TrimPrefix(ref, LocalPrefix), "-")
	if len(parts) != 2 || len(parts[1]) != suffixLength {
		return false
	}
	number, err := strconv.Atoi(parts[0])
	if err != nil || number <= 0 {
		return false
	}
	return luhn.Valid(number)
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	}
	return false
}
