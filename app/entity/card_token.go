package entity

import "time"

// CardToken is a vault-safe reference to card data. It never carries the
// PAN or CVC. Deactivation is terminal.
type CardToken struct {
	ID         string
	CustomerID string

	LastFour string
	Brand    string
	ExpMonth int
	ExpYear  int

	Provider        string
	ProviderTokenID string

	IsActive          bool
	DeactivatedReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the underlying card is past its expiry at the
// given instant.
func (t *CardToken) Expired(now time.Time) bool {
	if t.ExpYear < now.Year() {
		return true
	}
	if t.ExpYear == now.Year() && t.ExpMonth < int(now.Month()) {
		return true
	}
	return false
}
