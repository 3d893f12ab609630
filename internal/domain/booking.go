package domain

import (
	"time"

	"github.com/google/uuid"
)

// Booking is a group booking: the resource gated by the entitlement engine.
// Guest registration and event details live elsewhere; the engine only needs
// the identity and count.
type Booking struct {
	ID        uuid.UUID
	AccountID uuid.UUID

	// Name is the staff-facing label, e.g. "Nilsson anniversary dinner".
	Name string

	PartySize int32
	StartsAt  time.Time
	CreatedAt time.Time
}
