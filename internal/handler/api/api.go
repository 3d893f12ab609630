package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/domain"
)

// AccountIDHeader carries the authenticated account. Authentication itself
// is an upstream concern; by the time a request reaches these handlers the
// header is trusted.
const AccountIDHeader = "X-Account-ID"

// accountID extracts and validates the account header.
func accountID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(AccountIDHeader)
	if raw == "" {
		return uuid.Nil, domain.Unauthorized("api.account", "missing account header")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Unauthorized("api.account", "invalid account header")
	}
	return id, nil
}
