package api

import (
	"net/http"

	"github.com/dukerupert/skal/internal/handler"
	"github.com/dukerupert/skal/internal/service"
)

// EntitlementHandler serves the entitlement document.
type EntitlementHandler struct {
	entitlements service.EntitlementService
}

// NewEntitlementHandler creates the entitlement handler.
func NewEntitlementHandler(entitlements service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

// HandleGetEntitlement returns the account's tier, limit, current count,
// and advisory may-create flag.
//
//	GET /api/entitlement
func (h *EntitlementHandler) HandleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	entitlement, err := h.entitlements.Entitlement(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, entitlement)
}
