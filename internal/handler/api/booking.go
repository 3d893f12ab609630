package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/handler"
	"github.com/dukerupert/skal/internal/service"
	"github.com/dukerupert/skal/internal/telemetry"
)

// BookingHandler serves booking creation, the entitlement-gated operation.
type BookingHandler struct {
	entitlements service.EntitlementService
}

// NewBookingHandler creates the booking handler.
func NewBookingHandler(entitlements service.EntitlementService) *BookingHandler {
	return &BookingHandler{entitlements: entitlements}
}

type createBookingRequest struct {
	Name      string    `json:"name"`
	PartySize int32     `json:"party_size"`
	StartsAt  time.Time `json:"starts_at"`
}

type bookingResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	PartySize int32     `json:"party_size"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:        b.ID,
		Name:      b.Name,
		PartySize: b.PartySize,
		StartsAt:  b.StartsAt,
		CreatedAt: b.CreatedAt,
	}
}

// HandleCreateBooking creates one booking through the atomic gate.
//
//	POST /api/bookings
func (h *BookingHandler) HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("booking.create", "invalid JSON body"))
		return
	}

	booking, err := h.entitlements.CreateBooking(r.Context(), service.CreateBookingParams{
		AccountID: id,
		Name:      req.Name,
		PartySize: req.PartySize,
		StartsAt:  req.StartsAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrAtLimit) {
			countDenied(domain.DenyAtLimit)
		}
		handler.ErrorResponse(w, r, err)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.BookingsCreated.Inc()
	}
	handler.JSON(w, http.StatusCreated, toBookingResponse(booking))
}

type bulkBookingRequest struct {
	Bookings []createBookingRequest `json:"bookings"`
}

// HandleCreateBookingsBulk creates several bookings at once. Paid-only: the
// free tier's single slot makes bulk creation meaningless, so the gate
// answers subscription_required rather than at_limit.
//
//	POST /api/bookings/bulk
func (h *BookingHandler) HandleCreateBookingsBulk(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	decision, err := h.entitlements.RequirePaid(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if !decision.Allowed {
		countDenied(decision.Reason)
		if decision.Reason == domain.DenyAccountNotFound {
			handler.ErrorResponse(w, r, service.ErrAccountNotFound)
			return
		}
		handler.ErrorResponse(w, r, service.ErrSubscriptionRequired)
		return
	}

	var req bulkBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("booking.bulk", "invalid JSON body"))
		return
	}
	if len(req.Bookings) == 0 {
		handler.ErrorResponse(w, r, domain.Invalid("booking.bulk", "at least one booking is required"))
		return
	}

	created := make([]bookingResponse, 0, len(req.Bookings))
	for _, item := range req.Bookings {
		booking, err := h.entitlements.CreateBooking(r.Context(), service.CreateBookingParams{
			AccountID: id,
			Name:      item.Name,
			PartySize: item.PartySize,
			StartsAt:  item.StartsAt,
		})
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		if telemetry.Business != nil {
			telemetry.Business.BookingsCreated.Inc()
		}
		created = append(created, toBookingResponse(booking))
	}

	handler.JSON(w, http.StatusCreated, map[string]interface{}{"bookings": created})
}

func countDenied(reason domain.DenyReason) {
	if telemetry.Business != nil {
		telemetry.Business.EntitlementDenied.WithLabelValues(string(reason)).Inc()
	}
}
