// Package api exposes the booking core as a thin JSON layer.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"studiobron/internal/availability"
	"studiobron/internal/booking"
	"studiobron/internal/db"
	"studiobron/internal/ledger"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
	"studiobron/internal/report"
	"studiobron/internal/schedule"
)

// ScheduleInvalidator drops cached day schedules after a schedule
// write. Nil when no cache is configured.
type ScheduleInvalidator interface {
	Invalidate(ctx context.Context, specialistID int64, from time.Time, horizonDays int)
}

// HTTPServer wires the core services to HTTP handlers.
type HTTPServer struct {
	store       *db.Store
	bookings    *booking.Service
	payments    *ledger.Service
	checker     *availability.Checker
	resolver    *schedule.Resolver
	pricer      *pricing.Engine
	exporter    *report.Exporter
	invalidator ScheduleInvalidator
	limiter     *rate.Limiter
	logger      *zerolog.Logger
}

func NewHTTPServer(
	store *db.Store,
	bookings *booking.Service,
	payments *ledger.Service,
	checker *availability.Checker,
	resolver *schedule.Resolver,
	pricer *pricing.Engine,
	exporter *report.Exporter,
	invalidator ScheduleInvalidator,
	limiter *rate.Limiter,
	logger *zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		store:       store,
		bookings:    bookings,
		payments:    payments,
		checker:     checker,
		resolver:    resolver,
		pricer:      pricer,
		exporter:    exporter,
		invalidator: invalidator,
		limiter:     limiter,
		logger:      logger,
	}
}

// Handler builds the route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/cancellation-reasons", s.handleListCancellationReasons)
	mux.HandleFunc("GET /api/payment-types", s.handleListPaymentTypes)

	mux.HandleFunc("GET /api/schedule", s.handleResolveSchedule)
	mux.HandleFunc("PUT /api/specialists/{id}/schedule/override", s.handleSaveOverride)
	mux.HandleFunc("POST /api/specialists/{id}/schedule/weekly", s.handleAddWeeklyInterval)
	mux.HandleFunc("POST /api/availability/check", s.handleCheckAvailability)
	mux.HandleFunc("POST /api/tariffs/available", s.handleAvailableTariffs)

	mux.HandleFunc("POST /api/reservations", s.handleCreateReservations)
	mux.HandleFunc("GET /api/reservations/{id}", s.handleReservationDetail)
	mux.HandleFunc("PUT /api/reservations/{id}", s.handleEditReservation)
	mux.HandleFunc("POST /api/reservations/{id}/confirm", s.handleConfirmReservation)
	mux.HandleFunc("POST /api/reservations/{id}/reject", s.handleRejectReservation)
	mux.HandleFunc("POST /api/reservations/{id}/cancel", s.handleCancelReservation)

	mux.HandleFunc("POST /api/reservations/{id}/payments", s.handleRecordPayments)
	mux.HandleFunc("POST /api/reservations/{id}/payments/units", s.handlePayWithUnits)
	mux.HandleFunc("PUT /api/payments/{id}", s.handleEditPayment)
	mux.HandleFunc("POST /api/payments/{id}/cancel", s.handleCancelPayment)

	mux.HandleFunc("GET /api/reports/monthly", s.handleMonthlyReport)

	return s.middleware(mux)
}

// middleware applies rate limiting and request-id logging to every
// route.
func (s *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		if s.logger != nil {
			s.logger.Debug().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("request")
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy to HTTP statuses. Validation
// failures carry field and, for batches, the failing block index.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	if ve, ok := model.AsValidation(err); ok {
		body := map[string]any{
			"error": ve.Message,
			"field": ve.Field,
		}
		if ve.BlockIndex != nil {
			body["block_index"] = *ve.BlockIndex
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}
	if nf, ok := model.AsNotFound(err); ok {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	if s.logger != nil {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(r *http.Request) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(r.PathValue("id"), "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}
