package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"studiobron/internal/availability"
	"studiobron/internal/booking"
	"studiobron/internal/db"
	"studiobron/internal/ledger"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
	"studiobron/internal/schedule"
)

const dateLayout = "2006-01-02"

// Cached schedules are dropped this many days ahead after a weekly
// template write.
const scheduleInvalidationHorizonDays = 62

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListActiveRooms(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		out = append(out, map[string]any{
			"id":           room.ID,
			"name":         room.Name,
			"hour_start":   room.HourStart.String(),
			"hour_end":     room.HourEnd.String(),
			"scenario_ids": room.ScenarioIDs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (s *HTTPServer) handleListCancellationReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := s.store.ListCancellationReasons(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(reasons))
	for _, reason := range reasons {
		out = append(out, map[string]any{"id": reason.ID, "name": reason.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reasons": out})
}

// handleListPaymentTypes lists the manually selectable payment types.
// The reserved tariff-units type is excluded; those payments go through
// the units endpoint.
func (s *HTTPServer) handleListPaymentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.ListManualPaymentTypes(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(types))
	for _, pt := range types {
		out = append(out, map[string]any{"id": pt.ID, "name": pt.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_types": out})
}

// IntervalBody is one HH:MM window in a schedule write.
type IntervalBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OverrideRequest is the body for the schedule override endpoint.
type OverrideRequest struct {
	Date      string         `json:"date"`
	IsDayOff  bool           `json:"is_day_off"`
	Note      string         `json:"note,omitempty"`
	Intervals []IntervalBody `json:"intervals,omitempty"`
}

func (s *HTTPServer) handleSaveOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req OverrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	intervals, err := parseIntervals(req.Intervals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.SpecialistByID(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	o := &model.ScheduleOverride{
		SpecialistID: id,
		Date:         date,
		IsDayOff:     req.IsDayOff,
		Note:         req.Note,
		Intervals:    intervals,
	}
	err = s.store.WithTx(r.Context(), func(tx *db.Store) error {
		return tx.SaveOverride(r.Context(), o)
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(r.Context(), id, date, 1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": o.ID})
}

// WeeklyIntervalRequest is the body for the weekly template endpoint.
type WeeklyIntervalRequest struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (s *HTTPServer) handleAddWeeklyInterval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req WeeklyIntervalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		writeError(w, http.StatusBadRequest, "weekday must be 0 (Monday) to 6 (Sunday)")
		return
	}
	start, err := model.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
		return
	}
	end, err := model.ParseClock(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected HH:MM")
		return
	}
	if start >= end {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	if _, err := s.store.SpecialistByID(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	iv := &model.WeeklyInterval{SpecialistID: id, Weekday: req.Weekday, Start: start, End: end}
	err = s.store.WithTx(r.Context(), func(tx *db.Store) error {
		return tx.AddWeeklyInterval(r.Context(), iv)
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(r.Context(), id, time.Now(), scheduleInvalidationHorizonDays)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": iv.ID})
}

func parseIntervals(bodies []IntervalBody) ([]model.Interval, error) {
	intervals := make([]model.Interval, 0, len(bodies))
	for _, b := range bodies {
		start, err := model.ParseClock(b.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid interval start %q; expected HH:MM", b.Start)
		}
		end, err := model.ParseClock(b.End)
		if err != nil {
			return nil, fmt.Errorf("invalid interval end %q; expected HH:MM", b.End)
		}
		if start >= end {
			return nil, fmt.Errorf("interval %s-%s is empty", b.Start, b.End)
		}
		intervals = append(intervals, model.Interval{Start: start, End: end})
	}
	return intervals, nil
}

// handleResolveSchedule returns a specialist's effective schedule.
// GET /api/schedule?specialist_id=&date=YYYY-MM-DD
func (s *HTTPServer) handleResolveSchedule(w http.ResponseWriter, r *http.Request) {
	var specialistID int64
	if _, err := parseQueryID(r, "specialist_id", &specialistID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	ds, err := s.resolver.Resolve(r.Context(), specialistID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{"kind": ds.Kind.String()}
	if ds.Kind == schedule.Working {
		intervals := make([]map[string]string, 0, len(ds.Intervals))
		for _, iv := range ds.Intervals {
			intervals = append(intervals, map[string]string{
				"start": iv.Start.String(),
				"end":   iv.End.String(),
			})
		}
		resp["intervals"] = intervals
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckRequest is the body for POST /api/availability/check.
type CheckRequest struct {
	RoomID       int64     `json:"room_id"`
	SpecialistID *int64    `json:"specialist_id,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ExcludeID    int64     `json:"exclude_id,omitempty"`
}

func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.checker.Check(r.Context(), availability.Request{
		RoomID:       req.RoomID,
		SpecialistID: req.SpecialistID,
		Start:        req.Start,
		End:          req.End,
		ExcludeID:    req.ExcludeID,
	})
	if err != nil {
		if ve, ok := model.AsValidation(err); ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"available": false,
				"field":     ve.Field,
				"reason":    ve.Message,
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true})
}

// TariffsRequest is the body for POST /api/tariffs/available.
type TariffsRequest struct {
	ScenarioID  int64  `json:"scenario_id"`
	RoomID      int64  `json:"room_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	PeopleCount int    `json:"people_count,omitempty"`
}

func (s *HTTPServer) handleAvailableTariffs(w http.ResponseWriter, r *http.Request) {
	var req TariffsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected HH:MM")
		return
	}
	q := pricing.Query{
		ScenarioID:  req.ScenarioID,
		RoomID:      req.RoomID,
		Date:        date,
		StartTime:   start,
		PeopleCount: req.PeopleCount,
	}
	if req.EndTime != "" {
		end, err := model.ParseClock(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time; expected HH:MM")
			return
		}
		q.EndTime = &end
	}

	tariffs, err := s.pricer.AvailableTariffs(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(tariffs))
	for _, dt := range tariffs {
		intervals := make([]map[string]string, 0, len(dt.Intervals))
		for _, iv := range dt.Intervals {
			intervals = append(intervals, map[string]string{
				"start": iv.Start.String(),
				"end":   iv.End.String(),
			})
		}
		out = append(out, map[string]any{
			"id":                    dt.Tariff.ID,
			"name":                  dt.Tariff.Name,
			"max_people":            dt.Tariff.MaxPeople,
			"base_duration_minutes": dt.Tariff.BaseDurationMinutes,
			"base_cost":             model.MoneyString(dt.Tariff.BaseCost),
			"intervals":             intervals,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tariffs": out})
}

// ReservationBlock is one reservation in a create request.
type ReservationBlock struct {
	RoomID        int64     `json:"room_id"`
	SpecialistID  *int64    `json:"specialist_id,omitempty"`
	ClientID      *int64    `json:"client_id,omitempty"`
	ClientGroupID *int64    `json:"client_group_id,omitempty"`
	ScenarioID    int64     `json:"scenario_id"`
	TariffID      *int64    `json:"tariff_id,omitempty"`
	PeopleCount   int       `json:"people_count,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	ServiceIDs    []int64   `json:"service_ids,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	TotalCost     *string   `json:"total_cost,omitempty"`
}

// CreateReservationsRequest is a single block or a batch.
type CreateReservationsRequest struct {
	ReservationBlock
	Blocks []ReservationBlock `json:"blocks,omitempty"`
}

func (s *HTTPServer) handleCreateReservations(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Blocks) > 0 {
		params := make([]booking.Params, 0, len(req.Blocks))
		for _, b := range req.Blocks {
			p, err := blockParams(b)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			params = append(params, p)
		}
		created, err := s.bookings.CreateBatch(r.Context(), params)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		ids := make([]int64, 0, len(created))
		for _, res := range created {
			ids = append(ids, res.ID)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
		return
	}

	p, err := blockParams(req.ReservationBlock)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.bookings.Create(r.Context(), p)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         created.ID,
		"total_cost": model.MoneyString(created.TotalCost),
	})
}

func (s *HTTPServer) handleReservationDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := s.bookings.Detail(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":               d.Reservation.ID,
		"room_id":          d.Reservation.RoomID,
		"status":           string(d.Reservation.Status),
		"start":            d.Reservation.StartTime,
		"end":              d.Reservation.EndTime,
		"total_cost":       model.MoneyString(d.Reservation.TotalCost),
		"rental_cost":      model.MoneyString(d.RentalCost),
		"services_cost":    model.MoneyString(d.ServicesCost),
		"paid_total":       model.MoneyString(d.PaidTotal),
		"remaining":        model.MoneyString(d.Remaining),
		"remaining_rental": model.MoneyString(d.RemainingRental),
		"max_tariff_units": d.MaxTariffUnits,
	})
}

func (s *HTTPServer) handleEditReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req ReservationBlock
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := blockParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.bookings.Edit(r.Context(), id, p)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         updated.ID,
		"total_cost": model.MoneyString(updated.TotalCost),
	})
}

func (s *HTTPServer) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bookings.Confirm(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleRejectReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bookings.Reject(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CancelReservationRequest is the body for the cancel endpoint.
type CancelReservationRequest struct {
	ReasonID int64  `json:"reason_id"`
	Comment  string `json:"comment,omitempty"`
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req CancelReservationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.bookings.Cancel(r.Context(), id, req.ReasonID, req.Comment); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// PaymentEntry is one payment in a record request.
type PaymentEntry struct {
	PaymentTypeID  int64  `json:"payment_type_id"`
	Amount         string `json:"amount"`
	Comment        string `json:"comment,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RecordPaymentsRequest is the body for the payments endpoint.
type RecordPaymentsRequest struct {
	Payments []PaymentEntry `json:"payments"`
}

func (s *HTTPServer) handleRecordPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req RecordPaymentsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entries := make([]ledger.Entry, 0, len(req.Payments))
	for _, e := range req.Payments {
		amount, err := model.ParseMoney(e.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entries = append(entries, ledger.Entry{
			PaymentTypeID:  e.PaymentTypeID,
			Amount:         amount,
			Comment:        e.Comment,
			IdempotencyKey: e.IdempotencyKey,
		})
	}

	recorded, err := s.payments.Record(r.Context(), id, entries)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	ids := make([]int64, 0, len(recorded))
	for _, p := range recorded {
		ids = append(ids, p.ID)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

// UnitsPaymentRequest is the body for the unit payment endpoint.
type UnitsPaymentRequest struct {
	Units int `json:"units"`
}

func (s *HTTPServer) handlePayWithUnits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req UnitsPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := s.payments.PayWithUnits(r.Context(), id, req.Units)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     p.ID,
		"amount": model.MoneyString(p.Amount),
	})
}

// EditPaymentRequest is the body for PUT /api/payments/{id}.
type EditPaymentRequest struct {
	PaymentTypeID int64  `json:"payment_type_id"`
	Amount        string `json:"amount"`
	Comment       string `json:"comment,omitempty"`
}

func (s *HTTPServer) handleEditPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req EditPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	amount, err := model.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.payments.Edit(r.Context(), id, req.PaymentTypeID, amount, req.Comment); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.payments.Cancel(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleMonthlyReport streams the xlsx export for a month.
// GET /api/reports/monthly?month=YYYY-MM
func (s *HTTPServer) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="reservations-`+month.Format("2006-01")+`.xlsx"`)
	if err := s.exporter.WriteMonth(r.Context(), month, w); err != nil && s.logger != nil {
		s.logger.Error().Err(err).Msg("report export failed")
	}
}

func blockParams(b ReservationBlock) (booking.Params, error) {
	p := booking.Params{
		RoomID:        b.RoomID,
		SpecialistID:  b.SpecialistID,
		ClientID:      b.ClientID,
		ClientGroupID: b.ClientGroupID,
		ScenarioID:    b.ScenarioID,
		TariffID:      b.TariffID,
		PeopleCount:   b.PeopleCount,
		Start:         b.Start,
		End:           b.End,
		ServiceIDs:    b.ServiceIDs,
		Comment:       b.Comment,
	}
	if b.TotalCost != nil {
		cost, err := model.ParseMoney(*b.TotalCost)
		if err != nil {
			return booking.Params{}, err
		}
		p.TotalCost = &cost
	}
	return p, nil
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func parseQueryID(r *http.Request, name string, out *int64) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, fmt.Errorf("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return false, fmt.Errorf("invalid %s", name)
	}
	*out = id
	return true, nil
}
