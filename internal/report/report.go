// Package report exports reservations and the payment ledger for a
// month as an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"studiobron/internal/db"
	"studiobron/internal/model"
)

// Exporter produces monthly workbooks with one sheet of reservations
// and one of payments.
type Exporter struct {
	store  *db.Store
	logger *zerolog.Logger
}

func NewExporter(store *db.Store, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// WriteMonth writes the workbook for the month containing date.
func (e *Exporter) WriteMonth(ctx context.Context, date time.Time, w io.Writer) error {
	from := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	to := from.AddDate(0, 1, 0)

	reservations, err := e.store.ReservationsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	xw := newExcelWriter()
	defer xw.Close()

	if err := e.writeReservations(xw, from, reservations); err != nil {
		return err
	}
	if err := e.writePayments(ctx, xw, reservations); err != nil {
		return err
	}

	if e.logger != nil {
		e.logger.Info().
			Str("month", from.Format("2006-01")).
			Int("reservations", len(reservations)).
			Msg("monthly report written")
	}
	return xw.Save(w)
}

func (e *Exporter) writeReservations(xw *excelWriter, from time.Time, reservations []model.Reservation) error {
	if err := xw.AddSheet("Reservations " + from.Format("2006-01")); err != nil {
		return err
	}
	if err := xw.WriteHeader([]string{
		"ID", "Room", "Specialist", "Client", "Scenario", "Status",
		"Start", "End", "People", "Total cost", "Comment",
	}); err != nil {
		return err
	}
	for i := range reservations {
		r := &reservations[i]
		if err := xw.WriteRow([]interface{}{
			r.ID,
			r.RoomID,
			idOrEmpty(r.SpecialistID),
			idOrEmpty(r.ClientID),
			r.ScenarioID,
			string(r.Status),
			r.StartTime.Format("2006-01-02 15:04"),
			r.EndTime.Format("2006-01-02 15:04"),
			r.PeopleCount,
			model.MoneyString(r.TotalCost),
			r.Comment,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writePayments(ctx context.Context, xw *excelWriter, reservations []model.Reservation) error {
	if err := xw.AddSheet("Payments"); err != nil {
		return err
	}
	if err := xw.WriteHeader([]string{
		"ID", "Reservation", "Type", "Amount", "Cancelled", "Comment", "Created",
	}); err != nil {
		return err
	}
	for i := range reservations {
		payments, err := e.store.PaymentsForReservation(ctx, reservations[i].ID)
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		for _, p := range payments {
			if err := xw.WriteRow([]interface{}{
				p.ID,
				p.ReservationID,
				p.PaymentTypeID,
				model.MoneyString(p.Amount),
				p.IsCancelled,
				p.Comment,
				p.CreatedAt.Format("2006-01-02 15:04"),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func idOrEmpty(p *int64) interface{} {
	if p == nil {
		return ""
	}
	return *p
}
