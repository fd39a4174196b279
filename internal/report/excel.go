// Package report renders reservation exports for ground owners.
package report

import (
	"fmt"
	"io"
	"math/big"
	"regexp"
	"time"

	"groundslot/internal/model"

	"github.com/xuri/excelize/v2"
)

// sheetWriter writes rows sheet by sheet.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	if err := w.writeRow(toRow(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func toRow(values []string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

var reservationColumns = []string{
	"ID", "Date", "Start", "End", "Status", "Origin", "Holder",
	"Transaction", "Expected amount", "Paid amount", "Created at",
}

// WriteReservations renders a workbook with every reservation of the ground
// in the period and a per-status summary.
func WriteReservations(out io.Writer, ground *model.Ground, from, to time.Time, reservations []model.Reservation) error {
	w := newSheetWriter()
	defer func() { _ = w.file.Close() }()

	if err := w.addSheet("Reservations"); err != nil {
		return err
	}
	if err := w.writeHeader(reservationColumns); err != nil {
		return err
	}

	counts := map[model.ReservationStatus]int{}
	revenue := new(big.Rat)
	for _, r := range reservations {
		holder := ""
		if r.HolderID != nil {
			holder = fmt.Sprint(*r.HolderID)
		}
		row := []any{
			r.ID, r.DateString(), r.StartTime.String(), r.EndTime.String(),
			string(r.Status), string(r.Origin), holder,
			r.TransactionUUID, r.ExpectedAmount, r.PaidAmount,
			r.CreatedAt.Format(time.RFC3339),
		}
		if err := w.writeRow(row); err != nil {
			return fmt.Errorf("write reservation %d: %w", r.ID, err)
		}

		counts[r.Status]++
		if r.Status == model.StatusConfirmed && r.PaidAmount != "" {
			if paid, ok := new(big.Rat).SetString(r.PaidAmount); ok {
				revenue.Add(revenue, paid)
			}
		}
	}

	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	summary := [][]any{
		{"Ground", ground.Name},
		{"Period", from.Format(model.DateLayout) + " - " + to.Format(model.DateLayout)},
		{"Confirmed", counts[model.StatusConfirmed]},
		{"Provisional", counts[model.StatusProvisional]},
		{"Cancelled", counts[model.StatusCancelled]},
		{"Paid online", revenue.FloatString(2)},
	}
	for _, row := range summary {
		if err := w.writeRow(row); err != nil {
			return err
		}
	}

	return w.file.Write(out)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds a download name like "Futsal_Arena_2025-06-01_2025-06-30.xlsx".
func Filename(ground *model.Ground, from, to time.Time) string {
	name := unsafeFilename.ReplaceAllString(ground.Name, "_")
	if name == "" || name == "_" {
		name = fmt.Sprintf("ground_%d", ground.ID)
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", name, from.Format(model.DateLayout), to.Format(model.DateLayout))
}
