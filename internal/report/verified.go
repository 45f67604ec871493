// Package report renders submission listings as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	"github.com/xuri/excelize/v2"
)

const (
	VerifiedSheet = "Verified Records"
	timeLayout    = "2006-01-02 15:04:05"
)

var verifiedHeader = []any{
	"Submission ID", "Farmer ID", "Farmer Name", "State", "Submitted (UTC)",
	"Crop", "Health", "Confidence", "Notes", "Verified By", "Verified (UTC)", "Image",
}

// WriteVerified writes an XLSX workbook with one row per Verified submission
// in subs. Records in any other status are skipped.
func WriteVerified(w io.Writer, subs []*types.Submission) error {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName(x.GetSheetName(0), VerifiedSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := x.SetSheetRow(VerifiedSheet, "A1", &verifiedHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(verifiedHeader), 1)
	if err := x.SetCellStyle(VerifiedSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	for _, s := range subs {
		if s.Status != types.SubmissionStatusVerified {
			continue
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{
			s.ID,
			s.FarmerID,
			s.FarmerName,
			s.State,
			s.Timestamp.UTC().Format(timeLayout),
			string(s.DetectedCrop),
			string(s.DetectedHealth),
			s.Confidence,
			s.Notes,
			utils.PtrString(s.VerifiedBy),
			formatTime(utils.PtrTime(s.VerifiedAt)),
			s.ImageReference,
		}
		if err := x.SetSheetRow(VerifiedSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}

	if err := x.SetColWidth(VerifiedSheet, "A", "A", 36); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}

	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
