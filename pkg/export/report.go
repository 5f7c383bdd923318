package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/gearline/crm/pkg/domain"
)

// JobReport renders a bulk job's per-recipient outcomes as an xlsx sheet.
func JobReport(ctx context.Context, store domain.BulkJobStore, jobID uint) (*bytes.Buffer, error) {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sends, err := store.ListSends(ctx, jobID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Outcomes"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"#", "Mobile", "Status", "Message ID", "Attempts", "Error", "Sent At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write report header: %w", err)
		}
	}

	for i, s := range sends {
		row := i + 2
		values := []interface{}{
			s.RecipientIndex + 1,
			s.Mobile,
			s.Status,
			s.WaMessageID,
			s.Attempts,
			s.Error,
			s.SentAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write report row: %w", err)
			}
		}
	}

	summary := fmt.Sprintf("Job #%d (%s): %d sent, %d failed of %d",
		job.ID, job.Status, job.SentCount, job.FailedCount, job.TotalCount)
	cell, _ := excelize.CoordinatesToCellName(1, len(sends)+3)
	if err := f.SetCellValue(sheet, cell, summary); err != nil {
		return nil, fmt.Errorf("failed to write report summary: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf, nil
}
