package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// exportCSV renders the report as UTF-8 CSV with a header row.
func exportCSV(report Report) (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"proposal_id", "title", "category", "locality", "budget_eur", "status",
		"percent_physical", "percent_financial", "execution_state", "creator", "approved_at", "updated_at",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range report.Rows {
		approvedAt := ""
		if row.ApprovedAt != nil {
			approvedAt = row.ApprovedAt.Format("2006-01-02")
		}
		updatedAt := ""
		if row.UpdatedAt != nil {
			updatedAt = row.UpdatedAt.Format("2006-01-02 15:04")
		}
		record := []string{
			row.ProposalID,
			row.Title,
			row.Category,
			row.Locality,
			strconv.FormatFloat(float64(row.BudgetCents)/100, 'f', 2, 64),
			row.Status,
			strconv.FormatFloat(row.PercentPhysical, 'f', 1, 64),
			strconv.FormatFloat(row.PercentFinancial, 'f', 1, 64),
			row.State,
			row.CreatorName,
			approvedAt,
			updatedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(report.Title) + ".csv",
		MimeType: "text/csv; charset=utf-8",
	}, nil
}
