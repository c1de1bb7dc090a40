// Package export produces execution reports for managers as PDF or CSV.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Row is one proposal with its execution progress as it appears in the
// report.
type Row struct {
	ProposalID       string
	Title            string
	Category         string
	Locality         string
	BudgetCents      int64
	Status           string
	PercentPhysical  float64
	PercentFinancial float64
	State            string
	CreatorName      string
	ApprovedAt       *time.Time
	UpdatedAt        *time.Time
}

// Report is the full data set handed to the renderers.
type Report struct {
	Title       string
	GeneratedAt time.Time
	GeneratedBy string
	Filters     string
	Rows        []Row
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates the requested export format is unknown.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
