package export

import "fmt"

// Export renders the report in the requested format.
func Export(report Report, format Format) (*Result, error) {
	switch format {
	case FormatPDF:
		html, err := RenderReportHTML(report)
		if err != nil {
			return nil, err
		}
		return exportPDF(html, report.Title)
	case FormatCSV:
		return exportCSV(report)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
