package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("02/01/2006 15:04")
	},
	"formatBudget": func(cents int64) string {
		return fmt.Sprintf("%.2f €", float64(cents)/100)
	},
	"formatPercent": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
}).Parse(reportHTML))

// RenderReportHTML renders the execution report as a standalone HTML page
// suitable for PDF conversion.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("render report template: %w", err)
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html lang="pt">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #222; margin: 0; padding: 24px; }
    h1 { font-size: 20px; border-bottom: 2px solid #1a7f4b; padding-bottom: 8px; }
    .meta { color: #666; font-size: 11px; margin-bottom: 16px; }
    table { width: 100%; border-collapse: collapse; font-size: 11px; }
    th { background: #1a7f4b; color: white; text-align: left; padding: 6px 8px; }
    td { border-bottom: 1px solid #ddd; padding: 6px 8px; vertical-align: top; }
    tr:nth-child(even) td { background: #f6f8f7; }
    .num { text-align: right; white-space: nowrap; }
    .state { text-transform: uppercase; font-size: 10px; letter-spacing: 0.5px; }
</style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="meta">
        Gerado em {{formatDate .GeneratedAt}} por {{.GeneratedBy}}{{if .Filters}} · Filtros: {{.Filters}}{{end}}
        · {{len .Rows}} propostas
    </div>
    <table>
        <thead>
            <tr>
                <th>Proposta</th>
                <th>Categoria</th>
                <th>Localidade</th>
                <th class="num">Orçamento</th>
                <th class="num">Exec. física</th>
                <th class="num">Exec. financeira</th>
                <th>Estado</th>
                <th>Proponente</th>
            </tr>
        </thead>
        <tbody>
            {{range .Rows}}
            <tr>
                <td>{{.Title}}</td>
                <td>{{.Category}}</td>
                <td>{{.Locality}}</td>
                <td class="num">{{formatBudget .BudgetCents}}</td>
                <td class="num">{{formatPercent .PercentPhysical}}</td>
                <td class="num">{{formatPercent .PercentFinancial}}</td>
                <td class="state">{{.State}}</td>
                <td>{{.CreatorName}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
</body>
</html>`
