package app

import (
	"context"
	"embed"
	"html/template"
	"io"

	"signalcal/internal/words"
)

//go:embed templates/print.html.tmpl
var templateFS embed.FS

var printTemplate = template.Must(template.ParseFS(templateFS, "templates/print.html.tmpl"))

// PDFPrinter turns a rendered print view into a PDF document.
type PDFPrinter interface {
	PrintPDF(ctx context.Context, html []byte) ([]byte, error)
}

type printRow struct {
	Week  int
	Word  string
	Dates string
}

type printPage struct {
	Code string
	Rows []printRow
}

// RenderPrint writes the full-schedule print view with the family code
// in the header.
func RenderPrint(w io.Writer, s Session) error {
	page := printPage{Code: s.Code().String()}
	for _, e := range s.schedule {
		page.Rows = append(page.Rows, printRow{
			Week:  e.Week,
			Word:  words.Display(e.Word),
			Dates: formatRange(e.StartDate, e.EndDate()),
		})
	}
	return printTemplate.Execute(w, page)
}
