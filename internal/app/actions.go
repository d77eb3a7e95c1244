package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	appLog "signalcal/internal/log"
	"signalcal/internal/words"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoPrinter     = errors.New("PDF printing is not configured")
	ErrEmptySession  = errors.New("session has no schedule")
)

// Action names accepted by Dispatch.
const (
	ActionCode     = "code"
	ActionPreview  = "preview"
	ActionTable    = "table"
	ActionDownload = "download"
	ActionPrint    = "print"
	ActionPrintPDF = "print-pdf"
	ActionCurrent  = "current"
)

// Handler renders one action for a session.
type Handler func(ctx context.Context, s Session, w io.Writer) error

// Dispatcher maps action names to handlers.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher registers the standard actions against a.
func NewDispatcher(a *App) *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{
		ActionCode:     writeCode,
		ActionPreview:  func(_ context.Context, s Session, w io.Writer) error { return writeTable(w, Preview(s, DefaultPreviewLimit)) },
		ActionTable:    func(_ context.Context, s Session, w io.Writer) error { return writeTable(w, Preview(s, 0)) },
		ActionDownload: a.writeCalendar,
		ActionPrint:    func(_ context.Context, s Session, w io.Writer) error { return RenderPrint(w, s) },
		ActionPrintPDF: a.writePDF,
		ActionCurrent:  a.writeCurrent,
	}}
}

// Actions lists registered action names in sorted order.
func (d *Dispatcher) Actions() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named action. Output is buffered so that nothing
// reaches w when the action fails.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, s Session, w io.Writer) error {
	h, ok := d.handlers[name]
	if !ok {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownAction, name, strings.Join(d.Actions(), ", "))
	}
	if s.Len() == 0 {
		return ErrEmptySession
	}

	var buf bytes.Buffer
	if err := h(ctx, s, &buf); err != nil {
		appLog.Error("action failed", err, "action", name)
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func writeCode(_ context.Context, s Session, w io.Writer) error {
	_, err := fmt.Fprintln(w, s.Code())
	return err
}

func writeTable(w io.Writer, v PreviewView) error {
	table := tablewriter.NewWriter(w)
	table.Header("Week", "Word", "Dates")
	for _, e := range v.Entries {
		if err := table.Append([]string{
			strconv.Itoa(e.Week),
			words.Display(e.Word),
			formatRange(e.StartDate, e.EndDate()),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	if v.Remaining > 0 {
		_, err := fmt.Fprintf(w, "+ %d more weeks. Download the calendar to see all.\n", v.Remaining)
		return err
	}
	return nil
}

func (a *App) writeCalendar(_ context.Context, s Session, w io.Writer) error {
	doc, err := a.Exporter.Export(s.schedule)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, doc)
	return err
}

func (a *App) writePDF(ctx context.Context, s Session, w io.Writer) error {
	if a.Printer == nil {
		return ErrNoPrinter
	}
	var html bytes.Buffer
	if err := RenderPrint(&html, s); err != nil {
		return err
	}
	pdf, err := a.Printer.PrintPDF(ctx, html.Bytes())
	if err != nil {
		return err
	}
	_, err = w.Write(pdf)
	return err
}

func (a *App) writeCurrent(_ context.Context, s Session, w io.Writer) error {
	v := a.Current(s)
	if !v.Active {
		if _, err := fmt.Fprintf(w, "No signal word for today; the schedule covers %s to %s.\n",
			formatDay(s.schedule[0].StartDate), formatDay(s.schedule[len(s.schedule)-1].EndDate())); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(w, "Week %d (%s): %s\n", v.Entry.Week,
		formatRange(v.Entry.StartDate, v.Entry.EndDate()), words.Display(v.Entry.Word)); err != nil {
		return err
	}
	if !v.NextRotation.IsZero() {
		_, err := fmt.Fprintf(w, "Next rotation: %s\n", v.NextRotation.Format("Mon Jan 2, 2006 15:04 MST"))
		return err
	}
	return nil
}

func formatDay(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

func formatRange(start, end time.Time) string {
	return formatDay(start) + " - " + formatDay(end)
}
