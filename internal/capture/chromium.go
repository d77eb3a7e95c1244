package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	appLog "signalcal/internal/log"
)

// DefaultTimeout bounds a whole print when PDFOptions.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// PDFOptions controls how the print view is laid out on paper.
type PDFOptions struct {
	// Paper size in inches; zero means US Letter (8.5 x 11).
	PaperWidth  float64
	PaperHeight float64

	Landscape bool

	// Timeout bounds the entire print, including browser start-up.
	Timeout time.Duration

	// ExecPath overrides the Chromium binary chromedp looks for.
	ExecPath string
}

// Printer renders HTML documents to PDF in headless Chromium.
type Printer struct {
	opts PDFOptions
}

func NewPrinter(opts PDFOptions) *Printer {
	if opts.PaperWidth <= 0 {
		opts.PaperWidth = 8.5
	}
	if opts.PaperHeight <= 0 {
		opts.PaperHeight = 11
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Printer{opts: opts}
}

// PrintPDF loads html into a blank page, waits for the print view to
// mark itself ready (data-ready="true") and prints it with backgrounds.
func (p *Printer) PrintPDF(parentCtx context.Context, html []byte) ([]byte, error) {
	if len(html) == 0 {
		return nil, errors.New("capture: empty document")
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if p.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p.opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer timeoutCancel()

	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(p.opts.Landscape).
				WithPaperWidth(p.opts.PaperWidth).
				WithPaperHeight(p.opts.PaperHeight).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	appLog.Info("print view rendered to PDF", "bytes", len(pdf), "elapsed", time.Since(start).Round(time.Millisecond))
	return pdf, nil
}
