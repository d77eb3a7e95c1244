package capture

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrinterDefaults(t *testing.T) {
	p := NewPrinter(PDFOptions{})
	assert.Equal(t, 8.5, p.opts.PaperWidth)
	assert.Equal(t, 11.0, p.opts.PaperHeight)
	assert.Equal(t, DefaultTimeout, p.opts.Timeout)

	p = NewPrinter(PDFOptions{PaperWidth: 8.27, PaperHeight: 11.69, Timeout: time.Second})
	assert.Equal(t, 8.27, p.opts.PaperWidth)
	assert.Equal(t, time.Second, p.opts.Timeout)
}

func TestPrintPDFRejectsEmptyDocument(t *testing.T) {
	_, err := NewPrinter(PDFOptions{}).PrintPDF(context.Background(), nil)
	assert.Error(t, err)
}

// Needs a local Chromium; opt in with SIGNALCAL_CHROMIUM_TESTS=1.
func TestPrintPDFWithChromium(t *testing.T) {
	if os.Getenv("SIGNALCAL_CHROMIUM_TESTS") == "" {
		t.Skip("set SIGNALCAL_CHROMIUM_TESTS=1 to run against a local Chromium")
	}
	html := []byte(`<!DOCTYPE html><html><body data-ready="true"><h1>Week 1</h1></body></html>`)
	pdf, err := NewPrinter(PDFOptions{Timeout: time.Minute}).PrintPDF(context.Background(), html)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}
