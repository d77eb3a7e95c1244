package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalcal/internal/app"
	"signalcal/internal/config"
	"signalcal/internal/familycode"
	"signalcal/internal/ics"
	"signalcal/internal/schedule"
	"signalcal/internal/words"
)

const testCode = "a1b2c3d4-e5f6-4789-8abc-def012345678-20240101"

type stubPrinter struct{}

func (stubPrinter) PrintPDF(context.Context, []byte) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

func newTestServer(t *testing.T, mutate func(*config.Config, *app.App)) http.Handler {
	t.Helper()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	rotation, err := cron.ParseStandard("0 0 * * 1")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	a := &app.App{
		Generator: schedule.New(words.Default()),
		Exporter:  ics.Exporter{Now: func() time.Time { return now }},
		Location:  time.UTC,
		Rotation:  rotation,
		Now:       func() time.Time { return now },
	}
	if mutate != nil {
		mutate(cfg, a)
	}
	return NewServer(cfg, a).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestIndexServed(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/schedule")
}

func TestNewCode(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/code", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body codeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Degraded)
	assert.True(t, strings.HasSuffix(body.Code, "-20240108"), body.Code)

	_, _, err := familycode.Decode(body.Code)
	assert.NoError(t, err)

	rec = do(t, h, http.MethodGet, "/api/code", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSchedule(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodPost, "/api/schedule", url.Values{"code": {"  " + testCode + "  "}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Weeks   int `json:"weeks"`
		Preview struct {
			Entries []struct {
				Week      int       `json:"week"`
				Word      string    `json:"word"`
				StartDate time.Time `json:"start_date"`
			} `json:"entries"`
			Remaining int `json:"remaining"`
		} `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 52, body.Weeks)
	require.Len(t, body.Preview.Entries, app.DefaultPreviewLimit)
	assert.Equal(t, 40, body.Preview.Remaining)
	assert.Equal(t, 1, body.Preview.Entries[0].Week)
	assert.True(t, body.Preview.Entries[1].StartDate.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)))

	want, err := schedule.New(words.Default()).SelectWord("a1b2c3d4-e5f6-4789-8abc-def012345678", 1)
	require.NoError(t, err)
	assert.Equal(t, want, body.Preview.Entries[0].Word)
}

func TestScheduleRejectsBadInput(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing code", "", "Please enter your family code."},
		{"malformed code", "code=hello", "Invalid family code format. Please check and try again."},
		{"impossible date", "code=a1b2c3d4-e5f6-4789-8abc-def012345678-20240230", "Invalid family code format. Please check and try again."},
		{"zero weeks", "code=" + testCode + "&weeks=0", "weeks must be between 1 and 520"},
		{"too many weeks", "code=" + testCode + "&weeks=521", "weeks must be between 1 and 520"},
		{"non-numeric weeks", "code=" + testCode + "&weeks=lots", "weeks must be between 1 and 520"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/schedule?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
		})
	}

	rec := do(t, h, http.MethodDelete, "/api/schedule?code="+testCode, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCurrentEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/current?code="+testCode, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body app.CurrentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Active)
	assert.Equal(t, 2, body.Entry.Week)
	assert.True(t, body.NextRotation.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestDownloadCalendar(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodPost, "/"+ics.Filename, url.Values{"code": {testCode}, "weeks": {"8"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ics.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="family-signal-words.ics"`, rec.Header().Get("Content-Disposition"))

	assert.True(t, strings.HasPrefix(rec.Body.String(), "BEGIN:VCALENDAR\r\n"))

	events, err := ics.Parse(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	assert.Len(t, events, 8)
}

func TestPrintEndpoints(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/print?code="+testCode, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Family code: "+testCode)

	rec = do(t, h, http.MethodGet, "/print.pdf?code="+testCode, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	withPrinter := newTestServer(t, func(_ *config.Config, a *app.App) { a.Printer = stubPrinter{} })
	rec = do(t, withPrinter, http.MethodGet, "/print.pdf?code="+testCode, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config, _ *app.App) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "family", Password: "s3cret"}
	})

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/schedule?code="+testCode, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/schedule?code="+testCode, nil)
	req.SetBasicAuth("family", "wrong!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/schedule?code="+testCode, nil)
	req.SetBasicAuth("family", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}
