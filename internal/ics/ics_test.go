package ics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalcal/internal/schedule"
	"signalcal/internal/words"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testExporter() Exporter {
	return Exporter{
		Now:  func() time.Time { return fixedNow },
		Rand: bytes.NewReader(bytes.Repeat([]byte{0xab}, 1024)),
	}
}

func testSchedule(t *testing.T, weeks int) schedule.Schedule {
	t.Helper()
	s, err := schedule.New(words.Default()).Generate("a1b2c3d4-e5f6-4789-8abc-def012345678", weeks,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

// unfold joins RFC 5545 folded lines.
func unfold(s string) string {
	return strings.ReplaceAll(s, "\r\n ", "")
}

func TestExportEmptySchedule(t *testing.T) {
	_, err := testExporter().Export(nil)
	assert.True(t, errors.Is(err, ErrEmptySchedule))
	_, err = testExporter().Export(schedule.Schedule{})
	assert.True(t, errors.Is(err, ErrEmptySchedule))
}

func TestExportStructure(t *testing.T) {
	s := testSchedule(t, 52)
	out, err := testExporter().Export(s)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VCALENDAR"))
	assert.Equal(t, 1, strings.Count(out, "END:VCALENDAR"))
	assert.Equal(t, len(s), strings.Count(out, "BEGIN:VEVENT"))
	assert.Equal(t, len(s), strings.Count(out, "END:VEVENT"))

	flat := unfold(out)
	for _, line := range []string{
		"VERSION:2.0",
		"PRODID:-//Family Signal Words//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:Family Signal Words",
		"X-WR-CALDESC:Weekly rotating security words to protect against AI voice scams",
	} {
		assert.Contains(t, flat, line+"\r\n")
	}

	// Every line ends in CRLF, folded continuation lines included.
	assert.Equal(t, strings.Count(out, "\n"), strings.Count(out, "\r\n"))

	// Header properties come before the first event.
	assert.Less(t, strings.Index(flat, "X-WR-CALDESC"), strings.Index(flat, "BEGIN:VEVENT"))
}

func TestExportEventFields(t *testing.T) {
	s := testSchedule(t, 3)
	out, err := testExporter().Export(s)
	require.NoError(t, err)
	flat := unfold(out)

	blocks := strings.Split(flat, "BEGIN:VEVENT\r\n")[1:]
	require.Len(t, blocks, 3)

	uidRe := regexp.MustCompile(`UID:signal-word-(\d+)-(\d+)-([0-9a-f]{16})@family-security\.app\r\n`)
	for i, b := range blocks {
		e := s[i]
		b = b[:strings.Index(b, "END:VEVENT")]

		m := uidRe.FindStringSubmatch(b)
		require.NotNil(t, m, b)
		assert.Equal(t, strconv.Itoa(e.Week), m[1])
		assert.Equal(t, strconv.FormatInt(e.StartDate.UnixMilli(), 10), m[2])
		assert.Equal(t, "abababababababab", m[3])

		assert.Contains(t, b, "DTSTAMP:20240506T070809Z\r\n")
		assert.Contains(t, b, "DTSTART;VALUE=DATE:"+e.StartDate.Format("20060102")+"\r\n")
		assert.Contains(t, b, "DTEND;VALUE=DATE:"+e.StartDate.AddDate(0, 0, 1).Format("20060102")+"\r\n")
		assert.Contains(t, b, "SUMMARY:Signal Word: "+strings.ToUpper(e.Word)+"\r\n")
		assert.Contains(t, b, "Week "+strconv.Itoa(e.Week)+". Keep this secret!")
		assert.Contains(t, b, "STATUS:CONFIRMED\r\n")
		assert.Contains(t, b, "TRANSP:TRANSPARENT\r\n")
	}
}

func TestExportCustomMetadata(t *testing.T) {
	x := testExporter()
	x.Name = "Smith Words"
	x.ProductID = "-//Smith//EN"
	x.UIDDomain = "smith.example"
	out, err := x.Export(testSchedule(t, 1))
	require.NoError(t, err)
	flat := unfold(out)
	assert.Contains(t, flat, "X-WR-CALNAME:Smith Words\r\n")
	assert.Contains(t, flat, "PRODID:-//Smith//EN\r\n")
	assert.Contains(t, flat, "@smith.example\r\n")
}

func TestExportRandFailure(t *testing.T) {
	x := testExporter()
	x.Rand = bytes.NewReader(nil)
	_, err := x.Export(testSchedule(t, 1))
	assert.Error(t, err)
}

func TestExportUIDsAreUnique(t *testing.T) {
	out, err := Exporter{}.Export(testSchedule(t, 20))
	require.NoError(t, err)
	events, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.UID])
		seen[ev.UID] = true
	}
}

func TestParseRoundTrip(t *testing.T) {
	s := testSchedule(t, 10)
	out, err := testExporter().Export(s)
	require.NoError(t, err)

	events, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, events, len(s))
	for i, ev := range events {
		assert.Equal(t, s[i].Week, ev.Week)
		assert.Equal(t, s[i].Word, ev.Word)
		assert.True(t, sameDay(s[i].StartDate, ev.Start))
		assert.True(t, sameDay(s[i].StartDate.AddDate(0, 0, 1), ev.End))
	}
	assert.Empty(t, Verify(events, s))
}

func TestParseRejectsForeignCalendar(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//x//EN\r\nBEGIN:VEVENT\r\nUID:dentist@example.com\r\nSUMMARY:Dentist\r\nDTSTART;VALUE=DATE:20240101\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	_, err := Parse(strings.NewReader(body))
	assert.ErrorIs(t, err, ErrEmptySchedule)
}

func TestVerifyReportsDifferences(t *testing.T) {
	s := testSchedule(t, 4)
	events := []ParsedEvent{
		{Week: 1, Word: s[0].Word, Start: s[0].StartDate},
		{Week: 2, Word: "not-the-word", Start: s[1].StartDate},
		{Week: 4, Word: s[3].Word, Start: s[3].StartDate.AddDate(0, 0, 1)},
		{Week: 4, Word: s[3].Word, Start: s[3].StartDate},
		{Week: 9, Word: "extra", Start: s[3].StartDate},
	}

	got := Verify(events, s)
	want := []Mismatch{
		{Week: 2, Reason: "word does not match family code"},
		{Week: 3, Reason: "missing from calendar"},
		{Week: 4, Reason: "duplicate event"},
		{Week: 4, Reason: "starts 2024-01-23, expected 2024-01-22"},
		{Week: 9, Reason: "beyond the generated schedule"},
	}
	assert.ElementsMatch(t, want, got)
	assert.Equal(t, "week 3: missing from calendar", got[1].String())
}

func TestVerifyShorterFileIsFine(t *testing.T) {
	s := testSchedule(t, 52)
	out, err := testExporter().Export(s[:12])
	require.NoError(t, err)
	events, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, Verify(events, s))
}

func TestVerifyNonASCIIWords(t *testing.T) {
	list, err := words.New([]string{"straße", "apfel", "birne"})
	require.NoError(t, err)
	s, err := schedule.New(list).Generate("a1b2c3d4-e5f6-4789-8abc-def012345678", 3,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	out, err := testExporter().Export(s)
	require.NoError(t, err)
	assert.Contains(t, out, "SUMMARY:Signal Word: STRASSE\r\n")

	events, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, Verify(events, s))

	// A genuinely different word is still caught.
	for _, w := range list.Words() {
		if w != s[0].Word {
			events[0].Word = w
			break
		}
	}
	assert.Equal(t, []Mismatch{{Week: 1, Reason: "word does not match family code"}}, Verify(events, s))
}

func TestParseVEventBadDateKeepsCause(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//x//EN\r\nBEGIN:VEVENT\r\n" +
		"UID:signal-word-1-1-00@family-security.app\r\nSUMMARY:Signal Word: ACORN\r\n" +
		"DTSTART;VALUE=DATE:20241340\r\nDTEND;VALUE=DATE:20241341\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	cal, err := ical.ParseCalendar(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 1)

	_, err = parseVEvent(cal.Events()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), `bad date "20241340"`)
	var perr *time.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestFetch(t *testing.T) {
	s := testSchedule(t, 5)
	body, err := testExporter().Export(s)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/family.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	events, err := f.Fetch(context.Background(), srv.URL+"/family.ics")
	require.NoError(t, err)
	assert.Empty(t, Verify(events, s))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.ics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NotContains(t, err.Error(), "missing.ics")

	_, err = f.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abcd.ics?token=x"))
	assert.Equal(t, "http://example.com/...(redacted)", redactURL("http://example.com?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("example.com/abc"))
	assert.True(t, IsURL("https://x"))
	assert.False(t, IsURL("./family.ics"))
}
