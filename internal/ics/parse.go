package ics

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"golang.org/x/text/cases"

	appLog "signalcal/internal/log"
	"signalcal/internal/schedule"
	"signalcal/internal/words"
)

// ParsedEvent is a signal word VEVENT read back from an exported file.
type ParsedEvent struct {
	UID   string
	Week  int
	Word  string
	Start time.Time
	End   time.Time
}

// Parse reads an exported calendar. Events that are not signal word
// events are skipped with a log line; a calendar without any is an error.
func Parse(r io.Reader) ([]ParsedEvent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Debug("skipping vevent", "err", perr.Error())
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, ErrEmptySchedule
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	week, err := weekFromUID(out.UID)
	if err != nil {
		return out, err
	}
	out.Week = week

	summary := ve.GetProperty(ical.ComponentPropertySummary)
	if summary == nil || !strings.HasPrefix(summary.Value, summaryPrefix) {
		return out, fmt.Errorf("event %s: summary is not a signal word", out.UID)
	}
	out.Word = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(summary.Value, summaryPrefix)))

	out.Start, err = dateProperty(ve, ical.ComponentPropertyDtStart)
	if err != nil {
		return out, fmt.Errorf("event %s: %w", out.UID, err)
	}
	out.End, err = dateProperty(ve, ical.ComponentPropertyDtEnd)
	if err != nil {
		return out, fmt.Errorf("event %s: %w", out.UID, err)
	}
	return out, nil
}

// weekFromUID extracts <week> from signal-word-<week>-<ms>-<rand>@domain.
func weekFromUID(uid string) (int, error) {
	rest, ok := strings.CutPrefix(uid, uidPrefix)
	if !ok {
		return 0, fmt.Errorf("uid %q: not a signal word event", uid)
	}
	num, _, _ := strings.Cut(rest, "-")
	week, err := strconv.Atoi(num)
	if err != nil || week < 1 {
		return 0, fmt.Errorf("uid %q: bad week number", uid)
	}
	return week, nil
}

// dateProperty reads a VALUE=DATE property as midnight UTC. Only the
// calendar date matters for comparison.
func dateProperty(ve *ical.VEvent, name ical.ComponentProperty) (time.Time, error) {
	p := ve.GetProperty(name)
	if p == nil {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	v := strings.TrimSpace(p.Value)
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("%s: bad date %q", name, v)
	}
	t, err := time.Parse("20060102", v[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad date %q: %w", name, v, err)
	}
	return t, nil
}

// Mismatch describes one difference between an imported calendar and the
// schedule regenerated from a family code.
type Mismatch struct {
	Week   int
	Reason string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("week %d: %s", m.Week, m.Reason)
}

// Verify compares parsed events with the expected schedule. Weeks past
// the end of the schedule are reported as unexpected; weeks missing from
// the file are reported only up to the last week the file contains.
func Verify(events []ParsedEvent, want schedule.Schedule) []Mismatch {
	var out []Mismatch
	byWeek := make(map[int]ParsedEvent, len(events))
	last := 0
	for _, ev := range events {
		if _, dup := byWeek[ev.Week]; dup {
			out = append(out, Mismatch{Week: ev.Week, Reason: "duplicate event"})
			continue
		}
		byWeek[ev.Week] = ev
		if ev.Week > last {
			last = ev.Week
		}
	}

	for _, e := range want {
		if e.Week > last {
			break
		}
		ev, ok := byWeek[e.Week]
		if !ok {
			out = append(out, Mismatch{Week: e.Week, Reason: "missing from calendar"})
			continue
		}
		delete(byWeek, e.Week)

		if !sameWord(ev.Word, e.Word) {
			out = append(out, Mismatch{Week: e.Week, Reason: "word does not match family code"})
		}
		if !sameDay(ev.Start, e.StartDate) {
			out = append(out, Mismatch{Week: e.Week, Reason: fmt.Sprintf("starts %s, expected %s",
				ev.Start.Format(time.DateOnly), e.StartDate.Format(time.DateOnly))})
		}
	}
	for week := range byWeek {
		if week > len(want) {
			out = append(out, Mismatch{Week: week, Reason: "beyond the generated schedule"})
		}
	}
	slices.SortStableFunc(out, func(a, b Mismatch) int { return cmp.Compare(a.Week, b.Week) })
	return out
}

// sameWord compares a word read from a SUMMARY with a list word. The
// SUMMARY holds the upper-cased form, which does not always lower back to
// the original (STRASSE vs straße), so both sides are case-folded.
func sameWord(summaryWord, listWord string) bool {
	fold := cases.Fold()
	return fold.String(summaryWord) == fold.String(words.Display(listWord))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
