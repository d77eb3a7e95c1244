package ics

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "signalcal/internal/log"
	"signalcal/internal/schedule"
	"signalcal/internal/words"
)

const (
	// Filename is the fixed download name of an export.
	Filename    = "family-signal-words.ics"
	ContentType = "text/calendar; charset=utf-8"

	DefaultProductID   = "-//Family Signal Words//EN"
	DefaultName        = "Family Signal Words"
	DefaultDescription = "Weekly rotating security words to protect against AI voice scams"
	DefaultUIDDomain   = "family-security.app"

	summaryPrefix = "Signal Word: "
	uidPrefix     = "signal-word-"
)

var ErrEmptySchedule = errors.New("no signal words available for calendar generation")

// Exporter serializes schedules as iCalendar documents. The zero value
// uses the defaults above, the wall clock and crypto/rand.
type Exporter struct {
	ProductID   string
	Name        string
	Description string
	UIDDomain   string

	// Now stamps DTSTAMP; Rand feeds the UID suffix.
	Now  func() time.Time
	Rand io.Reader
}

// Export renders one all-day VEVENT per entry, in schedule order. Each
// event covers only the first day of its week.
func (x Exporter) Export(s schedule.Schedule) (string, error) {
	if len(s) == 0 {
		return "", ErrEmptySchedule
	}
	x = x.withDefaults()

	cal := ical.NewCalendar()
	cal.SetProductId(x.ProductID)
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(x.Name)
	cal.SetXWRCalDesc(x.Description)

	stamp := x.Now().UTC()

	for _, e := range s {
		uid, err := x.eventUID(e)
		if err != nil {
			return "", err
		}
		start := e.StartDate
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		ev.SetSummary(summaryPrefix + words.Display(e.Word))
		ev.SetDescription(fmt.Sprintf("Family security word for Week %d. Keep this secret! Only share with trusted family members in person.", e.Week))
		ev.SetStatus(ical.ObjectStatusConfirmed)
		ev.SetTimeTransparency(ical.TransparencyTransparent)
	}

	appLog.Debug("calendar exported", "events", len(s), "first_week", s[0].StartDate.Format(time.DateOnly))
	return cal.Serialize(ical.WithNewLineWindows), nil
}

// eventUID is signal-word-<week>-<start unix ms>-<16 hex>@<domain>. The
// random part only avoids collisions between repeated exports.
func (x Exporter) eventUID(e schedule.Entry) (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(x.Rand, buf[:]); err != nil {
		return "", fmt.Errorf("event uid: %w", err)
	}
	return uidPrefix + strconv.Itoa(e.Week) + "-" +
		strconv.FormatInt(e.StartDate.UnixMilli(), 10) + "-" +
		hex.EncodeToString(buf[:]) + "@" + x.UIDDomain, nil
}

func (x Exporter) withDefaults() Exporter {
	if x.ProductID == "" {
		x.ProductID = DefaultProductID
	}
	if x.Name == "" {
		x.Name = DefaultName
	}
	if x.Description == "" {
		x.Description = DefaultDescription
	}
	if x.UIDDomain == "" {
		x.UIDDomain = DefaultUIDDomain
	}
	if x.Now == nil {
		x.Now = time.Now
	}
	if x.Rand == nil {
		x.Rand = crand.Reader
	}
	return x
}
