// Package app ties the family code, schedule and calendar packages
// together behind an immutable Session and a table of named actions.
package app

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"signalcal/internal/familycode"
	"signalcal/internal/ics"
	appLog "signalcal/internal/log"
	"signalcal/internal/schedule"
)

// DefaultPreviewLimit is how many weeks the on-screen preview shows.
const DefaultPreviewLimit = 12

// Session is everything derived from one family code for one user
// action. It is built once and never modified; accessors return copies.
type Session struct {
	id       familycode.Identifier
	anchor   time.Time
	schedule schedule.Schedule
}

func (s Session) Identifier() familycode.Identifier { return s.id }
func (s Session) Anchor() time.Time                 { return s.anchor }
func (s Session) Code() familycode.Code             { return familycode.Encode(s.id, s.anchor) }
func (s Session) Len() int                          { return len(s.schedule) }

// Schedule returns a copy of the session's schedule.
func (s Session) Schedule() schedule.Schedule {
	return append(schedule.Schedule(nil), s.schedule...)
}

// App holds the collaborators every session is built from.
type App struct {
	Generator *schedule.Generator
	Exporter  ics.Exporter
	IDs       *familycode.Generator

	// Location is used for "today" and for decoded anchor dates.
	Location *time.Location
	// Rotation decides when the current word changes.
	Rotation cron.Schedule
	// Printer renders the print view to PDF; optional.
	Printer PDFPrinter

	Now func() time.Time
}

func (a *App) now() time.Time {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().In(a.location())
}

func (a *App) location() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// Open decodes code and generates weeks of schedule from it.
func (a *App) Open(code string, weeks int) (Session, error) {
	id, anchor, err := familycode.DecodeIn(code, a.location())
	if err != nil {
		return Session{}, err
	}
	return a.build(id, anchor, weeks)
}

// Fresh issues a new family code anchored on the current week.
func (a *App) Fresh(weeks int) (Session, familycode.Issued, error) {
	ids := a.IDs
	if ids == nil {
		ids = &familycode.Generator{}
	}
	issued, err := ids.NewIdentifier()
	if err != nil {
		return Session{}, familycode.Issued{}, err
	}
	s, err := a.build(issued.ID, familycode.CurrentWeekAnchor(a.now()), weeks)
	if err != nil {
		return Session{}, familycode.Issued{}, err
	}
	appLog.Info("family code issued", "anchor", s.anchor.Format(time.DateOnly), "degraded", issued.Degraded)
	return s, issued, nil
}

func (a *App) build(id familycode.Identifier, anchor time.Time, weeks int) (Session, error) {
	if a.Generator == nil {
		return Session{}, fmt.Errorf("app: no schedule generator configured")
	}
	sched, err := a.Generator.Generate(id.String(), weeks, anchor)
	if err != nil {
		return Session{}, err
	}
	return Session{id: id, anchor: anchor, schedule: sched}, nil
}

// PreviewView is the first few weeks of a schedule plus how many remain.
type PreviewView struct {
	Entries   []schedule.Entry `json:"entries"`
	Remaining int              `json:"remaining"`
}

// Preview returns up to limit entries; limit <= 0 means all of them.
func Preview(s Session, limit int) PreviewView {
	sched := s.Schedule()
	if limit <= 0 || limit >= len(sched) {
		return PreviewView{Entries: sched}
	}
	return PreviewView{Entries: sched[:limit], Remaining: len(sched) - limit}
}

// CurrentView is the entry active now and when the word next changes.
type CurrentView struct {
	Entry        schedule.Entry `json:"entry"`
	Active       bool           `json:"active"`
	NextRotation time.Time      `json:"next_rotation"`
}

// Current looks up today's entry. Active is false before the anchor
// date and after the last generated week.
func (a *App) Current(s Session) CurrentView {
	now := a.now()
	var v CurrentView
	v.Entry, v.Active = s.schedule.At(now)
	if a.Rotation != nil {
		v.NextRotation = a.Rotation.Next(now)
	}
	return v
}
