// Package schedule derives a family's weekly signal words.
//
// Weeks are grouped into cycles as long as the word list. Every cycle is
// an independent keyed shuffle of the list, seeded from the identifier and
// the cycle number, so each aligned block of len(list) weeks uses every
// word exactly once. Where two cycles meet the first word of the later
// cycle is moved if it would repeat the week before it.
package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/teambition/rrule-go"
	"golang.org/x/crypto/hkdf"

	"signalcal/internal/words"
)

var ErrInvalidArgument = errors.New("invalid argument")

// cycleSalt versions the derivation; changing it changes every schedule.
var cycleSalt = []byte("signalcal/word-cycle/v1")

// Entry is one week of a schedule.
type Entry struct {
	Week      int       `json:"week"`
	Word      string    `json:"word"`
	StartDate time.Time `json:"start_date"`
}

// EndDate is the last day of the entry's week.
func (e Entry) EndDate() time.Time {
	return e.StartDate.AddDate(0, 0, 6)
}

// Schedule is ordered by ascending week, starting at week 1.
type Schedule []Entry

// At returns the entry whose week contains day.
func (s Schedule) At(day time.Time) (Entry, bool) {
	for _, e := range s {
		start := e.StartDate
		end := start.AddDate(0, 0, 7)
		d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, start.Location())
		if !d.Before(start) && d.Before(end) {
			return e, true
		}
	}
	return Entry{}, false
}

// Generator maps (identifier, week) to words from an injected list. It
// holds no mutable state and is safe for concurrent use.
type Generator struct {
	list words.List
}

func New(list words.List) *Generator {
	return &Generator{list: list}
}

// SelectWord returns the word for a 1-based week.
func (g *Generator) SelectWord(identifier string, week int) (string, error) {
	if week < 1 {
		return "", fmt.Errorf("%w: week must be >= 1, got %d", ErrInvalidArgument, week)
	}
	if g.list.Len() == 0 {
		return "", words.ErrEmptyList
	}
	c := newCycles(identifier, g.list.Len())
	return g.list.At(c.index(week)), nil
}

// Generate expands weekCount weeks starting on anchor. The anchor's time
// of day is dropped; week k starts anchor + 7(k-1) days.
func (g *Generator) Generate(identifier string, weekCount int, anchor time.Time) (Schedule, error) {
	if weekCount < 1 {
		return nil, fmt.Errorf("%w: week count must be >= 1, got %d", ErrInvalidArgument, weekCount)
	}
	if g.list.Len() == 0 {
		return nil, words.ErrEmptyList
	}

	starts, err := weekStarts(anchor, weekCount)
	if err != nil {
		return nil, err
	}

	c := newCycles(identifier, g.list.Len())
	out := make(Schedule, 0, weekCount)
	for i, start := range starts {
		week := i + 1
		out = append(out, Entry{
			Week:      week,
			Word:      g.list.At(c.index(week)),
			StartDate: start,
		})
	}
	return out, nil
}

func weekStarts(anchor time.Time, n int) ([]time.Time, error) {
	y, m, d := anchor.Date()
	dtstart := time.Date(y, m, d, 0, 0, 0, 0, anchor.Location())

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: 1,
		Count:    n,
		Dtstart:  dtstart,
	})
	if err != nil {
		return nil, fmt.Errorf("weekly rule: %w", err)
	}
	starts := r.All()
	if len(starts) != n {
		return nil, fmt.Errorf("weekly rule produced %d dates, want %d", len(starts), n)
	}
	for i, t := range starts {
		starts[i] = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, anchor.Location())
	}
	return starts, nil
}

// cycles memoizes shuffles for one identifier within a single call.
type cycles struct {
	identifier string
	n          int
	raw        map[int][]int
}

func newCycles(identifier string, n int) *cycles {
	return &cycles{identifier: identifier, n: n, raw: make(map[int][]int)}
}

// index returns the list index for a 1-based week.
func (c *cycles) index(week int) int {
	cycle, pos := (week-1)/c.n, (week-1)%c.n
	switch {
	case c.n == 1:
		return 0
	case c.n == 2:
		// Alternation is the only order without adjacent repeats.
		return c.shuffled(0)[pos]
	}

	p := c.shuffled(cycle)
	if cycle > 0 && pos <= 1 {
		prevLast := c.shuffled(cycle - 1)[c.n-1]
		if p[0] == prevLast {
			// Swap the first two positions of this cycle.
			return p[1-pos]
		}
	}
	return p[pos]
}

func (c *cycles) shuffled(cycle int) []int {
	if p, ok := c.raw[cycle]; ok {
		return p
	}
	p := shuffle(c.identifier, cycle, c.n)
	c.raw[cycle] = p
	return p
}

// shuffle is a Fisher-Yates permutation of [0, n) driven by a ChaCha8
// stream whose key is HKDF-SHA256(identifier, cycle).
func shuffle(identifier string, cycle, n int) []int {
	var info [8]byte
	binary.BigEndian.PutUint64(info[:], uint64(cycle))

	var seed [32]byte
	kdf := hkdf.New(sha256.New, []byte(identifier), cycleSalt, info[:])
	if _, err := io.ReadFull(kdf, seed[:]); err != nil {
		// HKDF-SHA256 can emit up to 8160 bytes; 32 never fails.
		panic(err)
	}
	src := rand.NewChaCha8(seed)

	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(uniform(src, uint64(i+1)))
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// uniform draws from [0, n) without modulo bias.
func uniform(src *rand.ChaCha8, n uint64) uint64 {
	threshold := -n % n
	for {
		v := src.Uint64()
		if v >= threshold {
			return v % n
		}
	}
}
