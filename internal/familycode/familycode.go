// Package familycode encodes and decodes family codes.
//
// A family code is the whole shared state of a family's signal word
// schedule: a random version 4 identifier followed by the Monday the
// schedule starts on, e.g.
//
//	a1b2c3d4-e5f6-4789-8abc-def012345678-20240101
package familycode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrFormat is returned (wrapped) for any malformed family code.
var ErrFormat = errors.New("invalid family code format")

const (
	dateLayout = "20060102"
	fieldCount = 6
)

// Identifier is the canonical lower-case 8-4-4-4-12 hex form of a
// 128-bit random identifier.
type Identifier string

func (id Identifier) String() string { return string(id) }

// Code is an encoded family code.
type Code string

func (c Code) String() string { return string(c) }

// Encode joins id and the anchor date (formatted in its own location).
func Encode(id Identifier, anchor time.Time) Code {
	return Code(string(id) + "-" + anchor.Format(dateLayout))
}

// Decode parses code and returns the anchor at midnight in time.Local.
func Decode(code string) (Identifier, time.Time, error) {
	return DecodeIn(code, time.Local)
}

// DecodeIn is Decode with an explicit location for the anchor date.
//
// Calendar-invalid dates (month 13, February 30, ...) are rejected
// rather than normalized. The identifier is only checked for shape;
// version and variant nibbles are accepted as-is.
func DecodeIn(code string, loc *time.Location) (Identifier, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	fields := strings.Split(strings.TrimSpace(code), "-")
	if len(fields) != fieldCount {
		return "", time.Time{}, fmt.Errorf("%w: expected %d hyphen-separated fields, got %d", ErrFormat, fieldCount, len(fields))
	}

	dateField := fields[fieldCount-1]
	if !isDigits(dateField, 8) {
		return "", time.Time{}, fmt.Errorf("%w: date field %q is not 8 digits", ErrFormat, dateField)
	}
	anchor, err := time.ParseInLocation(dateLayout, dateField, loc)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: date field %q: %v", ErrFormat, dateField, err)
	}

	id, err := ParseIdentifier(strings.Join(fields[:fieldCount-1], "-"))
	if err != nil {
		return "", time.Time{}, err
	}
	return id, anchor, nil
}

// ParseIdentifier checks the 8-4-4-4-12 hex shape and lower-cases it.
func ParseIdentifier(s string) (Identifier, error) {
	// uuid.Parse also accepts braces, urn: prefixes and undashed forms;
	// only the 36 character dashed layout is a valid identifier here.
	if len(s) != 36 {
		return "", fmt.Errorf("%w: identifier %q is not 8-4-4-4-12 hex", ErrFormat, s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: identifier %q is not 8-4-4-4-12 hex", ErrFormat, s)
	}
	return Identifier(u.String()), nil
}

// CurrentWeekAnchor returns the Monday of today's week at midnight in
// today's location. Sunday belongs to the week that started six days
// earlier.
func CurrentWeekAnchor(today time.Time) time.Time {
	back := int(today.Weekday()) - 1
	if today.Weekday() == time.Sunday {
		back = 6
	}
	y, m, d := today.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, today.Location())
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
