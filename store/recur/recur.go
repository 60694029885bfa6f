// Package recur expands event series into concrete occurrences.
//
// A Series is one stored event: a start/end pair, an optional RRULE, the
// occurrences removed from it (EXDATE) and the occurrences changed on their own
// (RECURRENCE-ID overrides). All instants are kept in UTC.
package recur

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps the expansion of a single series.
const DefaultMaxOccurrences = 5000

// ErrInvalidInterval is returned when an event ends before it starts.
var ErrInvalidInterval = errors.New("the start date must be before the end date")

// Override replaces one occurrence of a recurring series.
type Override struct {
	// RecurrenceID is the original start of the replaced occurrence.
	RecurrenceID time.Time
	Title        string
	Location     string
	Start        time.Time
	End          time.Time
}

// Series is a stored event, recurring when RRule is set.
type Series struct {
	UID        string
	CalendarID string
	Title      string
	Location   string
	Start      time.Time
	End        time.Time

	RRule     string
	ExDates   []time.Time
	Overrides []Override
}

// Occurrence is one concrete instance of a Series.
type Occurrence struct {
	// Date is the original start of the occurrence, before any override.
	Date     time.Time
	Title    string
	Location string
	Start    time.Time
	End      time.Time
}

// ParseRule parses an RRULE value, with or without the "RRULE:" prefix.
func ParseRule(s string) (*rrule.ROption, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	if s == "" {
		return nil, errors.New("empty recurrence rule")
	}
	return rrule.StrToROption(s)
}

// Overlaps reports whether [start, end] intersects [from, to]. Zero-length
// intervals overlap when they lie inside the range.
func Overlaps(start, end, from, to time.Time) bool {
	if !end.After(start) {
		return !start.Before(from) && !start.After(to)
	}
	return start.Before(to) && end.After(from)
}

// Validate checks the interval and the recurrence rule of s.
func (s *Series) Validate() error {
	if s.End.Before(s.Start) {
		return ErrInvalidInterval
	}
	for _, o := range s.Overrides {
		if o.End.Before(o.Start) {
			return ErrInvalidInterval
		}
	}
	if s.RRule != "" {
		if _, err := ParseRule(s.RRule); err != nil {
			return err
		}
	}
	return nil
}

// Recurring reports whether s has a recurrence rule.
func (s *Series) Recurring() bool {
	return s.RRule != ""
}

// Clone returns a deep copy of s.
func (s *Series) Clone() *Series {
	c := *s
	c.ExDates = append([]time.Time(nil), s.ExDates...)
	c.Overrides = append([]Override(nil), s.Overrides...)
	return &c
}

func (s *Series) set() (*rrule.Set, error) {
	opt, err := ParseRule(s.RRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = s.Start.UTC()

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range s.ExDates {
		set.ExDate(ex.UTC())
	}
	return set, nil
}

// Occurs reports whether date is the original start of an occurrence of s.
func (s *Series) Occurs(date time.Time) bool {
	if !s.Recurring() {
		return date.Equal(s.Start)
	}
	set, err := s.set()
	if err != nil {
		return false
	}
	for _, t := range set.Between(date.Add(-time.Second), date.Add(time.Second), true) {
		if t.Equal(date) {
			return true
		}
	}
	return false
}

func (s *Series) override(date time.Time) (Override, bool) {
	for _, o := range s.Overrides {
		if o.RecurrenceID.Equal(date) {
			return o, true
		}
	}
	return Override{}, false
}

// SetOverride stores o, replacing any override of the same occurrence.
func (s *Series) SetOverride(o Override) {
	for i := range s.Overrides {
		if s.Overrides[i].RecurrenceID.Equal(o.RecurrenceID) {
			s.Overrides[i] = o
			return
		}
	}
	s.Overrides = append(s.Overrides, o)
}

// Exclude removes the occurrence originally starting at date.
func (s *Series) Exclude(date time.Time) {
	kept := s.Overrides[:0]
	for _, o := range s.Overrides {
		if !o.RecurrenceID.Equal(date) {
			kept = append(kept, o)
		}
	}
	s.Overrides = kept
	s.ExDates = append(s.ExDates, date.UTC())
}

// Expand returns the occurrences of s intersecting [from, to] in chronological
// order. The second result reports whether max cut the expansion short.
func (s *Series) Expand(from, to time.Time, max int) ([]Occurrence, bool, error) {
	if max <= 0 {
		max = DefaultMaxOccurrences
	}

	if !s.Recurring() {
		if !Overlaps(s.Start, s.End, from, to) {
			return nil, false, nil
		}
		return []Occurrence{{
			Date:     s.Start,
			Title:    s.Title,
			Location: s.Location,
			Start:    s.Start,
			End:      s.End,
		}}, false, nil
	}

	set, err := s.set()
	if err != nil {
		return nil, false, err
	}

	duration := s.End.Sub(s.Start)
	dates := set.Between(from.Add(-duration), to, true)
	truncated := false
	if len(dates) > max {
		dates = dates[:max]
		truncated = true
	}

	seen := make(map[int64]bool, len(dates))
	out := make([]Occurrence, 0, len(dates))
	for _, date := range dates {
		seen[date.UnixNano()] = true
		occ := s.occurrence(date, duration)
		if Overlaps(occ.Start, occ.End, from, to) {
			out = append(out, occ)
		}
	}

	// Overrides moved into the range from an occurrence outside it.
	for _, o := range s.Overrides {
		if seen[o.RecurrenceID.UnixNano()] || !Overlaps(o.Start, o.End, from, to) || !s.Occurs(o.RecurrenceID) {
			continue
		}
		out = append(out, s.occurrence(o.RecurrenceID, duration))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, truncated, nil
}

func (s *Series) occurrence(date time.Time, duration time.Duration) Occurrence {
	if o, ok := s.override(date); ok {
		return Occurrence{
			Date:     date,
			Title:    o.Title,
			Location: o.Location,
			Start:    o.Start,
			End:      o.End,
		}
	}
	return Occurrence{
		Date:     date,
		Title:    s.Title,
		Location: s.Location,
		Start:    date,
		End:      date.Add(duration),
	}
}
