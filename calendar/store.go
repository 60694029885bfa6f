package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/quesurifn/calendar-adapter/store/recur"
)

var (
	// ErrEventNotFound is returned by a Store when no event carries the identifier.
	ErrEventNotFound = errors.New("event not found")
	// ErrUnknownCalendar is returned by a Store when a predicate or event names a
	// calendar it does not hold.
	ErrUnknownCalendar = errors.New("unknown calendar")
)

// CalendarRef is an opaque handle to one calendar held by a Store.
type CalendarRef struct {
	ID    string
	Title string
}

// Event is the store-owned shape of an event. Events returned by EventsMatching
// are occurrences and carry the original start of the occurrence in
// OccurrenceDate; events returned by EventWithIdentifier describe the whole
// series and leave it zero.
type Event struct {
	ID         string
	CalendarID string
	Title      string
	Location   string
	Start      time.Time
	End        time.Time

	// Recurrence is an RRULE value ("FREQ=WEEKLY;COUNT=4"), empty for single events.
	Recurrence     string
	OccurrenceDate time.Time
}

// IsOccurrence reports whether saving or removing e affects only one
// occurrence of a recurring series.
func (e *Event) IsOccurrence() bool {
	return e.Recurrence != "" && !e.OccurrenceDate.IsZero()
}

// Predicate selects the events of some calendars whose interval intersects
// [Start, End].
type Predicate struct {
	Start       time.Time
	End         time.Time
	CalendarIDs []string
}

// NewPredicate builds a range predicate scoped to the given calendars.
func NewPredicate(start, end time.Time, cals ...CalendarRef) Predicate {
	p := Predicate{Start: start.UTC(), End: end.UTC()}
	for _, cal := range cals {
		p.CalendarIDs = append(p.CalendarIDs, cal.ID)
	}
	return p
}

// Matches reports whether an event interval intersects the predicate range.
// Zero-length events match when they sit inside the range.
func (p Predicate) Matches(start, end time.Time) bool {
	return recur.Overlaps(start, end, p.Start, p.End)
}

// Scoped reports whether the predicate covers the calendar.
func (p Predicate) Scoped(calendarID string) bool {
	for _, id := range p.CalendarIDs {
		if id == calendarID {
			return true
		}
	}
	return false
}

// Store is the calendar subsystem of record. Implementations own identifiers,
// recurrence and persistence; this package only consults and mutates it.
type Store interface {
	// RequestAccess asks for permission to use the store. The decision is
	// delivered asynchronously to done, exactly once.
	RequestAccess(done func(granted bool, err error))

	// Calendars enumerates every calendar in the store.
	Calendars(ctx context.Context) ([]CalendarRef, error)

	// EventsMatching returns the occurrences selected by p in store order.
	EventsMatching(ctx context.Context, p Predicate) ([]*Event, error)

	// EventWithIdentifier returns the series-level event or ErrEventNotFound.
	EventWithIdentifier(ctx context.Context, id string) (*Event, error)

	// NewEvent allocates an unsaved event in cal. The identifier is assigned by
	// the first SaveEvent.
	NewEvent(cal CalendarRef) *Event

	// SaveEvent commits e. Occurrences are saved as single-occurrence changes.
	SaveEvent(ctx context.Context, e *Event) error

	// RemoveEvent deletes e. Occurrences are removed from their series only.
	RemoveEvent(ctx context.Context, e *Event) error

	Close() error
}
