// Package memory is an in-process calendar store. It also carries the
// bookkeeping of the file and SQL drivers, which persist through a CommitFunc.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/recur"
)

// CommitFunc persists the complete series list of one calendar after a change.
// A failed commit leaves the store unchanged.
type CommitFunc func(ctx context.Context, cal calendar.CalendarRef, series []*recur.Series) error

// Store implements calendar.Store on top of in-memory series.
type Store struct {
	mu        sync.RWMutex
	calendars []calendar.CalendarRef
	series    []*recur.Series

	logger         *zap.Logger
	commit         CommitFunc
	denied         error
	maxOccurrences int
}

type Option func(*Store)

// WithCalendars creates calendars with the given titles.
func WithCalendars(titles ...string) Option {
	return func(s *Store) {
		for _, title := range titles {
			s.calendars = append(s.calendars, calendar.CalendarRef{ID: uuid.NewString(), Title: title})
		}
	}
}

// WithCommit persists every change through fn.
func WithCommit(fn CommitFunc) Option {
	return func(s *Store) {
		s.commit = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithAccessDenied makes RequestAccess deny with reason.
func WithAccessDenied(reason error) Option {
	return func(s *Store) {
		s.denied = reason
	}
}

// WithMaxOccurrences caps the expansion of each series.
func WithMaxOccurrences(n int) Option {
	return func(s *Store) {
		s.maxOccurrences = n
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		logger:         zap.NewNop(),
		maxOccurrences: recur.DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddCalendar registers a calendar without committing anything. Loaders use it
// to restore persisted state.
func (s *Store) AddCalendar(ref calendar.CalendarRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars = append(s.calendars, ref)
}

// EnsureCalendar returns the calendar titled title, creating and committing an
// empty one when none exists.
func (s *Store) EnsureCalendar(ctx context.Context, title string) (calendar.CalendarRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cal := range s.calendars {
		if cal.Title == title {
			return cal, nil
		}
	}

	cal := calendar.CalendarRef{ID: uuid.NewString(), Title: title}
	if s.commit != nil {
		if err := s.commit(ctx, cal, nil); err != nil {
			return calendar.CalendarRef{}, errors.Wrapf(err, "create calendar %q", title)
		}
	}
	s.calendars = append(s.calendars, cal)
	s.logger.Info("created calendar", zap.String("title", title), zap.String("id", cal.ID))
	return cal, nil
}

// Load restores persisted series without committing them.
func (s *Store) Load(series ...*recur.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ser := range series {
		s.series = append(s.series, normalize(ser.Clone()))
	}
}

// Series returns a copy of the series held for a calendar.
func (s *Store) Series(calendarID string) []*recur.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return seriesOf(s.series, calendarID)
}

func (s *Store) RequestAccess(done func(granted bool, err error)) {
	reason := s.denied
	go done(reason == nil, reason)
}

func (s *Store) Calendars(ctx context.Context) ([]calendar.CalendarRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]calendar.CalendarRef(nil), s.calendars...), nil
}

func (s *Store) EventsMatching(ctx context.Context, p calendar.Predicate) ([]*calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range p.CalendarIDs {
		if _, ok := s.calendar(id); !ok {
			return nil, errors.Wrapf(calendar.ErrUnknownCalendar, "calendar %s", id)
		}
	}

	events := make([]*calendar.Event, 0)
	for _, ser := range s.series {
		if !p.Scoped(ser.CalendarID) {
			continue
		}
		occs, truncated, err := ser.Expand(p.Start, p.End, s.maxOccurrences)
		if err != nil {
			s.logger.Error("skipping series with invalid recurrence", zap.String("uid", ser.UID), zap.Error(err))
			continue
		}
		if truncated {
			s.logger.Warn("series expansion truncated", zap.String("uid", ser.UID), zap.Int("cap", s.maxOccurrences))
		}
		for _, occ := range occs {
			if p.Matches(occ.Start, occ.End) {
				events = append(events, occurrenceEvent(ser, occ))
			}
		}
	}
	return events, nil
}

func (s *Store) EventWithIdentifier(ctx context.Context, id string) (*calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	if i < 0 {
		return nil, calendar.ErrEventNotFound
	}
	return seriesEvent(s.series[i]), nil
}

func (s *Store) NewEvent(cal calendar.CalendarRef) *calendar.Event {
	return &calendar.Event{CalendarID: cal.ID}
}

func (s *Store) SaveEvent(ctx context.Context, e *calendar.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendar(e.CalendarID)
	if !ok {
		return errors.Wrapf(calendar.ErrUnknownCalendar, "calendar %s", e.CalendarID)
	}

	next := append([]*recur.Series(nil), s.series...)
	var saved *recur.Series

	if e.ID == "" {
		saved = normalize(&recur.Series{
			UID:        uuid.NewString(),
			CalendarID: cal.ID,
			Title:      e.Title,
			Location:   e.Location,
			Start:      e.Start,
			End:        e.End,
			RRule:      e.Recurrence,
		})
		next = append(next, saved)
	} else {
		i := s.index(e.ID)
		if i < 0 {
			return calendar.ErrEventNotFound
		}
		saved = next[i].Clone()
		if err := apply(saved, e); err != nil {
			return err
		}
		next[i] = saved
	}

	if err := saved.Validate(); err != nil {
		return err
	}
	if err := s.persist(ctx, cal, next); err != nil {
		return err
	}

	e.ID = saved.UID
	e.Start, e.End = truncate(e.Start), truncate(e.End)
	return nil
}

func (s *Store) RemoveEvent(ctx context.Context, e *calendar.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(e.ID)
	if i < 0 {
		return calendar.ErrEventNotFound
	}
	cal, ok := s.calendar(s.series[i].CalendarID)
	if !ok {
		return errors.Wrapf(calendar.ErrUnknownCalendar, "calendar %s", s.series[i].CalendarID)
	}

	next := append([]*recur.Series(nil), s.series...)
	if e.IsOccurrence() && next[i].Recurring() {
		ser := next[i].Clone()
		ser.Exclude(e.OccurrenceDate)
		next[i] = ser
	} else {
		next = append(next[:i], next[i+1:]...)
	}

	return s.persist(ctx, cal, next)
}

func (s *Store) Close() error {
	return nil
}

// persist commits the calendar's part of next and swaps it in. Callers hold
// the write lock.
func (s *Store) persist(ctx context.Context, cal calendar.CalendarRef, next []*recur.Series) error {
	if s.commit != nil {
		if err := s.commit(ctx, cal, seriesOf(next, cal.ID)); err != nil {
			return errors.Wrapf(err, "commit calendar %q", cal.Title)
		}
	}
	s.series = next
	return nil
}

func (s *Store) calendar(id string) (calendar.CalendarRef, bool) {
	for _, cal := range s.calendars {
		if cal.ID == id {
			return cal, true
		}
	}
	return calendar.CalendarRef{}, false
}

func (s *Store) index(uid string) int {
	for i, ser := range s.series {
		if ser.UID == uid {
			return i
		}
	}
	return -1
}

// apply copies the fields of e onto ser. An occurrence of a recurring series
// becomes an override; anything else edits the series itself.
func apply(ser *recur.Series, e *calendar.Event) error {
	if !e.OccurrenceDate.IsZero() && ser.Recurring() {
		date := e.OccurrenceDate.UTC()
		if !ser.Occurs(date) {
			return errors.Errorf("no occurrence of %s starts at %s", ser.UID, date.Format(time.RFC3339))
		}
		ser.SetOverride(recur.Override{
			RecurrenceID: date,
			Title:        e.Title,
			Location:     e.Location,
			Start:        truncate(e.Start),
			End:          truncate(e.End),
		})
		return nil
	}

	start := truncate(e.Start)
	if !start.Equal(ser.Start) || e.Recurrence != ser.RRule {
		// Exceptions are keyed by original dates the new rule may not produce.
		ser.ExDates, ser.Overrides = nil, nil
	}
	ser.Title = e.Title
	ser.Location = e.Location
	ser.Start = start
	ser.End = truncate(e.End)
	ser.RRule = e.Recurrence
	return nil
}

func normalize(ser *recur.Series) *recur.Series {
	ser.Start, ser.End = truncate(ser.Start), truncate(ser.End)
	for i := range ser.ExDates {
		ser.ExDates[i] = truncate(ser.ExDates[i])
	}
	for i := range ser.Overrides {
		o := &ser.Overrides[i]
		o.RecurrenceID, o.Start, o.End = truncate(o.RecurrenceID), truncate(o.Start), truncate(o.End)
	}
	return ser
}

// truncate drops sub-second precision, which recurrence rules do not keep.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func seriesOf(all []*recur.Series, calendarID string) []*recur.Series {
	out := make([]*recur.Series, 0)
	for _, ser := range all {
		if ser.CalendarID == calendarID {
			out = append(out, ser.Clone())
		}
	}
	return out
}

func seriesEvent(ser *recur.Series) *calendar.Event {
	return &calendar.Event{
		ID:         ser.UID,
		CalendarID: ser.CalendarID,
		Title:      ser.Title,
		Location:   ser.Location,
		Start:      ser.Start,
		End:        ser.End,
		Recurrence: ser.RRule,
	}
}

func occurrenceEvent(ser *recur.Series, occ recur.Occurrence) *calendar.Event {
	return &calendar.Event{
		ID:             ser.UID,
		CalendarID:     ser.CalendarID,
		Title:          occ.Title,
		Location:       occ.Location,
		Start:          occ.Start,
		End:            occ.End,
		Recurrence:     ser.RRule,
		OccurrenceDate: occ.Date,
	}
}
