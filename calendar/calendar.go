package calendar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/store/recur"
)

const (
	DefaultOccurrenceWindow    = 60 * time.Second
	DefaultOccurrenceTolerance = 2 * time.Second
	DefaultLookahead           = 365 * 24 * time.Hour

	// EmptySummary is the summary of a range without events.
	EmptySummary = "No events in this range."
)

// Options configures a Calendar.
type Options struct {
	// Name is the exact title of the target calendar.
	Name string
	// Zone bounds the upcoming window used by keyword and location searches.
	Zone *time.Location
	// Lookahead is the length of the upcoming window.
	Lookahead time.Duration

	// OccurrenceWindow is the half-width of the query around an instanceStart.
	OccurrenceWindow time.Duration
	// OccurrenceTolerance is the maximum distance between a candidate's start
	// and the requested instanceStart.
	OccurrenceTolerance time.Duration

	AccessTimeout time.Duration
	// CacheRef keeps the resolved calendar between requests.
	CacheRef bool

	Now func() time.Time
}

// Calendar adapts one named calendar of a Store to the operations exposed over
// HTTP.
type Calendar struct {
	Logger *zap.Logger

	store  Store
	access *Access
	opts   Options

	mu  sync.Mutex
	ref *CalendarRef
}

// Draft holds the fields of an event to create.
type Draft struct {
	Title      string
	Location   string
	Start      time.Time
	End        time.Time
	Recurrence string
}

// EventUpdate holds the fields of an update request. Absent options leave the
// event untouched.
type EventUpdate struct {
	ID            string
	InstanceStart mo.Option[time.Time]

	Title    mo.Option[string]
	Location mo.Option[string]
	Start    mo.Option[time.Time]
	End      mo.Option[time.Time]
}

func New(store Store, opts Options, logger *zap.Logger) *Calendar {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.OccurrenceWindow <= 0 {
		opts.OccurrenceWindow = DefaultOccurrenceWindow
	}
	if opts.OccurrenceTolerance <= 0 {
		opts.OccurrenceTolerance = DefaultOccurrenceTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Calendar{
		Logger: logger,
		store:  store,
		access: NewAccess(store, opts.AccessTimeout),
		opts:   opts,
	}
}

// Name returns the configured target calendar title.
func (c *Calendar) Name() string {
	return c.opts.Name
}

// Close releases the store.
func (c *Calendar) Close() error {
	return c.store.Close()
}

// Resolve waits for store access and finds the target calendar by exact title.
func (c *Calendar) Resolve(ctx context.Context) (CalendarRef, error) {
	if err := c.access.Await(ctx); err != nil {
		return CalendarRef{}, err
	}

	if c.opts.CacheRef {
		c.mu.Lock()
		ref := c.ref
		c.mu.Unlock()
		if ref != nil {
			return *ref, nil
		}
	}

	cals, err := c.store.Calendars(ctx)
	if err != nil {
		return CalendarRef{}, c.fault("list calendars", err)
	}

	for _, cal := range cals {
		if cal.Title == c.opts.Name {
			if c.opts.CacheRef {
				c.mu.Lock()
				ref := cal
				c.ref = &ref
				c.mu.Unlock()
			}
			return cal, nil
		}
	}

	return CalendarRef{}, &Error{
		Kind:    KindCalendarNotFound,
		Message: fmt.Sprintf("Calendar %q not found", c.opts.Name),
	}
}

// fault converts a store failure into a StoreOperation error and drops the
// cached calendar when the store no longer knows it.
func (c *Calendar) fault(op string, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, ErrUnknownCalendar) {
		c.mu.Lock()
		c.ref = nil
		c.mu.Unlock()
	}
	c.Logger.Error("calendar store call failed", zap.String("op", op), zap.Error(err))
	return storeError(err)
}

func (c *Calendar) query(ctx context.Context, cal CalendarRef, start, end time.Time) ([]*Event, error) {
	events, err := c.store.EventsMatching(ctx, NewPredicate(start, end, cal))
	if err != nil {
		return nil, c.fault("events matching", err)
	}
	return events, nil
}

// ListEvents returns the events of the target calendar intersecting
// [start, end], ordered by start.
func (c *Calendar) ListEvents(ctx context.Context, start, end time.Time) ([]*Event, error) {
	if end.Before(start) {
		return nil, Invalid("start must not be after end")
	}

	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	events, err := c.query(ctx, cal, start, end)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// Summarize renders one "- <start>: <title>" line per event in [start, end].
func (c *Calendar) Summarize(ctx context.Context, start, end time.Time) (string, error) {
	events, err := c.ListEvents(ctx, start, end)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return EmptySummary, nil
	}

	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- %s: %s", FormatTime(e.Start), e.Title))
	}
	return strings.Join(lines, "\n"), nil
}

// CreateEvent asks the store for a new event in the target calendar and saves d
// into it.
func (c *Calendar) CreateEvent(ctx context.Context, d Draft) (*Event, error) {
	if d.Recurrence != "" {
		if _, err := recur.ParseRule(d.Recurrence); err != nil {
			return nil, Invalid("Invalid recurrence: %v", err)
		}
	}

	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	e := c.store.NewEvent(cal)
	e.Title = d.Title
	e.Start = d.Start.UTC()
	e.End = d.End.UTC()
	if d.Location != "" {
		e.Location = d.Location
	}
	e.Recurrence = d.Recurrence

	if err := c.store.SaveEvent(ctx, e); err != nil {
		return nil, c.fault("save event", err)
	}
	return e, nil
}

// Event returns the series-level event with the identifier if it belongs to
// the target calendar.
func (c *Calendar) Event(ctx context.Context, id string) (*Event, error) {
	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.eventIn(ctx, cal, id)
}

func (c *Calendar) eventIn(ctx context.Context, cal CalendarRef, id string) (*Event, error) {
	e, err := c.store.EventWithIdentifier(ctx, id)
	if errors.Is(err, ErrEventNotFound) || (err == nil && e.CalendarID != cal.ID) {
		return nil, notFoundError("Event not found")
	}
	if err != nil {
		return nil, c.fault("event with identifier", err)
	}
	return e, nil
}

// DeleteEvent removes the event, or the whole series, with the identifier.
func (c *Calendar) DeleteEvent(ctx context.Context, id string) error {
	cal, err := c.Resolve(ctx)
	if err != nil {
		return err
	}

	e, err := c.eventIn(ctx, cal, id)
	if err != nil {
		return err
	}

	if err := c.store.RemoveEvent(ctx, e); err != nil {
		return c.fault("remove event", err)
	}
	return nil
}

// UpdateEvent applies u to the event with u.ID, or to the occurrence starting
// at u.InstanceStart when given.
func (c *Calendar) UpdateEvent(ctx context.Context, u EventUpdate) (*Event, error) {
	if title, ok := u.Title.Get(); ok && title == "" {
		return nil, Invalid("title must not be empty")
	}

	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	var e *Event
	if at, ok := u.InstanceStart.Get(); ok {
		e, err = c.FindOccurrence(ctx, cal, at)
	} else {
		e, err = c.eventIn(ctx, cal, u.ID)
	}
	if err != nil {
		return nil, err
	}

	if v, ok := u.Title.Get(); ok {
		e.Title = v
	}
	if v, ok := u.Start.Get(); ok {
		e.Start = v.UTC()
	}
	if v, ok := u.End.Get(); ok {
		e.End = v.UTC()
	}
	if v, ok := u.Location.Get(); ok {
		e.Location = v
	}

	if err := c.store.SaveEvent(ctx, e); err != nil {
		return nil, c.fault("save event", err)
	}
	return e, nil
}

// FindOccurrence returns the first event, in store order, of the calendar whose
// start lies within the tolerance of at. Only the window around at is queried.
func (c *Calendar) FindOccurrence(ctx context.Context, cal CalendarRef, at time.Time) (*Event, error) {
	candidates, err := c.query(ctx, cal, at.Add(-c.opts.OccurrenceWindow), at.Add(c.opts.OccurrenceWindow))
	if err != nil {
		return nil, err
	}

	target := epochSeconds(at)
	tolerance := c.opts.OccurrenceTolerance.Seconds()
	for _, e := range candidates {
		if math.Abs(epochSeconds(e.Start)-target) < tolerance {
			return e, nil
		}
	}
	return nil, notFoundError("Occurrence not found")
}

// upcoming returns the search window of keyword and location lookups: from now
// to the end of the local day reached after the lookahead.
func (c *Calendar) upcoming() (time.Time, time.Time) {
	now := c.opts.Now()
	last := now.Add(c.opts.Lookahead).In(c.opts.Zone)
	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, c.opts.Zone)
	return now, end
}

// NextEvent returns the earliest upcoming event whose title contains keyword,
// case-insensitively. Ties keep the first event in store order.
func (c *Calendar) NextEvent(ctx context.Context, keyword string) (*Event, error) {
	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	start, end := c.upcoming()
	events, err := c.query(ctx, cal, start, end)
	if err != nil {
		return nil, err
	}

	kw := strings.ToLower(keyword)
	var next *Event
	for _, e := range events {
		if !strings.Contains(strings.ToLower(e.Title), kw) {
			continue
		}
		if next == nil || e.Start.Before(next.Start) {
			next = e
		}
	}
	if next == nil {
		return nil, notFoundError(fmt.Sprintf("No upcoming events found matching '%s'", kw))
	}
	return next, nil
}

// SearchByLocation returns the upcoming events whose location contains the
// keyword, case-insensitively, in store order.
func (c *Calendar) SearchByLocation(ctx context.Context, location string) ([]*Event, error) {
	cal, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	start, end := c.upcoming()
	events, err := c.query(ctx, cal, start, end)
	if err != nil {
		return nil, err
	}

	kw := strings.ToLower(location)
	matches := make([]*Event, 0)
	for _, e := range events {
		if e.Location != "" && strings.Contains(strings.ToLower(e.Location), kw) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}
