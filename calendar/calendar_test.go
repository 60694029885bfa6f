package calendar_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/memory"
)

var now = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

func jan(d, h int) time.Time {
	return time.Date(2025, time.January, d, h, 0, 0, 0, time.UTC)
}

func newCalendar(t *testing.T, opts calendar.Options, storeOpts ...memory.Option) (*calendar.Calendar, *memory.Store) {
	t.Helper()
	s := memory.New(append([]memory.Option{memory.WithCalendars("Work", "Personal")}, storeOpts...)...)
	if opts.Name == "" {
		opts.Name = "Work"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	return calendar.New(s, opts, nil), s
}

func create(t *testing.T, cal *calendar.Calendar, d calendar.Draft) *calendar.Event {
	t.Helper()
	e, err := cal.CreateEvent(context.Background(), d)
	require.NoError(t, err)
	return e
}

func titles(events []*calendar.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	cal, _ := newCalendar(t, calendar.Options{})
	ref, err := cal.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Work", ref.Title)

	missing, _ := newCalendar(t, calendar.Options{Name: "work"})
	_, err = missing.Resolve(ctx)
	assert.Equal(t, calendar.KindCalendarNotFound, calendar.KindOf(err))
	assert.EqualError(t, err, `Calendar "work" not found`)

	denied, _ := newCalendar(t, calendar.Options{}, memory.WithAccessDenied(errors.New("revoked")))
	_, err = denied.Resolve(ctx)
	assert.Equal(t, calendar.KindPermissionDenied, calendar.KindOf(err))
}

// flakyStore counts calendar lookups and fails the next range query with
// ErrUnknownCalendar on demand.
type flakyStore struct {
	*memory.Store
	lookups atomic.Int32
	unknown atomic.Bool
}

func (s *flakyStore) Calendars(ctx context.Context) ([]calendar.CalendarRef, error) {
	s.lookups.Add(1)
	return s.Store.Calendars(ctx)
}

func (s *flakyStore) EventsMatching(ctx context.Context, p calendar.Predicate) ([]*calendar.Event, error) {
	if s.unknown.CompareAndSwap(true, false) {
		return nil, calendar.ErrUnknownCalendar
	}
	return s.Store.EventsMatching(ctx, p)
}

func TestResolve_CachedRefIsInvalidated(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New(memory.WithCalendars("Work"))}
	cal := calendar.New(s, calendar.Options{Name: "Work", CacheRef: true}, nil)

	for i := 0; i < 3; i++ {
		_, err := cal.Resolve(ctx)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, s.lookups.Load())

	s.unknown.Store(true)
	_, err := cal.ListEvents(ctx, jan(1, 0), jan(2, 0))
	assert.Equal(t, calendar.KindStoreOperation, calendar.KindOf(err))

	_, err = cal.Resolve(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.lookups.Load())
}

func TestResolve_WithoutCache(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New(memory.WithCalendars("Work"))}
	cal := calendar.New(s, calendar.Options{Name: "Work"}, nil)

	for i := 0; i < 3; i++ {
		_, err := cal.Resolve(ctx)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, s.lookups.Load())
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	cal, s := newCalendar(t, calendar.Options{})

	create(t, cal, calendar.Draft{Title: "Late", Start: jan(5, 15), End: jan(5, 16)})
	create(t, cal, calendar.Draft{Title: "Before", Start: jan(2, 9), End: jan(2, 10)})
	create(t, cal, calendar.Draft{Title: "Early", Start: jan(5, 8), End: jan(5, 9)})
	create(t, cal, calendar.Draft{Title: "Straddling", Start: jan(4, 22), End: jan(5, 1)})

	cals, err := s.Calendars(ctx)
	require.NoError(t, err)
	other := s.NewEvent(cals[1])
	other.Title, other.Start, other.End = "Personal", jan(5, 10), jan(5, 11)
	require.NoError(t, s.SaveEvent(ctx, other))

	events, err := cal.ListEvents(ctx, jan(5, 0), jan(6, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"Straddling", "Early", "Late"}, titles(events))

	_, err = cal.ListEvents(ctx, jan(6, 0), jan(5, 0))
	assert.Equal(t, calendar.KindValidation, calendar.KindOf(err))
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	summary, err := cal.Summarize(ctx, jan(5, 0), jan(6, 0))
	require.NoError(t, err)
	assert.Equal(t, "No events in this range.", summary)

	create(t, cal, calendar.Draft{Title: "Lunch", Start: jan(5, 12), End: jan(5, 13)})
	create(t, cal, calendar.Draft{Title: "Standup", Start: jan(5, 9), End: jan(5, 10)})

	summary, err = cal.Summarize(ctx, jan(5, 0), jan(6, 0))
	require.NoError(t, err)
	assert.Equal(t, "- 2025-01-05T09:00:00Z: Standup\n- 2025-01-05T12:00:00Z: Lunch", summary)
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	created := create(t, cal, calendar.Draft{Title: "Review", Location: "Room 204", Start: jan(3, 9), End: jan(3, 10)})
	require.NotEmpty(t, created.ID)

	got, err := cal.Event(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.Title)
	assert.Equal(t, "Room 204", got.Location)

	bare := create(t, cal, calendar.Draft{Title: "No place", Start: jan(3, 11), End: jan(3, 12)})
	got, err = cal.Event(ctx, bare.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Location)
}

func TestCreateEvent_Failures(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	_, err := cal.CreateEvent(ctx, calendar.Draft{Title: "Bad rule", Start: jan(3, 9), End: jan(3, 10), Recurrence: "FREQ=SOMETIMES"})
	assert.Equal(t, calendar.KindValidation, calendar.KindOf(err))

	_, err = cal.CreateEvent(ctx, calendar.Draft{Title: "Backwards", Start: jan(3, 10), End: jan(3, 9)})
	assert.Equal(t, calendar.KindStoreOperation, calendar.KindOf(err))
	assert.EqualError(t, err, "the start date must be before the end date")
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	cal, s := newCalendar(t, calendar.Options{})

	e := create(t, cal, calendar.Draft{Title: "Once", Start: jan(3, 9), End: jan(3, 10)})

	require.NoError(t, cal.DeleteEvent(ctx, e.ID))
	err := cal.DeleteEvent(ctx, e.ID)
	assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err))
	assert.EqualError(t, err, "Event not found")

	cals, err := s.Calendars(ctx)
	require.NoError(t, err)
	other := s.NewEvent(cals[1])
	other.Title, other.Start, other.End = "Not ours", jan(3, 9), jan(3, 10)
	require.NoError(t, s.SaveEvent(ctx, other))

	err = cal.DeleteEvent(ctx, other.ID)
	assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err))
}

func TestDeleteEvent_Series(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	e := create(t, cal, calendar.Draft{Title: "Daily", Start: jan(3, 9), End: jan(3, 10), Recurrence: "FREQ=DAILY;COUNT=5"})
	require.NoError(t, cal.DeleteEvent(ctx, e.ID))

	events, err := cal.ListEvents(ctx, jan(1, 0), jan(31, 0))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdateEvent_ByID(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	e := create(t, cal, calendar.Draft{Title: "Review", Location: "Room 1", Start: jan(3, 9), End: jan(3, 10)})

	updated, err := cal.UpdateEvent(ctx, calendar.EventUpdate{
		ID:    e.ID,
		Title: mo.Some("Design review"),
		End:   mo.Some(jan(3, 11)),
	})
	require.NoError(t, err)
	assert.Equal(t, e.ID, updated.ID)
	assert.Equal(t, "Design review", updated.Title)
	assert.Equal(t, "Room 1", updated.Location)
	assert.Equal(t, jan(3, 9), updated.Start)
	assert.Equal(t, jan(3, 11), updated.End)

	updated, err = cal.UpdateEvent(ctx, calendar.EventUpdate{ID: e.ID, Location: mo.Some("")})
	require.NoError(t, err)
	assert.Equal(t, "", updated.Location)

	_, err = cal.UpdateEvent(ctx, calendar.EventUpdate{ID: "missing", Title: mo.Some("x")})
	assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err))

	_, err = cal.UpdateEvent(ctx, calendar.EventUpdate{ID: e.ID, Title: mo.Some("")})
	assert.Equal(t, calendar.KindValidation, calendar.KindOf(err))
}

func TestUpdateEvent_ByOccurrence(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	series := create(t, cal, calendar.Draft{Title: "Standup", Start: jan(6, 9), End: jan(6, 10), Recurrence: "FREQ=DAILY;COUNT=5"})

	updated, err := cal.UpdateEvent(ctx, calendar.EventUpdate{
		ID:            series.ID,
		InstanceStart: mo.Some(jan(8, 9).Add(time.Second)),
		Title:         mo.Some("Standup (demo)"),
	})
	require.NoError(t, err)
	assert.Equal(t, series.ID, updated.ID)
	assert.Equal(t, jan(8, 9), updated.Start)

	events, err := cal.ListEvents(ctx, jan(6, 0), jan(11, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"Standup", "Standup", "Standup (demo)", "Standup", "Standup"}, titles(events))

	got, err := cal.Event(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", got.Title)
}

func TestUpdateEvent_OccurrenceNotFound(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	series := create(t, cal, calendar.Draft{Title: "Standup", Start: jan(6, 9), End: jan(6, 10), Recurrence: "FREQ=DAILY;COUNT=5"})

	for _, at := range []time.Time{jan(8, 9).Add(2 * time.Second), jan(8, 9).Add(-30 * time.Second), jan(20, 9)} {
		_, err := cal.UpdateEvent(ctx, calendar.EventUpdate{ID: series.ID, InstanceStart: mo.Some(at), Title: mo.Some("x")})
		assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err), at)
		assert.EqualError(t, err, "Occurrence not found")
	}
}

func TestFindOccurrence_FirstMatchWins(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	first := create(t, cal, calendar.Draft{Title: "First", Start: jan(8, 9).Add(time.Second), End: jan(8, 10)})
	create(t, cal, calendar.Draft{Title: "Exact", Start: jan(8, 9), End: jan(8, 10)})

	ref, err := cal.Resolve(ctx)
	require.NoError(t, err)

	got, err := cal.FindOccurrence(ctx, ref, jan(8, 9))
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestNextEvent(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	create(t, cal, calendar.Draft{Title: "Past standup", Start: jan(1, 9), End: jan(1, 10)})
	create(t, cal, calendar.Draft{Title: "Standup T2", Start: jan(9, 9), End: jan(9, 10)})
	t1 := create(t, cal, calendar.Draft{Title: "Team STANDUP T1", Start: jan(3, 9), End: jan(3, 10)})
	create(t, cal, calendar.Draft{Title: "Lunch", Start: jan(2, 12), End: jan(2, 13)})

	got, err := cal.NextEvent(ctx, "standup")
	require.NoError(t, err)
	assert.Equal(t, t1.ID, got.ID)

	_, err = cal.NextEvent(ctx, "Retro")
	assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err))
	assert.EqualError(t, err, "No upcoming events found matching 'retro'")
}

func TestNextEvent_WindowEndsAtLocalMidnight(t *testing.T) {
	ctx := context.Background()
	phoenix := time.FixedZone("MST", -7*3600)
	cal, _ := newCalendar(t, calendar.Options{Zone: phoenix, Lookahead: 24 * time.Hour})

	// now+24h is 05:00 MST on the 2nd, so the window closes at 07:00 UTC on the 3rd.
	create(t, cal, calendar.Draft{Title: "Too late", Start: jan(3, 8), End: jan(3, 9)})
	_, err := cal.NextEvent(ctx, "late")
	assert.Equal(t, calendar.KindNotFound, calendar.KindOf(err))

	inside := create(t, cal, calendar.Draft{Title: "Just in time", Start: jan(3, 6), End: jan(3, 7)})
	got, err := cal.NextEvent(ctx, "time")
	require.NoError(t, err)
	assert.Equal(t, inside.ID, got.ID)
}

func TestSearchByLocation(t *testing.T) {
	ctx := context.Background()
	cal, _ := newCalendar(t, calendar.Options{})

	create(t, cal, calendar.Draft{Title: "A", Location: "Room 204", Start: jan(3, 9), End: jan(3, 10)})
	create(t, cal, calendar.Draft{Title: "B", Start: jan(3, 11), End: jan(3, 12)})
	create(t, cal, calendar.Draft{Title: "C", Location: "Kitchen", Start: jan(4, 9), End: jan(4, 10)})
	create(t, cal, calendar.Draft{Title: "D", Location: "back room", Start: jan(5, 9), End: jan(5, 10)})
	create(t, cal, calendar.Draft{Title: "E", Location: "Room 1", Start: jan(1, 8), End: jan(1, 9)})

	events, err := cal.SearchByLocation(ctx, "ROOM")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, titles(events))

	events, err = cal.SearchByLocation(ctx, "garage")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
