package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/recur"
)

func at(d, h int) time.Time {
	return time.Date(2025, time.March, d, h, 0, 0, 0, time.UTC)
}

func setup(t *testing.T, opts ...Option) (*Store, calendar.CalendarRef) {
	t.Helper()
	s := New(append([]Option{WithCalendars("Work", "Home")}, opts...)...)
	cals, err := s.Calendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 2)
	return s, cals[0]
}

func save(t *testing.T, s *Store, cal calendar.CalendarRef, title string, start, end time.Time, rule string) *calendar.Event {
	t.Helper()
	e := s.NewEvent(cal)
	e.Title, e.Start, e.End, e.Recurrence = title, start, end, rule
	require.NoError(t, s.SaveEvent(context.Background(), e))
	require.NotEmpty(t, e.ID)
	return e
}

func TestStore_RequestAccess(t *testing.T) {
	done := make(chan bool, 1)
	New().RequestAccess(func(granted bool, err error) {
		assert.NoError(t, err)
		done <- granted
	})
	assert.True(t, <-done)

	reason := errors.New("user said no")
	New(WithAccessDenied(reason)).RequestAccess(func(granted bool, err error) {
		assert.Equal(t, reason, err)
		done <- granted
	})
	assert.False(t, <-done)
}

func TestStore_SaveAndLookup(t *testing.T) {
	s, cal := setup(t)
	ctx := context.Background()

	e := s.NewEvent(cal)
	assert.Empty(t, e.ID)
	assert.Equal(t, cal.ID, e.CalendarID)

	e.Title, e.Location = "Review", "Room 204"
	e.Start, e.End = at(3, 9).Add(300*time.Millisecond), at(3, 10)
	require.NoError(t, s.SaveEvent(ctx, e))
	assert.Equal(t, at(3, 9), e.Start)

	got, err := s.EventWithIdentifier(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.Title)
	assert.Equal(t, "Room 204", got.Location)
	assert.Equal(t, at(3, 9), got.Start)
	assert.True(t, got.OccurrenceDate.IsZero())

	_, err = s.EventWithIdentifier(ctx, "missing")
	assert.ErrorIs(t, err, calendar.ErrEventNotFound)
}

func TestStore_SaveRejectsInvalidInterval(t *testing.T) {
	s, cal := setup(t)

	e := s.NewEvent(cal)
	e.Title, e.Start, e.End = "Backwards", at(3, 10), at(3, 9)
	err := s.SaveEvent(context.Background(), e)
	assert.ErrorIs(t, err, recur.ErrInvalidInterval)
	assert.Empty(t, s.Series(cal.ID))
}

func TestStore_EventsMatching(t *testing.T) {
	s, cal := setup(t)
	ctx := context.Background()

	cals, _ := s.Calendars(ctx)
	home := cals[1]

	save(t, s, cal, "Early", at(1, 9), at(1, 10), "")
	save(t, s, cal, "Inside", at(5, 9), at(5, 10), "")
	save(t, s, home, "Other calendar", at(5, 9), at(5, 10), "")
	save(t, s, cal, "Daily", at(4, 8), at(4, 9), "FREQ=DAILY;COUNT=3")

	events, err := s.EventsMatching(ctx, calendar.NewPredicate(at(4, 0), at(7, 0), cal))
	require.NoError(t, err)

	titles := make([]string, 0, len(events))
	for _, e := range events {
		titles = append(titles, e.Title)
		assert.Equal(t, cal.ID, e.CalendarID)
		assert.False(t, e.OccurrenceDate.IsZero())
	}
	assert.Equal(t, []string{"Inside", "Daily", "Daily", "Daily"}, titles)

	_, err = s.EventsMatching(ctx, calendar.NewPredicate(at(4, 0), at(7, 0), calendar.CalendarRef{ID: "gone"}))
	assert.ErrorIs(t, err, calendar.ErrUnknownCalendar)
}

func TestStore_SaveOccurrenceCreatesOverride(t *testing.T) {
	s, cal := setup(t)
	ctx := context.Background()

	series := save(t, s, cal, "Daily", at(4, 8), at(4, 9), "FREQ=DAILY;COUNT=3")

	events, err := s.EventsMatching(ctx, calendar.NewPredicate(at(5, 0), at(5, 23), cal))
	require.NoError(t, err)
	require.Len(t, events, 1)

	occ := events[0]
	require.True(t, occ.IsOccurrence())
	occ.Title = "Daily (moved)"
	occ.Start, occ.End = at(5, 11), at(5, 12)
	require.NoError(t, s.SaveEvent(ctx, occ))
	assert.Equal(t, series.ID, occ.ID)

	events, err = s.EventsMatching(ctx, calendar.NewPredicate(at(4, 0), at(7, 0), cal))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Daily", events[0].Title)
	assert.Equal(t, "Daily (moved)", events[1].Title)
	assert.Equal(t, at(5, 11), events[1].Start)
	assert.Equal(t, "Daily", events[2].Title)

	got, err := s.EventWithIdentifier(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily", got.Title)
}

func TestStore_SaveSeriesResetsExceptions(t *testing.T) {
	s, cal := setup(t)
	ctx := context.Background()

	e := save(t, s, cal, "Daily", at(4, 8), at(4, 9), "FREQ=DAILY;COUNT=3")
	events, _ := s.EventsMatching(ctx, calendar.NewPredicate(at(5, 0), at(5, 23), cal))
	require.NoError(t, s.RemoveEvent(ctx, events[0]))
	require.Len(t, s.Series(cal.ID)[0].ExDates, 1)

	got, err := s.EventWithIdentifier(ctx, e.ID)
	require.NoError(t, err)
	got.Title = "Renamed"
	require.NoError(t, s.SaveEvent(ctx, got))
	assert.Len(t, s.Series(cal.ID)[0].ExDates, 1)

	got.Start, got.End = at(4, 7), at(4, 8)
	require.NoError(t, s.SaveEvent(ctx, got))
	assert.Empty(t, s.Series(cal.ID)[0].ExDates)
}

func TestStore_Remove(t *testing.T) {
	s, cal := setup(t)
	ctx := context.Background()

	single := save(t, s, cal, "Once", at(2, 9), at(2, 10), "")
	daily := save(t, s, cal, "Daily", at(4, 8), at(4, 9), "FREQ=DAILY;COUNT=3")

	events, err := s.EventsMatching(ctx, calendar.NewPredicate(at(5, 0), at(5, 23), cal))
	require.NoError(t, err)
	require.NoError(t, s.RemoveEvent(ctx, events[0]))

	events, err = s.EventsMatching(ctx, calendar.NewPredicate(at(1, 0), at(9, 0), cal))
	require.NoError(t, err)
	assert.Len(t, events, 3)

	got, err := s.EventWithIdentifier(ctx, daily.ID)
	require.NoError(t, err)
	require.NoError(t, s.RemoveEvent(ctx, got))
	require.NoError(t, s.RemoveEvent(ctx, single))

	events, err = s.EventsMatching(ctx, calendar.NewPredicate(at(1, 0), at(9, 0), cal))
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, s.RemoveEvent(ctx, single), calendar.ErrEventNotFound)
}

func TestStore_CommitFailureLeavesStateUnchanged(t *testing.T) {
	boom := errors.New("disk full")
	fail := false
	var commits int
	s, cal := setup(t, WithCommit(func(ctx context.Context, cal calendar.CalendarRef, series []*recur.Series) error {
		commits++
		if fail {
			return boom
		}
		return nil
	}))

	save(t, s, cal, "Kept", at(2, 9), at(2, 10), "")
	assert.Equal(t, 1, commits)

	fail = true
	e := s.NewEvent(cal)
	e.Title, e.Start, e.End = "Lost", at(3, 9), at(3, 10)
	err := s.SaveEvent(context.Background(), e)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, e.ID)

	series := s.Series(cal.ID)
	require.Len(t, series, 1)
	assert.Equal(t, "Kept", series[0].Title)
}

func TestStore_EnsureCalendar(t *testing.T) {
	var committed []string
	s := New(WithCommit(func(ctx context.Context, cal calendar.CalendarRef, series []*recur.Series) error {
		committed = append(committed, cal.Title)
		return nil
	}))
	ctx := context.Background()

	ref, err := s.EnsureCalendar(ctx, "Personal")
	require.NoError(t, err)
	assert.Equal(t, "Personal", ref.Title)

	again, err := s.EnsureCalendar(ctx, "Personal")
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Equal(t, []string{"Personal"}, committed)
}

func TestStore_CanceledContext(t *testing.T) {
	s, cal := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.EventsMatching(ctx, calendar.NewPredicate(at(1, 0), at(2, 0), cal))
	assert.ErrorIs(t, err, context.Canceled)
}
