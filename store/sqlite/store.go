// Package sqlite keeps calendars in a SQLite database through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/memory"
	"github.com/quesurifn/calendar-adapter/store/recur"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS calendar (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS series (
	uid TEXT PRIMARY KEY,
	calendar_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL,
	rrule TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (calendar_id) REFERENCES calendar(id)
);

CREATE TABLE IF NOT EXISTS series_exdate (
	series_uid TEXT NOT NULL,
	exdate TEXT NOT NULL,
	FOREIGN KEY (series_uid) REFERENCES series(uid)
);

CREATE TABLE IF NOT EXISTS series_override (
	series_uid TEXT NOT NULL,
	recurrence_id TEXT NOT NULL,
	title TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL,
	PRIMARY KEY (series_uid, recurrence_id),
	FOREIGN KEY (series_uid) REFERENCES series(uid)
);

CREATE INDEX IF NOT EXISTS idx_series_calendar ON series(calendar_id, position);
`

// Store is a memory.Store written through to SQLite, one transaction per
// change.
type Store struct {
	*memory.Store

	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and loads every calendar.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// A single connection keeps PRAGMAs and transactions on one handle.
	db.SetMaxOpenConns(1)

	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}
	s.Store = memory.New(memory.WithCommit(s.commit), memory.WithLogger(logger))

	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitDB creates the schema.
func InitDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return errors.Wrap(err, "enable foreign keys")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create schema")
	}
	return nil
}

// RequestAccess grants access when the database answers a ping.
func (s *Store) RequestAccess(done func(granted bool, err error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			done(false, errors.Wrap(err, "database unavailable"))
			return
		}
		done(true, nil)
	}()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM calendar ORDER BY rowid`)
	if err != nil {
		return errors.Wrap(err, "load calendars")
	}
	var cals []calendar.CalendarRef
	for rows.Next() {
		var ref calendar.CalendarRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan calendar")
		}
		cals = append(cals, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "load calendars")
	}

	for _, ref := range cals {
		series, err := s.loadSeries(ctx, ref.ID)
		if err != nil {
			return err
		}
		s.AddCalendar(ref)
		s.Load(series...)
		s.logger.Info("loaded calendar", zap.String("title", ref.Title), zap.Int("series", len(series)))
	}
	return nil
}

func (s *Store) loadSeries(ctx context.Context, calendarID string) ([]*recur.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, title, location, start_at, end_at, rrule
		 FROM series WHERE calendar_id = ? ORDER BY position`, calendarID)
	if err != nil {
		return nil, errors.Wrap(err, "load series")
	}
	defer rows.Close()

	var out []*recur.Series
	for rows.Next() {
		ser := &recur.Series{CalendarID: calendarID}
		var start, end string
		if err := rows.Scan(&ser.UID, &ser.Title, &ser.Location, &start, &end, &ser.RRule); err != nil {
			return nil, errors.Wrap(err, "scan series")
		}
		if ser.Start, err = time.Parse(timeLayout, start); err != nil {
			return nil, errors.Wrapf(err, "series %s start", ser.UID)
		}
		if ser.End, err = time.Parse(timeLayout, end); err != nil {
			return nil, errors.Wrapf(err, "series %s end", ser.UID)
		}
		out = append(out, ser)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "load series")
	}

	for _, ser := range out {
		if err := s.loadExceptions(ctx, ser); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadExceptions(ctx context.Context, ser *recur.Series) error {
	rows, err := s.db.QueryContext(ctx, `SELECT exdate FROM series_exdate WHERE series_uid = ?`, ser.UID)
	if err != nil {
		return errors.Wrap(err, "load exdates")
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan exdate")
		}
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			rows.Close()
			return errors.Wrapf(err, "series %s exdate", ser.UID)
		}
		ser.ExDates = append(ser.ExDates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "load exdates")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT recurrence_id, title, location, start_at, end_at
		 FROM series_override WHERE series_uid = ? ORDER BY recurrence_id`, ser.UID)
	if err != nil {
		return errors.Wrap(err, "load overrides")
	}
	defer rows.Close()

	for rows.Next() {
		var o recur.Override
		var rid, start, end string
		if err := rows.Scan(&rid, &o.Title, &o.Location, &start, &end); err != nil {
			return errors.Wrap(err, "scan override")
		}
		if o.RecurrenceID, err = time.Parse(timeLayout, rid); err != nil {
			return errors.Wrapf(err, "series %s override", ser.UID)
		}
		if o.Start, err = time.Parse(timeLayout, start); err != nil {
			return errors.Wrapf(err, "series %s override start", ser.UID)
		}
		if o.End, err = time.Parse(timeLayout, end); err != nil {
			return errors.Wrapf(err, "series %s override end", ser.UID)
		}
		ser.Overrides = append(ser.Overrides, o)
	}
	return errors.Wrap(rows.Err(), "load overrides")
}

// commit is the memory.CommitFunc of the store: it replaces every row of the
// calendar in one transaction.
func (s *Store) commit(ctx context.Context, cal calendar.CalendarRef, series []*recur.Series) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO calendar (id, title) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title`, cal.ID, cal.Title); err != nil {
		return errors.Wrap(err, "save calendar")
	}

	for _, stmt := range []string{
		`DELETE FROM series_exdate WHERE series_uid IN (SELECT uid FROM series WHERE calendar_id = ?)`,
		`DELETE FROM series_override WHERE series_uid IN (SELECT uid FROM series WHERE calendar_id = ?)`,
		`DELETE FROM series WHERE calendar_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, cal.ID); err != nil {
			return errors.Wrap(err, "clear calendar")
		}
	}

	for pos, ser := range series {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO series (uid, calendar_id, position, title, location, start_at, end_at, rrule)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ser.UID, cal.ID, pos, ser.Title, ser.Location,
			formatTime(ser.Start), formatTime(ser.End), ser.RRule); err != nil {
			return errors.Wrapf(err, "save series %s", ser.UID)
		}
		for _, ex := range ser.ExDates {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO series_exdate (series_uid, exdate) VALUES (?, ?)`,
				ser.UID, formatTime(ex)); err != nil {
				return errors.Wrapf(err, "save exdate of %s", ser.UID)
			}
		}
		for _, o := range ser.Overrides {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO series_override (series_uid, recurrence_id, title, location, start_at, end_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				ser.UID, formatTime(o.RecurrenceID), o.Title, o.Location,
				formatTime(o.Start), formatTime(o.End)); err != nil {
				return errors.Wrapf(err, "save override of %s", ser.UID)
			}
		}
	}

	return errors.Wrap(tx.Commit(), "commit transaction")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
