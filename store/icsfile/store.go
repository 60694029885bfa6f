// Package icsfile keeps calendars as iCalendar files in a directory, one
// VCALENDAR per file, the way desktop calendar apps export them.
package icsfile

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/memory"
	"github.com/quesurifn/calendar-adapter/store/recur"
)

const fileExt = ".ics"

// Store is a memory.Store whose calendars are written back to their file after
// every change.
type Store struct {
	*memory.Store

	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]string // calendar id -> path
}

// Open loads every .ics file in dir, creating dir when missing.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create calendar directory")
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		files:  make(map[string]string),
	}
	s.Store = memory.New(memory.WithCommit(s.write), memory.WithLogger(logger))

	paths, err := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrap(err, "list calendar files")
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		ref, series, err := Decode(data, strings.TrimSuffix(filepath.Base(path), fileExt), logger)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		s.files[ref.ID] = path
		s.AddCalendar(ref)
		s.Load(series...)
		logger.Info("loaded calendar file",
			zap.String("path", path),
			zap.String("title", ref.Title),
			zap.Int("series", len(series)),
		)
	}

	return s, nil
}

// RequestAccess grants access when the calendar directory is writable.
func (s *Store) RequestAccess(done func(granted bool, err error)) {
	go func() {
		probe, err := os.CreateTemp(s.dir, ".access-*")
		if err != nil {
			done(false, errors.Wrap(err, "calendar directory is not writable"))
			return
		}
		probe.Close()
		os.Remove(probe.Name())
		done(true, nil)
	}()
}

func (s *Store) path(cal calendar.CalendarRef) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.files[cal.ID]; ok {
		return p
	}
	p := filepath.Join(s.dir, fileName(cal.Title)+fileExt)
	if _, err := os.Stat(p); err == nil {
		p = filepath.Join(s.dir, fileName(cal.Title)+"-"+cal.ID+fileExt)
	}
	s.files[cal.ID] = p
	return p
}

// write is the memory.CommitFunc of the store.
func (s *Store) write(_ context.Context, cal calendar.CalendarRef, series []*recur.Series) error {
	path := s.path(cal)
	if err := writeAtomic(path, []byte(Encode(cal, series))); err != nil {
		return err
	}
	s.logger.Debug("wrote calendar file", zap.String("path", path), zap.Int("series", len(series)))
	return nil
}

// writeAtomic writes to a temp file in the same directory, then renames it
// over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".calendar-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmpName, path), "replace calendar file")
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

func fileName(title string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if name == "" {
		return "calendar"
	}
	return name
}
