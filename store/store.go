// Package store opens the calendar store driver selected by configuration.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/icsfile"
	"github.com/quesurifn/calendar-adapter/store/memory"
	"github.com/quesurifn/calendar-adapter/store/sqlite"
)

const (
	DriverMemory = "memory"
	DriverICS    = "ics"
	DriverSQLite = "sqlite"
)

// Config selects and locates a driver.
type Config struct {
	Driver string
	// Path is the calendar directory for "ics" and the database file for "sqlite".
	Path string
	// Calendar is the title of the target calendar.
	Calendar string
	// CreateMissing creates the target calendar when the store lacks it. The
	// memory driver always does.
	CreateMissing bool
}

// Driver is a calendar.Store able to create calendars.
type Driver interface {
	calendar.Store
	EnsureCalendar(ctx context.Context, title string) (calendar.CalendarRef, error)
}

// Open opens the configured driver.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (calendar.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		d   Driver
		err error
	)

	switch cfg.Driver {
	case DriverMemory, "":
		d = memory.New(memory.WithLogger(logger))
		cfg.CreateMissing = true
	case DriverICS:
		d, err = icsfile.Open(pathOr(cfg.Path, "calendars"), logger)
	case DriverSQLite:
		d, err = sqlite.Open(ctx, pathOr(cfg.Path, "calendar.db"), logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CreateMissing && cfg.Calendar != "" {
		if _, err := d.EnsureCalendar(ctx, cfg.Calendar); err != nil {
			d.Close()
			return nil, err
		}
	}

	logger.Info("calendar store opened", zap.String("driver", cfg.Driver), zap.String("path", cfg.Path))
	return d, nil
}

func pathOr(p, fallback string) string {
	if p == "" {
		return fallback
	}
	return filepath.Clean(p)
}
