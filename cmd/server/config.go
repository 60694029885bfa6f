package main

import (
	"time"

	duration "github.com/ChannelMeter/iso8601duration"
	"github.com/pkg/errors"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store"
)

type calendarConfig struct {
	Name     string `default:"Calendar" yaml:"name" toml:"name" json:"name"`
	Timezone string `default:"America/Phoenix" yaml:"timezone" toml:"timezone" json:"timezone"`
	// Lookahead is an ISO-8601 duration.
	Lookahead           string `default:"P365D" yaml:"lookahead" toml:"lookahead" json:"lookahead"`
	OccurrenceWindow    string `default:"60s" yaml:"occurrence_window" toml:"occurrence_window" json:"occurrence_window"`
	OccurrenceTolerance string `default:"2s" yaml:"occurrence_tolerance" toml:"occurrence_tolerance" json:"occurrence_tolerance"`
	AccessTimeout       string `default:"10s" yaml:"access_timeout" toml:"access_timeout" json:"access_timeout"`
	CacheRef            bool   `yaml:"cache_ref" toml:"cache_ref" json:"cache_ref"`
}

type storeConfig struct {
	Driver        string `default:"memory" yaml:"driver" toml:"driver" json:"driver"`
	Path          string `yaml:"path" toml:"path" json:"path"`
	CreateMissing bool   `yaml:"create_missing" toml:"create_missing" json:"create_missing"`
}

type limiterConfig struct {
	Max        int    `default:"20" yaml:"max" toml:"max" json:"max"`
	Expiration string `default:"30s" yaml:"expiration" toml:"expiration" json:"expiration"`
}

type feedConfig struct {
	URL      string `yaml:"url" toml:"url" json:"url"`
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule"`
}

var appConfig = struct {
	AppName string `yaml:"app_name" toml:"app_name" json:"app_name"`

	Host           string `default:"127.0.0.1" yaml:"host" toml:"host" json:"host"`
	Port           string `default:"5000" yaml:"port" toml:"port" json:"port"`
	RequestTimeout string `default:"15s" yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`

	Calendar calendarConfig `yaml:"calendar" toml:"calendar" json:"calendar"`
	Store    storeConfig    `yaml:"store" toml:"store" json:"store"`
	Limiter  limiterConfig  `yaml:"limiter" toml:"limiter" json:"limiter"`
	Feeds    []feedConfig   `yaml:"feeds" toml:"feeds" json:"feeds"`
}{
	AppName: "Calendar Adapter",
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", name)
	}
	return d, nil
}

func calendarOptions(cfg calendarConfig) (calendar.Options, error) {
	opts := calendar.Options{
		Name:     cfg.Name,
		CacheRef: cfg.CacheRef,
	}

	zone, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return opts, errors.Wrap(err, "invalid calendar timezone")
	}
	opts.Zone = zone

	lookahead, err := duration.FromString(cfg.Lookahead)
	if err != nil {
		return opts, errors.Wrap(err, "invalid calendar lookahead")
	}
	opts.Lookahead = lookahead.ToDuration()

	if opts.OccurrenceWindow, err = parseDuration("occurrence window", cfg.OccurrenceWindow); err != nil {
		return opts, err
	}
	if opts.OccurrenceTolerance, err = parseDuration("occurrence tolerance", cfg.OccurrenceTolerance); err != nil {
		return opts, err
	}
	if opts.AccessTimeout, err = parseDuration("access timeout", cfg.AccessTimeout); err != nil {
		return opts, err
	}
	return opts, nil
}

func storeOptions(cfg storeConfig, calendarName string) store.Config {
	return store.Config{
		Driver:        cfg.Driver,
		Path:          cfg.Path,
		Calendar:      calendarName,
		CreateMissing: cfg.CreateMissing,
	}
}
