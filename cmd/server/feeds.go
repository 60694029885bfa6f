package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	c "github.com/quesurifn/calendar-adapter/calendar"
)

var importCmd = &cobra.Command{
	Use:   "import <ics-url>",
	Short: "Import the upcoming events of an ICS feed into the calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cal, err := openCalendar(cmd.Context())
		if err != nil {
			return err
		}
		defer cal.Close()

		result, err := cal.Import(cmd.Context(), c.NewFeed(logger), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("imported %d events, skipped %d\n", result.Imported, result.Skipped)
		return nil
	},
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

const defaultFeedSchedule = "@hourly"

// scheduleFeeds registers one import job per configured feed. Feeds without a
// schedule run hourly.
func scheduleFeeds(cal *c.Calendar, feed *c.Feed, timeout time.Duration) (*cron.Cron, error) {
	cl := cronLogger{sugar: logger.Sugar()}
	scheduler := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))

	for _, f := range appConfig.Feeds {
		if f.URL == "" {
			continue
		}
		url, schedule := f.URL, f.Schedule
		if schedule == "" {
			schedule = defaultFeedSchedule
		}
		_, err := scheduler.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if _, err := cal.Import(ctx, feed, url); err != nil {
				logger.Error("scheduled import failed", zap.String("url", url), zap.Error(err))
			}
		})
		if err != nil {
			return nil, errors.Wrapf(err, "invalid schedule %q for feed %s", schedule, url)
		}
		logger.Info("feed scheduled", zap.String("url", url), zap.String("schedule", schedule))
	}
	return scheduler, nil
}
