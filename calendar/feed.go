package calendar

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/apognu/gocal"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTZMap maps Windows zone names found in Outlook/Exchange feeds to IANA
// names.
var DefaultTZMap = map[string]string{
	"Hawaii Standard Time":      "Pacific/Honolulu",
	"Alaskan Standard Time":     "America/Anchorage",
	"Alaskan Daylight Time":     "America/Anchorage",
	"SA Pacific Standard Time":  "America/Bogota",
	"Pacific Standard Time":     "America/Los_Angeles",
	"Pacific Daylight Time":     "America/Los_Angeles",
	"US Mountain Standard Time": "America/Phoenix",
	"Central Standard Time":     "America/Chicago",
	"Central Daylight Time":     "America/Chicago",
	"Mountain Standard Time":    "America/Denver",
	"Mountain Daylight Time":    "America/Denver",
	"Eastern Standard Time":     "America/New_York",
	"Eastern Daylight Time":     "America/New_York",
}

var tzMapperOnce sync.Once

// Feed downloads and parses remote ICS calendars.
type Feed struct {
	Logger *zap.Logger
	Client *resty.Client
}

// FeedEvent is one occurrence read from a feed.
type FeedEvent struct {
	UID      string
	Title    string
	Location string
	Start    time.Time
	End      time.Time
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported int
	Skipped  int
}

func NewFeed(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		Logger: logger,
		Client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("Accept", "text/calendar"),
	}

	tzMapperOnce.Do(func() {
		gocal.SetTZMapper(func(name string) (*time.Location, error) {
			if iana, ok := DefaultTZMap[name]; ok {
				return time.LoadLocation(iana)
			}
			return time.LoadLocation(name)
		})
	})
	return f
}

func (f *Feed) DownloadCalendar(ctx context.Context, url string) (string, error) {
	resp, err := f.Client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", &Error{Kind: KindUpstream, Message: "Failed to download calendar: " + err.Error(), Err: err}
	}
	if resp.IsError() {
		return "", &Error{Kind: KindUpstream, Message: fmt.Sprintf("Calendar download returned HTTP %d", resp.StatusCode())}
	}

	f.Logger.Debug("DownloadCalendar", zap.String("url", url), zap.Int("bytes", len(resp.Body())))
	return resp.String(), nil
}

// ParseCalendar expands the feed over [from, to].
func (f *Feed) ParseCalendar(data string, from, to time.Time) ([]FeedEvent, error) {
	parser := gocal.NewParser(strings.NewReader(data))
	parser.Start, parser.End = &from, &to
	if err := parser.Parse(); err != nil {
		return nil, &Error{Kind: KindUpstream, Message: "Invalid calendar feed: " + err.Error(), Err: err}
	}

	events := make([]FeedEvent, 0, len(parser.Events))
	for _, e := range parser.Events {
		if e.Start == nil {
			continue
		}
		end := *e.Start
		if e.End != nil {
			end = *e.End
		}
		events = append(events, FeedEvent{
			UID:      e.Uid,
			Title:    e.Summary,
			Location: e.Location,
			Start:    e.Start.UTC(),
			End:      end.UTC(),
		})
	}
	return events, nil
}

// Import copies the upcoming events of a feed into the target calendar.
// Events already present with the same title and start are skipped.
func (c *Calendar) Import(ctx context.Context, feed *Feed, url string) (ImportResult, error) {
	var result ImportResult

	data, err := feed.DownloadCalendar(ctx, url)
	if err != nil {
		return result, err
	}

	from, to := c.upcoming()
	incoming, err := feed.ParseCalendar(data, from, to)
	if err != nil {
		return result, err
	}

	cal, err := c.Resolve(ctx)
	if err != nil {
		return result, err
	}
	existing, err := c.query(ctx, cal, from, to)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(incoming))
	for _, fe := range incoming {
		// A feed may repeat a VEVENT; one UID has one occurrence per start.
		key := fe.UID + "@" + FormatTime(fe.Start)
		if (fe.UID != "" && seen[key]) || c.contains(existing, fe) {
			result.Skipped++
			continue
		}
		seen[key] = true

		e := c.store.NewEvent(cal)
		e.Title, e.Location, e.Start, e.End = fe.Title, fe.Location, fe.Start, fe.End
		if err := c.store.SaveEvent(ctx, e); err != nil {
			return result, c.fault("save imported event", err)
		}
		existing = append(existing, e)
		result.Imported++
	}

	c.Logger.Info("feed imported",
		zap.String("url", url),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (c *Calendar) contains(events []*Event, fe FeedEvent) bool {
	tolerance := c.opts.OccurrenceTolerance.Seconds()
	for _, e := range events {
		if e.Title == fe.Title && math.Abs(epochSeconds(e.Start)-epochSeconds(fe.Start)) < tolerance {
			return true
		}
	}
	return false
}
