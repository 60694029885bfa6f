package icsfile

import (
	"bytes"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	"github.com/quesurifn/calendar-adapter/store/recur"
)

const (
	productID   = "-//quesurifn//calendar-adapter//EN"
	propCalID   = "X-WR-RELCALID"
	propCalName = "X-WR-CALNAME"
	utcLayout   = "20060102T150405Z"

	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// Encode renders the series of one calendar as a VCALENDAR. Overrides are
// written as extra VEVENTs sharing the series UID with a RECURRENCE-ID.
func Encode(cal calendar.CalendarRef, series []*recur.Series) string {
	c := ical.NewCalendar()
	c.SetProductId(productID)
	c.SetXWRCalName(cal.Title)
	c.CalendarProperties = append(c.CalendarProperties, ical.CalendarProperty{
		BaseProperty: ical.BaseProperty{IANAToken: propCalID, Value: cal.ID},
	})

	stamp := time.Now().UTC()
	for _, ser := range series {
		ev := c.AddEvent(ser.UID)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(ser.Title)
		if ser.Location != "" {
			ev.SetLocation(ser.Location)
		}
		ev.SetStartAt(ser.Start)
		ev.SetEndAt(ser.End)
		if ser.RRule != "" {
			ev.AddProperty(ical.ComponentPropertyRrule, strings.TrimPrefix(ser.RRule, "RRULE:"))
		}
		for _, ex := range ser.ExDates {
			ev.AddProperty(ical.ComponentPropertyExdate, ex.UTC().Format(utcLayout))
		}

		for _, o := range ser.Overrides {
			ov := c.AddEvent(ser.UID)
			ov.SetDtStampTime(stamp)
			ov.SetProperty(propRecurrenceID, o.RecurrenceID.UTC().Format(utcLayout))
			ov.SetSummary(o.Title)
			if o.Location != "" {
				ov.SetLocation(o.Location)
			}
			ov.SetStartAt(o.Start)
			ov.SetEndAt(o.End)
		}
	}

	return c.Serialize()
}

// Decode parses a VCALENDAR written by Encode or by another application.
// fallbackID names the calendar when the file carries no X-WR-RELCALID.
func Decode(data []byte, fallbackID string, logger *zap.Logger) (calendar.CalendarRef, []*recur.Series, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return calendar.CalendarRef{}, nil, err
	}

	ref := calendar.CalendarRef{ID: fallbackID, Title: fallbackID}
	for _, p := range c.CalendarProperties {
		switch p.IANAToken {
		case propCalName:
			ref.Title = p.Value
		case propCalID:
			ref.ID = p.Value
		}
	}

	var (
		order     []*recur.Series
		byUID     = make(map[string]*recur.Series)
		overrides = make(map[string][]recur.Override)
	)

	for _, ve := range c.Events() {
		uid := ve.Id()
		if uid == "" {
			logger.Warn("skipping VEVENT without UID", zap.String("calendar", ref.Title))
			continue
		}

		start, err := ve.GetStartAt()
		if err != nil {
			logger.Warn("skipping VEVENT without DTSTART", zap.String("uid", uid), zap.Error(err))
			continue
		}
		end, err := ve.GetEndAt()
		if err != nil {
			end = start
		}

		title := text(ve, ical.ComponentPropertySummary)
		location := text(ve, ical.ComponentPropertyLocation)

		if rid := ve.GetProperty(propRecurrenceID); rid != nil {
			date, err := parseICSTime(rid.Value)
			if err != nil {
				logger.Warn("skipping override with bad RECURRENCE-ID", zap.String("uid", uid), zap.Error(err))
				continue
			}
			overrides[uid] = append(overrides[uid], recur.Override{
				RecurrenceID: date,
				Title:        title,
				Location:     location,
				Start:        start.UTC(),
				End:          end.UTC(),
			})
			continue
		}

		ser := &recur.Series{
			UID:        uid,
			CalendarID: ref.ID,
			Title:      title,
			Location:   location,
			Start:      start.UTC(),
			End:        end.UTC(),
			RRule:      text(ve, ical.ComponentPropertyRrule),
		}
		for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
			for _, part := range strings.Split(p.Value, ",") {
				if t, err := parseICSTime(part); err == nil {
					ser.ExDates = append(ser.ExDates, t)
				}
			}
		}

		if _, dup := byUID[uid]; dup {
			logger.Warn("duplicate VEVENT UID, keeping the first", zap.String("uid", uid))
			continue
		}
		byUID[uid] = ser
		order = append(order, ser)
	}

	for uid, ovs := range overrides {
		ser, ok := byUID[uid]
		if !ok {
			logger.Warn("dropping overrides of unknown series", zap.String("uid", uid), zap.Int("count", len(ovs)))
			continue
		}
		ser.Overrides = append(ser.Overrides, ovs...)
	}

	return ref, order, nil
}

func text(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseICSTime parses DATE-TIME values of EXDATE and RECURRENCE-ID. Floating
// and date-only values are read as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(utcLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}
