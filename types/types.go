package types

import (
	"github.com/samber/mo"

	"github.com/quesurifn/calendar-adapter/calendar"
)

type Event struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func NewEvent(e *calendar.Event) Event {
	return Event{
		ID:       e.ID,
		Title:    e.Title,
		Location: e.Location,
		Start:    calendar.FormatTime(e.Start),
		End:      calendar.FormatTime(e.End),
	}
}

func NewEvents(events []*calendar.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, NewEvent(e))
	}
	return out
}

type CreateEventRequest struct {
	Title      string `json:"title"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Location   string `json:"location"`
	Recurrence string `json:"recurrence"`
}

// UpdateEventRequest tells absent fields from empty ones so only the fields
// sent are applied.
type UpdateEventRequest struct {
	ID            string            `json:"id"`
	InstanceStart mo.Option[string] `json:"instanceStart"`
	Title         mo.Option[string] `json:"title"`
	Start         mo.Option[string] `json:"start"`
	End           mo.Option[string] `json:"end"`
	Location      mo.Option[string] `json:"location"`
}

type DeleteResponse struct {
	DeletedID string `json:"deletedId"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ImportRequest struct {
	ICSUrl string `json:"icsUrl"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
