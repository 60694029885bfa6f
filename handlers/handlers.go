package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
)

type Handlers struct {
	Logger   *zap.Logger
	Calendar *calendar.Calendar
	Feed     *calendar.Feed
	// Timeout bounds the store calls of one request. Zero disables it.
	Timeout time.Duration
}

// Register mounts every route on app.
func (h Handlers) Register(app *fiber.App) {
	app.Get("/", h.RootHandler)
	app.Get("/listEvents", h.ListEventsHandler)
	app.Post("/createEvent", h.CreateEventHandler)
	app.Delete("/deleteEvent", h.DeleteEventHandler)
	app.Post("/updateEvent", h.UpdateEventHandler)
	app.Get("/summarizeEvents", h.SummarizeEventsHandler)
	app.Get("/nextEvent", h.NextEventHandler)
	app.Get("/searchByLocation", h.SearchByLocationHandler)
	app.Post("/importCalendar", h.ImportCalendarHandler)
}

func (h Handlers) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.Timeout)
}
