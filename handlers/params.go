package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/quesurifn/calendar-adapter/calendar"
)

func parseTime(name, value string) (time.Time, error) {
	ts, err := calendar.ParseTime(value)
	if err != nil {
		return time.Time{}, calendar.Invalid("Invalid %s: %v", name, err)
	}
	return ts, nil
}

// queryRange reads the required start and end query parameters.
func queryRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	startParam, endParam := c.Query("start"), c.Query("end")
	if startParam == "" || endParam == "" {
		return time.Time{}, time.Time{}, calendar.MissingParameter("start", "end")
	}

	start, err := parseTime("start", startParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime("end", endParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return calendar.Invalid("Invalid JSON body: %v", err)
	}
	return nil
}
