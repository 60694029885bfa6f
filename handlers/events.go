package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	t "github.com/quesurifn/calendar-adapter/types"
)

func (h Handlers) ListEventsHandler(c *fiber.Ctx) error {
	h.Logger.Info("ListEventsHandler", zap.String("start", c.Query("start")), zap.String("end", c.Query("end")))

	start, end, err := queryRange(c)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	events, err := h.Calendar.ListEvents(ctx, start, end)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.NewEvents(events))
}

func (h Handlers) CreateEventHandler(c *fiber.Ctx) error {
	var req t.CreateEventRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	h.Logger.Info("CreateEventHandler", zap.String("title", req.Title), zap.String("start", req.Start), zap.String("end", req.End))

	if req.Title == "" || req.Start == "" || req.End == "" {
		return h.fail(c, calendar.MissingField("title", "start", "end"))
	}

	start, err := parseTime("start", req.Start)
	if err != nil {
		return h.fail(c, err)
	}
	end, err := parseTime("end", req.End)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	event, err := h.Calendar.CreateEvent(ctx, calendar.Draft{
		Title:      req.Title,
		Location:   req.Location,
		Start:      start,
		End:        end,
		Recurrence: req.Recurrence,
	})
	if err != nil {
		return h.fail(c, err)
	}

	h.Logger.Info("CreateEventHandler", zap.String("id", event.ID))

	return c.Status(fiber.StatusCreated).JSON(t.NewEvent(event))
}

func (h Handlers) DeleteEventHandler(c *fiber.Ctx) error {
	id := c.Query("id")
	h.Logger.Info("DeleteEventHandler", zap.String("id", id))

	if id == "" {
		return h.fail(c, calendar.MissingParameter("id"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.Calendar.DeleteEvent(ctx, id); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.DeleteResponse{DeletedID: id})
}

func (h Handlers) UpdateEventHandler(c *fiber.Ctx) error {
	var req t.UpdateEventRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	h.Logger.Info("UpdateEventHandler", zap.String("id", req.ID), zap.String("instanceStart", req.InstanceStart.OrEmpty()))

	if req.ID == "" {
		return h.fail(c, calendar.MissingField("id"))
	}

	u := calendar.EventUpdate{
		ID:       req.ID,
		Title:    req.Title,
		Location: req.Location,
	}
	if v := req.InstanceStart.OrEmpty(); v != "" {
		at, err := parseTime("instanceStart", v)
		if err != nil {
			return h.fail(c, err)
		}
		u.InstanceStart = mo.Some(at)
	}
	if v, ok := req.Start.Get(); ok {
		start, err := parseTime("start", v)
		if err != nil {
			return h.fail(c, err)
		}
		u.Start = mo.Some(start)
	}
	if v, ok := req.End.Get(); ok {
		end, err := parseTime("end", v)
		if err != nil {
			return h.fail(c, err)
		}
		u.End = mo.Some(end)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	event, err := h.Calendar.UpdateEvent(ctx, u)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.NewEvent(event))
}
