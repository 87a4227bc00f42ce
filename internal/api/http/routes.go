package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/atmostream/internal/forecast"
	"github.com/i474232898/atmostream/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *forecast.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/models", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"models":  service.Models(),
			"tracked": service.Tracked(),
		})
	})

	v1.Get("/models/:name", func(c *fiber.Ctx) error {
		model, err := service.Model(c.Params("name"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(model)
	})

	v1.Get("/models/:name/status", func(c *fiber.Ctx) error {
		name := c.Params("name")
		code, err := service.CatalogStatus(c.UserContext(), name)
		if err != nil {
			if errors.Is(err, forecast.ErrUnknownModel) || errors.Is(err, forecast.ErrNotTracked) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, "catalog unreachable")
		}
		return c.JSON(fiber.Map{
			"model":     name,
			"status":    code,
			"available": code >= 200 && code < 300,
		})
	})

	v1.Get("/stream", func(c *fiber.Ctx) error {
		status, err := service.LatestSession()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no stream session recorded")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch stream status")
		}
		return c.JSON(status)
	})

	v1.Get("/stream/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		statuses, err := service.SessionRange(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no stream history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch stream history")
		}

		return c.JSON(fiber.Map{
			"from":     req.From,
			"to":       req.To,
			"statuses": statuses,
		})
	})

	v1.Get("/nowcast", func(c *fiber.Ctx) error {
		q := nowcastQuery{Model: c.Query("model")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		n, err := service.GetNowcast(q.Model)
		if errors.Is(err, store.ErrNotFound) {
			if err := service.RefreshNowcast(c.UserContext(), q.Model); err != nil {
				return nowcastError(err)
			}
			n, err = service.GetNowcast(q.Model)
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch nowcast")
		}
		return c.JSON(n)
	})
}

func nowcastError(err error) error {
	switch {
	case errors.Is(err, forecast.ErrUnknownModel), errors.Is(err, forecast.ErrNotTracked), errors.Is(err, forecast.ErrNoNowcast):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrCatalogUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "catalog unreachable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to compute nowcast")
	}
}

// nowcastQuery holds query parameters for the nowcast endpoint.
type nowcastQuery struct {
	Model string `validate:"required"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
