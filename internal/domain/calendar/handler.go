package calendar

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/calendar", auth.RequireRole("admin", "provider", "organization"))
	g.POST("/events", h.UpsertEvent)
	g.GET("/events", h.ListEvents)
	g.DELETE("/events/:id", h.DeleteEvent)
	g.POST("/reconcile", h.Reconcile)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "calendar store unavailable")
	}
}

func (h *Handler) UpsertEvent(c echo.Context) error {
	var e BusyEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created := e.ID == uuid.Nil
	out, err := h.svc.Upsert(c.Request().Context(), &e)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.JSON(http.StatusCreated, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Remove(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEvents(c echo.Context) error {
	ownerID, from, to, err := ownerRange(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByOwner(c.Request().Context(), ownerID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Reconcile(c echo.Context) error {
	ownerID, from, to, err := ownerRange(c)
	if err != nil {
		return err
	}
	res, err := h.svc.ReconcileRange(c.Request().Context(), ownerID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ownerRange parses the owner_id, from, and to query parameters shared by
// the range endpoints. from and to default to a week starting now.
func ownerRange(c echo.Context) (uuid.UUID, time.Time, time.Time, error) {
	ownerID, err := uuid.Parse(c.QueryParam("owner_id"))
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}
	from := time.Now().UTC()
	to := from.Add(7 * 24 * time.Hour)
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return uuid.Nil, time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	return ownerID, from, to, nil
}
