package booking

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/domain/slot"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	arbiter *Arbiter
}

func NewHandler(arbiter *Arbiter) *Handler {
	return &Handler{arbiter: arbiter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/bookings")
	g.POST("", h.CreateBooking)
	g.GET("", h.ListBookings)
	g.GET("/:id", h.GetBooking)
	g.POST("/:id/cancel", h.CancelBooking)
	g.POST("/:id/confirm", h.ConfirmBooking)
	g.POST("/:id/complete", h.CompleteBooking)
	g.POST("/:id/no-show", h.NoShowBooking)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, slot.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, slot.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "booking store unavailable")
	}
}

type createBookingRequest struct {
	SlotID          uuid.UUID `json:"slot_id"`
	ExpectedVersion int       `json:"expected_version"`
	Payload
}

// CreateBooking runs the claim and maps the outcome to a status code. Only
// store failures surface as errors; arbitration results are regular
// responses so the client can distinguish a lost race (409) from a slot
// that is simply gone (410).
func (h *Handler) CreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.arbiter.AttemptBooking(c.Request().Context(), req.SlotID, req.ExpectedVersion, &req.Payload)
	if err != nil {
		return httpError(err)
	}
	switch out.Kind {
	case OutcomeBooked:
		return c.JSON(http.StatusCreated, out)
	case OutcomeConflict:
		return c.JSON(http.StatusConflict, out)
	case OutcomeSlotUnavailable:
		return c.JSON(http.StatusGone, out)
	default:
		return c.JSON(http.StatusBadRequest, out)
	}
}

type versionRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

func (h *Handler) transition(c echo.Context, fn func(c echo.Context, id uuid.UUID, version int) (*Booking, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body versionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := fn(c, id, body.ExpectedVersion)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uuid.UUID, v int) (*Booking, error) {
		return h.arbiter.Cancel(c.Request().Context(), id, v)
	})
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uuid.UUID, v int) (*Booking, error) {
		return h.arbiter.Confirm(c.Request().Context(), id, v)
	})
}

func (h *Handler) CompleteBooking(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uuid.UUID, v int) (*Booking, error) {
		return h.arbiter.Complete(c.Request().Context(), id, v)
	})
}

func (h *Handler) NoShowBooking(c echo.Context) error {
	return h.transition(c, func(c echo.Context, id uuid.UUID, v int) (*Booking, error) {
		return h.arbiter.NoShow(c.Request().Context(), id, v)
	})
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.arbiter.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	clientID, err := uuid.Parse(c.QueryParam("client_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.arbiter.ListByClient(c.Request().Context(), clientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
