package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// Quoter prices a stay and reports whether it is currently free.
type Quoter interface {
	Quote(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (*service.Quote, error)
}

// UnitLister lists bookable inventory.
type UnitLister interface {
	List(ctx context.Context, kind model.SubjectKind) ([]model.Unit, error)
}

// AvailabilityHandler serves the public browse and availability endpoints.
type AvailabilityHandler struct {
	Quotes Quoter
	Units  UnitLister
}

func NewAvailabilityHandler(q Quoter, u UnitLister) *AvailabilityHandler {
	return &AvailabilityHandler{Quotes: q, Units: u}
}

type availabilityQuery struct {
	SubjectKind string `query:"subject_kind" validate:"required,oneof=room facility"`
	SubjectID   uint64 `query:"subject_id" validate:"required"`
	CheckIn     string `query:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut    string `query:"check_out" validate:"required,datetime=2006-01-02"`
}

type quoteResp struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   uint64 `json:"subject_id"`
	Name        string `json:"name"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	Nights      int    `json:"nights"`
	NightlyRate int64  `json:"nightly_rate"`
	RoomCharges int64  `json:"room_charges"`
	Available   bool   `json:"available"`
}

// Check handles GET /v1/availability.  The answer is advisory; the commit
// re-checks under a row lock.
func (h *AvailabilityHandler) Check(c echo.Context) error {
	var q availabilityQuery
	if err := bindValid(c, &q); err != nil {
		return badRequest(c, err.Error())
	}
	in, out, err := parseStay(q.CheckIn, q.CheckOut)
	if err != nil {
		return badRequest(c, err.Error())
	}

	quote, err := h.Quotes.Quote(c.Request().Context(), model.Subject{Kind: model.SubjectKind(q.SubjectKind), ID: q.SubjectID}, in, out)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, quoteResp{
		SubjectKind: string(quote.Unit.Subject.Kind),
		SubjectID:   quote.Unit.Subject.ID,
		Name:        quote.Unit.Name,
		CheckIn:     quote.CheckIn.Format(dayLayout),
		CheckOut:    quote.CheckOut.Format(dayLayout),
		Nights:      quote.Nights,
		NightlyRate: quote.Unit.NightlyRate,
		RoomCharges: quote.RoomCharges,
		Available:   quote.Available,
	})
}

type unitResp struct {
	ID          uint64 `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	NightlyRate int64  `json:"nightly_rate"`
}

// ListUnits handles GET /v1/units?kind=room|facility.  Only active units
// are listed and timestamps are left out.
func (h *AvailabilityHandler) ListUnits(c echo.Context) error {
	kind := model.SubjectKind(c.QueryParam("kind"))
	if kind == "" {
		kind = model.SubjectRoom
	}
	if kind != model.SubjectRoom && kind != model.SubjectFacility {
		return badRequest(c, "kind must be room or facility")
	}
	units, err := h.Units.List(c.Request().Context(), kind)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]unitResp, 0, len(units))
	for _, u := range units {
		out = append(out, unitResp{ID: u.Subject.ID, Kind: string(u.Subject.Kind), Name: u.Name, NightlyRate: u.NightlyRate})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}
