package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// Booker runs the reservation saga.
type Booker interface {
	Commit(ctx context.Context, req service.BookingRequest, choice model.PaymentChoice) (*service.BookingResult, error)
}

// LedgerOps are the post-booking mutations and reads on one reservation.
type LedgerOps interface {
	AddPayment(ctx context.Context, req service.AddPaymentRequest) (*service.PaymentResult, error)
	ListReservationPayments(ctx context.Context, id uint64, actor service.Actor) (*service.Folio, error)
	AppendServiceCharge(ctx context.Context, req service.ServiceChargeRequest) (*service.Folio, error)
	UpdateBookingStatus(ctx context.Context, id uint64, next model.BookingStatus, actor service.Actor) (*model.Reservation, error)
}

// GuestReservations lists a guest's own bookings.
type GuestReservations interface {
	ListByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error)
}

// ReservationHandler exposes the booking saga and the payment ledger.  All
// methods assume JWTAuth and RequireRole already ran.
type ReservationHandler struct {
	Bookings     Booker
	Ledger       LedgerOps
	Reservations GuestReservations
}

func NewReservationHandler(b Booker, l LedgerOps, r GuestReservations) *ReservationHandler {
	return &ReservationHandler{Bookings: b, Ledger: l, Reservations: r}
}

type customerReq struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Email string `json:"email" validate:"omitempty,email"`
}

type paymentChoiceReq struct {
	Type   string `json:"type" validate:"required,oneof=skip partial full"`
	Amount int64  `json:"amount" validate:"gte=0"`
	Method string `json:"method" validate:"omitempty,oneof=card cash"`
}

type createReservationReq struct {
	SubjectKind   string           `json:"subject_kind" validate:"required,oneof=room facility"`
	SubjectID     uint64           `json:"subject_id" validate:"required"`
	CheckIn       string           `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut      string           `json:"check_out" validate:"required,datetime=2006-01-02"`
	GuestID       *uint64          `json:"guest_id" validate:"omitempty,gt=0"`
	Customer      *customerReq     `json:"customer_details"`
	PaymentChoice paymentChoiceReq `json:"payment_choice"`
}

type bookingResp struct {
	Reservation reservationDTO `json:"reservation"`
	Payments    []paymentDTO   `json:"payments"`
	Ledger      ledgerDTO      `json:"ledger"`
}

// Create handles POST /v1/reservations.  A guest who names neither a
// guest nor a walk-in customer books for themselves.
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var body createReservationReq
	if err := bindValid(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	in, out, err := parseStay(body.CheckIn, body.CheckOut)
	if err != nil {
		return badRequest(c, err.Error())
	}

	req := service.BookingRequest{
		Subject:        model.Subject{Kind: model.SubjectKind(body.SubjectKind), ID: body.SubjectID},
		CheckIn:        in,
		CheckOut:       out,
		GuestID:        body.GuestID,
		Actor:          actor,
		Allowed:        payment.CapabilityFor(actor.Role),
		IdempotencyKey: key,
	}
	if body.Customer != nil {
		req.Customer = &model.CustomerDetails{
			Name:  strings.TrimSpace(body.Customer.Name),
			Phone: strings.TrimSpace(body.Customer.Phone),
			Email: strings.ToLower(strings.TrimSpace(body.Customer.Email)),
		}
	}
	if req.GuestID == nil && req.Customer == nil && !actor.IsStaff() {
		uid := actor.UserID
		req.GuestID = &uid
	}
	choice := model.PaymentChoice{
		Type:   model.PaymentChoiceType(body.PaymentChoice.Type),
		Amount: body.PaymentChoice.Amount,
		Method: model.PaymentMethod(body.PaymentChoice.Method),
	}

	res, err := h.Bookings.Commit(c.Request().Context(), req, choice)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		c.Response().Header().Set(headerReplayed, "true")
		status = http.StatusOK
	}
	return c.JSON(status, bookingResp{
		Reservation: toReservationDTO(res.Reservation),
		Payments:    toPaymentDTOs(res.Payments),
		Ledger:      toLedgerDTO(res.Ledger),
	})
}

// ListMine handles GET /v1/reservations for the authenticated guest.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Reservations.ListByGuest(c.Request().Context(), actor.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]reservationDTO, 0, len(list))
	for i := range list {
		out = append(out, toReservationDTO(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// ListPayments handles GET /v1/reservations/:id/payments.
func (h *ReservationHandler) ListPayments(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	folio, err := h.Ledger.ListReservationPayments(c.Request().Context(), id, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResp{
		Reservation: toReservationDTO(folio.Reservation),
		Payments:    toPaymentDTOs(folio.Payments),
		Ledger:      toLedgerDTO(folio.Ledger),
	})
}

type addPaymentReq struct {
	Amount int64  `json:"amount"`
	Method string `json:"payment_method" validate:"required,oneof=card cash"`
	Notes  string `json:"notes" validate:"max=500"`
}

type paymentResp struct {
	Payment paymentDTO `json:"payment"`
	Ledger  ledgerDTO  `json:"ledger"`
}

// AddPayment handles POST /v1/reservations/:id/payments.  Amount checks
// against the balance happen in the ledger under the reservation lock, so
// only shape is validated here.
func (h *ReservationHandler) AddPayment(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body addPaymentReq
	if err := bindValid(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.Ledger.AddPayment(c.Request().Context(), service.AddPaymentRequest{
		ReservationID:  id,
		Amount:         body.Amount,
		Method:         model.PaymentMethod(body.Method),
		Notes:          strings.TrimSpace(body.Notes),
		Actor:          actor,
		Allowed:        payment.CapabilityFor(actor.Role),
		IdempotencyKey: key,
	})
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		c.Response().Header().Set(headerReplayed, "true")
		status = http.StatusOK
	}
	return c.JSON(status, paymentResp{Payment: toPaymentDTO(*res.Payment), Ledger: toLedgerDTO(res.Ledger)})
}

type serviceChargeReq struct {
	Description string `json:"description" validate:"required,max=255"`
	Quantity    uint32 `json:"quantity" validate:"required"`
	UnitPrice   int64  `json:"unit_price" validate:"gt=0"`
}

// AddService handles POST /v1/reservations/:id/services (staff).
func (h *ReservationHandler) AddService(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body serviceChargeReq
	if err := bindValid(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	folio, err := h.Ledger.AppendServiceCharge(c.Request().Context(), service.ServiceChargeRequest{
		ReservationID: id,
		Description:   body.Description,
		Quantity:      body.Quantity,
		UnitPrice:     body.UnitPrice,
		Actor:         actor,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingResp{
		Reservation: toReservationDTO(folio.Reservation),
		Payments:    toPaymentDTOs(folio.Payments),
		Ledger:      toLedgerDTO(folio.Ledger),
	})
}

type statusReq struct {
	Status string `json:"booking_status" validate:"required,oneof=pending confirmed checkedin completed cancelled"`
}

// UpdateStatus handles PATCH /v1/reservations/:id/status.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body statusReq
	if err := bindValid(c, &body); err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.Ledger.UpdateBookingStatus(c.Request().Context(), id, model.BookingStatus(body.Status), actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": toReservationDTO(res)})
}
