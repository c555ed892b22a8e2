package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

type MockBooker struct{ mock.Mock }

func (m *MockBooker) Commit(ctx context.Context, req service.BookingRequest, choice model.PaymentChoice) (*service.BookingResult, error) {
	args := m.Called(ctx, req, choice)
	res, _ := args.Get(0).(*service.BookingResult)
	return res, args.Error(1)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) AddPayment(ctx context.Context, req service.AddPaymentRequest) (*service.PaymentResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*service.PaymentResult)
	return res, args.Error(1)
}

func (m *MockLedger) ListReservationPayments(ctx context.Context, id uint64, actor service.Actor) (*service.Folio, error) {
	args := m.Called(ctx, id, actor)
	res, _ := args.Get(0).(*service.Folio)
	return res, args.Error(1)
}

func (m *MockLedger) AppendServiceCharge(ctx context.Context, req service.ServiceChargeRequest) (*service.Folio, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*service.Folio)
	return res, args.Error(1)
}

func (m *MockLedger) UpdateBookingStatus(ctx context.Context, id uint64, next model.BookingStatus, actor service.Actor) (*model.Reservation, error) {
	args := m.Called(ctx, id, next, actor)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

type MockQuoter struct{ mock.Mock }

func (m *MockQuoter) Quote(ctx context.Context, subject model.Subject, in, out time.Time) (*service.Quote, error) {
	args := m.Called(ctx, subject, in, out)
	res, _ := args.Get(0).(*service.Quote)
	return res, args.Error(1)
}

type stubUnits []model.Unit

func (s stubUnits) List(_ context.Context, kind model.SubjectKind) ([]model.Unit, error) {
	var out []model.Unit
	for _, u := range s {
		if u.Subject.Kind == kind {
			out = append(out, u)
		}
	}
	return out, nil
}

type stubGuestReservations []model.Reservation

func (s stubGuestReservations) ListByGuest(context.Context, uint64) ([]model.Reservation, error) {
	return s, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(dayLayout, s)
	return t
}

func room101() *model.Reservation {
	gid := uint64(7)
	return &model.Reservation{
		ID:          11,
		Subject:     model.Subject{Kind: model.SubjectRoom, ID: 101},
		GuestID:     &gid,
		CheckIn:     day("2026-03-01"),
		CheckOut:    day("2026-03-03"),
		RoomCharges: 20000,
		Status:      model.BookingConfirmed,
		CreatedBy:   7,
	}
}

// newCtx builds an echo context for an authenticated caller.
func newCtx(method, target, body string, uid uint64, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid > 0 {
		c.Set(middleware.CtxUserID, uid)
		c.Set(middleware.CtxRole, role)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateReservationGuestBooksForSelf(t *testing.T) {
	booker := new(MockBooker)
	h := NewReservationHandler(booker, nil, nil)

	res := room101()
	txn := "txn_1"
	result := &service.BookingResult{
		Reservation: res,
		Payments:    []model.Payment{{ID: 1, ReservationID: 11, Amount: 5000, Method: model.MethodCard, TransactionID: &txn}},
		Ledger:      ledger.View{TotalAmount: 20000, TotalPaid: 5000, Balance: 15000, Status: ledger.StatusPartiallyPaid},
	}
	booker.On("Commit", mock.Anything, mock.MatchedBy(func(r service.BookingRequest) bool {
		return r.GuestID != nil && *r.GuestID == 7 && r.Customer == nil &&
			r.Allowed.Allows(model.MethodCard) && !r.Allowed.Allows(model.MethodCash) &&
			r.IdempotencyKey == "abc" && r.CheckIn.Equal(day("2026-03-01"))
	}), model.PaymentChoice{Type: model.PayPartial, Amount: 5000}).Return(result, nil)

	c, rec := newCtx(http.MethodPost, "/v1/reservations", `{
		"subject_kind":"room","subject_id":101,"check_in":"2026-03-01","check_out":"2026-03-03",
		"payment_choice":{"type":"partial","amount":5000}}`, 7, model.RoleGuest)
	c.Request().Header.Set(headerIdempotency, "abc")

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	led := body["ledger"].(map[string]any)
	assert.EqualValues(t, 20000, led["total_amount"])
	assert.EqualValues(t, 15000, led["balance"])
	assert.Equal(t, "partially_paid", led["payment_status"])
	assert.Equal(t, "2026-03-03", body["reservation"].(map[string]any)["check_out"])
	booker.AssertExpectations(t)
}

func TestCreateReservationReplay(t *testing.T) {
	booker := new(MockBooker)
	h := NewReservationHandler(booker, nil, nil)
	booker.On("Commit", mock.Anything, mock.Anything, mock.Anything).
		Return(&service.BookingResult{Reservation: room101(), Replayed: true}, nil)

	c, rec := newCtx(http.MethodPost, "/v1/reservations", `{
		"subject_kind":"room","subject_id":101,"check_in":"2026-03-01","check_out":"2026-03-03",
		"payment_choice":{"type":"skip"}}`, 7, model.RoleGuest)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(headerReplayed))
}

func TestCreateReservationValidation(t *testing.T) {
	booker := new(MockBooker)
	h := NewReservationHandler(booker, nil, nil)

	cases := map[string]string{
		"missing choice": `{"subject_kind":"room","subject_id":1,"check_in":"2026-03-01","check_out":"2026-03-03"}`,
		"bad kind":       `{"subject_kind":"suite","subject_id":1,"check_in":"2026-03-01","check_out":"2026-03-03","payment_choice":{"type":"skip"}}`,
		"bad date":       `{"subject_kind":"room","subject_id":1,"check_in":"03/01/2026","check_out":"2026-03-03","payment_choice":{"type":"skip"}}`,
		"bad email":      `{"subject_kind":"room","subject_id":1,"check_in":"2026-03-01","check_out":"2026-03-03","customer_details":{"name":"A","email":"x"},"payment_choice":{"type":"skip"}}`,
		"malformed":      `{"subject_kind":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, rec := newCtx(http.MethodPost, "/v1/reservations", body, 1, model.RoleStaff)
			require.NoError(t, h.Create(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "InvalidRequest", decode(t, rec)["kind"])
		})
	}
	booker.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateReservationStaffWalkIn(t *testing.T) {
	booker := new(MockBooker)
	h := NewReservationHandler(booker, nil, nil)
	booker.On("Commit", mock.Anything, mock.MatchedBy(func(r service.BookingRequest) bool {
		return r.GuestID == nil && r.Customer != nil && r.Customer.Email == "ann@example.com" &&
			r.Allowed.Allows(model.MethodCash)
	}), model.PaymentChoice{Type: model.PayFull, Method: model.MethodCash}).
		Return(&service.BookingResult{Reservation: room101()}, nil)

	c, rec := newCtx(http.MethodPost, "/v1/reservations", `{
		"subject_kind":"room","subject_id":101,"check_in":"2026-03-01","check_out":"2026-03-03",
		"customer_details":{"name":"Ann","email":"Ann@Example.com"},
		"payment_choice":{"type":"full","method":"cash"}}`, 2, model.RoleStaff)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	booker.AssertExpectations(t)
}

func TestCreateReservationUnauthenticated(t *testing.T) {
	h := NewReservationHandler(new(MockBooker), nil, nil)
	c, rec := newCtx(http.MethodPost, "/v1/reservations", `{}`, 0, "")
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err           error
		status        int
		kind          string
		reconcile     bool
		authorized    bool
		transactionID string
	}{
		{&service.Error{Kind: service.KindRoomUnavailable, Message: "room taken"}, http.StatusConflict, "RoomUnavailable", false, false, ""},
		{&service.Error{Kind: service.KindExceedsBalance, Message: "too much"}, http.StatusUnprocessableEntity, "ExceedsBalance", false, false, ""},
		{&service.Error{Kind: service.KindGatewayDeclined, Message: "declined"}, http.StatusPaymentRequired, "GatewayDeclined", false, false, ""},
		{&service.Error{Kind: service.KindGatewayTimeout, Message: "timeout"}, http.StatusGatewayTimeout, "GatewayTimeout", false, false, ""},
		{&service.Error{Kind: service.KindCommitConflictAfterPayment, Message: "lost", PaymentAuthorized: true, TransactionID: "txn_9"},
			http.StatusInternalServerError, "CommitConflictAfterPayment", true, true, "txn_9"},
		{&service.Error{Kind: service.KindCancelledReservation, Message: "cancelled"}, http.StatusConflict, "CancelledReservation", false, false, ""},
		{errors.New("boom"), http.StatusInternalServerError, "PersistenceFailure", false, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			c, rec := newCtx(http.MethodGet, "/", "", 1, model.RoleGuest)
			require.NoError(t, writeError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			assert.Equal(t, tc.reconcile, body["needs_reconciliation"])
			assert.Equal(t, tc.authorized, body["payment_authorized"])
			if tc.transactionID != "" {
				assert.Equal(t, tc.transactionID, body["transaction_id"])
			}
		})
	}
}

func TestAddPayment(t *testing.T) {
	led := new(MockLedger)
	h := NewReservationHandler(nil, led, nil)
	led.On("AddPayment", mock.Anything, mock.MatchedBy(func(r service.AddPaymentRequest) bool {
		return r.ReservationID == 11 && r.Amount == 15000 && r.Method == model.MethodCash &&
			r.Allowed.Allows(model.MethodCash) && r.Notes == "desk"
	})).Return(&service.PaymentResult{
		Payment: &model.Payment{ID: 2, ReservationID: 11, Amount: 15000, Method: model.MethodCash},
		Ledger:  ledger.View{TotalAmount: 20000, TotalPaid: 20000, Status: ledger.StatusPaid},
	}, nil)

	c, rec := newCtx(http.MethodPost, "/v1/reservations/11/payments",
		`{"amount":15000,"payment_method":"cash","notes":" desk "}`, 2, model.RoleStaff)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.AddPayment(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "paid", decode(t, rec)["ledger"].(map[string]any)["payment_status"])
	led.AssertExpectations(t)
}

func TestAddPaymentRejected(t *testing.T) {
	led := new(MockLedger)
	h := NewReservationHandler(nil, led, nil)
	led.On("AddPayment", mock.Anything, mock.Anything).
		Return(nil, &service.Error{Kind: service.KindExceedsBalance, Message: "payment exceeds the outstanding balance"})

	c, rec := newCtx(http.MethodPost, "/v1/reservations/11/payments", `{"amount":100,"payment_method":"card"}`, 7, model.RoleGuest)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.AddPayment(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ExceedsBalance", decode(t, rec)["kind"])
}

func TestListPaymentsClampsOverpaidBalance(t *testing.T) {
	led := new(MockLedger)
	h := NewReservationHandler(nil, led, nil)
	actor := service.Actor{UserID: 7, Role: model.RoleGuest}
	led.On("ListReservationPayments", mock.Anything, uint64(11), actor).Return(&service.Folio{
		Reservation: room101(),
		Ledger:      ledger.View{TotalAmount: 100, TotalPaid: 150, Balance: -50, Status: ledger.StatusPaid},
	}, nil)

	c, rec := newCtx(http.MethodGet, "/v1/reservations/11/payments", "", 7, model.RoleGuest)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.ListPayments(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	l := decode(t, rec)["ledger"].(map[string]any)
	assert.EqualValues(t, 0, l["balance"])
	assert.Equal(t, true, l["overpaid"])
}

func TestListPaymentsBadID(t *testing.T) {
	h := NewReservationHandler(nil, new(MockLedger), nil)
	c, rec := newCtx(http.MethodGet, "/v1/reservations/x/payments", "", 7, model.RoleGuest)
	c.SetParamNames("id")
	c.SetParamValues("x")
	require.NoError(t, h.ListPayments(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddServiceAndStatus(t *testing.T) {
	led := new(MockLedger)
	h := NewReservationHandler(nil, led, nil)
	staff := service.Actor{UserID: 2, Role: model.RoleStaff}
	led.On("AppendServiceCharge", mock.Anything, service.ServiceChargeRequest{
		ReservationID: 11, Description: "minibar", Quantity: 2, UnitPrice: 450, Actor: staff,
	}).Return(&service.Folio{Reservation: room101()}, nil)
	checkedIn := room101()
	checkedIn.Status = model.BookingCheckedIn
	led.On("UpdateBookingStatus", mock.Anything, uint64(11), model.BookingCheckedIn, staff).Return(checkedIn, nil)

	c, rec := newCtx(http.MethodPost, "/v1/reservations/11/services", `{"description":"minibar","quantity":2,"unit_price":450}`, 2, model.RoleStaff)
	c.SetParamNames("id")
	c.SetParamValues("11")
	require.NoError(t, h.AddService(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = newCtx(http.MethodPatch, "/v1/reservations/11/status", `{"booking_status":"checkedin"}`, 2, model.RoleStaff)
	c.SetParamNames("id")
	c.SetParamValues("11")
	require.NoError(t, h.UpdateStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "checkedin", decode(t, rec)["reservation"].(map[string]any)["booking_status"])

	c, rec = newCtx(http.MethodPatch, "/v1/reservations/11/status", `{"booking_status":"lost"}`, 2, model.RoleStaff)
	c.SetParamNames("id")
	c.SetParamValues("11")
	require.NoError(t, h.UpdateStatus(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	led.AssertExpectations(t)
}

func TestListMine(t *testing.T) {
	h := NewReservationHandler(nil, nil, stubGuestReservations{*room101()})
	c, rec := newCtx(http.MethodGet, "/v1/reservations", "", 7, model.RoleGuest)
	require.NoError(t, h.ListMine(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
}

func TestAvailabilityCheck(t *testing.T) {
	q := new(MockQuoter)
	h := NewAvailabilityHandler(q, nil)
	subject := model.Subject{Kind: model.SubjectRoom, ID: 101}
	q.On("Quote", mock.Anything, subject, day("2026-03-01"), day("2026-03-03")).Return(&service.Quote{
		Unit:        model.Unit{Subject: subject, Name: "101", NightlyRate: 10000},
		CheckIn:     day("2026-03-01"),
		CheckOut:    day("2026-03-03"),
		Nights:      2,
		RoomCharges: 20000,
		Available:   true,
	}, nil)

	c, rec := newCtx(http.MethodGet, "/v1/availability?subject_kind=room&subject_id=101&check_in=2026-03-01&check_out=2026-03-03", "", 0, "")
	require.NoError(t, h.Check(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["available"])
	assert.EqualValues(t, 20000, body["room_charges"])

	c, rec = newCtx(http.MethodGet, "/v1/availability?subject_kind=room&subject_id=101", "", 0, "")
	require.NoError(t, h.Check(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	q.AssertNumberOfCalls(t, "Quote", 1)
}

func TestListUnits(t *testing.T) {
	h := NewAvailabilityHandler(nil, stubUnits{
		{Subject: model.Subject{Kind: model.SubjectRoom, ID: 1}, Name: "101", NightlyRate: 10000},
		{Subject: model.Subject{Kind: model.SubjectFacility, ID: 2}, Name: "Spa", NightlyRate: 3000},
	})

	c, rec := newCtx(http.MethodGet, "/v1/units?kind=facility", "", 0, "")
	require.NoError(t, h.ListUnits(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Spa", items[0].(map[string]any)["name"])

	c, rec = newCtx(http.MethodGet, "/v1/units?kind=suite", "", 0, "")
	require.NoError(t, h.ListUnits(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthAndReady(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/healthz", "", 0, "")
	require.NoError(t, Health(c))
	assert.Equal(t, "ok", rec.Body.String())

	c, rec = newCtx(http.MethodGet, "/readyz", "", 0, "")
	require.NoError(t, Ready(pingFunc(func(context.Context) error { return errors.New("down") }))(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c, rec = newCtx(http.MethodGet, "/readyz", "", 0, "")
	require.NoError(t, Ready(pingFunc(func(context.Context) error { return nil }))(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseStay(t *testing.T) {
	in, out, err := parseStay("2026-07-10", " 2026-07-12 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), in)
	assert.Equal(t, time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC), out)

	_, _, err = parseStay("2026-07-10T14:00:00Z", "2026-07-12")
	assert.EqualError(t, err, "check_in must be YYYY-MM-DD")
	_, _, err = parseStay("2026-07-10", "")
	assert.EqualError(t, err, "check_out must be YYYY-MM-DD")
}
