package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

const (
	dayLayout         = "2006-01-02"
	headerIdempotency = "Idempotency-Key"
	headerReplayed    = "Idempotent-Replayed"
	maxIdempotencyKey = 128
)

// kindStatus gives every failure kind its own HTTP status.  The two kinds
// where money moved without a home are never mapped to a 4xx validation
// status.
var kindStatus = map[service.Kind]int{
	service.KindInvalidRequest:             http.StatusBadRequest,
	service.KindSubjectNotFound:            http.StatusNotFound,
	service.KindReservationNotFound:        http.StatusNotFound,
	service.KindForbidden:                  http.StatusForbidden,
	service.KindMethodNotAllowed:           http.StatusForbidden,
	service.KindRoomUnavailable:            http.StatusConflict,
	service.KindInvalidAmount:              http.StatusUnprocessableEntity,
	service.KindExceedsBalance:             http.StatusUnprocessableEntity,
	service.KindGatewayDeclined:            http.StatusPaymentRequired,
	service.KindGatewayTimeout:             http.StatusGatewayTimeout,
	service.KindPaymentFailed:              http.StatusBadGateway,
	service.KindCommitConflictAfterPayment: http.StatusInternalServerError,
	service.KindPersistenceFailure:         http.StatusInternalServerError,
	service.KindCancelledReservation:       http.StatusConflict,
	service.KindNotCancellable:             http.StatusConflict,
	service.KindInvalidTransition:          http.StatusConflict,
	service.KindDuplicateInFlight:          http.StatusConflict,
	service.KindCancelled:                  http.StatusRequestTimeout,
}

type errorBody struct {
	Error               string `json:"error"`
	Kind                string `json:"kind"`
	PaymentAuthorized   bool   `json:"payment_authorized"`
	NeedsReconciliation bool   `json:"needs_reconciliation"`
	TransactionID       string `json:"transaction_id,omitempty"`
}

// writeError renders err as the structured error body.  Errors that are
// not *service.Error are logged and hidden behind a generic 500.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		logger.ErrorContext(c.Request().Context(), "unhandled error", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Kind: string(service.KindPersistenceFailure)})
	}
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "kind", se.Kind, "error", se)
	}
	return c.JSON(status, errorBody{
		Error:               se.Message,
		Kind:                string(se.Kind),
		PaymentAuthorized:   se.PaymentAuthorized,
		NeedsReconciliation: se.NeedsReconciliation(),
		TransactionID:       se.TransactionID,
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: msg, Kind: string(service.KindInvalidRequest)})
}

// bindValid binds the request into dst and runs the registered validator.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.New("invalid request body")
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return c.Validate(dst)
}

// normalizer is implemented by request bodies that clean their fields
// before validation runs.
type normalizer interface {
	normalize()
}

// getUserID extracts the caller id stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		if t > 0 {
			return t, nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actorFrom builds the service actor for the authenticated caller.
func actorFrom(c echo.Context) (service.Actor, bool) {
	uid, err := getUserID(c)
	if err != nil {
		return service.Actor{}, false
	}
	role, _ := c.Get(middleware.CtxRole).(string)
	return service.Actor{UserID: uid, Role: role}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func parseIDParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c echo.Context) (string, error) {
	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotency))
	if len(key) > maxIdempotencyKey {
		return "", errors.New("idempotency key must be at most 128 characters")
	}
	return key, nil
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, strings.TrimSpace(s), time.UTC)
}

// parseStay parses a check-in/check-out pair of calendar days.
func parseStay(checkIn, checkOut string) (time.Time, time.Time, error) {
	in, err := parseDay(checkIn)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("check_in must be YYYY-MM-DD")
	}
	out, err := parseDay(checkOut)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("check_out must be YYYY-MM-DD")
	}
	return in, out, nil
}
