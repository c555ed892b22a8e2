package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

var (
	day1 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	day4 = time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC)
	now  = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
)

var reservationCols = []string{"id", "subject_kind", "subject_id", "guest_id", "customer_name", "customer_phone",
	"customer_email", "check_in", "check_out", "room_charges", "service_charges", "booking_status",
	"idempotency_key", "created_by", "created_at", "updated_at"}

var paymentCols = []string{"id", "reservation_id", "amount", "method", "transaction_id", "notes",
	"payment_date", "idempotency_key", "recorded_by"}

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestHasOverlap(t *testing.T) {
	store, mock := newStore(t)
	room := model.Subject{Kind: model.SubjectRoom, ID: 12}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("room", uint64(12), day1, day4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	overlap, err := store.HasOverlap(context.Background(), room, day1, day4)
	require.NoError(t, err)
	assert.True(t, overlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnit(t *testing.T) {
	unitCols := []string{"id", "name", "nightly_rate", "is_active", "created_at", "updated_at"}

	t.Run("Success", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectQuery("FROM facilities WHERE id").
			WithArgs(uint64(3)).
			WillReturnRows(sqlmock.NewRows(unitCols).AddRow(3, "Spa", 8000, true, now, now))

		u, err := store.GetUnit(context.Background(), model.Subject{Kind: model.SubjectFacility, ID: 3})
		require.NoError(t, err)
		assert.Equal(t, "Spa", u.Name)
		assert.Equal(t, int64(8000), u.NightlyRate)
		assert.Equal(t, model.SubjectFacility, u.Subject.Kind)
	})

	t.Run("InactiveIsNotFound", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectQuery("FROM rooms WHERE id").
			WillReturnRows(sqlmock.NewRows(unitCols).AddRow(1, "101", 15000, false, now, now))

		_, err := store.GetUnit(context.Background(), model.Subject{Kind: model.SubjectRoom, ID: 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Missing", func(t *testing.T) {
		store, mock := newStore(t)
		mock.ExpectQuery("FROM rooms WHERE id").WillReturnError(sql.ErrNoRows)

		_, err := store.GetUnit(context.Background(), model.Subject{Kind: model.SubjectRoom, ID: 99})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		store, _ := newStore(t)
		_, err := store.GetUnit(context.Background(), model.Subject{Kind: "suite", ID: 1})
		assert.Error(t, err)
	})
}

func TestBookingTxCommitFlow(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	room := model.Subject{Kind: model.SubjectRoom, ID: 12}
	guest := uint64(7)
	key := "commit-1"

	mock.ExpectBegin()
	mock.ExpectQuery("FROM rooms WHERE id = \\? FOR UPDATE").
		WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nightly_rate", "is_active", "created_at", "updated_at"}).
			AddRow(12, "Deluxe", 15000, true, now, now))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO reservations").
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectQuery("SELECT created_at, updated_at FROM reservations").
		WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.LockUnit(ctx, room)
	require.NoError(t, err)
	overlap, err := tx.HasOverlap(ctx, room, day1, day4)
	require.NoError(t, err)
	require.False(t, overlap)

	res := &model.Reservation{Subject: room, GuestID: &guest, CheckIn: day1, CheckOut: day4,
		RoomCharges: 45000, Status: model.BookingConfirmed, IdempotencyKey: &key, CreatedBy: guest}
	require.NoError(t, tx.CreateReservation(ctx, res))
	assert.Equal(t, uint64(41), res.ID)
	assert.Equal(t, now, res.CreatedAt)

	txn := "txn_1"
	p := &model.Payment{ReservationID: res.ID, Amount: 20000, Method: model.MethodCard, TransactionID: &txn, RecordedBy: guest}
	require.NoError(t, tx.CreatePayment(ctx, p))
	assert.Equal(t, uint64(5), p.ID)
	assert.False(t, p.PaymentDate.IsZero())

	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationDuplicateKey(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservations").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'k' for key 'uq_reservations_idem'"})
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	err = tx.CreateReservation(ctx, &model.Reservation{
		Subject:  model.Subject{Kind: model.SubjectRoom, ID: 1},
		Customer: &model.CustomerDetails{Name: "Walk In"},
		CheckIn:  day1, CheckOut: day4, Status: model.BookingPending,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockReservationAttachesServiceDetails(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM reservations WHERE id = \\? FOR UPDATE").
		WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(41, "room", 12, nil, "Ann Walker", "555-0101", nil, day1, day4, 45000, 0, "confirmed", nil, 2, now, now))
	mock.ExpectQuery("FROM reservation_services WHERE reservation_id").
		WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "description", "quantity", "unit_price", "price", "completed_at"}).
			AddRow(1, 41, "minibar", 2, 1500, 3000, now))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	res, err := tx.LockReservation(ctx, 41)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Nil(t, res.GuestID)
	require.NotNil(t, res.Customer)
	assert.Equal(t, "Ann Walker", res.Customer.Name)
	assert.Equal(t, "", res.Customer.Email)
	assert.Equal(t, model.BookingConfirmed, res.Status)
	require.Len(t, res.ServiceDetails, 1)
	assert.Equal(t, int64(3000), res.ServiceDetails[0].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReservationNotFound(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("FROM reservations WHERE id").WillReturnError(sql.ErrNoRows)

	_, err := store.GetReservation(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPayments(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("FROM payments WHERE reservation_id").
		WithArgs(uint64(41)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(1, 41, 20000, "card", "txn_a", nil, now, "pay-1", 7).
			AddRow(2, 41, 30000, "cash", nil, "front desk", now.Add(time.Hour), nil, 2))

	payments, err := store.ListPayments(context.Background(), 41)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.NotNil(t, payments[0].TransactionID)
	assert.Equal(t, "txn_a", *payments[0].TransactionID)
	assert.Equal(t, "pay-1", *payments[0].IdempotencyKey)
	assert.Nil(t, payments[1].TransactionID)
	assert.Equal(t, model.MethodCash, payments[1].Method)
	assert.Equal(t, "front desk", payments[1].Notes)
}

func TestFindPaymentByKeyNotFound(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("FROM payments WHERE idempotency_key").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := store.FindPaymentByKey(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendServiceDetailDerivesPrice(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservation_services").
		WithArgs(uint64(41), "laundry", uint32(3), int64(700), int64(2100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	d := &model.ServiceDetail{ReservationID: 41, Description: "laundry", Quantity: 3, UnitPrice: 700}
	require.NoError(t, tx.AppendServiceDetail(ctx, d))
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(2100), d.Price)
	assert.Equal(t, uint64(9), d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverpaid(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("WHERE p.paid >").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total", "paid"}).AddRow(41, 50000, 60000))

	rows, err := store.Reservations.ListOverpaid(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, OverpaidReservation{ReservationID: 41, TotalAmount: 50000, TotalPaid: 60000}, rows[0])
}

func TestValidateRefresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTokenRepo(db)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").
		WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(7, now.Add(time.Hour), nil))
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash").
		WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(7, now.Add(-time.Hour), nil))

	uid, err := repo.ValidateRefresh(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)

	_, err = repo.ValidateRefresh(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").
		WithArgs("a@b.test", sqlmock.AnyArg(), "GUEST").
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err = NewUserRepo(db).Create(context.Background(), " A@B.test ", "secret", "GUEST", 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}
