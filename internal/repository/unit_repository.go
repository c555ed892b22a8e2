package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// UnitRepo reads rooms and facilities.  Both tables share the columns
// id, name, nightly_rate, is_active, created_at and updated_at.
type UnitRepo struct {
	db *sql.DB
}

func NewUnitRepo(db *sql.DB) *UnitRepo { return &UnitRepo{db: db} }

func unitTable(kind model.SubjectKind) (string, error) {
	switch kind {
	case model.SubjectRoom:
		return "rooms", nil
	case model.SubjectFacility:
		return "facilities", nil
	}
	return "", fmt.Errorf("unknown subject kind %q", kind)
}

// Get returns an active room or facility.  Inactive units are reported as
// ErrNotFound so they cannot be booked.
func (r *UnitRepo) Get(ctx context.Context, subject model.Subject) (*model.Unit, error) {
	return getUnit(ctx, r.db, subject, false)
}

// List returns all active units of one kind ordered by id.
func (r *UnitRepo) List(ctx context.Context, kind model.SubjectKind) ([]model.Unit, error) {
	table, err := unitTable(kind)
	if err != nil {
		return nil, err
	}
	q := "SELECT id, name, nightly_rate, is_active, created_at, updated_at FROM " + table + " WHERE is_active = 1 ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Unit
	for rows.Next() {
		u := model.Unit{Subject: model.Subject{Kind: kind}}
		if err := rows.Scan(&u.Subject.ID, &u.Name, &u.NightlyRate, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func getUnit(ctx context.Context, q querier, subject model.Subject, forUpdate bool) (*model.Unit, error) {
	table, err := unitTable(subject.Kind)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, name, nightly_rate, is_active, created_at, updated_at FROM " + table + " WHERE id = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}
	u := model.Unit{Subject: model.Subject{Kind: subject.Kind}}
	err = q.QueryRowContext(ctx, query, subject.ID).
		Scan(&u.Subject.ID, &u.Name, &u.NightlyRate, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrNotFound
	}
	return &u, nil
}
