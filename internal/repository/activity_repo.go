package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type ActivityRepository struct {
	db *pgxpool.Pool
}

func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, business_id, contact_id, user_id, type, description, outcome, completed, date`

func (r *ActivityRepository) listWhere(ctx context.Context, column, scopeID string, limit int) ([]model.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE ` + column + ` = $1 ORDER BY date DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, scopeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.ContactID, &a.UserID, &a.Type,
			&a.Description, &a.Outcome, &a.Completed, &a.Date); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ActivityRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Activity, error) {
	return r.listWhere(ctx, "business_id", businessID, limit)
}

func (r *ActivityRepository) ListByContact(ctx context.Context, contactID string, limit int) ([]model.Activity, error) {
	return r.listWhere(ctx, "contact_id", contactID, limit)
}
