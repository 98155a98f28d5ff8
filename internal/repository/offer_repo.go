package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type OfferRepository struct {
	db *pgxpool.Pool
}

func NewOfferRepository(db *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{db: db}
}

func (r *OfferRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Offer, error) {
	query := `
		SELECT id, business_id, title, status, total_amount, currency, item_count, created_at, updated_at
		FROM offers WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Offer
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.ID, &o.BusinessID, &o.Title, &o.Status, &o.TotalAmount,
			&o.Currency, &o.ItemCount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
