package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type SmsRepository struct {
	db *pgxpool.Pool
}

func NewSmsRepository(db *pgxpool.Pool) *SmsRepository {
	return &SmsRepository{db: db}
}

const smsColumns = `id, business_id, contact_id, direction, content, status, sent_at`

func (r *SmsRepository) listWhere(ctx context.Context, column, scopeID string, limit int) ([]model.SmsMessage, error) {
	query := `SELECT ` + smsColumns + ` FROM sms_messages WHERE ` + column + ` = $1 ORDER BY sent_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, scopeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SmsMessage
	for rows.Next() {
		var m model.SmsMessage
		if err := rows.Scan(&m.ID, &m.BusinessID, &m.ContactID, &m.Direction,
			&m.Content, &m.Status, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SmsRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.SmsMessage, error) {
	return r.listWhere(ctx, "business_id", businessID, limit)
}

func (r *SmsRepository) ListByContact(ctx context.Context, contactID string, limit int) ([]model.SmsMessage, error) {
	return r.listWhere(ctx, "contact_id", contactID, limit)
}
