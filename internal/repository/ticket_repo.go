package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type TicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Ticket, error) {
	query := `
		SELECT id, business_id, creator_id, assignee_id, title, status, priority, created_at, resolved_at
		FROM tickets WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.CreatorID, &t.AssigneeID, &t.Title,
			&t.Status, &t.Priority, &t.CreatedAt, &t.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListCommentsForTickets batch-loads the comments for a set of tickets,
// newest first per ticket.
func (r *TicketRepository) ListCommentsForTickets(ctx context.Context, ticketIDs []string) ([]model.TicketComment, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, ticket_id, author_id, content, is_internal, created_at
		FROM ticket_comments WHERE ticket_id = ANY($1) ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TicketComment
	for rows.Next() {
		var c model.TicketComment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorID, &c.Content, &c.IsInternal, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
