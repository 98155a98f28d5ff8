package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
	"sailsdock/pkg/outbox"
)

type EmailRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewEmailRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *EmailRepository {
	return &EmailRepository{db: db, outbox: outboxRepo}
}

const emailColumns = `id, owner_id, mailbox_connection_id, external_id, thread_id, subject,
	from_address, from_name, to_addresses, cc_addresses, sent_at, received_at,
	body_text, body_html, is_read, is_starred, is_deleted, business_id, contact_id, created_at`

func scanEmail(row interface{ Scan(...any) error }) (*model.SyncedEmail, error) {
	var e model.SyncedEmail
	err := row.Scan(&e.ID, &e.OwnerID, &e.MailboxConnectionID, &e.ExternalID, &e.ThreadID,
		&e.Subject, &e.FromAddress, &e.FromName, &e.ToAddresses, &e.CcAddresses,
		&e.SentAt, &e.ReceivedAt, &e.BodyText, &e.BodyHTML, &e.IsRead, &e.IsStarred,
		&e.IsDeleted, &e.BusinessID, &e.ContactID, &e.CreatedAt)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &e, nil
}

// CreateWithEvent inserts the email and its outbox event in one transaction.
// A unique violation on (mailbox_connection_id, external_id) rolls back and
// returns ErrDuplicateEmail without writing the event.
func (r *EmailRepository) CreateWithEvent(ctx context.Context, e *model.SyncedEmail, event *outbox.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO synced_emails (id, owner_id, mailbox_connection_id, external_id, thread_id,
			subject, from_address, from_name, to_addresses, cc_addresses, sent_at, received_at,
			body_text, body_html, is_read, is_starred, business_id, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at`
	err = tx.QueryRow(ctx, query, e.ID, e.OwnerID, e.MailboxConnectionID, e.ExternalID, e.ThreadID,
		e.Subject, e.FromAddress, e.FromName, e.ToAddresses, e.CcAddresses, e.SentAt, e.ReceivedAt,
		e.BodyText, e.BodyHTML, e.IsRead, e.IsStarred, e.BusinessID, e.ContactID).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	if event != nil {
		if err := r.outbox.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *EmailRepository) FindByID(ctx context.Context, id, ownerID string) (*model.SyncedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM synced_emails WHERE id = $1 AND owner_id = $2`
	return scanEmail(r.db.QueryRow(ctx, query, id, ownerID))
}

func (r *EmailRepository) FindByConnectionAndExternalID(ctx context.Context, connectionID, externalID string) (*model.SyncedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM synced_emails WHERE mailbox_connection_id = $1 AND external_id = $2`
	return scanEmail(r.db.QueryRow(ctx, query, connectionID, externalID))
}

// ListFilter narrows ListByOwner. Nil pointer fields are not applied.
type ListFilter struct {
	IsRead     *bool
	IsStarred  *bool
	BusinessID *string
	ContactID  *string
	Limit      int
	Offset     int
}

func (r *EmailRepository) ListByOwner(ctx context.Context, ownerID string, filter ListFilter) ([]model.SyncedEmail, error) {
	conditions := []string{"owner_id = $1", "is_deleted = FALSE"}
	args := []any{ownerID}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		conditions = append(conditions, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if filter.IsStarred != nil {
		args = append(args, *filter.IsStarred)
		conditions = append(conditions, fmt.Sprintf("is_starred = $%d", len(args)))
	}
	if filter.BusinessID != nil {
		args = append(args, *filter.BusinessID)
		conditions = append(conditions, fmt.Sprintf("business_id = $%d", len(args)))
	}
	if filter.ContactID != nil {
		args = append(args, *filter.ContactID)
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf("LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	offsetClause := fmt.Sprintf("OFFSET $%d", len(args))

	query := `SELECT ` + emailColumns + ` FROM synced_emails WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY sent_at DESC ` + limitClause + ` ` + offsetClause
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncedEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EmailRepository) UpdateFlags(ctx context.Context, id, ownerID string, isRead, isStarred *bool) error {
	query := `
		UPDATE synced_emails
		SET is_read = COALESCE($3, is_read),
		    is_starred = COALESCE($4, is_starred)
		WHERE id = $1 AND owner_id = $2`
	tag, err := r.db.Exec(ctx, query, id, ownerID, isRead, isStarred)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteByExternalID marks a message removed upstream. The row is kept so
// the idempotency key still blocks re-ingestion.
func (r *EmailRepository) SoftDeleteByExternalID(ctx context.Context, connectionID, externalID string) error {
	query := `UPDATE synced_emails SET is_deleted = TRUE WHERE mailbox_connection_id = $1 AND external_id = $2`
	_, err := r.db.Exec(ctx, query, connectionID, externalID)
	return err
}

func (r *EmailRepository) Associate(ctx context.Context, id string, businessID, contactID *string) error {
	query := `
		UPDATE synced_emails
		SET business_id = COALESCE($2, business_id),
		    contact_id = COALESCE($3, contact_id)
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, businessID, contactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EmailRepository) listByScopeColumn(ctx context.Context, column, scopeID string, limit int) ([]model.SyncedEmail, error) {
	query := `SELECT ` + emailColumns + ` FROM synced_emails WHERE ` + column + ` = $1 AND is_deleted = FALSE ORDER BY sent_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, scopeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncedEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EmailRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.SyncedEmail, error) {
	return r.listByScopeColumn(ctx, "business_id", businessID, limit)
}

func (r *EmailRepository) ListByContact(ctx context.Context, contactID string, limit int) ([]model.SyncedEmail, error) {
	return r.listByScopeColumn(ctx, "contact_id", contactID, limit)
}
