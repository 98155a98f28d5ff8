package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type ConnectionRepository struct {
	db *pgxpool.Pool
}

func NewConnectionRepository(db *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, owner_id, provider, email, access_token, refresh_token, expires_at, delta_cursor, last_synced_at, created_at`

func scanConnection(row interface{ Scan(...any) error }) (*model.MailboxConnection, error) {
	var c model.MailboxConnection
	err := row.Scan(&c.ID, &c.OwnerID, &c.Provider, &c.Email, &c.AccessToken,
		&c.RefreshToken, &c.ExpiresAt, &c.DeltaCursor, &c.LastSyncedAt, &c.CreatedAt)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &c, nil
}

func (r *ConnectionRepository) Create(ctx context.Context, c *model.MailboxConnection) error {
	query := `
		INSERT INTO mailbox_connections (owner_id, provider, email, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, c.OwnerID, c.Provider, c.Email,
		c.AccessToken, c.RefreshToken, c.ExpiresAt).Scan(&c.ID, &c.CreatedAt)
}

func (r *ConnectionRepository) FindByID(ctx context.Context, id string) (*model.MailboxConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM mailbox_connections WHERE id = $1`
	return scanConnection(r.db.QueryRow(ctx, query, id))
}

func (r *ConnectionRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.MailboxConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM mailbox_connections WHERE owner_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MailboxConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateTokens persists refreshed credentials. An empty refresh token keeps
// the stored one: some providers only rotate it occasionally.
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE mailbox_connections
		SET access_token = $2,
		    refresh_token = CASE WHEN $3 = '' THEN refresh_token ELSE $3 END,
		    expires_at = $4
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeltaCursor advances the stored cursor and sync watermark in one
// statement, after a delta page has been fully applied.
func (r *ConnectionRepository) UpdateDeltaCursor(ctx context.Context, id, cursor string, syncedAt time.Time) error {
	query := `UPDATE mailbox_connections SET delta_cursor = $2, last_synced_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, cursor, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConnectionRepository) TouchLastSynced(ctx context.Context, id string, syncedAt time.Time) error {
	query := `UPDATE mailbox_connections SET last_synced_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, syncedAt)
	return err
}

func (r *ConnectionRepository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mailbox_connections WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
