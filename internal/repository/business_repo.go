package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type BusinessRepository struct {
	db *pgxpool.Pool
}

func NewBusinessRepository(db *pgxpool.Pool) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = `id, workspace_id, name, email, status, stage, created_at`

func scanBusiness(row interface{ Scan(...any) error }) (*model.Business, error) {
	var b model.Business
	err := row.Scan(&b.ID, &b.WorkspaceID, &b.Name, &b.Email, &b.Status, &b.Stage, &b.CreatedAt)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &b, nil
}

func (r *BusinessRepository) Create(ctx context.Context, b *model.Business) error {
	query := `
		INSERT INTO businesses (workspace_id, name, email, status, stage)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, b.WorkspaceID, b.Name, b.Email, b.Status, b.Stage).
		Scan(&b.ID, &b.CreatedAt)
}

// FindInWorkspace enforces workspace scoping at the query level.
func (r *BusinessRepository) FindInWorkspace(ctx context.Context, id, workspaceID string) (*model.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1 AND workspace_id = $2`
	return scanBusiness(r.db.QueryRow(ctx, query, id, workspaceID))
}

// FindByDomain matches a business whose email shares the sender's domain.
// Used for best-effort auto-association of ingested emails.
func (r *BusinessRepository) FindByDomain(ctx context.Context, domain string) (*model.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE email ILIKE '%@' || $1 LIMIT 1`
	return scanBusiness(r.db.QueryRow(ctx, query, domain))
}
