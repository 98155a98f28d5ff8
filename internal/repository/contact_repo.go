package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sailsdock/internal/model"
)

type ContactRepository struct {
	db *pgxpool.Pool
}

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, business_id, name, email, phone, position, is_primary, created_at`

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.Position, &c.IsPrimary, &c.CreatedAt)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	query := `
		INSERT INTO contacts (business_id, name, email, phone, position, is_primary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, c.BusinessID, c.Name, c.Email, c.Phone, c.Position, c.IsPrimary).
		Scan(&c.ID, &c.CreatedAt)
}

// FindInWorkspace resolves a contact through its business so workspace
// scoping holds for contact-level queries too.
func (r *ContactRepository) FindInWorkspace(ctx context.Context, id, workspaceID string) (*model.Contact, error) {
	query := `
		SELECT c.id, c.business_id, c.name, c.email, c.phone, c.position, c.is_primary, c.created_at
		FROM contacts c
		JOIN businesses b ON b.id = c.business_id
		WHERE c.id = $1 AND b.workspace_id = $2`
	return scanContact(r.db.QueryRow(ctx, query, id, workspaceID))
}

func (r *ContactRepository) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE email = $1 LIMIT 1`
	return scanContact(r.db.QueryRow(ctx, query, email))
}

func (r *ContactRepository) ListByBusiness(ctx context.Context, businessID string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE business_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
