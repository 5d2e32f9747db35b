package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores contacts in the relational database.
type PostgresRepository struct {
	db rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("contacts: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const contactColumns = `id, tenant_id, first_name, last_name, email, phone, status, lead_score, source, created_at, updated_at`

// FindByPhone returns the tenant's contact with exactly this phone.
func (r *PostgresRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND phone = $2`
	c, err := scanContact(r.db.QueryRow(ctx, query, tenantID, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contacts: find by phone: %w", err)
	}
	return c, nil
}

// CreateIfAbsent inserts c unless a contact already holds (tenant_id, phone).
// When another writer won, the existing row is returned with created=false.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, c *Contact) (*Contact, bool, error) {
	query := `
		INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, phone) DO NOTHING
		RETURNING ` + contactColumns
	created, err := scanContact(r.db.QueryRow(ctx, query,
		c.ID,
		c.TenantID,
		c.FirstName,
		c.LastName,
		c.Email,
		c.Phone,
		c.Status,
		c.LeadScore,
		c.Source,
		c.CreatedAt,
		c.UpdatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("contacts: insert failed: %w", err)
	}
	existing, err := r.FindByPhone(ctx, c.TenantID, c.Phone)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Status,
		&c.LeadScore,
		&c.Source,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
