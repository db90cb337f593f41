package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLLister is a Lister backed by the `tenants` relational table, used so admin listing can run a single
// indexed query instead of a full KV scan.
type SQLLister struct {
	db *sqlx.DB
}

// NewSQLLister wraps an existing *sqlx.DB. The caller is responsible for
// having applied the `tenants` table migration.
func NewSQLLister(db *sqlx.DB) *SQLLister {
	return &SQLLister{db: db}
}

type tenantRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Domain    sql.NullString `db:"domain"`
	Status    string `db:"status"`
	Branding  sql.NullString `db:"branding"`
	Settings  sql.NullString `db:"settings"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func toRow(t *Tenant) (tenantRow, error) {
	branding, err := json.Marshal(t.Branding)
	if err != nil {
		return tenantRow{}, fmt.Errorf("encoding branding: %w", err)
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return tenantRow{}, fmt.Errorf("encoding settings: %w", err)
	}
	row := tenantRow{
		ID:        t.ID,
		Name:      t.Name,
		Status:    string(t.Status),
		Branding:  sql.NullString{String: string(branding), Valid: true},
		Settings:  sql.NullString{String: string(settings), Valid: true},
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Domain != "" {
		row.Domain = sql.NullString{String: t.Domain, Valid: true}
	}
	return row, nil
}

func (row tenantRow) toTenant() Tenant {
	t := Tenant{
		ID:        row.ID,
		Name:      row.Name,
		Domain:    row.Domain.String,
		Status:    Status(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.Branding.Valid {
		_ = json.Unmarshal([]byte(row.Branding.String), &t.Branding)
	}
	if row.Settings.Valid {
		_ = json.Unmarshal([]byte(row.Settings.String), &t.Settings)
	}
	return t
}

// Schema is the DDL this Lister expects. Migrations are applied
// by the external migration CLI; this constant exists so tests and small
// deployments can bootstrap a database without that tool.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT UNIQUE,
	status TEXT NOT NULL,
	branding TEXT,
	settings TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
`

func (l *SQLLister) Create(ctx context.Context, t *Tenant) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = l.db.NamedExecContext(ctx, `
		INSERT INTO tenants (id, name, domain, status, branding, settings, created_at, updated_at)
		VALUES (:id, :name, :domain, :status, :branding, :settings, :created_at, :updated_at)
	`, row)
	return err
}

func (l *SQLLister) Update(ctx context.Context, t *Tenant) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = l.db.NamedExecContext(ctx, `
		UPDATE tenants SET name=:name, domain=:domain, status=:status,
			branding=:branding, settings=:settings, updated_at=:updated_at
		WHERE id=:id
	`, row)
	return err
}

func (l *SQLLister) Delete(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	return err
}

func (l *SQLLister) List(ctx context.Context, filter ListFilter) ([]Tenant, error) {
	query := `SELECT id, name, domain, status, branding, settings, created_at, updated_at FROM tenants`
	args := []any{}
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	var rows []tenantRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	tenants := make([]Tenant, len(rows))
	for i, row := range rows {
		tenants[i] = row.toTenant()
	}
	return tenants, nil
}
