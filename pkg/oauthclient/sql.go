package oauthclient

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/meywd/openauth-core/pkg/apierr"
)

// Schema creates the oauth_clients table if absent.
const Schema = `
CREATE TABLE IF NOT EXISTS oauth_clients (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	client_secret_hash TEXT NOT NULL,
	previous_secret_hash TEXT,
	previous_secret_expires_at INTEGER,
	rotated_at INTEGER,
	grant_types TEXT NOT NULL,
	scopes TEXT NOT NULL,
	redirect_uris TEXT NOT NULL,
	metadata TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(tenant_id, name)
);
CREATE INDEX IF NOT EXISTS idx_oauth_clients_tenant_created ON oauth_clients(tenant_id, created_at DESC, id DESC);
`

// SQLStore is the relational backing for the client registry. Every
// operation here is wrapped by Registry via the resilience wrapper;
// SQLStore itself performs no retry/breaker logic.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wires a SQLStore over an existing *sqlx.DB.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func decodeList(raw string) []string {
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeMap(m map[string]string) (sql.NullString, error) {
	if m == nil {
		// Stored as an empty string, not NULL: Client.MetadataRaw is a plain
		// string, and scanning NULL into it fails.
		return sql.NullString{Valid: true}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMap(raw sql.NullString) map[string]string {
	if !raw.Valid {
		return nil
	}
	var out map[string]string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}

func (s *SQLStore) Insert(ctx context.Context, c Client) error {
	grantTypes, err := encodeList(c.GrantTypes)
	if err != nil {
		return fmt.Errorf("encoding grant types: %w", err)
	}
	scopes, err := encodeList(c.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}
	redirects, err := encodeList(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect uris: %w", err)
	}
	meta, err := encodeMap(c.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (id, tenant_id, name, client_secret_hash, grant_types, scopes, redirect_uris, metadata, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Name, c.ClientSecretHash, grantTypes, scopes, redirects, meta, c.Enabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.ErrClientNameConflict
		}
		return fmt.Errorf("inserting oauth client: %w", err)
	}
	return nil
}

func (s *SQLStore) rowToClient(row Client) Client {
	row.GrantTypes = decodeList(row.GrantTypesRaw)
	row.Scopes = decodeList(row.ScopesRaw)
	row.RedirectURIs = decodeList(row.RedirectURIsRaw)
	row.Metadata = decodeMap(sql.NullString{String: row.MetadataRaw, Valid: row.MetadataRaw != ""})
	return row
}

func (s *SQLStore) GetByTenant(ctx context.Context, clientID, tenantID string) (*Client, error) {
	var row Client
	err := s.db.GetContext(ctx, &row, `SELECT * FROM oauth_clients WHERE id = ? AND tenant_id = ?`, clientID, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading oauth client: %w", err)
	}
	c := s.rowToClient(row)
	return &c, nil
}

func (s *SQLStore) GetByID(ctx context.Context, clientID string) (*Client, error) {
	var row Client
	err := s.db.GetContext(ctx, &row, `SELECT * FROM oauth_clients WHERE id = ?`, clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading oauth client: %w", err)
	}
	c := s.rowToClient(row)
	return &c, nil
}

func (s *SQLStore) GetByName(ctx context.Context, tenantID, name string) (*Client, error) {
	var row Client
	err := s.db.GetContext(ctx, &row, `SELECT * FROM oauth_clients WHERE tenant_id = ? AND name = ?`, tenantID, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading oauth client: %w", err)
	}
	c := s.rowToClient(row)
	return &c, nil
}

// List fetches limit+1 rows ordered by created_at DESC, id DESC starting
// strictly after cursor, so the caller can determine has_more without a
// separate count query.
func (s *SQLStore) List(ctx context.Context, tenantID string, limit int, cursorCreatedAt int64, cursorID string, enabled *bool) ([]Client, error) {
	query := `SELECT * FROM oauth_clients WHERE tenant_id = ?`
	args := []any{tenantID}
	if cursorID != "" {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	if enabled != nil {
		query += ` AND enabled = ?`
		args = append(args, *enabled)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []Client
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing oauth clients: %w", err)
	}
	for i := range rows {
		rows[i] = s.rowToClient(rows[i])
	}
	return rows, nil
}

func (s *SQLStore) Update(ctx context.Context, c Client) error {
	grantTypes, err := encodeList(c.GrantTypes)
	if err != nil {
		return fmt.Errorf("encoding grant types: %w", err)
	}
	scopes, err := encodeList(c.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}
	redirects, err := encodeList(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect uris: %w", err)
	}
	meta, err := encodeMap(c.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE oauth_clients SET
			name = ?, client_secret_hash = ?, previous_secret_hash = ?, previous_secret_expires_at = ?,
			rotated_at = ?, grant_types = ?, scopes = ?, redirect_uris = ?, metadata = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, c.Name, c.ClientSecretHash, c.PreviousSecretHash, c.PreviousSecretExpiresAt, c.RotatedAt,
		grantTypes, scopes, redirects, meta, c.Enabled, c.UpdatedAt, c.ID, c.TenantID)
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.ErrClientNameConflict
		}
		return fmt.Errorf("updating oauth client: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, clientID, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_clients WHERE id = ? AND tenant_id = ?`, clientID, tenantID)
	if err != nil {
		return fmt.Errorf("deleting oauth client: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps SQLite's error text rather than exposing a
	// typed constraint error; matching on the driver's own wording is the
	// documented way to detect this case with this driver.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
