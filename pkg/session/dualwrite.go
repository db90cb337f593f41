package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLMirror is a relational dual-write target for admin queries (list by
// user, list by tenant, cleanup of expired rows) — never consulted on the
// authoritative read path.
type SQLMirror struct {
	db *sqlx.DB
}

// NewSQLMirror wires a SQLMirror over an existing *sqlx.DB.
func NewSQLMirror(db *sqlx.DB) *SQLMirror { return &SQLMirror{db: db} }

// Schema creates the mirror tables if absent.
const Schema = `
CREATE TABLE IF NOT EXISTS browser_sessions (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	user_agent TEXT,
	ip_address TEXT,
	version INTEGER NOT NULL,
	active_user_id TEXT,
	account_user_ids TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_browser_sessions_tenant ON browser_sessions(tenant_id);

CREATE TABLE IF NOT EXISTS account_sessions (
	id TEXT PRIMARY KEY,
	browser_session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	is_active INTEGER NOT NULL,
	authenticated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	subject_type TEXT,
	subject_properties TEXT,
	refresh_token TEXT,
	client_id TEXT,
	UNIQUE(browser_session_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_account_sessions_user ON account_sessions(user_id);
`

type browserRow struct {
	ID             string         `db:"id"`
	TenantID       string         `db:"tenant_id"`
	CreatedAt      int64          `db:"created_at"`
	LastActivity   int64          `db:"last_activity"`
	UserAgent      string         `db:"user_agent"`
	IPAddress      string         `db:"ip_address"`
	Version        int            `db:"version"`
	ActiveUserID   sql.NullString `db:"active_user_id"`
	AccountUserIDs string         `db:"account_user_ids"`
}

func (m *SQLMirror) MirrorBrowserUpsert(ctx context.Context, bs *BrowserSession) error {
	ids, err := json.Marshal(bs.AccountUserIDs)
	if err != nil {
		return fmt.Errorf("marshaling account user ids: %w", err)
	}
	row := browserRow{
		ID: bs.ID, TenantID: bs.TenantID, CreatedAt: bs.CreatedAt, LastActivity: bs.LastActivity,
		UserAgent: bs.UserAgent, IPAddress: bs.IPAddress, Version: bs.Version, AccountUserIDs: string(ids),
	}
	if bs.ActiveUserID != nil {
		row.ActiveUserID = sql.NullString{String: *bs.ActiveUserID, Valid: true}
	}
	_, err = m.db.NamedExecContext(ctx, `
		INSERT INTO browser_sessions (id, tenant_id, created_at, last_activity, user_agent, ip_address, version, active_user_id, account_user_ids)
		VALUES (:id, :tenant_id, :created_at, :last_activity, :user_agent, :ip_address, :version, :active_user_id, :account_user_ids)
		ON CONFLICT(id) DO UPDATE SET
			last_activity=excluded.last_activity, version=excluded.version,
			active_user_id=excluded.active_user_id, account_user_ids=excluded.account_user_ids
	`, row)
	return err
}

func (m *SQLMirror) MirrorBrowserDelete(ctx context.Context, tenantID, sessionID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM browser_sessions WHERE id = ? AND tenant_id = ?`, sessionID, tenantID)
	return err
}

type accountRow struct {
	ID                string         `db:"id"`
	BrowserSessionID  string         `db:"browser_session_id"`
	UserID            string         `db:"user_id"`
	IsActive          bool           `db:"is_active"`
	AuthenticatedAt   int64          `db:"authenticated_at"`
	ExpiresAt         int64          `db:"expires_at"`
	SubjectType       string         `db:"subject_type"`
	SubjectProperties sql.NullString `db:"subject_properties"`
	RefreshToken      string         `db:"refresh_token"`
	ClientID          string         `db:"client_id"`
}

func (m *SQLMirror) MirrorAccountUpsert(ctx context.Context, as *AccountSession) error {
	row := accountRow{
		ID: as.ID, BrowserSessionID: as.BrowserSessionID, UserID: as.UserID, IsActive: as.IsActive,
		AuthenticatedAt: as.AuthenticatedAt, ExpiresAt: as.ExpiresAt, SubjectType: as.SubjectType,
		RefreshToken: as.RefreshToken, ClientID: as.ClientID,
	}
	if as.SubjectProperties != nil {
		b, err := json.Marshal(as.SubjectProperties)
		if err != nil {
			return fmt.Errorf("marshaling subject properties: %w", err)
		}
		row.SubjectProperties = sql.NullString{String: string(b), Valid: true}
	}
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO account_sessions (id, browser_session_id, user_id, is_active, authenticated_at, expires_at, subject_type, subject_properties, refresh_token, client_id)
		VALUES (:id, :browser_session_id, :user_id, :is_active, :authenticated_at, :expires_at, :subject_type, :subject_properties, :refresh_token, :client_id)
		ON CONFLICT(browser_session_id, user_id) DO UPDATE SET
			is_active=excluded.is_active, authenticated_at=excluded.authenticated_at,
			expires_at=excluded.expires_at, refresh_token=excluded.refresh_token
	`, row)
	return err
}

func (m *SQLMirror) MirrorAccountDelete(ctx context.Context, browserSessionID, userID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM account_sessions WHERE browser_session_id = ? AND user_id = ?`, browserSessionID, userID)
	return err
}

// ListByUser returns every account session row for userID across the
// relational mirror, for admin tooling.
func (m *SQLMirror) ListByUser(ctx context.Context, userID string) ([]accountRow, error) {
	var rows []accountRow
	err := m.db.SelectContext(ctx, &rows, `SELECT * FROM account_sessions WHERE user_id = ?`, userID)
	return rows, err
}

// ListByTenant returns every browser session row for tenantID.
func (m *SQLMirror) ListByTenant(ctx context.Context, tenantID string) ([]browserRow, error) {
	var rows []browserRow
	err := m.db.SelectContext(ctx, &rows, `SELECT * FROM browser_sessions WHERE tenant_id = ?`, tenantID)
	return rows, err
}

// CleanupExpired deletes account_sessions mirror rows whose expires_at is
// before nowMillis, for a scheduled admin job; browser_sessions rows are
// not touched. The KV store remains authoritative and self-expires
// independently via TTL.
func (m *SQLMirror) CleanupExpired(ctx context.Context, nowMillis int64) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM account_sessions WHERE expires_at < ?`, nowMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
