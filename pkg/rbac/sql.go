package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the relational tables backing roles, permissions, and
// their assignments.
const Schema = `
CREATE TABLE IF NOT EXISTS roles (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	is_system_role INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(tenant_id, name)
);
CREATE TABLE IF NOT EXISTS permissions (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(client_id, name)
);
CREATE TABLE IF NOT EXISTS role_permissions (
	role_id TEXT NOT NULL,
	permission_id TEXT NOT NULL,
	PRIMARY KEY (role_id, permission_id)
);
CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT NOT NULL,
	role_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (user_id, role_id)
);
CREATE INDEX IF NOT EXISTS idx_user_roles_tenant_user ON user_roles(tenant_id, user_id);
CREATE INDEX IF NOT EXISTS idx_role_permissions_role ON role_permissions(role_id);
CREATE INDEX IF NOT EXISTS idx_permissions_client ON permissions(client_id);
`

// SQLStore is the relational backing for roles, permissions, and their
// assignments. Callers (the Engine) own caching and cache invalidation;
// SQLStore is a plain CRUD layer.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wires a SQLStore over an existing *sqlx.DB.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) CreateRole(ctx context.Context, r Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, tenant_id, name, is_system_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.TenantID, r.Name, r.IsSystemRole, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting role: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRole(ctx context.Context, tenantID, roleID string) (*Role, error) {
	var r Role
	err := s.db.GetContext(ctx, &r, `SELECT * FROM roles WHERE id = ? AND tenant_id = ?`, roleID, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading role: %w", err)
	}
	return &r, nil
}

func (s *SQLStore) UpdateRole(ctx context.Context, r Role) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE roles SET name = ?, updated_at = ? WHERE id = ? AND tenant_id = ?
	`, r.Name, r.UpdatedAt, r.ID, r.TenantID)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteRole(ctx context.Context, tenantID, roleID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning role delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
		return fmt.Errorf("deleting role permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = ?`, roleID); err != nil {
		return fmt.Errorf("deleting user role assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = ? AND tenant_id = ?`, roleID, tenantID); err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) CreatePermission(ctx context.Context, p Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (id, client_id, name, created_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.ClientID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting permission: %w", err)
	}
	return nil
}

// DeletePermission cascades the delete into role_permissions. This is a
// storage-layer-only operation: no cache invalidation hook fires, matching
// 's note that deletePermission has no direct cache interaction.
func (s *SQLStore) DeletePermission(ctx context.Context, permissionID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning permission delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE permission_id = ?`, permissionID); err != nil {
		return fmt.Errorf("deleting role permission links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, permissionID); err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) AssignRoleToUser(ctx context.Context, ur UserRole) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, role_id) DO UPDATE SET expires_at = excluded.expires_at
	`, ur.UserID, ur.RoleID, ur.TenantID, ur.ExpiresAt)
	if err != nil {
		return fmt.Errorf("assigning role to user: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
	if err != nil {
		return fmt.Errorf("removing role from user: %w", err)
	}
	return nil
}

// RolesForUser returns the non-expired role rows assigned to a user within
// a tenant.
func (s *SQLStore) RolesForUser(ctx context.Context, tenantID, userID string, nowMillis int64) ([]Role, error) {
	var roles []Role
	err := s.db.SelectContext(ctx, &roles, `
		SELECT r.* FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.tenant_id = ? AND ur.user_id = ? AND (ur.expires_at IS NULL OR ur.expires_at > ?)
	`, tenantID, userID, nowMillis)
	if err != nil {
		return nil, fmt.Errorf("reading roles for user: %w", err)
	}
	return roles, nil
}

// UsersWithRole returns every user id assigned roleID, used to drive cache
// invalidation when a role's permission set changes.
func (s *SQLStore) UsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM user_roles WHERE role_id = ?`, roleID)
	if err != nil {
		return nil, fmt.Errorf("reading users with role: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) AssignPermissionToRole(ctx context.Context, rp RolePermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)
		ON CONFLICT(role_id, permission_id) DO NOTHING
	`, rp.RoleID, rp.PermissionID)
	if err != nil {
		return fmt.Errorf("assigning permission to role: %w", err)
	}
	return nil
}

func (s *SQLStore) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("removing permission from role: %w", err)
	}
	return nil
}

// PermissionNamesForRoles returns the distinct permission names granted by
// roleIDs, scoped to clientID.
func (s *SQLStore) PermissionNamesForRoles(ctx context.Context, roleIDs []string, clientID string) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT DISTINCT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id IN (?) AND p.client_id = ?
	`, roleIDs, clientID)
	if err != nil {
		return nil, fmt.Errorf("building permission query: %w", err)
	}
	query = s.db.Rebind(query)
	var names []string
	if err := s.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, fmt.Errorf("reading permissions for roles: %w", err)
	}
	return names, nil
}
