// Package rbac implements : tenant-scoped role/permission
// assignment with a TTL-cached permission set per (tenant, user, client)
// and token claim enrichment.
package rbac

// Role is scoped to a tenant. System roles cannot be modified
// or deleted.
type Role struct {
	ID           string `db:"id"`
	TenantID     string `db:"tenant_id"`
	Name         string `db:"name"`
	IsSystemRole bool   `db:"is_system_role"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

// Permission is scoped to a client.
type Permission struct {
	ID        string `db:"id"`
	ClientID  string `db:"client_id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
}

// UserRole links a user to a role within a tenant, with an optional expiry.
type UserRole struct {
	UserID    string `db:"user_id"`
	RoleID    string `db:"role_id"`
	TenantID  string `db:"tenant_id"`
	ExpiresAt *int64 `db:"expires_at"`
}

// RolePermission links a role to a permission.
type RolePermission struct {
	RoleID       string `db:"role_id"`
	PermissionID string `db:"permission_id"`
}

// cacheEntry is the value stored under
// ["rbac","permissions", tenantId, userId, clientId].
type cacheEntry struct {
	Permissions []string `json:"permissions"`
	CachedAt    int64    `json:"cachedAt"`
}

// Claims is the roles+permissions pair embedded into an issued token.
type Claims struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Config tunes the RBAC engine.
type Config struct {
	PermissionCacheTTLSeconds int
	MaxPermissionsInToken     int
}

// DefaultConfig matches the defaults .10.
func DefaultConfig() Config {
	return Config{PermissionCacheTTLSeconds: 60, MaxPermissionsInToken: 50}
}
