package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/kvstore"
	"github.com/meywd/openauth-core/pkg/logger"
)

// Engine implements tenant-scoped role-based access control: a
// cache-through permission lookup over the roles/permissions tables, plus
// token claim enrichment.
type Engine struct {
	store *SQLStore
	cache kvstore.Store
	cfg   Config
	now   func() time.Time
}

// NewEngine wires an Engine. cache is the process-wide key-value store;
// permission sets are cached there keyed by
// ["rbac","permissions",tenantId,userId,clientId].
func NewEngine(store *SQLStore, cache kvstore.Store, cfg Config) *Engine {
	return &Engine{store: store, cache: cache, cfg: cfg, now: time.Now}
}

func permissionCacheKey(tenantID, userID, clientID string) kvstore.Key {
	return kvstore.Key{"rbac", "permissions", tenantID, userID, clientID}
}

func permissionCachePrefix(tenantID, userID string) kvstore.Key {
	return kvstore.Key{"rbac", "permissions", tenantID, userID}
}

func (e *Engine) cacheTTL() time.Duration {
	return time.Duration(e.cfg.PermissionCacheTTLSeconds) * time.Second
}

// GetUserRoles is read-through: it always hits the store, never the cache.
func (e *Engine) GetUserRoles(ctx context.Context, tenantID, userID string) ([]Role, error) {
	return e.store.RolesForUser(ctx, tenantID, userID, e.now().UnixMilli())
}

// GetUserPermissions returns the permission names granted to userID for
// clientID, serving from cache when present and populating it on miss.
func (e *Engine) GetUserPermissions(ctx context.Context, tenantID, userID, clientID string) ([]string, error) {
	key := permissionCacheKey(tenantID, userID, clientID)
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var entry cacheEntry
		if json.Unmarshal(raw, &entry) == nil {
			return entry.Permissions, nil
		}
	} else if err != kvstore.ErrNotFound {
		logger.Warnw("rbac permission cache read failed, falling back to store", "error", err)
	}

	roles, err := e.GetUserRoles(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	roleIDs := make([]string, len(roles))
	for i, r := range roles {
		roleIDs[i] = r.ID
	}
	names, err := e.store.PermissionNamesForRoles(ctx, roleIDs, clientID)
	if err != nil {
		return nil, err
	}

	entry := cacheEntry{Permissions: names, CachedAt: e.now().UnixMilli()}
	b, err := json.Marshal(entry)
	if err == nil {
		if err := e.cache.Set(ctx, key, b, e.cacheTTL()); err != nil {
			logger.Warnw("rbac permission cache write failed", "error", err)
		}
	}
	return names, nil
}

// CheckPermission reports whether userID holds permission for clientID.
func (e *Engine) CheckPermission(ctx context.Context, tenantID, userID, clientID, permission string) (bool, error) {
	perms, err := e.GetUserPermissions(ctx, tenantID, userID, clientID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// CheckPermissions batch-checks permissions against a single cached/fetched
// permission set. Callers are expected to cap len(permissions) at 100
//; the engine does not enforce this itself.
func (e *Engine) CheckPermissions(ctx context.Context, tenantID, userID, clientID string, permissions []string) (map[string]bool, error) {
	perms, err := e.GetUserPermissions(ctx, tenantID, userID, clientID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		held[p] = struct{}{}
	}
	result := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		_, ok := held[p]
		result[p] = ok
	}
	return result, nil
}

// EnrichTokenClaims fetches roles and permissions concurrently and truncates
// the permission list to MaxPermissionsInToken, logging a warning on
// truncation.
func (e *Engine) EnrichTokenClaims(ctx context.Context, tenantID, userID, clientID string) (*Claims, error) {
	var roleNames []string
	var permNames []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roles, err := e.GetUserRoles(gctx, tenantID, userID)
		if err != nil {
			return fmt.Errorf("fetching roles: %w", err)
		}
		roleNames = make([]string, len(roles))
		for i, r := range roles {
			roleNames[i] = r.Name
		}
		return nil
	})
	g.Go(func() error {
		perms, err := e.GetUserPermissions(gctx, tenantID, userID, clientID)
		if err != nil {
			return fmt.Errorf("fetching permissions: %w", err)
		}
		permNames = perms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(permNames) > e.cfg.MaxPermissionsInToken {
		logger.Warnw("truncating permissions embedded in token",
			"userId", userID, "tenantId", tenantID, "total", len(permNames), "max", e.cfg.MaxPermissionsInToken)
		permNames = permNames[:e.cfg.MaxPermissionsInToken]
	}

	return &Claims{Roles: roleNames, Permissions: permNames}, nil
}

// invalidateUserCache removes every cached permission set for (tenantID,
// userID) across all clients by scanning the shared prefix.
func (e *Engine) invalidateUserCache(ctx context.Context, tenantID, userID string) {
	for entry := range e.cache.Scan(ctx, permissionCachePrefix(tenantID, userID)) {
		if err := e.cache.Remove(ctx, entry.Key); err != nil {
			logger.Warnw("failed to invalidate rbac permission cache entry", "key", entry.Key, "error", err)
		}
	}
}

// AssignRoleToUser assigns roleID to userID and invalidates that user's
// cached permission sets.
func (e *Engine) AssignRoleToUser(ctx context.Context, tenantID, userID, roleID string, expiresAt *int64) error {
	if err := e.store.AssignRoleToUser(ctx, UserRole{UserID: userID, RoleID: roleID, TenantID: tenantID, ExpiresAt: expiresAt}); err != nil {
		return err
	}
	e.invalidateUserCache(ctx, tenantID, userID)
	return nil
}

// RemoveRoleFromUser removes roleID from userID and invalidates that
// user's cached permission sets.
func (e *Engine) RemoveRoleFromUser(ctx context.Context, tenantID, userID, roleID string) error {
	if err := e.store.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	e.invalidateUserCache(ctx, tenantID, userID)
	return nil
}

// invalidateEveryUserWithRole enumerates the users holding roleID and
// invalidates each of their cached permission sets. Enumeration failure is
// logged and allowed to fall through to TTL expiry rather than propagated,
// per .
func (e *Engine) invalidateEveryUserWithRole(ctx context.Context, tenantID, roleID string) {
	userIDs, err := e.store.UsersWithRole(ctx, roleID)
	if err != nil {
		logger.Warnw("failed to enumerate users for cache invalidation; entries will expire via TTL", "roleId", roleID, "error", err)
		return
	}
	for _, userID := range userIDs {
		e.invalidateUserCache(ctx, tenantID, userID)
	}
}

// AssignPermissionToRole links permissionID into roleID and invalidates the
// cache for every user holding that role.
func (e *Engine) AssignPermissionToRole(ctx context.Context, tenantID, roleID, permissionID string) error {
	if err := e.store.AssignPermissionToRole(ctx, RolePermission{RoleID: roleID, PermissionID: permissionID}); err != nil {
		return err
	}
	e.invalidateEveryUserWithRole(ctx, tenantID, roleID)
	return nil
}

// RemovePermissionFromRole unlinks permissionID from roleID and invalidates
// the cache for every user holding that role.
func (e *Engine) RemovePermissionFromRole(ctx context.Context, tenantID, roleID, permissionID string) error {
	if err := e.store.RemovePermissionFromRole(ctx, roleID, permissionID); err != nil {
		return err
	}
	e.invalidateEveryUserWithRole(ctx, tenantID, roleID)
	return nil
}

// CreateRole creates a non-system role.
func (e *Engine) CreateRole(ctx context.Context, tenantID, name string) (*Role, error) {
	now := e.now().UnixMilli()
	r := Role{ID: uuid.NewString(), TenantID: tenantID, Name: name, IsSystemRole: false, CreatedAt: now, UpdatedAt: now}
	if err := e.store.CreateRole(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRole renames a role, refusing to touch system roles.
func (e *Engine) UpdateRole(ctx context.Context, tenantID, roleID, newName string) (*Role, error) {
	r, err := e.store.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apierr.ErrRoleNotFound
	}
	if r.IsSystemRole {
		return nil, apierr.ErrCannotModifySystemRole
	}
	r.Name = newName
	r.UpdatedAt = e.now().UnixMilli()
	if err := e.store.UpdateRole(ctx, *r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRole deletes a role and invalidates every affected user's cache,
// refusing to delete system roles.
func (e *Engine) DeleteRole(ctx context.Context, tenantID, roleID string) error {
	r, err := e.store.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if r == nil {
		return apierr.ErrRoleNotFound
	}
	if r.IsSystemRole {
		return apierr.ErrCannotDeleteSystemRole
	}
	e.invalidateEveryUserWithRole(ctx, tenantID, roleID)
	return e.store.DeleteRole(ctx, tenantID, roleID)
}

// CreatePermission registers a new permission for clientID.
func (e *Engine) CreatePermission(ctx context.Context, clientID, name string) (*Permission, error) {
	p := Permission{ID: uuid.NewString(), ClientID: clientID, Name: name, CreatedAt: e.now().UnixMilli()}
	if err := e.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePermission deletes a permission. This has no direct cache
// invalidation hook: every role holding it keeps serving
// stale cached permission sets until their TTL lapses.
func (e *Engine) DeletePermission(ctx context.Context, permissionID string) error {
	return e.store.DeletePermission(ctx, permissionID)
}
