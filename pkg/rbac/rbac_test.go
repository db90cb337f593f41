package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/kvstore"

	_ "modernc.org/sqlite"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(Schema)
	require.NoError(t, err)

	kv := kvstore.NewMemoryStore(kvstore.WithCleanupInterval(time.Hour))
	t.Cleanup(kv.Close)

	return NewEngine(NewSQLStore(db), kv, DefaultConfig())
}

func TestCheckPermissionGrantedThroughRole(t *testing.T) {
	// Scenario S5: assigning a role grants its permissions to the user.
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "editor")
	require.NoError(t, err)
	perm, err := e.CreatePermission(ctx, "client-1", "documents:write")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", role.ID, perm.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))

	ok, err := e.CheckPermission(ctx, "acme", "user-1", "client-1", "documents:write")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.CheckPermission(ctx, "acme", "user-1", "client-1", "documents:delete")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPermissionsBatch(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "viewer")
	require.NoError(t, err)
	perm, err := e.CreatePermission(ctx, "client-1", "documents:read")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", role.ID, perm.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))

	result, err := e.CheckPermissions(ctx, "acme", "user-1", "client-1", []string{"documents:read", "documents:write"})
	require.NoError(t, err)
	assert.True(t, result["documents:read"])
	assert.False(t, result["documents:write"])
}

func TestPermissionCacheServesStaleDataUntilInvalidated(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "editor")
	require.NoError(t, err)
	perm, err := e.CreatePermission(ctx, "client-1", "documents:write")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", role.ID, perm.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))

	ok, err := e.CheckPermission(ctx, "acme", "user-1", "client-1", "documents:write")
	require.NoError(t, err)
	assert.True(t, ok, "first call populates the cache")

	// Mutate storage directly, bypassing the engine's own invalidation path.
	require.NoError(t, e.store.RemovePermissionFromRole(ctx, role.ID, perm.ID))

	ok, err = e.CheckPermission(ctx, "acme", "user-1", "client-1", "documents:write")
	require.NoError(t, err)
	assert.True(t, ok, "cached entry is still served until its TTL elapses or an engine call invalidates it")

	e.invalidateUserCache(ctx, "acme", "user-1")
	ok, err = e.CheckPermission(ctx, "acme", "user-1", "client-1", "documents:write")
	require.NoError(t, err)
	assert.False(t, ok, "after invalidation the store is consulted again")
}

func TestAssignRoleToUserInvalidatesCache(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	roleA, err := e.CreateRole(ctx, "acme", "viewer")
	require.NoError(t, err)
	permA, err := e.CreatePermission(ctx, "client-1", "documents:read")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", roleA.ID, permA.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", roleA.ID, nil))

	perms, err := e.GetUserPermissions(ctx, "acme", "user-1", "client-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"documents:read"}, perms)

	roleB, err := e.CreateRole(ctx, "acme", "editor")
	require.NoError(t, err)
	permB, err := e.CreatePermission(ctx, "client-1", "documents:write")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", roleB.ID, permB.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", roleB.ID, nil))

	perms, err = e.GetUserPermissions(ctx, "acme", "user-1", "client-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"documents:read", "documents:write"}, perms)
}

func TestRemovePermissionFromRoleInvalidatesEveryAssignedUser(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "editor")
	require.NoError(t, err)
	perm, err := e.CreatePermission(ctx, "client-1", "documents:write")
	require.NoError(t, err)
	require.NoError(t, e.AssignPermissionToRole(ctx, "acme", role.ID, perm.ID))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-2", role.ID, nil))

	_, err = e.GetUserPermissions(ctx, "acme", "user-1", "client-1")
	require.NoError(t, err)
	_, err = e.GetUserPermissions(ctx, "acme", "user-2", "client-1")
	require.NoError(t, err)

	require.NoError(t, e.RemovePermissionFromRole(ctx, "acme", role.ID, perm.ID))

	perms1, err := e.GetUserPermissions(ctx, "acme", "user-1", "client-1")
	require.NoError(t, err)
	assert.Empty(t, perms1)
	perms2, err := e.GetUserPermissions(ctx, "acme", "user-2", "client-1")
	require.NoError(t, err)
	assert.Empty(t, perms2)
}

func TestEnrichTokenClaimsTruncatesAtMax(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	e.cfg.MaxPermissionsInToken = 2
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "super")
	require.NoError(t, err)
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))
	for _, name := range []string{"a:read", "a:write", "a:delete"} {
		perm, err := e.CreatePermission(ctx, "client-1", name)
		require.NoError(t, err)
		require.NoError(t, e.AssignPermissionToRole(ctx, "acme", role.ID, perm.ID))
	}

	claims, err := e.EnrichTokenClaims(ctx, "acme", "user-1", "client-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"super"}, claims.Roles)
	assert.Len(t, claims.Permissions, 2)
}

func TestUpdateAndDeleteSystemRoleIsForbidden(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	now := e.now().UnixMilli()
	systemRole := Role{ID: "sys-admin", TenantID: "acme", Name: "admin", IsSystemRole: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.store.CreateRole(ctx, systemRole))

	_, err := e.UpdateRole(ctx, "acme", systemRole.ID, "renamed")
	assert.ErrorIs(t, err, apierr.ErrCannotModifySystemRole)

	err = e.DeleteRole(ctx, "acme", systemRole.ID)
	assert.ErrorIs(t, err, apierr.ErrCannotDeleteSystemRole)
}

func TestDeleteRoleRemovesAssignmentsAndRoleItself(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	role, err := e.CreateRole(ctx, "acme", "temp")
	require.NoError(t, err)
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, nil))

	require.NoError(t, e.DeleteRole(ctx, "acme", role.ID))

	got, err := e.store.GetRole(ctx, "acme", role.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	roles, err := e.GetUserRoles(ctx, "acme", "user-1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestExpiredRoleAssignmentIsNotReturned(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	e.now = func() time.Time { return time.Unix(1_000_000, 0) }

	role, err := e.CreateRole(ctx, "acme", "temp-access")
	require.NoError(t, err)
	expiresAt := e.now().Add(time.Minute).UnixMilli()
	require.NoError(t, e.AssignRoleToUser(ctx, "acme", "user-1", role.ID, &expiresAt))

	roles, err := e.GetUserRoles(ctx, "acme", "user-1")
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	e.now = func() time.Time { return time.Unix(1_000_000, 0).Add(2 * time.Minute) }
	roles, err = e.GetUserRoles(ctx, "acme", "user-1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}
