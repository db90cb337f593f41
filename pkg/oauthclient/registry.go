package oauthclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/resilience"
)

// Registry implements the OAuth client registry. Every write goes through a
// resilience.Wrapper.
type Registry struct {
	store   *SQLStore
	wrapper *resilience.Wrapper
	now     func() time.Time
}

// NewRegistry wires a Registry.
func NewRegistry(store *SQLStore) *Registry {
	return &Registry{
		store:   store,
		wrapper: resilience.NewWrapper(resilience.DefaultBreakerConfig(), resilience.DefaultRetryConfig()),
		now:     time.Now,
	}
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apierr.ErrInvalidRequest
	}
	if len(req.GrantTypes) == 0 {
		return apierr.ErrInvalidRequest
	}
	for _, scope := range req.Scopes {
		if strings.ContainsAny(scope, " \t\n") {
			return apierr.ErrInvalidScopeFormat
		}
	}
	for _, uri := range req.RedirectURIs {
		if !strings.HasPrefix(uri, "https://") && !strings.HasPrefix(uri, "http://localhost") {
			return apierr.ErrInvalidRedirectURI
		}
	}
	return nil
}

// CreateClient validates req, enforces (tenantId,name) uniqueness, and
// returns the plaintext secret exactly once.
func (r *Registry) CreateClient(ctx context.Context, tenantID string, req CreateRequest) (*CreatedClient, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := hashSecret(secret)
	if err != nil {
		return nil, err
	}

	now := r.now().UnixMilli()
	c := Client{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Name:             req.Name,
		ClientSecretHash: hash,
		GrantTypes:       req.GrantTypes,
		Scopes:           req.Scopes,
		RedirectURIs:     req.RedirectURIs,
		Metadata:         req.Metadata,
		Enabled:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = resilience.Do(ctx, r.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.Insert(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	returned := c
	returned.ClientSecretHash = ""
	return &CreatedClient{Client: returned, Secret: secret}, nil
}

// GetClient is a tenant-scoped read. Reads also cross the resilience
// wrapper; a caller whose breaker is open gets a degraded read (nil, nil)
// rather than an error.
func (r *Registry) GetClient(ctx context.Context, clientID, tenantID string) (*Client, error) {
	c, err := resilience.Do(ctx, r.wrapper, func(ctx context.Context) (*Client, error) {
		return r.store.GetByTenant(ctx, clientID, tenantID)
	})
	if err != nil {
		if errors.Is(err, apierr.ErrCircuitOpen) {
			return nil, nil
		}
		return nil, err
	}
	if c == nil {
		return nil, apierr.ErrClientNotFound
	}
	return c, nil
}

// GetClientByID is a cross-tenant lookup used only by the token-exchange
// authentication path. Same degraded-read behavior as GetClient.
func (r *Registry) GetClientByID(ctx context.Context, clientID string) (*Client, error) {
	c, err := resilience.Do(ctx, r.wrapper, func(ctx context.Context) (*Client, error) {
		return r.store.GetByID(ctx, clientID)
	})
	if err != nil {
		if errors.Is(err, apierr.ErrCircuitOpen) {
			return nil, nil
		}
		return nil, err
	}
	if c == nil {
		return nil, apierr.ErrClientNotFound
	}
	return c, nil
}

// cursor encodes (created_at, id) as "createdAt:id" — opaque to the caller.
func encodeCursor(createdAt int64, id string) string {
	return fmt.Sprintf("%d:%s", createdAt, id)
}

func decodeCursor(s string) (int64, string, error) {
	if s == "" {
		return 0, "", nil
	}
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return 0, "", apierr.ErrInvalidRequest
	}
	createdAt, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return 0, "", apierr.ErrInvalidRequest
	}
	return createdAt, s[idx+1:], nil
}

// ListClients returns a cursor-paginated page ordered by created_at DESC,
// id DESC, fetching limit+1 rows to determine has_more.
func (r *Registry) ListClients(ctx context.Context, tenantID string, filter ListFilter) (*ListResult, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	createdAt, id, err := decodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.List(ctx, tenantID, limit+1, createdAt, id, filter.Enabled)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	result := &ListResult{Clients: rows, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		result.Cursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return result, nil
}

// UpdateClient applies a partial patch; a name change re-checks uniqueness
// (enforced at the storage layer's UNIQUE constraint) excluding self.
func (r *Registry) UpdateClient(ctx context.Context, clientID, tenantID string, patch UpdateRequest) (*Client, error) {
	c, err := r.GetClient(ctx, clientID, tenantID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.GrantTypes != nil {
		c.GrantTypes = patch.GrantTypes
	}
	if patch.Scopes != nil {
		c.Scopes = patch.Scopes
	}
	if patch.RedirectURIs != nil {
		c.RedirectURIs = patch.RedirectURIs
	}
	if patch.Metadata != nil {
		c.Metadata = patch.Metadata
	}
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	c.UpdatedAt = r.now().UnixMilli()

	_, err = resilience.Do(ctx, r.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.Update(ctx, *c)
	})
	if err != nil {
		return nil, err
	}
	return r.GetClient(ctx, clientID, tenantID)
}

// DeleteClient hard-deletes the row.
func (r *Registry) DeleteClient(ctx context.Context, clientID, tenantID string) error {
	_, err := resilience.Do(ctx, r.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.Delete(ctx, clientID, tenantID)
	})
	return err
}

// RotateSecret generates a new secret, keeping the old one valid for
// gracePeriod as PreviousSecretHash.
func (r *Registry) RotateSecret(ctx context.Context, clientID, tenantID string, gracePeriod time.Duration) (*CreatedClient, error) {
	c, err := r.GetClient(ctx, clientID, tenantID)
	if err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	newHash, err := hashSecret(secret)
	if err != nil {
		return nil, err
	}

	now := r.now()
	previousHash := c.ClientSecretHash
	previousExpires := now.Add(gracePeriod).UnixMilli()
	rotatedAt := now.UnixMilli()

	c.PreviousSecretHash = &previousHash
	c.PreviousSecretExpiresAt = &previousExpires
	c.RotatedAt = &rotatedAt
	c.ClientSecretHash = newHash
	c.UpdatedAt = rotatedAt

	_, err = resilience.Do(ctx, r.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.Update(ctx, *c)
	})
	if err != nil {
		return nil, err
	}
	returned := *c
	returned.ClientSecretHash = ""
	return &CreatedClient{Client: returned, Secret: secret}, nil
}

// VerifyCredentials checks secret against the client's current hash, or
// its previous hash while still within the rotation grace period.
func (r *Registry) VerifyCredentials(ctx context.Context, clientID, secret string) (*Client, error) {
	c, err := r.store.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	if verifySecret(secret, c.ClientSecretHash) {
		return c, nil
	}
	if c.PreviousSecretHash != nil && c.PreviousSecretExpiresAt != nil &&
		r.now().UnixMilli() < *c.PreviousSecretExpiresAt &&
		verifySecret(secret, *c.PreviousSecretHash) {
		return c, nil
	}
	return nil, nil
}
