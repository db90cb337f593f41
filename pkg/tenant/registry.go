package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/kvstore"
	"github.com/meywd/openauth-core/pkg/logger"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

func tenantKey(id string) kvstore.Key       { return kvstore.Key{"tenant", id} }
func domainKey(domain string) kvstore.Key   { return kvstore.Key{"tenant", "domain", domain} }
func tenantScanPrefix() kvstore.Key         { return kvstore.Key{"tenant"} }

// Lister is the optional relational-backend for Registry.List").
type Lister interface {
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
}

// Registry implements : CRUD for tenants with a domain secondary
// index, backed by a kvstore.Store. An optional Lister mirrors writes for
// efficient admin listing; mirror failures are logged, never surfaced,
// matching the dual-write discipline used elsewhere in the core.
type Registry struct {
	store  kvstore.Store
	lister Lister
	now    func() time.Time
}

// NewRegistry constructs a Registry. lister may be nil, in which case List
// falls back to a prefix scan of the KV store.
func NewRegistry(store kvstore.Store, lister Lister) *Registry {
	return &Registry{store: store, lister: lister, now: time.Now}
}

func (r *Registry) nowMillis() int64 { return r.now().UnixMilli() }

// Create inserts a new tenant.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Tenant, error) {
	id := strings.TrimSpace(p.ID)
	name := strings.TrimSpace(p.Name)
	if !validID.MatchString(id) || name == "" {
		return nil, apierr.ErrInvalidTenantID
	}

	if _, err := r.get(ctx, id); err == nil {
		return nil, apierr.Wrap(apierr.ErrInvalidTenantID, fmt.Errorf("tenant %q already exists", id))
	}

	domain := normalizeDomain(p.Domain)
	if domain != "" {
		if _, err := r.store.Get(ctx, domainKey(domain)); err == nil {
			return nil, apierr.ErrDomainAlreadyExists
		}
	}

	now := r.nowMillis()
	t := &Tenant{
		ID:        id,
		Name:      name,
		Domain:    domain,
		Status:    StatusActive,
		Branding:  p.Branding,
		Settings:  p.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.put(ctx, t); err != nil {
		return nil, err
	}
	if domain != "" {
		if err := r.store.Set(ctx, domainKey(domain), []byte(id), 0); err != nil {
			return nil, fmt.Errorf("writing domain index: %w", err)
		}
	}
	r.mirrorCreate(ctx, t)
	return t, nil
}

func (r *Registry) mirrorCreate(ctx context.Context, t *Tenant) {
	if r.lister == nil {
		return
	}
	if err := r.lister.Create(ctx, t); err != nil {
		logger.Warnw("tenant relational mirror create failed", "tenantID", t.ID, "error", err)
	}
}

func (r *Registry) mirrorUpdate(ctx context.Context, t *Tenant) {
	if r.lister == nil {
		return
	}
	if err := r.lister.Update(ctx, t); err != nil {
		logger.Warnw("tenant relational mirror update failed", "tenantID", t.ID, "error", err)
	}
}

func (r *Registry) mirrorDelete(ctx context.Context, id string) {
	if r.lister == nil {
		return
	}
	if err := r.lister.Delete(ctx, id); err != nil {
		logger.Warnw("tenant relational mirror delete failed", "tenantID", id, "error", err)
	}
}

func (r *Registry) get(ctx context.Context, id string) (*Tenant, error) {
	v, err := r.store.Get(ctx, tenantKey(id))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, apierr.ErrTenantNotFound
		}
		return nil, err
	}
	var t Tenant
	if err := json.Unmarshal(v, &t); err != nil {
		return nil, fmt.Errorf("decoding tenant %q: %w", id, err)
	}
	return &t, nil
}

// Get returns the tenant with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*Tenant, error) {
	return r.get(ctx, id)
}

// GetByDomain looks up a tenant via the domain secondary index, matching
// case-insensitively.
func (r *Registry) GetByDomain(ctx context.Context, domain string) (*Tenant, error) {
	domain = normalizeDomain(domain)
	v, err := r.store.Get(ctx, domainKey(domain))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, apierr.ErrTenantNotFound
		}
		return nil, err
	}
	return r.get(ctx, string(v))
}

// Update applies a partial patch to a tenant.
func (r *Registry) Update(ctx context.Context, id string, patch UpdatePatch) (*Tenant, error) {
	t, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldDomain := t.Domain
	domainChanged := false

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apierr.ErrInvalidRequest
		}
		t.Name = name
	}
	if patch.Domain != nil {
		newDomain := normalizeDomain(*patch.Domain)
		if newDomain != oldDomain {
			if newDomain != "" {
				if _, err := r.store.Get(ctx, domainKey(newDomain)); err == nil {
					return nil, apierr.ErrDomainAlreadyExists
				}
			}
			domainChanged = true
			t.Domain = newDomain
		}
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Branding != nil {
		t.Branding = patch.Branding
	}
	if patch.Settings != nil {
		t.Settings = *patch.Settings
	}
	t.UpdatedAt = r.nowMillis()

	if err := r.put(ctx, t); err != nil {
		return nil, err
	}

	if domainChanged {
		// Rewrite the domain index atomically from the caller's
		// perspective: delete the old entry, then set the new one.
		if oldDomain != "" {
			if err := r.store.Remove(ctx, domainKey(oldDomain)); err != nil {
				return nil, fmt.Errorf("removing old domain index: %w", err)
			}
		}
		if t.Domain != "" {
			if err := r.store.Set(ctx, domainKey(t.Domain), []byte(t.ID), 0); err != nil {
				return nil, fmt.Errorf("writing new domain index: %w", err)
			}
		}
	}

	r.mirrorUpdate(ctx, t)
	return t, nil
}

// Delete soft-deletes a tenant: status becomes "deleted" and the domain
// index entry is removed so the domain can be reused.
func (r *Registry) Delete(ctx context.Context, id string) error {
	t, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if t.Domain != "" {
		if err := r.store.Remove(ctx, domainKey(t.Domain)); err != nil {
			return fmt.Errorf("removing domain index: %w", err)
		}
	}
	t.Status = StatusDeleted
	t.Domain = ""
	t.UpdatedAt = r.nowMillis()
	if err := r.put(ctx, t); err != nil {
		return err
	}
	r.mirrorDelete(ctx, id)
	return nil
}

// List returns tenants matching filter, using the relational backend when
// available, otherwise falling back to a KV scan.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]Tenant, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if r.lister != nil {
		return r.lister.List(ctx, filter)
	}
	return r.scanList(ctx, filter)
}

// scanList filters out domain-index keys (which live under the same
// "tenant" prefix) by key length: a tenant row's key is {"tenant", id},
// exactly two segments, while a domain index row is {"tenant", "domain",
// domain}, three segments with segment[1] == "domain".
func (r *Registry) scanList(ctx context.Context, filter ListFilter) ([]Tenant, error) {
	var all []Tenant
	for e := range r.store.Scan(ctx, tenantScanPrefix()) {
		if len(e.Key) != 2 {
			continue
		}
		var t Tenant
		if err := json.Unmarshal(e.Value, &t); err != nil {
			logger.Warnw("skipping undecodable tenant row", "error", err)
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		all = append(all, t)
	}

	start := filter.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *Registry) put(ctx context.Context, t *Tenant) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding tenant %q: %w", t.ID, err)
	}
	return r.store.Set(ctx, tenantKey(t.ID), b, 0)
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
