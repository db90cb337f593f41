package tenant

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/meywd/openauth-core/pkg/apierr"
)

// ResolverConfig configures the strategies Resolve applies; their priority
// order is fixed (see candidateID).
type ResolverConfig struct {
	BaseDomain string // enables the subdomain strategy when non-empty
	HeaderName string // default "X-Tenant-ID"
	QueryParam string // default "tenant"
	PathPrefix string // default "/tenants"
	Optional   bool   // absence of any match is not an error when true
}

// RequestSurface is the subset of an HTTP request the resolver needs,
// decoupled from net/http so this package has no transport dependency
// (the thin routing layer that would construct this is out of scope, per
// ).
type RequestSurface struct {
	Host   string
	Path   string
	Header func(name string) string
	Query  func(name string) string
}

// Resolver orders the five tenant-identification strategies into one
// deterministic resolution.
type Resolver struct {
	registry *Registry
	cfg      ResolverConfig
}

// NewResolver builds a Resolver. Unset ResolverConfig fields take the
// documented defaults.
func NewResolver(registry *Registry, cfg ResolverConfig) *Resolver {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Tenant-ID"
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "tenant"
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/tenants"
	}
	return &Resolver{registry: registry, cfg: cfg}
}

// Resolve runs the priority-ordered strategies and returns the resolved
// tenant. If the resolved tenant is suspended or deleted, Resolve fails
// immediately rather than falling through to a lower-priority strategy.
func (r *Resolver) Resolve(ctx context.Context, req RequestSurface) (*Tenant, error) {
	id, err := r.candidateID(ctx, req)
	if err != nil {
		return nil, err
	}
	if id == "" {
		if r.cfg.Optional {
			return nil, nil
		}
		return nil, apierr.ErrTenantNotFound
	}

	t, err := r.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case StatusSuspended:
		return nil, apierr.ErrTenantSuspended
	case StatusDeleted:
		return nil, apierr.ErrTenantDeleted
	}
	return t, nil
}

// candidateID runs the five strategies and returns the first non-empty
// tenant id candidate (not yet validated against the registry, except for
// the custom-domain strategy which must consult it to disambiguate).
func (r *Resolver) candidateID(ctx context.Context, req RequestSurface) (string, error) {
	host := stripPort(strings.ToLower(req.Host))

	// 1. Custom domain.
	if host != "" && host != r.cfg.BaseDomain && !strings.HasSuffix(host, "."+r.cfg.BaseDomain) {
		t, err := r.registry.GetByDomain(ctx, host)
		if err == nil {
			return t.ID, nil
		}
		if !errors.Is(err, apierr.ErrTenantNotFound) {
			return "", err
		}
	}

	// 2. Subdomain.
	if r.cfg.BaseDomain != "" && strings.HasSuffix(host, "."+r.cfg.BaseDomain) {
		label := strings.TrimSuffix(host, "."+r.cfg.BaseDomain)
		if label != "" && !strings.Contains(label, ".") {
			return label, nil
		}
	}

	// 3. Path prefix: "${prefix}/${id}" or "${prefix}/${id}/…".
	if id := matchPathPrefix(req.Path, r.cfg.PathPrefix); id != "" {
		return id, nil
	}

	// 4. Header.
	if req.Header != nil {
		if id := req.Header(r.cfg.HeaderName); id != "" {
			return id, nil
		}
	}

	// 5. Query parameter.
	if req.Query != nil {
		if id := req.Query(r.cfg.QueryParam); id != "" {
			return id, nil
		}
	}

	return "", nil
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}

func matchPathPrefix(path, prefix string) string {
	if !strings.HasPrefix(path, prefix+"/") {
		return ""
	}
	rest := path[len(prefix)+1:]
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return ""
	}
	return id
}
