package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meywd/openauth-core/pkg/apierr"
	"github.com/meywd/openauth-core/pkg/kvstore"
	"github.com/meywd/openauth-core/pkg/logger"
	"github.com/meywd/openauth-core/pkg/resilience"
)

// Mirror is the optional relational dual-write target. All
// methods are best-effort: the Store logs and swallows their errors.
type Mirror interface {
	MirrorBrowserUpsert(ctx context.Context, bs *BrowserSession) error
	MirrorBrowserDelete(ctx context.Context, tenantID, sessionID string) error
	MirrorAccountUpsert(ctx context.Context, as *AccountSession) error
	MirrorAccountDelete(ctx context.Context, browserSessionID, userID string) error
}

// Config tunes the session core's timers.
type Config struct {
	MaxAccountsPerSession int
	SessionLifetime       time.Duration
	SlidingWindow         time.Duration
}

// DefaultConfig matches the defaults .6.
func DefaultConfig() Config {
	return Config{
		MaxAccountsPerSession: 3,
		SessionLifetime:       7 * 24 * time.Hour,
		SlidingWindow:         24 * time.Hour,
	}
}

// Store implements the browser+account session state machine on top of
// a process-wide key-value store. Browser-session and reverse-index keys
// carry the tenant id explicitly, independent of whether the caller also
// wraps store in a tenant.ScopedStore; account-session keys are keyed by
// browser session id and user id only.
type Store struct {
	store   kvstore.Store
	cfg     Config
	mirror  Mirror
	wrapper *resilience.Wrapper
	now     func() time.Time
}

// NewStore wires a Store. mirror may be nil to disable dual-write. Every
// mirror call runs synchronously after the canonical KV write and is routed
// through a resilience.Wrapper: its errors are logged and never returned,
// a failing mirror adds its retry delays to the call, and once the breaker
// opens, mirror calls fail fast.
func NewStore(store kvstore.Store, cfg Config, mirror Mirror) *Store {
	return &Store{
		store:   store,
		cfg:     cfg,
		mirror:  mirror,
		wrapper: resilience.NewWrapper(resilience.DefaultBreakerConfig(), resilience.DefaultRetryConfig()),
		now:     time.Now,
	}
}

func browserKey(tenantID, sessionID string) kvstore.Key {
	return kvstore.Key{"session", "browser", tenantID, sessionID}
}

func accountKey(browserSessionID, userID string) kvstore.Key {
	return kvstore.Key{"session", "account", browserSessionID, userID}
}

func reverseKey(tenantID, userID, browserSessionID string) kvstore.Key {
	return kvstore.Key{"session", "user", tenantID, userID, browserSessionID}
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

func (s *Store) putBrowser(ctx context.Context, bs *BrowserSession, ttl time.Duration) error {
	b, err := json.Marshal(bs)
	if err != nil {
		return fmt.Errorf("marshaling browser session: %w", err)
	}
	if err := s.store.Set(ctx, browserKey(bs.TenantID, bs.ID), b, ttl); err != nil {
		return fmt.Errorf("writing browser session: %w", err)
	}
	s.mirrorBrowser(ctx, bs)
	return nil
}

func (s *Store) mirrorBrowser(ctx context.Context, bs *BrowserSession) {
	if s.mirror == nil {
		return
	}
	_, err := resilience.Do(ctx, s.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.mirror.MirrorBrowserUpsert(ctx, bs)
	})
	if err != nil {
		logger.Warnw("dual-write mirror of browser session failed", "sessionId", bs.ID, "error", err)
	}
}

func (s *Store) mirrorAccount(ctx context.Context, as *AccountSession) {
	if s.mirror == nil {
		return
	}
	_, err := resilience.Do(ctx, s.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.mirror.MirrorAccountUpsert(ctx, as)
	})
	if err != nil {
		logger.Warnw("dual-write mirror of account session failed", "userId", as.UserID, "error", err)
	}
}

func (s *Store) mirrorBrowserDelete(ctx context.Context, tenantID, sessionID string) {
	if s.mirror == nil {
		return
	}
	_, err := resilience.Do(ctx, s.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.mirror.MirrorBrowserDelete(ctx, tenantID, sessionID)
	})
	if err != nil {
		logger.Warnw("dual-write mirror of browser session delete failed", "sessionId", sessionID, "error", err)
	}
}

func (s *Store) mirrorAccountDelete(ctx context.Context, browserSessionID, userID string) {
	if s.mirror == nil {
		return
	}
	_, err := resilience.Do(ctx, s.wrapper, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.mirror.MirrorAccountDelete(ctx, browserSessionID, userID)
	})
	if err != nil {
		logger.Warnw("dual-write mirror of account session delete failed", "userId", userID, "error", err)
	}
}

// CreateBrowserSession creates a fresh, empty browser session row.
func (s *Store) CreateBrowserSession(ctx context.Context, tenantID, userAgent, ipAddress string) (*BrowserSession, error) {
	now := s.nowMillis()
	bs := &BrowserSession{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		CreatedAt:      now,
		LastActivity:   now,
		UserAgent:      userAgent,
		IPAddress:      ipAddress,
		Version:        1,
		AccountUserIDs: []string{},
	}
	if err := s.putBrowser(ctx, bs, s.cfg.SessionLifetime); err != nil {
		return nil, err
	}
	return bs, nil
}

// GetBrowserSession returns the session, applying hard-expiry cleanup and
// sliding-window renewal.
func (s *Store) GetBrowserSession(ctx context.Context, sessionID, tenantID string) (*BrowserSession, error) {
	raw, err := s.store.Get(ctx, browserKey(tenantID, sessionID))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading browser session: %w", err)
	}
	var bs BrowserSession
	if err := json.Unmarshal(raw, &bs); err != nil {
		return nil, fmt.Errorf("decoding browser session: %w", err)
	}

	now := s.nowMillis()
	age := time.Duration(now-bs.CreatedAt) * time.Millisecond
	if age > s.cfg.SessionLifetime {
		if err := s.cleanupBrowserSession(ctx, &bs); err != nil {
			return nil, err
		}
		return nil, nil
	}

	idle := time.Duration(now-bs.LastActivity) * time.Millisecond
	if idle > s.cfg.SlidingWindow {
		bs.LastActivity = now
		bs.Version++
		remaining := s.cfg.SessionLifetime - age
		if err := s.putBrowser(ctx, &bs, remaining); err != nil {
			return nil, err
		}
	}
	return &bs, nil
}

func (s *Store) cleanupBrowserSession(ctx context.Context, bs *BrowserSession) error {
	for _, userID := range bs.AccountUserIDs {
		_ = s.store.Remove(ctx, accountKey(bs.ID, userID))
		_ = s.store.Remove(ctx, reverseKey(bs.TenantID, userID, bs.ID))
	}
	if err := s.store.Remove(ctx, browserKey(bs.TenantID, bs.ID)); err != nil {
		return fmt.Errorf("removing expired browser session: %w", err)
	}
	s.mirrorBrowserDelete(ctx, bs.TenantID, bs.ID)
	return nil
}

// findBrowserSessionByID resolves a browser session by id alone, scanning
// across all tenants. Tolerable because every subsequent read still
// re-validates the session against its own tenant.
func (s *Store) findBrowserSessionByID(ctx context.Context, sessionID string) (*BrowserSession, error) {
	for e := range s.store.Scan(ctx, kvstore.Key{"session", "browser"}) {
		if len(e.Key) != 4 || e.Key[3] != sessionID {
			continue
		}
		var bs BrowserSession
		if err := json.Unmarshal(e.Value, &bs); err != nil {
			logger.Warnw("skipping corrupt browser session row during scan", "error", err)
			continue
		}
		return &bs, nil
	}
	return nil, nil
}

// AddAccountToSession implements the add/reauthenticate contract for
// multi-account sessions. If userID is already present, it is reauthenticated in place
// without growing AccountUserIDs; otherwise it is appended, failing with
// apierr.ErrMaxAccountsExceeded once the configured limit is reached.
func (s *Store) AddAccountToSession(ctx context.Context, p AddAccountParams) (*AccountSession, error) {
	bs, err := s.findBrowserSessionByID(ctx, p.BrowserSessionID)
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return nil, apierr.ErrSessionNotFound
	}

	now := s.now()
	ttl := time.Duration(p.TTLSeconds) * time.Second
	as := &AccountSession{
		ID:                uuid.NewString(),
		BrowserSessionID:  bs.ID,
		UserID:            p.UserID,
		IsActive:          true,
		AuthenticatedAt:   now.UnixMilli(),
		ExpiresAt:         now.Add(ttl).UnixMilli(),
		SubjectType:       p.SubjectType,
		SubjectProperties: p.SubjectProperties,
		RefreshToken:      p.RefreshToken,
		ClientID:          p.ClientID,
	}

	alreadyPresent := false
	for _, id := range bs.AccountUserIDs {
		if id == p.UserID {
			alreadyPresent = true
			break
		}
	}

	if !alreadyPresent && len(bs.AccountUserIDs) >= s.cfg.MaxAccountsPerSession {
		return nil, apierr.ErrMaxAccountsExceeded
	}

	if err := s.deactivateActiveAccount(ctx, bs); err != nil {
		return nil, err
	}

	b, err := json.Marshal(as)
	if err != nil {
		return nil, fmt.Errorf("marshaling account session: %w", err)
	}
	if err := s.store.Set(ctx, accountKey(bs.ID, p.UserID), b, ttl); err != nil {
		return nil, fmt.Errorf("writing account session: %w", err)
	}
	s.mirrorAccount(ctx, as)

	if !alreadyPresent {
		bs.AccountUserIDs = append(bs.AccountUserIDs, p.UserID)
		idx, err := json.Marshal(reverseIndexEntry{SessionID: bs.ID, TenantID: bs.TenantID})
		if err != nil {
			return nil, fmt.Errorf("marshaling reverse index entry: %w", err)
		}
		if err := s.store.Set(ctx, reverseKey(bs.TenantID, p.UserID, bs.ID), idx, ttl); err != nil {
			return nil, fmt.Errorf("writing reverse index entry: %w", err)
		}
	}

	activeID := p.UserID
	bs.ActiveUserID = &activeID
	bs.Version++
	if err := s.putBrowser(ctx, bs, s.remainingTTL(bs)); err != nil {
		return nil, err
	}
	return as, nil
}

// deactivateActiveAccount clears IsActive on whichever account row is
// currently active, if any.
func (s *Store) deactivateActiveAccount(ctx context.Context, bs *BrowserSession) error {
	if bs.ActiveUserID == nil {
		return nil
	}
	return s.setAccountActive(ctx, bs.ID, *bs.ActiveUserID, false)
}

func (s *Store) setAccountActive(ctx context.Context, browserSessionID, userID string, active bool) error {
	raw, err := s.store.Get(ctx, accountKey(browserSessionID, userID))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil
		}
		return fmt.Errorf("reading account session: %w", err)
	}
	var as AccountSession
	if err := json.Unmarshal(raw, &as); err != nil {
		return fmt.Errorf("decoding account session: %w", err)
	}
	as.IsActive = active
	b, err := json.Marshal(as)
	if err != nil {
		return fmt.Errorf("marshaling account session: %w", err)
	}
	remaining := time.Until(time.UnixMilli(as.ExpiresAt))
	if remaining <= 0 {
		return nil
	}
	if err := s.store.Set(ctx, accountKey(browserSessionID, userID), b, remaining); err != nil {
		return fmt.Errorf("writing account session: %w", err)
	}
	s.mirrorAccount(ctx, &as)
	return nil
}

func (s *Store) remainingTTL(bs *BrowserSession) time.Duration {
	age := time.Duration(s.nowMillis()-bs.CreatedAt) * time.Millisecond
	remaining := s.cfg.SessionLifetime - age
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

// GetAccountSession returns the account row, lazily deleting it if expired.
func (s *Store) GetAccountSession(ctx context.Context, browserSessionID, userID string) (*AccountSession, error) {
	raw, err := s.store.Get(ctx, accountKey(browserSessionID, userID))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("reading account session: %w", err)
	}
	var as AccountSession
	if err := json.Unmarshal(raw, &as); err != nil {
		return nil, fmt.Errorf("decoding account session: %w", err)
	}
	if s.nowMillis() > as.ExpiresAt {
		_ = s.store.Remove(ctx, accountKey(browserSessionID, userID))
		return nil, nil
	}
	return &as, nil
}

// SwitchActiveAccount activates userID on the given browser session.
func (s *Store) SwitchActiveAccount(ctx context.Context, browserSessionID, userID string) (*BrowserSession, error) {
	bs, err := s.findBrowserSessionByID(ctx, browserSessionID)
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return nil, apierr.ErrSessionNotFound
	}
	found := false
	for _, id := range bs.AccountUserIDs {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		return nil, apierr.ErrAccountNotFound
	}

	if err := s.deactivateActiveAccount(ctx, bs); err != nil {
		return nil, err
	}
	if err := s.setAccountActive(ctx, bs.ID, userID, true); err != nil {
		return nil, err
	}

	activeID := userID
	bs.ActiveUserID = &activeID
	bs.Version++
	bs.LastActivity = s.nowMillis()
	if err := s.putBrowser(ctx, bs, s.remainingTTL(bs)); err != nil {
		return nil, err
	}
	return bs, nil
}

// RemoveAccount removes userID from the browser session, promoting the
// first remaining account to active if the removed one was active.
func (s *Store) RemoveAccount(ctx context.Context, browserSessionID, userID string) (*BrowserSession, error) {
	bs, err := s.findBrowserSessionByID(ctx, browserSessionID)
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return nil, apierr.ErrSessionNotFound
	}

	remaining := make([]string, 0, len(bs.AccountUserIDs))
	wasActive := bs.ActiveUserID != nil && *bs.ActiveUserID == userID
	for _, id := range bs.AccountUserIDs {
		if id == userID {
			continue
		}
		remaining = append(remaining, id)
	}
	bs.AccountUserIDs = remaining

	if err := s.store.Remove(ctx, accountKey(bs.ID, userID)); err != nil {
		return nil, fmt.Errorf("removing account session: %w", err)
	}
	if err := s.store.Remove(ctx, reverseKey(bs.TenantID, userID, bs.ID)); err != nil {
		return nil, fmt.Errorf("removing reverse index entry: %w", err)
	}
	s.mirrorAccountDelete(ctx, bs.ID, userID)

	if wasActive {
		if len(remaining) > 0 {
			newActive := remaining[0]
			bs.ActiveUserID = &newActive
			if err := s.setAccountActive(ctx, bs.ID, newActive, true); err != nil {
				return nil, err
			}
		} else {
			bs.ActiveUserID = nil
		}
	}
	bs.Version++
	if err := s.putBrowser(ctx, bs, s.remainingTTL(bs)); err != nil {
		return nil, err
	}
	return bs, nil
}

// RemoveAllAccounts clears every account from the session but keeps the
// browser session row itself.
func (s *Store) RemoveAllAccounts(ctx context.Context, browserSessionID string) (*BrowserSession, error) {
	bs, err := s.findBrowserSessionByID(ctx, browserSessionID)
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return nil, apierr.ErrSessionNotFound
	}
	for _, userID := range bs.AccountUserIDs {
		_ = s.store.Remove(ctx, accountKey(bs.ID, userID))
		_ = s.store.Remove(ctx, reverseKey(bs.TenantID, userID, bs.ID))
		s.mirrorAccountDelete(ctx, bs.ID, userID)
	}
	bs.AccountUserIDs = []string{}
	bs.ActiveUserID = nil
	bs.Version++
	if err := s.putBrowser(ctx, bs, s.remainingTTL(bs)); err != nil {
		return nil, err
	}
	return bs, nil
}

// RevokeUserSessions removes userID from every browser session it is a
// member of within tenantID, returning the number of sessions touched.
func (s *Store) RevokeUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	var touched int
	for e := range s.store.Scan(ctx, kvstore.Key{"session", "user", tenantID, userID}) {
		var idx reverseIndexEntry
		if err := json.Unmarshal(e.Value, &idx); err != nil {
			logger.Warnw("skipping corrupt reverse index row during revoke", "error", err)
			continue
		}
		if _, err := s.RemoveAccount(ctx, idx.SessionID, userID); err != nil {
			if err == apierr.ErrSessionNotFound {
				continue
			}
			return touched, err
		}
		touched++
	}
	return touched, nil
}

// RevokeSpecificSession deletes a browser session entirely, returning
// whether a row was present.
func (s *Store) RevokeSpecificSession(ctx context.Context, sessionID, tenantID string) (bool, error) {
	raw, err := s.store.Get(ctx, browserKey(tenantID, sessionID))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("reading browser session: %w", err)
	}
	var bs BrowserSession
	if err := json.Unmarshal(raw, &bs); err != nil {
		return false, fmt.Errorf("decoding browser session: %w", err)
	}
	if err := s.cleanupBrowserSession(ctx, &bs); err != nil {
		return false, err
	}
	return true, nil
}
