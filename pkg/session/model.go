// Package session implements cookie cryptography and the browser/account
// session core: multi-account browser sessions with
// sliding-window expiration, encrypted cookie transport, and
// administrative revocation.
package session

// BrowserSession is a cookie-identified long-lived handle containing up to
// Config.MaxAccountsPerSession account sessions.
type BrowserSession struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	CreatedAt       int64    `json:"created_at"`
	LastActivity    int64    `json:"last_activity"`
	UserAgent       string   `json:"user_agent"`
	IPAddress       string   `json:"ip_address"`
	Version         int      `json:"version"`
	ActiveUserID    *string  `json:"active_user_id"`
	AccountUserIDs  []string `json:"account_user_ids"`
}

// AccountSession is a single account logged into a browser session.
type AccountSession struct {
	ID                 string         `json:"id"`
	BrowserSessionID   string         `json:"browser_session_id"`
	UserID             string         `json:"user_id"`
	IsActive           bool           `json:"is_active"`
	AuthenticatedAt    int64          `json:"authenticated_at"`
	ExpiresAt          int64          `json:"expires_at"`
	SubjectType        string         `json:"subject_type"`
	SubjectProperties  map[string]any `json:"subject_properties,omitempty"`
	RefreshToken       string         `json:"refresh_token,omitempty"`
	ClientID           string         `json:"client_id"`
}

// reverseIndexEntry is the value stored under
// ["session","user", tenantId, userId, browserSessionId].
type reverseIndexEntry struct {
	SessionID string `json:"sessionId"`
	TenantID  string `json:"tenantId"`
}

// AddAccountParams is the input to Store.AddAccountToSession.
type AddAccountParams struct {
	BrowserSessionID  string
	UserID            string
	SubjectType       string
	SubjectProperties map[string]any
	RefreshToken      string
	ClientID          string
	TTLSeconds        int64
}
