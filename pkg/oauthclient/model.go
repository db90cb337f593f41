// Package oauthclient implements the OAuth client registry, with
// argon2id-hashed secrets, secret rotation with a grace period, and all
// writes routed through the resilience wrapper.
package oauthclient

// Client is an OAuth client registration.
type Client struct {
	ID                       string            `json:"id" db:"id"`
	TenantID                 string            `json:"tenant_id" db:"tenant_id"`
	Name                     string            `json:"name" db:"name"`
	ClientSecretHash         string            `json:"-" db:"client_secret_hash"`
	PreviousSecretHash       *string           `json:"-" db:"previous_secret_hash"`
	PreviousSecretExpiresAt  *int64            `json:"previous_secret_expires_at,omitempty" db:"previous_secret_expires_at"`
	RotatedAt                *int64            `json:"rotated_at,omitempty" db:"rotated_at"`
	GrantTypes               []string          `json:"grant_types" db:"-"`
	Scopes                   []string          `json:"scopes" db:"-"`
	RedirectURIs             []string          `json:"redirect_uris" db:"-"`
	Metadata                 map[string]string `json:"metadata,omitempty" db:"-"`
	Enabled                  bool              `json:"enabled" db:"enabled"`
	CreatedAt                int64             `json:"created_at" db:"created_at"`
	UpdatedAt                int64             `json:"updated_at" db:"updated_at"`

	GrantTypesRaw   string `json:"-" db:"grant_types"`
	ScopesRaw       string `json:"-" db:"scopes"`
	RedirectURIsRaw string `json:"-" db:"redirect_uris"`
	MetadataRaw     string `json:"-" db:"metadata"`
}

// CreateRequest is the input to Registry.CreateClient.
type CreateRequest struct {
	Name         string
	GrantTypes   []string
	Scopes       []string
	RedirectURIs []string
	Metadata     map[string]string
}

// UpdateRequest is a partial patch for Registry.UpdateClient.
type UpdateRequest struct {
	Name         *string
	GrantTypes   []string
	Scopes       []string
	RedirectURIs []string
	Metadata     map[string]string
	Enabled      *bool
}

// ListFilter scopes Registry.ListClients.
type ListFilter struct {
	Limit   int
	Cursor  string
	Enabled *bool
}

// ListResult is a page of clients plus the cursor-pagination marker.
type ListResult struct {
	Clients []Client
	HasMore bool
	Cursor  string
}

// CreatedClient is returned once, at creation/rotation time, carrying the
// plaintext secret that is never persisted nor returned again.
type CreatedClient struct {
	Client Client
	Secret string
}
