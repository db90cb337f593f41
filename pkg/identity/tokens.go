package identity

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meywd/openauth-core/pkg/keys"
)

// claims is the JWT claim set .
type claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	Email       string   `json:"email,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// signToken signs claims with the current primary signing key, stamping
// the JWT header's kid so a verifier can select the matching JWKS entry.
func signToken(ctx context.Context, km *keys.Manager, c claims) (string, error) {
	kp, err := km.Active(ctx, keys.RoleSigning)
	if err != nil {
		return "", fmt.Errorf("loading signing key: %w", err)
	}
	priv, err := kp.PrivateKey()
	if err != nil {
		return "", fmt.Errorf("parsing signing key: %w", err)
	}
	ecKey, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("signing key %s is not an ECDSA key", kp.ID)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, c)
	token.Header["kid"] = kp.ID
	signed, err := token.SignedString(ecKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func userClaims(issuer, tenantID, clientID string, sub Subject, ttl time.Duration, now time.Time) claims {
	return claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:    tenantID,
		Email:       sub.Email,
		Mode:        "user",
		Roles:       sub.Roles,
		Permissions: sub.Permissions,
	}
}

func m2mClaims(issuer, tenantID, clientID, scope string, ttl time.Duration, now time.Time) claims {
	return claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: tenantID,
		Mode:     "m2m",
		ClientID: clientID,
		Scope:    scope,
	}
}
