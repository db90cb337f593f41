package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// JWKS exports the public half of every non-expired signing key as a JSON
// Web Key Set, for publication at the authorization server's jwks_uri.
// Only signing keys are published; encryption keys never leave the server.
func (m *Manager) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	keys, err := m.scanRole(ctx, RoleSigning)
	if err != nil {
		return nil, fmt.Errorf("listing signing keys: %w", err)
	}
	if raw, err := m.store.Get(ctx, roleKey(RoleSigning, PrimaryKeyID)); err == nil {
		if kp, derr := decodeKeyPair(raw); derr == nil {
			keys = append(keys, kp)
		}
	}

	set := &jose.JSONWebKeySet{}
	for _, kp := range keys {
		if kp.IsExpired() {
			continue
		}
		pub, err := kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("parsing public key %s: %w", kp.ID, err)
		}
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("signing key %s is not an ECDSA key", kp.ID)
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       ecKey,
			KeyID:     kp.ID,
			Algorithm: kp.Alg,
			Use:       "sig",
		})
	}
	return set, nil
}
