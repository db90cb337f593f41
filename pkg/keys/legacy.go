package keys

import (
	"context"
	"fmt"
)

// LegacyMaterial is a previously issued key pair supplied in DER form by an
// operator migrating from an older deployment, to be imported as
// verification-only material (already expired, never selected by Active).
type LegacyMaterial struct {
	Role       Role
	ID         string
	Alg        string
	PublicDER  []byte
	PrivateDER []byte
	Created    int64
	ExpiredAt  int64
}

// ImportLegacy stores legacy key material so tokens signed or encrypted
// under it before a migration can still be verified or decrypted, without
// ever being selected as the active key for new issuance.
func (m *Manager) ImportLegacy(ctx context.Context, material []LegacyMaterial) error {
	for _, lm := range material {
		expired := lm.ExpiredAt
		kp := &KeyPair{
			ID:      lm.ID,
			Alg:     lm.Alg,
			Public:  lm.PublicDER,
			Private: lm.PrivateDER,
			Created: lm.Created,
			Expired: &expired,
		}
		b, err := encodeKeyPair(kp)
		if err != nil {
			return fmt.Errorf("encoding legacy key %s: %w", lm.ID, err)
		}
		if err := m.store.Set(ctx, roleKey(lm.Role, lm.ID), b, 0); err != nil {
			return fmt.Errorf("storing legacy key %s: %w", lm.ID, err)
		}
	}
	return nil
}
