// Package keys implements : process-wide signing/encryption key
// discovery and generation, with single-flight coordination for concurrent
// callers in one process and a fixed "primary" key id as the cross-process
// convergence mechanism.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
)

// Role names the two independent key roles .7. Each role
// has its own storage prefix and its own "primary" key id.
type Role string

const (
	RoleSigning    Role = "signing"
	RoleEncryption Role = "encryption"
)

// PrimaryKeyID is the fixed id that bounds churn under concurrent generation.
const PrimaryKeyID = "primary"

// KeyPair is a signing or encryption key pair.
type KeyPair struct {
	ID      string `json:"id"`
	Alg     string `json:"alg"`
	Public  []byte `json:"public"` // DER, PKIX
	Private []byte `json:"private"` // DER, PKCS8
	Created int64  `json:"created"`
	Expired *int64 `json:"expired,omitempty"`
}

// IsExpired reports whether Expired is set.
func (k *KeyPair) IsExpired() bool { return k.Expired != nil }

// PublicKey parses the stored DER public key.
func (k *KeyPair) PublicKey() (crypto.PublicKey, error) {
	return x509.ParsePKIXPublicKey(k.Public)
}

// PrivateKey parses the stored DER private key.
func (k *KeyPair) PrivateKey() (crypto.PrivateKey, error) {
	return x509.ParsePKCS8PrivateKey(k.Private)
}

// algorithm describes how to generate and name keys for a Role.
type algorithm struct {
	name     string
	generate func() (pub, priv []byte, err error)
}

var algorithms = map[Role]algorithm{
	RoleSigning: {
		name: "ES256",
		generate: func() ([]byte, []byte, error) {
			priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			if err != nil {
				return nil, nil, fmt.Errorf("generating P-256 key: %w", err)
			}
			return marshalPair(&priv.PublicKey, priv)
		},
	},
	RoleEncryption: {
		name: "RSA-OAEP-512",
		generate: func() ([]byte, []byte, error) {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return nil, nil, fmt.Errorf("generating RSA-2048 key: %w", err)
			}
			return marshalPair(&priv.PublicKey, priv)
		},
	},
}

func marshalPair(pub crypto.PublicKey, priv crypto.PrivateKey) ([]byte, []byte, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling private key: %w", err)
	}
	return pubDER, privDER, nil
}

func encodeKeyPair(k *KeyPair) ([]byte, error) { return json.Marshal(k) }

func decodeKeyPair(b []byte) (*KeyPair, error) {
	var k KeyPair
	if err := json.Unmarshal(b, &k); err != nil {
		return nil, err
	}
	return &k, nil
}
