package session

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CookiePayload is the authenticated-encrypted content carried by the
// session cookie.
type CookiePayload struct {
	SID string `json:"sid"`
	TID string `json:"tid"`
	V   int    `json:"v"`
	IAT int64  `json:"iat"`
}

// CookieName is the name of the cookie carrying the encrypted payload.
const CookieName = "openauth_session"

// cookieAAD binds the ciphertext to its purpose so it cannot be replayed
// as some other AEAD-protected payload in the system.
const cookieAAD = "openauth-session-cookie-v1"

// Cookier encrypts and decrypts CookiePayload values with a 32-byte
// AES-256-GCM key, using an AEAD-with-associated-data style. go-jose is
// reserved for JWE/JWK use in the signing/encryption key manager; the
// cookie's own AEAD is a directly-keyed GCM construction since no
// JWT/cookie claim set is otherwise needed here.
type Cookier struct {
	aead cipher.AEAD
}

// NewCookier builds a Cookier from a 32-byte key.
func NewCookier(key []byte) (*Cookier, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session cookie key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM AEAD: %w", err)
	}
	return &Cookier{aead: gcm}, nil
}

// Encrypt serializes p to JSON and authenticated-encrypts it, returning an
// opaque byte string suitable for a cookie value (caller base64/URL-encodes
// as needed for transport).
func (c *Cookier) Encrypt(p CookiePayload, nonce []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", c.aead.NonceSize(), len(nonce))
	}
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling cookie payload: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, []byte(cookieAAD))
	return append(nonce, sealed...), nil
}

// Decrypt recovers a CookiePayload, or returns (nil, nil) on ANY failure —
// malformed input, bad tag, or structurally invalid JSON — without
// distinguishing which check failed.
func (c *Cookier) Decrypt(raw []byte) (*CookiePayload, error) {
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, nil
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(cookieAAD))
	if err != nil {
		return nil, nil
	}
	var p CookiePayload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, nil
	}
	if p.SID == "" || p.TID == "" || p.IAT == 0 {
		return nil, nil
	}
	return &p, nil
}

// NonceSize returns the AEAD nonce length callers must supply to Encrypt.
func (c *Cookier) NonceSize() int { return c.aead.NonceSize() }

// NewHTTPCookie builds the outbound *http.Cookie carrying the encrypted
// value, with the default attributes .5.
func NewHTTPCookie(value []byte, sessionLifetime time.Duration, domain string) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    encodeCookieValue(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionLifetime.Seconds()),
	}
	if domain != "" {
		c.Domain = domain
	}
	return c
}

func encodeCookieValue(raw []byte) string { return base64.RawURLEncoding.EncodeToString(raw) }

// DecodeCookieValue reverses encodeCookieValue, for reading an incoming
// cookie header value back into raw AEAD bytes.
func DecodeCookieValue(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
