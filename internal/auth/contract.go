// Package auth defines the narrow contracts the core depends on for
// authentication and credential protection. Both the bearer-token HTTP
// surface and the AEAD credential cipher are external collaborators
// (spec §1/§9) — this package only pins down the shapes the core calls
// through, not their implementations.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the keyed-hash claim shape carried by bearer tokens issued by
// the external auth surface.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	SessionID uuid.UUID `json:"session_id"`
	Roles     []string  `json:"roles"`
	jwt.RegisteredClaims
}

// TokenValidator validates a bearer token and returns its claims. The core
// never issues tokens; it only needs to verify ones presented to the
// ambient HTTP surface.
type TokenValidator interface {
	Validate(tokenString string) (*Claims, error)
}

// CredentialCipher decrypts a device's stored credential. The concrete AEAD
// keyed by ENCRYPTION_KEY lives outside this repository; device connectors
// depend only on this interface (spec §9: "treat this as an external
// collaborator and do not re-specify the cipher here").
type CredentialCipher interface {
	Decrypt(ciphertext []byte) (string, error)
}

// NoopCipher is a CredentialCipher that treats the stored bytes as an
// already-plaintext password. Useful for tests and local development where
// no AEAD collaborator is wired in.
type NoopCipher struct{}

func (NoopCipher) Decrypt(ciphertext []byte) (string, error) {
	return string(ciphertext), nil
}

// NewClaimsExpiry is a small helper kept from the teacher's token-issuance
// code to compute a RegisteredClaims expiry window; useful to callers that
// stub a TokenValidator in tests.
func NewClaimsExpiry(ttl time.Duration) *jwt.NumericDate {
	return jwt.NewNumericDate(time.Now().Add(ttl))
}
