package auth

import (
	"errors"
	"time"
)

// Signals a Signer must use to report verification failures. Expiry is
// recognised only through ErrExpiredSignal; anything else is treated as an
// invalid token.
var (
	ErrExpiredSignal = errors.New("signature expired")
	ErrInvalidSignal = errors.New("signature invalid")
)

// SignOptions controls the registered claims a Signer adds.
// ExpiresAt wins over TTL when both are set; neither means no expiry.
type SignOptions struct {
	Issuer    string
	TTL       time.Duration
	ExpiresAt time.Time
}

// Signer signs a claim mapping with a secret and verifies+decodes signed
// strings. Verify must wrap ErrExpiredSignal when the embedded expiry has
// passed and ErrInvalidSignal for every other verification failure.
type Signer interface {
	Sign(claims map[string]any, secret []byte, opts SignOptions) (string, error)
	Verify(token string, secret []byte) (map[string]any, error)
}

func isExpirySignal(err error) bool {
	return errors.Is(err, ErrExpiredSignal)
}
