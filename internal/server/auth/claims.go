package auth

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
)

// Wire claim names.
const (
	claimSubject   = "sub"
	claimType      = "type"
	claimTokenID   = "jti"
	claimIssuer    = "iss"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
	claimNotBefore = "nbf"

	refreshTokenType = "refresh"
)

// reservedClaims are owned by the gateway and signer and cannot be set
// through AccessClaims.Extra.
var reservedClaims = []string{
	claimSubject, claimType, claimTokenID,
	claimIssuer, claimIssuedAt, claimExpiresAt, claimNotBefore,
}

// AccessClaims is what an access token asserts about its bearer.
//
// Issuer, IssuedAt and ExpiresAt are filled in on verification and ignored
// when generating a token.
type AccessClaims struct {
	Subject   string
	Extra     map[string]any
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ToMap returns the wire claim mapping: the subject plus every non-reserved
// Extra entry.
func (c AccessClaims) ToMap() map[string]any {
	m := make(map[string]any, len(c.Extra)+1)
	maps.Copy(m, c.Extra)
	for _, k := range reservedClaims {
		delete(m, k)
	}
	m[claimSubject] = c.Subject
	return m
}

// AccessClaimsFromMap decodes a verified claim mapping.
func AccessClaimsFromMap(m map[string]any) (AccessClaims, error) {
	sub, ok := m[claimSubject].(string)
	if !ok || sub == "" {
		return AccessClaims{}, fmt.Errorf("missing subject claim")
	}

	c := AccessClaims{Subject: sub}
	c.Issuer, _ = m[claimIssuer].(string)

	var err error
	if c.IssuedAt, err = numericDate(m, claimIssuedAt); err != nil {
		return AccessClaims{}, err
	}
	if c.ExpiresAt, err = numericDate(m, claimExpiresAt); err != nil {
		return AccessClaims{}, err
	}

	for k, v := range m {
		if isReserved(k) {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}

	return c, nil
}

func isReserved(k string) bool {
	return slices.Contains(reservedClaims, k)
}

// numericDate reads a seconds-since-epoch claim; an absent claim is the zero time.
func numericDate(m map[string]any, key string) (time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, nil
	}

	var secs float64
	switch n := v.(type) {
	case float64:
		secs = n
	case int64:
		secs = float64(n)
	case int:
		secs = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("claim %q: %w", key, err)
		}
		secs = f
	default:
		return time.Time{}, fmt.Errorf("claim %q: unexpected type %T", key, v)
	}

	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}
