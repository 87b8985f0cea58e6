// Package auth issues and verifies the two credential kinds handled by
// tokenkeeper: short-lived access tokens carrying application claims, and
// long-lived refresh tokens whose only purpose is obtaining new access tokens.
//
// Both kinds are signed by the same Signer but with different secrets, so a
// refresh token can never pass as an access token or the other way round.
// Every verification ends in exactly one of three outcomes: the decoded
// claims, common.ErrInvalidToken or common.ErrTokenExpired. A misconfigured
// gateway reports common.ErrMisconfigured instead and is never mistaken for a
// token fault.
package auth
