// Package common contains shared constants and sentinel errors used across
// tokenkeeper components.
package common

import "time"

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// DefaultIssuer is embedded into access tokens when no issuer is configured.
const DefaultIssuer = "auth-service"

// RefreshTokenHorizon is the fixed lifetime of a refresh token.
const RefreshTokenHorizon = 30 * 24 * time.Hour
