package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	EnvAccessSecret    = "ACCESS_SECRET"
	EnvRefreshSecret   = "REFRESH_SECRET"
	EnvIssuer          = "ISSUER"
	EnvAccessTokenTTL  = "ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL = "REFRESH_TOKEN_TTL"
	EnvStorage         = "STORAGE"
	EnvDatabaseDSN     = "DATABASE_DSN"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRedisDB         = "REDIS_DB"
	EnvTokenHashKey    = "TOKEN_HASH_KEY"
	EnvGRPCAddress     = "GRPC_ADDRESS"
	EnvPurgeInterval   = "PURGE_INTERVAL"
	EnvLogLevel        = "LOG_LEVEL"
)

// parseEnv overlays config with the environment. Empty variables count as
// unset. Durations use Go syntax ("15m"); malformed values panic.
func parseEnv(config *Config) {
	v := viper.New()

	bind := func(key string) bool {
		if err := v.BindEnv(key); err != nil {
			panic(err)
		}
		return v.IsSet(key)
	}

	stringVars := map[string]*string{
		EnvAccessSecret:  &config.AccessSecret,
		EnvRefreshSecret: &config.RefreshSecret,
		EnvIssuer:        &config.Issuer,
		EnvStorage:       &config.Storage,
		EnvDatabaseDSN:   &config.DatabaseDSN,
		EnvRedisAddr:     &config.RedisAddr,
		EnvRedisPassword: &config.RedisPassword,
		EnvTokenHashKey:  &config.TokenHashKey,
		EnvGRPCAddress:   &config.EndpointAddrGRPC,
		EnvLogLevel:      &config.LogLevel,
	}
	for key, dst := range stringVars {
		if bind(key) {
			*dst = v.GetString(key)
		}
	}

	durations := map[string]*time.Duration{
		EnvAccessTokenTTL:  &config.AccessTokenValidityDuration,
		EnvRefreshTokenTTL: &config.RefreshTokenValidityDuration,
		EnvPurgeInterval:   &config.PurgeInterval,
	}
	for key, dst := range durations {
		if bind(key) {
			d, err := time.ParseDuration(v.GetString(key))
			if err != nil {
				panic(fmt.Errorf("%s: %w", key, err))
			}
			*dst = d
		}
	}

	if bind(EnvRedisDB) {
		n, err := strconv.Atoi(v.GetString(EnvRedisDB))
		if err != nil {
			panic(fmt.Errorf("%s: %w", EnvRedisDB, err))
		}
		config.RedisDB = n
	}
}
