package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Duration fields use timex.Duration, which accepts both "15m" and integer
// nanoseconds. Pointer fields distinguish "absent" from zero.
type JsonConfig struct {
	AccessSecret                 string          `json:"access_secret"`
	RefreshSecret                string          `json:"refresh_secret"`
	Issuer                       string          `json:"issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	Storage                      string          `json:"storage"`
	DatabaseDSN                  string          `json:"database_dsn"`
	RedisAddr                    string          `json:"redis_addr"`
	RedisPassword                string          `json:"redis_password"`
	RedisDB                      *int            `json:"redis_db"`
	TokenHashKey                 string          `json:"token_hash_key"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	PurgeInterval                *timex.Duration `json:"purge_interval"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson loads the file named by -c/-config (if any) over config. Only
// keys present in the file are applied. Unreadable or invalid files panic.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFile(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.AccessSecret, c.AccessSecret)
	setString(&config.RefreshSecret, c.RefreshSecret)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.TokenHashKey, c.TokenHashKey)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
