package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"serve",
			"-a", "127.0.0.1:9090", "-d", "db", "-s", "access", "-k", "refresh", "-i", "iss",
			"-t", "1m", "-r", "3h", "-m", "redis", "-ra", "redis:6379", "-rp", "pw", "-rdb", "2",
			"-hk", "hashkey", "-pi", "10m", "-l", "debug",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrGRPC:             "127.0.0.1:9090",
				DatabaseDSN:                  "db",
				AccessSecret:                 "access",
				RefreshSecret:                "refresh",
				Issuer:                       "iss",
				AccessTokenValidityDuration:  1 * time.Minute,
				RefreshTokenValidityDuration: 3 * time.Hour,
				Storage:                      "redis",
				RedisAddr:                    "redis:6379",
				RedisPassword:                "pw",
				RedisDB:                      2,
				TokenHashKey:                 "hashkey",
				PurgeInterval:                10 * time.Minute,
				LogLevel:                     "debug",
			}},
		{name: "Positional and config flags ignored", args: []string{"refresh", "tok.en.value", "-c", "x.json", "-s", "a"},
			expected: &Config{AccessSecret: "a"}},
		{name: "Bad duration", args: []string{"-t", "soon"}, expectPanic: true},
		{name: "Bad int", args: []string{"-rdb", "zero"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config, tt.args) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config, tt.args) })
			}
		})
	}
}

func TestValueFlags(t *testing.T) {
	vf := ValueFlags()
	assert.Contains(t, vf, "-c")
	assert.Contains(t, vf, "-config")
	assert.Contains(t, vf, "-s")
	assert.Len(t, vf, len(serverFlags)+2)
}
