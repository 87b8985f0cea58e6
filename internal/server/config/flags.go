package config

import (
	"flag"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

var serverFlags = []string{"-a", "-d", "-s", "-k", "-i", "-t", "-r", "-m", "-ra", "-rp", "-rdb", "-hk", "-pi", "-l"}

// ValueFlags lists every flag that consumes a value, including -c/-config.
// Callers use it to separate flags from positional arguments.
func ValueFlags() []string {
	out := make([]string, 0, len(serverFlags)+2)
	out = append(out, "-c", "-config")
	return append(out, serverFlags...)
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     access token secret
//	-k string     refresh token secret
//	-i string     issuer
//	-t duration   access token validity (e.g., "15m")
//	-r duration   refresh token validity (e.g., "720h")
//	-m string     storage backend: postgres or redis
//	-ra string    Redis address
//	-rp string    Redis password
//	-rdb int      Redis database number
//	-hk string    refresh token hash key
//	-pi duration  purge interval for "serve"
//	-l string     log level
//
// args are filtered with flagx.FilterArgs first, so commands, positional
// arguments and -c/-config do not reach the flag set.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, serverFlags)

	fs := flag.NewFlagSet("tokenkeeper", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessSecret, "s", config.AccessSecret, "access token secret")
	fs.StringVar(&config.RefreshSecret, "k", config.RefreshSecret, "refresh token secret")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "access token issuer")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.StringVar(&config.Storage, "m", config.Storage, "storage backend (postgres|redis)")
	fs.StringVar(&config.RedisAddr, "ra", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "rp", config.RedisPassword, "redis password")
	fs.IntVar(&config.RedisDB, "rdb", config.RedisDB, "redis database")
	fs.StringVar(&config.TokenHashKey, "hk", config.TokenHashKey, "refresh token hash key")
	fs.DurationVar(&config.PurgeInterval, "pi", config.PurgeInterval, "expired token purge interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
