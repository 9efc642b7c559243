package config

import (
	"flag"
	"io"
	"os"
	"slices"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/flagx"
)

// serverFlags are the short flags parseFlags understands.
var serverFlags = []string{"-a", "-d", "-s", "-m", "-t", "-x", "-b", "-l"}

// ValueFlags lists every configuration flag that takes a value, including
// -c/-config. Tools that accept a command word after these flags use it to
// find where the command starts.
var ValueFlags = append(slices.Clone(serverFlags), "-c", "-config")

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   HMAC secret key for bearer tokens
//	-m string   signing algorithm (HS256, HS384, HS512)
//	-t int      access token validity, minutes
//	-x string   hash algorithm (bcrypt, argon2id)
//	-b int      bcrypt cost
//	-l string   log level
//
// os.Args is filtered with flagx.FilterArgs first so the -c/-config flag
// and anything unknown do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SigningAlgorithm, "m", config.SigningAlgorithm, "token signing algorithm")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.HashAlgorithm, "x", config.HashAlgorithm, "hash algorithm")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if isFlagSet(fs, "t") {
		config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
