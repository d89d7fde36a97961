// Package testing prepares the process environment for tests that touch the
// binaries' configuration. Importing it for side effects puts the process in
// test mode, so main packages exit before dialling Postgres or Redis.
package testing

import "os"

// JWTSecret is the signing secret seeded when none is configured.
const JWTSecret = "dyeops-test-secret"

var defaults = map[string]string{
	"DYEOPS_TEST_MODE": "1",
	"JWT_SECRET":       JWTSecret,
	"LOG_FORMAT":       "json",
	"MIGRATIONS_AUTO":  "false",
}

func init() {
	for key, value := range defaults {
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
}
