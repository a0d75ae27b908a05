// Package guard flips the binaries into test mode when imported, so tests
// can call main without dialing PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"
)

// EnvVar is the variable the binaries consult before connecting anywhere.
const EnvVar = "BARLEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
