package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes the binaries return before dialing PostgreSQL or Redis.
const TestModeEnv = "BARLEDGER_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true boolean ("1", "true").
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
