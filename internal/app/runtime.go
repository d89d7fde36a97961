package app

import (
	"os"
	"sync"
)

const testModeEnv = "DYEOPS_TEST_MODE"

// InTestMode reports whether DYEOPS_TEST_MODE=1, in which case the binaries
// exit before touching Postgres or Redis. The flag is read once.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})
