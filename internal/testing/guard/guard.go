// Package guard switches binaries into test mode when imported by their
// tests, so main() returns before touching the network.
package guard

import (
	"os"
	"sync"
)

// Env is the variable app.InTestMode reads.
const Env = "BACKOFFICE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
