// -----------------------------------------------------------------------
// Safe Goroutine - panic-protected goroutine spawning
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn on its own goroutine and converts a panic into a logged
// error. Job workers and event publishes run through here so a panic in
// one job cannot take the whole service down.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := GetStackTrace()
			if logger == nil {
				fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, stack)
				return
			}
			logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("Recovered from goroutine panic")
		}()

		fn()
	}()
}
