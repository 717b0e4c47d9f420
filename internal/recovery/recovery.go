// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ColonelBlimp/cwkeyer/internal/log"
)

// exit is swapped out by tests
var exit = os.Exit

// HandlePanic should be deferred at the top of main() or goroutines.
// It logs the panic and stack, then exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		report(r, debug.Stack())
		exit(1)
	}
}

// HandlePanicFunc is HandlePanic with a cleanup run before exiting, such as
// restoring the terminal or cancelling a context.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report(r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		exit(1)
	}
}

func report(r any, stack []byte) {
	log.L().Error().Str("panic", fmt.Sprint(r)).Msg("fatal panic")
	_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, stack)
}
