package ddoccache

import (
	"context"
	"fmt"
)

// spawnOpener runs KeyOps.Recover for key in its own goroutine and delivers
// exactly one openOutcome on resultCh, tagged with gen so its owning entry
// can recognize (and discard) a stale result from an opener it has since
// killed and replaced.  A panic inside Recover is treated as a recover
// failure rather than crashing the process, since spec.md §7 item 1 groups
// "opener crash" with "non-ok recover result" as the same error kind.
func spawnOpener(ctx context.Context, reg *Registry, key Key, gen int64, resultCh chan<- openOutcome) {
	go func() {
		outcome := openOutcome{gen: gen}
		func() {
			defer func() {
				if r := recover(); r != nil {
					outcome.err = fmt.Errorf("ddoccache: recover panicked: %v", r)
				}
			}()
			outcome.val, outcome.err = reg.recover(ctx, key)
		}()

		select {
		case resultCh <- outcome:
		case <-ctx.Done():
			// Killed before it could deliver; the entry has already
			// moved on to a newer opener generation.
		}
	}()
}
