// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
)

// Stopper is implemented by batch.Handle and cancel.Controller.
type Stopper interface {
	RequestStop() bool
	Force() bool
}

// Watch relays signals from sigCh to s until ctx is done, sigCh is closed or
// the batch has been forced. The first signal requests a stop, the second
// signal of a type already seen forces.
func Watch(ctx context.Context, sigCh <-chan os.Signal, s Stopper) {
	seen := make(map[os.Signal]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			if _, again := seen[sig]; again {
				ctxlog.Warn(ctx, "watchdog", "detail", "received second signal of type, forcing termination", "signal", sig.String())
				s.Force()

				return
			}

			seen[sig] = struct{}{}

			ctxlog.Warn(ctx, "watchdog", "detail", "received signal, stopping after the current phase", "signal", sig.String())
			s.RequestStop()
		}
	}
}
