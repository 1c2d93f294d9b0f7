package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ParentPollInterval is how often WatchParent checks the parent pid.
var ParentPollInterval = 2 * time.Second

// WatchParent cancels the server when the parent process exits, so a stdio
// server left behind by a closed client shuts down. It must not read stdin:
// the SDK's StdioTransport owns it.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchParent(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	ppid := os.Getppid()
	go func() {
		t := time.NewTicker(ParentPollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if os.Getppid() != ppid {
					log.Warn("parent process exited, shutting down", slog.Int("ppid", ppid))
					cancel()
					return
				}
			}
		}
	}()
}
