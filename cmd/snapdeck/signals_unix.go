//go:build !windows

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/logging"
)

// startDumpOnSignal makes SIGUSR1 dump the log ring buffer for
// post-mortem debugging.
func startDumpOnSignal(ctx context.Context, dir string) {
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(usr1Chan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1Chan:
				dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(dumpPath); err != nil {
					mainLog.Error("crash_dump_failed", slog.String("error", err.Error()))
				} else {
					mainLog.Info("crash_dump_written", slog.String("path", dumpPath))
				}
			}
		}
	}()
}
