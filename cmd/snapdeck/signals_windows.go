package main

import "context"

// startDumpOnSignal is a no-op: Windows has no SIGUSR1.
func startDumpOnSignal(context.Context, string) {}
