//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals that initiate a graceful shutdown.
// Process managers (systemd, kubernetes) stop the service with SIGTERM;
// SIGINT covers interactive Ctrl-C.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
