// Package lifecycle holds the process-wide draining state read by the health endpoint.
package lifecycle

import "sync/atomic"

var reason atomic.Pointer[string]

// BeginShutdown marks the process as draining. Health returns 503 shutting-down from then on.
// Only the first reason is kept.
func BeginShutdown(why string) {
	if why == "" {
		why = "unspecified"
	}
	reason.CompareAndSwap(nil, &why)
}

// IsShuttingDown reports whether BeginShutdown has been called.
func IsShuttingDown() bool {
	return reason.Load() != nil
}

// ShutdownReason returns the reason passed to BeginShutdown, or "" while serving.
func ShutdownReason() string {
	if p := reason.Load(); p != nil {
		return *p
	}
	return ""
}

// Reset clears the draining state. Tests only.
func Reset() {
	reason.Store(nil)
}
