// panic_recovery.go: Panic recovery utilities with stack trace support
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"runtime"
)

// withStackRecover returns a panic recovery function that logs panic details
// including the full stack trace. Deferred in every goroutine the library
// spawns for event handlers and observer notifications, so a misbehaving
// handler never takes down the host process.
//
// Example usage:
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    handler(event)
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// safeGo executes a function in a new goroutine with automatic panic recovery.
func safeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}
