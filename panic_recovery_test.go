// panic_recovery_test.go: Test suite for goroutine panic containment
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sync"
	"testing"
)

func TestWithStackRecoverContainsPanic(t *testing.T) {
	logger := NewTestLogger()

	func() {
		defer withStackRecover(logger)()
		panic("contained")
	}()

	logger.mu.RLock()
	defer logger.mu.RUnlock()
	if len(logger.Messages) == 0 {
		t.Fatal("recovered panic must be logged")
	}
	if logger.Messages[0].Level != "ERROR" {
		t.Errorf("panic logged at %s, want ERROR", logger.Messages[0].Level)
	}
}

func TestWithStackRecoverNoPanicNoLog(t *testing.T) {
	logger := NewTestLogger()
	func() {
		defer withStackRecover(logger)()
	}()
	if len(logger.Messages) != 0 {
		t.Error("nothing to recover, nothing to log")
	}
}

func TestSafeGoSurvivesPanickingTask(t *testing.T) {
	logger := NewTestLogger()

	var wg sync.WaitGroup
	wg.Add(2)
	safeGo(logger, func() {
		defer wg.Done()
		panic("async boom")
	})
	safeGo(logger, func() {
		defer wg.Done()
	})
	wg.Wait()
}
