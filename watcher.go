// watcher.go: Manifest file watching for runtime plugin re-discovery
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ManifestChangeHandler receives one manifest change notification. It runs
// on the watcher's polling goroutine; hosts that mutate the lifecycle
// manager in response must hand the work to the goroutine that drives the
// manager's phase calls.
type ManifestChangeHandler func(manifestPath string, removed bool)

// ManifestWatcherOptions tune the underlying file watcher.
type ManifestWatcherOptions struct {
	// PollInterval between file stat sweeps. Zero selects 2 seconds.
	PollInterval time.Duration

	// MaxWatchedFiles caps the number of watched manifests. Zero selects 256.
	MaxWatchedFiles int
}

// ManifestWatcher polls registered manifest files and reports create, modify
// and delete events so a host can re-run discovery while plugins are live.
// Hot-swapping a started plugin stays the host's problem; the watcher only
// reports.
type ManifestWatcher struct {
	logger   Logger
	watcher  *argus.Watcher
	onChange ManifestChangeHandler
	enabled  atomic.Bool
	stopped  atomic.Bool
}

// NewManifestWatcher creates a watcher delivering changes to onChange.
func NewManifestWatcher(onChange ManifestChangeHandler, logger Logger, options ManifestWatcherOptions) *ManifestWatcher {
	if logger == nil {
		logger = DefaultLogger()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = 2 * time.Second
	}
	if options.MaxWatchedFiles <= 0 {
		options.MaxWatchedFiles = 256
	}

	mw := &ManifestWatcher{
		logger:   logger,
		onChange: onChange,
	}
	mw.watcher = argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		MaxWatchedFiles:      options.MaxWatchedFiles,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, path string) {
			logger.Error("Manifest watch error", "path", path, "error", err)
		},
		Audit: argus.AuditConfig{Enabled: false},
	})
	return mw
}

// Watch registers one manifest file for change tracking.
func (mw *ManifestWatcher) Watch(manifestPath string) error {
	if err := mw.watcher.Watch(manifestPath, mw.handleChange); err != nil {
		return NewWatcherError("failed to watch manifest", err).
			WithContext("manifest_path", manifestPath)
	}
	mw.logger.Debug("Watching manifest", "path", manifestPath)
	return nil
}

// WatchDirectory registers every manifest file currently present in a
// directory and returns how many were registered. Files added to the
// directory later are not picked up automatically; call Watch for those.
func (mw *ManifestWatcher) WatchDirectory(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, NewWatcherError("failed to read manifest directory", err).
			WithContext("directory", dir)
	}

	watched := 0
	for _, entry := range entries {
		if entry.IsDir() || !matchesManifestPattern(entry.Name()) {
			continue
		}
		if err := mw.Watch(filepath.Join(dir, entry.Name())); err != nil {
			return watched, err
		}
		watched++
	}
	return watched, nil
}

// Start begins polling. Returns an error if the watcher was already started
// or permanently stopped.
func (mw *ManifestWatcher) Start() error {
	if mw.stopped.Load() {
		return NewWatcherError("watcher permanently stopped", nil)
	}
	if !mw.enabled.CompareAndSwap(false, true) {
		return NewWatcherError("watcher already started", nil)
	}

	if err := mw.watcher.Start(); err != nil {
		mw.enabled.Store(false)
		return NewWatcherError("failed to start manifest watcher", err)
	}
	mw.logger.Info("Manifest watcher started")
	return nil
}

// Stop halts polling permanently. Idempotent.
func (mw *ManifestWatcher) Stop() error {
	if !mw.stopped.CompareAndSwap(false, true) {
		return nil
	}
	mw.enabled.Store(false)

	if err := mw.watcher.Stop(); err != nil {
		return NewWatcherError("failed to stop manifest watcher", err)
	}
	mw.logger.Info("Manifest watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is actively polling.
func (mw *ManifestWatcher) IsRunning() bool {
	return mw.enabled.Load() && !mw.stopped.Load()
}

func (mw *ManifestWatcher) handleChange(event argus.ChangeEvent) {
	mw.logger.Info("Manifest change detected",
		"path", event.Path,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if mw.onChange == nil {
		return
	}
	defer withStackRecover(mw.logger)()
	mw.onChange(event.Path, event.IsDelete)
}
