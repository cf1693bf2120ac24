// errors.go: structured error definitions for the go-pluginhost system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for the go-pluginhost system
const (
	// Metadata validation errors (1000-1099)
	ErrCodeInvalidPluginID   = "METADATA_1001"
	ErrCodeInvalidVersion    = "METADATA_1002"
	ErrCodeSelfDependency    = "METADATA_1003"
	ErrCodeInvalidDependency = "METADATA_1004"

	// Manifest errors (1100-1199)
	ErrCodeManifestNotFound = "MANIFEST_1101"
	ErrCodeManifestParse    = "MANIFEST_1102"
	ErrCodeManifestInvalid  = "MANIFEST_1103"

	// Dependency resolution errors (1200-1299)
	ErrCodeUnsatisfiedDependency = "DEPENDENCY_1201"
	ErrCodeCycleDetected         = "DEPENDENCY_1202"
	ErrCodeDuplicateProvider     = "DEPENDENCY_1203"

	// Lifecycle errors (1300-1399)
	ErrCodeDuplicatePluginID = "LIFECYCLE_1301"
	ErrCodeLoadFailed        = "LIFECYCLE_1302"
	ErrCodeInitializeFailed  = "LIFECYCLE_1303"
	ErrCodeStartFailed       = "LIFECYCLE_1304"
	ErrCodeStopFailed        = "LIFECYCLE_1305"
	ErrCodeDiscoveryError    = "LIFECYCLE_1306"

	// Event bus errors (1400-1499)
	ErrCodeNilHandler         = "BUS_1401"
	ErrCodeHandlerFailure     = "BUS_1402"
	ErrCodeDuplicateHandler   = "BUS_1403"
	ErrCodeBusClosed          = "BUS_1404"
	ErrCodeAsyncDeliveryError = "BUS_1405"
	ErrCodeHandlerPanic       = "BUS_1406"

	// Manifest watcher errors (1500-1599)
	ErrCodeWatcherError = "WATCHER_1501"
)

// Metadata validation error constructors

func NewInvalidPluginIDError(id string) *errors.Error {
	return errors.New(ErrCodeInvalidPluginID, "Invalid plugin id").
		WithUserMessage("Plugin id is required and cannot be empty").
		WithContext("provided_id", id).
		WithSeverity("error")
}

func NewInvalidVersionError(id, version string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInvalidVersion, "Invalid plugin version").
			WithUserMessage("Plugin version must be a valid semantic version").
			WithContext("plugin_id", id).
			WithContext("version", version).
			WithSeverity("error")
	}
	return errors.New(ErrCodeInvalidVersion, "Invalid plugin version").
		WithUserMessage("Plugin version must be a valid semantic version").
		WithContext("plugin_id", id).
		WithContext("version", version).
		WithSeverity("error")
}

func NewSelfDependencyError(id string) *errors.Error {
	return errors.New(ErrCodeSelfDependency, "Plugin cannot depend on itself").
		WithUserMessage("A plugin cannot depend on itself").
		WithContext("plugin_id", id).
		WithSeverity("error")
}

func NewInvalidDependencyError(id string, dep string) *errors.Error {
	return errors.New(ErrCodeInvalidDependency, "Invalid dependency declaration").
		WithUserMessage("Dependency declarations require a kind and a non-empty id").
		WithContext("plugin_id", id).
		WithContext("dependency", dep).
		WithSeverity("error")
}

// Manifest error constructors

func NewManifestNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeManifestNotFound, "Manifest not found").
		WithUserMessage("The plugin manifest file could not be read").
		WithContext("manifest_path", path).
		WithSeverity("error")
}

func NewManifestParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestParse, "Manifest parse error").
		WithUserMessage("Failed to parse manifest as JSON or YAML").
		WithContext("manifest_path", path).
		WithSeverity("error")
}

func NewManifestInvalidError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestInvalid, "Manifest validation failed").
		WithUserMessage("The plugin manifest failed static validation").
		WithContext("manifest_path", path).
		WithSeverity("error")
}

// Dependency resolution error constructors

func NewUnsatisfiedDependencyError(pluginID string, unsatisfied []string) *errors.Error {
	return errors.New(ErrCodeUnsatisfiedDependency, "Unsatisfied dependencies").
		WithUserMessage("The plugin has mandatory dependencies that cannot be satisfied").
		WithContext("plugin_id", pluginID).
		WithContext("unsatisfied", unsatisfied).
		WithSeverity("error")
}

func NewCycleDetectedError(rootID string) *errors.Error {
	return errors.New(ErrCodeCycleDetected, "Circular dependency detected").
		WithUserMessage("A dependency cycle was detected; load order is best-effort").
		WithContext("involving", rootID).
		WithSeverity("warning")
}

func NewDuplicateProviderError(service, keptID, rejectedID string) *errors.Error {
	return errors.New(ErrCodeDuplicateProvider, "Duplicate service provider").
		WithUserMessage("The service is already provided by another plugin; first registrant wins").
		WithContext("service", service).
		WithContext("provided_by", keptID).
		WithContext("rejected", rejectedID).
		WithSeverity("warning")
}

// Lifecycle error constructors

func NewDuplicatePluginIDError(id string) *errors.Error {
	return errors.New(ErrCodeDuplicatePluginID, "Duplicate plugin id").
		WithUserMessage("A plugin with this id was already discovered; first seen wins").
		WithContext("plugin_id", id).
		WithSeverity("warning")
}

func NewLoadFailedError(id, detail string) *errors.Error {
	return errors.New(ErrCodeLoadFailed, "Plugin load failed").
		WithUserMessage("The plugin module could not be activated").
		WithContext("plugin_id", id).
		WithContext("detail", detail).
		WithSeverity("error")
}

func NewInitializeFailedError(id string) *errors.Error {
	return errors.New(ErrCodeInitializeFailed, "Plugin initialization failed").
		WithUserMessage("The plugin reported a failure during initialization").
		WithContext("plugin_id", id).
		WithSeverity("error")
}

func NewStartFailedError(id string) *errors.Error {
	return errors.New(ErrCodeStartFailed, "Plugin start failed").
		WithUserMessage("The plugin reported a failure during start").
		WithContext("plugin_id", id).
		WithSeverity("error")
}

func NewDiscoveryError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeDiscoveryError, "Discovery error: "+message).
			WithUserMessage("Plugin discovery failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeDiscoveryError, "Discovery error: "+message).
		WithUserMessage("Plugin discovery failed").
		WithSeverity("error")
}

// Event bus error constructors

func NewNilHandlerError(pattern string) *errors.Error {
	return errors.New(ErrCodeNilHandler, "Nil handler").
		WithUserMessage("A subscription or registration requires a non-nil handler").
		WithContext("pattern", pattern).
		WithSeverity("error")
}

func NewHandlerFailureError(topic string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeHandlerFailure, "Request handler failed").
			WithUserMessage("The request handler failed; the caller receives no value").
			WithContext("topic", topic).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeHandlerFailure, "Request handler failed").
		WithUserMessage("The request handler failed; the caller receives no value").
		WithContext("topic", topic).
		WithSeverity("warning")
}

func NewHandlerPanicError(topic string, recovered any) *errors.Error {
	return errors.New(ErrCodeHandlerPanic, "Request handler panicked").
		WithUserMessage("The request handler panicked; the caller receives no value").
		WithContext("topic", topic).
		WithContext("panic", fmt.Sprintf("%v", recovered)).
		WithSeverity("warning")
}

func NewDuplicateHandlerError(topic, keptID, rejectedID string) *errors.Error {
	return errors.New(ErrCodeDuplicateHandler, "Duplicate request handler").
		WithUserMessage("The topic already has a registered handler; first registrant wins").
		WithContext("topic", topic).
		WithContext("registered_by", keptID).
		WithContext("rejected", rejectedID).
		WithSeverity("warning")
}

func NewBusClosedError() *errors.Error {
	return errors.New(ErrCodeBusClosed, "Event bus closed").
		WithUserMessage("The event bus has been closed and accepts no further operations").
		WithSeverity("error")
}

func NewAsyncDeliveryError(topic string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeAsyncDeliveryError, "Async delivery submission failed").
		WithUserMessage("The async delivery could not be queued to the worker pool").
		WithContext("topic", topic).
		WithSeverity("warning")
}

// Manifest watcher error constructors

func NewWatcherError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeWatcherError, "Manifest watcher error: "+message).
			WithUserMessage("Manifest watching failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeWatcherError, "Manifest watcher error: "+message).
		WithUserMessage("Manifest watching failed").
		WithSeverity("error")
}
