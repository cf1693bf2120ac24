// request.go: One-handler-per-topic request/response over the event bus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"sort"
	"time"

	"github.com/agilira/go-timecache"
)

// RequestHandler serves synchronous requests on one topic. The returned map
// is deep-copied before it reaches the caller, so the handler may reuse or
// mutate it afterward.
type RequestHandler func(request Event) (map[string]any, error)

// requestHandlerEntry is the bus-owned record for one claimed request topic.
type requestHandlerEntry struct {
	topic     string
	handlerID string
	handler   RequestHandler
}

// RegisterHandler claims a request topic for a handler. Topics are exact
// strings here, never patterns: at most one handler per topic, first claim
// wins. Returns false when the topic is already claimed, the topic is empty,
// or the handler is nil.
func (b *EventBus) RegisterHandler(topic, handlerID string, handler RequestHandler) bool {
	if topic == "" || handler == nil {
		b.logger.Warn("Rejecting request handler registration",
			"topic", topic, "handler_id", handlerID)
		return false
	}
	if b.closed.Load() {
		b.logger.Warn("RegisterHandler on closed bus", "topic", topic)
		return false
	}

	b.mu.Lock()
	if existing, claimed := b.handlers[topic]; claimed {
		b.mu.Unlock()
		b.logger.Warn("Request topic already claimed",
			"error", NewDuplicateHandlerError(topic, existing.handlerID, handlerID))
		return false
	}
	b.handlers[topic] = &requestHandlerEntry{
		topic:     topic,
		handlerID: handlerID,
		handler:   handler,
	}
	b.byHandlerID[handlerID] = append(b.byHandlerID[handlerID], topic)
	b.mu.Unlock()

	b.logger.Debug("Request handler registered", "topic", topic, "handler_id", handlerID)
	return true
}

// UnregisterHandler releases a request topic. Returns false for unclaimed
// topics.
func (b *EventBus) UnregisterHandler(topic string) bool {
	b.mu.Lock()
	entry, claimed := b.handlers[topic]
	if !claimed {
		b.mu.Unlock()
		return false
	}
	delete(b.handlers, topic)
	b.dropHandlerIndex(entry.handlerID, topic)
	b.mu.Unlock()

	b.logger.Debug("Request handler unregistered", "topic", topic)
	return true
}

// UnregisterAllHandlers releases every request topic claimed under one
// handler id. Typically called when a plugin shuts down.
func (b *EventBus) UnregisterAllHandlers(handlerID string) {
	b.mu.Lock()
	topics := b.byHandlerID[handlerID]
	delete(b.byHandlerID, handlerID)
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	b.mu.Unlock()

	if len(topics) > 0 {
		b.logger.Debug("Request handlers unregistered",
			"handler_id", handlerID, "count", len(topics))
	}
}

// HasHandler reports whether a request topic is currently claimed.
func (b *EventBus) HasHandler(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, claimed := b.handlers[topic]
	return claimed
}

// HandledTopics returns the claimed request topics, sorted.
func (b *EventBus) HandledTopics() []string {
	b.mu.Lock()
	topics := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	sort.Strings(topics)
	return topics
}

// Request performs a synchronous request against the handler claiming the
// exact topic and returns its deep-copied response.
//
// ok is false when no handler claims the topic or when the handler fails
// (returned an error or panicked; panics are contained here and never
// propagate to the requester). The two cases are indistinguishable to the
// caller by design; details go to the log. The handler runs inline on the
// caller's goroutine, so the timeout is advisory: it is reported alongside
// failures but cannot interrupt a running handler.
func (b *EventBus) Request(topic string, data map[string]any, senderID string, timeout time.Duration) (map[string]any, bool) {
	if b.closed.Load() {
		b.logger.Warn("Request on closed bus", "topic", topic)
		return nil, false
	}

	b.mu.Lock()
	entry, claimed := b.handlers[topic]
	b.mu.Unlock()

	if !claimed {
		b.logger.Debug("No handler for request topic", "topic", topic)
		b.recordRequest(topic, false)
		return nil, false
	}

	request := Event{
		Topic:     topic,
		SenderID:  senderID,
		Data:      deepCopyDataMap(data),
		Timestamp: timecache.CachedTimeNano() / int64(time.Millisecond),
	}

	response, err := invokeRequestHandler(entry.handler, request)
	if err != nil {
		b.logger.Warn("Request handler failed",
			"topic", topic,
			"handler_id", entry.handlerID,
			"timeout", timeout,
			"error", NewHandlerFailureError(topic, err))
		b.recordRequest(topic, false)
		return nil, false
	}

	b.recordRequest(topic, true)
	return deepCopyDataMap(response), true
}

// RequestEnvelope wraps Request in a map-shaped result for callers that
// cannot express a (value, ok) pair: the response map gains "__success",
// and failures reduce to {"__success": false, "__error": "..."}.
func (b *EventBus) RequestEnvelope(topic string, data map[string]any, senderID string, timeout time.Duration) map[string]any {
	response, ok := b.Request(topic, data, senderID, timeout)
	if !ok {
		return map[string]any{
			"__success": false,
			"__error":   "no handler or handler failed for topic: " + topic,
		}
	}
	if response == nil {
		response = make(map[string]any, 1)
	}
	response["__success"] = true
	return response
}

// invokeRequestHandler runs one handler with panic containment, converting a
// panic into an error so the requester only ever sees a missing value.
func invokeRequestHandler(handler RequestHandler, request Event) (response map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			response = nil
			err = NewHandlerPanicError(request.Topic, recovered)
		}
	}()
	return handler(request)
}

// dropHandlerIndex removes one topic from the handler-id index. Caller holds
// b.mu.
func (b *EventBus) dropHandlerIndex(handlerID, topic string) {
	topics := b.byHandlerID[handlerID]
	for i, known := range topics {
		if known == topic {
			topics = append(topics[:i], topics[i+1:]...)
			break
		}
	}
	if len(topics) == 0 {
		delete(b.byHandlerID, handlerID)
	} else {
		b.byHandlerID[handlerID] = topics
	}
}

func (b *EventBus) recordRequest(topic string, ok bool) {
	if b.metrics != nil {
		b.metrics.RequestHandled(topic, ok)
	}
}
