// eventbus.go: Thread-safe publish/subscribe bus with wildcard topic patterns
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Event is one message traveling over the bus.
//
// Data carries opaque string-keyed values. Every handler receives an
// independent deep copy, so mutation by one subscriber is never observable
// by another, by the publisher, or across an async hand-off.
type Event struct {
	Topic     string         `json:"topic"`
	SenderID  string         `json:"sender_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"` // publish time, epoch milliseconds
}

// EventHandler consumes one published event.
type EventHandler func(event Event)

// SubscriptionOptions tune how one subscription receives events.
type SubscriptionOptions struct {
	// Priority orders delivery: higher priorities are notified first.
	// Equal priorities preserve subscription order.
	Priority int `json:"priority"`

	// Async delivers fire-and-forget publishes on the worker pool instead
	// of the publisher's goroutine. PublishSync ignores this flag.
	Async bool `json:"async"`

	// ReceiveOwnEvents controls whether events whose sender id equals the
	// subscriber id are delivered. Off by default.
	ReceiveOwnEvents bool `json:"receive_own_events"`
}

// TopicStats is the per-topic statistics snapshot returned by the bus.
// SubscriberCount counts subscriptions whose pattern matches the exact topic
// string; EventCount and LastEventTime accumulate for that topic string only.
type TopicStats struct {
	Topic           string `json:"topic"`
	SubscriberCount int    `json:"subscriber_count"`
	EventCount      int64  `json:"event_count"`
	LastEventTime   int64  `json:"last_event_time"` // epoch milliseconds, 0 if never published
}

// BusObserver receives bus table-change notifications. Notifications are
// delivered on their own goroutine with panic recovery, outside the bus
// lock, so an observer may call back into the bus freely.
type BusObserver interface {
	SubscriptionAdded(subscriptionID, pattern string)
	SubscriptionRemoved(subscriptionID string)
	SubscribersChanged(total int)
	TopicsChanged()
}

// subscription is owned exclusively by the bus; callers hold only the id.
type subscription struct {
	id           string
	pattern      string
	subscriberID string
	options      SubscriptionOptions
	matcher      *regexp.Regexp
	handler      EventHandler
	seq          uint64 // insertion sequence, breaks priority ties
}

// topicCounters accumulates publish statistics for one exact topic string.
type topicCounters struct {
	eventCount    int64
	lastEventTime int64
}

// EventBusOptions configure bus construction.
type EventBusOptions struct {
	// AsyncWorkers caps the goroutine pool used for async deliveries.
	// Zero selects the default of 16.
	AsyncWorkers int

	// Metrics receives bus counters when non-nil.
	Metrics MetricsCollector
}

// EventBus provides topic-pattern subscription, priority-ordered fan-out
// delivery, and a one-handler-per-topic request/response mechanism for
// synchronous cross-plugin calls.
//
// Topic patterns are '/'-segmented: '*' matches exactly one non-empty
// segment, '**' matches one or more trailing segments, and matching is
// anchored: "orders/*" matches "orders/created" but not
// "orders/items/added"; "orders/**" matches both.
//
// A single mutex guards the subscription, handler, and statistics tables.
// It is held only for the snapshot/mutation step, never across a handler
// invocation, so a handler may itself call back into Subscribe or Publish
// without deadlocking. Async deliveries are queued onto a bounded goroutine
// pool and carry deep-copied events; they are eventually delivered at most
// once, with no ordering promise relative to other async deliveries.
// Unsubscribing after a delivery has been queued does not retract it. A
// saturated pool never parks the publisher: the delivery falls back to a
// plain goroutine and Publish still returns immediately.
type EventBus struct {
	logger  Logger
	metrics MetricsCollector

	mu            sync.Mutex
	subscriptions map[string]*subscription
	bySubscriber  map[string][]string // subscriber id -> subscription ids
	handlers      map[string]*requestHandlerEntry
	byHandlerID   map[string][]string // handler id -> claimed topics
	stats         map[string]*topicCounters
	nextSeq       uint64

	observerMu sync.RWMutex
	observers  []BusObserver

	pool   *ants.Pool
	closed atomic.Bool
}

// NewEventBus creates a bus with default options. A nil logger falls back to
// the silent default.
func NewEventBus(logger Logger) *EventBus {
	return NewEventBusWithOptions(logger, EventBusOptions{})
}

// NewEventBusWithOptions creates a bus with explicit options.
func NewEventBusWithOptions(logger Logger, options EventBusOptions) *EventBus {
	if logger == nil {
		logger = DefaultLogger()
	}
	workers := options.AsyncWorkers
	if workers <= 0 {
		workers = 16
	}

	// Nonblocking: a saturated pool must fail Submit instead of parking the
	// publisher, so Publish stays fire-and-forget.
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		// Pool construction only fails on invalid sizes; deliveries fall
		// back to plain goroutines.
		logger.Warn("Async worker pool unavailable, using unpooled goroutines", "error", err)
		pool = nil
	}

	return &EventBus{
		logger:        logger,
		metrics:       options.Metrics,
		subscriptions: make(map[string]*subscription),
		bySubscriber:  make(map[string][]string),
		handlers:      make(map[string]*requestHandlerEntry),
		byHandlerID:   make(map[string][]string),
		stats:         make(map[string]*topicCounters),
		pool:          pool,
	}
}

// AddObserver registers a table-change observer.
func (b *EventBus) AddObserver(observer BusObserver) {
	if observer == nil {
		return
	}
	b.observerMu.Lock()
	defer b.observerMu.Unlock()
	b.observers = append(b.observers, observer)
}

// Close shuts the bus down. Queued async deliveries that have not started
// are abandoned; in-flight ones finish. Idempotent.
func (b *EventBus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.pool != nil {
		b.pool.Release()
	}
	b.logger.Info("Event bus closed")
}

// Subscribe registers a handler for a topic pattern and returns the
// subscription id. A nil handler is rejected with an empty id and nothing
// registered. The bus owns the subscription; the caller keeps only the id.
func (b *EventBus) Subscribe(pattern, subscriberID string, handler EventHandler, options SubscriptionOptions) string {
	if handler == nil {
		b.logger.Warn("Cannot subscribe with nil handler",
			"subscriber", subscriberID,
			"error", NewNilHandlerError(pattern))
		return ""
	}
	if b.closed.Load() {
		b.logger.Warn("Subscribe on closed bus", "pattern", pattern, "error", NewBusClosedError())
		return ""
	}

	matcher, err := compileTopicPattern(pattern)
	if err != nil {
		b.logger.Warn("Invalid topic pattern", "pattern", pattern, "error", err)
		return ""
	}

	sub := &subscription{
		id:           uuid.NewString(),
		pattern:      pattern,
		subscriberID: subscriberID,
		options:      options,
		matcher:      matcher,
		handler:      handler,
	}

	b.mu.Lock()
	b.nextSeq++
	sub.seq = b.nextSeq
	b.subscriptions[sub.id] = sub
	b.bySubscriber[subscriberID] = append(b.bySubscriber[subscriberID], sub.id)
	total := len(b.subscriptions)
	b.mu.Unlock()

	b.logger.Debug("Subscribed",
		"subscriber", subscriberID,
		"pattern", pattern,
		"subscription_id", sub.id)
	b.recordSubscriptions(total)
	b.notifyObservers(func(o BusObserver) {
		o.SubscriptionAdded(sub.id, pattern)
		o.SubscribersChanged(total)
		o.TopicsChanged()
	})

	return sub.id
}

// Unsubscribe removes one subscription by id. Returns false for unknown ids.
func (b *EventBus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	sub, exists := b.subscriptions[subscriptionID]
	if !exists {
		b.mu.Unlock()
		return false
	}
	delete(b.subscriptions, subscriptionID)
	b.dropSubscriberIndex(sub.subscriberID, subscriptionID)
	total := len(b.subscriptions)
	b.mu.Unlock()

	b.logger.Debug("Unsubscribed", "subscription_id", subscriptionID)
	b.recordSubscriptions(total)
	b.notifyObservers(func(o BusObserver) {
		o.SubscriptionRemoved(subscriptionID)
		o.SubscribersChanged(total)
		o.TopicsChanged()
	})

	return true
}

// UnsubscribeAll removes every subscription owned by a subscriber id.
// Idempotent: a subscriber with no subscriptions is a silent no-op.
func (b *EventBus) UnsubscribeAll(subscriberID string) {
	b.mu.Lock()
	ids := b.bySubscriber[subscriberID]
	delete(b.bySubscriber, subscriberID)
	for _, id := range ids {
		delete(b.subscriptions, id)
	}
	total := len(b.subscriptions)
	b.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	b.logger.Debug("Unsubscribed all",
		"subscriber", subscriberID,
		"count", len(ids))
	b.recordSubscriptions(total)
	b.notifyObservers(func(o BusObserver) {
		for _, id := range ids {
			o.SubscriptionRemoved(id)
		}
		o.SubscribersChanged(total)
		o.TopicsChanged()
	})
}

// Publish delivers an event to every matching subscription, fire-and-forget.
//
// Matches with Async=true receive an independently queued deep copy; matches
// with Async=false are delivered inline on the caller's goroutine. Returns
// the count of subscriptions notified after sender filtering, not the count
// of handlers that succeeded.
func (b *EventBus) Publish(topic string, data map[string]any, senderID string) int {
	return b.deliverEvent(topic, data, senderID, false)
}

// PublishSync delivers an event to every matching subscription inline on the
// caller's goroutine, regardless of each subscription's Async flag, highest
// priority first. The caller blocks until every handler returns.
func (b *EventBus) PublishSync(topic string, data map[string]any, senderID string) int {
	return b.deliverEvent(topic, data, senderID, true)
}

// deliverEvent records topic statistics exactly once, snapshots the matching
// subscriptions under the lock, then invokes handlers outside it.
func (b *EventBus) deliverEvent(topic string, data map[string]any, senderID string, synchronous bool) int {
	if b.closed.Load() {
		b.logger.Warn("Publish on closed bus", "topic", topic)
		return 0
	}

	timestamp := timecache.CachedTimeNano() / int64(time.Millisecond)

	b.mu.Lock()
	counters := b.stats[topic]
	if counters == nil {
		counters = &topicCounters{}
		b.stats[topic] = counters
	}
	counters.eventCount++
	counters.lastEventTime = timestamp

	matches := make([]*subscription, 0, 4)
	for _, sub := range b.subscriptions {
		if sub.matcher.MatchString(topic) {
			matches = append(matches, sub)
		}
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventPublished(topic)
	}

	if len(matches) == 0 {
		return 0
	}

	// Priority descending; insertion sequence breaks ties.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].options.Priority != matches[j].options.Priority {
			return matches[i].options.Priority > matches[j].options.Priority
		}
		return matches[i].seq < matches[j].seq
	})

	notified := 0
	for _, sub := range matches {
		if !sub.options.ReceiveOwnEvents && sub.subscriberID == senderID {
			continue
		}
		notified++

		// Each handler gets its own copy of the payload.
		delivery := Event{
			Topic:     topic,
			SenderID:  senderID,
			Data:      deepCopyDataMap(data),
			Timestamp: timestamp,
		}

		if sub.options.Async && !synchronous {
			b.deliverAsync(sub, delivery)
		} else {
			sub.handler(delivery)
			b.recordDelivery(topic, false)
		}
	}

	return notified
}

// deliverAsync queues one delivery onto the worker pool, falling back to a
// plain goroutine if the pool rejects the task (released or saturated).
func (b *EventBus) deliverAsync(sub *subscription, event Event) {
	handler := sub.handler
	task := func() {
		defer withStackRecover(b.logger)()
		handler(event)
		b.recordDelivery(event.Topic, true)
	}

	if b.pool != nil {
		if err := b.pool.Submit(task); err == nil {
			return
		} else if !b.closed.Load() {
			b.logger.Warn("Async delivery pool rejected task, using goroutine",
				"error", NewAsyncDeliveryError(event.Topic, err))
		}
	}
	go task()
}

// Query surface

// SubscriberCount returns the number of subscriptions whose pattern matches
// the given concrete topic.
func (b *EventBus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, sub := range b.subscriptions {
		if sub.matcher.MatchString(topic) {
			count++
		}
	}
	return count
}

// TotalSubscribers returns the total number of live subscriptions.
func (b *EventBus) TotalSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// ActiveTopics returns the distinct subscription patterns (not concrete
// topics), sorted for deterministic output.
func (b *EventBus) ActiveTopics() []string {
	b.mu.Lock()
	seen := make(map[string]struct{}, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		seen[sub.pattern] = struct{}{}
	}
	b.mu.Unlock()

	patterns := make([]string, 0, len(seen))
	for pattern := range seen {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// TopicStats returns the statistics snapshot for one exact topic string.
func (b *EventBus) TopicStats(topic string) TopicStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := TopicStats{Topic: topic}
	for _, sub := range b.subscriptions {
		if sub.matcher.MatchString(topic) {
			stats.SubscriberCount++
		}
	}
	if counters, ok := b.stats[topic]; ok {
		stats.EventCount = counters.eventCount
		stats.LastEventTime = counters.lastEventTime
	}
	return stats
}

// SubscriptionsFor returns the subscription ids owned by a subscriber.
func (b *EventBus) SubscriptionsFor(subscriberID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bySubscriber[subscriberID]...)
}

// MatchesTopic is a pure pattern-test utility: it reports whether a concrete
// topic matches a subscription pattern, without touching bus state.
func (b *EventBus) MatchesTopic(topic, pattern string) bool {
	matcher, err := compileTopicPattern(pattern)
	if err != nil {
		return false
	}
	return matcher.MatchString(topic)
}

// Internal

// compileTopicPattern compiles a wildcard topic pattern into an anchored
// regular expression: '*' matches one non-empty segment, '**' matches one or
// more trailing segments, everything else is literal.
func compileTopicPattern(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*\*`, "<<DOUBLE_STAR>>")
	escaped = strings.ReplaceAll(escaped, `\*`, `[^/]+`)
	escaped = strings.ReplaceAll(escaped, "<<DOUBLE_STAR>>", `.+`)
	return regexp.Compile("^" + escaped + "$")
}

// dropSubscriberIndex removes one subscription id from the owner index.
// Caller holds b.mu.
func (b *EventBus) dropSubscriberIndex(subscriberID, subscriptionID string) {
	ids := b.bySubscriber[subscriberID]
	for i, id := range ids {
		if id == subscriptionID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(b.bySubscriber, subscriberID)
	} else {
		b.bySubscriber[subscriberID] = ids
	}
}

// notifyObservers fans one notification out to all observers, each on its
// own goroutine with panic recovery.
func (b *EventBus) notifyObservers(notify func(BusObserver)) {
	b.observerMu.RLock()
	observers := make([]BusObserver, len(b.observers))
	copy(observers, b.observers)
	b.observerMu.RUnlock()

	for _, observer := range observers {
		o := observer
		safeGo(b.logger, func() { notify(o) })
	}
}

func (b *EventBus) recordDelivery(topic string, async bool) {
	if b.metrics != nil {
		b.metrics.EventDelivered(topic, async)
	}
}

func (b *EventBus) recordSubscriptions(total int) {
	if b.metrics != nil {
		b.metrics.SubscriptionsActive(total)
	}
}
