// Package testing provides test utilities for embedstore.
package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/memory"
)

// Op names a Provider method for failure injection and call recording.
type Op string

// Provider operations.
const (
	OpUpsert        Op = "upsert"
	OpUpdate        Op = "update"
	OpUpdateVectors Op = "update_vectors"
	OpDelete        Op = "delete"
	OpGet           Op = "get"
	OpSearch        Op = "search"
	OpFlush         Op = "flush"
	OpDimension     Op = "dimension"
)

// MockProvider is an embedstore.Provider backed by the in-memory engine
// that records calls, reports configurable capabilities and fails on demand.
type MockProvider struct {
	mu     sync.Mutex
	engine *memory.Provider
	caps   embedstore.Capabilities
	fails map[Op]error
	calls []Op
}

// NewMockProvider creates a mock reporting every capability with MissingFail updates.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		engine: memory.New(),
		caps: embedstore.Capabilities{
			Supported:       embedstore.CapabilityAll,
			OnMissingUpdate: embedstore.MissingFail,
		},
		fails: make(map[Op]error),
	}
}

// SetCapabilities changes the capabilities the mock reports.
func (m *MockProvider) SetCapabilities(caps embedstore.Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = caps
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (m *MockProvider) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, op)
		return
	}
	m.fails[op] = err
}

// Calls returns the operations invoked so far, in order.
func (m *MockProvider) Calls() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Op, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns how many times op was invoked.
func (m *MockProvider) CallCount(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Reset clears stored entries, recorded calls and injected failures.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = memory.New()
	m.fails = make(map[Op]error)
	m.calls = nil
}

func (m *MockProvider) record(op Op) (*memory.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	return m.engine, m.fails[op]
}

// Len returns the number of stored entries. It is not recorded as a call.
func (m *MockProvider) Len() int {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()
	return engine.Len()
}

// Capabilities returns the configured capabilities.
func (m *MockProvider) Capabilities() embedstore.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// Upsert records the call and stores the records.
func (m *MockProvider) Upsert(ctx context.Context, records []embedstore.VectorRecord) error {
	p, err := m.record(OpUpsert)
	if err != nil {
		return err
	}
	return p.Upsert(ctx, records)
}

// Update records the call and replaces the records.
func (m *MockProvider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	p, err := m.record(OpUpdate)
	if err != nil {
		return err
	}
	return p.Update(ctx, records)
}

// UpdateVectors records the call and replaces the vectors.
func (m *MockProvider) UpdateVectors(ctx context.Context, records []embedstore.VectorRecord) error {
	p, err := m.record(OpUpdateVectors)
	if err != nil {
		return err
	}
	return p.UpdateVectors(ctx, records)
}

// Delete records the call and removes the ids.
func (m *MockProvider) Delete(ctx context.Context, ids []string) error {
	p, err := m.record(OpDelete)
	if err != nil {
		return err
	}
	return p.Delete(ctx, ids)
}

// Get records the call and returns the entry.
func (m *MockProvider) Get(ctx context.Context, id string) (*embedstore.VectorResult, error) {
	p, err := m.record(OpGet)
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, id)
}

// Search records the call and ranks the stored entries.
func (m *MockProvider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	p, err := m.record(OpSearch)
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, vector, k, minScore)
}

// Dimension records the call and reports the stored dimension.
func (m *MockProvider) Dimension(ctx context.Context) (int, error) {
	p, err := m.record(OpDimension)
	if err != nil {
		return 0, err
	}
	return p.Dimension(ctx)
}

// Flush records the call.
func (m *MockProvider) Flush(ctx context.Context) error {
	p, err := m.record(OpFlush)
	if err != nil {
		return err
	}
	return p.Flush(ctx)
}

var _ embedstore.Provider = (*MockProvider)(nil)

// StoreSignals lists every signal a Store emits.
var StoreSignals = []capitan.Signal{
	embedstore.AddStarted, embedstore.AddCompleted, embedstore.AddFailed,
	embedstore.UpdateStarted, embedstore.UpdateCompleted, embedstore.UpdateFailed,
	embedstore.DeleteStarted, embedstore.DeleteCompleted, embedstore.DeleteFailed,
	embedstore.FindStarted, embedstore.FindCompleted, embedstore.FindFailed,
	embedstore.PersistCompleted,
}

// CapturedEvent represents an event captured during testing.
type CapturedEvent struct {
	Signal    capitan.Signal
	Fields    []capitan.Field
	Timestamp time.Time
}

// ID returns the entry id carried by the event, if any.
func (e CapturedEvent) ID() string {
	return embedstore.FieldID.ExtractFromFields(e.Fields)
}

// Count returns the batch size carried by the event, if any.
func (e CapturedEvent) Count() int {
	return embedstore.FieldCount.ExtractFromFields(e.Fields)
}

// Results returns the number of matches carried by a find event.
func (e CapturedEvent) Results() int {
	return embedstore.FieldResults.ExtractFromFields(e.Fields)
}

// EventCapture captures store events for verification in tests.
type EventCapture struct {
	mu     sync.Mutex
	events []CapturedEvent
	stops  []func(context.Context)
}

// NewEventCapture creates a new event capture utility.
func NewEventCapture() *EventCapture {
	return &EventCapture{}
}

// Handler returns a capitan.EventCallback that captures events.
func (c *EventCapture) Handler() capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, CapturedEvent{
			Signal:    e.Signal(),
			Fields:    e.Fields(),
			Timestamp: time.Now(),
		})
	}
}

// Listen hooks the capture to signals, or to StoreSignals when none are given.
func (c *EventCapture) Listen(signals ...capitan.Signal) *EventCapture {
	if len(signals) == 0 {
		signals = StoreSignals
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sig := range signals {
		l := capitan.Hook(sig, c.Handler())
		c.stops = append(c.stops, func(ctx context.Context) {
			_ = l.Drain(ctx)
			l.Close()
		})
	}
	return c
}

// Stop drains and closes the listeners registered by Listen.
func (c *EventCapture) Stop(ctx context.Context) {
	c.mu.Lock()
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()

	for _, stop := range stops {
		stop(ctx)
	}
}

// Events returns a copy of all captured events.
func (c *EventCapture) Events() []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]CapturedEvent, len(c.events))
	copy(result, c.events)
	return result
}

// Count returns the number of captured events.
func (c *EventCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Reset clears all captured events.
func (c *EventCapture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// EventsBySignal returns events filtered by signal.
func (c *EventCapture) EventsBySignal(sig capitan.Signal) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []CapturedEvent
	for _, e := range c.events {
		if e.Signal == sig {
			result = append(result, e)
		}
	}
	return result
}

// WaitForCount blocks until n events are captured or timeout elapses.
func (c *EventCapture) WaitForCount(n int, timeout time.Duration) bool {
	return waitFor(func() bool { return c.Count() >= n }, timeout)
}

// EventCounter counts events without storing them.
type EventCounter struct {
	mu    sync.Mutex
	count int64
}

// NewEventCounter creates a new event counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// Handler returns a capitan.EventCallback that increments the counter.
func (c *EventCounter) Handler() capitan.EventCallback {
	return func(_ context.Context, _ *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.count++
	}
}

// Count returns the current count.
func (c *EventCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset resets the counter to zero.
func (c *EventCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// WaitForCount blocks until the count reaches n or timeout elapses.
func (c *EventCounter) WaitForCount(n int64, timeout time.Duration) bool {
	return waitFor(func() bool { return c.Count() >= n }, timeout)
}

func waitFor(done func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if done() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return done()
}

// StartContainer runs start and converts a panic into an error. testcontainers
// panics when it cannot locate a Docker host; callers treat both outcomes as
// an unavailable container and run only their offline tests.
func StartContainer[C any](start func() (C, error)) (c C, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container runtime unavailable: %v", r)
		}
	}()
	return start()
}
