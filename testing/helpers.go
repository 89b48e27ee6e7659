// Package testing provides test utilities for code built on wirez.
//
// It includes mock transforms that record their calls, a chaos transform for
// failure injection, a dispatcher that records events instead of handling
// them, and assertion helpers.
//
// Example usage:
//
//	func TestClamp(t *testing.T) {
//		mock := wireztest.NewMockTransform(t, "clamp").WithReturn(10, nil)
//		r := wirez.NewRegistry()
//		r.RegisterSetter("inc", "clamp", mock.Transform())
//
//		out, err := r.Compose(wirez.KindSetter, "inc")(context.Background(), 42)
//		if err != nil || out != 10 {
//			t.Fatalf("unexpected %v (%v)", out, err)
//		}
//		wireztest.AssertCalled(t, mock, 1)
//	}
package testing

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/wirez"
	"github.com/zoobzio/wirez/frame"
)

// MockTransform is a configurable wirez.Transform. It tracks calls, allows
// configuring return values, delays and panics, and provides assertion
// methods.
type MockTransform struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	callCount   int64
	passThrough bool
	returnVal   any
	returnErr   error
	delay       time.Duration
	panicMsg    string
	mu          sync.RWMutex
	callHistory []MockCall
	maxHistory  int
}

// MockCall represents a single call to a mock transform.
type MockCall struct {
	Value     any
	Args      []any
	Timestamp time.Time
	Context   context.Context
}

// NewMockTransform creates a mock transform. Until WithReturn is called it
// returns the value it receives.
func NewMockTransform(t *testing.T, name string) *MockTransform {
	return &MockTransform{
		t:           t,
		name:        name,
		passThrough: true,
		maxHistory:  100,
	}
}

// WithReturn configures the mock to return specific values.
func (m *MockTransform) WithReturn(val any, err error) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passThrough = false
	m.returnVal = val
	m.returnErr = err
	return m
}

// WithDelay configures the mock to delay execution.
func (m *MockTransform) WithDelay(d time.Duration) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic with a specific message.
func (m *MockTransform) WithPanic(msg string) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithHistorySize configures how many calls to keep in history.
// Set to 0 to disable history tracking.
func (m *MockTransform) WithHistorySize(size int) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	} else if len(m.callHistory) > size {
		m.callHistory = m.callHistory[len(m.callHistory)-size:]
	}
	return m
}

// Name returns the name of the mock.
func (m *MockTransform) Name() wirez.Name {
	return m.name
}

// Transform returns the mock as a wirez.Transform ready for registration.
func (m *MockTransform) Transform() wirez.Transform {
	return m.Call
}

// Call records the invocation and returns the configured result.
func (m *MockTransform) Call(ctx context.Context, value any, args ...any) (any, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall{
			Value:     value,
			Args:      append([]any(nil), args...),
			Timestamp: time.Now(),
			Context:   ctx,
		})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:]
		}
	}
	delay := m.delay
	passThrough := m.passThrough
	returnVal := m.returnVal
	returnErr := m.returnErr
	panicMsg := m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}

	if passThrough {
		return value, nil
	}
	return returnVal, returnErr
}

// CallCount returns the number of times the mock has been called.
func (m *MockTransform) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastCall returns the most recent call, if history is enabled.
func (m *MockTransform) LastCall() (MockCall, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.callHistory) == 0 {
		return MockCall{}, false
	}
	return m.callHistory[len(m.callHistory)-1], true
}

// CallHistory returns a copy of all recorded calls.
func (m *MockTransform) CallHistory() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	history := make([]MockCall, len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// Reset clears all call tracking.
func (m *MockTransform) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.callHistory = nil
}

// Assertion Helpers

// AssertCalled verifies that a mock transform was called exactly n times.
func AssertCalled(t *testing.T, mock *MockTransform, expectedCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls != expectedCalls {
		t.Errorf("expected mock transform %s to be called %d times, but was called %d times",
			mock.name, expectedCalls, actualCalls)
	}
}

// AssertNotCalled verifies that a mock transform was never called.
func AssertNotCalled(t *testing.T, mock *MockTransform) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// AssertCalledWith verifies the value and trailing arguments of the most
// recent call.
func AssertCalledWith(t *testing.T, mock *MockTransform, value any, args ...any) {
	t.Helper()
	last, ok := mock.LastCall()
	if !ok {
		t.Errorf("expected mock transform %s to be called with %v %v, but it was never called",
			mock.name, value, args)
		return
	}
	if !reflect.DeepEqual(last.Value, value) {
		t.Errorf("expected mock transform %s to receive value %v, got %v", mock.name, value, last.Value)
	}
	if len(args) == 0 && len(last.Args) == 0 {
		return
	}
	if !reflect.DeepEqual(last.Args, args) {
		t.Errorf("expected mock transform %s to receive args %v, got %v", mock.name, args, last.Args)
	}
}

// AssertCalledBetween verifies that a mock transform was called between min
// and max times.
func AssertCalledBetween(t *testing.T, mock *MockTransform, minCalls, maxCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls < minCalls || actualCalls > maxCalls {
		t.Errorf("expected mock transform %s to be called between %d and %d times, but was called %d times",
			mock.name, minCalls, maxCalls, actualCalls)
	}
}

// RecordingDispatcher is a frame.Dispatcher that records events instead of
// handling them.
type RecordingDispatcher struct {
	mu     sync.Mutex
	events []frame.Event
}

var _ frame.Dispatcher = (*RecordingDispatcher)(nil)

// NewRecordingDispatcher creates an empty RecordingDispatcher.
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

// Dispatch records event.
func (d *RecordingDispatcher) Dispatch(event frame.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// Events returns a copy of the recorded events in dispatch order.
func (d *RecordingDispatcher) Events() []frame.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]frame.Event(nil), d.events...)
}

// Len returns the number of recorded events.
func (d *RecordingDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// AssertDispatched verifies the recorded events.
func AssertDispatched(t *testing.T, d *RecordingDispatcher, expected ...frame.Event) {
	t.Helper()
	actual := d.Events()
	if len(actual) == 0 && len(expected) == 0 {
		return
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected dispatched events %v, got %v", expected, actual)
	}
}

// ChaosTransform introduces controlled failures and delays for chaos
// testing. It wraps another transform and randomly fails based on the
// configured rates.
type ChaosTransform struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	name         string
	wrapped      wirez.Transform
	failureRate  float64
	latencyMin   time.Duration
	latencyMax   time.Duration
	timeoutRate  float64
	panicRate    float64
	rng          *mathrand.Rand
	mu           sync.Mutex
	totalCalls   int64
	failedCalls  int64
	timeoutCalls int64
	panicCalls   int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64       // Probability of returning an error (0.0 to 1.0)
	LatencyMin  time.Duration // Minimum additional latency to inject
	LatencyMax  time.Duration // Maximum additional latency to inject
	TimeoutRate float64       // Probability of simulating timeout (0.0 to 1.0)
	PanicRate   float64       // Probability of panicking (0.0 to 1.0)
	Seed        int64         // Random seed for reproducible chaos (0 for random seed)
}

// ErrChaos is returned by a ChaosTransform when it injects a failure.
var ErrChaos = errors.New("chaos transform induced failure")

// NewChaosTransform wraps a transform with chaos injection. A nil wrapped
// transform passes the value through.
func NewChaosTransform(name string, wrapped wirez.Transform, config ChaosConfig) *ChaosTransform {
	seed := config.Seed
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			seed = int64(binary.BigEndian.Uint64(seedBytes[:])) //nolint:gosec // G115: any bit pattern is a valid seed
		}
	}
	if wrapped == nil {
		wrapped = func(_ context.Context, value any, _ ...any) (any, error) { return value, nil }
	}

	return &ChaosTransform{
		name:        name,
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		latencyMin:  config.LatencyMin,
		latencyMax:  config.LatencyMax,
		timeoutRate: config.TimeoutRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Name returns the name of the chaos transform.
func (c *ChaosTransform) Name() wirez.Name {
	return c.name
}

// Transform returns the chaos transform as a wirez.Transform.
func (c *ChaosTransform) Transform() wirez.Transform {
	return c.Call
}

// Call runs the wrapped transform with chaos injection.
func (c *ChaosTransform) Call(ctx context.Context, value any, args ...any) (any, error) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	if c.rng.Float64() < c.panicRate {
		c.mu.Unlock()
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos transform induced panic")
	}

	var latency time.Duration
	if c.latencyMax > c.latencyMin {
		latency = c.latencyMin + time.Duration(c.rng.Int63n(int64(c.latencyMax-c.latencyMin)))
	} else if c.latencyMin > 0 {
		latency = c.latencyMin
	}
	simulateTimeout := c.rng.Float64() < c.timeoutRate
	injectFailure := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}

	if simulateTimeout {
		atomic.AddInt64(&c.timeoutCalls, 1)
		return value, context.DeadlineExceeded
	}

	result, err := c.wrapped(ctx, value, args...)
	if injectFailure && err == nil {
		atomic.AddInt64(&c.failedCalls, 1)
		return value, ErrChaos
	}
	return result, err
}

// Stats returns statistics about chaos injection.
func (c *ChaosTransform) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:   atomic.LoadInt64(&c.totalCalls),
		FailedCalls:  atomic.LoadInt64(&c.failedCalls),
		TimeoutCalls: atomic.LoadInt64(&c.timeoutCalls),
		PanicCalls:   atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls   int64
	FailedCalls  int64
	TimeoutCalls int64
	PanicCalls   int64
}

func (s ChaosStats) rate(n int64) float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(n) / float64(s.TotalCalls)
}

// FailureRate returns the observed failure rate.
func (s ChaosStats) FailureRate() float64 { return s.rate(s.FailedCalls) }

// TimeoutRate returns the observed timeout rate.
func (s ChaosStats) TimeoutRate() float64 { return s.rate(s.TimeoutCalls) }

// PanicRate returns the observed panic rate.
func (s ChaosStats) PanicRate() float64 { return s.rate(s.PanicCalls) }

func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%), Timeouts: %d (%.1f%%), Panics: %d (%.1f%%)}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100,
		s.TimeoutCalls, s.TimeoutRate()*100,
		s.PanicCalls, s.PanicRate()*100)
}

// Helper Functions

// WaitForCalls waits for a mock transform to be called at least n times.
// Returns true if the expected calls were reached before timeout.
func WaitForCalls(mock *MockTransform, expectedCalls int, timeout time.Duration) bool {
	return waitFor(func() bool { return mock.CallCount() >= expectedCalls }, timeout)
}

// WaitForDispatches waits for a recording dispatcher to hold at least n
// events.
func WaitForDispatches(d *RecordingDispatcher, expected int, timeout time.Duration) bool {
	return waitFor(func() bool { return d.Len() >= expected }, timeout)
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// ParallelTest runs testFunc on the given number of goroutines and waits for
// all of them.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}
	wg.Wait()
}

// MeasureLatency measures the latency of a function call.
func MeasureLatency(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}
