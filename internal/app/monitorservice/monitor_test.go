package monitorservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/shared/logger"
)

type scriptedChecker struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (c *scriptedChecker) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedChecker) Check(context.Context) (health.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return health.Report{}, checkFailure(health.ErrorConnectionFailed, "health check request failed", errors.New("connection refused"))
	}
	return health.Report{Status: "ok"}, nil
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, checker *scriptedChecker, audit *recordingAudit, opts Options) (*Monitor, *fakeClock) {
	t.Helper()
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	var m *Monitor
	if audit != nil {
		m = New(checker, audit, logger.Discard(), nil, opts)
	} else {
		m = New(checker, nil, logger.Discard(), nil, opts)
	}
	clock := &fakeClock{}
	m.afterFunc = clock.afterFunc
	m.now = func() time.Time { return fixedNow }
	t.Cleanup(m.Stop)
	return m, clock
}

func TestStatusFollowsConsecutiveFailures(t *testing.T) {
	checker := &scriptedChecker{}
	m, _ := newTestMonitor(t, checker, nil, DefaultOptions())

	if got := m.Status().Status; got != health.StatusOffline {
		t.Fatalf("expected offline before start, got %s", got)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s := m.Status(); s.Status != health.StatusActive || s.ErrorCount != 0 || s.LastHeartbeat == nil {
		t.Fatalf("expected active with heartbeat, got %+v", s)
	}

	checker.setFail(true)
	want := []struct {
		errors int
		status health.Status
	}{
		{1, health.StatusActive},
		{2, health.StatusWarning},
		{3, health.StatusWarning},
		{4, health.StatusWarning},
		{5, health.StatusError},
		{6, health.StatusError},
	}
	for _, w := range want {
		s := m.Refresh(context.Background())
		if s.ErrorCount != w.errors || s.Status != w.status {
			t.Fatalf("expected %d/%s, got %d/%s", w.errors, w.status, s.ErrorCount, s.Status)
		}
		if s.LastError == nil || s.LastError.Type != health.ErrorConnectionFailed {
			t.Fatalf("expected connection_failed last error, got %+v", s.LastError)
		}
	}

	checker.setFail(false)
	s := m.Refresh(context.Background())
	if s.Status != health.StatusActive || s.ErrorCount != 0 || s.RetryCount != 0 {
		t.Fatalf("expected reset to active, got %+v", s)
	}
	if len(s.RecentErrors) != 6 {
		t.Fatalf("expected error history to survive recovery, got %d", len(s.RecentErrors))
	}
}

// Delays double from the base until the cap: retry count 4 waits 16s and only
// the sixth retry (count 5) reaches the 30s cap. The worked example elsewhere
// that puts count 4 at 30s does not match this doubling rule.
func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{200, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := BackoffDelay(tc.retries, time.Second, 30*time.Second); got != tc.want {
			t.Fatalf("BackoffDelay(%d): expected %s, got %s", tc.retries, tc.want, got)
		}
	}
}

func TestRetriesBackOffExponentially(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	opts := DefaultOptions()
	opts.MaxRetries = 8
	m, clock := newTestMonitor(t, checker, nil, opts)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, d := range want {
		timer := clock.last()
		if clock.count() != i+1 {
			t.Fatalf("expected %d timers, got %d", i+1, clock.count())
		}
		if timer.delay != d {
			t.Fatalf("retry %d: expected %s, got %s", i+1, d, timer.delay)
		}
		timer.fn()
	}

	if clock.count() != len(want) {
		t.Fatalf("expected no retry past the budget, got %d timers", clock.count())
	}
	if s := m.Status(); !s.Fallback || s.RetryCount != 8 {
		t.Fatalf("expected fallback with retry count 8, got %+v", s)
	}
}

func TestRetryBudgetFallsBackToPolling(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, clock := newTestMonitor(t, checker, nil, DefaultOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		clock.last().fn()
	}

	s := m.Status()
	if clock.count() != 3 {
		t.Fatalf("expected exactly 3 retries, got %d", clock.count())
	}
	if !s.Fallback || s.RetryCount != 3 || s.ErrorCount != 4 {
		t.Fatalf("unexpected state after budget: %+v", s)
	}

	// a steady tick failing in fallback schedules nothing
	m.runCheck(context.Background(), m.cycle, triggerTick)
	if clock.count() != 3 {
		t.Fatalf("fallback must not schedule retries, got %d timers", clock.count())
	}
	if m.Status().RetryCount > 3 {
		t.Fatal("retry count exceeded budget")
	}

	checker.setFail(false)
	s = m.Refresh(context.Background())
	if s.Fallback || s.RetryCount != 0 || s.Status != health.StatusActive {
		t.Fatalf("expected recovery to clear fallback, got %+v", s)
	}
}

func TestSuccessCancelsPendingRetry(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, clock := newTestMonitor(t, checker, nil, DefaultOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	pending := clock.last()
	if pending == nil {
		t.Fatal("expected a pending retry")
	}

	checker.setFail(false)
	m.Refresh(context.Background())
	if !pending.stopped {
		t.Fatal("expected pending retry to be cancelled")
	}
}

func TestOnlyOneRetryPending(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, clock := newTestMonitor(t, checker, nil, DefaultOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Refresh(context.Background())
	m.Refresh(context.Background())

	if clock.count() != 1 {
		t.Fatalf("expected one pending retry, got %d", clock.count())
	}
	if got := m.Status().RetryCount; got != 1 {
		t.Fatalf("expected retry count 1, got %d", got)
	}
}

func TestCancelledRetryFiringLateKeepsNewerRetry(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, clock := newTestMonitor(t, checker, nil, DefaultOptions())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stale := clock.last()

	// success cancels the first retry, a new failure schedules the next one
	checker.setFail(false)
	m.Refresh(context.Background())
	checker.setFail(true)
	m.Refresh(context.Background())
	if clock.count() != 2 {
		t.Fatalf("expected a second retry, got %d timers", clock.count())
	}
	pending := clock.last()

	// the cancelled timer was already firing when it was stopped
	calls := checker.callCount()
	stale.fn()
	if checker.callCount() != calls {
		t.Fatalf("cancelled retry ran a check")
	}

	m.Refresh(context.Background())
	if clock.count() != 2 {
		t.Fatalf("expected the newer retry to stay pending, got %d timers", clock.count())
	}

	pending.fn()
	if checker.callCount() != calls+2 {
		t.Fatalf("expected the pending retry to run, got %d checks", checker.callCount()-calls)
	}
}

func TestStopCancelsRetryAndDropsLateCallbacks(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, clock := newTestMonitor(t, checker, nil, DefaultOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	pending := clock.last()
	m.Stop()

	if !pending.stopped {
		t.Fatal("expected stop to cancel the pending retry")
	}
	calls := checker.callCount()
	pending.fn()
	if checker.callCount() != calls {
		t.Fatal("retry callback ran a check after stop")
	}

	// Stop twice is harmless
	m.Stop()
}

func TestRestartBeginsNewRetryCycle(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	opts := DefaultOptions()
	opts.MaxRetries = 1
	m, clock := newTestMonitor(t, checker, nil, opts)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.last().fn()
	if s := m.Status(); !s.Fallback || s.RetryCount != 1 {
		t.Fatalf("expected fallback, got %+v", s)
	}

	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s := m.Status()
	if s.Fallback || s.RetryCount != 1 || clock.count() != 2 {
		t.Fatalf("expected a fresh retry after restart, got %+v with %d timers", s, clock.count())
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, _ := newTestMonitor(t, checker, nil, DefaultOptions())

	var got []health.ErrorRecord
	m.AddErrorHandler(func(health.ErrorRecord) { panic("observer bug") })
	m.AddErrorHandler(func(rec health.ErrorRecord) { got = append(got, rec) })

	s := m.Refresh(context.Background())

	if len(got) != 1 {
		t.Fatalf("expected second handler to be notified once, got %d", len(got))
	}
	if got[0].Type != health.ErrorConnectionFailed {
		t.Fatalf("unexpected record %+v", got[0])
	}
	if s.ErrorCount != 1 {
		t.Fatalf("expected error count 1, got %d", s.ErrorCount)
	}
}

func TestRemoveErrorHandler(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, _ := newTestMonitor(t, checker, nil, DefaultOptions())

	calls := 0
	sub := m.AddErrorHandler(func(health.ErrorRecord) { calls++ })
	m.RemoveErrorHandler(sub)
	m.RemoveErrorHandler(sub)
	m.RemoveErrorHandler(Subscription(999))
	m.RemoveErrorHandler(Subscription(0))

	m.Refresh(context.Background())
	if calls != 0 {
		t.Fatalf("removed handler was called %d times", calls)
	}
}

func TestHandlerMayUnsubscribeWhileNotified(t *testing.T) {
	checker := &scriptedChecker{fail: true}
	m, _ := newTestMonitor(t, checker, nil, DefaultOptions())

	calls := 0
	var sub Subscription
	sub = m.AddErrorHandler(func(health.ErrorRecord) {
		calls++
		m.RemoveErrorHandler(sub)
	})

	m.Refresh(context.Background())
	m.Refresh(context.Background())
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestStatusHandlersSeeTransitions(t *testing.T) {
	checker := &scriptedChecker{}
	m, _ := newTestMonitor(t, checker, nil, DefaultOptions())

	var changes []health.StatusChange
	m.OnStatusChange(func(c health.StatusChange) { changes = append(changes, c) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	checker.setFail(true)
	m.Refresh(context.Background())
	m.Refresh(context.Background())

	if len(changes) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(changes))
	}
	if changes[0].Old != health.StatusOffline || changes[0].New != health.StatusActive {
		t.Fatalf("unexpected first change %+v", changes[0])
	}
	if changes[1].New != health.StatusWarning || changes[1].ErrorCount != 2 || changes[1].LastError == nil {
		t.Fatalf("unexpected second change %+v", changes[1])
	}
}

type gatedChecker struct {
	entered chan struct{}
	release chan error
}

func (c *gatedChecker) Check(context.Context) (health.Report, error) {
	c.entered <- struct{}{}
	if err := <-c.release; err != nil {
		return health.Report{}, err
	}
	return health.Report{Status: "ok"}, nil
}

func TestRefreshKeepsCountersUntilOutcome(t *testing.T) {
	checker := &gatedChecker{entered: make(chan struct{}, 1), release: make(chan error, 1)}
	m := New(checker, nil, logger.Discard(), nil, DefaultOptions())

	for i := 0; i < 2; i++ {
		checker.release <- errors.New("down")
		m.Refresh(context.Background())
		<-checker.entered
	}
	if got := m.Status().ErrorCount; got != 2 {
		t.Fatalf("expected error count 2, got %d", got)
	}

	done := make(chan health.Snapshot)
	go func() { done <- m.Refresh(context.Background()) }()
	<-checker.entered

	// state reads do not wait for the check
	if s := m.Status(); s.ErrorCount != 2 || s.Status != health.StatusWarning {
		t.Fatalf("counters moved before the outcome: %+v", s)
	}

	checker.release <- nil
	s := <-done
	if s.ErrorCount != 0 || s.Status != health.StatusActive {
		t.Fatalf("expected recovery, got %+v", s)
	}
}

type recordingAudit struct {
	mu      sync.Mutex
	changes []health.StatusChange
	errors  []health.ErrorRecord
	err     error
}

func (a *recordingAudit) RecordStatusChange(_ context.Context, c health.StatusChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, c)
	return a.err
}

func (a *recordingAudit) RecordError(_ context.Context, r health.ErrorRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, r)
	return a.err
}

func TestAuditFailuresAreSwallowed(t *testing.T) {
	checker := &scriptedChecker{}
	audit := &recordingAudit{err: errors.New("relation webhook_status_log does not exist")}
	m, _ := newTestMonitor(t, checker, audit, DefaultOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	checker.setFail(true)
	m.Refresh(context.Background())
	s := m.Refresh(context.Background())
	if s.Status != health.StatusWarning {
		t.Fatalf("state must advance despite audit failures, got %s", s.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	// offline→active, active→warning, warning→offline
	if len(audit.changes) != 3 {
		t.Fatalf("expected 3 recorded status changes, got %d", len(audit.changes))
	}
	if len(audit.errors) != 2 {
		t.Fatalf("expected 2 recorded errors, got %d", len(audit.errors))
	}
	if got := m.Status().Status; got != health.StatusOffline {
		t.Fatalf("expected offline after shutdown, got %s", got)
	}
}
