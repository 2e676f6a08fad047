package monitorservice

import (
	"context"
	"errors"
	"sync"
	"time"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/metrics"
)

// Check triggers, used as a metrics label and in logs.
const (
	triggerStart  = "start"
	triggerTick   = "tick"
	triggerRetry  = "retry"
	triggerManual = "manual"
)

const auditTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Start on a running monitor.
var ErrAlreadyRunning = errors.New("monitor already running")

var allStatuses = []string{
	string(health.StatusOffline),
	string(health.StatusActive),
	string(health.StatusWarning),
	string(health.StatusError),
}

// Options tune the monitor schedule.
type Options struct {
	Interval     time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	ErrorHistory int
}

// DefaultOptions returns a 30s cadence with three backoff retries from 1s to 30s.
func DefaultOptions() Options {
	return Options{
		Interval:     30 * time.Second,
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		ErrorHistory: 20,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = def.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = def.MaxDelay
	}
	if o.ErrorHistory <= 0 {
		o.ErrorHistory = def.ErrorHistory
	}
	return o
}

type stopper interface {
	Stop() bool
}

// Monitor tracks the health of the ingestion endpoint.
//
// Checks run one at a time: the steady ticker, the pending backoff retry and
// Refresh all go through the same critical section. Handlers are called from
// inside it and therefore must not call Refresh.
type Monitor struct {
	checker ports.HealthChecker
	audit   ports.MonitorAudit
	logger  *logger.Logger
	metrics *metrics.Monitor
	opts    Options

	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper

	checkMu sync.Mutex

	mu            sync.Mutex
	status        health.Status
	lastHeartbeat *time.Time
	errorCount    int
	retryCount    int
	lastError     *health.ErrorRecord
	recentErrors  []health.ErrorRecord
	fallback      bool

	running  bool
	cycle    uint64
	runCtx   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	retry    stopper
	retrySeq uint64 // identifies the pending retry; a timer only fires its own

	errorHandlers  handlerSet[health.ErrorRecord]
	statusHandlers handlerSet[health.StatusChange]

	audits sync.WaitGroup
}

// New builds a stopped monitor in the offline state. audit and m may be nil.
func New(checker ports.HealthChecker, audit ports.MonitorAudit, logger *logger.Logger, m *metrics.Monitor, opts Options) *Monitor {
	mon := &Monitor{
		checker: checker,
		audit:   audit,
		logger:  logger,
		metrics: m,
		opts:    opts.withDefaults(),
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		status: health.StatusOffline,
	}
	mon.metrics.SetState(string(mon.status), allStatuses, 0, 0)
	return mon
}

// Start runs a first check, then keeps checking on the steady interval until
// Stop is called or ctx is cancelled. Each Start begins a new retry cycle.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cycle++
	m.retryCount = 0
	m.fallback = false
	m.runCtx = runCtx
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	cycle, done := m.cycle, m.loopDone
	m.mu.Unlock()

	m.logger.Info(runCtx, "monitor_started", "Starting webhook monitoring", map[string]any{
		"interval":    m.opts.Interval.String(),
		"max_retries": m.opts.MaxRetries,
	})

	m.runCheck(runCtx, cycle, triggerStart)
	go m.loop(runCtx, cycle, done)
	return nil
}

func (m *Monitor) loop(ctx context.Context, cycle uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.running && m.cycle == cycle {
				m.stopLocked()
			}
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.runCheck(ctx, cycle, triggerTick)
		}
	}
}

// Stop cancels the ticker and any pending retry. It does not wait; results of
// a check still in flight are discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.stopLocked()
	m.mu.Unlock()

	m.logger.Info(context.Background(), "monitor_stopped", "Webhook monitoring stopped", nil)
}

func (m *Monitor) stopLocked() {
	m.running = false
	m.cycle++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// Shutdown stops the monitor, marks it offline and waits for the loop and
// outstanding audit writes, or for ctx.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.Stop()

	m.mu.Lock()
	done := m.loopDone
	m.mu.Unlock()

	waitAll := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		m.checkMu.Lock()
		m.setStatus(ctx, health.StatusOffline)
		m.checkMu.Unlock()
		m.audits.Wait()
		close(waitAll)
	}()

	select {
	case <-waitAll:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the current state. It never blocks on a check.
func (m *Monitor) Status() health.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := health.Snapshot{
		Status:       m.status,
		ErrorCount:   m.errorCount,
		RetryCount:   m.retryCount,
		Fallback:     m.fallback,
		RecentErrors: make([]health.ErrorRecord, len(m.recentErrors)),
	}
	copy(snap.RecentErrors, m.recentErrors)
	if m.lastHeartbeat != nil {
		hb := *m.lastHeartbeat
		snap.LastHeartbeat = &hb
	}
	if m.lastError != nil {
		le := *m.lastError
		snap.LastError = &le
	}
	return snap
}

// Refresh runs a check now and returns the state after it. Counters only move
// once the outcome is known. On a stopped monitor no retry is scheduled.
func (m *Monitor) Refresh(ctx context.Context) health.Snapshot {
	m.mu.Lock()
	cycle := m.cycle
	m.mu.Unlock()

	m.runCheck(ctx, cycle, triggerManual)
	return m.Status()
}

// AddErrorHandler registers fn to receive every failed check.
func (m *Monitor) AddErrorHandler(fn func(health.ErrorRecord)) Subscription {
	return m.errorHandlers.add(fn)
}

// RemoveErrorHandler unregisters sub. Unknown subscriptions are ignored.
func (m *Monitor) RemoveErrorHandler(sub Subscription) {
	m.errorHandlers.remove(sub)
}

// OnStatusChange registers fn to receive every status transition.
func (m *Monitor) OnStatusChange(fn func(health.StatusChange)) Subscription {
	return m.statusHandlers.add(fn)
}

// RemoveStatusHandler unregisters sub. Unknown subscriptions are ignored.
func (m *Monitor) RemoveStatusHandler(sub Subscription) {
	m.statusHandlers.remove(sub)
}

// runCheck performs one check inside the critical section. Scheduled checks
// from a finished cycle are dropped, before and after the network call.
func (m *Monitor) runCheck(ctx context.Context, cycle uint64, trigger string) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	if trigger != triggerManual && !m.current(cycle) {
		return
	}

	start := time.Now()
	_, err := m.checker.Check(ctx)
	elapsed := time.Since(start)

	if trigger != triggerManual && !m.current(cycle) {
		return
	}
	m.metrics.ObserveCheck(trigger, err == nil, elapsed)

	if err != nil {
		m.recordFailure(ctx, cycle, trigger, err)
		return
	}
	m.recordSuccess(ctx, trigger, elapsed)
}

func (m *Monitor) current(cycle uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.cycle == cycle
}

func (m *Monitor) recordSuccess(ctx context.Context, trigger string, elapsed time.Duration) {
	m.mu.Lock()
	now := m.now().UTC()
	m.errorCount = 0
	m.retryCount = 0
	m.lastHeartbeat = &now
	m.fallback = false
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.mu.Unlock()

	m.logger.Debug(ctx, "health_check_ok", "Webhook health check passed", map[string]any{
		"trigger":    trigger,
		"latency_ms": elapsed.Milliseconds(),
	})

	m.setStatus(ctx, health.StatusActive)
}

func (m *Monitor) recordFailure(ctx context.Context, cycle uint64, trigger string, err error) {
	m.mu.Lock()
	record := health.ErrorRecord{
		Type:       ClassifyError(err),
		Message:    describeError(err),
		Timestamp:  m.now().UTC(),
		RetryCount: m.retryCount,
	}
	m.errorCount++
	m.lastError = &record
	m.recentErrors = append([]health.ErrorRecord{record}, m.recentErrors...)
	if len(m.recentErrors) > m.opts.ErrorHistory {
		m.recentErrors = m.recentErrors[:m.opts.ErrorHistory]
	}
	errorCount := m.errorCount
	next := health.StatusAfterFailure(m.status, errorCount)

	var delay time.Duration
	scheduled, enteredFallback := false, false
	if m.running && m.cycle == cycle && m.retry == nil {
		if m.retryCount < m.opts.MaxRetries {
			delay = BackoffDelay(m.retryCount, m.opts.BaseDelay, m.opts.MaxDelay)
			m.retryCount++
			m.retrySeq++
			seq := m.retrySeq
			m.retry = m.afterFunc(delay, func() { m.fireRetry(cycle, seq) })
			scheduled = true
		} else if !m.fallback {
			m.fallback = true
			enteredFallback = true
		}
	}
	retryCount := m.retryCount
	m.mu.Unlock()

	m.logger.Warn(ctx, "health_check_failed", "Webhook health check failed", map[string]any{
		"trigger":     trigger,
		"type":        record.Type,
		"error":       record.Message,
		"error_count": errorCount,
		"retry_count": retryCount,
	})

	m.setStatus(ctx, next)
	m.recordAudit(ctx, "audit_error_failed", func(actx context.Context) error {
		return m.audit.RecordError(actx, record)
	})
	m.errorHandlers.notify(ctx, m.logger, "error_handler_failed", record)

	switch {
	case scheduled:
		m.metrics.RetryScheduled()
		m.logger.Info(ctx, "retry_scheduled", "Health check retry scheduled", map[string]any{
			"delay":       delay.String(),
			"retry_count": retryCount,
		})
	case enteredFallback:
		m.logger.Warn(ctx, "fallback_polling", "Retry budget exhausted, polling on the steady interval", map[string]any{
			"max_retries": m.opts.MaxRetries,
			"interval":    m.opts.Interval.String(),
		})
	}
	m.publishMetrics()
}

// fireRetry runs the backoff retry seq of cycle. A timer that lost the race
// with its own cancellation finds a different or no pending retry and exits.
func (m *Monitor) fireRetry(cycle, seq uint64) {
	m.mu.Lock()
	if !m.running || m.cycle != cycle || m.retry == nil || m.retrySeq != seq {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	ctx := m.runCtx
	m.mu.Unlock()

	m.runCheck(ctx, cycle, triggerRetry)
}

// setStatus moves to next and reports the transition when it is a change.
func (m *Monitor) setStatus(ctx context.Context, next health.Status) {
	m.mu.Lock()
	old := m.status
	if old == next {
		m.mu.Unlock()
		m.publishMetrics()
		return
	}
	m.status = next
	change := health.StatusChange{
		Old:        old,
		New:        next,
		ErrorCount: m.errorCount,
		Timestamp:  m.now().UTC(),
	}
	if m.lastError != nil && next != health.StatusActive {
		le := *m.lastError
		change.LastError = &le
	}
	m.mu.Unlock()

	m.logger.Info(ctx, "status_changed", "Webhook status changed", map[string]any{
		"old_status":  old,
		"new_status":  next,
		"error_count": change.ErrorCount,
	})

	m.publishMetrics()
	m.recordAudit(ctx, "audit_status_failed", func(actx context.Context) error {
		return m.audit.RecordStatusChange(actx, change)
	})
	m.statusHandlers.notify(ctx, m.logger, "status_handler_failed", change)
}

// recordAudit writes in the background; failures are logged and dropped.
func (m *Monitor) recordAudit(ctx context.Context, action string, write func(context.Context) error) {
	if m.audit == nil {
		return
	}
	m.audits.Add(1)
	go func() {
		defer m.audits.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := write(actx); err != nil {
			m.logger.Error(ctx, action, "Failed to record monitor history", err)
		}
	}()
}

func (m *Monitor) publishMetrics() {
	m.mu.Lock()
	status, errorCount, retryCount := m.status, m.errorCount, m.retryCount
	m.mu.Unlock()
	m.metrics.SetState(string(status), allStatuses, errorCount, retryCount)
}
