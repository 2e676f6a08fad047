package health

import "time"

// Status is the coarse health of the webhook endpoint as seen by the monitor.
type Status string

const (
	StatusOffline Status = "offline"
	StatusActive  Status = "active"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Consecutive failure counts at which the status degrades.
const (
	WarningThreshold = 2
	ErrorThreshold   = 5
)

// StatusAfterFailure derives the status following a failed check that brought
// the consecutive failure count to errorCount. Below WarningThreshold the
// current status is kept so a single blip does not demote the endpoint.
func StatusAfterFailure(current Status, errorCount int) Status {
	switch {
	case errorCount >= ErrorThreshold:
		return StatusError
	case errorCount >= WarningThreshold:
		return StatusWarning
	default:
		return current
	}
}

// ErrorType classifies a failed health check for operators.
type ErrorType string

const (
	ErrorConnectionFailed ErrorType = "connection_failed"
	ErrorAuthFailed       ErrorType = "auth_failed"
	ErrorRateLimit        ErrorType = "rate_limit"
	ErrorInvalidPayload   ErrorType = "invalid_payload"
	ErrorProcessing       ErrorType = "processing_error"
)

// ErrorRecord describes one failed check.
type ErrorRecord struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// StatusChange is emitted whenever the monitor status moves.
type StatusChange struct {
	Old        Status       `json:"old_status"`
	New        Status       `json:"new_status"`
	ErrorCount int          `json:"error_count"`
	Timestamp  time.Time    `json:"timestamp"`
	LastError  *ErrorRecord `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	Status        Status        `json:"status"`
	LastHeartbeat *time.Time    `json:"last_heartbeat"`
	ErrorCount    int           `json:"error_count"`
	RetryCount    int           `json:"retry_count"`
	LastError     *ErrorRecord  `json:"last_error"`
	RecentErrors  []ErrorRecord `json:"recent_errors"`
	Fallback      bool          `json:"fallback"`
}

// Report is what a successful health probe returns.
type Report struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"-"`
}
