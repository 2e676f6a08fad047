package monitorservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/ports"
)

// maxHealthBody bounds how much of a health response is read.
const maxHealthBody = 64 << 10

// HTTPChecker probes the ingestion endpoint with a GET request.
type HTTPChecker struct {
	url    string
	secret string
	client *http.Client
}

var _ ports.HealthChecker = (*HTTPChecker)(nil)

// NewHTTPChecker returns a checker for url. secret is sent as X-Webhook-Secret when set.
func NewHTTPChecker(url, secret string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

type healthBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Check performs one probe. Failures are *goerrors.Error values whose text code
// is the health.ErrorType of the failure.
func (c *HTTPChecker) Check(ctx context.Context) (health.Report, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return health.Report{}, checkFailure(health.ErrorProcessing, "build health request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Webhook-Secret", c.secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return health.Report{}, checkFailure(health.ErrorConnectionFailed, "health check request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return health.Report{}, checkFailure(health.ErrorConnectionFailed, "read health response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return health.Report{}, checkFailure(health.ErrorAuthFailed, fmt.Sprintf("health check failed: %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return health.Report{}, checkFailure(health.ErrorRateLimit, fmt.Sprintf("health check failed: %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return health.Report{}, checkFailure(health.ErrorProcessing, fmt.Sprintf("health check failed: %d", resp.StatusCode), nil)
	}

	var body healthBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return health.Report{}, checkFailure(health.ErrorInvalidPayload, "health check returned malformed body", err)
	}
	if body.Status != "ok" {
		msg := body.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return health.Report{}, checkFailure(health.ErrorInvalidPayload, "health check failed: "+msg, nil)
	}

	return health.Report{Status: body.Status, Latency: time.Since(start)}, nil
}

func checkFailure(typ health.ErrorType, msg string, cause error) *goerrors.Error {
	if cause == nil {
		return goerrors.New(msg, goerrors.CategoryExternal).WithTextCode(string(typ))
	}
	return goerrors.Wrap(cause, goerrors.CategoryExternal, msg).WithTextCode(string(typ))
}

// ClassifyError maps a failed check onto an error type. Errors that carry no
// type, such as those from other HealthChecker implementations, count as
// connection failures.
func ClassifyError(err error) health.ErrorType {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch typ := health.ErrorType(rich.TextCode); typ {
		case health.ErrorConnectionFailed, health.ErrorAuthFailed, health.ErrorRateLimit,
			health.ErrorInvalidPayload, health.ErrorProcessing:
			return typ
		}
	}
	return health.ErrorConnectionFailed
}

// describeError returns the operator facing text of a failed check.
func describeError(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Source != nil {
			return rich.Message + ": " + rich.Source.Error()
		}
		return rich.Message
	}
	return err.Error()
}
