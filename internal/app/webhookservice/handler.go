package webhookservice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"sales-dashboard/internal/domain/orders"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/logger"
	"sales-dashboard/internal/shared/metrics"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization, X-Webhook-Secret",
	"Access-Control-Max-Age":       "86400",
}

// HandlerConfig holds the HTTP-level policy of the ingestion endpoint.
type HandlerConfig struct {
	// Secret disables authentication when empty.
	Secret       string
	Providers    []string
	MaxBodyBytes int64
}

// WebhookHTTPHandler adapts HTTP requests to the IngestService.
type WebhookHTTPHandler struct {
	svc       ports.IngestService
	recent    *RecentDeliveries
	logger    *logger.Logger
	metrics   *metrics.Webhook
	secret    []byte
	providers map[string]struct{}
	maxBody   int64
}

// NewWebhookHTTPHandler wires an HTTP handler around the IngestService. recent and m may be nil.
func NewWebhookHTTPHandler(svc ports.IngestService, recent *RecentDeliveries, cfg HandlerConfig, logger *logger.Logger, m *metrics.Webhook) *WebhookHTTPHandler {
	providers := make(map[string]struct{}, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MiB
	}

	return &WebhookHTTPHandler{
		svc:       svc,
		recent:    recent,
		logger:    logger,
		metrics:   m,
		secret:    []byte(cfg.Secret),
		providers: providers,
		maxBody:   maxBody,
	}
}

// AuthEnabled reports whether a shared secret is enforced.
func (handler *WebhookHTTPHandler) AuthEnabled() bool {
	return len(handler.secret) > 0
}

// Routes builds the router for the ingestion endpoint.
func (handler *WebhookHTTPHandler) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(handler.withRequestID, handler.observe, handler.withCORS, handler.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.writeError(r.Context(), w, notFound())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.writeError(r.Context(), w, methodNotAllowed())
	})

	r.Get("/health", handler.health)
	r.Options("/webhook/{provider}", handler.preflight)
	r.Get("/webhook/{provider}", handler.probe)
	r.Post("/webhook/{provider}", handler.receive)
	r.Get("/webhook/{provider}/recent", handler.listRecent)

	return r
}

// --- Response DTOs ---

type ingestResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	OrderID     string `json:"order_id"`
	DeliveryID  string `json:"delivery_id"`
	ProcessedAt string `json:"processed_at"`
}

type recentResponse struct {
	Provider   string                   `json:"provider"`
	Count      int                      `json:"count"`
	Deliveries []contracts.OrderMessage `json:"deliveries"`
}

type errorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Required []string `json:"required,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// --- Handlers ---

func (handler *WebhookHTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// preflight always succeeds; the CORS middleware has already set the headers.
func (handler *WebhookHTTPHandler) preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// probe is the health variant of the webhook route used by the monitor.
func (handler *WebhookHTTPHandler) probe(w http.ResponseWriter, r *http.Request) {
	if !handler.providerAllowed(chi.URLParam(r, "provider")) {
		handler.writeError(r.Context(), w, unknownProvider())
		return
	}
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// receive handles POST /webhook/{provider}: auth → size limit → ingest.
func (handler *WebhookHTTPHandler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(chi.URLParam(r, "provider"))

	if !handler.providerAllowed(provider) {
		handler.writeError(ctx, w, unknownProvider())
		return
	}
	if !handler.authorized(r) {
		handler.writeError(ctx, w, unauthorized())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, handler.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handler.writeError(ctx, w, payloadTooLarge())
			return
		}
		handler.writeError(ctx, w, internalError(fmt.Errorf("read body: %w", err)))
		return
	}

	handler.logger.Debug(ctx, "webhook_received", "Webhook received", map[string]any{
		"provider": provider,
		"bytes":    len(body),
	})

	order, err := handler.svc.Ingest(ctx, provider, body)
	if err != nil {
		handler.writeError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, ingestResponse{
		Success:     true,
		Message:     "Webhook processed successfully",
		OrderID:     order.OrderID,
		DeliveryID:  order.DeliveryID,
		ProcessedAt: orders.FormatTimestamp(order.ProcessedAt),
	})
}

// listRecent returns the last accepted deliveries for debugging integrations.
func (handler *WebhookHTTPHandler) listRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(chi.URLParam(r, "provider"))

	if !handler.providerAllowed(provider) {
		handler.writeError(ctx, w, unknownProvider())
		return
	}
	if !handler.authorized(r) {
		handler.writeError(ctx, w, unauthorized())
		return
	}

	resp := recentResponse{Provider: provider, Deliveries: []contracts.OrderMessage{}}
	if handler.recent != nil {
		for _, order := range handler.recent.List(provider) {
			resp.Deliveries = append(resp.Deliveries, contracts.NewOrderMessage(order))
		}
	}
	resp.Count = len(resp.Deliveries)

	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}

// --- Middleware ---

// withRequestID extracts or generates a request ID, echoes it and adds it to the context.
func (handler *WebhookHTTPHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(handler.logger.WithRequestID(r.Context(), reqID)))
	})
}

// withCORS attaches the CORS headers to every webhook response.
func (handler *WebhookHTTPHandler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/webhook/") {
			for k, v := range corsHeaders {
				w.Header().Set(k, v)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a panic into the generic 500 response.
func (handler *WebhookHTTPHandler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				handler.writeError(r.Context(), w, internalError(fmt.Errorf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe records request metrics.
func (handler *WebhookHTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		done := handler.metrics.InFlight()
		defer done()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// unknown providers share one label to keep cardinality bounded
		provider := strings.ToLower(chi.URLParam(r, "provider"))
		if !handler.providerAllowed(provider) {
			provider = "other"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		handler.metrics.ObserveRequest(provider, r.Method, strconv.Itoa(status), time.Since(start))
	})
}

// --- Helpers ---

func (handler *WebhookHTTPHandler) providerAllowed(provider string) bool {
	_, ok := handler.providers[strings.ToLower(provider)]
	return ok
}

// authorized compares the secret header in constant time. An empty secret disables auth.
func (handler *WebhookHTTPHandler) authorized(r *http.Request) bool {
	if len(handler.secret) == 0 {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), handler.secret) == 1
}

type serviceError interface {
	ToServiceError() *goerrors.Error
}

// writeError maps err onto the error envelope and sends it.
func (handler *WebhookHTTPHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var rich *goerrors.Error
	var mapper serviceError
	switch {
	case errors.As(err, &mapper):
		rich = mapper.ToServiceError()
	case goerrors.As(err, &rich):
	default:
		rich = internalError(err)
	}

	status := rich.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: rich.Message, Code: rich.TextCode}
	if status >= 500 {
		// internal details stay in the log
		body = errorBody{Error: "Internal server error", Code: TextCodeInternal, Message: genericFailure}
		handler.logger.Error(ctx, "http_internal_error", "Webhook processing failed", err)
	} else {
		body.Required = orders.MissingFields(err)
		handler.logger.Warn(ctx, actionFor(status), rich.Message, map[string]any{
			"status":   status,
			"code":     rich.TextCode,
			"required": body.Required,
		})
	}

	handler.jsonResponse(ctx, w, status, body)
}

// actionFor maps a 4xx status to a log action.
func actionFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "auth_failed"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	default:
		return "request_failed"
	}
}

// jsonResponse takes any type of data and encodes it to the HTTP response.
func (handler *WebhookHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "failed to encode response", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error","code":"internal_error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}
