package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"

	"sentra/core"
	"sentra/metrics"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodySize = 4 * 1024 * 1024 // 4MB limit for pushed event batches

// EventSink receives decoded batches. core.EventStore satisfies it.
type EventSink interface {
	SaveEvents(ctx context.Context, events []core.EventRecord) error
}

// HTTPHandler accepts pushed event batches over HTTP POST
type HTTPHandler struct {
	sink        EventSink
	limiter     *rate.Limiter
	maxBodySize int64
	logger      *zap.SugaredLogger
}

// NewHTTPHandler creates a handler. rateLimit is requests per second; a
// non-positive value disables limiting.
func NewHTTPHandler(sink EventSink, rateLimit int, logger *zap.SugaredLogger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	}
	return &HTTPHandler{
		sink:        sink,
		limiter:     limiter,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// ServeHTTP decodes the body with DecodeEvents and stores the batch
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > h.maxBodySize {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	events, err := DecodeEvents(body)
	if err != nil {
		h.logger.Warnw("Rejected event batch", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.sink.SaveEvents(r.Context(), events); err != nil {
		metrics.PersistenceFailures.WithLabelValues("events").Inc()
		h.logger.Errorw("Failed to store pushed events", "count", len(events), "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "Failed to store events", status)
		return
	}
	metrics.EventsIngested.WithLabelValues("http").Add(float64(len(events)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ingestResponse{Accepted: len(events)})
}
