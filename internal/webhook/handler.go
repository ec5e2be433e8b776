// Package webhook is the Webhook Handler (C7): verifies signed webhook
// payloads and re-evaluates a single repository on pull-request events
// (spec §4.7).
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/kubilitics/policy-engine/internal/pkg/logger"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

const (
	headerSignature = "X-Hub-Signature-256"
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"

	eventPing        = "ping"
	eventPullRequest = "pull_request"

	jobHandlePR = "handle-pr"
)

// Enqueuer is the subset of internal/queue.Queue the handler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, method string, args any) (string, error)
}

// DeliveryStore records webhook delivery IDs for redelivery de-duplication.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, deliveryID, eventType string) (bool, error)
}

// Handler is the HTTP entry point registered at POST /api/webhooks/<platform>.
type Handler struct {
	secret []byte
	store  DeliveryStore
	queue  Enqueuer
	log    *slog.Logger
}

func NewHandler(secret string, store DeliveryStore, queue Enqueuer, log *slog.Logger) *Handler {
	return &Handler{secret: []byte(secret), store: store, queue: queue, log: log}
}

type handlePRJobArgs struct {
	Payload    json.RawMessage `json:"payload"`
	DeliveryID string          `json:"delivery_id"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get(headerEvent)
	deliveryID := r.Header.Get(headerDelivery)
	signature := r.Header.Get(headerSignature)
	if event == "" || deliveryID == "" || signature == "" {
		http.Error(w, "missing required webhook headers", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.secret, body, signature) {
		// Never log the signature or secret; only that verification failed (spec §4.7).
		logger.WebhookLog(os.Stdout, deliveryID, "signature verification failed", "unauthorized")
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "rejected").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch event {
	case eventPing:
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "accepted").Inc()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))

	case eventPullRequest:
		first, err := h.store.RecordDelivery(r.Context(), deliveryID, event)
		if err != nil {
			h.log.Error("failed to record webhook delivery", "delivery_id", deliveryID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if first {
			args := handlePRJobArgs{Payload: json.RawMessage(body), DeliveryID: deliveryID}
			if _, err := h.queue.Enqueue(r.Context(), jobHandlePR, args); err != nil {
				h.log.Error("failed to enqueue pull_request job", "delivery_id", deliveryID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "accepted").Inc()
		w.WriteHeader(http.StatusOK)

	default:
		// Unhandled event types are acknowledged, not rejected: the Platform
		// may be configured to send more events than the core consumes.
		metrics.WebhookDeliveriesTotal.WithLabelValues(event, "ignored").Inc()
		w.WriteHeader(http.StatusOK)
	}
}
