package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDeliveryStore struct {
	seen  map[string]bool
	err   error
}

func (f *fakeDeliveryStore) RecordDelivery(ctx context.Context, deliveryID, eventType string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[deliveryID] {
		return false, nil
	}
	f.seen[deliveryID] = true
	return true, nil
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, method string, args any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, method)
	return "job-1", nil
}

const testSecret = "webhook-secret"

func newTestRequest(t *testing.T, event, deliveryID string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerDelivery, deliveryID)
	req.Header.Set(headerSignature, sign([]byte(testSecret), body))
	return req
}

func TestServeHTTP_Ping(t *testing.T) {
	h := NewHandler(testSecret, &fakeDeliveryStore{}, &fakeEnqueuer{}, slog.Default())
	body := []byte(`{"zen":"hello"}`)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, newTestRequest(t, eventPing, "d1", body))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeHTTP_PullRequestEnqueuesOnFirstDelivery(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewHandler(testSecret, &fakeDeliveryStore{}, enq, slog.Default())
	body := []byte(`{"action":"opened","repository":{"id":1,"full_name":"acme/widgets"},"pull_request":{"number":5,"head":{"sha":"abc"}}}`)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, newTestRequest(t, eventPullRequest, "d2", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{jobHandlePR}, enq.enqueued)
}

func TestServeHTTP_PullRequestRedeliverySkipsEnqueue(t *testing.T) {
	enq := &fakeEnqueuer{}
	store := &fakeDeliveryStore{}
	h := NewHandler(testSecret, store, enq, slog.Default())
	body := []byte(`{"action":"opened","repository":{"id":1,"full_name":"acme/widgets"},"pull_request":{"number":5,"head":{"sha":"abc"}}}`)

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, newTestRequest(t, eventPullRequest, "dup", body))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, newTestRequest(t, eventPullRequest, "dup", body))

	assert.Equal(t, http.StatusOK, rec2.Code, "expected redelivery to still return 200")
	assert.Len(t, enq.enqueued, 1, "expected exactly one enqueue across both deliveries")
}

func TestServeHTTP_InvalidSignatureRejected(t *testing.T) {
	h := NewHandler(testSecret, &fakeDeliveryStore{}, &fakeEnqueuer{}, slog.Default())
	body := []byte(`{"zen":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set(headerEvent, eventPing)
	req.Header.Set(headerDelivery, "d3")
	req.Header.Set(headerSignature, "sha256=deadbeef")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeHTTP_MissingHeadersRejected(t *testing.T) {
	h := NewHandler(testSecret, &fakeDeliveryStore{}, &fakeEnqueuer{}, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_UnhandledEventIsAcknowledged(t *testing.T) {
	h := NewHandler(testSecret, &fakeDeliveryStore{}, &fakeEnqueuer{}, slog.Default())
	body := []byte(`{}`)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, newTestRequest(t, "issues", "d4", body))

	assert.Equal(t, http.StatusOK, rec.Code, "expected 200 for unhandled event type")
}
