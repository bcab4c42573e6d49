package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

const maxBodySize = 1 << 20 // 1 MB

// Handler is the provider-facing webhook endpoint. Its synchronous contract
// is thin on purpose: verify the signature, resolve the tenant, classify,
// enqueue, 200. Anything slower happens on the ingest pool after the
// provider has been told to stop retrying.
type Handler struct {
	Bindings repository.BindingRepositoryInterface
	Pool     *ingest.Pool
	Logger   *slog.Logger

	AppSecret   string
	VerifyToken string
}

// Verify answers the provider's GET subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.VerifyToken != "" && q.Get("hub.verify_token") == h.VerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	h.Logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
	http.Error(w, "verification failed", http.StatusForbidden)
}

// Receive handles POSTed event batches.
//
// Status codes follow the provider's retry semantics: 403 for signature
// failures (retrying won't help and shouldn't be encouraged), 400 for bodies
// that aren't JSON, and 200 for everything else, including events we drop
// (unknown channel) or that fail later in async processing. A 5xx here would
// just turn an internal fault into a provider retry storm.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Warn("failed to read webhook body", "error", err)
		metrics.WebhookRequests.WithLabelValues("malformed").Inc()
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	// The signature covers the exact raw bytes; nothing may parse or
	// re-serialize the body before this check.
	if !ValidSignature(body, r.Header.Get("X-Hub-Signature-256"), h.AppSecret) {
		h.Logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		metrics.WebhookRequests.WithLabelValues("bad_signature").Inc()
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.Logger.Warn("webhook body is not valid JSON", "error", err)
		metrics.WebhookRequests.WithLabelValues("malformed").Inc()
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	receivedAt := time.Now().UTC()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if err := h.dispatchValue(change.Value, receivedAt); err != nil {
				var unknown *appErrors.ErrUnknownChannel
				if errors.As(err, &unknown) {
					// Expected steady-state noise: a channel nobody
					// registered. Ack and drop so the provider stops retrying.
					h.Logger.Warn("webhook for unregistered channel dropped", "channel_id", unknown.ChannelID)
					metrics.WebhookRequests.WithLabelValues("unknown_channel").Inc()
					continue
				}
				// Already acknowledged (or about to be); recovery relies on
				// provider redelivery, not on failing this request.
				h.Logger.Error("webhook dispatch failed", "error", err)
			}
		}
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Handler) dispatchValue(v ChangeValue, receivedAt time.Time) error {
	channelID := v.Metadata.PhoneNumberID
	if channelID == "" {
		h.Logger.Warn("change value without phone_number_id skipped")
		return nil
	}

	binding, err := h.Bindings.FindByChannelID(channelID)
	if err != nil {
		return fmt.Errorf("resolve tenant for channel %s: %w", channelID, err)
	}
	if binding == nil {
		return appErrors.NewUnknownChannel(channelID)
	}

	for _, ev := range ClassifyValue(v) {
		switch ev.Kind {
		case KindInboundMessage:
			ev.Inbound.TenantID = binding.TenantID
			ev.Inbound.ReceivedAt = receivedAt
			h.Pool.Enqueue(ingest.Task{Binding: *binding, Inbound: ev.Inbound})
		case KindStatusUpdate:
			h.Pool.Enqueue(ingest.Task{Binding: *binding, Status: ev.Status})
		default:
			h.Logger.Warn("unrecognized webhook event skipped",
				"channel_id", channelID, "reason", ev.Reason)
		}
	}
	return nil
}
