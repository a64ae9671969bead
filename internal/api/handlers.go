// Package api exposes HTTP handlers for widget instances.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/pelotonbridge/internal/auth"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/orchestrator"
	"example.com/pelotonbridge/internal/router"
)

const defaultHeartbeat = 15 * time.Second

// CommandRouter accepts inbound commands without waiting for upstream calls.
type CommandRouter interface {
	Handle(ctx context.Context, cmd router.Command) error
}

// ViewSource renders the current state of an instance.
type ViewSource interface {
	View(id string) (orchestrator.View, error)
}

// Subscriber streams outbound messages for one instance.
type Subscriber interface {
	Subscribe(instanceID string) (<-chan messages.Message, func())
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithHeartbeat overrides the interval of keep-alive comments on event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		h.heartbeat = d
	}
}

// WithLogger overrides the logger used for stream diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler coordinates HTTP requests with the router and orchestrator.
type Handler struct {
	router    CommandRouter
	views     ViewSource
	events    Subscriber
	heartbeat time.Duration
	logger    *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(r CommandRouter, views ViewSource, events Subscriber, opts ...Option) *Handler {
	h := &Handler{
		router:    r,
		views:     views,
		events:    events,
		heartbeat: defaultHeartbeat,
		logger:    log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/messages", h.submitMessage)
	mux.HandleFunc("/v1/instances/", h.instanceByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) submitMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeMessagesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope messages:write required")
		return
	}

	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if !claims.CanAccess(req.InstanceID) {
		writeError(w, http.StatusForbidden, "forbidden", "token may not address this instance")
		return
	}

	cmd := router.Command{Name: req.Name, InstanceID: req.InstanceID, Payload: req.Payload}
	if err := h.router.Handle(r.Context(), cmd); err != nil {
		switch {
		case errors.Is(err, router.ErrUnknownInstance):
			writeError(w, http.StatusNotFound, "not_found", "instance not configured")
		case errors.Is(err, router.ErrDropped):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitMessageResponse{
		Name:       messages.Normalize(req.Name),
		InstanceID: req.InstanceID,
		Status:     "accepted",
	})
}

func (h *Handler) instanceByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing instance id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeInstancesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope instances:read required")
		return
	}
	if !claims.CanAccess(id) {
		writeError(w, http.StatusForbidden, "forbidden", "token may not address this instance")
		return
	}

	switch sub {
	case "":
		h.getInstance(w, id)
	case "events":
		h.streamEvents(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) getInstance(w http.ResponseWriter, id string) {
	view, err := h.views.View(id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownInstance) {
			writeError(w, http.StatusNotFound, "not_found", "instance not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// streamEvents relays outbound messages for id as server-sent events. Subscribing does not
// require the instance to be configured yet, so a widget can listen before SET_CONFIG.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming unsupported")
		return
	}
	// Event streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	events, cancel := h.events.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				h.logger.Printf("stream for instance %s: %v", id, err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, msg messages.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Name, data)
	return err
}

// SubmitMessageRequest is the payload for POST /v1/messages.
type SubmitMessageRequest struct {
	Name       string          `json:"name"`
	InstanceID string          `json:"instance_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Validate ensures request correctness.
func (r SubmitMessageRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.InstanceID) == "" {
		return errors.New("instance_id is required")
	}
	return nil
}

// SubmitMessageResponse acknowledges an accepted message.
type SubmitMessageResponse struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
