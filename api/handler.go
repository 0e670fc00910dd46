// Package wampAPI exposes the engine operations over HTTP
package wampAPI

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	wampEngine "github.com/wamp3hub/wampytester/engine"
)

const DEFAULT_REQUEST_TIMEOUT = 10 * time.Second

type publisherRequest struct {
	Realm     string `json:"realm"`
	RouterURL string `json:"router_url"`
}

type subscriptionRequest struct {
	Realm     string   `json:"realm"`
	RouterURL string   `json:"router_url"`
	Topics    []string `json:"topics"`
}

type scenarioRequest struct {
	Requests []*wampEngine.PublishRequest `json:"requests"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	engine  *wampEngine.Engine
	history *History
	logger  *slog.Logger
}

// NewHandler attaches a history viewer to engine
func NewHandler(engine *wampEngine.Engine, history *History, logger *slog.Logger) *Handler {
	if history == nil {
		history = NewHistory(DEFAULT_HISTORY_SIZE)
	}
	if logger == nil {
		logger = slog.Default()
	}
	engine.AddViewer(history)
	return &Handler{engine, history, logger.With("name", "API")}
}

func (h *Handler) History() *History {
	return h.history
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/publishers", h.StartPublisher)
		r.Delete("/publishers", h.StopPublishers)
		r.Post("/publish", h.Publish)
		r.Post("/scenarios", h.SubmitScenario)
		r.Post("/subscriptions", h.StartSubscription)
		r.Delete("/subscriptions", h.StopSubscriptions)
		r.Get("/subscriptions", h.ListSubscriptions)
		r.Post("/viewer/reset", h.ResetViewer)
		r.Get("/events", h.Events)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(h.engine.Metrics().Registry(), promhttp.HandlerOpts{}))
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug(
			"http request",
			slog.Group("request", "method", r.Method, "path", r.URL.Path, "ID", middleware.GetReqID(r.Context())),
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"log":    h.engine.LogPath(),
	})
}

func (h *Handler) StartPublisher(w http.ResponseWriter, r *http.Request) {
	var request publisherRequest
	if !h.decode(w, r, &request) {
		return
	}
	handle, e := h.engine.StartPublisherSession(request.Realm, request.RouterURL)
	if e != nil {
		h.respondError(w, e)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]any{
		"ID":    handle.ID,
		"realm": handle.Realm,
		"state": handle.State().String(),
	})
}

func (h *Handler) StopPublishers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DEFAULT_REQUEST_TIMEOUT)
	defer cancel()
	h.engine.StopAllPublishers(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	request := new(wampEngine.PublishRequest)
	if !h.decode(w, r, request) {
		return
	}
	e := h.engine.SubmitPublish(request)
	if e != nil {
		h.respondError(w, e)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]any{"ID": request.ID})
}

func (h *Handler) SubmitScenario(w http.ResponseWriter, r *http.Request) {
	var request scenarioRequest
	if !h.decode(w, r, &request) {
		return
	}
	e := h.engine.SubmitScenario(request.Requests)
	if e != nil {
		h.respondError(w, e)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]any{"count": len(request.Requests)})
}

func (h *Handler) StartSubscription(w http.ResponseWriter, r *http.Request) {
	var request subscriptionRequest
	if !h.decode(w, r, &request) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), DEFAULT_REQUEST_TIMEOUT)
	defer cancel()
	e := h.engine.StartSubscription(ctx, request.Realm, request.RouterURL, request.Topics, h.history.Callback)
	if e != nil {
		h.respondError(w, e)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]any{"realm": request.Realm, "topics": request.Topics})
}

func (h *Handler) StopSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DEFAULT_REQUEST_TIMEOUT)
	defer cancel()
	h.engine.StopAllSubscriptions(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.Subscriptions())
}

func (h *Handler) ResetViewer(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetViewer()
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /v1/events?limit=N
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 0
	text := r.URL.Query().Get("limit")
	if len(text) > 0 {
		v, e := strconv.Atoi(text)
		if e != nil || v < 0 {
			h.respondJSON(w, http.StatusBadRequest, errorResponse{"limit must be a non negative integer"})
			return
		}
		limit = v
	}
	records := h.history.Recent(limit)
	if records == nil {
		records = []Record{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	e := json.NewDecoder(r.Body).Decode(v)
	if e != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body: " + e.Error()})
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, e error) {
	status := http.StatusInternalServerError
	if errors.Is(e, wampEngine.ErrorConfiguration) {
		status = http.StatusBadRequest
	} else if errors.Is(e, wampEngine.ErrorNoSession) {
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("during request", "error", e)
	}
	h.respondJSON(w, status, errorResponse{e.Error()})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	e := json.NewEncoder(w).Encode(v)
	if e != nil {
		h.logger.Debug("during response write", "error", e)
	}
}
