package alerts

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/httpx"
)

// ActorHeader carries the operator performing a change.
const ActorHeader = "X-Actor-ID"

// MutationLimit caps state-changing requests per operator per minute.
const MutationLimit = 10

// Handler exposes the open alerts and the alert settings to operators.
type Handler struct {
	logger  *slog.Logger
	engine  *Engine
	limiter func(http.Handler) http.Handler
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(MutationLimit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			return "actor:" + actor, nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, engine: engine, limiter: limiter}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/settings", h.handleSettings)
	r.Group(func(r chi.Router) {
		r.Use(h.limiter)
		r.Put("/settings", h.handleUpdateSettings)
		r.Post("/{alertID}/ack", h.handleAcknowledge)
		r.Post("/{alertID}/resolve", h.handleResolve)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	open, err := h.engine.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if open == nil {
		open = []Alert{}
	}
	httpx.JSON(w, http.StatusOK, open)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.engine.Settings())
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", ActorHeader+" header required")
		return
	}
	var settings Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid settings payload")
		return
	}
	if err := h.engine.UpdateSettings(r.Context(), actor, settings); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.engine.Settings())
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.Acknowledge(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.Resolve(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("alert resolved", slog.String("alert_id", alert.ID), slog.String("product_id", alert.ProductID))
	httpx.JSON(w, http.StatusOK, alert)
}
