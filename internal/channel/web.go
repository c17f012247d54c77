package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"agenthub/internal/domain"
	"agenthub/internal/metrics"
	"agenthub/internal/orchestrator"
)

// Web exposes the routing pipeline over a JSON API. Unlike the chat channels
// it calls the orchestrator directly instead of going through the bus, so
// callers get the full routing result in the response.
type Web struct {
	host   string
	port   int
	orch           *orchestrator.Orchestrator
	store          domain.Store
	tenant         string
	metricsEnabled bool
	logger         *slog.Logger

	server *http.Server
}

type WebConfig struct {
	Host          string
	Port          int
	Orchestrator  *orchestrator.Orchestrator
	Store         domain.Store
	DefaultTenant string
	Metrics       bool
	Logger        *slog.Logger
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Web{
		host:           cfg.Host,
		port:           cfg.Port,
		orch:           cfg.Orchestrator,
		store:          cfg.Store,
		tenant:         cfg.DefaultTenant,
		metricsEnabled: cfg.Metrics,
		logger:         cfg.Logger,
	}
}

func (w *Web) Name() string { return "web" }

func (w *Web) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/route", w.handleRoute)
	mux.HandleFunc("GET /api/agents", w.handleAgents)
	mux.HandleFunc("GET /api/conversations/{id}", w.handleConversation)
	mux.HandleFunc("GET /status", w.handleStatus)
	if w.metricsEnabled {
		mux.Handle("GET /metrics", metrics.Collector.Handler())
	}
	return mux
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (w *Web) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:    addr,
		Handler: w.routes(),
	}

	w.logger.Info("web API started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.server.Shutdown(shutdownCtx)
}

type routeRequest struct {
	UserID         string            `json:"userId"`
	TenantID       string            `json:"tenantId,omitempty"`
	Message        string            `json:"message"`
	ConversationID string            `json:"conversationId,omitempty"`
	PreferredAgent string            `json:"preferredAgentId,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

type routeReply struct {
	ConversationID string               `json:"conversationId"`
	TurnIndex      int                  `json:"turnIndex"`
	Reply          string               `json:"reply"`
	AgentName      string               `json:"agentName,omitempty"`
	Routing        domain.RoutingResult `json:"routing"`
	ElapsedMs      int64                `json:"elapsedMs"`
}

func (w *Web) handleRoute(rw http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeError(rw, http.StatusBadRequest, "userId and message are required")
		return
	}
	tenant := req.TenantID
	if tenant == "" {
		tenant = w.tenant
	}

	resp, err := w.orch.Route(r.Context(), orchestrator.RouteRequest{
		OwnerID:          req.UserID,
		TenantID:         tenant,
		Message:          req.Message,
		ConversationID:   req.ConversationID,
		Context:          req.Context,
		PreferredAgentID: req.PreferredAgent,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(rw, http.StatusNotFound, "conversation not found")
			return
		}
		w.logger.Error("route request failed", "user", req.UserID, "err", err)
		writeError(rw, http.StatusInternalServerError, "routing failed")
		return
	}

	writeJSON(rw, http.StatusOK, routeReply{
		ConversationID: resp.ConversationID,
		TurnIndex:      resp.TurnIndex,
		Reply:          resp.AgentReply,
		AgentName:      resp.AgentName,
		Routing:        resp.Routing,
		ElapsedMs:      resp.ElapsedMs,
	})
}

func (w *Web) handleAgents(rw http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("userId")
	tenant := r.URL.Query().Get("tenantId")
	if tenant == "" {
		tenant = w.tenant
	}

	agents, err := w.store.ListActiveAgents(r.Context(), owner, tenant)
	if err != nil {
		w.logger.Error("list agents failed", "err", err)
		writeError(rw, http.StatusInternalServerError, "cannot list agents")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"agents": agents})
}

func (w *Web) handleConversation(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	owner := r.URL.Query().Get("userId")
	tenant := r.URL.Query().Get("tenantId")
	if tenant == "" {
		tenant = w.tenant
	}
	if owner == "" {
		writeError(rw, http.StatusBadRequest, "userId is required")
		return
	}

	conv, err := w.store.GetConversation(r.Context(), id)
	if err != nil {
		w.logger.Error("get conversation failed", "id", id, "err", err)
		writeError(rw, http.StatusInternalServerError, "cannot load conversation")
		return
	}
	// Same rule the conversation manager applies: a conversation owned by
	// someone else is indistinguishable from a missing one.
	if conv == nil || conv.OwnerID != owner || conv.TenantID != tenant {
		writeError(rw, http.StatusNotFound, "conversation not found")
		return
	}

	turns, err := w.store.RecentTurns(r.Context(), id, 50)
	if err != nil {
		w.logger.Error("load turns failed", "id", id, "err", err)
		writeError(rw, http.StatusInternalServerError, "cannot load turns")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"conversation": conv,
		"turns":        turns,
	})
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "agenthub",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
