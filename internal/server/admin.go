package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
	"github.com/go-chi/chi/v5"
)

// errorResponse is the structured error envelope for the admin surface.
// Transport-facing errors never leak raw internals.
type errorResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Status:    "error",
		Message:   message,
		Timestamp: time.Now(),
	})
}

// requireStarted answers 503 until the core service is running.
func (a *App) requireStarted(w http.ResponseWriter) bool {
	if !a.core.Started() {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return false
	}
	return true
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": a.core.Registry.Stats(),
		"dispatcher":  a.core.Dispatcher.Stats(),
		"bus":         a.core.Bus.Stats(),
		"cache":       a.core.Cache.Stats(),
		"rules":       a.core.Rules.RuleCount(),
		"timestamp":   time.Now(),
	})
}

func (a *App) handleClients(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":   a.core.Registry.Snapshot(),
		"timestamp": time.Now(),
	})
}

// manualNotification is the POST /admin/notifications request body.
type manualNotification struct {
	TargetType string                 `json:"targetType"`
	TargetID   string                 `json:"targetId"`
	Event      string                 `json:"event"`
	Data       map[string]interface{} `json:"data"`
	Priority   string                 `json:"priority"`
	SenderID   string                 `json:"senderId"`
}

func (a *App) handlePostNotification(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	var req manualNotification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := registry.ParseTargetKind(req.TargetType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "targetType must be one of tenant, user, role, broadcast")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if kind != registry.TargetBroadcast && req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "targetId is required for non-broadcast targets")
		return
	}

	n := dispatch.NewNotification(kind, req.TargetID, req.Event, req.Data, dispatch.ParsePriority(req.Priority))
	n.SenderID = req.SenderID
	a.core.Dispatcher.Enqueue(n)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "queued",
		"id":        n.ID.String(),
		"timestamp": time.Now(),
	})
}

func (a *App) handleNotificationHistory(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	tenantID, err := strconv.Atoi(r.URL.Query().Get("tenantId"))
	if err != nil || tenantID <= 0 {
		writeError(w, http.StatusBadRequest, "tenantId query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": a.core.Rules.History(tenantID, limit),
		"timestamp":     time.Now(),
	})
}

func (a *App) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	if !a.core.Rules.MarkRead(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now()})
}

func (a *App) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	if !a.core.Rules.Acknowledge(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now()})
}

func (a *App) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	connections := a.core.SweepNow()
	listeners := a.core.Bus.CleanupTransient()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"removedConnections": connections,
		"removedListeners":   listeners,
		"timestamp":          time.Now(),
	})
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !a.requireStarted(w) {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds":  int64(a.core.Uptime().Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heapAllocBytes": mem.HeapAlloc,
		"sysBytes":       mem.Sys,
		"connections":    a.core.Registry.Stats().TotalConnections,
		"queueDepth":     a.core.Dispatcher.Stats().QueueDepth,
		"timestamp":      time.Now(),
	})
}
