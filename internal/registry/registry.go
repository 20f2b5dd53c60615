package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/transport"
	"github.com/google/uuid"
)

var (
	ErrIncompleteIdentity = errors.New("handshake claims are incomplete")
	ErrNoRecipients       = errors.New("no reachable connections for target")
)

// envelope is the wire format for every outbound frame.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Registry tracks every live connection and routes outbound messages to the
// derived tenant/user/role rooms. A user id maps to at most one active entry;
// a new connection for the same user replaces the previous one.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Connection
	byUser map[string]uuid.UUID

	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Connection),
		byUser: make(map[string]uuid.UUID),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// Register adds an authenticated connection to the registry and implicitly to
// its tenant, user and role rooms. When the user already has an active entry
// the old one is removed first and returned so the caller can close its
// transport outside the registry lock.
func (r *Registry) Register(claims Claims, t *transport.Connection) (*Connection, *Connection, error) {
	if claims.UserID == "" || claims.TenantID == 0 || claims.Role == "" {
		return nil, nil, ErrIncompleteIdentity
	}

	conn := &Connection{
		ID:          t.ID(),
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		ConnectedAt: time.Now(),
		Transport:   t,
	}

	r.mu.Lock()
	var replaced *Connection
	if oldID, ok := r.byUser[claims.UserID]; ok {
		replaced = r.conns[oldID]
		r.removeLocked(oldID)
	}
	r.conns[conn.ID] = conn
	r.byUser[claims.UserID] = conn.ID
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsByRole.WithLabelValues(conn.Role).Inc()

	r.logger.Debug("Connection registered",
		slog.String("connID", conn.ID.String()),
		slog.String("userID", conn.UserID),
		slog.Int("tenantID", conn.TenantID),
		slog.String("role", conn.Role),
	)
	return conn, replaced, nil
}

// Unregister removes a connection from the registry and all three rooms
// atomically. Unknown ids are a no-op.
func (r *Registry) Unregister(connID uuid.UUID) bool {
	r.mu.Lock()
	_, ok := r.conns[connID]
	if ok {
		r.removeLocked(connID)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("Connection unregistered", slog.String("connID", connID.String()))
	}
	return ok
}

// removeLocked deletes a connection from both indexes. Caller holds r.mu.
func (r *Registry) removeLocked(connID uuid.UUID) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if cur, ok := r.byUser[conn.UserID]; ok && cur == connID {
		delete(r.byUser, conn.UserID)
	}
	metrics.ConnectionsActive.Dec()
	metrics.ConnectionsByRole.WithLabelValues(conn.Role).Dec()
}

// Route resolves the target room and enqueues the event on every member's
// transport buffer. It never blocks on slow consumers. Returns the number of
// connections the message was enqueued to; an empty target room is an error.
func (r *Registry) Route(kind TargetKind, targetID string, event string, payload any) (int, error) {
	msg, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	targets := make([]*transport.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.inRoom(kind, targetID) {
			targets = append(targets, conn.Transport)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0, ErrNoRecipients
	}

	delivered := 0
	for _, t := range targets {
		if t.Send(msg) {
			delivered++
		}
	}
	r.logger.Debug("Routed event",
		slog.String("event", event),
		slog.String("target", string(kind)+":"+targetID),
		slog.Int("delivered", delivered),
	)
	return delivered, nil
}

// Get returns the registered connection for an id.
func (r *Registry) Get(connID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalConnections: len(r.conns),
		ByTenant:         make(map[string]int),
		ByRole:           make(map[string]int),
	}
	for _, conn := range r.conns {
		s.ByTenant[strconv.Itoa(conn.TenantID)]++
		s.ByRole[conn.Role]++
	}
	return s
}

// Snapshot returns the current connection list for the admin surface.
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(r.conns))
	for _, conn := range r.conns {
		infos = append(infos, ConnectionInfo{
			ID:            conn.ID.String(),
			UserID:        conn.UserID,
			TenantID:      conn.TenantID,
			Role:          conn.Role,
			ConnectedAt:   conn.ConnectedAt,
			LastHeartbeat: conn.Transport.LastSeen(),
		})
	}
	return infos
}

// SweepInactive removes every connection whose last heartbeat is older than
// timeout, treating it as abandoned even if no disconnect event fired. The
// stale transports are closed outside the registry lock.
func (r *Registry) SweepInactive(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	r.mu.Lock()
	var stale []*Connection
	for id, conn := range r.conns {
		if conn.Transport.LastSeen().Before(cutoff) {
			stale = append(stale, conn)
			r.removeLocked(id)
		}
	}
	r.mu.Unlock()

	for _, conn := range stale {
		conn.Transport.Close(errors.New("heartbeat timeout"))
	}
	if len(stale) > 0 {
		r.logger.Info("Swept inactive connections", slog.Int("removed", len(stale)))
	}
	return len(stale)
}

// CloseAll closes every tracked connection, used during graceful shutdown.
func (r *Registry) CloseAll(reason error) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for id, conn := range r.conns {
		conns = append(conns, conn)
		r.removeLocked(id)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Transport.Close(reason)
	}
}
