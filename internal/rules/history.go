package rules

import (
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"
	"github.com/google/uuid"
)

const DefaultHistoryCapacity = 100

// HistoryEntry is one fired notification retained per tenant, with flags
// mutable from the client side.
type HistoryEntry struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     int               `json:"tenantId"`
	RuleID       string            `json:"ruleId"`
	Message      string            `json:"message"`
	Priority     dispatch.Priority `json:"priority"`
	FiredAt      time.Time         `json:"firedAt"`
	Read         bool              `json:"read"`
	Acknowledged bool              `json:"acknowledged"`
}

// History is the capped per-tenant store of fired notifications.
type History struct {
	mu       sync.Mutex
	byTenant map[int][]*HistoryEntry
	byID     map[uuid.UUID]*HistoryEntry
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		byTenant: make(map[int][]*HistoryEntry),
		byID:     make(map[uuid.UUID]*HistoryEntry),
		capacity: capacity,
	}
}

func (h *History) Append(e *HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.byTenant[e.TenantID], e)
	h.byID[e.ID] = e
	// Cap per tenant, dropping from the oldest end.
	for len(entries) > h.capacity {
		delete(h.byID, entries[0].ID)
		entries = entries[1:]
	}
	h.byTenant[e.TenantID] = entries
}

// ForTenant returns up to limit most recent entries for a tenant, newest
// last. limit <= 0 returns all retained entries.
func (h *History) ForTenant(tenantID, limit int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.byTenant[tenantID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	return out
}

func (h *History) MarkRead(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byID[id]
	if !ok {
		return false
	}
	e.Read = true
	return true
}

func (h *History) Acknowledge(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byID[id]
	if !ok {
		return false
	}
	e.Acknowledged = true
	return true
}
