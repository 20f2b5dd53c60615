package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/google/uuid"
)

const DefaultHistoryCapacity = 1000

type listener struct {
	id   uuid.UUID
	typ  EventType
	fn   ListenerFunc
	opts SubscribeOptions
}

// Bus is a typed in-process pub/sub with a bounded rolling history.
// Emission is synchronous: every matching listener runs on the caller's
// stack before Emit returns.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventType][]*listener
	byID      map[uuid.UUID]*listener

	histMu   sync.Mutex
	history  []Event
	capacity int

	emitted uint64
	logger  *slog.Logger
}

func New(logger *slog.Logger, historyCapacity int) *Bus {
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistoryCapacity
	}
	return &Bus{
		listeners: make(map[EventType][]*listener),
		byID:      make(map[uuid.UUID]*listener),
		history:   make([]Event, 0, historyCapacity),
		capacity:  historyCapacity,
		logger:    logger.With(slog.String("component", "event_bus")),
	}
}

// Emit fans an event out to all listeners registered for its type plus all
// wildcard listeners, then appends it to history. A panicking listener is
// recovered and logged; the remaining listeners still run.
func (b *Bus) Emit(typ EventType, tenantID int, payload any) Event {
	ev := Event{
		ID:        uuid.New(),
		Type:      typ,
		TenantID:  tenantID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	targets := make([]*listener, 0, len(b.listeners[typ])+len(b.listeners[TypeAny]))
	targets = append(targets, b.listeners[typ]...)
	targets = append(targets, b.listeners[TypeAny]...)
	b.mu.RUnlock()

	for _, l := range targets {
		if l.opts.TenantID != 0 && l.opts.TenantID != ev.TenantID {
			continue
		}
		b.invoke(l, ev)
	}

	b.appendHistory(ev)
	metrics.EventsEmitted.WithLabelValues(string(typ)).Inc()
	return ev
}

func (b *Bus) invoke(l *listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Listener panicked",
				slog.String("listenerID", l.id.String()),
				slog.String("eventType", string(ev.Type)),
				slog.Any("panic", rec),
			)
		}
	}()
	l.fn(ev)
}

// On registers a listener for the given type and returns its id.
func (b *Bus) On(typ EventType, fn ListenerFunc, opts SubscribeOptions) uuid.UUID {
	l := &listener{id: uuid.New(), typ: typ, fn: fn, opts: opts}

	b.mu.Lock()
	b.listeners[typ] = append(b.listeners[typ], l)
	b.byID[l.id] = l
	b.mu.Unlock()

	b.logger.Debug("Listener registered",
		slog.String("listenerID", l.id.String()),
		slog.String("type", string(typ)),
		slog.Bool("persistent", opts.Persistent),
	)
	return l.id
}

// Off removes a listener by id. Unknown ids are a no-op.
func (b *Bus) Off(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	b.listeners[l.typ] = removeListener(b.listeners[l.typ], id)
}

// CleanupTransient bulk-removes every non-persistent listener and returns
// how many were dropped.
func (b *Bus) CleanupTransient() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for typ, ls := range b.listeners {
		kept := ls[:0]
		for _, l := range ls {
			if l.opts.Persistent {
				kept = append(kept, l)
				continue
			}
			delete(b.byID, l.id)
			removed++
		}
		b.listeners[typ] = kept
	}
	if removed > 0 {
		b.logger.Info("Cleaned up transient listeners", slog.Int("removed", removed))
	}
	return removed
}

// History returns up to limit most recent events, newest last, optionally
// filtered by type. limit <= 0 means all retained events.
func (b *Bus) History(limit int, typeFilter EventType) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	out := make([]Event, 0, len(b.history))
	for _, ev := range b.history {
		if typeFilter != "" && typeFilter != TypeAny && ev.Type != typeFilter {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *Bus) appendHistory(ev Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.emitted++
	// Amortized eviction: past capacity, drop the oldest half in one cut.
	if len(b.history) >= b.capacity {
		half := len(b.history) / 2
		b.history = append(b.history[:0], b.history[half:]...)
	}
	b.history = append(b.history, ev)
}

// BusStats summarizes bus activity for the admin surface.
type BusStats struct {
	Listeners    int    `json:"listeners"`
	HistorySize  int    `json:"historySize"`
	TotalEmitted uint64 `json:"totalEmitted"`
}

func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	listeners := len(b.byID)
	b.mu.RUnlock()

	b.histMu.Lock()
	defer b.histMu.Unlock()
	return BusStats{
		Listeners:    listeners,
		HistorySize:  len(b.history),
		TotalEmitted: b.emitted,
	}
}

func removeListener(ls []*listener, id uuid.UUID) []*listener {
	for i, l := range ls {
		if l.id == id {
			return append(ls[:i], ls[i+1:]...)
		}
	}
	return ls
}
