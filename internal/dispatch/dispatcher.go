package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/bus"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
)

const (
	DefaultTick = 50 * time.Millisecond

	// maxAttempts bounds redelivery: one initial try plus one retry.
	maxAttempts = 2
)

// Router is the outbound surface the dispatcher delivers through.
type Router interface {
	Route(kind registry.TargetKind, targetID string, event string, payload any) (int, error)
}

// Dispatcher queues notifications and delivers them asynchronously with
// at-least-once semantics. Processing is single-consumer: producers may be
// concurrent, but exactly one loop dequeues, so per-queue order holds.
type Dispatcher struct {
	mu    sync.Mutex
	queue []*Notification

	router Router
	events *bus.Bus
	tick   time.Duration

	delivered uint64
	dropped   uint64

	logger *slog.Logger
}

func New(logger *slog.Logger, router Router, events *bus.Bus, tick time.Duration) *Dispatcher {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Dispatcher{
		router: router,
		events: events,
		tick:   tick,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Enqueue appends a notification to the back of the queue. The queue is
// unbounded; depth is observable via Stats.
func (d *Dispatcher) Enqueue(n *Notification) {
	d.mu.Lock()
	d.queue = append(d.queue, n)
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	d.logger.Debug("Notification enqueued",
		slog.String("id", n.ID.String()),
		slog.String("event", n.Event),
		slog.String("target", string(n.Target)+":"+n.TargetID),
		slog.Int("depth", depth),
	)
}

// requeueFront puts a failed notification back at the head of the queue so
// its single retry happens before newer work.
func (d *Dispatcher) requeueFront(n *Notification) {
	d.mu.Lock()
	d.queue = append([]*Notification{n}, d.queue...)
	metrics.QueueDepth.Set(float64(len(d.queue)))
	d.mu.Unlock()
}

func (d *Dispatcher) dequeue() *Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	n := d.queue[0]
	d.queue = d.queue[1:]
	metrics.QueueDepth.Set(float64(len(d.queue)))
	return n
}

// Run processes the queue until ctx is cancelled, one notification per tick.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.logger.Info("Dispatcher started", slog.Duration("tick", d.tick))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return
		case <-ticker.C:
			d.processOne()
		}
	}
}

// processOne attempts delivery of the head notification. On failure the item
// is re-enqueued at the front exactly once; a second consecutive failure
// drops it and reports an internal error event.
func (d *Dispatcher) processOne() bool {
	n := d.dequeue()
	if n == nil {
		return false
	}

	n.Attempts++
	err := d.deliver(n)
	if err == nil {
		d.mu.Lock()
		d.delivered++
		d.mu.Unlock()
		metrics.NotificationsDelivered.Inc()
		return true
	}

	if n.Attempts >= maxAttempts {
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		metrics.NotificationsDropped.Inc()
		d.logger.Error("Notification dropped after retry",
			slog.String("id", n.ID.String()),
			slog.String("event", n.Event),
			slog.Any("error", err),
		)
		if d.events != nil {
			d.events.Emit(bus.TypeNotificationFailed, tenantOf(n), map[string]interface{}{
				"notificationId": n.ID.String(),
				"event":          n.Event,
				"target":         string(n.Target) + ":" + n.TargetID,
				"reason":         err.Error(),
				"attempts":       n.Attempts,
			})
		}
		return true
	}

	d.logger.Warn("Delivery failed, requeueing once",
		slog.String("id", n.ID.String()),
		slog.Any("error", err),
	)
	d.requeueFront(n)
	return true
}

func (d *Dispatcher) deliver(n *Notification) error {
	payload := make(map[string]interface{}, len(n.Payload)+2)
	for k, v := range n.Payload {
		payload[k] = v
	}
	payload["priority"] = string(n.Priority)
	payload["timestamp"] = time.Now().Format(time.RFC3339)

	_, err := d.router.Route(n.Target, n.TargetID, n.Event, payload)
	return err
}

// Flush drains the queue synchronously, attempting each remaining item once.
// Used during graceful shutdown.
func (d *Dispatcher) Flush() {
	for {
		n := d.dequeue()
		if n == nil {
			return
		}
		if err := d.deliver(n); err != nil {
			d.logger.Warn("Flush delivery failed",
				slog.String("id", n.ID.String()),
				slog.Any("error", err),
			)
		}
	}
}

// DispatcherStats exposes queue depth and delivery counters.
type DispatcherStats struct {
	QueueDepth int    `json:"queueDepth"`
	Delivered  uint64 `json:"delivered"`
	Dropped    uint64 `json:"dropped"`
}

func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{
		QueueDepth: len(d.queue),
		Delivered:  d.delivered,
		Dropped:    d.dropped,
	}
}

func tenantOf(n *Notification) int {
	if n.Target != registry.TargetTenant {
		return 0
	}
	id, err := strconv.Atoi(n.TargetID)
	if err != nil {
		return 0
	}
	return id
}
