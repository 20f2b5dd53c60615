package core

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/bus"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/cache"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/rules"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
)

// Core owns the realtime engine: connection registry, event bus, notification
// dispatcher, cache layer and push rule engine. One instance is constructed
// at process start and passed by reference to every consumer.
type Core struct {
	Registry   *registry.Registry
	Bus        *bus.Bus
	Dispatcher *dispatch.Dispatcher
	Cache      *cache.Cache
	Rules      *rules.Engine

	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	started   atomic.Bool
	wg        sync.WaitGroup
}

func New(logger *slog.Logger, cfg *config.Config) *Core {
	reg := registry.New(logger)
	events := bus.New(logger, cfg.Bus.HistoryCapacity)
	dispatcher := dispatch.New(logger, reg, events, cfg.Dispatcher.Tick)
	store := cache.New(logger, cfg.Cache.DefaultTTL, cfg.Cache.Categories)
	mailer := rules.NewSMTPMailer(cfg.SMTP, logger)
	engine := rules.NewEngine(logger, dispatcher, events, mailer, cfg.Rules.HistoryCapacity)

	c := &Core{
		Registry:   reg,
		Bus:        events,
		Dispatcher: dispatcher,
		Cache:      store,
		Rules:      engine,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "core")),
	}

	for _, r := range rules.DefaultRules() {
		if err := engine.AddRule(r); err != nil {
			c.logger.Error("Failed to register default rule", slog.Any("error", err))
		}
	}

	// Dashboard refresh notices fan straight out to the tenant room.
	events.On(bus.TypeDashboardRefresh, func(ev bus.Event) {
		if ev.TenantID == 0 {
			return
		}
		payload := map[string]interface{}{
			"reason":    ev.Payload,
			"timestamp": ev.Timestamp.Format(time.RFC3339),
		}
		if _, err := reg.Route(registry.TargetTenant, strconv.Itoa(ev.TenantID), "dashboard:stats:update", payload); err != nil {
			c.logger.Debug("No recipients for dashboard refresh", slog.Int("tenantID", ev.TenantID))
		}
	}, bus.SubscribeOptions{Persistent: true})

	return c
}

// Run starts the background loops: dispatcher processing, stale-connection
// sweep and cache purge. Blocks until ctx is cancelled, then tears down.
func (c *Core) Run(ctx context.Context) {
	c.startedAt = time.Now()
	c.started.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Dispatcher.Run(ctx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Server.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Registry.SweepInactive(c.cfg.Server.HeartbeatTimeout)
				c.Cache.Purge()
			}
		}
	}()

	<-ctx.Done()
	c.shutdown()
}

func (c *Core) shutdown() {
	c.logger.Info("Core shutting down")
	c.started.Store(false)
	c.Dispatcher.Flush()
	c.Bus.CleanupTransient()
	c.Registry.CloseAll(context.Canceled)
	c.wg.Wait()
	c.logger.Info("Core shut down")
}

// Started reports whether the core service is accepting work; the admin
// surface answers 503 until this is true.
func (c *Core) Started() bool {
	return c.started.Load()
}

// Uptime reports how long the core has been running.
func (c *Core) Uptime() time.Duration {
	if !c.started.Load() {
		return 0
	}
	return time.Since(c.startedAt)
}

// NotifyEntityChange is the CRUD collaborators' entry point: a domain
// mutation becomes a bus emission plus a cache invalidation for the
// entity-type category scoped to the tenant.
func (c *Core) NotifyEntityChange(entityType, entityID string, tenantID int, action string) {
	category := strings.ToLower(strings.TrimSpace(entityType))
	removed := c.Cache.InvalidateByCategory(category, tenantID)

	c.Bus.Emit(eventTypeFor(category), tenantID, map[string]interface{}{
		"entityType": category,
		"entityId":   entityID,
		"action":     action,
	})
	c.logger.Debug("Entity change processed",
		slog.String("entityType", category),
		slog.String("action", action),
		slog.Int("tenantID", tenantID),
		slog.Int("invalidated", removed),
	)
}

// IngestSnapshot feeds a fresh aggregate bundle into the rule engine and
// pushes the refreshed views to the tenant's dashboard rooms.
func (c *Core) IngestSnapshot(ctx context.Context, tenantID int, snap rules.Snapshot) []*dispatch.Notification {
	fired := c.Rules.Evaluate(ctx, tenantID, snap)

	target := strconv.Itoa(tenantID)
	ts := time.Now().Format(time.RFC3339)
	if _, err := c.Registry.Route(registry.TargetTenant, target, "dashboard:stats:update", map[string]interface{}{
		"stats":     snap.Stats,
		"realtime":  snap.Realtime,
		"timestamp": ts,
	}); err != nil {
		c.logger.Debug("Stats update not routed", slog.Int("tenantID", tenantID), slog.Any("error", err))
	}
	if _, err := c.Registry.Route(registry.TargetTenant, target, "dashboard:alerts:update", map[string]interface{}{
		"alerts":    snap.Alerts,
		"timestamp": ts,
	}); err != nil {
		c.logger.Debug("Alerts update not routed", slog.Int("tenantID", tenantID), slog.Any("error", err))
	}
	return fired
}

// SweepNow forces a stale-connection sweep, used by the admin surface.
func (c *Core) SweepNow() int {
	return c.Registry.SweepInactive(c.cfg.Server.HeartbeatTimeout)
}

func eventTypeFor(category string) bus.EventType {
	switch {
	case strings.Contains(category, "vehiculo"):
		return bus.TypeVehicleChanged
	case strings.Contains(category, "conductor"):
		return bus.TypeDriverChanged
	case strings.Contains(category, "ruta"):
		return bus.TypeRouteChanged
	case strings.Contains(category, "horario"), strings.Contains(category, "viaje"):
		return bus.TypeScheduleChanged
	case strings.Contains(category, "usuario"), strings.Contains(category, "user"):
		return bus.TypeUserChanged
	}
	return bus.TypeDashboardRefresh
}
