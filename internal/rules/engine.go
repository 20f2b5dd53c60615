package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/bus"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/metrics"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// channelConcurrency bounds parallel channel deliveries per evaluation.
const channelConcurrency = 4

// Engine evaluates registered rules against tenant snapshots and emits
// multi-channel notifications. Rules refire every cycle while their
// condition stays true: dashboards are expected to keep asserting current
// critical state.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule
	byID  map[string]*Rule

	dispatcher *dispatch.Dispatcher
	events     *bus.Bus
	mailer     Mailer
	history    *History

	logger *slog.Logger
}

func NewEngine(logger *slog.Logger, dispatcher *dispatch.Dispatcher, events *bus.Bus, mailer Mailer, historyCapacity int) *Engine {
	return &Engine{
		byID:       make(map[string]*Rule),
		dispatcher: dispatcher,
		events:     events,
		mailer:     mailer,
		history:    NewHistory(historyCapacity),
		logger:     logger.With(slog.String("component", "rule_engine")),
	}
}

func (e *Engine) AddRule(r *Rule) error {
	if err := r.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byID[r.ID]; exists {
		return ErrDuplicateRule
	}
	e.byID[r.ID] = r
	e.rules = append(e.rules, r)
	e.logger.Debug("Rule registered", slog.String("ruleID", r.ID))
	return nil
}

func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return false
	}
	delete(e.byID, id)
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	return true
}

// Evaluate applies every registered rule to the snapshot and returns the
// notifications produced, exactly one per (rule, tenant) whose condition
// held. Each notification is also delivered across the rule's channels; a
// failing rule or channel never blocks the others.
func (e *Engine) Evaluate(ctx context.Context, tenantID int, snap Snapshot) []*dispatch.Notification {
	e.mu.RLock()
	rules := make([]*Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	doc, err := json.Marshal(snap)
	if err != nil {
		e.logger.Error("Failed to marshal snapshot", slog.Any("error", err))
		return nil
	}

	var fired []*dispatch.Notification
	for _, rule := range rules {
		ok, evalErr := e.safeEval(rule, snap)
		if evalErr != nil {
			e.logger.Error("Rule evaluation failed",
				slog.String("ruleID", rule.ID),
				slog.Any("error", evalErr),
			)
			e.events.Emit(bus.TypeRuleError, tenantID, map[string]interface{}{
				"ruleId": rule.ID,
				"reason": evalErr.Error(),
			})
			continue
		}
		if !ok {
			continue
		}

		message := ResolveTemplate(rule.Message, doc)
		n := dispatch.NewNotification(
			registry.TargetTenant,
			strconv.Itoa(tenantID),
			"dashboard:notification",
			map[string]interface{}{
				"ruleId":   rule.ID,
				"ruleName": rule.Name,
				"message":  message,
				"tenantId": tenantID,
			},
			rule.Priority,
		)
		fired = append(fired, n)
		metrics.RulesFired.WithLabelValues(rule.ID).Inc()

		e.history.Append(&HistoryEntry{
			ID:       n.ID,
			TenantID: tenantID,
			RuleID:   rule.ID,
			Message:  message,
			Priority: rule.Priority,
			FiredAt:  time.Now(),
		})

		e.deliver(ctx, rule, n, message)
	}
	return fired
}

// safeEval isolates a panicking condition so one broken rule cannot prevent
// the others from evaluating.
func (e *Engine) safeEval(rule *Rule, snap Snapshot) (fired bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ruleError{ruleID: rule.ID, cause: rec}
		}
	}()
	return rule.Condition(snap), nil
}

// deliver fans a fired notification out across the rule's channels. Partial
// channel failure is logged and does not block other channels.
func (e *Engine) deliver(ctx context.Context, rule *Rule, n *dispatch.Notification, message string) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(channelConcurrency)

	for _, ch := range rule.Channels {
		switch ch {
		case ChannelWebsocket:
			g.Go(func() error {
				e.dispatcher.Enqueue(n)
				return nil
			})
		case ChannelBrowser:
			g.Go(func() error {
				browser := dispatch.NewNotification(n.Target, n.TargetID, "browser:notification", n.Payload, n.Priority)
				e.dispatcher.Enqueue(browser)
				return nil
			})
		case ChannelEmail:
			g.Go(func() error {
				if err := e.mailer.Send("[TranSync] "+rule.Name, message); err != nil {
					e.logger.Error("Email delivery failed",
						slog.String("ruleID", rule.ID),
						slog.Any("error", err),
					)
				}
				return nil
			})
		default:
			e.logger.Warn("Unknown delivery channel", slog.String("channel", string(ch)))
		}
	}
	g.Wait()
}

// History returns up to limit retained notifications for a tenant.
func (e *Engine) History(tenantID, limit int) []HistoryEntry {
	return e.history.ForTenant(tenantID, limit)
}

func (e *Engine) MarkRead(id string) bool {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return e.history.MarkRead(uid)
}

func (e *Engine) Acknowledge(id string) bool {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return e.history.Acknowledge(uid)
}

// RuleCount reports the number of registered rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

type ruleError struct {
	ruleID string
	cause  any
}

func (e *ruleError) Error() string {
	return "rule '" + e.ruleID + "' panicked during evaluation"
}
