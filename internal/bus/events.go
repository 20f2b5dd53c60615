package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a class of domain-change notice.
type EventType string

const (
	// TypeAny matches every emission; listeners registered for it receive
	// all events regardless of type.
	TypeAny EventType = "*"

	TypeVehicleChanged  EventType = "vehicle.changed"
	TypeDriverChanged   EventType = "driver.changed"
	TypeRouteChanged    EventType = "route.changed"
	TypeScheduleChanged EventType = "schedule.changed"
	TypeUserChanged     EventType = "user.changed"

	TypeDashboardRefresh   EventType = "dashboard.refresh"
	TypeNotificationFailed EventType = "notification.failed"
	TypeRuleError          EventType = "rule.error"
)

// Event is an internal change notice fanned out to listeners and appended to
// the rolling history.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	TenantID  int       `json:"tenantId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ListenerFunc receives events synchronously on the emitter's call stack.
type ListenerFunc func(Event)

// SubscribeOptions controls listener matching and lifecycle.
type SubscribeOptions struct {
	// TenantID restricts delivery to events carrying this tenant id.
	// Zero means no filter.
	TenantID int
	// Persistent listeners survive until explicitly removed; transient
	// ones are subject to bulk cleanup.
	Persistent bool
}
