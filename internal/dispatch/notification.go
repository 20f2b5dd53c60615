package dispatch

import (
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
	"github.com/google/uuid"
)

// Priority is advisory metadata for client-side rendering. The dispatcher
// never reorders by priority; FIFO is preserved for determinism.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s)
	}
	return PriorityMedium
}

// Notification is one unit of outbound work. Attempts is incremented on each
// delivery try; the retry bound is checked against it directly rather than
// inferred from queue position.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	Target    registry.TargetKind    `json:"target"`
	TargetID  string                 `json:"targetId"`
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	Priority  Priority               `json:"priority"`
	CreatedAt time.Time              `json:"createdAt"`
	SenderID  string                 `json:"senderId,omitempty"`
	Attempts  int                    `json:"-"`
}

func NewNotification(target registry.TargetKind, targetID, event string, payload map[string]interface{}, priority Priority) *Notification {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Notification{
		ID:        uuid.New(),
		Target:    target,
		TargetID:  targetID,
		Event:     event,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}
