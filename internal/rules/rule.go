package rules

import (
	"errors"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"
)

// Channel names a delivery path for a fired rule.
type Channel string

const (
	// ChannelWebsocket delivers a dashboard:notification event to the
	// tenant room.
	ChannelWebsocket Channel = "websocket"
	// ChannelBrowser delivers a browser:notification event so clients can
	// surface a native notification.
	ChannelBrowser Channel = "browser"
	// ChannelEmail sends a message to the configured operator address.
	ChannelEmail Channel = "email"
)

// Condition is a pure predicate over a snapshot. It must not retain the
// snapshot or touch shared state.
type Condition func(Snapshot) bool

// Rule is the declarative policy evaluated each cycle. Rules are registered
// at startup and immutable during normal operation.
type Rule struct {
	ID   string
	Name string
	// Condition decides whether the rule fires for a snapshot.
	Condition Condition
	// Message may embed {.path} references resolved against the snapshot
	// JSON, e.g. "{.stats.vehiculosEnMantenimiento} vehicles in maintenance".
	Message  string
	Priority dispatch.Priority
	Channels []Channel
}

var (
	ErrDuplicateRule = errors.New("rule id already registered")
	ErrInvalidRule   = errors.New("rule requires id, condition and at least one channel")
)

func (r *Rule) validate() error {
	if r == nil || r.ID == "" || r.Condition == nil || len(r.Channels) == 0 {
		return ErrInvalidRule
	}
	return nil
}
