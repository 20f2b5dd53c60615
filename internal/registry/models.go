package registry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/transport"
	"github.com/google/uuid"
)

// TargetKind selects which room class a message is routed to.
type TargetKind string

const (
	TargetTenant    TargetKind = "tenant"
	TargetUser      TargetKind = "user"
	TargetRole      TargetKind = "role"
	TargetBroadcast TargetKind = "broadcast"
)

func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(s) {
	case TargetTenant, TargetUser, TargetRole, TargetBroadcast:
		return TargetKind(s), nil
	}
	return "", fmt.Errorf("unknown target kind '%s'", s)
}

// Claims is the verified identity extracted from the handshake token.
// All three fields are mandatory; the registry rejects incomplete claims.
type Claims struct {
	UserID   string
	TenantID int
	Role     string
}

// Connection is a live, authenticated session tracked by the registry.
type Connection struct {
	ID          uuid.UUID
	UserID      string
	TenantID    int
	Role        string
	ConnectedAt time.Time
	Transport   *transport.Connection
}

// Rooms returns the three derived room names this connection belongs to.
// Membership is computed from the connection's attributes, never stored.
func (c *Connection) Rooms() [3]string {
	return [3]string{
		"tenant:" + strconv.Itoa(c.TenantID),
		"user:" + c.UserID,
		"role:" + c.Role,
	}
}

// inRoom reports whether this connection is a member of the target room.
func (c *Connection) inRoom(kind TargetKind, targetID string) bool {
	switch kind {
	case TargetBroadcast:
		return true
	case TargetTenant:
		return strconv.Itoa(c.TenantID) == targetID
	case TargetUser:
		return c.UserID == targetID
	case TargetRole:
		return c.Role == targetID
	}
	return false
}

// ConnectionInfo is the JSON projection served by the admin clients endpoint.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	TenantID      int       `json:"tenantId"`
	Role          string    `json:"role"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// Stats summarizes the live connection population.
type Stats struct {
	TotalConnections int            `json:"totalConnections"`
	ByTenant         map[string]int `json:"byTenant"`
	ByRole           map[string]int `json:"byRole"`
}
