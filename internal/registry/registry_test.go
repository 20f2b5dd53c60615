package registry_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/registry"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// newTransportConn builds a transport connection without a real socket; the
// send buffer absorbs routed frames.
func newTransportConn() *transport.Connection {
	var wg sync.WaitGroup
	return transport.NewConnection(context.Background(), &wg, nil, transport.ConnectionConfig{SendBuffer: 16}, nil, nil, newTestLogger())
}

func register(t *testing.T, r *registry.Registry, userID string, tenantID int, role string) *registry.Connection {
	t.Helper()
	conn, _, err := r.Register(registry.Claims{UserID: userID, TenantID: tenantID, Role: role}, newTransportConn())
	require.NoError(t, err)
	return conn
}

func TestRegisterRequiresCompleteClaims(t *testing.T) {
	r := registry.New(newTestLogger())

	cases := []registry.Claims{
		{TenantID: 1, Role: "admin"},  // missing user
		{UserID: "u1", Role: "admin"}, // missing tenant
		{UserID: "u1", TenantID: 1},   // missing role
		{},
	}
	for _, claims := range cases {
		_, _, err := r.Register(claims, newTransportConn())
		assert.ErrorIs(t, err, registry.ErrIncompleteIdentity)
	}
	assert.Equal(t, 0, r.Stats().TotalConnections, "rejected identities must not join rooms")
}

func TestRoomIsolationBetweenTenants(t *testing.T) {
	r := registry.New(newTestLogger())
	register(t, r, "alice", 1, "admin")
	register(t, r, "bob", 2, "admin")

	delivered, err := r.Route(registry.TargetTenant, "1", "dashboard:notification", map[string]interface{}{"m": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered, "tenant 2 connection must never receive tenant 1 traffic")
}

func TestRouteTargets(t *testing.T) {
	r := registry.New(newTestLogger())
	register(t, r, "alice", 1, "admin")
	register(t, r, "bob", 1, "driver")
	register(t, r, "carol", 2, "driver")

	delivered, err := r.Route(registry.TargetTenant, "1", "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	delivered, err = r.Route(registry.TargetUser, "bob", "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	delivered, err = r.Route(registry.TargetRole, "driver", "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	delivered, err = r.Route(registry.TargetBroadcast, "", "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
}

func TestRouteEmptyRoomIsError(t *testing.T) {
	r := registry.New(newTestLogger())
	register(t, r, "alice", 1, "admin")

	_, err := r.Route(registry.TargetTenant, "99", "ev", nil)
	assert.ErrorIs(t, err, registry.ErrNoRecipients)
}

func TestSingleSessionPerUser(t *testing.T) {
	r := registry.New(newTestLogger())

	first := register(t, r, "alice", 1, "admin")

	second, replaced, err := r.Register(registry.Claims{UserID: "alice", TenantID: 1, Role: "admin"}, newTransportConn())
	require.NoError(t, err)
	require.NotNil(t, replaced, "second registration must surface the replaced session")
	assert.Equal(t, first.ID, replaced.ID)

	// Only the new session remains reachable in any room.
	assert.Equal(t, 1, r.Stats().TotalConnections)
	delivered, err := r.Route(registry.TargetUser, "alice", "ev", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	_, found := r.Get(first.ID)
	assert.False(t, found)
	_, found = r.Get(second.ID)
	assert.True(t, found)
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	r := registry.New(newTestLogger())
	conn := register(t, r, "alice", 1, "admin")

	assert.True(t, r.Unregister(conn.ID))
	assert.False(t, r.IsUserConnected("alice"))

	_, err := r.Route(registry.TargetTenant, "1", "ev", nil)
	assert.ErrorIs(t, err, registry.ErrNoRecipients)
	_, err = r.Route(registry.TargetRole, "admin", "ev", nil)
	assert.ErrorIs(t, err, registry.ErrNoRecipients)

	assert.False(t, r.Unregister(conn.ID), "second unregister is a no-op")
}

func TestStats(t *testing.T) {
	r := registry.New(newTestLogger())
	register(t, r, "alice", 1, "admin")
	register(t, r, "bob", 1, "driver")
	register(t, r, "carol", 2, "driver")

	stats := r.Stats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ByTenant["1"])
	assert.Equal(t, 1, stats.ByTenant["2"])
	assert.Equal(t, 2, stats.ByRole["driver"])
	assert.Equal(t, 1, stats.ByRole["admin"])
}

func TestSweepInactive(t *testing.T) {
	r := registry.New(newTestLogger())
	stale := register(t, r, "alice", 1, "admin")
	fresh := register(t, r, "bob", 1, "driver")

	// Age out alice by sweeping with a zero-ish timeout after touching bob.
	time.Sleep(5 * time.Millisecond)
	fresh.Transport.Touch()
	_ = stale

	removed := r.SweepInactive(2 * time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.False(t, r.IsUserConnected("alice"))
	assert.True(t, r.IsUserConnected("bob"))
}

func TestRoomsDerivation(t *testing.T) {
	r := registry.New(newTestLogger())
	conn := register(t, r, "alice", 7, "admin")

	rooms := conn.Rooms()
	assert.Equal(t, [3]string{"tenant:7", "user:alice", "role:admin"}, rooms)
}
