package rules

import "github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/dispatch"

// DefaultRules are the built-in dashboard policies registered at startup.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:   "vehicle_maintenance",
			Name: "Vehicles in maintenance",
			Condition: func(s Snapshot) bool {
				return s.Stats.VehiculosEnMantenimiento > 0
			},
			Message:  "{.stats.vehiculosEnMantenimiento} vehicle(s) currently in maintenance",
			Priority: dispatch.PriorityMedium,
			Channels: []Channel{ChannelWebsocket},
		},
		{
			ID:   "inactive_drivers",
			Name: "Inactive drivers",
			Condition: func(s Snapshot) bool {
				return s.Stats.ConductoresInactivos > 0
			},
			Message:  "{.stats.conductoresInactivos} driver(s) are inactive",
			Priority: dispatch.PriorityMedium,
			Channels: []Channel{ChannelWebsocket, ChannelBrowser},
		},
		{
			ID:   "critical_alerts",
			Name: "Critical fleet alerts",
			Condition: func(s Snapshot) bool {
				return len(s.CriticalAlerts()) > 0
			},
			Message:  "Critical fleet alerts require attention",
			Priority: dispatch.PriorityHigh,
			Channels: []Channel{ChannelWebsocket, ChannelBrowser, ChannelEmail},
		},
		{
			ID:   "no_active_routes",
			Name: "No active routes",
			Condition: func(s Snapshot) bool {
				return s.Stats.RutasActivas == 0 && s.Stats.VehiculosActivos > 0
			},
			Message:  "No routes are active while {.stats.vehiculosActivos} vehicle(s) are available",
			Priority: dispatch.PriorityLow,
			Channels: []Channel{ChannelWebsocket},
		},
	}
}
