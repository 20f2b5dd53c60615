package rules

import "time"

// GeneralStats is the slow-moving aggregate view of a tenant's fleet.
type GeneralStats struct {
	VehiculosActivos         int `json:"vehiculosActivos"`
	VehiculosEnMantenimiento int `json:"vehiculosEnMantenimiento"`
	ConductoresActivos       int `json:"conductoresActivos"`
	ConductoresInactivos     int `json:"conductoresInactivos"`
	RutasActivas             int `json:"rutasActivas"`
	ViajesProgramados        int `json:"viajesProgramados"`
}

// RealtimeStats carries the volatile counters refreshed every few seconds.
type RealtimeStats struct {
	ViajesEnCurso     int `json:"viajesEnCurso"`
	ConexionesActivas int `json:"conexionesActivas"`
	AlertasPendientes int `json:"alertasPendientes"`
}

// Alert is one active fleet alert as computed by the external data layer.
type Alert struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"` // info | warning | critical
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

const SeverityCritical = "critical"

// Snapshot is a read-only bundle of freshly computed aggregate views supplied
// by the external data layer. The engine never queries storage itself.
type Snapshot struct {
	Stats    GeneralStats  `json:"stats"`
	Realtime RealtimeStats `json:"realtime"`
	Alerts   []Alert       `json:"alerts"`
}

// CriticalAlerts returns the subset of alerts with critical severity.
func (s Snapshot) CriticalAlerts() []Alert {
	var out []Alert
	for _, a := range s.Alerts {
		if a.Severity == SeverityCritical {
			out = append(out, a)
		}
	}
	return out
}
