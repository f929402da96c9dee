package sim

import "time"

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// DeviceStatus accumulates per-device delivery stats for one run. Failures
// never abort the session; the next tick's push is the effective retry.
type DeviceStatus struct {
	Pushes    int64  `json:"pushes"`
	Failures  int64  `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Snapshot is a read-consistent copy of the session state. The engine only
// produces snapshots; delivery to subscribers is the publisher's business.
type Snapshot struct {
	SessionID    string                  `json:"session_id,omitempty"`
	State        string                  `json:"state"`
	Running      bool                    `json:"running"`
	CurrentIndex int                     `json:"current_index"`
	PointCount   int                     `json:"total_points"`
	Loop         bool                    `json:"loop"`
	Speed        float64                 `json:"speed_multiplier,omitempty"`
	CurrentLat   *float64                `json:"current_lat"`
	CurrentLon   *float64                `json:"current_lon"`
	Devices      map[string]DeviceStatus `json:"devices,omitempty"`
	Degraded     bool                    `json:"degraded,omitempty"`
	Error        string                  `json:"error,omitempty"`
	StartedAt    time.Time               `json:"started_at,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at,omitempty"`
}
