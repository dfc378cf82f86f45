package supervisor

// State is one of the six states StatusInfo.status can report.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCrashed     State = "crashed"
	StateRestarting  State = "restarting"
	StateStopped     State = "stopped"
	StateMaxRestarts State = "max_restarts"
)

// StatusInfo is a point-in-time, self-consistent snapshot of the
// supervisor's state. Status() returns a copy; callers never observe a
// partially-updated snapshot.
type StatusInfo struct {
	Status          State    `json:"status"`
	Mode            string   `json:"mode"`
	ExePath         string   `json:"exePath"`
	PID             *int     `json:"pid"`
	UptimeMs        int64    `json:"uptimeMs"`
	TotalCrashes    int      `json:"totalCrashes"`
	RecentCrashes   int      `json:"recentCrashes"`
	BackoffMs       int      `json:"backoffMs"`
	LastHealthCheck *int64   `json:"lastHealthCheck"`
	HealthCheckOk   bool     `json:"healthCheckOk"`
	Memory          *uint64  `json:"memory"`
	CPU             *float64 `json:"cpu"`
	RunID           string   `json:"runID"`
}
