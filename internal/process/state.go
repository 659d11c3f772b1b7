package process

// State is the lifecycle state of a managed subprocess.
type State string

// Process states.
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Gauge maps a state to the numeric value exported as a metric.
func (s State) Gauge() int {
	switch s {
	case StateStarting:
		return 1
	case StateRunning:
		return 2
	case StateStopping:
		return 3
	case StateError:
		return 4
	default:
		return 0
	}
}
