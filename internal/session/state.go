package session

import "fmt"

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	LoadingDevices
	Starting
	Scanning
	Stopped
	// Failed is transient: the session reports it and moves straight to Idle.
	Failed
)

// Status texts shown to the user.
const (
	StatusIdle           = "Press start to begin scanning"
	StatusLoading        = "Loading cameras..."
	StatusStarting       = "Starting camera..."
	StatusReady          = "Ready to scan"
	StatusDetected       = "Barcode detected!"
	StatusAlreadyScanned = "Already scanned"
	StatusStopped        = "Scanning stopped"
)

var stateNames = map[State]string{
	Idle:           "idle",
	LoadingDevices: "loading_devices",
	Starting:       "starting",
	Scanning:       "scanning",
	Stopped:        "stopped",
	Failed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Capturing reports whether the state owns or is acquiring a stream.
func (s State) Capturing() bool {
	return s == Starting || s == Scanning
}

// StateNames lists every state name in declaration order.
func StateNames() []string {
	return []string{
		Idle.String(),
		LoadingDevices.String(),
		Starting.String(),
		Scanning.String(),
		Stopped.String(),
		Failed.String(),
	}
}
