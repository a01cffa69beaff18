package session

import "fmt"

// State is a step of the two-hop exchange
type State int

const (
	Idle State = iota
	DirConnecting
	DirAuthenticating
	AwaitingRedirect
	SensorConnecting
	SensorAuthenticating
	AwaitingAuthAck
	QuerySent
	AwaitingReading
	Done
	Failed
)

var stateNames = [...]string{
	Idle:                 "idle",
	DirConnecting:        "connecting to directory",
	DirAuthenticating:    "authenticating with directory",
	AwaitingRedirect:     "awaiting redirect",
	SensorConnecting:     "connecting to sensor",
	SensorAuthenticating: "authenticating with sensor",
	AwaitingAuthAck:      "awaiting sensor acknowledgment",
	QuerySent:            "sending query",
	AwaitingReading:      "awaiting reading",
	Done:                 "done",
	Failed:               "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
