package pipeline

import "encoding/json"

// State is the orchestrator lifecycle state.
type State int32

const (
	Uninitialized State = iota
	ChannelsReady
	Running
	FaultHalted
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	ChannelsReady: "channels-ready",
	Running:       "running",
	FaultHalted:   "fault-halted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
