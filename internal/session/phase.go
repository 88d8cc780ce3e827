package session

import "fmt"

// Phase is the lifecycle state of a Store.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelectingFiles
	PhaseUploading
	PhaseActive
	PhaseEndingSession
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseSelectingFiles: "selecting_files",
	PhaseUploading:      "uploading",
	PhaseActive:         "active",
	PhaseEndingSession:  "ending_session",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}

// transitions lists every edge a Store may take through a normal operation.
// Uploading and EndingSession cannot be skipped: each edge into or out of
// Active costs exactly one network attempt. The forced return to Idle on
// unload is not listed here; only Store.Abandon takes it.
var transitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseSelectingFiles},
	PhaseSelectingFiles: {PhaseSelectingFiles, PhaseUploading, PhaseIdle},
	PhaseUploading:      {PhaseActive, PhaseSelectingFiles},
	PhaseActive:         {PhaseEndingSession},
	PhaseEndingSession:  {PhaseIdle, PhaseActive},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
