package scheduler

type State int

const (
	IdleState State = iota
	SelectingState
	PlayingState
	RecordingState
	StoppedState
)

func (s State) String() string {
	switch s {
	case IdleState:
		return "idle"
	case SelectingState:
		return "selecting"
	case PlayingState:
		return "playing"
	case RecordingState:
		return "recording"
	case StoppedState:
		return "stopped"
	default:
		return "unknown"
	}
}
