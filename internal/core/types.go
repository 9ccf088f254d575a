package core

// Status represents the outcome of a script or handler run.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// StatusOf maps a handler error to the status reported on completion.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case IsStop(err):
		return StatusStopped
	default:
		return StatusFailure
	}
}

// Kind distinguishes the stage from sprites.
type Kind string

const (
	KindStage  Kind = "stage"
	KindSprite Kind = "sprite"
)
