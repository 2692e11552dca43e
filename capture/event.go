package capture

import "fmt"

type EventKind int

const (
	// EventCapture writes the current view as an interactive scan.
	EventCapture EventKind = iota
	// EventQuit ends the loop.
	EventQuit
	// EventMove moves the camera along its axis by Delta steps.
	EventMove
	// EventProbe samples the depth under pixel X, Y and logs it.
	EventProbe
	// EventSnapshot writes the last preview frame to Path as PNG.
	EventSnapshot
)

func (k EventKind) String() string {
	switch k {
	case EventCapture:
		return "capture"
	case EventQuit:
		return "quit"
	case EventMove:
		return "move"
	case EventProbe:
		return "probe"
	case EventSnapshot:
		return "snapshot"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a user request handled at the start of the next tick.
type Event struct {
	Kind  EventKind
	Delta float64
	X, Y  float64
	Path  string
}
