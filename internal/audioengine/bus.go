// ABOUTME: Pipeline bus event types
// ABOUTME: Mirrors the async notifications a media pipeline posts during playback
package audioengine

// BusEventKind identifies the kind of asynchronous notification a
// pipeline posted to its bus.
type BusEventKind int

const (
	Eos BusEventKind = iota
	ErrorEvent
	Warning
	Buffering
	StateChanged
	AsyncDone
	StreamStart
)

func (k BusEventKind) String() string {
	switch k {
	case Eos:
		return "eos"
	case ErrorEvent:
		return "error"
	case Warning:
		return "warning"
	case Buffering:
		return "buffering"
	case StateChanged:
		return "state-changed"
	case AsyncDone:
		return "async-done"
	case StreamStart:
		return "stream-start"
	default:
		return "unknown"
	}
}

// BusEvent is one posted notification, with an optional human-readable
// detail (an error message, a buffering percentage, and so on).
type BusEvent struct {
	Kind   BusEventKind
	Detail string
}
