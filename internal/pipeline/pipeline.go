// Package pipeline defines the narrow contract this program has with the
// media-decoding pipeline: a handful of states, a command surface and a
// message bus. The decoder itself is a black box behind the Pipeline
// interface.
package pipeline

import "time"

// State mirrors the pipeline's playback states.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "Void"
	case StateNull:
		return "Null"
	case StateReady:
		return "Ready"
	case StatePaused:
		return "Paused"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// MessageKind tags messages coming off the pipeline bus.
type MessageKind int

const (
	MessageTag MessageKind = iota
	MessageStateChanged
	MessageEos
	MessageError
	MessageBuffering
)

// Message is one item read off the pipeline's bus. Only the fields relevant
// to its kind are populated.
type Message struct {
	Kind MessageKind

	// MessageTag
	TagName  string // "title", "organization", "artist"
	TagValue string

	// MessageStateChanged
	State State
	// FromPlaybin is true when the state change originates from the playbin
	// element itself rather than one of its children.
	FromPlaybin bool

	// MessageError
	ErrorText string

	// MessageBuffering
	Percent int
}

// Pipeline is the command surface of the media decoder. Implementations run
// their own threads internally and report everything through Bus.
type Pipeline interface {
	// SetURI installs the track to decode next. Takes effect on the next
	// transition to StatePlaying.
	SetURI(uri string)
	// SetState requests a state transition and returns the pipeline's
	// immediate verdict; asynchronous completions arrive on the bus.
	SetState(s State) error
	// SetVolumeDB pushes a volume in dB relative to the zero reference.
	SetVolumeDB(db float64) error
	// QueryPosition reports the current stream position; ok is false while
	// the pipeline cannot answer yet.
	QueryPosition() (pos time.Duration, ok bool)
	// QueryDuration reports the total duration; infinite streams have none.
	QueryDuration() (d time.Duration, ok bool)
	// Seek issues a flushing, key-unit, nearest-snap seek.
	Seek(to time.Duration) error
	// Bus yields pipeline messages in emission order. It is closed when the
	// pipeline shuts down.
	Bus() <-chan Message
	// Close transitions the pipeline to StateNull and releases it.
	Close() error
}
