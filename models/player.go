package models

import (
	"time"

	"lcdradio/internal/pipeline"
)

// Channel numbering. Keyed channels occupy 0 through 99; the two slots past
// that are reserved for the podcast player and the startup ding.
const (
	NumChannels    = 102
	PodcastChannel = 100
	DingChannel    = 101
)

// RunStatus selects which screen layout the display renderer composes.
type RunStatus int

const (
	StartingUp RunStatus = iota
	RunningNormally
	NoChannel
	NoChannelRepeated
	LongMessageOnAll4Lines
	ShuttingDown
)

func (s RunStatus) String() string {
	switch s {
	case StartingUp:
		return "starting"
	case RunningNormally:
		return "running"
	case NoChannel:
		return "no channel"
	case NoChannelRepeated:
		return "no channel repeated"
	case LongMessageOnAll4Lines:
		return "error"
	case ShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// PingWhere says which host the ping prober is currently working on.
type PingWhere int

const (
	PingNothing PingWhere = iota
	PingLocal
	PingRemote
)

// PingOutcome is the lifecycle of a single ping request.
type PingOutcome int

const (
	PingNotSent PingOutcome = iota
	PingSent
	PingResponseReceived
	PingTimedOut
)

// PingData is the latest reading from the connectivity prober.
type PingData struct {
	Where   PingWhere
	Outcome PingOutcome
	// Round-trip time of the last answered ping.
	RTT time.Duration
	// Target is the host the reading refers to.
	Target string
}

// NetworkData is gathered once at startup and refreshed opportunistically.
type NetworkData struct {
	LocalIP      string
	Gateway      string
	Interface    string
	SSID         string
	WiFiStrength string
	CPUTempC     int
	Throttled    string
}

// ChannelRuntime is the mutable playback state of one resolved channel.
// Resolution fills Record; the event loop owns the rest.
type ChannelRuntime struct {
	Record ChannelRecord
	// Cursor indexes Record.Tracks for the track being played.
	Cursor int

	Position time.Duration
	Duration time.Duration
	// DurationKnown is false for live streams.
	DurationKnown bool

	// Stream metadata as it arrives from the decoder.
	Title        string
	Artist       string
	Organisation string
}

// CurrentTrack returns the track under the cursor, or "" when the list is
// empty or the cursor has run off the end.
func (c *ChannelRuntime) CurrentTrack() string {
	if c.Cursor < 0 || c.Cursor >= len(c.Record.Tracks) {
		return ""
	}
	return c.Record.Tracks[c.Cursor]
}

// PlayerState is the single authoritative snapshot of the whole appliance.
// It is owned by the event loop; everyone else sees copies.
type PlayerState struct {
	Status RunStatus
	// LongMessage is shown across all four lines while Status is
	// LongMessageOnAll4Lines.
	LongMessage string

	// Channels caches every channel resolved so far, by number.
	Channels [NumChannels]*ChannelRuntime
	// Current is the channel number being played, or -1 before the first
	// successful channel selection.
	Current int

	// VolumeDB is held in integer dB steps offset so that the zero-gain
	// point sits at VolumeZeroDB.
	VolumeDB int

	PipelineState pipeline.State
	// Buffering percent as last reported, 0..100.
	BufferPercent int
	Muted         bool

	// PausedBeforePlaying is set while a channel's configured startup
	// delay is still running down.
	PausedBeforePlaying bool

	Network NetworkData
	Ping    PingData

	// Podcast browsing state for the reserved podcast channel.
	PodcastSubs  []PodcastSub
	PodcastIndex int

	// LastError is shown on the error screens until the next key press.
	LastError *ChannelError
}

// CurrentRuntime returns the runtime of the channel being played, or nil.
func (s *PlayerState) CurrentRuntime() *ChannelRuntime {
	if s.Current < 0 || s.Current >= NumChannels {
		return nil
	}
	return s.Channels[s.Current]
}
