package models

// EventKind names the commands the event loop accepts, whichever surface
// they arrive from.
type EventKind int

const (
	EventNone EventKind = iota
	EventSelectChannel
	EventPlayPause
	EventVolumeUp
	EventVolumeDown
	EventSetVolume
	EventPreviousTrack
	EventNextTrack
	EventEject
	EventShowStatus
	EventBlankScreen
	EventDumpMounts
	EventPodcastNext
	EventPodcastPrevious
	EventPlayPodcast
	EventSeek
	EventShutdown
)

// Event is one command for the event loop. Channel is meaningful for
// EventSelectChannel, Volume for EventSetVolume, URL and Title for
// EventPlayPodcast, and Position for EventSeek.
type Event struct {
	Kind     EventKind
	Channel  int
	Volume   int
	URL      string
	Title    string
	Position int // milliseconds
}

// DataChanged is broadcast to web subscribers whenever the player state
// moves. It is a trimmed, serialisable view of PlayerState.
type DataChanged struct {
	Status        string `json:"status"`
	Channel       int    `json:"channel"`
	Organisation  string `json:"organisation,omitempty"`
	Title         string `json:"title,omitempty"`
	Artist        string `json:"artist,omitempty"`
	TrackIndex    int    `json:"track_index"`
	TrackCount    int    `json:"track_count"`
	VolumeDB      int    `json:"volume_db"`
	PipelineState string `json:"pipeline_state"`
	BufferPercent int    `json:"buffer_percent"`
	PositionSecs  int    `json:"position_secs"`
	DurationSecs  int    `json:"duration_secs,omitempty"`
	PingTarget    string `json:"ping_target,omitempty"`
	PingMs        int    `json:"ping_ms,omitempty"`
	Error         string `json:"error,omitempty"`
}
