package models

import "time"

// SourceKind identifies where a channel's tracks come from.
type SourceKind string

const (
	SourceUnknown    SourceKind = "unknown"
	SourceURLList    SourceKind = "urls"
	SourceCD         SourceKind = "cd"
	SourceLocalUSB   SourceKind = "usb"
	SourceRemoteCIFS SourceKind = "cifs"
)

// Mountable reports whether the source sits behind a mount binding or the CD
// drive, i.e. whether a restored position can be seeked to.
func (k SourceKind) Mountable() bool {
	return k == SourceCD || k == SourceLocalUSB || k == SourceRemoteCIFS
}

// AuthData carries credentials for a CIFS share.
type AuthData struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// MediaBinding describes a mountable device and its mount state. At most one
// binding may be mounted on any given mount point, and the vfat and cifs
// bindings must use distinct mount points.
type MediaBinding struct {
	Device     string
	MountPoint string
	FSType     string // "vfat" or "cifs"
	Auth       *AuthData
	Version    string
	IsMounted  bool
}

// ChannelRecord is the resolved form of a channel: an ordered, non-empty list
// of playable URIs plus the metadata needed to display and replay it.
type ChannelRecord struct {
	Organisation    string
	Source          SourceKind
	Tracks          []string
	LastTrackIsDing bool
	PauseBeforePlay time.Duration
	Media           *MediaBinding
}

// TrackCount returns the number of real tracks, excluding a trailing ding.
func (r ChannelRecord) TrackCount() int {
	n := len(r.Tracks)
	if r.LastTrackIsDing && n > 0 {
		n--
	}
	return n
}

// ChannelFile is the on-disk shape of one station file. Missing fields stay
// empty; PlaylistDevice marks the file as a playlist-of-albums rather than a
// direct URL list.
type ChannelFile struct {
	Organisation   string   `toml:"organisation"`
	PauseBeforeMs  int64    `toml:"pause_before_playing_ms"`
	StationURL     []string `toml:"station_url"`
	PlaylistDevice string   `toml:"playlist_device"`
}

// PodcastSub is one persisted podcast subscription.
type PodcastSub struct {
	Title string `toml:"title"`
	URL   string `toml:"url"`
}

// PodcastEpisode is one entry parsed out of a fetched RSS feed.
type PodcastEpisode struct {
	Date     string `json:"date"`
	Subtitle string `json:"subtitle"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}
