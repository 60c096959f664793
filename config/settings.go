package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Volume limits in dB steps. The zero-gain reference sits at VolumeZeroDB so
// the pipeline gain is volume - VolumeZeroDB.
const (
	VolumeMin    = 0
	VolumeMax    = 120
	VolumeZeroDB = 100
)

// Duration accepts humane TOML values like "3s" or "1600ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings is the application configuration read from config.toml.
type Settings struct {
	StationsDirectory string   `toml:"stations_directory"`
	InputTimeout      Duration `toml:"input_timeout"`
	VolumeOffset      int      `toml:"volume_offset"`
	InitialVolume     int      `toml:"initial_volume"`
	BufferingDuration Duration `toml:"buffering_duration,omitempty"`

	GotoPreviousTrackTimeDelta Duration `toml:"goto_previous_track_time_delta"`

	// How long the channel-change banner stays on screen before the normal
	// track display takes over.
	TimeInitialMessageDisplayedAfterChannelChange Duration `toml:"time_initial_message_displayed_after_channel_change"`

	PauseBeforePlayingIncrement Duration `toml:"pause_before_playing_increment"`
	MaxPauseBeforePlaying       Duration `toml:"max_pause_before_playing"`

	MaxNumberOfRemotePings int `toml:"max_number_of_remote_pings"`

	Scroll             ScrollSettings     `toml:"scroll"`
	AuralNotifications AuralNotifications `toml:"aural_notifications"`

	CDChannelNumber *int          `toml:"cd_channel_number,omitempty"`
	USB             *MediaDetails `toml:"usb,omitempty"`
	Samba           *MediaDetails `toml:"samba,omitempty"`
}

// MediaDetails binds a channel number to a mountable device.
type MediaDetails struct {
	ChannelNumber int       `toml:"channel_number"`
	Device        string    `toml:"device"`
	Auth          *AuthData `toml:"authentication_data,omitempty"`
	Version       string    `toml:"version,omitempty"`
	MountFolder   string    `toml:"mount_folder"`
}

// AuthData carries CIFS credentials.
type AuthData struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// ScrollSettings tune the line scroller.
type ScrollSettings struct {
	MaxScroll      int `toml:"max_scroll"`
	MinScroll      int `toml:"min_scroll"`
	ScrollPeriodMS int `toml:"scroll_period_ms"`
}

func (s ScrollSettings) Period() time.Duration {
	return time.Duration(s.ScrollPeriodMS) * time.Millisecond
}

// AuralNotifications name the sound files played for key lifecycle moments.
// All are optional; an empty field disables that sound.
type AuralNotifications struct {
	FilenameStartup              string `toml:"filename_startup,omitempty"`
	FilenameError                string `toml:"filename_error,omitempty"`
	FilenameSoundAtEndOfPlaylist string `toml:"filename_sound_at_end_of_playlist,omitempty"`
}

// DefaultSettings returns sane defaults for a unit with no config file edits.
func DefaultSettings() Settings {
	return Settings{
		StationsDirectory:          "/boot/playlists",
		InputTimeout:               Duration(3 * time.Second),
		VolumeOffset:               5,
		InitialVolume:              70,
		GotoPreviousTrackTimeDelta: Duration(2 * time.Second),
		TimeInitialMessageDisplayedAfterChannelChange: Duration(2 * time.Second),
		PauseBeforePlayingIncrement:                   Duration(1 * time.Second),
		MaxPauseBeforePlaying:                         Duration(5 * time.Second),
		MaxNumberOfRemotePings:                        10,
		Scroll: ScrollSettings{
			MaxScroll:      14,
			MinScroll:      6,
			ScrollPeriodMS: 1600,
		},
	}
}

// Load reads and validates the config file. The returned error text is shown
// on the LCD, so it stays short.
func Load(fs afero.Fs, path string) (Settings, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config %s: %w", path, err)
	}
	s := DefaultSettings()
	if err := toml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(fs); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the cross-field rules that a TOML decode cannot.
func (s *Settings) Validate(fs afero.Fs) error {
	for _, sound := range []struct {
		key  string
		path string
	}{
		{"filename_startup", s.AuralNotifications.FilenameStartup},
		{"filename_error", s.AuralNotifications.FilenameError},
		{"filename_sound_at_end_of_playlist", s.AuralNotifications.FilenameSoundAtEndOfPlaylist},
	} {
		if sound.path == "" {
			continue
		}
		if ok, err := afero.Exists(fs, sound.path); err != nil || !ok {
			return fmt.Errorf("%s %q specified but not found", sound.key, sound.path)
		}
	}

	if s.USB != nil && s.Samba != nil && s.USB.MountFolder == s.Samba.MountFolder {
		return errors.New("usb and samba mount_folder must differ")
	}
	for _, media := range []*MediaDetails{s.USB, s.Samba} {
		if media == nil {
			continue
		}
		if media.ChannelNumber < 0 || media.ChannelNumber > 99 {
			return fmt.Errorf("channel_number %d out of range 0-99", media.ChannelNumber)
		}
		if media.MountFolder == "" {
			return errors.New("mount_folder must be set")
		}
		if ok, err := afero.DirExists(fs, media.MountFolder); err != nil || !ok {
			return fmt.Errorf("mount_folder %q does not exist", media.MountFolder)
		}
	}
	if s.CDChannelNumber != nil && (*s.CDChannelNumber < 0 || *s.CDChannelNumber > 99) {
		return fmt.Errorf("cd_channel_number %d out of range 0-99", *s.CDChannelNumber)
	}
	if s.InitialVolume < VolumeMin || s.InitialVolume > VolumeMax {
		return fmt.Errorf("initial_volume %d out of range %d-%d", s.InitialVolume, VolumeMin, VolumeMax)
	}
	if s.Scroll.MinScroll <= 0 || s.Scroll.MaxScroll <= s.Scroll.MinScroll {
		return errors.New("scroll requires 0 < min_scroll < max_scroll")
	}
	return nil
}
