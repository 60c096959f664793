// Package playback wraps the media pipeline: volume, play/pause, track
// selection and the position-restoring seek after a channel switch.
package playback

import (
	"fmt"
	"log/slog"
	"time"

	"lcdradio/config"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
)

// How long to poll the pipeline for a reported position before seeking.
const (
	seekPollAttempts = 100
	seekPollInterval = 50 * time.Millisecond
)

// Controller owns the pipeline handle. All calls happen on the event loop.
type Controller struct {
	pipe     pipeline.Pipeline
	settings config.Settings
	log      *slog.Logger
	sleep    func(time.Duration)
}

func NewController(pipe pipeline.Pipeline, settings config.Settings, log *slog.Logger) *Controller {
	return &Controller{
		pipe:     pipe,
		settings: settings,
		log:      log,
		sleep:    time.Sleep,
	}
}

// SetSleep replaces the seek-poll sleeper, for tests.
func (c *Controller) SetSleep(f func(time.Duration)) { c.sleep = f }

// SetVolume clamps the requested volume and pushes the gain relative to the
// zero reference to the pipeline. The clamped value is returned.
func (c *Controller) SetVolume(db int) int {
	if db < config.VolumeMin {
		db = config.VolumeMin
	}
	if db > config.VolumeMax {
		db = config.VolumeMax
	}
	if err := c.pipe.SetVolumeDB(float64(db - config.VolumeZeroDB)); err != nil {
		c.log.Warn("volume push failed", "db", db, "error", err)
	}
	return db
}

// SetState forwards a state transition request.
func (c *Controller) SetState(s pipeline.State) error {
	return c.pipe.SetState(s)
}

// TogglePause flips the pipeline between Paused and Playing.
func (c *Controller) TogglePause(state *models.PlayerState) error {
	if state.PipelineState == pipeline.StatePlaying {
		return c.pipe.SetState(pipeline.StatePaused)
	}
	return c.pipe.SetState(pipeline.StatePlaying)
}

// PlayTrack plays the current track of the current channel. While an error
// status is showing, the effective channel is the ding slot; with no error
// ding configured nothing plays at all. When seekAllowed and the source is
// mounted media, the channel's stored position is restored by polling until
// the pipeline reports a position and then seeking.
func (c *Controller) PlayTrack(state *models.PlayerState, seekAllowed bool) error {
	if err := c.pipe.SetState(pipeline.StateNull); err != nil {
		c.log.Warn("pipeline reset failed", "error", err)
	}

	channel := state.Current
	switch state.Status {
	case models.NoChannel, models.NoChannelRepeated, models.LongMessageOnAll4Lines:
		if c.settings.AuralNotifications.FilenameError == "" {
			return nil
		}
		channel = models.DingChannel
	}

	if channel < 0 || channel >= models.NumChannels {
		return fmt.Errorf("no channel selected")
	}
	rt := state.Channels[channel]
	if rt == nil || len(rt.Record.Tracks) == 0 {
		return &models.ChannelError{Kind: models.ErrEmptyTrackList, Channel: channel}
	}
	if rt.Cursor < 0 || rt.Cursor >= len(rt.Record.Tracks) {
		return fmt.Errorf("track %d out of range for channel %d", rt.Cursor, channel)
	}

	c.pipe.SetURI(rt.Record.Tracks[rt.Cursor])
	if err := c.pipe.SetState(pipeline.StatePlaying); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	if seekAllowed && rt.Record.Source.Mountable() && rt.Position > 0 {
		c.restorePosition(rt)
	}
	return nil
}

func (c *Controller) restorePosition(rt *models.ChannelRuntime) {
	for i := 0; i < seekPollAttempts; i++ {
		if _, ok := c.pipe.QueryPosition(); ok {
			if err := c.pipe.Seek(rt.Position); err != nil {
				c.log.Warn("position restore failed", "position", rt.Position, "error", err)
			}
			return
		}
		c.sleep(seekPollInterval)
	}
	c.log.Warn("pipeline never reported a position, skipping seek")
}

// NextTrack advances the cursor with wraparound and plays from the start of
// the new track.
func (c *Controller) NextTrack(state *models.PlayerState) error {
	rt := state.CurrentRuntime()
	if rt == nil || len(rt.Record.Tracks) == 0 {
		return &models.ChannelError{Kind: models.ErrEmptyTrackList, Channel: state.Current}
	}
	rt.Cursor = (rt.Cursor + 1) % len(rt.Record.Tracks)
	rt.Position = 0
	return c.PlayTrack(state, false)
}

// PreviousTrack seeks to the start of the current track when playback has
// run past the configured delta, and otherwise steps back one track.
func (c *Controller) PreviousTrack(state *models.PlayerState) error {
	rt := state.CurrentRuntime()
	if rt == nil || len(rt.Record.Tracks) == 0 {
		return &models.ChannelError{Kind: models.ErrEmptyTrackList, Channel: state.Current}
	}
	if rt.Position >= c.settings.GotoPreviousTrackTimeDelta.Std() {
		rt.Position = 0
		return c.pipe.Seek(0)
	}
	n := len(rt.Record.Tracks)
	rt.Cursor = (rt.Cursor - 1 + n) % n
	rt.Position = 0
	return c.PlayTrack(state, false)
}

// Seek jumps to an absolute position on the current track.
func (c *Controller) Seek(to time.Duration) error {
	return c.pipe.Seek(to)
}

// QueryPosition proxies the pipeline's position query.
func (c *Controller) QueryPosition() (time.Duration, bool) {
	return c.pipe.QueryPosition()
}

// QueryDuration proxies the pipeline's duration query.
func (c *Controller) QueryDuration() (time.Duration, bool) {
	return c.pipe.QueryDuration()
}

// Close resets the pipeline to Null and releases it. Failures are logged,
// never propagated.
func (c *Controller) Close() {
	if err := c.pipe.SetState(pipeline.StateNull); err != nil {
		c.log.Warn("pipeline shutdown transition failed", "error", err)
	}
	if err := c.pipe.Close(); err != nil {
		c.log.Warn("pipeline close failed", "error", err)
	}
}
