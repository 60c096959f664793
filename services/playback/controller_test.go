package playback

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdradio/config"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
)

type fakePipe struct {
	uri          string
	states       []pipeline.State
	volumes      []float64
	seeks        []time.Duration
	position     time.Duration
	positionOK   bool
	posFailCount int
	bus          chan pipeline.Message
}

func newFakePipe() *fakePipe {
	return &fakePipe{bus: make(chan pipeline.Message, 8)}
}

func (f *fakePipe) SetURI(uri string) { f.uri = uri }
func (f *fakePipe) SetState(s pipeline.State) error {
	f.states = append(f.states, s)
	return nil
}
func (f *fakePipe) SetVolumeDB(db float64) error {
	f.volumes = append(f.volumes, db)
	return nil
}
func (f *fakePipe) QueryPosition() (time.Duration, bool) {
	if f.posFailCount > 0 {
		f.posFailCount--
		return 0, false
	}
	return f.position, f.positionOK
}
func (f *fakePipe) QueryDuration() (time.Duration, bool) { return 0, false }
func (f *fakePipe) Seek(to time.Duration) error {
	f.seeks = append(f.seeks, to)
	return nil
}
func (f *fakePipe) Bus() <-chan pipeline.Message { return f.bus }
func (f *fakePipe) Close() error                 { return nil }

func testController(pipe *fakePipe, settings config.Settings) *Controller {
	c := NewController(pipe, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetSleep(func(time.Duration) {})
	return c
}

func urlState(tracks ...string) *models.PlayerState {
	s := &models.PlayerState{Status: models.RunningNormally, Current: 1}
	s.Channels[1] = &models.ChannelRuntime{
		Record: models.ChannelRecord{
			Organisation: "BBC R4",
			Source:       models.SourceURLList,
			Tracks:       tracks,
		},
	}
	return s
}

func TestSetVolumeClampsAndConverts(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())

	assert.Equal(t, config.VolumeMax, c.SetVolume(500))
	assert.Equal(t, config.VolumeMin, c.SetVolume(-3))
	assert.Equal(t, 80, c.SetVolume(80))

	require.Len(t, pipe.volumes, 3)
	// 80 on the step scale is -20 dB against the zero reference.
	assert.Equal(t, float64(config.VolumeMax-config.VolumeZeroDB), pipe.volumes[0])
	assert.Equal(t, float64(config.VolumeMin-config.VolumeZeroDB), pipe.volumes[1])
	assert.Equal(t, -20.0, pipe.volumes[2])
}

func TestPlayTrackURLList(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("http://example/x", "http://example/y")

	require.NoError(t, c.PlayTrack(state, true))

	assert.Equal(t, "http://example/x", pipe.uri)
	assert.Equal(t, []pipeline.State{pipeline.StateNull, pipeline.StatePlaying}, pipe.states)
	// URL lists never seek, whatever position is stored.
	assert.Empty(t, pipe.seeks)
}

func TestPlayTrackRestoresPositionOnMountedMedia(t *testing.T) {
	pipe := newFakePipe()
	pipe.positionOK = true
	pipe.posFailCount = 3
	c := testController(pipe, config.DefaultSettings())

	state := &models.PlayerState{Status: models.RunningNormally, Current: 11}
	state.Channels[11] = &models.ChannelRuntime{
		Record: models.ChannelRecord{
			Source: models.SourceLocalUSB,
			Tracks: []string{"file:///m/a.mp3"},
		},
		Position: 42 * time.Second,
	}

	require.NoError(t, c.PlayTrack(state, true))
	assert.Equal(t, []time.Duration{42 * time.Second}, pipe.seeks)
}

func TestPlayTrackNoSeekWhenNotAllowed(t *testing.T) {
	pipe := newFakePipe()
	pipe.positionOK = true
	c := testController(pipe, config.DefaultSettings())

	state := &models.PlayerState{Status: models.RunningNormally, Current: 11}
	state.Channels[11] = &models.ChannelRuntime{
		Record:   models.ChannelRecord{Source: models.SourceCD, Tracks: []string{"cdda://1"}},
		Position: 30 * time.Second,
	}

	require.NoError(t, c.PlayTrack(state, false))
	assert.Empty(t, pipe.seeks)
}

func TestPlayTrackErrorStatusWithoutDingIsSilent(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("http://example/x")
	state.Status = models.NoChannel

	require.NoError(t, c.PlayTrack(state, true))
	assert.Empty(t, pipe.uri)
	// Only the reset transition happened.
	assert.Equal(t, []pipeline.State{pipeline.StateNull}, pipe.states)
}

func TestPlayTrackErrorStatusPlaysErrorDing(t *testing.T) {
	settings := config.DefaultSettings()
	settings.AuralNotifications.FilenameError = "/err.mp3"

	pipe := newFakePipe()
	c := testController(pipe, settings)
	state := urlState("http://example/x")
	state.Status = models.NoChannel
	state.Channels[models.DingChannel] = &models.ChannelRuntime{
		Record: models.ChannelRecord{Source: models.SourceURLList, Tracks: []string{"file:///err.mp3"}},
	}

	require.NoError(t, c.PlayTrack(state, true))
	assert.Equal(t, "file:///err.mp3", pipe.uri)
}

func TestPlayTrackEmptyChannel(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := &models.PlayerState{Status: models.RunningNormally, Current: 5}

	err := c.PlayTrack(state, true)
	var cerr *models.ChannelError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, models.ErrEmptyTrackList, cerr.Kind)
}

func TestNextTrackWrapsAround(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("a", "b", "c")
	rt := state.Channels[1]
	rt.Cursor = 2

	require.NoError(t, c.NextTrack(state))
	assert.Equal(t, 0, rt.Cursor)
	assert.Equal(t, "a", pipe.uri)
}

func TestPreviousTrackSeeksToZeroPastDelta(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("a", "b")
	rt := state.Channels[1]
	rt.Cursor = 1
	// Exactly at the delta still counts as "past".
	rt.Position = config.DefaultSettings().GotoPreviousTrackTimeDelta.Std()

	require.NoError(t, c.PreviousTrack(state))
	assert.Equal(t, 1, rt.Cursor)
	assert.Equal(t, []time.Duration{0}, pipe.seeks)
}

func TestPreviousTrackStepsBackWithWrap(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("a", "b")
	rt := state.Channels[1]
	rt.Cursor = 0
	rt.Position = time.Second

	require.NoError(t, c.PreviousTrack(state))
	assert.Equal(t, 1, rt.Cursor)
	assert.Equal(t, "b", pipe.uri)
}

func TestTogglePause(t *testing.T) {
	pipe := newFakePipe()
	c := testController(pipe, config.DefaultSettings())
	state := urlState("a")

	state.PipelineState = pipeline.StatePlaying
	require.NoError(t, c.TogglePause(state))
	state.PipelineState = pipeline.StatePaused
	require.NoError(t, c.TogglePause(state))

	assert.Equal(t, []pipeline.State{pipeline.StatePaused, pipeline.StatePlaying}, pipe.states)
}
