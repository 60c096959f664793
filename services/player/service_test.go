package player

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdradio/config"
	"lcdradio/internal/cdrom"
	"lcdradio/internal/display"
	"lcdradio/internal/mount"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
	"lcdradio/services/catalog"
	"lcdradio/services/playback"
	"lcdradio/services/resolve"
)

type fakePipe struct {
	uris   []string
	states []pipeline.State
	vols   []float64
	seeks  []time.Duration
	pos    time.Duration
	posOK  bool
	bus    chan pipeline.Message
}

func newFakePipe() *fakePipe {
	return &fakePipe{bus: make(chan pipeline.Message, 16)}
}

func (f *fakePipe) SetURI(uri string) { f.uris = append(f.uris, uri) }
func (f *fakePipe) SetState(s pipeline.State) error {
	f.states = append(f.states, s)
	return nil
}
func (f *fakePipe) SetVolumeDB(db float64) error {
	f.vols = append(f.vols, db)
	return nil
}
func (f *fakePipe) QueryPosition() (time.Duration, bool) { return f.pos, f.posOK }
func (f *fakePipe) QueryDuration() (time.Duration, bool) { return 0, false }
func (f *fakePipe) Seek(to time.Duration) error {
	f.seeks = append(f.seeks, to)
	return nil
}
func (f *fakePipe) Bus() <-chan pipeline.Message { return f.bus }
func (f *fakePipe) Close() error                 { return nil }

type okSyscaller struct{}

func (okSyscaller) Mount(source, target, fstype string, flags uintptr, data string) error {
	return nil
}
func (okSyscaller) Unmount(target string, flags int) error { return nil }

type fakeMonitor struct {
	network models.NetworkData
	ping    models.PingData
	targets []string
}

func (f *fakeMonitor) Snapshot() (models.NetworkData, models.PingData) {
	return f.network, f.ping
}
func (f *fakeMonitor) SetPingTarget(host string) { f.targets = append(f.targets, host) }

type harness struct {
	fs      afero.Fs
	pipe    *fakePipe
	monitor *fakeMonitor
	svc     *Service
	lcd     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	settings := config.DefaultSettings()
	settings.StationsDirectory = "/playlists"
	settings.AuralNotifications.FilenameError = "/sounds/error.wav"
	require.NoError(t, fs.MkdirAll("/playlists", 0o755))

	cat, err := catalog.NewService(fs, settings, "/podcasts.toml", log)
	require.NoError(t, err)
	mounts := mount.NewManagerWithSyscaller(okSyscaller{}, log)
	res := resolve.NewService(fs, settings, cat, mounts,
		func() (cdrom.Device, error) { return nil, &models.ChannelError{Kind: models.ErrCDOpenFailed, Errno: 2} },
		log)

	pipe := newFakePipe()
	ctrl := playback.NewController(pipe, settings, log)
	ctrl.SetSleep(func(time.Duration) {})

	lcd := &bytes.Buffer{}
	dev, err := display.NewDevice(lcd, log)
	require.NoError(t, err)
	screen := NewScreen(dev, display.ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second})

	monitor := &fakeMonitor{}
	svc := NewService(Deps{
		Settings: settings,
		Screen:   screen,
		Control:  ctrl,
		Resolver: res,
		Mounts:   mounts,
		Catalog:  cat,
		Telem:    monitor,
		Bus:      pipe.Bus(),
		CDEject:  func() error { return nil },
		Log:      log,
	})
	return &harness{fs: fs, pipe: pipe, monitor: monitor, svc: svc, lcd: lcd}
}

func (h *harness) writeStation(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, "/playlists/"+name, []byte(body), 0o644))
}

func TestSelectChannelPlaysFirstURL(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "05_radio.toml", `
organisation = "Test FM"
station_url = ["http://icecast.example.com:8000/live", "http://backup.example.com/live"]
`)

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})

	st := h.svc.State()
	assert.Equal(t, 5, st.Current)
	assert.Equal(t, models.RunningNormally, st.Status)
	require.NotEmpty(t, h.pipe.uris)
	assert.Equal(t, "http://icecast.example.com:8000/live", h.pipe.uris[len(h.pipe.uris)-1])
	assert.Contains(t, h.pipe.states, pipeline.StatePlaying)
	assert.Equal(t, []string{"icecast.example.com"}, h.monitor.targets)
}

func TestReselectingSameChannelDoesNotReresolve(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "05_radio.toml", `
organisation = "Test FM"
station_url = ["http://example.com/live"]
`)

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})
	played := len(h.pipe.uris)
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})
	assert.Equal(t, played, len(h.pipe.uris))
}

func TestMissingChannelEscalatesToRepeated(t *testing.T) {
	h := newHarness(t)

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 42})
	st := h.svc.State()
	assert.Equal(t, models.NoChannel, st.Status)
	assert.Equal(t, 42, st.Current)
	// The miss rings the configured error sound.
	require.NotEmpty(t, h.pipe.uris)
	assert.Equal(t, "file:///sounds/error.wav", h.pipe.uris[len(h.pipe.uris)-1])

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 42})
	assert.Equal(t, models.NoChannelRepeated, st.Status)

	// A different missing channel drops back to the first-level screen.
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 43})
	assert.Equal(t, models.NoChannel, st.Status)
}

func TestClosedPipelineBusShutsLoopDown(t *testing.T) {
	h := newHarness(t)

	close(h.pipe.bus)

	done := make(chan struct{})
	go func() {
		h.svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after the pipeline bus closed")
	}
	assert.Equal(t, models.ShuttingDown, h.svc.State().Status)
}

func TestParseErrorShowsSanitizedMessage(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "09_bad.toml", "organisation = not quoted\n")

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 9})

	st := h.svc.State()
	assert.Equal(t, models.LongMessageOnAll4Lines, st.Status)
	assert.NotEmpty(t, st.LongMessage)
	assert.NotContains(t, st.LongMessage, "\n")
	assert.NotContains(t, st.LongMessage, "|")
	assert.NotContains(t, st.LongMessage, "^")
	assert.NotContains(t, st.LongMessage, "  ")
}

func TestReturningToChannelKeepsCursorAndPosition(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "05_a.toml", `
station_url = ["http://a.example.com/1", "http://a.example.com/2"]
`)
	h.writeStation(t, "06_b.toml", `
station_url = ["http://b.example.com/1"]
`)

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})
	rt := h.svc.State().Channels[5]
	rt.Cursor = 1
	rt.Position = 30 * time.Second

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 6})
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})

	back := h.svc.State().Channels[5]
	assert.Equal(t, 1, back.Cursor)
	assert.Equal(t, 30*time.Second, back.Position)
	assert.Equal(t, "http://a.example.com/2", h.pipe.uris[len(h.pipe.uris)-1])
}

func TestOrganizationTagAppliesNameCorrection(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "02_lp.toml", `
organisation = "Channel 2"
station_url = ["http://stream.example.com/lp"]
`)
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 2})

	h.svc.handleBusMessage(pipeline.Message{
		Kind: pipeline.MessageTag, TagName: "organization", TagValue: "LaPremiere",
	})

	rt := h.svc.State().CurrentRuntime()
	assert.Equal(t, "La Première", rt.Organisation)
	assert.Equal(t, "La Première", rt.Record.Organisation)
}

func TestEndOfStreamAdvancesOnlyMultiTrackLists(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "05_two.toml", `
station_url = ["http://example.com/1", "http://example.com/2"]
`)
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})

	h.svc.handleBusMessage(pipeline.Message{Kind: pipeline.MessageEos})
	assert.Equal(t, 1, h.svc.State().CurrentRuntime().Cursor)
	assert.Equal(t, "http://example.com/2", h.pipe.uris[len(h.pipe.uris)-1])

	// Single-URL stations just stop; a live stream that ends is not retried.
	h.writeStation(t, "06_one.toml", `
station_url = ["http://example.com/live"]
`)
	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 6})
	played := len(h.pipe.uris)
	h.svc.handleBusMessage(pipeline.Message{Kind: pipeline.MessageEos})
	assert.Equal(t, played, len(h.pipe.uris))
}

func TestStateChangedOnlyHonoursPlaybin(t *testing.T) {
	h := newHarness(t)

	h.svc.handleBusMessage(pipeline.Message{
		Kind: pipeline.MessageStateChanged, State: pipeline.StatePlaying, FromPlaybin: false,
	})
	assert.Equal(t, pipeline.StateVoidPending, h.svc.State().PipelineState)

	volumePushes := len(h.pipe.vols)
	h.svc.handleBusMessage(pipeline.Message{
		Kind: pipeline.MessageStateChanged, State: pipeline.StatePlaying, FromPlaybin: true,
	})
	assert.Equal(t, pipeline.StatePlaying, h.svc.State().PipelineState)
	assert.Equal(t, volumePushes+1, len(h.pipe.vols))
}

func TestVolumeKeysStepByConfiguredOffset(t *testing.T) {
	h := newHarness(t)
	start := h.svc.State().VolumeDB

	h.svc.HandleEvent(models.Event{Kind: models.EventVolumeUp})
	assert.Equal(t, start+5, h.svc.State().VolumeDB)
	h.svc.HandleEvent(models.Event{Kind: models.EventVolumeDown})
	h.svc.HandleEvent(models.Event{Kind: models.EventVolumeDown})
	assert.Equal(t, start-5, h.svc.State().VolumeDB)

	for i := 0; i < 40; i++ {
		h.svc.HandleEvent(models.Event{Kind: models.EventVolumeUp})
	}
	assert.Equal(t, config.VolumeMax, h.svc.State().VolumeDB)
}

func TestPauseBeforePlayingDefersPlayback(t *testing.T) {
	h := newHarness(t)
	h.writeStation(t, "05_slow.toml", `
station_url = ["http://example.com/live"]
pause_before_playing_ms = 1500
`)

	h.svc.HandleEvent(models.Event{Kind: models.EventSelectChannel, Channel: 5})
	st := h.svc.State()
	assert.True(t, st.PausedBeforePlaying)
	assert.NotContains(t, h.pipe.uris, "http://example.com/live")

	h.svc.tick(time.Now().Add(2 * time.Second))
	assert.False(t, st.PausedBeforePlaying)
	assert.Contains(t, h.pipe.uris, "http://example.com/live")
}

func TestBufferingMessageUpdatesPercent(t *testing.T) {
	h := newHarness(t)
	h.svc.handleBusMessage(pipeline.Message{Kind: pipeline.MessageBuffering, Percent: 62})
	assert.Equal(t, 62, h.svc.State().BufferPercent)
}

func TestPipelineErrorShowsLongMessage(t *testing.T) {
	h := newHarness(t)
	h.svc.handleBusMessage(pipeline.Message{
		Kind:      pipeline.MessageError,
		ErrorText: "Resource not found. No such file or directory /x.mp3",
	})
	st := h.svc.State()
	assert.Equal(t, models.LongMessageOnAll4Lines, st.Status)
	assert.Equal(t, "No such file or directory /x.mp3", st.LongMessage)
}

func TestSanitizeParseError(t *testing.T) {
	in := "toml: line 2\r\n  | organisation = not quoted\r\n  |        ^ expected value"
	out := sanitizeParseError(in)
	assert.Equal(t, "toml: line 2 organisation = not quoted expected value", out)
}

func TestHostOfURL(t *testing.T) {
	cases := map[string]string{
		"http://icecast.example.com:8000/live?x=1": "icecast.example.com",
		"https://user:pw@stream.example.com/a":     "stream.example.com",
		"http://example.com":                       "example.com",
		"example.com/path":                         "example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, hostOfURL(in), in)
	}
}
