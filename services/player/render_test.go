package player

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdradio/config"
	"lcdradio/internal/display"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
)

func testScreen(t *testing.T) *Screen {
	t.Helper()
	dev, err := display.NewDevice(&bytes.Buffer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return NewScreen(dev, display.ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second})
}

func urlState(percent int) *models.PlayerState {
	st := &models.PlayerState{Status: models.RunningNormally, Current: 3, VolumeDB: 85}
	st.PipelineState = pipeline.StatePlaying
	st.BufferPercent = percent
	st.Channels[3] = &models.ChannelRuntime{
		Record: models.ChannelRecord{
			Organisation: "Test FM",
			Source:       models.SourceURLList,
			Tracks:       []string{"http://example.com/live"},
		},
	}
	return st
}

func TestVolumeText(t *testing.T) {
	st := &models.PlayerState{VolumeDB: 85}

	st.PipelineState = pipeline.StatePlaying
	assert.Equal(t, "Vol  85", volumeText(st))
	st.PipelineState = pipeline.StateNull
	assert.Equal(t, "Vol  85", volumeText(st))

	st.PipelineState = pipeline.StatePaused
	assert.Equal(t, "Paused", volumeText(st))
	st.PipelineState = pipeline.StateVoidPending
	assert.Equal(t, "Void", volumeText(st))
	st.PipelineState = pipeline.StateReady
	assert.Equal(t, "Ready", volumeText(st))
}

func TestTrackPositionTextCompaction(t *testing.T) {
	rt := &models.ChannelRuntime{DurationKnown: true}

	rt.Cursor = 2
	rt.Position = 165 * time.Second
	rt.Duration = 365 * time.Second
	assert.Equal(t, "3: 165 of 365", trackPositionText(rt))

	rt.Cursor = 11
	assert.Equal(t, "12:165 of 365", trackPositionText(rt))

	rt.Position = 1650 * time.Second
	assert.Equal(t, "12:1650of 365", trackPositionText(rt))

	rt.Duration = 3650 * time.Second
	assert.Equal(t, "12: 1650of3650", trackPositionText(rt))

	rt.Position = 16500 * time.Second
	assert.Equal(t, "12: 16500", trackPositionText(rt))
}

func TestLine1ShowsInitialMessageAfterChannelChange(t *testing.T) {
	settings := config.DefaultSettings()
	st := urlState(0)
	assert.Equal(t, "Station 3", line1Text(st, settings))

	st.Channels[3].Record.Source = models.SourceCD
	assert.Equal(t, "Playing CD", line1Text(st, settings))

	st.Channels[3].Record.Source = models.SourceLocalUSB
	assert.Equal(t, "USB 3", line1Text(st, settings))
}

func TestLine1StreamShowsPingThenCPUTemp(t *testing.T) {
	settings := config.DefaultSettings()
	st := urlState(0)
	st.Channels[3].Position = settings.TimeInitialMessageDisplayedAfterChannelChange.Std() + time.Second

	st.Ping = models.PingData{
		Where: models.PingRemote, Outcome: models.PingResponseReceived,
		RTT: 23500 * time.Microsecond,
	}
	assert.Equal(t, "R23.5ms", line1Text(st, settings))

	st.Ping = models.PingData{Outcome: models.PingNotSent}
	st.Network.CPUTempC = 51
	assert.Equal(t, "CPU Temp 51C", line1Text(st, settings))
}

func TestLine2Text(t *testing.T) {
	st := urlState(0)
	assert.Equal(t, "Test FM", line2Text(st))

	st.Channels[3].Record = models.ChannelRecord{
		Source: models.SourceCD,
		Tracks: []string{"cdda://1", "cdda://2", "cdda://3", "file:///ding.mp3"},

		LastTrackIsDing: true,
	}
	st.Channels[3].Cursor = 1
	assert.Equal(t, "CD track 2 of 3", line2Text(st))

	st.Channels[3].Record = models.ChannelRecord{
		Organisation: "Abbey Road",
		Source:       models.SourceLocalUSB,
		Tracks:       []string{"file:///a", "file:///b"},
	}
	st.Channels[3].Cursor = 0
	assert.Equal(t, "Abbey Road (1 of 2)", line2Text(st))

	st.Network.Throttled = "T003"
	assert.Equal(t, "Abbey Road (1 of 2) T003", line2Text(st))
}

func TestComposeBufferingGlyphCell(t *testing.T) {
	screen := testScreen(t)
	settings := config.DefaultSettings()
	st := urlState(37)
	st.Channels[3].Position = time.Minute

	b := screen.Compose(st, settings, time.Now())
	line4 := b.LineBytes(display.Line4)
	// 37 percent: cell 7, glyph column 2.
	assert.Equal(t, display.BufferCursorGlyph(2), line4[7])
}

func TestComposeBufferingPercentWhenTitleLong(t *testing.T) {
	screen := testScreen(t)
	settings := config.DefaultSettings()
	st := urlState(42)
	screen.Line34.UpdateIfChanged(strings.Repeat("x", 30))

	b := screen.Compose(st, settings, time.Now())
	line4 := b.LineBytes(display.Line4)
	assert.Equal(t, []byte(" 42"), line4[display.CharsPerLine-3:])
}

func TestComposeNoChannel(t *testing.T) {
	screen := testScreen(t)
	settings := config.DefaultSettings()
	st := &models.PlayerState{Status: models.NoChannel, Current: 42, VolumeDB: 70}
	st.PipelineState = pipeline.StateNull
	st.Network.LocalIP = "192.168.1.17"
	st.Network.CPUTempC = 48
	st.Network.WiFiStrength = " 72"

	b := screen.Compose(st, settings, time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC))
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line1), []byte("No station 42")))
	assert.Contains(t, string(b.LineBytes(display.Line1)), "Vol  70")
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line2), []byte("192.168.1.17")))
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line3), []byte("09 Mar 24 15:04:05")))
	assert.Contains(t, string(b.LineBytes(display.Line4)), "CPU Temp 48C")
}

func TestComposeShuttingDown(t *testing.T) {
	screen := testScreen(t)
	st := &models.PlayerState{Status: models.ShuttingDown}

	b := screen.Compose(st, config.DefaultSettings(), time.Now())
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line1), []byte("Ending screen driver")))
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line3), []byte("Computer not shut")))
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line4), []byte("down")))
}

func TestComposeNoChannelRepeatedAlternates(t *testing.T) {
	screen := testScreen(t)
	settings := config.DefaultSettings()
	st := &models.PlayerState{Status: models.NoChannelRepeated}
	st.Network = models.NetworkData{
		LocalIP: "192.168.1.17", Gateway: "192.168.1.1", SSID: "HomeNet",
	}

	even := time.Unix(1710000000-1710000000%8, 0)
	b := screen.Compose(st, settings, even)
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line2), []byte("HomeNet")))

	odd := even.Add(4 * time.Second)
	b = screen.Compose(st, settings, odd)
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line1), []byte("local192.168.1.17")))
	assert.True(t, bytes.HasPrefix(b.LineBytes(display.Line2), []byte("G'way192.168.1.1")))
}

func TestFormatPingTime(t *testing.T) {
	ping := models.PingData{Where: models.PingLocal, Outcome: models.PingResponseReceived, RTT: 3200 * time.Microsecond}
	assert.Equal(t, "G3.2ms", formatPingTime(ping, false))
	assert.Equal(t, "Gateway 3.2ms", formatPingTime(ping, true))

	ping.RTT = 230 * time.Millisecond
	assert.Equal(t, "G230ms", formatPingTime(ping, false))

	ping.Outcome = models.PingTimedOut
	assert.Equal(t, "GPing Noreply", formatPingTime(ping, false))
}
