package player

import (
	"fmt"
	"time"

	"lcdradio/config"
	"lcdradio/internal/display"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
)

// BuildDate is stamped in by the linker and shown on the repeated
// channel-not-found diagnostic screen.
var BuildDate = "unknown build"

// Screen bundles the scroll regions and the device they are rendered to.
type Screen struct {
	dev    *display.Device
	params display.ScrollParams

	Line1  *display.ScrollLine
	Line2  *display.ScrollLine
	Line34 *display.ScrollLine
	All4   *display.ScrollLine
}

func NewScreen(dev *display.Device, params display.ScrollParams) *Screen {
	return &Screen{
		dev:    dev,
		params: params,
		Line1:  display.NewScrollLine("", 1),
		Line2:  display.NewScrollLine("", 1),
		Line34: display.NewScrollLine("", 2),
		All4:   display.NewScrollLine("", 4),
	}
}

// Reset empties every scroll region, as on a channel change.
func (s *Screen) Reset() {
	s.Line1 = display.NewScrollLine("", 1)
	s.Line2 = display.NewScrollLine("", 1)
	s.Line34 = display.NewScrollLine("", 2)
	s.All4 = display.NewScrollLine("", 4)
}

// Tick advances every scroll region. Line 3/4 gives up 3 cells to the
// buffering percentage while a stream is playing.
func (s *Screen) Tick(now time.Time, state *models.PlayerState) {
	line34Cells := 2 * display.CharsPerLine
	if rt := state.CurrentRuntime(); rt != nil && rt.Record.Source == models.SourceURLList {
		line34Cells -= 3
	}
	s.Line1.Tick(now, s.params, display.Line1DataChars)
	s.Line2.Tick(now, s.params, display.CharsPerLine)
	s.Line34.Tick(now, s.params, line34Cells)
	s.All4.Tick(now, s.params, 4*display.CharsPerLine)
}

// Compose fills a fresh buffer from the player state according to the
// current run status.
func (s *Screen) Compose(state *models.PlayerState, settings config.Settings, now time.Time) *display.TextBuffer {
	b := display.NewTextBuffer()
	switch state.Status {
	case models.StartingUp:
		s.composeStarting(b, state, now)
	case models.RunningNormally:
		s.composeRunning(b, state, settings, now)
	case models.NoChannel:
		s.composeNoChannel(b, state, now)
	case models.NoChannelRepeated:
		s.composeNoChannelRepeated(b, state, now)
	case models.LongMessageOnAll4Lines:
		b.WriteLines(s.All4.Bytes(), display.Line1, 4)
	case models.ShuttingDown:
		b.WriteLine(display.Encode("Ending screen driver"), display.Line1)
		b.WriteLine(display.Encode("Computer not shut"), display.Line3)
		b.WriteLine(display.Encode("down"), display.Line4)
	}
	return b
}

// Render composes and pushes the buffer to the panel.
func (s *Screen) Render(state *models.PlayerState, settings config.Settings, now time.Time) {
	s.dev.WriteBuffer(s.Compose(state, settings, now))
}

func (s *Screen) composeStarting(b *display.TextBuffer, state *models.PlayerState, now time.Time) {
	if state.Network.LocalIP != "" {
		b.WriteLine(s.Line1.Bytes(), display.Line1)
	}
	if state.Ping.Outcome == models.PingResponseReceived {
		b.WriteLine(display.Encode(formatPingTime(state.Ping, true)), display.Line2)
	}
	b.WriteLine(display.Encode(dateTimeText(now)), display.Line3)
	b.WriteLine(display.Encode(temperatureAndWiFiText(state.Network)), display.Line4)
}

func (s *Screen) composeRunning(b *display.TextBuffer, state *models.PlayerState, settings config.Settings, now time.Time) {
	if state.PausedBeforePlaying {
		b.WriteBytes(display.Encode("Filling buffer"), 0, display.CharsPerLine)
		b.WriteLine(display.Encode(fmt.Sprintf("for channel %d", state.Current)), display.Line2)
		b.WriteLine(display.Encode(dateTimeText(now)), display.Line4)
		return
	}
	b.WriteBytes(display.Encode(line1Text(state, settings)), 0, display.Line1DataChars)
	b.WriteBytes(display.Encode(volumeText(state)), display.Line1DataChars, display.VolumeChars)
	b.WriteLine(s.Line2.Bytes(), display.Line2)
	b.WriteLines(s.Line34.Bytes(), display.Line3, 2)

	rt := state.CurrentRuntime()
	isStream := rt != nil && rt.Record.Source == models.SourceURLList
	line34Short := len(s.Line34.Bytes()) <= display.CharsPerLine

	if isStream {
		if line34Short {
			// One dedicated glyph cell walks across line 4 as the stream
			// buffer fills.
			percent := state.BufferPercent
			if percent < 0 {
				percent = 0
			}
			if percent > 99 {
				percent = 99
			}
			b.SetCell(display.Line4, percent/5, display.BufferCursorGlyph(percent%5))
			if len(s.Line34.Bytes()) == 0 {
				b.WriteLine(display.Encode(dateTimeText(now)), display.Line3)
			}
		} else {
			b.WriteBytes(display.Encode(fmt.Sprintf("%3d", state.BufferPercent)),
				display.CharsPerScreen-3, 3)
		}
	} else if line34Short {
		// Buffer state for CD and USB is always 0 or 100, so show the clock.
		b.WriteLine(display.Encode(dateTimeText(now)), display.Line4)
	}
}

func (s *Screen) composeNoChannel(b *display.TextBuffer, state *models.PlayerState, now time.Time) {
	b.WriteBytes(display.Encode(fmt.Sprintf("No station %d", state.Current)), 0, display.Line1DataChars)
	b.WriteBytes(display.Encode(volumeText(state)), display.Line1DataChars, display.VolumeChars)
	b.WriteLine(display.Encode(state.Network.LocalIP), display.Line2)
	b.WriteLine(display.Encode(dateTimeText(now)), display.Line3)
	b.WriteLine(display.Encode(temperatureAndWiFiText(state.Network)), display.Line4)
}

// composeNoChannelRepeated is the diagnostic screen: it alternates every
// four seconds between (build date, SSID) and (local IP, gateway), with the
// throttle state and a character-set test below.
func (s *Screen) composeNoChannelRepeated(b *display.TextBuffer, state *models.PlayerState, now time.Time) {
	if (now.Unix()/4)&1 == 0 {
		b.WriteLine(display.Encode(BuildDate), display.Line1)
		b.WriteLine(display.Encode(state.Network.SSID), display.Line2)
	} else {
		b.WriteLine(display.Encode("local"+state.Network.LocalIP), display.Line1)
		b.WriteLine(display.Encode("G'way"+state.Network.Gateway), display.Line2)
	}
	b.WriteLine(display.Encode(throttledStatusAndTime(state.Network, now)), display.Line3)
	b.WriteLine(display.Encode("\x00 \x01 \x02 \x03 \x04\x05\x06\x07ñäöüÆÇç"), display.Line4)
}

// line1Text picks the left part of line 1. Right after a channel change it
// names the media; later it shows track position for mounted media and ping
// or CPU temperature for streams.
func line1Text(state *models.PlayerState, settings config.Settings) string {
	rt := state.CurrentRuntime()
	if rt == nil {
		return ""
	}

	if rt.Position < settings.TimeInitialMessageDisplayedAfterChannelChange.Std() {
		switch rt.Record.Source {
		case models.SourceCD:
			return "Playing CD"
		case models.SourceLocalUSB, models.SourceRemoteCIFS:
			return fmt.Sprintf("USB %d", state.Current)
		default:
			return fmt.Sprintf("Station %d", state.Current)
		}
	}

	switch rt.Record.Source {
	case models.SourceCD, models.SourceLocalUSB, models.SourceRemoteCIFS:
		if !rt.DurationKnown {
			return "source error"
		}
		return trackPositionText(rt)
	case models.SourceURLList:
		if state.Ping.Outcome == models.PingResponseReceived || state.Ping.Outcome == models.PingSent {
			return formatPingTime(state.Ping, false)
		}
		return fmt.Sprintf("CPU Temp %dC", state.Network.CPUTempC)
	default:
		return "Unknown source"
	}
}

// trackPositionText squeezes "track: position of duration" into 13 cells,
// dropping separators one by one as the numbers grow.
func trackPositionText(rt *models.ChannelRuntime) string {
	track := rt.Cursor + 1
	pos := int(rt.Position.Seconds())
	dur := int(rt.Duration.Seconds())

	digits := digitCount(track) + digitCount(pos) + digitCount(dur)
	switch {
	case digits <= 7:
		return fmt.Sprintf("%d: %d of %d", track, pos, dur)
	case digits == 8:
		return fmt.Sprintf("%d:%d of %d", track, pos, dur)
	case digits == 9:
		return fmt.Sprintf("%d:%dof %d", track, pos, dur)
	case digits == 10:
		return fmt.Sprintf("%d: %dof%d", track, pos, dur)
	default:
		return fmt.Sprintf("%d: %d", track, pos)
	}
}

func digitCount(n int) int {
	switch {
	case n < 10:
		return 1
	case n < 100:
		return 2
	case n < 1000:
		return 3
	default:
		return 4
	}
}

// volumeText shows the volume while playing (or idle) and the pipeline state
// name while it is in flux.
func volumeText(state *models.PlayerState) string {
	switch state.PipelineState {
	case pipeline.StatePlaying, pipeline.StateNull:
		return fmt.Sprintf("Vol%4d", state.VolumeDB)
	case pipeline.StateVoidPending:
		return "Void"
	case pipeline.StatePaused:
		return "Paused"
	case pipeline.StateReady:
		return "Ready"
	default:
		return ""
	}
}

// line2Text names the channel: CD and USB get a track counter, streams just
// the organisation. A throttled CPU appends its code.
func line2Text(state *models.PlayerState) string {
	rt := state.CurrentRuntime()
	if rt == nil {
		return ""
	}

	var line2 string
	switch rt.Record.Source {
	case models.SourceCD:
		line2 = fmt.Sprintf("CD track %d of %d", rt.Cursor+1, rt.Record.TrackCount())
	case models.SourceLocalUSB, models.SourceRemoteCIFS:
		line2 = fmt.Sprintf("%s (%d of %d)", rt.Record.Organisation, rt.Cursor+1, rt.Record.TrackCount())
	case models.SourceURLList:
		line2 = rt.Record.Organisation
	default:
		line2 = "Unexpected source"
	}
	if state.Network.Throttled != "" {
		line2 += " " + state.Network.Throttled
	}
	return line2
}

func formatPingTime(ping models.PingData, long bool) string {
	where := pingPrefix(ping.Where, long)
	if ping.Outcome != models.PingResponseReceived {
		if long {
			return where + "Ping NoReply"
		}
		return where + "Ping Noreply"
	}
	ms := float64(ping.RTT) / float64(time.Millisecond)
	switch {
	case ms < 0:
		return "NegTime"
	case ms < 100:
		return fmt.Sprintf("%s%.1fms", where, ms)
	default:
		return fmt.Sprintf("%s%.0fms", where, ms)
	}
}

func pingPrefix(where models.PingWhere, long bool) string {
	switch where {
	case models.PingLocal:
		if long {
			return "Gateway "
		}
		return "G"
	case models.PingRemote:
		if long {
			return "Remote "
		}
		return "R"
	default:
		return ""
	}
}

func throttledStatusAndTime(n models.NetworkData, now time.Time) string {
	if n.Throttled == "" {
		return "NotThrottled" + now.Format("15:04:05")
	}
	return n.Throttled + now.Format("15:04:05") + " "
}

func dateTimeText(now time.Time) string {
	return now.Format("02 Jan 06 15:04:05")
}

func temperatureAndWiFiText(n models.NetworkData) string {
	return fmt.Sprintf("CPU Temp %dC WiFi%s", n.CPUTempC, n.WiFiStrength)
}
