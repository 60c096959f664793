package player

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"

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

const tickInterval = 300 * time.Millisecond

// Stations whose transmitted station name does not match the name they are
// known by. Keyed by the name as it arrives in the stream tags.
var nameCorrections = map[string]string{
	"LaPremiere": "La Première",
}

// NetworkMonitor is the read side of the connectivity prober.
type NetworkMonitor interface {
	// Snapshot returns the latest network facts and ping reading.
	Snapshot() (models.NetworkData, models.PingData)
	// SetPingTarget points the remote prober at a new host. An empty host
	// stops remote pings.
	SetPingTarget(host string)
}

// Service is the event loop: the single goroutine that owns PlayerState and
// serialises every command, bus message and timer tick against it.
type Service struct {
	settings config.Settings
	state    *models.PlayerState
	screen   *Screen

	control  *playback.Controller
	resolver *resolve.Service
	mounts   *mount.Manager
	catalog  *catalog.Service
	telem    NetworkMonitor
	fs       afero.Fs

	usb   *models.MediaBinding
	samba *models.MediaBinding

	keys <-chan models.Event
	web  <-chan models.Event
	bus  <-chan pipeline.Message

	// notify publishes a trimmed state snapshot to web subscribers.
	notify func(models.DataChanged)

	cdEject func() error

	// pendingPlay delays playback after a channel change while the
	// configured pause-before-playing runs down. Zero means nothing pending.
	pendingPlay time.Time

	now func() time.Time
	log *slog.Logger
}

// Deps collects everything the event loop is wired to.
type Deps struct {
	Settings config.Settings
	Screen   *Screen
	Control  *playback.Controller
	Resolver *resolve.Service
	Mounts   *mount.Manager
	Catalog  *catalog.Service
	Telem    NetworkMonitor
	FS       afero.Fs
	USB      *models.MediaBinding
	Samba    *models.MediaBinding
	Keys     <-chan models.Event
	Web      <-chan models.Event
	Bus      <-chan pipeline.Message
	Notify   func(models.DataChanged)
	CDEject  func() error
	Log      *slog.Logger
}

func NewService(d Deps) *Service {
	state := &models.PlayerState{
		Status:   models.StartingUp,
		Current:  -1,
		VolumeDB: d.Settings.InitialVolume,
	}
	if f := d.Settings.AuralNotifications.FilenameError; f != "" {
		state.Channels[models.DingChannel] = &models.ChannelRuntime{
			Record: models.ChannelRecord{
				Organisation: "error sound",
				Source:       models.SourceUnknown,
				Tracks:       []string{"file://" + f},
			},
		}
	}
	notify := d.Notify
	if notify == nil {
		notify = func(models.DataChanged) {}
	}
	eject := d.CDEject
	if eject == nil {
		eject = func() error { return cdrom.Eject(cdrom.OpenDevice) }
	}
	return &Service{
		settings: d.Settings,
		state:    state,
		screen:   d.Screen,
		control:  d.Control,
		resolver: d.Resolver,
		mounts:   d.Mounts,
		catalog:  d.Catalog,
		telem:    d.Telem,
		fs:       d.FS,
		usb:      d.USB,
		samba:    d.Samba,
		keys:     d.Keys,
		web:      d.Web,
		bus:      d.Bus,
		notify:   notify,
		cdEject:  eject,
		now:      time.Now,
		log:      d.Log,
	}
}

// State returns the loop-owned state. Only tests and the startup path may
// touch it before Run begins.
func (s *Service) State() *models.PlayerState { return s.state }

// Run drives the loop until the context ends or a shutdown event arrives.
// Keyboard events outrank pipeline messages, which outrank web commands,
// which outrank the render tick.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.control.SetVolume(s.state.VolumeDB)

	for {
		// Drain the higher-priority sources before falling back to a
		// blocking wait.
		select {
		case ev, ok := <-s.keys:
			if s.dispatchEvent(ev, ok) {
				return
			}
			continue
		default:
		}
		select {
		case msg, ok := <-s.bus:
			if !ok {
				s.shutdown()
				return
			}
			s.handleBusMessage(msg)
			continue
		default:
		}
		select {
		case ev, ok := <-s.web:
			if s.dispatchEvent(ev, ok) {
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev, ok := <-s.keys:
			if s.dispatchEvent(ev, ok) {
				return
			}
		case msg, ok := <-s.bus:
			if !ok {
				s.shutdown()
				return
			}
			s.handleBusMessage(msg)
		case ev, ok := <-s.web:
			if s.dispatchEvent(ev, ok) {
				return
			}
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// dispatchEvent handles one command. It reports true when the loop must
// exit: on an explicit shutdown event or when the command source closes.
func (s *Service) dispatchEvent(ev models.Event, ok bool) bool {
	if !ok || ev.Kind == models.EventShutdown {
		s.shutdown()
		return true
	}
	s.HandleEvent(ev)
	return false
}

// HandleEvent applies one command to the state.
func (s *Service) HandleEvent(ev models.Event) {
	switch ev.Kind {
	case models.EventSelectChannel:
		s.playChannel(ev.Channel)
	case models.EventPlayPause:
		if err := s.control.TogglePause(s.state); err != nil {
			s.log.Warn("play/pause failed", "error", err)
		}
	case models.EventVolumeUp:
		s.state.VolumeDB = s.control.SetVolume(s.state.VolumeDB + s.settings.VolumeOffset)
	case models.EventVolumeDown:
		s.state.VolumeDB = s.control.SetVolume(s.state.VolumeDB - s.settings.VolumeOffset)
	case models.EventSetVolume:
		s.state.VolumeDB = s.control.SetVolume(ev.Volume)
	case models.EventPreviousTrack:
		if err := s.control.PreviousTrack(s.state); err != nil {
			s.log.Warn("previous track failed", "error", err)
		}
	case models.EventNextTrack:
		if err := s.control.NextTrack(s.state); err != nil {
			s.log.Warn("next track failed", "error", err)
		}
	case models.EventEject:
		s.eject()
	case models.EventShowStatus:
		s.logStatus()
	case models.EventBlankScreen:
		s.screen.dev.WriteBuffer(display.NewTextBuffer())
	case models.EventDumpMounts:
		s.dumpMounts()
	case models.EventPodcastNext:
		s.movePodcast(1)
	case models.EventPodcastPrevious:
		s.movePodcast(-1)
	case models.EventPlayPodcast:
		s.playPodcast(ev.URL, ev.Title)
	case models.EventSeek:
		if err := s.control.Seek(time.Duration(ev.Position) * time.Millisecond); err != nil {
			s.log.Warn("seek failed", "error", err)
		}
	}
	s.publish()
}

// playChannel is the heart of a key press: resolve the channel if needed,
// restore any remembered position, and start playback.
func (s *Service) playChannel(channel int) {
	if channel < 0 || channel >= models.NumChannels {
		return
	}

	// Re-selecting the channel already playing is a no-op once it has
	// resolved to a non-empty track list.
	if channel == s.state.Current && s.state.Status == models.RunningNormally {
		if rt := s.state.CurrentRuntime(); rt != nil && len(rt.Record.Tracks) > 0 {
			return
		}
	}

	previous := s.state.Current
	record, err := s.resolver.Resolve(channel, s.usb, s.samba)
	if err != nil {
		s.channelFailed(channel, err)
		return
	}

	// Leaving a mounted channel releases its medium, unless the new channel
	// resolved onto the same binding.
	if previous >= 0 && previous != channel {
		if prev := s.state.Channels[previous]; prev != nil &&
			prev.Record.Media != nil && prev.Record.Media != record.Media {
			if uerr := s.mounts.Unmount(prev.Record.Media); uerr != nil {
				s.log.Warn("unmount on channel change failed", "error", uerr)
			}
		}
	}

	rt := &models.ChannelRuntime{Record: record}
	// Coming back to a channel resumes where it left off, provided the
	// remembered cursor still points at a real track.
	if old := s.state.Channels[channel]; old != nil && old.Cursor < len(record.Tracks) {
		rt.Cursor = old.Cursor
		rt.Position = old.Position
	}
	s.state.Channels[channel] = rt
	s.state.Current = channel
	s.state.Status = models.RunningNormally
	s.state.LastError = nil
	s.state.BufferPercent = 0
	s.screen.Reset()

	s.retargetPing(record)

	if record.PauseBeforePlay > 0 {
		s.state.PausedBeforePlaying = true
		s.pendingPlay = s.now().Add(record.PauseBeforePlay)
		return
	}
	s.startPlaying()
}

func (s *Service) startPlaying() {
	s.state.PausedBeforePlaying = false
	s.pendingPlay = time.Time{}
	if err := s.control.PlayTrack(s.state, true); err != nil {
		s.log.Warn("play failed", "channel", s.state.Current, "error", err)
		s.longMessage(err.Error())
	}
}

// channelFailed turns a resolution error into the right screen, and rings
// the error sound if one is configured.
func (s *Service) channelFailed(channel int, err error) {
	var cerr *models.ChannelError
	if !errors.As(err, &cerr) {
		cerr = models.NewChannelError(models.ErrNotFound, err.Error())
	}

	s.log.Warn("channel selection failed", "channel", channel, "message", cerr.LCDMessage())

	switch cerr.Kind {
	case models.ErrNotFound:
		// A second miss on the same channel flips to the diagnostic screen.
		if channel == s.state.Current &&
			(s.state.Status == models.NoChannel || s.state.Status == models.NoChannelRepeated) {
			s.state.Status = models.NoChannelRepeated
		} else {
			s.state.Status = models.NoChannel
		}
	case models.ErrParse:
		s.longMessage(sanitizeParseError(cerr.LCDMessage()))
	default:
		s.longMessage(cerr.LCDMessage())
	}

	s.state.Current = channel
	s.state.LastError = cerr
	s.screen.Reset()
	s.ringErrorSound()
}

// ringErrorSound plays the configured error ding, if any. PlayTrack routes
// to the ding channel itself when the status is an error status.
func (s *Service) ringErrorSound() {
	if s.settings.AuralNotifications.FilenameError == "" {
		return
	}
	if err := s.control.PlayTrack(s.state, false); err != nil {
		s.log.Warn("error sound failed", "error", err)
	}
}

func (s *Service) longMessage(message string) {
	s.state.Status = models.LongMessageOnAll4Lines
	s.state.LongMessage = message
	s.screen.All4.UpdateIfChanged(message)
}

// retargetPing points the prober at the host of the first stream URL, or
// stops remote probing for local media.
func (s *Service) retargetPing(record models.ChannelRecord) {
	if s.telem == nil {
		return
	}
	if record.Source != models.SourceURLList || len(record.Tracks) == 0 {
		s.telem.SetPingTarget("")
		return
	}
	s.telem.SetPingTarget(hostOfURL(record.Tracks[0]))
}

func (s *Service) eject() {
	if err := s.control.SetState(pipeline.StateNull); err != nil {
		s.log.Warn("stop before eject failed", "error", err)
	}
	if err := s.cdEject(); err != nil {
		s.log.Warn("eject failed", "error", err)
	}
	if rt := s.state.CurrentRuntime(); rt != nil && rt.Record.Source == models.SourceCD {
		s.state.Channels[s.state.Current] = nil
		s.state.Status = models.NoChannel
		s.screen.Reset()
	}
}

// playPodcast installs one episode on the reserved podcast slot and plays
// it, leaving all keyed channels undisturbed.
func (s *Service) playPodcast(url, title string) {
	if url == "" {
		return
	}
	s.state.Channels[models.PodcastChannel] = &models.ChannelRuntime{
		Record: models.ChannelRecord{
			Organisation: title,
			Source:       models.SourceURLList,
			Tracks:       []string{url},
		},
	}
	s.state.Current = models.PodcastChannel
	s.state.Status = models.RunningNormally
	s.state.LastError = nil
	s.state.BufferPercent = 0
	s.screen.Reset()
	s.retargetPing(s.state.Channels[models.PodcastChannel].Record)
	s.startPlaying()
}

func (s *Service) movePodcast(delta int) {
	subs := s.catalog.Podcasts()
	if len(subs) == 0 {
		return
	}
	s.state.PodcastSubs = subs
	s.state.PodcastIndex = ((s.state.PodcastIndex+delta)%len(subs) + len(subs)) % len(subs)
}

// dumpMounts logs the mount bindings and, for anything mounted, the entries
// at the mount point.
func (s *Service) dumpMounts() {
	for name, b := range map[string]*models.MediaBinding{"usb": s.usb, "samba": s.samba} {
		s.log.Info("mount state", "binding", name, "summary", mountSummary(b))
		if b == nil || !b.IsMounted || s.fs == nil {
			continue
		}
		entries, err := afero.ReadDir(s.fs, b.MountPoint)
		if err != nil {
			s.log.Warn("mount folder unreadable", "folder", b.MountPoint, "error", err)
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		s.log.Info("mount folder contents", "folder", b.MountPoint, "entries", names)
	}
}

func (s *Service) logStatus() {
	rt := s.state.CurrentRuntime()
	attrs := []any{
		"status", int(s.state.Status),
		"channel", s.state.Current,
		"volume_db", s.state.VolumeDB,
		"pipeline", s.state.PipelineState.String(),
	}
	if rt != nil {
		attrs = append(attrs,
			"organisation", rt.Record.Organisation,
			"track", rt.Cursor+1,
			"of", rt.Record.TrackCount(),
			"position", rt.Position.String())
	}
	s.log.Info("player status", attrs...)
}

// handleBusMessage folds one decoder message into the state.
func (s *Service) handleBusMessage(msg pipeline.Message) {
	rt := s.state.CurrentRuntime()
	switch msg.Kind {
	case pipeline.MessageTag:
		s.handleTag(rt, msg.TagName, msg.TagValue)
	case pipeline.MessageStateChanged:
		// Child elements report their own transitions; only the pipeline's
		// own state is authoritative.
		if msg.FromPlaybin {
			s.state.PipelineState = msg.State
			s.control.SetVolume(s.state.VolumeDB)
		}
	case pipeline.MessageEos:
		if rt != nil && len(rt.Record.Tracks) > 1 {
			if err := s.control.NextTrack(s.state); err != nil {
				s.log.Warn("advance at end of stream failed", "error", err)
			}
		}
	case pipeline.MessageError:
		s.log.Warn("pipeline error", "message", msg.ErrorText)
		// A stream that fails gets a longer fill pause on its next start,
		// up to the configured ceiling.
		if rt != nil && rt.Record.Source == models.SourceURLList {
			pause := rt.Record.PauseBeforePlay + s.settings.PauseBeforePlayingIncrement.Std()
			if max := s.settings.MaxPauseBeforePlaying.Std(); pause > max {
				pause = max
			}
			rt.Record.PauseBeforePlay = pause
		}
		s.longMessage(extractPipelineError(msg.ErrorText))
	case pipeline.MessageBuffering:
		s.state.BufferPercent = msg.Percent
	}
	s.publish()
}

func (s *Service) handleTag(rt *models.ChannelRuntime, name, value string) {
	if rt == nil {
		return
	}
	switch name {
	case "organization":
		if corrected, ok := nameCorrections[value]; ok {
			value = corrected
		}
		if rt.Organisation != value {
			rt.Organisation = value
			rt.Record.Organisation = value
		}
	case "title":
		rt.Title = value
	case "artist":
		rt.Artist = value
	}
}

// tick is the housekeeping beat: poll playback position, refresh telemetry,
// advance the scroll regions and push a frame to the panel.
func (s *Service) tick(now time.Time) {
	if !s.pendingPlay.IsZero() && !now.Before(s.pendingPlay) {
		s.startPlaying()
	}

	if rt := s.state.CurrentRuntime(); rt != nil && s.state.PipelineState == pipeline.StatePlaying {
		if pos, ok := s.control.QueryPosition(); ok {
			rt.Position = pos
		}
		if dur, ok := s.control.QueryDuration(); ok {
			rt.Duration = dur
			rt.DurationKnown = true
		}
	}

	if s.telem != nil {
		s.state.Network, s.state.Ping = s.telem.Snapshot()
	}

	s.updateScrollText()
	s.screen.Tick(now, s.state)
	s.screen.Render(s.state, s.settings, now)
	s.publish()
}

// updateScrollText feeds the current state into the scroll regions; they
// reset their own offsets when the text actually changes.
func (s *Service) updateScrollText() {
	switch s.state.Status {
	case models.StartingUp:
		s.screen.Line1.UpdateIfChanged("local" + s.state.Network.LocalIP)
	case models.RunningNormally:
		s.screen.Line2.UpdateIfChanged(line2Text(s.state))
		s.screen.Line34.UpdateIfChanged(titleText(s.state.CurrentRuntime()))
	case models.LongMessageOnAll4Lines:
		s.screen.All4.UpdateIfChanged(s.state.LongMessage)
	}
}

// titleText is what scrolls across lines 3 and 4.
func titleText(rt *models.ChannelRuntime) string {
	if rt == nil {
		return ""
	}
	if rt.Artist != "" && rt.Title != "" {
		return rt.Artist + " - " + rt.Title
	}
	if rt.Title != "" {
		return rt.Title
	}
	return rt.Artist
}

func (s *Service) shutdown() {
	s.state.Status = models.ShuttingDown
	if err := s.mounts.UnmountAll(s.usb, s.samba); err != nil {
		s.log.Warn("unmount at shutdown failed", "error", err)
	}
	s.control.Close()
	s.screen.Render(s.state, s.settings, s.now())
	s.log.Info("player stopped")
}

// publish pushes a trimmed snapshot to web subscribers.
func (s *Service) publish() {
	d := models.DataChanged{
		Status:        s.state.Status.String(),
		Channel:       s.state.Current,
		VolumeDB:      s.state.VolumeDB,
		PipelineState: s.state.PipelineState.String(),
		BufferPercent: s.state.BufferPercent,
		PingTarget:    s.state.Ping.Target,
		PingMs:        int(s.state.Ping.RTT / time.Millisecond),
	}
	if rt := s.state.CurrentRuntime(); rt != nil {
		d.Organisation = rt.Record.Organisation
		d.Title = rt.Title
		d.Artist = rt.Artist
		d.TrackIndex = rt.Cursor
		d.TrackCount = rt.Record.TrackCount()
		d.PositionSecs = int(rt.Position.Seconds())
		if rt.DurationKnown {
			d.DurationSecs = int(rt.Duration.Seconds())
		}
	}
	if s.state.LastError != nil {
		d.Error = s.state.LastError.LCDMessage()
	}
	s.notify(d)
}

// sanitizeParseError flattens a TOML parse error onto the panel: carriage
// returns and the parser's caret art become spaces, runs of spaces collapse.
func sanitizeParseError(message string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range message {
		switch r {
		case '\r', '\n', '|', '^':
			r = ' '
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// extractPipelineError trims decoder noise down to the interesting part.
func extractPipelineError(text string) string {
	if i := strings.Index(text, "No such file"); i >= 0 {
		return text[i:]
	}
	return text
}

// hostOfURL pulls the bare host out of a stream URL, dropping the scheme,
// credentials, port and path.
func hostOfURL(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func mountSummary(b *models.MediaBinding) string {
	if b == nil {
		return "unconfigured"
	}
	if b.IsMounted {
		return b.Device + " on " + b.MountPoint
	}
	return b.Device + " not mounted"
}
