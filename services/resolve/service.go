// Package resolve turns a channel number into a playable ChannelRecord:
// a CD table of contents, a randomly chosen album off mounted media, or a
// plain URL list from the channel file.
package resolve

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"lcdradio/config"
	"lcdradio/internal/cdrom"
	"lcdradio/internal/mount"
	"lcdradio/models"
	"lcdradio/services/catalog"
)

// audioExtensions qualify a file as playable and a directory as an album.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
}

// Service resolves channels. It is stateless apart from its collaborators;
// mount state lives in the bindings it is handed.
type Service struct {
	fs       afero.Fs
	settings config.Settings
	catalog  *catalog.Service
	mounts   *mount.Manager
	cdOpen   cdrom.Opener
	randIntN func(n int) int
	log      *slog.Logger
}

func NewService(fs afero.Fs, settings config.Settings, cat *catalog.Service, mounts *mount.Manager, cdOpen cdrom.Opener, log *slog.Logger) *Service {
	return &Service{
		fs:       fs,
		settings: settings,
		catalog:  cat,
		mounts:   mounts,
		cdOpen:   cdOpen,
		randIntN: rand.IntN,
		log:      log,
	}
}

// SetRandIntN replaces the album sampler, for tests.
func (s *Service) SetRandIntN(f func(n int) int) { s.randIntN = f }

// Resolve produces the channel's record. usb and samba are the live bindings
// whose mount state the resolver may change through the mount manager.
func (s *Service) Resolve(channel int, usb, samba *models.MediaBinding) (models.ChannelRecord, error) {
	switch s.catalog.Kind(channel) {
	case models.SourceCD:
		return s.resolveCD()
	case models.SourceLocalUSB:
		return s.resolveAlbumMedia(models.SourceLocalUSB, usb, samba)
	case models.SourceRemoteCIFS:
		return s.resolveAlbumMedia(models.SourceRemoteCIFS, samba, usb)
	default:
		return s.resolveChannelFile(channel, usb, samba)
	}
}

func (s *Service) resolveCD() (models.ChannelRecord, error) {
	first, last, err := cdrom.ReadTrackRange(s.cdOpen)
	if err != nil {
		return models.ChannelRecord{}, err
	}

	var tracks []string
	for k := first; k <= last; k++ {
		tracks = append(tracks, fmt.Sprintf("cdda://%d", k))
	}
	tracks, hasDing := s.appendDing(tracks)
	return models.ChannelRecord{
		Organisation:    "CD",
		Source:          models.SourceCD,
		Tracks:          tracks,
		LastTrackIsDing: hasDing,
	}, nil
}

func (s *Service) resolveAlbumMedia(kind models.SourceKind, binding, conflicting *models.MediaBinding) (models.ChannelRecord, error) {
	if binding == nil {
		return models.ChannelRecord{}, &models.ChannelError{Kind: models.ErrNoUSBConfigured}
	}
	if err := s.mounts.Mount(binding, conflicting); err != nil {
		return models.ChannelRecord{}, err
	}

	albums, err := s.listAlbums(binding.MountPoint)
	if err != nil {
		return models.ChannelRecord{}, err
	}
	if len(albums) == 0 {
		return models.ChannelRecord{}, &models.ChannelError{Kind: models.ErrEmptyTrackList}
	}

	album := albums[s.randIntN(len(albums))]
	tracks, err := s.albumTracks(album)
	if err != nil {
		return models.ChannelRecord{}, err
	}
	tracks, hasDing := s.appendDing(tracks)

	return models.ChannelRecord{
		Organisation:    strings.TrimPrefix(strings.TrimPrefix(album, binding.MountPoint), "/"),
		Source:          kind,
		Tracks:          tracks,
		LastTrackIsDing: hasDing,
		Media:           binding,
	}, nil
}

func (s *Service) resolveChannelFile(channel int, usb, samba *models.MediaBinding) (models.ChannelRecord, error) {
	file, err := s.catalog.LoadChannelFile(channel)
	if err != nil {
		return models.ChannelRecord{}, err
	}

	if file.PlaylistDevice != "" {
		return s.resolvePlaylistOfAlbums(file, usb, samba)
	}

	if len(file.StationURL) == 0 {
		return models.ChannelRecord{}, &models.ChannelError{
			Kind:    models.ErrParse,
			Channel: channel,
			Message: "no URLs",
		}
	}

	return models.ChannelRecord{
		Organisation:    file.Organisation,
		Source:          models.SourceURLList,
		Tracks:          append([]string(nil), file.StationURL...),
		PauseBeforePlay: time.Duration(file.PauseBeforeMs) * time.Millisecond,
	}, nil
}

// resolvePlaylistOfAlbums treats the channel file's URLs as album sub-paths
// on the USB stick and samples one of them.
func (s *Service) resolvePlaylistOfAlbums(file models.ChannelFile, usb, samba *models.MediaBinding) (models.ChannelRecord, error) {
	if usb == nil {
		return models.ChannelRecord{}, &models.ChannelError{Kind: models.ErrNoUSBConfigured}
	}
	if len(file.StationURL) == 0 {
		return models.ChannelRecord{}, &models.ChannelError{Kind: models.ErrEmptyTrackList}
	}
	if err := s.mounts.Mount(usb, samba); err != nil {
		return models.ChannelRecord{}, err
	}

	sub := file.StationURL[s.randIntN(len(file.StationURL))]
	albumPath := path.Join(usb.MountPoint, sub)
	if ok, err := afero.DirExists(s.fs, albumPath); err != nil || !ok {
		return models.ChannelRecord{}, &models.ChannelError{Kind: models.ErrAlbumNotFound, Name: sub}
	}

	tracks, err := s.albumTracks(albumPath)
	if err != nil {
		return models.ChannelRecord{}, err
	}
	tracks, hasDing := s.appendDing(tracks)

	organisation := file.Organisation
	if organisation == "" {
		organisation = sub
	}
	return models.ChannelRecord{
		Organisation:    organisation,
		Source:          models.SourceLocalUSB,
		Tracks:          tracks,
		LastTrackIsDing: hasDing,
		Media:           usb,
		PauseBeforePlay: time.Duration(file.PauseBeforeMs) * time.Millisecond,
	}, nil
}

// listAlbums walks the artist/album two-level layout and returns every album
// directory holding at least one audio file.
func (s *Service) listAlbums(mountPoint string) ([]string, error) {
	artists, err := afero.ReadDir(s.fs, mountPoint)
	if err != nil {
		return nil, &models.ChannelError{Kind: models.ErrUSBRead, Message: err.Error()}
	}

	var albums []string
	for _, artist := range artists {
		if !artist.IsDir() {
			continue
		}
		artistPath := path.Join(mountPoint, artist.Name())
		entries, err := afero.ReadDir(s.fs, artistPath)
		if err != nil {
			return nil, &models.ChannelError{Kind: models.ErrUSBRead, Message: err.Error()}
		}
		for _, album := range entries {
			if !album.IsDir() {
				continue
			}
			albumPath := path.Join(artistPath, album.Name())
			hasAudio, err := s.containsAudio(albumPath)
			if err != nil {
				return nil, err
			}
			if hasAudio {
				albums = append(albums, albumPath)
			}
		}
	}
	sort.Strings(albums)
	return albums, nil
}

func (s *Service) containsAudio(dir string) (bool, error) {
	files, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return false, &models.ChannelError{Kind: models.ErrUSBRead, Message: err.Error()}
	}
	for _, f := range files {
		if !f.IsDir() && isAudioFile(f.Name()) {
			return true, nil
		}
	}
	return false, nil
}

// albumTracks lists the album's audio files as file:// URIs in name order.
func (s *Service) albumTracks(albumPath string) ([]string, error) {
	files, err := afero.ReadDir(s.fs, albumPath)
	if err != nil {
		return nil, &models.ChannelError{Kind: models.ErrUSBRead, Message: err.Error()}
	}
	var tracks []string
	for _, f := range files {
		if !f.IsDir() && isAudioFile(f.Name()) {
			tracks = append(tracks, "file://"+path.Join(albumPath, f.Name()))
		}
	}
	return tracks, nil
}

func isAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(path.Ext(name))]
}

// appendDing adds the end-of-playlist sound, but never to an empty list.
func (s *Service) appendDing(tracks []string) ([]string, bool) {
	ding := s.settings.AuralNotifications.FilenameSoundAtEndOfPlaylist
	if ding == "" || len(tracks) == 0 {
		return tracks, false
	}
	return append(tracks, "file://"+ding), true
}
