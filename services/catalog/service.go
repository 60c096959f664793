// Package catalog indexes the channel-definition files and owns the podcast
// subscription list, the only piece of state written back to disk.
package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"lcdradio/config"
	"lcdradio/models"
)

// Service resolves channel numbers to their definition files. Channel files
// are parsed lazily; only the podcast subscriptions are held in memory.
type Service struct {
	fs       afero.Fs
	settings config.Settings
	log      *slog.Logger

	mu       sync.RWMutex
	subsPath string
	subs     []models.PodcastSub
}

// NewService loads the podcast subscription file (an absent file is a valid
// empty state) and keeps the stations directory for lazy lookups.
func NewService(fs afero.Fs, settings config.Settings, subsPath string, log *slog.Logger) (*Service, error) {
	s := &Service{
		fs:       fs,
		settings: settings,
		subsPath: subsPath,
		log:      log,
	}
	if err := s.loadSubs(); err != nil {
		return nil, err
	}
	return s, nil
}

// Kind reports what the channel number is bound to, reserved slots included.
func (s *Service) Kind(channel int) models.SourceKind {
	switch {
	case s.settings.USB != nil && channel == s.settings.USB.ChannelNumber:
		return models.SourceLocalUSB
	case s.settings.Samba != nil && channel == s.settings.Samba.ChannelNumber:
		return models.SourceRemoteCIFS
	case s.settings.CDChannelNumber != nil && channel == *s.settings.CDChannelNumber:
		return models.SourceCD
	default:
		return models.SourceURLList
	}
}

// FindChannelFile scans the stations directory for the first file whose name
// starts with the zero-padded channel number.
func (s *Service) FindChannelFile(channel int) (string, error) {
	entries, err := afero.ReadDir(s.fs, s.settings.StationsDirectory)
	if err != nil {
		return "", &models.ChannelError{
			Kind:    models.ErrFolderRead,
			Path:    s.settings.StationsDirectory,
			Message: err.Error(),
		}
	}

	prefix := fmt.Sprintf("%02d", channel)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return filepath.Join(s.settings.StationsDirectory, name), nil
		}
	}
	return "", &models.ChannelError{Kind: models.ErrNotFound, Channel: channel}
}

// LoadChannelFile finds and parses the channel's definition.
func (s *Service) LoadChannelFile(channel int) (models.ChannelFile, error) {
	path, err := s.FindChannelFile(channel)
	if err != nil {
		return models.ChannelFile{}, err
	}

	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return models.ChannelFile{}, &models.ChannelError{
			Kind:    models.ErrFileRead,
			Path:    path,
			Message: err.Error(),
		}
	}

	var file models.ChannelFile
	if err := toml.Unmarshal([]byte(strings.TrimRight(string(raw), " \t\r\n")), &file); err != nil {
		return models.ChannelFile{}, &models.ChannelError{
			Kind:    models.ErrParse,
			Channel: channel,
			Message: err.Error(),
		}
	}
	return file, nil
}

// podcastFile is the on-disk shape of the subscription list.
type podcastFile struct {
	Stations []models.PodcastSub `toml:"podcast_data_for_all_stations"`
}

func (s *Service) loadSubs() error {
	raw, err := afero.ReadFile(s.fs, s.subsPath)
	if err != nil {
		// No file yet means no subscriptions.
		s.subs = nil
		return nil
	}
	var file podcastFile
	if err := toml.Unmarshal([]byte(strings.TrimRight(string(raw), " \t\r\n")), &file); err != nil {
		return fmt.Errorf("parse podcast file %s: %w", s.subsPath, err)
	}
	s.subs = file.Stations
	return nil
}

// Podcasts returns a copy of the subscription list.
func (s *Service) Podcasts() []models.PodcastSub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PodcastSub, len(s.subs))
	copy(out, s.subs)
	return out
}

// AddPodcast appends a subscription and persists the list. Adding a URL that
// is already subscribed replaces its title instead of duplicating it.
func (s *Service) AddPodcast(sub models.PodcastSub) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.subs {
		if s.subs[i].URL == sub.URL {
			s.subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		s.subs = append(s.subs, sub)
	}
	return s.persistSubs()
}

// RemovePodcast deletes the subscription with the given URL and persists.
func (s *Service) RemovePodcast(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].URL == url {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return s.persistSubs()
		}
	}
	return fmt.Errorf("podcast %s: not subscribed", url)
}

// persistSubs writes the list to a temp file and renames it into place so a
// power cut never leaves a half-written file. Callers hold the lock.
func (s *Service) persistSubs() error {
	payload, err := toml.Marshal(podcastFile{Stations: s.subs})
	if err != nil {
		return fmt.Errorf("encode podcast file: %w", err)
	}
	tmp := s.subsPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write podcast file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.subsPath); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace podcast file: %w", err)
	}
	s.log.Info("podcast subscriptions saved", "count", len(s.subs), "path", s.subsPath)
	return nil
}
