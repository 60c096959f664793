package keypad

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"lcdradio/config"
	"lcdradio/models"
)

// Service reads the numeric keypad, which presents itself as a keyboard on
// stdin. Channels are entered as two digits; a lone digit is discarded when
// the input timeout passes without a second one.
type Service struct {
	settings config.Settings
	in       io.Reader
	fd       int // -1 when the input is not a terminal
	events   chan models.Event
	log      *slog.Logger
}

func NewService(settings config.Settings, log *slog.Logger) *Service {
	s := newWithReader(settings, os.Stdin, log)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		s.fd = int(os.Stdin.Fd())
	}
	return s
}

func newWithReader(settings config.Settings, in io.Reader, log *slog.Logger) *Service {
	return &Service{
		settings: settings,
		in:       in,
		fd:       -1,
		events:   make(chan models.Event, 8),
		log:      log,
	}
}

// Events is consumed by the event loop. It closes when the input ends, which
// the loop treats as a shutdown request.
func (s *Service) Events() <-chan models.Event { return s.events }

// Run reads keys until the context ends or the input closes. The terminal
// sits in raw mode for the duration so single key presses arrive unbuffered.
func (s *Service) Run(ctx context.Context) error {
	if s.fd >= 0 {
		oldState, err := term.MakeRaw(s.fd)
		if err != nil {
			return err
		}
		defer term.Restore(s.fd, oldState)
	}

	keys := make(chan byte)
	go s.readKeys(ctx, keys)

	defer close(s.events)

	pendingDigit := -1
	timeout := s.settings.InputTimeout.Std()
	timer := time.NewTimer(timeout)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			pendingDigit = -1
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			if key >= '0' && key <= '9' {
				digit := int(key - '0')
				if pendingDigit < 0 {
					pendingDigit = digit
					timer.Reset(timeout)
					continue
				}
				timer.Stop()
				channel := pendingDigit*10 + digit
				pendingDigit = -1
				s.emit(ctx, models.Event{Kind: models.EventSelectChannel, Channel: channel})
				continue
			}
			pendingDigit = -1
			timer.Stop()
			ev, quit := keyEvent(key)
			if quit {
				return nil
			}
			if ev.Kind != models.EventNone {
				s.emit(ctx, ev)
			}
		}
	}
}

func (s *Service) readKeys(ctx context.Context, keys chan<- byte) {
	defer close(keys)
	buf := make([]byte, 1)
	for {
		n, err := s.in.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Warn("keypad read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		select {
		case keys <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) emit(ctx context.Context, ev models.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// keyEvent maps the non-digit keys of the keypad. quit is set for the keys
// that end the program.
func keyEvent(key byte) (ev models.Event, quit bool) {
	switch key {
	case '\r', '\n':
		return models.Event{Kind: models.EventPlayPause}, false
	case '*':
		return models.Event{Kind: models.EventVolumeUp}, false
	case '/':
		return models.Event{Kind: models.EventVolumeDown}, false
	case '-':
		return models.Event{Kind: models.EventPreviousTrack}, false
	case '+':
		return models.Event{Kind: models.EventNextTrack}, false
	case '.':
		return models.Event{Kind: models.EventEject}, false
	case '!':
		return models.Event{Kind: models.EventShowStatus}, false
	case '^':
		return models.Event{Kind: models.EventBlankScreen}, false
	case '$':
		return models.Event{Kind: models.EventDumpMounts}, false
	case '>':
		return models.Event{Kind: models.EventPodcastNext}, false
	case '<':
		return models.Event{Kind: models.EventPodcastPrevious}, false
	case 'q', 'Q', 0x08, 0x7f:
		return models.Event{}, true
	default:
		return models.Event{}, false
	}
}
