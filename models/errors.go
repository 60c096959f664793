package models

import "fmt"

// ChannelErrorKind enumerates the failure modes of channel resolution and
// media mounting.
type ChannelErrorKind int

const (
	ErrNotFound ChannelErrorKind = iota
	ErrFolderRead
	ErrEntryRead
	ErrFileRead
	ErrParse
	ErrAlbumNotFound
	ErrNoUSBConfigured
	ErrNoDevice
	ErrMountFailed
	ErrUSBRead
	ErrNoSuchDeviceOrAddress
	ErrCDOpenFailed
	ErrCDStatusFailed
	ErrCDTocFailed
	ErrUnmountFailed
	ErrEmptyTrackList
)

// ChannelError is the sum type for everything that can go wrong between a
// keypad entry and a playing track. Each kind renders to one LCD line.
type ChannelError struct {
	Kind    ChannelErrorKind
	Channel int    // ErrParse
	Path    string // ErrFolderRead, ErrFileRead
	Name    string // ErrAlbumNotFound
	Message string
	Errno   int // ErrCDOpenFailed (0 when unknown)
	Code    int // ErrCDStatusFailed, ErrCDTocFailed
}

func (e *ChannelError) Error() string { return e.LCDMessage() }

// Is lets callers branch with errors.Is on a kind-only template.
func (e *ChannelError) Is(target error) bool {
	t, ok := target.(*ChannelError)
	return ok && t.Kind == e.Kind
}

// LCDMessage returns the fixed single-line rendering for the error.
func (e *ChannelError) LCDMessage() string {
	switch e.Kind {
	case ErrNotFound:
		return "Channel not found"
	case ErrFolderRead:
		return fmt.Sprintf("Could not read channels folder %s; got error %s", e.Path, e.Message)
	case ErrEntryRead:
		return fmt.Sprintf("Error reading channel folder entry %s", e.Message)
	case ErrFileRead:
		return fmt.Sprintf("Could not read channel file %s; got error %s", e.Path, e.Message)
	case ErrParse:
		return fmt.Sprintf("%d, %s", e.Channel, e.Message)
	case ErrAlbumNotFound:
		return fmt.Sprintf("Album %s not found", e.Name)
	case ErrNoUSBConfigured:
		return "No USB device but one was requested"
	case ErrNoDevice:
		return "No USB device found"
	case ErrMountFailed:
		return fmt.Sprintf("When trying to mount a device got error %s", e.Message)
	case ErrUSBRead:
		return fmt.Sprintf("When trying to read USB memory stick got error %s", e.Message)
	case ErrNoSuchDeviceOrAddress:
		return fmt.Sprintf("No such device or address %s", e.Name)
	case ErrCDOpenFailed:
		switch e.Errno {
		case 0:
			return "CD open error"
		case 2:
			return "No CD drive"
		case 123:
			return "No CD in drive"
		default:
			return fmt.Sprintf("CD Open error %d", e.Errno)
		}
	case ErrCDStatusFailed:
		switch e.Code {
		case 0:
			return "No info on CD in drive"
		case 1:
			return "no CD in drive."
		case 2:
			return "CD drive tray open"
		case 3:
			return "CD drive not ready"
		case 101, 102, 103, 104:
			return "Data CD no audio"
		default:
			return fmt.Sprintf("unexpected CD error %d", e.Code)
		}
	case ErrCDTocFailed:
		return fmt.Sprintf("When getting number of CD tracks, got error %d", e.Code)
	case ErrUnmountFailed:
		return fmt.Sprintf("Failed to unmount the device mounted on %s", e.Message)
	case ErrEmptyTrackList:
		return "No audio files found"
	default:
		return fmt.Sprintf("unexpected channel error %d", e.Kind)
	}
}

// NewChannelError builds an error of the given kind with only a message.
func NewChannelError(kind ChannelErrorKind, message string) *ChannelError {
	return &ChannelError{Kind: kind, Message: message}
}
