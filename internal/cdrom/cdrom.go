// Package cdrom talks to the CD drive through the kernel's cdrom ioctls.
// The device node is always /dev/cdrom.
package cdrom

import (
	"errors"
	"io/fs"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"

	"lcdradio/models"
)

const DevicePath = "/dev/cdrom"

// cdrom ioctl requests, from linux/cdrom.h.
const (
	cdromDriveStatus = 0x5326
	cdromDiscStatus  = 0x5327
	cdromReadTOCHdr  = 0x5305
	cdromEject       = 0x5309
)

// Status sentinels.
const (
	cdsDiscOK = 4
	cdsAudio  = 100
	cdsMixed  = 105
)

type tocHeader struct {
	FirstTrack uint8
	LastTrack  uint8
}

// Device is the slice of the drive the reader needs; tests substitute a
// fake for the real ioctl-backed one.
type Device interface {
	Status(request uint) (int, error)
	TOCHeader() (first, last uint8, code int, err error)
	Eject() error
	Close() error
}

// Opener yields a handle on the drive. The production opener is OpenDevice.
type Opener func() (Device, error)

type unixDevice struct {
	fd int
}

// OpenDevice opens /dev/cdrom non-blocking so a missing disc does not hang
// the open itself.
func OpenDevice() (Device, error) {
	fd, err := unix.Open(DevicePath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return &unixDevice{fd: fd}, nil
}

func (d *unixDevice) Status(request uint) (int, error) {
	return unix.IoctlRetInt(d.fd, request)
}

func (d *unixDevice) TOCHeader() (uint8, uint8, int, error) {
	var toc tocHeader
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), cdromReadTOCHdr,
		uintptr(unsafe.Pointer(&toc)))
	if errno != 0 {
		return 0, 0, int(errno), errno
	}
	return toc.FirstTrack, toc.LastTrack, 0, nil
}

func (d *unixDevice) Eject() error {
	_, err := unix.IoctlRetInt(d.fd, cdromEject)
	return err
}

func (d *unixDevice) Close() error {
	return unix.Close(d.fd)
}

// ReadTrackRange checks the drive and disc status and reads the TOC header,
// returning the inclusive audio track range. A zero-length TOC comes back as
// (0, -1, nil).
func ReadTrackRange(open Opener) (first, last int, err error) {
	dev, err := open()
	if err != nil {
		return 0, 0, openError(err)
	}
	defer dev.Close()

	status, err := dev.Status(cdromDriveStatus)
	if err != nil || status != cdsDiscOK {
		return 0, 0, &models.ChannelError{Kind: models.ErrCDStatusFailed, Code: status}
	}

	disc, err := dev.Status(cdromDiscStatus)
	if err != nil || (disc != cdsAudio && disc != cdsMixed) {
		return 0, 0, &models.ChannelError{Kind: models.ErrCDStatusFailed, Code: disc}
	}
	if disc == cdsMixed {
		slog.Warn("mixed-mode disc, playing its audio tracks", "status", disc)
	}

	lo, hi, code, err := dev.TOCHeader()
	if err != nil {
		return 0, 0, &models.ChannelError{Kind: models.ErrCDTocFailed, Code: code}
	}
	if hi < lo {
		return 0, -1, nil
	}
	return int(lo), int(hi), nil
}

// Eject opens the tray.
func Eject(open Opener) error {
	dev, err := open()
	if err != nil {
		return openError(err)
	}
	defer dev.Close()
	return dev.Eject()
}

func openError(err error) error {
	cerr := &models.ChannelError{Kind: models.ErrCDOpenFailed, Message: err.Error()}
	var errno unix.Errno
	if errors.As(err, &errno) {
		cerr.Errno = int(errno)
	} else {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && errors.As(pathErr.Err, &errno) {
			cerr.Errno = int(errno)
		}
	}
	return cerr
}
