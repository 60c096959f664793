// Package mount flips external media bindings between mounted and unmounted
// through the mount(2) family, mapping errnos onto the player's error kinds.
package mount

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"lcdradio/models"
)

// Syscaller is the slice of the mount API the manager needs. The real
// implementation calls into the kernel; tests substitute a fake.
type Syscaller interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
}

type unixSyscaller struct{}

func (unixSyscaller) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (unixSyscaller) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

// Manager mounts and unmounts the USB and CIFS bindings. Local and remote
// media are mutually exclusive: mounting one side first unmounts the other.
type Manager struct {
	sys Syscaller
	log *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{sys: unixSyscaller{}, log: log}
}

// NewManagerWithSyscaller is for tests.
func NewManagerWithSyscaller(sys Syscaller, log *slog.Logger) *Manager {
	return &Manager{sys: sys, log: log}
}

// Mount brings binding up read-only. conflicting, when non-nil and mounted,
// is unmounted first; a failed unmount aborts the whole operation.
func (m *Manager) Mount(binding, conflicting *models.MediaBinding) error {
	if binding.IsMounted {
		return nil
	}
	if conflicting != nil && conflicting.IsMounted {
		if err := m.Unmount(conflicting); err != nil {
			return err
		}
	}

	data, err := mountData(binding)
	if err != nil {
		return err
	}

	err = m.sys.Mount(binding.Device, binding.MountPoint, binding.FSType,
		unix.MS_RDONLY|unix.MS_NOATIME, data)
	if err == nil {
		binding.IsMounted = true
		m.log.Info("mounted media", "device", binding.Device, "target", binding.MountPoint, "fstype", binding.FSType)
		return nil
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return &models.ChannelError{Kind: models.ErrMountFailed, Message: err.Error()}
	}
	switch errno {
	case unix.ENOENT:
		return &models.ChannelError{Kind: models.ErrNoDevice}
	case unix.EBUSY:
		// Already mounted by an earlier run.
		binding.IsMounted = true
		return nil
	case unix.ENXIO:
		return &models.ChannelError{Kind: models.ErrNoSuchDeviceOrAddress, Name: binding.Device}
	default:
		return &models.ChannelError{
			Kind:    models.ErrMountFailed,
			Errno:   int(errno),
			Message: errno.Error(),
		}
	}
}

// Unmount lazily detaches the binding's mount point. IsMounted is cleared
// only on success.
func (m *Manager) Unmount(binding *models.MediaBinding) error {
	if !binding.IsMounted {
		return nil
	}
	if err := m.sys.Unmount(binding.MountPoint, unix.MNT_DETACH); err != nil {
		return &models.ChannelError{Kind: models.ErrUnmountFailed, Message: err.Error()}
	}
	binding.IsMounted = false
	m.log.Info("unmounted media", "target", binding.MountPoint)
	return nil
}

// UnmountAll detaches every mounted binding, reporting the first failure but
// attempting them all.
func (m *Manager) UnmountAll(bindings ...*models.MediaBinding) error {
	var firstErr error
	for _, b := range bindings {
		if b == nil || !b.IsMounted {
			continue
		}
		if err := m.Unmount(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func mountData(binding *models.MediaBinding) (string, error) {
	switch binding.FSType {
	case "vfat":
		return "iocharset=utf8,utf8", nil
	case "cifs":
		data := ""
		if binding.Auth != nil {
			data = fmt.Sprintf("user=%s,pass=%s,", binding.Auth.Username, binding.Auth.Password)
		}
		if binding.Version != "" {
			data += fmt.Sprintf("vers=%s,", binding.Version)
		}
		return data + "iocharset=utf8", nil
	default:
		return "", &models.ChannelError{Kind: models.ErrMountFailed, Message: "unsupported fstype " + binding.FSType}
	}
}
