package telemetry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/avast/retry-go/v4"

	"lcdradio/config"
	"lcdradio/models"
)

const (
	pingSpacing   = 2 * time.Second
	thermalFile   = "/sys/class/thermal/thermal_zone0/temp"
	throttledFile = "/sys/devices/platform/soc/soc:firmware/get_throttled"
)

// Service watches the network: it discovers the Wi-Fi interface, gateway and
// addresses once at startup, then alternates pings between the gateway and
// the station currently playing. Remote pings stop after the configured
// count so an all-day stream does not ping its server forever.
type Service struct {
	settings config.Settings
	log      *slog.Logger

	mu          sync.Mutex
	network     models.NetworkData
	ping        models.PingData
	target      string
	remotePings int
	pingLocal   bool

	// bootstrap is tried once when discovery finds no network, typically
	// joining the Wi-Fi named in a credentials file on the USB stick.
	bootstrap func(ctx context.Context) error

	// Command and file seams for tests.
	runCmd   func(ctx context.Context, name string, args ...string) (string, error)
	readFile func(path string) (string, error)
}

func NewService(settings config.Settings, log *slog.Logger) *Service {
	return &Service{
		settings: settings,
		log:      log,
		runCmd: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return string(out), err
		},
		readFile: func(path string) (string, error) {
			raw, err := os.ReadFile(path)
			return string(raw), err
		},
	}
}

// Snapshot returns the latest readings.
func (s *Service) Snapshot() (models.NetworkData, models.PingData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network, s.ping
}

// SetPingTarget points the prober at a new remote host and restarts the
// remote ping allowance. An empty host stops remote probing.
func (s *Service) SetPingTarget(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = host
	s.remotePings = 0
	s.pingLocal = false
}

// SetBootstrap installs the fallback used when discovery finds no network.
func (s *Service) SetBootstrap(f func(ctx context.Context) error) { s.bootstrap = f }

// Startup discovers the network, falling back to the bootstrap when no
// network is found. Discovery retries for a while because the radio
// usually boots faster than the Wi-Fi association completes. Call it
// before the player loop starts; the bootstrap touches the media mounts.
func (s *Service) Startup(ctx context.Context) {
	if err := s.discover(ctx); err != nil {
		s.log.Warn("network discovery failed", "error", err)
		if s.bootstrap != nil {
			if err := s.bootstrap(ctx); err != nil {
				s.log.Warn("wifi bootstrap failed", "error", err)
			}
		}
	}
	s.refreshBoard()
}

// Run probes the network until the context ends.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(pingSpacing)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
			s.refreshBoard()
		}
	}
}

func (s *Service) discover(ctx context.Context) error {
	return retry.Do(
		func() error {
			dev, err := s.wifiDevice(ctx)
			if err != nil {
				return err
			}
			ip, gateway, err := s.deviceAddresses(ctx, dev)
			if err != nil {
				return err
			}
			ssid, strength := s.wifiDetails(ctx)

			s.mu.Lock()
			s.network.Interface = dev
			s.network.LocalIP = ip
			s.network.Gateway = gateway
			s.network.SSID = ssid
			s.network.WiFiStrength = strength
			s.mu.Unlock()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(40),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (s *Service) wifiDevice(ctx context.Context) (string, error) {
	out, err := s.runCmd(ctx, "nmcli", "-t", "-f", "DEVICE,TYPE,STATE", "device")
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 3 && fields[1] == "wifi" && fields[2] == "connected" {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("no connected wifi device")
}

func (s *Service) deviceAddresses(ctx context.Context, dev string) (ip, gateway string, err error) {
	out, err := s.runCmd(ctx, "nmcli", "-t", "-f", "IP4.ADDRESS,IP4.GATEWAY", "device", "show", dev)
	if err != nil {
		return "", "", fmt.Errorf("show device %s: %w", dev, err)
	}
	for _, line := range strings.Split(out, "\n") {
		value, ok := strings.CutPrefix(line, "IP4.ADDRESS[1]:")
		if ok {
			// Drop the prefix length.
			ip, _, _ = strings.Cut(value, "/")
			continue
		}
		if value, ok = strings.CutPrefix(line, "IP4.GATEWAY:"); ok {
			gateway = value
		}
	}
	if ip == "" || gateway == "" {
		return "", "", fmt.Errorf("device %s has no address yet", dev)
	}
	return ip, gateway, nil
}

func (s *Service) wifiDetails(ctx context.Context) (ssid, strength string) {
	out, err := s.runCmd(ctx, "nmcli", "-t", "-f", "IN-USE,SSID,SIGNAL", "device", "wifi")
	if err != nil {
		return "", ""
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 3 && fields[0] == "*" {
			return fields[1], fields[2]
		}
	}
	return "", ""
}

// ConnectWiFi joins the network named in a credentials file, typically
// pass.toml at the root of a USB stick, so a new radio can be put on a
// network without a keyboard.
func (s *Service) ConnectWiFi(ctx context.Context, ssid, password string) error {
	_, err := s.runCmd(ctx, "nmcli", "device", "wifi", "connect", ssid, "password", password)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", ssid, err)
	}
	s.log.Info("joined wifi network", "ssid", ssid)
	return s.discover(ctx)
}

// probe sends one ping, alternating between the gateway and the remote
// station until the remote allowance is used up.
func (s *Service) probe(ctx context.Context) {
	s.mu.Lock()
	target := s.network.Gateway
	where := models.PingLocal
	remoteAllowed := s.target != "" && s.remotePings < s.settings.MaxNumberOfRemotePings
	if remoteAllowed && !s.pingLocal {
		target = s.target
		where = models.PingRemote
		s.remotePings++
	}
	s.pingLocal = !s.pingLocal
	s.mu.Unlock()

	if target == "" {
		return
	}

	s.setPing(models.PingData{Where: where, Outcome: models.PingSent, Target: target})
	out, err := s.runCmd(ctx, "/bin/ping", "-c", "1", "-W", "3", target)
	if err != nil {
		s.setPing(models.PingData{Where: where, Outcome: models.PingTimedOut, Target: target})
		return
	}
	rtt, err := parsePingTime(out)
	if err != nil {
		s.log.Warn("unparseable ping output", "target", target, "error", err)
		s.setPing(models.PingData{Where: where, Outcome: models.PingTimedOut, Target: target})
		return
	}
	s.setPing(models.PingData{Where: where, Outcome: models.PingResponseReceived, Target: target, RTT: rtt})
}

func (s *Service) setPing(p models.PingData) {
	s.mu.Lock()
	s.ping = p
	s.mu.Unlock()
}

// refreshBoard reads the SoC temperature and throttle state.
func (s *Service) refreshBoard() {
	if raw, err := s.readFile(thermalFile); err == nil {
		if milli, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			s.mu.Lock()
			s.network.CPUTempC = milli / 1000
			s.mu.Unlock()
		}
	}
	if raw, err := s.readFile(throttledFile); err == nil {
		s.mu.Lock()
		s.network.Throttled = throttleText(strings.TrimSpace(raw))
		s.mu.Unlock()
	}
}

// throttleText renders a non-zero throttle register compactly; a healthy
// board shows nothing.
func throttleText(raw string) string {
	value, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 64)
	if err != nil || value == 0 {
		return ""
	}
	return fmt.Sprintf("Thr%x", value)
}

// parsePingTime extracts the round-trip time from ping's summary line:
// "rtt min/avg/max/mdev = 0.423/0.423/0.423/0.000 ms". The max is reported,
// which for a single ping is the one measurement.
func parsePingTime(out string) (time.Duration, error) {
	_, after, found := strings.Cut(out, "mdev = ")
	if !found {
		return 0, fmt.Errorf("no rtt summary")
	}
	line, _, _ := strings.Cut(after, " ")
	parts := strings.Split(line, "/")
	if len(parts) < 4 {
		return 0, fmt.Errorf("malformed rtt summary %q", line)
	}
	ms, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed rtt value %q", parts[2])
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
