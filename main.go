package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"lcdradio/api"
	"lcdradio/config"
	"lcdradio/handlers"
	"lcdradio/internal/cdrom"
	"lcdradio/internal/display"
	"lcdradio/internal/mount"
	"lcdradio/internal/pipeline"
	"lcdradio/models"
	"lcdradio/services/catalog"
	"lcdradio/services/keypad"
	"lcdradio/services/playback"
	"lcdradio/services/player"
	"lcdradio/services/podcast"
	"lcdradio/services/resolve"
	"lcdradio/services/telemetry"
)

var version = "dev"

const (
	defaultLCDPath = "/dev/lcd"
	defaultLogPath = "/var/log/lcdradio/lcdradio.log"
	webListenAddr  = ":8000"
)

// defaultConfigPath is config.toml next to the executable.
func defaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(filepath.Dir(exe), "config.toml")
}

func main() {
	var (
		configPath  string
		lcdPath     string
		showVersion bool
	)
	cfgDefault := defaultConfigPath()
	flag.StringVar(&configPath, "c", cfgDefault, "path to the config file")
	flag.StringVar(&configPath, "C", cfgDefault, "path to the config file")
	flag.StringVar(&configPath, "config", cfgDefault, "path to the config file")
	flag.StringVar(&lcdPath, "display", defaultLCDPath, "LCD device node")
	flag.BoolVar(&showVersion, "v", false, "print the version")
	flag.BoolVar(&showVersion, "V", false, "print the version")
	flag.BoolVar(&showVersion, "version", false, "print the version")
	flag.Parse()

	if showVersion {
		// Prints and keeps going so the version lands in the journal.
		fmt.Printf("lcdradio %s (built %s)\n", version, player.BuildDate)
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument %q\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	log := setupLogging()
	log.Info("starting", "version", version, "config", configPath)

	// The panel is opened before anything else so later failures can be
	// shown on it.
	lcd, err := display.Open(lcdPath, log)
	if err != nil {
		log.Error("open LCD failed", "path", lcdPath, "error", err)
		os.Exit(1)
	}
	defer lcd.Close()

	if err := run(lcd, configPath, log); err != nil {
		log.Error("fatal", "error", err)
		showFatal(lcd, err)
		os.Exit(1)
	}
}

func run(lcd *display.Device, configPath string, log *slog.Logger) error {
	fs := afero.NewOsFs()
	settings, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}

	cat, err := catalog.NewService(fs, settings,
		filepath.Join(settings.StationsDirectory, "podcasts.toml"), log)
	if err != nil {
		return err
	}

	pipe, err := pipeline.NewMpvPipeline(log)
	if err != nil {
		return fmt.Errorf("start media pipeline: %w", err)
	}

	mounts := mount.NewManager(log)
	usb, samba := mediaBindings(settings)
	resolver := resolve.NewService(fs, settings, cat, mounts, cdrom.OpenDevice, log)
	controller := playback.NewController(pipe, settings, log)
	telem := telemetry.NewService(settings, log)
	keys := keypad.NewService(settings, log)
	broadcaster := handlers.NewBroadcaster(log)
	feeds := podcast.NewService(log)

	webEvents := make(chan models.Event, 16)
	loop := player.NewService(player.Deps{
		Settings: settings,
		Screen:   player.NewScreen(lcd, scrollParams(settings)),
		Control:  controller,
		Resolver: resolver,
		Mounts:   mounts,
		Catalog:  cat,
		Telem:    telem,
		FS:       fs,
		USB:      usb,
		Samba:    samba,
		Keys:     keys.Events(),
		Web:      webEvents,
		Bus:      pipe.Bus(),
		Notify:   broadcaster.Notify,
		Log:      log,
	})

	// A radio that boots off-network can be given credentials on the USB
	// stick: pass.toml at the root with the ssid and password.
	telem.SetBootstrap(func(ctx context.Context) error {
		return wifiFromUSB(ctx, fs, telem, mounts, usb, samba)
	})

	if f := settings.AuralNotifications.FilenameStartup; f != "" {
		pipe.SetURI("file://" + f)
		if err := pipe.SetState(pipeline.StatePlaying); err != nil {
			log.Warn("startup sound failed", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bring the network up before the loop starts; only the loop may touch
	// the mounts once it is running.
	telem.Startup(ctx)

	server := &http.Server{
		Addr:    webListenAddr,
		Handler: api.NewRouter(webEvents, broadcaster, cat, feeds, log),
	}

	var wg conc.WaitGroup
	wg.Go(func() { telem.Run(ctx) })
	wg.Go(func() {
		if err := keys.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn("keypad stopped", "error", err)
		}
	})
	wg.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("web server failed", "error", err)
		}
	})

	// The event loop runs on this goroutine; everything ends when it does.
	loop.Run(ctx)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("web server shutdown", "error", err)
	}
	wg.Wait()
	return nil
}

func setupLogging() *slog.Logger {
	var w io.Writer = os.Stderr
	if err := os.MkdirAll(filepath.Dir(defaultLogPath), 0o755); err == nil {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   defaultLogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	log := slog.New(slog.NewTextHandler(w, nil))
	slog.SetDefault(log)
	return log
}

func mediaBindings(settings config.Settings) (usb, samba *models.MediaBinding) {
	if settings.USB != nil {
		usb = &models.MediaBinding{
			Device:     settings.USB.Device,
			MountPoint: settings.USB.MountFolder,
			FSType:     "vfat",
		}
	}
	if settings.Samba != nil {
		samba = &models.MediaBinding{
			Device:     settings.Samba.Device,
			MountPoint: settings.Samba.MountFolder,
			FSType:     "cifs",
			Version:    settings.Samba.Version,
		}
		if settings.Samba.Auth != nil {
			samba.Auth = &models.AuthData{
				Username: settings.Samba.Auth.Username,
				Password: settings.Samba.Auth.Password,
			}
		}
	}
	return usb, samba
}

func scrollParams(settings config.Settings) display.ScrollParams {
	return display.ScrollParams{
		MinScroll: settings.Scroll.MinScroll,
		MaxScroll: settings.Scroll.MaxScroll,
		Period:    settings.Scroll.Period(),
	}
}

func wifiFromUSB(ctx context.Context, fs afero.Fs, telem *telemetry.Service, mounts *mount.Manager, usb, samba *models.MediaBinding) error {
	if usb == nil {
		return fmt.Errorf("no usb device configured")
	}
	if err := mounts.Mount(usb, samba); err != nil {
		return err
	}
	defer mounts.Unmount(usb)

	raw, err := afero.ReadFile(fs, filepath.Join(usb.MountPoint, "pass.toml"))
	if err != nil {
		return fmt.Errorf("read wifi credentials: %w", err)
	}
	var creds struct {
		SSID     string `toml:"ssid"`
		Password string `toml:"password"`
	}
	if err := toml.Unmarshal(raw, &creds); err != nil {
		return fmt.Errorf("parse wifi credentials: %w", err)
	}
	if creds.SSID == "" {
		return fmt.Errorf("wifi credentials missing ssid")
	}
	return telem.ConnectWiFi(ctx, creds.SSID, creds.Password)
}

// showFatal puts the failure on the panel; a headless radio has no other way
// to tell the user what went wrong.
func showFatal(lcd *display.Device, err error) {
	b := display.NewTextBuffer()
	b.WriteLines(display.Encode(err.Error()), display.Line1, display.NumLines)
	lcd.WriteBuffer(b)
}
