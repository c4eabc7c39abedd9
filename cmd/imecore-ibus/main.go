//go:build linux

// imecore-ibus is the Linux IBus input method engine.
//
// It connects to the IBus daemon over D-Bus, exports an engine factory and
// serves one engine per input context.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/imecore-ibus
//  2. Run: imecore-ibus --install
//  3. Restart IBus: ibus restart
//  4. Enable via: ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"context"
	"flag"
	"fmt"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"imecore/internal/config"
	"imecore/internal/ime"
	"imecore/internal/logging"
	"imecore/internal/metrics"
)

const crashRetention = 30 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "path to config file")
	installFlag := flag.Bool("install", false, "install the IBus component")
	uninstallFlag := flag.Bool("uninstall", false, "uninstall the IBus component")
	activateFlag := flag.Bool("activate", false, "make imecore the current IBus engine")
	metricsAddr := flag.String("metrics-addr", "", "serve metrics on this address, e.g. 127.0.0.1:9464")
	flag.Bool("ibus", false, "started by ibus-daemon")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *installFlag:
		err = install(cfg.IBus)
	case *uninstallFlag:
		err = uninstall(cfg.IBus)
	case *activateFlag:
		err = ime.Activate(cfg.IBus.EngineName)
	default:
		err = serve(loader, cfg, *metricsAddr)
	}
	loader.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func install(cfg config.IBusConfig) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	exe, _ = filepath.EvalSymlinks(exe)

	path, err := ime.InstallComponent(ime.ComponentDir(), ime.NewComponent(cfg, exe))
	if err != nil {
		return err
	}
	fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", path)
	return nil
}

func uninstall(cfg config.IBusConfig) error {
	if err := ime.UninstallComponent(ime.ComponentDir(), cfg.EngineName); err != nil {
		return err
	}
	fmt.Println("Uninstalled successfully.")
	return nil
}

// connect dials the IBus daemon's bus, falling back to the session bus.
func connect() (*dbus.Conn, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return dbus.Connect(addr)
	}
	return dbus.SessionBus()
}

func serve(loader *config.Loader, cfg *config.Config, metricsAddr string) error {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return err
	}
	logCfg.Component = "imecore-ibus"
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  logging.DefaultCrashDir(),
		Version:   ime.Version,
		Component: "ibus",
		Logger:    logger.WithComponent("crash").Logger,
	})
	if err := crash.CleanupOldCrashReports(crashRetention); err != nil {
		logger.Warn("crash report cleanup failed", "error", err)
	}

	m := metrics.NewEngineMetrics(nil)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(m.Registry()), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "addr", metricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	// Engines created after a config reload pick up the new settings;
	// live engines keep theirs until IBus recreates them.
	var mu sync.Mutex
	current := cfg
	engineLogger := logger.WithComponent("engine").Logger
	factory := func(sink ime.CommitSink) (*ime.Engine, error) {
		mu.Lock()
		c := current
		mu.Unlock()
		return ime.NewFromConfig(c, engineLogger, ime.WithCommitSink(sink), ime.WithMetrics(m))
	}

	loader.OnChange(func(c *config.Config) {
		mu.Lock()
		current = c
		mu.Unlock()
		logger.Info("configuration reloaded", "path", loader.Path())
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", "error", err)
	} else {
		go logReloadErrors(loader, logger.Logger)
	}

	conn, err := connect()
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}

	server := ime.NewIBusServer(cfg.IBus, factory, crash, logger.WithComponent("ibus").Logger)
	server.SetMetrics(m)
	if err := server.Start(conn); err != nil {
		conn.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for done := false; !done; {
		select {
		case <-hup:
			if err := logger.Rotate(); err != nil {
				logger.Warn("log rotation failed", "error", err)
			}
		case <-ctx.Done():
			done = true
		}
	}

	logger.Info("shutting down", "engines", server.Engines())
	return server.Stop()
}

func logReloadErrors(loader *config.Loader, logger *slog.Logger) {
	for err := range loader.Errors() {
		logger.Warn("config reload failed", "error", err)
	}
}

func metricsMux(r *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return mux
}
