// LockWatch Server - Central coordination hub for LockWatch agents
// Tracks registered devices, queues owner commands, and streams events
// to dashboard clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"lockwatch/common/config"
	"lockwatch/common/logger"
	"lockwatch/common/protocol"
	"lockwatch/common/ws"
	"lockwatch/server/storage"

	"github.com/kardianos/service"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	serverLogger *logger.Logger
	serverStore  storage.Store
	serverConfig *Config
)

var configPathFlag string

func main() {
	flag.StringVar(&configPathFlag, "config", "", "Path to config file (default: search standard locations)")
	svcFlag := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	writeConfig := flag.Bool("write-config", false, "Write a default config file and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lockwatch-server %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return
	}

	if *writeConfig {
		path := configPathFlag
		if path == "" {
			path = config.GetConfigSearchPaths("server.toml", "server")[0]
		}
		if err := WriteDefaultConfig(path); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	if *svcFlag != "" {
		handleServiceCommand(*svcFlag)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx); err != nil {
		log.Fatal(err)
	}
}

func runServer(ctx context.Context) error {
	isService := !service.Interactive()

	cfg, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	serverConfig = cfg

	logDir, err := config.GetLogDirectory("server", isService)
	if err != nil {
		logDir = ""
	}
	serverLogger = logger.New("server", logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	storage.SetLogger(serverLogger)

	serverLogger.Info("Server starting",
		"version", Version, "commit", GitCommit,
		"go", runtime.Version(), "os", runtime.GOOS, "arch", runtime.GOARCH)

	if cfg.Database.Path == "" && cfg.Database.Driver != "postgres" {
		dataDir, err := config.GetDataDirectory("server", isService)
		if err != nil {
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}
		cfg.Database.Path = dataDir + string(os.PathSeparator) + "server.db"
	}

	serverStore, err = storage.NewStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer serverStore.Close()
	serverLogger.Info("Storage initialized", "driver", cfg.Database.Driver)

	eventHub = ws.NewHub()
	defer eventHub.Stop()

	mux := http.NewServeMux()
	setupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runMaintenanceLoop(ctx, cfg)

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	serverLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serverLogger.Warn("Graceful shutdown incomplete", "error", err)
	}
	return nil
}

func loadServerConfig() (*Config, error) {
	path := configPathFlag
	if path == "" {
		found, _, err := config.FindConfigFile("server.toml", "server")
		if err == nil {
			path = found
		}
	}
	return LoadConfig(path)
}

func setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/api/version", handleVersion)

	// Agent API
	mux.HandleFunc("/api/v1/agent/register", handleAgentRegister)
	mux.HandleFunc("/api/v1/approved_folders/", handleApprovedFolders)

	// Shared device prefix: agent state/report/message_ack, owner
	// get/delete/activity
	mux.HandleFunc("/api/v1/devices", handleDevices)
	mux.HandleFunc("/api/v1/devices/", handleDevices)

	// Owner API
	mux.HandleFunc("/api/v1/trigger_action", handleTriggerAction)
	mux.HandleFunc("/api/v1/clear_alarm", handleClearAlarm)
	mux.HandleFunc("/api/v1/set_geofence", handleSetGeofence)
	mux.HandleFunc("/api/v1/link_device", handleLinkDevice)

	// Remote wipe and browse
	mux.HandleFunc("/api/v1/wipe/", handleWipe)

	// Dashboard event stream
	mux.HandleFunc("/api/v1/events", handleEvents)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

// runMaintenanceLoop expires stale browse requests and, when
// configured, flags silent devices as missing.
func runMaintenanceLoop(ctx context.Context, cfg *Config) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if cfg.Server.BrowseTTLMinutes > 0 {
			ttl := time.Duration(cfg.Server.BrowseTTLMinutes) * time.Minute
			if n, err := serverStore.ExpireBrowseRequests(ctx, ttl); err != nil {
				serverLogger.Warn("Browse expiry sweep failed", "error", err)
			} else if n > 0 {
				serverLogger.Debug("Expired stale browse requests", "count", n)
			}
		}

		if cfg.Server.MissingAfterMinutes > 0 {
			sweepSilentDevices(ctx, time.Duration(cfg.Server.MissingAfterMinutes)*time.Minute)
		}
	}
}

// sweepSilentDevices marks devices missing when the agent has not
// reported within the cutoff. Already-missing and wiped devices are
// left alone.
func sweepSilentDevices(ctx context.Context, cutoff time.Duration) {
	devices, err := serverStore.ListDevices(ctx, "")
	if err != nil {
		serverLogger.Warn("Missing-device sweep failed", "error", err)
		return
	}

	for _, device := range devices {
		if device.IsMissing || device.Status == protocol.StatusWiped {
			continue
		}
		if time.Since(device.LastSeen) < cutoff {
			continue
		}
		if err := serverStore.SetMissing(ctx, device.DeviceID, true); err != nil {
			serverLogger.Warn("Failed to flag device missing", "device_id", device.DeviceID, "error", err)
			continue
		}
		serverLogger.Warn("Device flagged missing",
			"device_id", device.DeviceID, "last_seen", device.LastSeen)
		serverStore.AddActivity(ctx, device.DeviceID, "marked_missing", "no agent contact")
		broadcastEvent(ws.EventStatusChanged, device.DeviceID, map[string]interface{}{
			"is_missing": true,
		})
	}
}
