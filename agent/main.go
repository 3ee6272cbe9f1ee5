// Anti-theft tracking agent in Go
// Cross-platform agent that polls the LockWatch server for owner
// commands and enforces lock, alarm, message, and remote-wipe actions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"lockwatch/agent/agent"
	"lockwatch/agent/storage"
	"lockwatch/common/config"
	"lockwatch/common/logger"
	"lockwatch/common/protocol"

	"github.com/kardianos/service"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"     // Semantic version (e.g., "1.0.0")
	BuildTime = "unknown" // Build timestamp
	GitCommit = "unknown" // Git commit hash
)

// Global structured logger
var appLogger *logger.Logger

// configPathFlag carries the --config value into runInteractive, which
// is also the entry point when running under the service manager
var configPathFlag string

func main() {
	flag.StringVar(&configPathFlag, "config", "", "Path to agent.toml (default: search standard locations)")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	writeConfig := flag.Bool("write-config", false, "Write a default config file and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lockwatch-agent %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return
	}

	if *writeConfig {
		path := configPathFlag
		if path == "" {
			path = config.GetConfigSearchPaths("agent.toml", "agent")[0]
		}
		if err := WriteDefaultAgentConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runInteractive(ctx)
}

func handleServiceCommand(cmd string) {
	prg := &program{}
	svc, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create service directories: %v\n", err)
			os.Exit(1)
		}
		if err := svc.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if err := svc.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service stopped")
	case "run":
		if err := svc.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Service run failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", cmd)
		os.Exit(1)
	}
}

// runInteractive is the agent's main run loop, shared by interactive
// and service modes
func runInteractive(ctx context.Context) {
	isService := !service.Interactive()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.URL == "" {
		fmt.Fprintln(os.Stderr, "No server URL configured; set server.url in agent.toml or SERVER_URL")
		os.Exit(1)
	}

	logDir, err := config.GetLogDirectory("agent", isService)
	if err != nil {
		logDir = ""
	}
	appLogger = logger.New("agent", logger.ParseLevel(cfg.Logging.Level), logDir, 1000)
	defer appLogger.Close()
	agent.SetLogger(appLogger)

	appLogger.Info("LockWatch Agent starting",
		"version", Version, "os", runtime.GOOS, "service_mode", isService)

	dataDir, err := config.GetDataDirectory("agent", isService)
	if err != nil {
		appLogger.Error("Failed to resolve data directory", "error", err)
		os.Exit(1)
	}
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "agent.db")
	}
	stateStore, err := storage.NewAgentStateStore(dbPath)
	if err != nil {
		appLogger.Error("Failed to open agent state database", "error", err, "path", dbPath)
		os.Exit(1)
	}
	defer stateStore.Close()

	if len(cfg.Wipe.ApprovedFolders) > 0 {
		if err := stateStore.SetApprovedFolders(cfg.Wipe.ApprovedFolders); err != nil {
			appLogger.Warn("Failed to persist approved folders", "error", err)
		}
	}

	client := agent.NewServerClient(cfg.Server.URL, time.Duration(cfg.Server.TimeoutSeconds)*time.Second)

	deviceID, err := register(ctx, client, stateStore)
	if err != nil {
		appLogger.Error("Registration aborted", "error", err)
		return
	}

	approvedFolders := func() []string {
		paths, err := stateStore.GetApprovedFolders()
		if err != nil {
			appLogger.Warn("Failed to read approved folders", "error", err)
			return nil
		}
		return paths
	}
	if paths := approvedFolders(); len(paths) > 0 {
		if err := client.SyncApprovedFolders(ctx, deviceID, paths); err != nil {
			appLogger.Warn("Failed to sync approved folders", "error", err)
		}
	}

	locker := agent.NewScreenLocker()
	notifier := agent.NewNotifier()
	executor := agent.NewExecutor(locker, notifier)
	wiper := agent.NewWipeExecutor(client, cfg.Wipe.ReportEvery)

	fingerprint, _ := stateStore.GetFingerprint()
	discovery := agent.NewDiscovery(cfg.Discovery.Port, locker, func() protocol.DeviceInfo {
		status, err := stateStore.GetLastStatus()
		if err != nil || status == "" {
			status = protocol.StatusActive
		}
		return protocol.DeviceInfo{
			DeviceID:        deviceID,
			FingerprintHash: fingerprint,
			Registered:      true,
			Status:          status,
		}
	})
	if err := discovery.Start(); err != nil {
		appLogger.Warn("Discovery endpoint unavailable, local unlock disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			discovery.Stop(shutdownCtx)
		}()
	}

	poller := agent.NewPoller(client, agent.PollerOptions{
		DeviceID:        deviceID,
		Interval:        time.Duration(cfg.Server.PollIntervalSeconds) * time.Second,
		AgentVersion:    Version,
		Executor:        executor,
		Wiper:           wiper,
		WiFi:            agent.NewWiFiSampler(),
		ApprovedFolders: approvedFolders,
		Battery:         agent.ReadBatteryPercent,
		OnStatus: func(status string) {
			if err := stateStore.SetLastStatus(status); err != nil {
				appLogger.Debug("Failed to persist status", "error", err)
			}
		},
	})
	poller.Run(ctx)

	notifier.StopAlarm()
	appLogger.Info("LockWatch Agent stopped")
}

func loadConfig() (*AgentConfig, error) {
	if configPathFlag != "" {
		return LoadAgentConfig(configPathFlag)
	}

	path, _, err := config.FindConfigFile("agent.toml", "agent")
	if err != nil {
		// First run: write defaults to the preferred location and load them
		path = config.GetConfigSearchPaths("agent.toml", "agent")[0]
		if werr := WriteDefaultAgentConfig(path); werr != nil {
			return nil, fmt.Errorf("no config found and default could not be written: %w", werr)
		}
		fmt.Printf("Wrote default config to %s\n", path)
	}
	return LoadAgentConfig(path)
}

// register returns the device identity, negotiating with the server
// only on first run. A cached device_id short-circuits the exchange
// entirely: the id is stable for the life of the hardware, and a
// stolen device booted offline must still start its local defenses.
// First-run registration retries until the server accepts or the
// context ends; it is idempotent by fingerprint, so retrying after a
// lost response is safe.
func register(ctx context.Context, client *agent.ServerClient, state storage.AgentStateStore) (string, error) {
	if cached, err := state.GetDeviceID(); err == nil && cached != "" {
		appLogger.Info("Using cached device identity", "device_id", cached)
		return cached, nil
	}

	hostname, _ := os.Hostname()
	hw := agent.CollectHardwareInfo()
	fp := agent.Fingerprint(hw, hostname, runtime.GOOS)

	if !agent.HasStrongIdentity(hw) {
		appLogger.Warn("No stable hardware identifiers found, fingerprint falls back to hostname")
	}

	req := &protocol.RegisterRequest{
		FingerprintHash: fp,
		Hostname:        hostname,
		OS:              protocol.OSInfo{Family: runtime.GOOS, Arch: runtime.GOARCH},
		Hardware:        hw,
		AgentVersion:    Version,
	}

	backoff := 5 * time.Second
	for {
		resp, err := client.Register(ctx, req)
		if err == nil {
			appLogger.Info("Registered with server",
				"device_id", resp.DeviceID, "already_registered", resp.AlreadyRegistered, "linked", resp.Linked)
			if err := state.SetDeviceID(resp.DeviceID); err != nil {
				appLogger.Warn("Failed to persist device id", "error", err)
			}
			if err := state.SetFingerprint(fp); err != nil {
				appLogger.Warn("Failed to persist fingerprint", "error", err)
			}
			return resp.DeviceID, nil
		}

		appLogger.WarnRateLimited("register", time.Minute,
			"Registration failed, will retry", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Minute {
			backoff *= 2
		}
	}
}
