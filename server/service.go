package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("LockWatch Server service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	if err := runServer(p.ctx); err != nil && p.svcLogger != nil {
		p.svcLogger.Errorf("LockWatch Server exited with error: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("LockWatch Server service stop requested")
	}

	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("LockWatch Server service stopped gracefully")
		}
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("LockWatch Server service stopped with timeout")
		}
	}

	return nil
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "LockWatch")
	case "darwin":
		workingDir = "/Library/Application Support/LockWatch"
	default:
		workingDir = "/var/lib/lockwatch"
	}

	return &service.Config{
		Name:             "LockWatchServer",
		DisplayName:      "LockWatch Server",
		Description:      "LockWatch tracking server. Registers agents, stores device state, queues owner commands, and streams events to dashboards.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			// Linux systemd options
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
			"SendSIGKILL":       true,

			// macOS launchd options
			"RunAtLoad":     true,
			"KeepAlive":     true,
			"SessionCreate": false,
		},
	}
}

func handleServiceCommand(cmd string) {
	prg := &program{}
	svc, err := service.New(prg, getServiceConfig())
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			log.Fatalf("Failed to prepare service directories: %v", err)
		}
		if err := svc.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if err := svc.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped")
	case "run":
		if err := svc.Run(); err != nil {
			log.Fatalf("Service run failed: %v", err)
		}
	default:
		log.Fatalf("Unknown service command: %s (expected install, uninstall, start, stop, run)", cmd)
	}
}

// setupServiceDirectories creates the directories the service needs
func setupServiceDirectories() error {
	var dirs []string

	switch runtime.GOOS {
	case "windows":
		baseDir := filepath.Join(os.Getenv("ProgramData"), "LockWatch")
		serverDir := filepath.Join(baseDir, "server")
		dirs = []string{
			baseDir,
			serverDir,
			filepath.Join(serverDir, "logs"),
		}
	case "darwin":
		baseDir := "/Library/Application Support/LockWatch"
		dirs = []string{
			baseDir,
			filepath.Join(baseDir, "logs"),
			"/var/log/lockwatch",
		}
	default: // Linux
		dirs = []string{
			"/var/lib/lockwatch",
			"/var/log/lockwatch",
			"/etc/lockwatch",
		}
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
