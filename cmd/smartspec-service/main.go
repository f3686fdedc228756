// Package main provides the entry point for smartspec-service.
//
// smartspec-service is a standalone service providing:
//   - REST API for driving the spec pipeline programmatically
//   - An embedded status dashboard
//   - An MCP server for coding-assistant integration
//
// Usage:
//
//	smartspec-service                 Start the service (default)
//	smartspec-service serve           Start the service
//	smartspec-service version         Show version
//	smartspec-service status          Show service status
//	smartspec-service stop            Stop the running service
//	smartspec-service mcp             Start MCP server (stdio mode)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/smartspec/smartspec/internal/api"
	"github.com/smartspec/smartspec/internal/config"
	"github.com/smartspec/smartspec/internal/mcp"
	"github.com/smartspec/smartspec/internal/service"
)

// version is set via -ldflags at build time.
var version = "dev"

var configPath string

func main() {
	api.SetVersion(version)

	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			// unknown flag, ignored for now
		case command == "":
			command = arg
		default:
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP(cmdArgs)
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`smartspec-service - spec pipeline orchestration service

Usage:
  smartspec-service [flags] [command] [args]

Commands:
  serve         Start the service (default)
  version       Show version information
  status        Show service status
  stop          Stop the running service
  mcp           Start MCP server (stdio mode for assistant integration)
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.smartspec-service/config.toml)

Environment:
  GEMINI_API_KEY        API key for the genai gateway provider (optional)
  SMARTSPEC_CONFIG      Path to configuration file (alternative to --config)
  SMARTSPEC_DATA_DIR    Override data directory

Examples:
  smartspec-service                         Start the service with defaults
  smartspec-service --config /path/to.toml  Start with custom config
  smartspec-service mcp                     Start MCP server for an assistant
  smartspec-service init-config             Create example config file
  curl localhost:8430/health                Check service health`)
}

func cmdVersion() {
	fmt.Printf("smartspec-service version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("SMARTSPEC_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("SMARTSPEC_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	return cfg, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	sys, err := service.Bootstrap(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer sys.Close()

	apiServer := api.NewServer(cfg, sys.Orchestrator)
	daemon := service.NewDaemon(cfg)

	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("smartspec-service v%s started on %s\n", version, cfg.Address())
	fmt.Printf("Dashboard: http://%s/\n", cfg.Address())
	fmt.Printf("API: http://%s/specs\n", cfg.Address())

	daemon.Wait()
	return nil
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("smartspec-service: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Config: %s\n", getConfigPath())
		fmt.Printf("Data: %s\n", cfg.Service.DataDir)
	} else {
		fmt.Println("smartspec-service: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("smartspec-service is not running")
		return nil
	}

	fmt.Printf("Stopping smartspec-service (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}

	fmt.Println("smartspec-service stopped")
	return nil
}

func cmdMCP(args []string) error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintf(os.Stderr, "[smartspec-service] Warning: GEMINI_API_KEY not set.\n")
		fmt.Fprintf(os.Stderr, "[smartspec-service] Gateway workflows that need a network route will fail until one is configured.\n")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		cfg = config.DefaultConfig()
	}

	sys, err := service.Bootstrap(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer sys.Close()

	handler := mcp.NewHandler(sys.Orchestrator)
	return handler.ServeStdio()
}

func cmdInitConfig() error {
	path := getConfigPath()
	if err := config.WriteExampleConfig(path); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	fmt.Printf("Wrote example configuration to %s\n", path)
	return nil
}
