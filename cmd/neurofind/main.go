// neurofind is the local offline personal-file assistant process (spec
// §4.15): it speaks NDJSON requests and events over stdin/stdout and
// owns every directory a client has asked it to index. Grounded on
// cmd/iter-service's command dispatch and config/daemon wiring,
// adapted from an HTTP-serving daemon to a stdio dispatch loop with an
// optional loopback debug HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/manole-ai/neurofind/internal/config"
	"github.com/manole-ai/neurofind/internal/debugserver"
	"github.com/manole-ai/neurofind/internal/logger"
	"github.com/manole-ai/neurofind/internal/protocol"
	"github.com/manole-ai/neurofind/internal/service"
	"github.com/manole-ai/neurofind/pkg/server"
)

var version = "dev"

var configPath string

func main() {
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
			// unknown flag, ignored
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
		err = cmdServe()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "version", "-v", "--version":
		cmdVersion()
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
	fmt.Println(`neurofind - local offline personal-file assistant

Usage:
  neurofind [flags] [command]

Commands:
  serve         Start the process, reading requests from stdin (default)
  status        Show whether a neurofind process is running
  stop          Stop a running process
  version       Show version information
  init-config   Write an example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.neurofind/config.toml)

Environment:
  NEUROFIND_CONFIG     Path to configuration file (alternative to --config)
  NEUROFIND_DATA_DIR   Override the data directory`)
}

func cmdVersion() {
	fmt.Printf("neurofind version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("NEUROFIND_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("NEUROFIND_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	return cfg, nil
}

// cmdServe runs the NDJSON dispatch loop against stdin/stdout until
// stdin closes or a shutdown request is handled, while also listening
// for process signals so an external `stop` can end it gracefully.
func cmdServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("neurofind already running (PID %d)", pid)
	}

	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	writer := protocol.NewWriter(os.Stdout)
	app := server.New(cfg, writer)

	daemon := service.NewDaemon(cfg)
	daemon.NotifySignals()

	var debugHandler http.Handler
	if cfg.Debug.HTTPEnabled {
		debugHandler = debugserver.New(app).Handler()
	}

	addr := "127.0.0.1:" + strconv.Itoa(cfg.Debug.HTTPPort)
	if err := daemon.Start(debugHandler, addr); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer daemon.Shutdown()

	log.Info().Str("version", version).Str("data_dir", cfg.Service.DataDir).Msg("neurofind starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reqCh := make(chan protocol.Request)
	errCh := make(chan error, 1)
	go readLoop(protocol.NewReader(os.Stdin), writer, reqCh, errCh)

	for {
		select {
		case <-daemon.Signals():
			log.Info().Msg("signal received, shutting down")
			return nil
		case err := <-errCh:
			if err != nil {
				log.Warn().Err(err).Msg("stdin read loop ended")
			}
			return nil
		case req := <-reqCh:
			if app.Dispatch(ctx, req) {
				return nil
			}
		}
	}
}

// readLoop feeds parsed requests to reqCh, surfacing malformed lines as
// error events without ending the loop (spec §4.1).
func readLoop(reader *protocol.Reader, writer *protocol.Writer, reqCh chan<- protocol.Request, errCh chan<- error) {
	for {
		req, err := reader.Next()
		if err != nil {
			var parseErr *protocol.ParseError
			if errors.As(err, &parseErr) {
				writer.SendError(nil, parseErr.Error())
				continue
			}
			errCh <- err
			return
		}
		reqCh <- req
	}
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("neurofind: running (PID %d)\n", pid)
		fmt.Printf("Data: %s\n", cfg.Service.DataDir)
	} else {
		fmt.Println("neurofind: stopped")
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
		fmt.Println("neurofind is not running")
		return nil
	}

	fmt.Printf("Stopping neurofind (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("neurofind stopped")
	return nil
}

func cmdInitConfig() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
