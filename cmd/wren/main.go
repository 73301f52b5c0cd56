// Wren is a conversational desktop companion daemon.
//
// It holds multi-session conversations against an OpenAI-compatible
// model endpoint, lets the model manage reminders through tool calls,
// fires scheduled alerts, and writes a daily conversation digest.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	wren serve               Start the API server
//	wren init [dir]          Initialize a working directory with defaults
//	wren ask <question>      Ask a single question (for testing)
//	wren version             Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wren-assistant/wren/internal/agent"
	"github.com/wren-assistant/wren/internal/api"
	"github.com/wren-assistant/wren/internal/buildinfo"
	"github.com/wren-assistant/wren/internal/config"
	"github.com/wren-assistant/wren/internal/digest"
	"github.com/wren-assistant/wren/internal/llm"
	"github.com/wren-assistant/wren/internal/notify"
	"github.com/wren-assistant/wren/internal/reminder"
	"github.com/wren-assistant/wren/internal/store"
	"github.com/wren-assistant/wren/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the wren command. All OS-level
// dependencies are injected as parameters; run returns nil on clean
// shutdown and a non-nil error for any failure.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals, which makes it impossible to call run() concurrently from
	// tests, and the argument surface here is small.
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: wren ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Wren - Desktop Companion Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wren [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/wren/config.yaml, /etc/wren/config.yaml")
	return nil
}

// runAsk handles the "wren ask <question>" subcommand. It boots a
// minimal core (temp database, no scheduler, no server) and processes a
// single question, printing the response to stdout. Useful for quick
// smoke tests without starting the daemon.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// A throwaway database is fine for a one-shot question.
	dbDir, err := os.MkdirTemp("", "wren-ask-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dbDir)

	st, err := store.New(dbDir + "/wren.db")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	client := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, logger)
	if cfg.LLM.TimeoutSec > 0 {
		client.SetHeaderTimeout(time.Duration(cfg.LLM.TimeoutSec) * time.Second)
	}

	sched := reminder.New(logger, st)
	registry := tools.NewRegistry(sched)
	core := agent.New(logger, st, client, registry, cfg.LLM.Model, cfg.LLM.TitleModel)

	response, err := core.Chat(ctx, "cli-ask", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, response)
	return nil
}

// runServe handles the "wren serve" subcommand. It is the primary
// operating mode: loads config, opens the database, builds the
// conversation core and reminder scheduler, starts the API server, and
// blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Wren", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.LLM.Model,
		"base_url", cfg.LLM.BaseURL,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Conversation and reminder store ---
	dbPath := cfg.DataDir + "/wren.db"
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", dbPath, err)
	}
	defer st.Close()
	logger.Info("database opened", "path", dbPath)

	// --- LLM client ---
	client := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, logger)
	if cfg.LLM.TimeoutSec > 0 {
		client.SetHeaderTimeout(time.Duration(cfg.LLM.TimeoutSec) * time.Second)
	}

	// --- Reminder scheduler, tools, and conversation core ---
	sched := reminder.New(logger, st)
	registry := tools.NewRegistry(sched)
	core := agent.New(logger, st, client, registry, cfg.LLM.Model, cfg.LLM.TitleModel)

	// --- Daily digest ---
	digestJob := digest.New(logger, st, client, cfg.LLM.Model)
	sched.SetDailyJob(digestJob.RunForDate)

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- API server ---
	server := api.New(cfg.Listen.Address, cfg.Listen.Port, core, sched, logger)

	// --- Alert delivery ---
	// Fired reminders fan out to websocket subscribers and, when a
	// broker is configured, to MQTT.
	var publisher *notify.Publisher
	if cfg.MQTT.Broker != "" {
		publisher = notify.New(cfg.MQTT, logger)
		if err := publisher.Start(ctx); err != nil {
			logger.Warn("mqtt publisher unavailable", "error", err)
			publisher = nil
		}
	}
	sched.SetAlertFunc(func(message string) {
		server.Alerts().Broadcast(message)
		if publisher != nil {
			publisher.Alert(message)
		}
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if publisher != nil {
			if err := publisher.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	// Start blocks until the server is shut down.
	if err := server.Start(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Wren stopped")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output in Wren goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
