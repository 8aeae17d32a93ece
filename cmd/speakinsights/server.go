package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/speakinsights/speakinsights/internal/analysis"
	"github.com/speakinsights/speakinsights/internal/api"
	"github.com/speakinsights/speakinsights/internal/config"
	"github.com/speakinsights/speakinsights/internal/ollama"
	"github.com/speakinsights/speakinsights/internal/pipeline"
	"github.com/speakinsights/speakinsights/internal/storage"
	"github.com/speakinsights/speakinsights/internal/transcribe"
	"github.com/speakinsights/speakinsights/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the speakinsights server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running speakinsights server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show speakinsights system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "speakinsights.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "speakinsights version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("speakinsights is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("speakinsights is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Transcription: whisper.cpp baseline, WhisperX sidecar when enabled.
	registry := transcribe.NewRegistry()
	baseline := transcribe.NewWhisper(cfg.Whisper.BaseURL, cfg.Whisper.Model, cfg.Whisper.Timeout.Std())
	var enhanced transcribe.Provider
	if cfg.WhisperX.Enabled {
		enhanced = transcribe.NewWhisperX(transcribe.WhisperXOptions{
			BaseURL:     cfg.WhisperX.BaseURL,
			Diarize:     cfg.WhisperX.Diarize,
			MinSpeakers: cfg.WhisperX.MinSpeakers,
			MaxSpeakers: cfg.WhisperX.MaxSpeakers,
			Timeout:     cfg.WhisperX.Timeout.Std(),
		}, registry)
	}
	transcriber := transcribe.NewFallback(enhanced, baseline)

	// Analysis: Ollama when enabled and reachable, local heuristics otherwise.
	local := analysis.NewLocal(cfg.Analysis.MaxActionItems)
	var remote analysis.Analyzer
	if cfg.Ollama.Enabled {
		client := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.Ollama.Model, os.Stderr); err != nil {
			if !cfg.Ollama.FallbackToLocal {
				return err
			}
			slog.Warn("ollama not ready, analysis will use the local analyzer", "error", err)
		}
		remote = analysis.NewOllama(client, cfg.Ollama.Model, cfg.Analysis.MaxActionItems, cfg.Ollama.Timeout.Std())
	}
	analyzer := analysis.NewFallback(remote, local, cfg.Ollama.FallbackToLocal)

	var notifier pipeline.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.New(cfg.Webhook.URL)
	}

	orchestrator := pipeline.NewOrchestrator(store, transcriber, analyzer, notifier, cfg.Storage.AudioDir)

	handler := api.NewAppHandler(api.AppDeps{
		Store:          store,
		Pipeline:       orchestrator,
		Token:          cfg.Server.AuthToken,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Pipeline: orchestrator,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "speakinsights listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("speakinsights is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop speakinsights (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to speakinsights (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if whisperResp, err := client.Get(cfg.Whisper.BaseURL + "/health"); err != nil {
		printStatus("Whisper", "not reachable at %s", cfg.Whisper.BaseURL)
	} else {
		whisperResp.Body.Close()
		printStatus("Whisper", "running at %s", cfg.Whisper.BaseURL)
	}

	if cfg.WhisperX.Enabled {
		if xResp, err := client.Get(cfg.WhisperX.BaseURL + "/health"); err != nil {
			printStatus("WhisperX", "not reachable (diarization unavailable)")
		} else {
			xResp.Body.Close()
			printStatus("WhisperX", "running at %s", cfg.WhisperX.BaseURL)
		}
	} else {
		printStatus("WhisperX", "disabled")
	}

	if cfg.Ollama.Enabled {
		if oResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			oResp.Body.Close()
			printStatus("Ollama", "running at %s (model %s)", cfg.Ollama.BaseURL, cfg.Ollama.Model)
		}
	} else {
		printStatus("Ollama", "disabled")
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
