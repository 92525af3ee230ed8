package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/leadbot/internal/api"
	"github.com/kalambet/leadbot/internal/blocklist"
	"github.com/kalambet/leadbot/internal/broadcast"
	"github.com/kalambet/leadbot/internal/config"
	"github.com/kalambet/leadbot/internal/conversation"
	"github.com/kalambet/leadbot/internal/engine"
	"github.com/kalambet/leadbot/internal/leadstore"
	"github.com/kalambet/leadbot/internal/notify"
	"github.com/kalambet/leadbot/internal/relay"
	"github.com/kalambet/leadbot/internal/storage"
	"github.com/kalambet/leadbot/internal/whatsapp"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the leadbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running leadbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show leadbot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve lead management tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "leadbot.pid")
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

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func localURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// newDispatcher routes routine traffic and alerts to the configured chat
// channels. Channels left unconfigured fall back to the log.
func newDispatcher(cfg config.NotifyConfig) *notify.Dispatcher {
	var routine, alerts []notify.Sender
	if cfg.DiscordRoutineWebhook != "" {
		routine = append(routine, notify.NewDiscordWebhook(cfg.DiscordRoutineWebhook, ""))
	}
	if cfg.DiscordAlertWebhook != "" {
		alerts = append(alerts, notify.NewDiscordWebhook(cfg.DiscordAlertWebhook, cfg.DiscordAlertMention))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg := notify.NewTelegram(cfg.TelegramBotToken, int64(cfg.TelegramChatID))
		routine = append(routine, tg)
		alerts = append(alerts, tg)
	}
	if len(routine) == 0 {
		routine = []notify.Sender{notify.LogSender{Kind: "notify"}}
	}
	if len(alerts) == 0 {
		alerts = []notify.Sender{notify.LogSender{Kind: "alert"}}
	}
	return notify.NewDispatcher(notify.DispatcherConfig{
		Routine: routine,
		Alerts:  alerts,
		Timeout: cfg.Timeout,
	})
}

func newWhatsAppClient(cfg config.WhatsAppConfig) *whatsapp.Client {
	return whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.BaseURL,
		APIVersion:    cfg.APIVersion,
		PhoneNumberID: cfg.PhoneNumberID,
		AccessToken:   cfg.AccessToken,
		Timeout:       cfg.Timeout,
	})
}

func closeDispatcher(d *notify.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("flushing notifications", "error", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "leadbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewSecrets())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only names the process.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(localURL(cfg.Server.Port) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("leadbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("leadbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Detect(engine.DetectConfig{
		Provider:      cfg.LLM.Provider,
		OpenAIAPIKey:  cfg.LLM.APIKey,
		OpenAIBaseURL: cfg.LLM.BaseURL,
		OllamaBaseURL: cfg.Ollama.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.LLM.Model, os.Stderr); err != nil {
		return err
	}

	instruction, err := conversation.LoadInstruction(cfg.Prompt.InstructionFile)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	dispatcher := newDispatcher(cfg.Notify)
	defer closeDispatcher(dispatcher)

	leads := leadstore.New(store, cfg.Storage.DataDir)
	blocks := blocklist.New(store)

	temperature := float32(cfg.LLM.Temperature)
	completer := engine.NewCompleter(eng, cfg.LLM.Model, engine.Options{
		Temperature: &temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	conv := conversation.New(completer, leads, dispatcher, conversation.Config{
		Instruction:  instruction,
		ModelTimeout: cfg.LLM.Timeout,
	})

	rl := relay.New(relay.Deps{
		Turns:     conv,
		Messenger: newWhatsAppClient(cfg.WhatsApp),
		Blocks:    blocks,
		Lists:     store,
		History:   leads,
		Sink:      dispatcher,
	})
	broadcasts := broadcast.NewService(store)
	worker := broadcast.NewWorker(store, rl, dispatcher, 0, cfg.Broadcast.Concurrency)

	handler := api.NewRouter(
		api.NewWebhookHandler(api.WebhookDeps{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
			Inbound:     rl,
		}),
		api.NewAppHandler(api.AppDeps{
			Store:      store,
			Leads:      leads,
			Blocks:     blocks,
			Sender:     rl,
			Broadcasts: broadcasts,
			Token:      apiToken,
		}),
	)

	addr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "leadbot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runMCP serves the MCP tools on stdin/stdout. It opens the same database as
// the server; sends go straight to WhatsApp when credentials are configured.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs go to stderr only.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	dispatcher := newDispatcher(cfg.Notify)
	defer closeDispatcher(dispatcher)

	leads := leadstore.New(store, cfg.Storage.DataDir)
	blocks := blocklist.New(store)

	deps := api.MCPDeps{Store: store, Leads: leads, Blocks: blocks}
	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		deps.Sender = relay.New(relay.Deps{
			Messenger: newWhatsAppClient(cfg.WhatsApp),
			Blocks:    blocks,
			Lists:     store,
			History:   leads,
			Sink:      dispatcher,
		})
	} else {
		slog.Warn("WhatsApp credentials not configured; send_message disabled")
	}

	stdio := server.NewStdioServer(api.NewMCPServer(deps))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("leadbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop leadbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to leadbot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	running := false
	resp, err := client.Get(localURL(cfg.Server.Port) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("LLM", "%s (%s)", cfg.LLM.Provider, cfg.LLM.Model)
	if cfg.LLM.Provider == engine.ProviderOllama {
		oe, err := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
		switch {
		case err != nil:
			printStatus("Ollama", "misconfigured: %v", err)
		case oe.IsRunning(context.Background()):
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		default:
			printStatus("Ollama", "not running")
		}
	}
	if cfg.WhatsApp.PhoneNumberID != "" {
		printStatus("WhatsApp", "phone number %s (%s)", cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.APIVersion)
	} else {
		printStatus("WhatsApp", "not configured")
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if resp, err := c.get(ctx, "/api/leads"); err == nil {
				var leads []struct{}
				if decodeJSON(resp, &leads) == nil {
					printStatus("Leads", "%d", len(leads))
				}
			}
			if resp, err := c.get(ctx, "/api/blocks"); err == nil {
				var blocks []struct{}
				if decodeJSON(resp, &blocks) == nil {
					printStatus("Blocked", "%d", len(blocks))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
