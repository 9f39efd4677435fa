package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KlubJagiellonski/pola-facebook/internal/bus"
	"github.com/KlubJagiellonski/pola-facebook/internal/channel"
	"github.com/KlubJagiellonski/pola-facebook/internal/collaborator"
	"github.com/KlubJagiellonski/pola-facebook/internal/config"
	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
	"github.com/KlubJagiellonski/pola-facebook/internal/engine"
	"github.com/KlubJagiellonski/pola-facebook/internal/metrics"
	"github.com/KlubJagiellonski/pola-facebook/internal/store"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "polabot",
		Short: "Pola chatbot: check whether a product supports Polish capital",
		Long:  "Polabot answers Messenger and Telegram users who send a barcode photo or a typed EAN code with the product's Polish-capital report.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.polabot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("polabot", version)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("store", "backend", cfg.Store.Backend, "retentionDays", cfg.Store.RetentionDays)
			logger.Info("channels",
				"messenger", cfg.Channels.Messenger.Enabled,
				"telegram", cfg.Channels.Telegram.Enabled,
				"cli", cfg.Channels.CLI.Enabled,
			)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot (webhook gateway + enabled channels)",
		Long:  "Starts the Messenger webhook gateway, the Telegram poller when enabled, and the conversation engine. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// buildLogger constructs the application logger from config.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

// buildStore selects the context store backend.
func buildStore(cfg *config.Config, logger *slog.Logger) (domain.ContextStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DBPath, logger)
	default:
		return store.NewMemory(logger), nil
	}
}

// buildEngine wires the dispatcher, state machine, collaborators, and
// orchestrator. Shared by serve and chat.
func buildEngine(cfg *config.Config, ctxStore domain.ContextStore, messageBus domain.MessageBus, events *bus.EventBus, logger *slog.Logger) (*engine.Engine, error) {
	lists, err := engine.LoadWordLists(cfg.Dispatcher.WordListFile, engine.DefaultWordLists(), logger)
	if err != nil {
		return nil, fmt.Errorf("word lists: %w", err)
	}
	dispatcher := engine.NewDispatcher(lists)

	flow := engine.NewProductFlow(engine.ProductFlowConfig{
		Decoder: collaborator.NewBarcode(collaborator.BarcodeConfig{
			Endpoint: cfg.Barcode.Endpoint,
			Timeout:  time.Duration(cfg.Barcode.TimeoutSeconds) * time.Second,
			Logger:   logger,
		}),
		Lookup: collaborator.NewPola(collaborator.PolaConfig{
			APIBase:  cfg.Pola.APIBase,
			DeviceID: cfg.Pola.DeviceID,
			Timeout:  time.Duration(cfg.Pola.TimeoutSeconds) * time.Second,
			Logger:   logger,
		}),
		Fetcher: collaborator.NewHTTPFetcher(time.Duration(cfg.Barcode.TimeoutSeconds) * time.Second),
		Events:  events,
		Logger:  logger,
	})

	machine := engine.NewMachine()
	flow.Register(machine)

	return engine.New(engine.Config{
		Store:       ctxStore,
		Bus:         messageBus,
		Events:      events,
		Dispatcher:  dispatcher,
		Machine:     machine,
		Logger:      logger,
		Concurrency: cfg.Engine.MaxConcurrentEvents,
	})
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	if logger, err = buildLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(cfg.Engine.BusBufferSize, logger)
	defer messageBus.Close()
	events := bus.NewEventBus(logger)

	ctxStore := store.NewMemory(logger)
	defer ctxStore.Close()

	eng, err := buildEngine(cfg, ctxStore, messageBus, events, logger)
	if err != nil {
		return err
	}
	go eng.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cliCh.Start(ctx, messageBus)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logger, err = buildLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(cfg.Engine.BusBufferSize, logger)

	events := bus.NewEventBus(logger)
	events.On("*", func(ev bus.Event) {
		logger.Debug("event", "type", ev.Type, "source", ev.Source, "payload", ev.Payload)
	})

	ctxStore, err := buildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}
	defer ctxStore.Close()

	eng, err := buildEngine(cfg, ctxStore, messageBus, events, logger)
	if err != nil {
		return err
	}
	go eng.Run(ctx)

	go runSweeper(ctx, cfg, ctxStore, eng, events, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if cfg.Metrics.Enabled {
		metricsHandler := metrics.Collector.Handler()
		mux.HandleFunc(cfg.Metrics.Endpoint, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
				return
			}
			metricsHandler(w, r)
		})
		logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Endpoint)
	}

	if cfg.Channels.Messenger.Enabled {
		messengerCh := channel.NewMessenger(channel.MessengerChannelConfig{
			Config: cfg.Channels.Messenger,
			Logger: logger,
		})
		if err := messengerCh.Start(ctx, messageBus); err != nil {
			return fmt.Errorf("messenger channel: %w", err)
		}
		mux.Handle("/", messengerCh.Handler())
		logger.Info("messenger channel enabled")
	} else {
		logger.Info("messenger channel disabled")
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			Logger: logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server error", "err", err)
			stop()
		}
	}()

	logger.Info("polabot started. Press Ctrl+C to stop.")

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Shutdown(shutdownCtx)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

// runSweeper drops conversation contexts idle longer than the retention
// window, prunes the engine's per-sender state with them, and keeps the
// active-contexts gauge current.
func runSweeper(ctx context.Context, cfg *config.Config, ctxStore domain.ContextStore, eng *engine.Engine, events *bus.EventBus, logger *slog.Logger) {
	if cfg.Store.RetentionDays <= 0 {
		logger.Info("context retention sweep disabled")
		return
	}

	interval := time.Duration(cfg.Store.SweepIntervalMinutes) * time.Minute
	retention := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			removed, err := ctxStore.Sweep(ctx, cutoff)
			if err != nil {
				logger.Error("context sweep failed", "err", err)
				continue
			}
			eng.PruneIdle(cutoff)
			if removed > 0 {
				logger.Info("swept idle contexts", "removed", removed)
				events.Emit(bus.Event{
					Type:    bus.EventContextsSwept,
					Source:  "sweeper",
					Payload: map[string]any{"removed": removed},
				})
			}
			updateActiveContexts(ctx, ctxStore)
		}
	}
}

func updateActiveContexts(ctx context.Context, ctxStore domain.ContextStore) {
	type counter interface{ Len() int }
	type dbCounter interface {
		Count(context.Context) (int, error)
	}
	switch s := ctxStore.(type) {
	case counter:
		metrics.ActiveContexts.Set(int64(s.Len()))
	case dbCounter:
		if n, err := s.Count(ctx); err == nil {
			metrics.ActiveContexts.Set(int64(n))
		}
	}
}
