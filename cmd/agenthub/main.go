package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agenthub/internal/bus"
	"agenthub/internal/channel"
	"agenthub/internal/config"
	"agenthub/internal/conversation"
	"agenthub/internal/dispatch"
	"agenthub/internal/domain"
	"agenthub/internal/knowledge"
	"agenthub/internal/orchestrator"
	"agenthub/internal/provider"
	"agenthub/internal/roster"
	"agenthub/internal/routing"
	"agenthub/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "agenthub",
		Short: "AgentHub: message router for a roster of specialized agents",
		Long:  "AgentHub classifies incoming messages, selects the best-suited agent from a roster, dispatches the message, and records every decision.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.agenthub/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(routeCmd())
	root.AddCommand(agentsCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(statusCmd())

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

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			rosterDir := config.ExpandPath(cfg.Agents.RosterDir)
			if err := os.MkdirAll(rosterDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "roster", rosterDir)
			return nil
		},
	}
}

// pipeline bundles everything a command needs to route messages.
type pipeline struct {
	cfg   *config.Config
	store *store.SQLiteStore
	orch  *orchestrator.Orchestrator
	kb    *knowledge.Engine
}

// applyLogging rebuilds the global logger at the configured level, teeing
// output into the configured log file when one is set.
func applyLogging(g config.GeneralConfig) {
	var l slog.Level
	switch strings.ToLower(g.LogLevel) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	w := io.Writer(os.Stderr)
	if g.LogFile != "" {
		f, err := os.OpenFile(config.ExpandPath(g.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr only", "path", g.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	applyLogging(cfg.General)

	db, err := store.NewSQLiteStore(config.ExpandPath(cfg.Storage.DBPath), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	agents, err := roster.LoadFromDirectory(cfg.Agents.RosterDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if err := roster.Sync(ctx, db, agents, logger); err != nil {
		db.Close()
		return nil, err
	}

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.CompletionChain()
	if err != nil || prov == nil {
		logger.Warn("no usable provider configured, falling back to ollama")
		prov = provider.NewOllama(provider.OllamaConfig{Logger: logger})
	}

	var kb *knowledge.Engine
	var searcher domain.KnowledgeSearcher
	if cfg.Knowledge.Enabled {
		kb = knowledge.NewEngine(knowledge.EngineConfig{
			Store:     db,
			ChunkSize: cfg.Knowledge.ChunkSize,
			Overlap:   cfg.Knowledge.ChunkOverlap,
			Logger:    logger,
		})
		searcher = kb
	}

	var decider *routing.LLMDecider
	if cfg.Routing.Strategy == orchestrator.StrategyLLM {
		decider = routing.NewLLMDecider(routing.LLMDeciderConfig{
			Provider: prov,
			Timeout:  time.Duration(cfg.Routing.LLMTimeoutSeconds) * time.Second,
			Logger:   logger,
		})
	}

	events := bus.NewEventBus(logger)
	events.On(bus.EventEscalated, func(e bus.Event) {
		logger.Warn("escalation flagged for human follow-up",
			"conversation", e.Payload["conversation"],
			"reason", e.Payload["reason"],
		)
	})

	orch := orchestrator.New(orchestrator.Config{
		Store: db,
		Conversations: conversation.NewManager(conversation.ManagerConfig{
			Store:  db,
			Window: cfg.Conversation.RecentTurnWindow,
			Logger: logger,
		}),
		Classifier: routing.NewClassifier(logger),
		Matcher:    routing.NewMatcher(logger),
		Engine: routing.NewEngine(routing.EngineConfig{
			Thresholds: routing.Thresholds{
				Strong:        cfg.Routing.StrongScore,
				Moderate:      cfg.Routing.ModerateScore,
				Weak:          cfg.Routing.WeakScore,
				MinAgentScore: cfg.Routing.MinAgentScore,
				EscalateBelow: cfg.Routing.EscalateBelow,
			},
			MaxAlternatives: cfg.Routing.MaxAlternatives,
			Logger:          logger,
		}),
		Decider: decider,
		Dispatcher: dispatch.NewExecutor(dispatch.ExecutorConfig{
			Provider:  prov,
			Knowledge: searcher,
			TopK:      cfg.Knowledge.SearchTopK,
			Logger:    logger,
		}),
		Events:         events,
		Strategy:       cfg.Routing.Strategy,
		CandidateLimit: cfg.Routing.CandidateLimit,
		Logger:         logger,
	})

	return &pipeline{cfg: cfg, store: db, orch: orch, kb: kb}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the routing service (Web API + enabled channels)",
		Long:  "Starts the routing loop with all enabled channels. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.store.Close()

	messageBus := bus.New(100, logger)

	loop := orchestrator.NewLoop(orchestrator.LoopConfig{
		Orchestrator:  p.orch,
		Bus:           messageBus,
		MaxConcurrent: cfg.General.MaxConcurrentMessages,
		Logger:        logger,
	})
	go loop.Run(ctx)

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
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

	var webCh *channel.Web
	if cfg.Channels.Web.Enabled {
		webCh = channel.NewWeb(channel.WebConfig{
			Host:          cfg.Channels.Web.Host,
			Port:          cfg.Channels.Web.Port,
			Orchestrator:  p.orch,
			Store:         p.store,
			DefaultTenant: cfg.General.DefaultTenant,
			Metrics:       cfg.Metrics.Enabled,
			Logger:        logger,
		})
		go func() {
			if err := webCh.Start(ctx); err != nil {
				logger.Error("web channel error", "err", err)
			}
		}()
	}

	logger.Info("agenthub started", "version", version)

	if cfg.Channels.CLI.Enabled {
		cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
		if err := cliCh.Start(ctx, messageBus); err != nil {
			return err
		}
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if webCh != nil {
			webCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func routeCmd() *cobra.Command {
	var (
		userID string
		tenant string
		convID string
		agent  string
	)
	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Route a single message and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.store.Close()

			resp, err := p.orch.Route(ctx, orchestrator.RouteRequest{
				OwnerID:          userID,
				TenantID:         tenant,
				Message:          args[0],
				ConversationID:   convID,
				PreferredAgentID: agent,
			})
			if err != nil {
				return err
			}

			data, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user id owning the conversation")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "default", "tenant id")
	cmd.Flags().StringVar(&convID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&agent, "agent", "", "preferred agent id")
	return cmd
}

func agentsCmd() *cobra.Command {
	var (
		userID string
		tenant string
	)
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List active agents in the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx := context.Background()
			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.store.Close()

			agents, err := p.store.ListActiveAgents(ctx, userID, tenant)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				fmt.Println("no active agents")
				return nil
			}
			for _, a := range agents {
				fmt.Printf("%-24s %-16s used=%-5d %s\n", a.ID, a.Type, a.UsageCount, a.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user id")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "default", "tenant id")
	return cmd
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage per-agent knowledge documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [agent-id] [file]",
		Short: "Add a document to an agent's knowledge base",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			cfg.Knowledge.Enabled = true

			ctx := context.Background()
			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.store.Close()

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			doc, err := p.kb.AddDocument(ctx, args[0], filepath.Base(args[1]), "text/plain", string(data))
			if err != nil {
				return err
			}
			fmt.Printf("added %s (%d chunks)\n", doc.ID, doc.ChunkCount)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [agent-id]",
		Short: "List an agent's knowledge documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			cfg.Knowledge.Enabled = true

			ctx := context.Background()
			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.store.Close()

			docs, err := p.kb.ListDocuments(ctx, args[0])
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("no documents")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%-18s chunks=%-4d %s\n", d.ID, d.ChunkCount, d.Name)
			}
			return nil
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			ctx := context.Background()
			factory := provider.NewFactory(cfg, logger)
			prov := factory.HealthyProvider(ctx)
			if prov != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			} else {
				logger.Info("provider", "healthy", false)
			}
			logger.Info("routing", "strategy", cfg.Routing.Strategy)
			return nil
		},
	}
}
