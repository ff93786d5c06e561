// Command secondbrain is the platform's entry point: it boots the
// relational/graph/kv stores, the pipeline registry, the task runner,
// the vault reconciler, and the capture HTTP surface, then dispatches
// to a cobra subcommand. Grounded on the teacher's cmd/nerd/main.go
// (cobra root + zap PersistentPreRunE/PersistentPostRun bootstrap).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"secondbrain/internal/capture"
	"secondbrain/internal/cards"
	"secondbrain/internal/config"
	"secondbrain/internal/costledger"
	"secondbrain/internal/graphstore"
	"secondbrain/internal/kv"
	"secondbrain/internal/llm"
	"secondbrain/internal/logging"
	"secondbrain/internal/mastery"
	"secondbrain/internal/ocr"
	"secondbrain/internal/orchestrator"
	"secondbrain/internal/pipeline"
	"secondbrain/internal/reconcile"
	"secondbrain/internal/session"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/taskrunner"
	"secondbrain/internal/taxonomy"
	"secondbrain/internal/tristore"
	"secondbrain/internal/vault"
)

var (
	configPath string
	verbose    bool
	log        = logging.Get(logging.CategoryBoot)
)

var rootCmd = &cobra.Command{
	Use:   "secondbrain",
	Short: "A personal knowledge-processing platform: capture, enrich, review.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (defaults baked in if omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, workCmd, reconcileCmd, reviewCmd, masteryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// system bundles every constructed component so subcommands can pick
// what they need without re-deriving wiring.
type system struct {
	cfg        *config.Config
	sql        *sqlstore.Store
	graph      graphstore.Store
	kv         *kv.Store
	vaultMgr   *vault.Manager
	llmClient  llm.Client
	ledger     costledger.Ledger
	tax        *taxonomy.Cache
	tristore   *tristore.Writer
	orch       *orchestrator.Orchestrator
	pipelines  *pipeline.Registry
	tasks      *taskrunner.Runner
	reconciler *reconcile.Reconciler
	masterySvc *mastery.Service
	composer   *session.Composer
}

func buildSystem(ctx context.Context) (*system, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sqlStore, err := sqlstore.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql store: %w", err)
	}

	graph, err := graphstore.Connect(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		return nil, fmt.Errorf("connect graph store: %w", err)
	}

	kvAddr := cfg.KV.Addr
	if cfg.KV.Password != "" {
		kvAddr = fmt.Sprintf("redis://:%s@%s/%d", cfg.KV.Password, cfg.KV.Addr, cfg.KV.DB)
	} else {
		kvAddr = fmt.Sprintf("redis://%s/%d", kvAddr, cfg.KV.DB)
	}
	kvStore, err := kv.Open(ctx, kvAddr)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}

	vaultMgr := vault.NewManager(cfg.Vault)
	if err := vaultMgr.EnsureStructure(); err != nil {
		return nil, fmt.Errorf("ensure vault structure: %w", err)
	}

	llmClient, err := buildLLMClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	ledger, err := costledger.NewSQLLedger(sqlStore.DB())
	if err != nil {
		return nil, fmt.Errorf("build cost ledger: %w", err)
	}

	tax := taxonomy.NewCache(cfg.Taxonomy.Path, cfg.Taxonomy.TTL)
	tw := tristore.New(vaultMgr, sqlStore, graph)
	orch := orchestrator.New(sqlStore, graph, llmClient, ledger, tax, tw)

	registry := buildPipelineRegistry(llmClient, ledger)

	runner := taskrunner.New(kvStore, cfg.TaskRunner)
	runner.Register(taskrunner.TaskProcessContent, processContentHandler(orch))
	runner.Register(taskrunner.TaskProcessBook, processContentHandler(orch))

	reconciler := reconcile.New(vaultMgr, graph, sqlStore)

	masterySvc := mastery.New(sqlStore, cfg.Mastery)
	exGen := &cards.ExerciseGenerator{LLM: llmClient, Ledger: ledger}
	composer := session.New(sqlStore, masterySvc, exGen, cfg.Session)

	return &system{
		cfg: cfg, sql: sqlStore, graph: graph, kv: kvStore, vaultMgr: vaultMgr,
		llmClient: llmClient, ledger: ledger, tax: tax, tristore: tw, orch: orch,
		pipelines: registry, tasks: runner, reconciler: reconciler,
		masterySvc: masterySvc, composer: composer,
	}, nil
}

func buildLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaClient(cfg.BaseURL, cfg.TextModel, cfg.EmbeddingModel), nil
	default:
		return llm.NewGenAIClient(ctx, cfg.APIKey, cfg.TextModel, cfg.VisionModel, cfg.EmbeddingModel)
	}
}

func buildPipelineRegistry(llmClient llm.Client, ledger costledger.Ledger) *pipeline.Registry {
	ocrClient := ocr.Unconfigured{}
	web := &pipeline.WebPipeline{LLM: llmClient, Ledger: ledger}
	return pipeline.NewRegistry(
		&pipeline.TextPipeline{},
		&pipeline.VoicePipeline{OCR: ocrClient, LLM: llmClient, Ledger: ledger},
		&pipeline.BookPipeline{OCR: ocrClient, LLM: llmClient, Ledger: ledger},
		&pipeline.PDFPipeline{OCR: ocrClient, LLM: llmClient, Ledger: ledger},
		&pipeline.RepoReadPipeline{LLM: llmClient, Ledger: ledger},
		&pipeline.RaindropPipeline{Web: web},
		web,
	)
}

// taskPayload is the wire shape every taskrunner.Task.Payload carries
// for process_content/process_book tasks (spec.md §4.15).
type taskPayload struct {
	ContentUUID string `json:"content_uuid"`
}

func processContentHandler(orch *orchestrator.Orchestrator) taskrunner.Handler {
	return func(ctx context.Context, task taskrunner.Task) error {
		var p taskPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("taskrunner: decode payload: %w", err)
		}
		return orch.Process(ctx, p.ContentUUID)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the capture HTTP surface and the task runner workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sys, err := buildSystem(ctx)
		if err != nil {
			return err
		}

		if err := sys.reconciler.Reconcile(ctx); err != nil {
			log.Warn("startup vault reconciliation: %v", err)
		}
		if err := sys.reconciler.Watch(ctx); err != nil {
			log.Warn("start vault watcher: %v", err)
		}

		runnerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := sys.tasks.Run(runnerCtx); err != nil {
				log.Error("task runner stopped: %v", err)
			}
		}()

		handler := capture.New(sys.sql, sys.pipelines, sys.tasks, sys.cfg.Limits, sys.cfg.Vault.UploadDir)
		server := capture.NewServer(handler)

		addr := os.Getenv("SECONDBRAIN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		log.Info("listening on %s", addr)
		return server.Start(addr)
	},
}

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "run the task runner workers only (no HTTP surface)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(cmd.Context())
		if err != nil {
			return err
		}
		return sys.tasks.Run(cmd.Context())
	},
}

var fullSync bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "sync vault markdown files into the graph store once",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(cmd.Context())
		if err != nil {
			return err
		}
		if fullSync {
			return sys.reconciler.FullSync(cmd.Context())
		}
		return sys.reconciler.Reconcile(cmd.Context())
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&fullSync, "full", false, "ignore last_sync_time and sync every note")
}

var (
	reviewMinutes float64
	reviewTopic   string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "compose and print a review session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(cmd.Context())
		if err != nil {
			return err
		}
		sess, err := sys.composer.Compose(cmd.Context(), session.Request{
			DurationMinutes: reviewMinutes,
			TopicFilter:     reviewTopic,
		})
		if err != nil {
			return err
		}
		fmt.Printf("session: %d items, topics %v\n", len(sess.Items), sess.TopicsCovered)
		return nil
	},
}

func init() {
	reviewCmd.Flags().Float64Var(&reviewMinutes, "minutes", 20, "time budget in minutes")
	reviewCmd.Flags().StringVar(&reviewTopic, "topic", "", "restrict to a topic (tag)")
}

var masteryCmd = &cobra.Command{
	Use:   "mastery",
	Short: "print the mastery overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := buildSystem(cmd.Context())
		if err != nil {
			return err
		}
		overview, err := sys.masterySvc.Overview(cmd.Context(), time.Now().UTC(), 10)
		if err != nil {
			return err
		}
		fmt.Printf("overview: %+v\n", overview)
		return nil
	},
}
