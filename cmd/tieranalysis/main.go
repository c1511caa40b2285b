// Command tieranalysis is the operator entry point (C13): it wires
// every component together and dispatches one of a handful of
// subcommands, mirroring sequential_batch_scheduler.py's __main__
// block's status/tier1/tier2/tier3/all/schedule dispatcher.
//
// Usage: tieranalysis [status|tier1|tier2|tier3|all|schedule|serve]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/merlin2/tieranalysis/internal/api"
	"github.com/merlin2/tieranalysis/internal/config"
	"github.com/merlin2/tieranalysis/internal/eventlog"
	"github.com/merlin2/tieranalysis/internal/limits"
	"github.com/merlin2/tieranalysis/internal/llmclient"
	"github.com/merlin2/tieranalysis/internal/models"
	"github.com/merlin2/tieranalysis/internal/monitor"
	"github.com/merlin2/tieranalysis/internal/pgstore"
	"github.com/merlin2/tieranalysis/internal/promptreg"
	"github.com/merlin2/tieranalysis/internal/scheduler"
	"github.com/merlin2/tieranalysis/internal/store"
	"github.com/merlin2/tieranalysis/internal/tieranalyzer"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tieranalysis [status|tier1|tier2|tier3|all|schedule|serve]")
	}
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("tieranalysis: config load failed")
		return 2
	}

	ctx := context.Background()
	genkitApp := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}),
		genkit.WithDefaultModel("googleai/"+cfg.FallbackModel),
	)

	d, err := bootstrap(ctx, cfg, genkitApp)
	if err != nil {
		log.Error().Err(err).Msg("tieranalysis: bootstrap failed")
		return 2
	}
	if closer, ok := d.Store.(interface{ Close() }); ok {
		defer closer.Close()
	}

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	switch command {
	case "status":
		return cmdStatus(ctx, d)
	case "tier1":
		return cmdTierBatch(ctx, d, models.Tier1)
	case "tier2":
		return cmdTierBatch(ctx, d, models.Tier2)
	case "tier3":
		return cmdTierBatch(ctx, d, models.Tier3)
	case "all":
		return cmdAll(ctx, d)
	case "schedule":
		return cmdSchedule(ctx, d)
	case "serve":
		return cmdServe(ctx, d, cfg)
	default:
		flag.Usage()
		return 2
	}
}

// deps bundles every long-lived component the subcommands share.
type deps struct {
	Store     store.Store
	Sink      eventlog.Sink
	Registry  *promptreg.Registry
	Client    *llmclient.Client
	Scheduler *scheduler.Scheduler
	Monitor   *monitor.Hub
	Catalog   []models.ModelSpec
}

func bootstrap(ctx context.Context, cfg *config.Config, g *genkit.Genkit) (*deps, error) {
	catalog := models.DefaultCatalog()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st = pg
	} else {
		log.Warn().Msg("tieranalysis: DATABASE_URL not set, running against an in-memory store (data will not survive restarts)")
		st = store.NewMemoryStore(nil)
	}

	var mirror eventlog.DetectionMirror
	if pg, ok := st.(*pgstore.PostgresStore); ok {
		mirror = pg
	}
	sink, err := eventlog.NewJSONLSink(cfg.StoragePath, mirror)
	if err != nil {
		return nil, fmt.Errorf("init event sink: %w", err)
	}

	registry := promptreg.New(cfg.PromptRegistryPath, sink)

	client := llmclient.NewClient(llmclient.Config{
		APIKey:          cfg.GeminiAPIKey,
		BaseURL:         cfg.GeminiBaseURL,
		FallbackModel:   cfg.FallbackModel,
		DailyTokenLimit: cfg.DailyTokenLimit,
	}, catalog, sink)

	trimmer := limits.NewContextTrimmer(limits.DefaultContextLimits())

	analyzers := map[models.Tier]scheduler.Runner{
		models.Tier1: tieranalyzer.New(g, models.Tier1, st, registry, client, sink, trimmer, catalog, cfg.DailyTokenLimit),
		models.Tier2: tieranalyzer.New(g, models.Tier2, st, registry, client, sink, trimmer, catalog, cfg.DailyTokenLimit),
		models.Tier3: tieranalyzer.New(g, models.Tier3, st, registry, client, sink, trimmer, catalog, cfg.DailyTokenLimit),
	}

	sched := scheduler.New(analyzers, st, catalog)
	hub := monitor.NewHub()
	sched.OnBatchComplete = func(tier models.Tier, stats scheduler.BatchStats) {
		hub.PublishTierBatchResult(int(tier), stats)
	}

	return &deps{
		Store: st, Sink: sink, Registry: registry, Client: client,
		Scheduler: sched, Monitor: hub, Catalog: catalog,
	}, nil
}

func cmdStatus(ctx context.Context, d *deps) int {
	status, err := d.Store.ProcessingStatus(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tieranalysis: status failed")
		return 2
	}
	fmt.Println("Processing Pipeline Status:")
	fmt.Printf("  Pending Tier 1: %d\n", status.PendingTier1)
	fmt.Printf("  Pending Tier 2: %d\n", status.PendingTier2)
	fmt.Printf("  Pending Tier 3: %d\n", status.PendingTier3)
	fmt.Printf("  Fully Analyzed: %d\n", status.FullyAnalyzed)
	return 0
}

func cmdTierBatch(ctx context.Context, d *deps, tier models.Tier) int {
	stats, err := d.Scheduler.RunTierBatch(ctx, tier, 0)
	if err != nil {
		log.Error().Err(err).Str("tier", tier.String()).Msg("tieranalysis: batch failed")
		return 2
	}
	fmt.Printf("\n%s Results: %d successful, %d failed\n", tier.String(), stats.Successful, stats.Failed)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

func cmdAll(ctx context.Context, d *deps) int {
	results, err := d.Scheduler.RunFullSequentialBatch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tieranalysis: full sequential batch failed")
		return 2
	}
	total, tokens, failed := 0, 0, 0
	for _, s := range results {
		total += s.TotalJobs
		tokens += s.TotalTokens
		failed += s.Failed
	}
	fmt.Println("Full Sequential Batch Results:")
	fmt.Printf("  Total Jobs: %d\n", total)
	fmt.Printf("  Total Tokens: %d\n", tokens)
	if failed > 0 {
		return 1
	}
	return 0
}

func cmdSchedule(ctx context.Context, d *deps) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	d.Scheduler.RunContinuousScheduler(ctx, 0)
	return 0
}

func cmdServe(ctx context.Context, d *deps, cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go d.Monitor.Run(ctx)
	go d.Scheduler.RunContinuousScheduler(ctx, cfg.SchedulerInterval())

	srv := &api.Server{Scheduler: d.Scheduler, Store: d.Store, APIKey: cfg.WebhookAPIKey, Monitor: d.Monitor}
	log.Info().Str("addr", cfg.ControlAPIAddr).Msg("tieranalysis: control API listening")
	if err := api.ListenAndServe(ctx, cfg.ControlAPIAddr, srv.Router()); err != nil {
		log.Error().Err(err).Msg("tieranalysis: control API failed")
		return 2
	}
	return 0
}
