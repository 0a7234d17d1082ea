package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/analysis"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/control"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/extractor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/llm"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/search"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/trigger"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

func main() {
	var (
		task        string
		limit       int
		workers     int
		missingOnly bool
		forced      bool
		backend     string
	)
	flag.StringVar(&task, "task", "", "Pipeline task: search, extract, classify, analyze or dedup")
	flag.IntVar(&limit, "limit", 0, "Maximum items to process, 0 for all")
	flag.IntVar(&workers, "workers", 0, "Worker count override, 0 for configured default")
	flag.BoolVar(&missingOnly, "missing-only", false, "Extract only rulings never attempted, skip sentinel retries")
	flag.BoolVar(&forced, "forced", false, "Take exclusive execution, pausing other processes")
	flag.StringVar(&backend, "backend", "chat", "Claim analysis backend: chat or anthropic")
	flag.Parse()

	if task == "" {
		fmt.Println("Usage: pipeline -task search|extract|classify|analyze|dedup [-limit N] [-workers N] [-missing-only] [-forced] [-backend chat|anthropic]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if workers > 0 {
		cfg.SearchWorkers = workers
		cfg.ExtractWorkers = workers
	}

	controller := control.New(db, log)
	if err := controller.EnsureProcesses(); err != nil {
		log.Fatal("Failed to initialize process control", "error", err)
	}
	gov := governor.New(cfg.MaxDBConnections, cfg.MaxConcurrentWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("Shutdown requested")
		cancel()
	}()

	var processType string
	switch task {
	case "search":
		processType = database.ProcessCourtSearch
	case "extract", "classify":
		processType = database.ProcessClauseExtraction
	case "analyze", "dedup":
		processType = database.ProcessClaimAnalysis
	default:
		log.Fatal("Unknown task", "task", task)
	}

	if forced {
		err = controller.StartForced(processType)
	} else {
		err = controller.Start(processType)
	}
	if err != nil {
		log.Fatal("Failed to start process", "process_type", processType, "error", err)
	}

	progress := func(current, total int, message string) {
		if err := controller.UpdateProgress(processType, current, total, message); err != nil {
			log.Warn("Failed to publish progress", "error", err)
		}
	}
	stop := func() bool {
		return controller.ShouldStop(processType)
	}

	var runErr error
	switch task {
	case "search":
		registry, err := search.OpenRegistry(cfg.RegistryPath)
		if err != nil {
			log.Fatal("Failed to open decisions registry", "error", err)
		}
		engine := search.NewEngine(db, registry, gov, cfg, log)
		_, runErr = engine.SearchBatch(ctx, limit, progress, stop)

	case "extract":
		x := extractor.New(db, gov, cfg, log)
		if missingOnly {
			_, runErr = x.RunMissingOnly(ctx, limit, progress, stop)
		} else {
			_, runErr = x.Run(ctx, limit, progress, stop)
		}

	case "classify":
		classifier := trigger.NewClassifier(cfg.TriggerPrimaryPhrase, cfg.TriggerSecondaryPhrase)
		updater := trigger.NewUpdater(db, classifier, log)
		_, runErr = updater.Run(ctx, limit, progress)

	case "analyze", "dedup":
		var b llm.Backend
		switch backend {
		case "anthropic":
			b = llm.NewAnthropicBackend(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.LLMRequestDelay, log)
		default:
			apiKey := cfg.LLMAPIKey
			if task == "dedup" && cfg.LLMDedupAPIKey != "" {
				apiKey = cfg.LLMDedupAPIKey
			}
			b = llm.NewChatClient(cfg.LLMBaseURL, apiKey, cfg.LLMModel, log,
				llm.WithRetry(cfg.LLMMaxRetries, cfg.LLMRetryBase),
				llm.WithRequestDelay(cfg.LLMRequestDelay))
		}
		analyzer := analysis.New(db, gov, b, cfg, log)
		_, runErr = analyzer.Run(ctx, limit, progress, stop)
	}

	if runErr != nil && runErr != context.Canceled {
		if err := controller.MarkError(processType, runErr.Error()); err != nil {
			log.Error("Failed to record process error", "error", err)
		}
		log.Fatal("Task failed", "task", task, "error", runErr)
	}

	if err := controller.Stop(processType); err != nil {
		log.Error("Failed to release process", "error", err)
	}
	log.Info("Task finished", "task", task)
}
