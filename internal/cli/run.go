package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mbleigh/genthetic/internal/config"
	"github.com/mbleigh/genthetic/internal/events"
	"github.com/mbleigh/genthetic/internal/generate"
	"github.com/mbleigh/genthetic/internal/metrics"
	"github.com/mbleigh/genthetic/internal/persistence"
	"github.com/mbleigh/genthetic/internal/pipeline"
	"github.com/mbleigh/genthetic/internal/schema"
	"github.com/mbleigh/genthetic/internal/sink"
	"github.com/mbleigh/genthetic/internal/tui"
)

type runFlags struct {
	count       int
	batches     int
	concurrency int
	retries     int
	output      string
	command     string
	cache       bool
	useTUI      bool
}

// NewRunCmd creates the `run` command: load a dataset descriptor and
// drive a generation run against the configured service.
func NewRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <dataset.yaml>",
		Short: "Run a generation pipeline from a dataset descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return err
			}
			return runDataset(cmd.Context(), cfg, args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.count, "count", 0, "Total records to generate (default: one batch)")
	cmd.Flags().IntVar(&flags.batches, "batches", 0, "Number of batches to generate (mutually exclusive with --count)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Max batches in flight (default from config)")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "Retries per batch (default from config)")
	cmd.Flags().StringVar(&flags.output, "output", "", "Output JSON path (default from config)")
	cmd.Flags().StringVar(&flags.command, "command", "", "Generate via a local command instead of the HTTP service")
	cmd.Flags().BoolVar(&flags.cache, "cache", false, "Make generated records visible to later batches (forces serial execution)")
	cmd.Flags().BoolVar(&flags.useTUI, "tui", false, "Show live progress in a terminal UI")

	return cmd
}

func runDataset(ctx context.Context, cfg *config.GentheticConfig, schemaPath string, flags runFlags) error {
	s, err := schema.Load(schemaPath)
	if err != nil {
		return err
	}

	var svc generate.Service
	if flags.command != "" {
		svc = generate.NewCommandService("sh", "-c", flags.command)
	} else {
		svc = generate.NewClient(generate.ClientConfig{
			Endpoint: cfg.Service.Endpoint,
			Model:    cfg.Service.Model,
			APIKey:   os.Getenv(cfg.Service.APIKeyEnv),
			Timeout:  time.Duration(cfg.Service.TimeoutSeconds) * time.Second,
		}, nil)
	}

	def := pipeline.NewDefinition(s.Name, s.BatchSize)
	if flags.cache {
		def.AddStage(generate.CachedStage(svc, s, s.Instructions))
	} else {
		def.AddStage(generate.Stage(svc, s, s.Instructions))
	}

	bus := events.NewBus()
	defer bus.Close()

	store, err := persistence.NewSQLiteStore(ctx, cfg.History.Path)
	if err != nil {
		log.Printf("WARNING: run history unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	var out pipeline.Sink = sink.Discard{}
	outputPath := flags.output
	if outputPath == "" {
		outputPath = cfg.Output.Path
	}
	if outputPath != "" {
		out = sink.NewJSONFile(outputPath)
	}

	concurrency := flags.concurrency
	if concurrency <= 0 {
		concurrency = cfg.Generator.Concurrency
	}
	retries := flags.retries
	if retries <= 0 {
		retries = cfg.Generator.MaxRetries
	}

	g, gctx := errgroup.WithContext(ctx)

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if cfg.Metrics.Addr != "" {
		go metrics.Watch(metricsCtx, bus)
		g.Go(func() error {
			return metrics.Serve(metricsCtx, cfg.Metrics.Addr)
		})
	}

	opts := pipeline.RunOptions{
		ItemCount:   flags.count,
		BatchCount:  flags.batches,
		Concurrency: concurrency,
		MaxRetries:  retries,
		BaseDelay:   time.Duration(cfg.Generator.BaseDelayMS) * time.Millisecond,
		Sink:        out,
		Bus:         bus,
		OnRetry: func(attempt int, err error) {
			metrics.IncRetry()
			log.Printf("WARNING: batch attempt %d failed, retrying: %v", attempt, err)
		},
	}
	if !flags.useTUI {
		opts.OnProgress = func(p pipeline.ProgressSnapshot) {
			log.Printf("progress: %d/%d batches, stage %d/%d, elapsed %s",
				p.BatchesComplete, p.TotalBatches, p.StagesComplete, p.TotalStages,
				p.Elapsed.Round(time.Millisecond))
		}
	}

	// Record per-batch history rows off the event bus.
	var recorderDone chan struct{}
	if store != nil {
		batchEvents := bus.Subscribe(events.TopicBatch, 256)
		recorderDone = make(chan struct{})
		go func() {
			defer close(recorderDone)
			for ev := range batchEvents {
				if bc, ok := ev.(events.BatchCompletedEvent); ok {
					if err := store.RecordBatch(ctx, bc.ID, bc.BatchIndex, bc.Size); err != nil {
						log.Printf("WARNING: failed to record batch %d: %v", bc.BatchIndex, err)
					}
				}
			}
		}()
	}

	run, err := pipeline.Start(gctx, def, opts)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.CreateRun(ctx, persistence.RunRecord{
			ID:           run.ID(),
			Pipeline:     s.Name,
			TotalItems:   run.TotalItems(),
			TotalBatches: run.TotalBatches(),
			Serial:       run.Serial(),
		}); err != nil {
			log.Printf("WARNING: failed to record run: %v", err)
		}
	}

	var results pipeline.Batch
	var runErr error
	if flags.useTUI {
		results, runErr = completeWithTUI(gctx, run, bus)
	} else {
		results, runErr = run.Complete(gctx)
	}

	if store != nil {
		if runErr != nil {
			if err := store.FailRun(ctx, run.ID(), runErr); err != nil {
				log.Printf("WARNING: failed to record run failure: %v", err)
			}
		} else {
			if err := store.CompleteRun(ctx, run.ID(), len(results)); err != nil {
				log.Printf("WARNING: failed to record run completion: %v", err)
			}
		}
		bus.Close()
		<-recorderDone
	}

	stopMetrics()
	if err := g.Wait(); err != nil {
		log.Printf("WARNING: metrics server error: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", run.ID(), runErr)
	}

	fmt.Printf("Run %s completed: %d records", run.ID(), len(results))
	if outputPath != "" {
		fmt.Printf(" -> %s", outputPath)
	}
	fmt.Println()
	return nil
}

// completeWithTUI shows live progress in Bubble Tea while the run
// executes. The run keeps going if the user quits the TUI early.
func completeWithTUI(ctx context.Context, run *pipeline.Run, bus *events.Bus) (pipeline.Batch, error) {
	p := tea.NewProgram(tui.New(bus), tea.WithAltScreen())

	uiDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		uiDone <- err
	}()

	results, runErr := run.Complete(ctx)

	// The TUI stays up after the run resolves so the final state is
	// readable; it exits when the user presses q.
	if err := <-uiDone; err != nil {
		log.Printf("WARNING: TUI error: %v", err)
	}
	return results, runErr
}
