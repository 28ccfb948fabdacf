// Package metrics exposes run and batch counters over Prometheus.
// Counters are fed from the event bus so the pipeline itself stays
// free of metrics plumbing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbleigh/genthetic/internal/events"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_runs_started_total",
		Help: "Total pipeline runs started",
	})
	runsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_runs_completed_total",
		Help: "Total pipeline runs completed successfully",
	})
	runsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_runs_failed_total",
		Help: "Total pipeline runs that failed",
	})
	batchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_batches_completed_total",
		Help: "Total batches completed across all runs",
	})
	itemsProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_items_produced_total",
		Help: "Total records produced across all runs",
	})
	batchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genthetic_batch_retries_total",
		Help: "Total batch retry attempts",
	})
)

// IncRetry counts one batch retry. Wired into the scheduler's retry hook
// because retries never reach the event bus.
func IncRetry() {
	batchRetries.Inc()
}

// Watch consumes events from the bus and updates counters until the
// context is cancelled or the bus closes.
func Watch(ctx context.Context, bus *events.Bus) {
	ch := bus.SubscribeAll(64)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			record(ev)
		}
	}
}

func record(ev events.Event) {
	switch e := ev.(type) {
	case events.RunStartedEvent:
		runsStarted.Inc()
	case events.RunCompletedEvent:
		runsCompleted.Inc()
		itemsProduced.Add(float64(e.Items))
	case events.RunFailedEvent:
		runsFailed.Inc()
	case events.BatchCompletedEvent:
		batchesCompleted.Inc()
	}
}

// Serve runs an HTTP server exposing /metrics and /healthz on addr until
// the context is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
