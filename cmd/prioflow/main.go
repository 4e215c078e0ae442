// Command prioflow drives a priority worker pool with synthetic load and
// reports how long each priority class waited in the queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnykmshr/prioflow/pkg/metrics"
	"github.com/vnykmshr/prioflow/pkg/scheduling/workerpool"
)

type loadOptions struct {
	workers     int
	tasks       int
	work        time.Duration
	highRatio   float64
	metricsAddr string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "prioflow",
		Short:        "Priority worker pool tooling",
		SilenceUsage: true,
	}
	root.AddCommand(newLoadCommand())
	return root
}

func newLoadCommand() *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Submit synthetic tasks at mixed priorities and report queue wait",
		Long: `Submit synthetic tasks at mixed priorities and report queue wait.

Pool settings are read from PRIOFLOW_* environment variables first; flags
override them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "w", 0, "number of workers (default from PRIOFLOW_WORKERS)")
	flags.IntVarP(&opts.tasks, "tasks", "n", 200, "number of tasks to submit")
	flags.DurationVar(&opts.work, "work", 10*time.Millisecond, "mean time each task spends working")
	flags.Float64Var(&opts.highRatio, "high-ratio", 0.1, "fraction of tasks submitted at high priority")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func runLoad(ctx context.Context, cmd *cobra.Command, opts loadOptions) error {
	if opts.tasks <= 0 {
		return fmt.Errorf("--tasks must be positive, got %d", opts.tasks)
	}
	if opts.highRatio < 0 || opts.highRatio > 1 {
		return fmt.Errorf("--high-ratio must be within [0, 1], got %v", opts.highRatio)
	}

	cfg, err := workerpool.LoadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Logger.Sync() }()

	if cmd.Flags().Changed("workers") {
		cfg.WorkerCount = opts.workers
	}
	if opts.metricsAddr != "" {
		cfg.Metrics = metrics.Default()
		srv := &http.Server{Addr: opts.metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cfg.Logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	waits := newWaitTracker()
	cfg.OnTaskStart = func(_ int, info workerpool.TaskInfo) {
		waits.observe(info.Priority, time.Since(info.Enqueued))
	}

	pool, err := workerpool.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < opts.tasks; i++ {
		prio := workerpool.PriorityLow
		switch r := rand.Float64(); {
		case r < opts.highRatio:
			prio = workerpool.PriorityHigh
		case r < opts.highRatio+(1-opts.highRatio)/2:
			prio = workerpool.PriorityDefault
		}

		work := time.Duration(rand.Int63n(int64(2*opts.work) + 1))
		if _, err := pool.Go(func(ctx context.Context) error {
			select {
			case <-time.After(work):
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}, workerpool.WithPriority(prio)); err != nil {
			return err
		}
	}

	if err := pool.Shutdown(); err != nil {
		return err
	}
	if err := pool.AwaitTermination(ctx); err != nil {
		cancelled, _ := pool.ShutdownNow()
		_ = pool.AwaitTerminationTimeout(5 * time.Second)
		fmt.Fprintf(cmd.OutOrStdout(), "interrupted, %d queued tasks cancelled\n", cancelled)
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d tasks on %d workers in %v\n", pool.TotalCompleted(), cfg.WorkerCount, time.Since(start).Round(time.Millisecond))
	for _, line := range waits.summary() {
		fmt.Fprintln(out, line)
	}
	return nil
}

type waitTracker struct {
	mu    sync.Mutex
	waits map[workerpool.Priority][]time.Duration
}

func newWaitTracker() *waitTracker {
	return &waitTracker{waits: make(map[workerpool.Priority][]time.Duration)}
}

func (w *waitTracker) observe(p workerpool.Priority, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits[p] = append(w.waits[p], d)
}

// summary returns one line per priority, highest first, with the median and
// worst queue wait.
func (w *waitTracker) summary() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	prios := make([]workerpool.Priority, 0, len(w.waits))
	for p := range w.waits {
		prios = append(prios, p)
	}
	sort.Slice(prios, func(i, j int) bool { return prios[i] > prios[j] })

	lines := make([]string, 0, len(prios))
	for _, p := range prios {
		ds := w.waits[p]
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		lines = append(lines, fmt.Sprintf("%-8s n=%-5d p50=%-12v max=%v",
			p, len(ds), ds[len(ds)/2].Round(time.Microsecond), ds[len(ds)-1].Round(time.Microsecond)))
	}
	return lines
}
