package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/roach88/commanding/internal/command"
	"github.com/roach88/commanding/internal/counter"
	"github.com/roach88/commanding/internal/journal"
	"github.com/roach88/commanding/internal/manager"
	"github.com/roach88/commanding/internal/metrics"
	"github.com/roach88/commanding/internal/owner"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Database   string
	Iterations int
	CancelAt   int
	Delay      time.Duration
	Metrics    bool
}

// DemoResult is the output of the demo command.
type DemoResult struct {
	Events    []string           `json:"events"`
	Total     int                `json:"total"`
	UndoDepth int                `json:"undo_depth"`
	RedoDepth int                `json:"redo_depth"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a live command manager session",
		Long: `Drive a command manager on an owner loop through foreground commands,
a transaction, a background command reporting progress, a cancelled
background loop, and an undo/redo round trip.

With --db every operation and outcome is journaled; inspect it afterwards
with "commanding trace".

Examples:
  commanding demo
  commanding demo --db ./journal.db --metrics
  commanding demo --iterations 50 --cancel-at 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database path")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 10, "iterations of the cancelable loop")
	cmd.Flags().IntVar(&opts.CancelAt, "cancel-at", 4, "cancel the loop once the counter reaches this many iterations (0 disables)")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 5*time.Millisecond, "delay between progress updates")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report collected metrics")

	return cmd
}

// eventLog collects demo output lines from the owner goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Publish implements command.Publisher.
func (l *eventLog) Publish(_ context.Context, topic string, payload any) {
	l.add("published %s: %v", topic, payload)
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	if opts.Iterations <= 0 {
		return NewExitError(ExitCommandError, "--iterations must be positive")
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	logger := newLogger(out.ErrorWriter(), opts.Verbose)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := &eventLog{}
	reg := prometheus.NewRegistry()
	mopts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithPublisher(log),
		manager.WithObserver(metrics.New(reg)),
	}

	if opts.Database != "" {
		j, err := journal.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		last, err := j.LastSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		mopts = append(mopts, manager.WithJournal(j), manager.WithClock(manager.NewClockAt(last)))
		out.VerboseLog("journaling to %s from seq %d", opts.Database, last+1)
	}

	loop := owner.New(owner.WithLogger(logger))
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()
	mgr := manager.New(append(mopts, manager.WithOwner(loop))...)

	total := counter.New("total", 0)
	sessionErr := demoSession(ctx, opts, mgr, total, log)

	loop.Stop()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "owner loop failed", err)
	}
	if sessionErr != nil {
		return WrapExitError(ExitFailure, "demo failed", sessionErr)
	}

	result := DemoResult{
		Events:    log.all(),
		Total:     total.Value(),
		UndoDepth: mgr.UndoDepth(),
		RedoDepth: mgr.RedoDepth(),
	}
	if opts.Metrics {
		m, err := gatherMetrics(reg)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to gather metrics", err)
		}
		result.Metrics = m
	}

	if out.JSON() {
		return out.Success(result)
	}
	printDemoText(out, result)
	return nil
}

// demoSession runs the scripted session. Callbacks run on the owner loop.
func demoSession(ctx context.Context, opts *DemoOptions, mgr *manager.Manager, total *counter.Counter, log *eventLog) error {
	unsubscribe := mgr.Subscribe(func(_ context.Context, c manager.Change) {
		log.add("%s: can undo=%t can redo=%t", c.Op, c.CanUndo(), c.CanRedo())
	})
	defer unsubscribe()

	report := func(_ context.Context, o command.Outcome) {
		line := fmt.Sprintf("%s %s: %s", o.Command.Name(), o.Direction, o.Status())
		if o.Message != "" {
			line += " (" + o.Message + ")"
		}
		log.add("%s, total=%d", line, total.Value())
	}

	announce := command.New(command.Funcs{
		Label: "Announce",
		Forward: func(ctx context.Context, c *command.Command) error {
			c.Publisher().Publish(ctx, "demo.started", total.Name())
			return nil
		},
	})
	if err := mgr.Do(ctx, command.For(announce).WithoutUndo()); err != nil {
		return err
	}

	if err := mgr.Do(ctx, command.For(counter.NewIncrement(total, 1)).WhenCompleted(report)); err != nil {
		return err
	}

	err := mgr.RunWithinTransactionAndCommit(ctx, func(ctx context.Context, m *manager.Manager) error {
		for _, by := range []int{5, 10} {
			if err := m.Do(ctx, command.For(counter.NewIncrement(total, by)).WhenCompleted(report)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	progress := func(_ context.Context, p command.Progress) { log.add("%s", p) }
	work := counter.NewProgressing("warm-up", 4, opts.Delay)
	if err := mgr.Do(ctx, command.For(work).OnProgress(progress).WhenCompleted(report).InBackground()); err != nil {
		return err
	}
	if err := mgr.Wait(); err != nil {
		return err
	}

	loopCmd := counter.NewLoop(total, opts.Iterations)
	start := total.Value()
	cfg := command.For(loopCmd).
		OnProgress(func(ctx context.Context, p command.Progress) {
			progress(ctx, p)
			if opts.CancelAt > 0 && total.Value()-start >= opts.CancelAt && !loopCmd.CancellationRequested() {
				if err := loopCmd.Cancel(); err != nil {
					log.add("cancel failed: %v", err)
				}
			}
		}).
		WhenCompleted(report).
		InBackground()
	if err := mgr.Do(ctx, cfg); err != nil {
		return err
	}
	if err := mgr.Wait(); err != nil {
		return err
	}

	if err := mgr.Undo(ctx); err != nil {
		return err
	}
	if err := mgr.Wait(); err != nil {
		return err
	}
	return mgr.Redo(ctx)
}

// gatherMetrics flattens counters and gauges to "name{labels}" keys.
// Histograms report their sample count.
func gatherMetrics(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName() + labelSuffix(m.GetLabel())
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func labelSuffix(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func printDemoText(out *OutputFormatter, result DemoResult) {
	w := out.Writer
	for _, e := range result.Events {
		fmt.Fprintln(w, e)
	}
	fmt.Fprintf(w, "\ntotal=%d undo=%d redo=%d\n", result.Total, result.UndoDepth, result.RedoDepth)

	if len(result.Metrics) == 0 {
		return
	}
	keys := make([]string, 0, len(result.Metrics))
	for k := range result.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\nmetrics:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %g\n", k, result.Metrics[k])
	}
}
