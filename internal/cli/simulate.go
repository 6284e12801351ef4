package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/boundary"
	"github.com/vietddude/faultline/internal/boundary/fallback"
	"github.com/vietddude/faultline/internal/boundary/presets"
	"github.com/vietddude/faultline/internal/control"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/timer"
)

var scenarioNames []string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive boundaries through the chunk-load, null-reference and checkout scenarios",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVar(&scenarioNames, "scenario", []string{"a", "b", "c"}, "scenarios to run (a, b, c)")
	rootCmd.AddCommand(simulateCmd)
}

// simulation runs scenarios against one pipeline. advance moves the
// scheduler's clock; with a real scheduler it is a no-op.
type simulation struct {
	pipeline  *control.Pipeline
	scheduler timer.Scheduler
	advance   func(d time.Duration)
	out       io.Writer
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	p, err := control.NewPipeline(cfg)
	if err != nil {
		return err
	}

	sim := &simulation{
		pipeline:  p,
		scheduler: timer.Real{},
		advance:   func(time.Duration) {},
		out:       os.Stdout,
	}

	var errs []error
	for _, name := range scenarioNames {
		if err := sim.run(cmd.Context(), name); err != nil {
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Timeout)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if health, ok := p.SinkHealth(); ok {
		_, _ = fmt.Fprintf(sim.out, "\nsink: available=%t sent=%d failed=%d\n",
			health.Available, health.SuccessCount, health.FailureCount)
	}
	return errors.Join(errs...)
}

func (s *simulation) run(ctx context.Context, name string) error {
	switch strings.ToLower(name) {
	case "a":
		return s.chunkLoad(ctx)
	case "b":
		return s.nullReference()
	case "c":
		return s.checkout()
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

func (s *simulation) options(name string, onReset func()) boundary.Options {
	opts := s.pipeline.BoundaryOptions(name)
	opts.Scheduler = s.scheduler
	opts.OnReset = onReset
	return opts
}

func (s *simulation) show(title string, node boundary.Node) (fallback.View, error) {
	view, ok := node.(fallback.View)
	if !ok {
		return fallback.View{}, fmt.Errorf("%s: expected fallback view, got %T", title, node)
	}
	_, _ = fmt.Fprintf(s.out, "\n== %s ==\n%s", title, view.Text())
	return view, nil
}

// chunkLoad fails with a stale bundle and waits for the automatic retry.
func (s *simulation) chunkLoad(ctx context.Context) error {
	reset := make(chan struct{}, 1)
	b := presets.Page("Dashboard", s.options("", func() {
		select {
		case reset <- struct{}{}:
		default:
		}
	}))
	defer b.Close()

	node := b.Render(func() (boundary.Node, error) {
		return nil, domain.NewRenderError("ChunkLoadError", "Loading chunk 4 failed")
	})
	if _, err := s.show("A: chunk load", node); err != nil {
		return err
	}

	st := b.State()
	if !st.RetryPending {
		return errors.New("A: expected an automatic retry to be scheduled")
	}
	s.advance(st.RetryDelay)

	select {
	case <-reset:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(st.RetryDelay + 5*time.Second):
		return errors.New("A: automatic retry did not fire")
	}

	b.Render(func() (boundary.Node, error) { return "dashboard", nil })
	st = b.State()
	_, _ = fmt.Fprintf(s.out, "recovered: phase=%s retryCount=%d\n", st.Phase, st.RetryCount)
	if st.Phase != domain.PhaseHealthy || st.RetryCount != 1 {
		return fmt.Errorf("A: expected healthy after one retry, got %s/%d", st.Phase, st.RetryCount)
	}
	return nil
}

// nullReference fails with a non-retryable error and uses the manual retry.
func (s *simulation) nullReference() error {
	b := boundary.New(s.options("StudentList", nil))
	defer b.Close()

	view, err := s.show("B: null reference", b.Render(func() (boundary.Node, error) {
		return nil, domain.NewRenderError("TypeError", "Cannot read properties of null (reading 'x')")
	}))
	if err != nil {
		return err
	}
	if b.State().RetryPending {
		return errors.New("B: null reference must not retry automatically")
	}

	retry, ok := view.Action(fallback.ActionRetry)
	if !ok {
		return errors.New("B: expected a manual retry action")
	}
	retry.Run()
	_, _ = fmt.Fprintf(s.out, "manual retry: phase=%s retryCount=%d\n", b.Phase(), b.State().RetryCount)
	return nil
}

// checkout fails with a generic error inside a payment component.
func (s *simulation) checkout() error {
	b := boundary.New(s.options("PaymentCheckout", nil))
	defer b.Close()

	view, err := s.show("C: checkout", b.Render(func() (boundary.Node, error) {
		return nil, errors.New("boom")
	}))
	if err != nil {
		return err
	}
	if view.Severity != domain.SeverityCritical.String() {
		return fmt.Errorf("C: expected critical severity, got %s", view.Severity)
	}
	if !slices.ContainsFunc(view.Actions, func(a fallback.Action) bool { return a.Kind == fallback.ActionRetry }) {
		return errors.New("C: expected a retry action")
	}
	return nil
}
