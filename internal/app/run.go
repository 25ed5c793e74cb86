package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/recipe"
	"github.com/vk/npurunner/internal/reportsink"
	"github.com/vk/npurunner/internal/runner"
)

// Run loads the recipe (and profile), executes it, prints the report and
// publishes it to the report sink if one is configured. The report is
// produced even when execution fails.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startHealthCheckServer()
	defer func() { err = errors.Join(err, a.closeHealthCheckServer()) }()

	if a.sink == nil && a.config.ReportURL != "" {
		sink, err := reportsink.Dial(ctx, reportsink.Config{URL: a.config.ReportURL, Namespace: a.config.ReportNamespace})
		if err != nil {
			return fmt.Errorf("failed to connect report sink: %w", err)
		}
		a.sink = sink
	}
	if a.sink != nil {
		defer func() { err = errors.Join(err, a.sink.Close()) }()
	}

	r, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to load: %w", err)
	}
	defer func() { err = errors.Join(err, r.Close()) }()

	runErr := a.execute(r)
	if runErr != nil {
		a.logger.Error("Execution failed.", "error", runErr)
	}

	report, err := r.Report()
	if err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Fprintln(a.outW, report)
	if a.sink != nil {
		if err := a.sink.Publish(ctx, report); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to publish report: %w", err))
		}
		a.logger.Debug("Report published.")
	}

	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	a.logger.Info("Execution finished.")
	return nil
}

func (a *App) open(ctx context.Context) (*runner.Runner, error) {
	var opts []recipe.Option
	if a.config.LibraryRoot != "" {
		opts = append(opts, recipe.WithLibraryRoot(a.config.LibraryRoot))
	}
	if a.config.RunlistThreshold > 0 {
		opts = append(opts, recipe.WithRunlistThreshold(a.config.RunlistThreshold))
	}

	if a.config.ProfilePath != "" {
		if a.config.Iterations > 1 {
			a.logger.Warn("Ignoring iterations; the profile sets its own.", "iterations", a.config.Iterations)
		}
		return runner.NewWithProfile(ctx, a.platform, a.config.RecipePath, a.config.ProfilePath, a.repo, opts...)
	}

	r, err := runner.New(ctx, a.platform, a.config.RecipePath, a.repo, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.bindExternal(r); err != nil {
		return nil, errors.Join(err, r.Close())
	}
	return r, nil
}

// bindExternal backs every unbound buffer of a bare recipe that declares
// its size with zeroed device memory.
func (a *App) bindExternal(r *runner.Runner) error {
	for _, b := range r.Buffers() {
		if b.Bound || b.Size == 0 {
			continue
		}
		mem, err := r.Alloc(b.Size)
		if err != nil {
			return err
		}
		bind := r.BindInput
		if b.Type == "output" {
			bind = r.BindOutput
		}
		if err := bind(b.Name, mem); err != nil {
			return err
		}
		a.logger.Debug("Bound zeroed memory.", "buffer", b.Name, "size", b.Size)
	}
	return nil
}

func (a *App) execute(r *runner.Runner) error {
	iterations := a.config.Iterations
	if a.config.ProfilePath != "" {
		iterations = 1
	}
	for i := range iterations {
		a.logger.Debug("Executing.", "iteration", i)
		if err := r.Execute(); err != nil {
			return errors.Join(err, r.Wait())
		}
	}
	return r.Wait()
}
