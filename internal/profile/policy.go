package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
)

const (
	ModeDefault    = "default"
	ModeLatency    = "latency"
	ModeThroughput = "throughput"
)

// defaultThroughputDepth keeps two iterations in flight.
const defaultThroughputDepth = 2

// legacyName names the unnamed "execution" policy in logs and reports.
const legacyName = "execution"

// Metrics are the timing results of one policy run.
type Metrics struct {
	Elapsed time.Duration
	// Latency is the mean time per effective run.
	Latency time.Duration
	// Throughput is effective runs per second.
	Throughput float64
}

// computeMetrics derives latency and throughput from the elapsed time of
// iterations loops of runs effective runs each.
func computeMetrics(elapsed time.Duration, iterations, runs int) Metrics {
	m := Metrics{Elapsed: elapsed}
	ops := iterations * runs
	if ops <= 0 || elapsed <= 0 {
		return m
	}
	m.Latency = elapsed / time.Duration(ops)
	m.Throughput = float64(ops) * 1e9 / float64(elapsed.Nanoseconds())
	return m
}

func micros(d time.Duration) float64 { return float64(d) / float64(time.Microsecond) }

// Policy is one execution policy bound to its executor.
type Policy struct {
	ctx      context.Context
	spec     description.Policy
	legacy   bool
	rec      Recipe
	bindings []*Binding
	exec     *Executor

	ran       bool
	validated bool
	metrics   Metrics
	err       error
}

func newPolicy(ctx context.Context, rec Recipe, bindings []*Binding, spec description.Policy, legacy bool) (*Policy, error) {
	p := &Policy{spec: spec, legacy: legacy, rec: rec, bindings: bindings}
	ctx = ctxlog.With(ctx, "policy", p.Name())
	p.ctx = ctx

	depth := 1
	if spec.Mode == ModeThroughput {
		depth = spec.Depth
		if depth == 0 {
			depth = defaultThroughputDepth
		}
	} else if spec.Depth > 1 {
		ctxlog.FromContext(ctx).Warn("Ignoring depth outside throughput mode.", "mode", spec.Mode, "depth", spec.Depth)
	}

	exec, err := NewExecutor(rec, depth)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if err := b.Bind(exec); err != nil {
			return nil, errors.Join(err, exec.Close())
		}
	}
	p.exec = exec
	ctxlog.FromContext(ctx).Debug("Created policy.", "mode", spec.Mode, "depth", depth, "iterations", spec.Iterations)
	return p, nil
}

func (p *Policy) Name() string {
	if p.spec.Name == "" {
		return legacyName
	}
	return p.spec.Name
}

// Executor returns the executor the policy drives.
func (p *Policy) Executor() *Executor { return p.exec }

// Metrics returns the results of the latest run.
func (p *Policy) Metrics() Metrics { return p.metrics }

// effectiveRuns is the number of runs one iteration counts for.
func (p *Policy) effectiveRuns() int {
	if p.legacy {
		return p.rec.RunCount()
	}
	return p.exec.Depth()
}

// Run executes the policy's iteration loop. Device faults are collected
// and reported after the loop; validation failures stop it at once.
func (p *Policy) Run() error {
	err := p.run()
	p.ran = true
	p.err = err
	return err
}

func (p *Policy) run() error {
	logger := ctxlog.FromContext(p.ctx)
	it := p.spec.Iteration
	p.validated = false

	var faults []error
	record := func(err error) {
		if err != nil {
			logger.Warn("Execution fault.", "error", err)
			faults = append(faults, err)
		}
	}

	start := time.Now()
	for i := range p.spec.Iterations {
		if i > 0 && (it.Bind || it.Init) {
			record(p.exec.Wait())
			for _, b := range p.bindings {
				if it.Bind {
					if err := b.Rebind(p.exec); err != nil {
						return err
					}
				}
				if it.Init {
					if err := b.Reinit(i); err != nil {
						return err
					}
				}
			}
		}

		record(p.exec.ExecuteIteration(i))

		if p.spec.Mode == ModeLatency || (i > 0 && (it.Wait || it.Validate)) {
			record(p.exec.Wait())
		}
		if i > 0 && it.Validate {
			if err := p.validate(); err != nil {
				return err
			}
		}
		if i > 0 && it.SleepMs > 0 {
			time.Sleep(time.Duration(it.SleepMs) * time.Millisecond)
		}
	}
	record(p.exec.Wait())
	p.metrics = computeMetrics(time.Since(start), p.spec.Iterations, p.effectiveRuns())

	attrs := []any{
		"iterations", p.spec.Iterations,
		"elapsed_us", p.metrics.Elapsed.Microseconds(),
		"latency_us", micros(p.metrics.Latency),
		"throughput", p.metrics.Throughput,
	}
	if p.spec.Verbose {
		logger.Info("Execution finished.", attrs...)
	} else {
		logger.Debug("Execution finished.", attrs...)
	}

	if err := errors.Join(faults...); err != nil {
		return fmt.Errorf("execution %q: %w", p.Name(), err)
	}
	if p.spec.Validate {
		return p.validate()
	}
	return nil
}

func (p *Policy) validate() error {
	for _, b := range p.bindings {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	p.validated = true
	return nil
}

// Close releases the executor's clones.
func (p *Policy) Close() error { return p.exec.Close() }
