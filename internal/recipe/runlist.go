package recipe

import (
	"errors"
	"fmt"

	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
)

// Runlist is an ordered group of runs of one kind, executed and waited as
// a unit.
//
// Execute(0) starts every run without waiting. Execute(i) for i > 0 first
// waits the previous invocation, then restarts, in declaration order.
// Execute reports only submission failures; faults of earlier invocations
// are kept and reported by the next Wait, which blocks until the most
// recent invocation completed.
type Runlist interface {
	Kind() Kind
	Len() int
	Execute(iteration int) error
	Wait() error
}

// cpuRunlist calls host functions in-line; Execute returns once every call
// has completed.
type cpuRunlist struct {
	runs []*device.HostRun
}

func (rl *cpuRunlist) Kind() Kind { return CPU }
func (rl *cpuRunlist) Len() int   { return len(rl.runs) }

func (rl *cpuRunlist) Execute(int) error {
	for _, run := range rl.runs {
		if err := run.Execute(); err != nil {
			return err
		}
	}
	return nil
}

func (rl *cpuRunlist) Wait() error { return nil }

// npuState is the representation of an NPU runlist.
type npuState int

const (
	// perRun: every run is started and waited individually.
	perRun npuState = iota
	// batched: all runs are owned by one hardware batch.
	batched
)

func (s npuState) String() string {
	if s == batched {
		return "batched"
	}
	return "per-run"
}

// npuRunlist holds kernel runs in one of two states. It is promoted from
// perRun to batched exactly when the number of added runs reaches the
// threshold and never goes back.
type npuRunlist struct {
	threshold int
	newBatch  func() (device.Batch, error)

	state npuState
	added int
	runs  []device.KernelRun // perRun
	batch device.Batch       // batched

	// pending holds faults of invocations awaited by Execute.
	pending []error
}

func newNPURunlist(threshold int, newBatch func() (device.Batch, error)) *npuRunlist {
	return &npuRunlist{threshold: threshold, newBatch: newBatch}
}

func (rl *npuRunlist) Kind() Kind      { return NPU }
func (rl *npuRunlist) Len() int        { return rl.added }
func (rl *npuRunlist) State() npuState { return rl.state }

func (rl *npuRunlist) add(run device.KernelRun) error {
	switch rl.state {
	case perRun:
		rl.runs = append(rl.runs, run)
		rl.added++
		if rl.added == rl.threshold {
			return rl.promote()
		}
		return nil
	case batched:
		if err := rl.batch.Add(run); err != nil {
			return failure.Wrap(failure.ErrRecipe, err, "failed to add run to batch")
		}
		rl.added++
		return nil
	}
	panic("recipe: invalid runlist state")
}

// promote moves every run added so far, in order, into a new batch.
func (rl *npuRunlist) promote() error {
	if rl.state != perRun {
		return errors.New("recipe: runlist already batched")
	}
	b, err := rl.newBatch()
	if err != nil {
		return failure.Wrap(failure.ErrRecipe, err, "failed to create batch")
	}
	for i, run := range rl.runs {
		if err := b.Add(run); err != nil {
			return failure.Wrap(failure.ErrRecipe, err, "failed to move run %d into batch", i)
		}
	}
	rl.batch = b
	rl.runs = nil
	rl.state = batched
	return nil
}

func (rl *npuRunlist) Execute(iteration int) error {
	switch rl.state {
	case batched:
		if iteration > 0 {
			if err := rl.batch.Wait(); err != nil {
				rl.pending = append(rl.pending, fmt.Errorf("iteration %d: %w", iteration-1, err))
			}
		}
		return rl.batch.Execute()
	case perRun:
		for i, run := range rl.runs {
			if iteration > 0 {
				if err := run.Wait(); err != nil {
					rl.pending = append(rl.pending, fmt.Errorf("iteration %d: run %d: %w", iteration-1, i, err))
				}
			}
			if err := run.Start(); err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
		}
		return nil
	}
	panic("recipe: invalid runlist state")
}

func (rl *npuRunlist) Wait() error {
	errs := rl.pending
	rl.pending = nil
	switch rl.state {
	case batched:
		errs = append(errs, rl.batch.Wait())
	case perRun:
		for i, run := range rl.runs {
			if err := run.Wait(); err != nil {
				errs = append(errs, fmt.Errorf("run %d: %w", i, err))
			}
		}
	default:
		panic("recipe: invalid runlist state")
	}
	return errors.Join(errs...)
}

// buildRunlists partitions runs into maximal same-kind runlists in
// declaration order.
func buildRunlists(runs []*Run, threshold int, newBatch func() (device.Batch, error)) ([]Runlist, error) {
	var (
		runlists []Runlist
		npu      *npuRunlist
		cpu      *cpuRunlist
	)
	for _, run := range runs {
		switch run.unit.kind {
		case NPU:
			cpu = nil
			if npu == nil {
				npu = newNPURunlist(threshold, newBatch)
				runlists = append(runlists, npu)
			}
			if err := npu.add(run.unit.npu); err != nil {
				return nil, err
			}
		case CPU:
			npu = nil
			if cpu == nil {
				cpu = &cpuRunlist{}
				runlists = append(runlists, cpu)
			}
			cpu.runs = append(cpu.runs, run.unit.cpu)
		}
	}
	return runlists, nil
}
