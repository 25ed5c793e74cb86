package recipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
	"github.com/vk/npurunner/internal/taskqueue"
)

// Execution is the executable section of a recipe: runs bound to a buffer
// table and partitioned into runlists.
type Execution struct {
	ctx      context.Context
	buffers  map[string]*Buffer
	runs     []*Run
	runlists []Runlist

	// queue and events exist only with more than one runlist; events[i] is
	// the completion of runlist i's latest task.
	queue  *taskqueue.Queue
	events []*taskqueue.Event

	mu    sync.Mutex
	fault error

	// release drops the hardware context reference held by a clone.
	release func() error
}

// NewExecution assembles an Execution from prebuilt runlists. It has no
// buffers, so Bind fails for every name.
func NewExecution(runlists ...Runlist) *Execution {
	return &Execution{ctx: context.Background(), buffers: map[string]*Buffer{}, runlists: runlists}
}

func newExecution(ctx context.Context, res *resources, buffers map[string]*Buffer, specs []description.Run, threshold int) (*Execution, error) {
	logger := ctxlog.FromContext(ctx)
	e := &Execution{ctx: ctx, buffers: buffers}
	for _, spec := range specs {
		run, err := newRun(res, buffers, spec)
		if err != nil {
			return nil, err
		}
		e.runs = append(e.runs, run)
		logger.Debug("Created run.", "run", run.Name, "kind", run.Kind().String(), "arguments", len(run.args))
	}

	runlists, err := buildRunlists(e.runs, threshold, res.hwctx.NewBatch)
	if err != nil {
		return nil, err
	}
	e.runlists = runlists
	for i, rl := range runlists {
		attrs := []any{"index", i, "kind", rl.Kind().String(), "runs", rl.Len()}
		if n, ok := rl.(*npuRunlist); ok {
			attrs = append(attrs, "state", n.State().String())
		}
		logger.Debug("Created runlist.", attrs...)
	}
	return e, nil
}

// Runlists returns the runlists in execution order.
func (e *Execution) Runlists() []Runlist { return e.runlists }

// Runs returns the runs in declaration order.
func (e *Execution) Runs() []*Run { return e.runs }

// Buffer returns the named buffer resource of this execution.
func (e *Execution) Buffer(name string) (*Buffer, bool) {
	b, ok := e.buffers[name]
	return b, ok
}

// Bind backs the named buffer with mem and rebinds every run argument that
// references it.
func (e *Execution) Bind(name string, mem device.Buffer) error {
	b, ok := e.buffers[name]
	if !ok {
		return failure.Recipef("unknown buffer %q", name)
	}
	if err := b.bind(mem); err != nil {
		return err
	}
	for _, run := range e.runs {
		if err := run.rebind(b); err != nil {
			return err
		}
	}
	return nil
}

func (e *Execution) capture(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fault = errors.Join(e.fault, err)
}

func (e *Execution) takeFault() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.fault
	e.fault = nil
	return err
}

// Execute issues the given iteration of every runlist. With one runlist
// the call goes straight to it. Otherwise each runlist's iteration is
// queued behind the previous runlist's, and the runlist's own previous
// iteration is awaited first.
func (e *Execution) Execute(iteration int) error {
	ctxlog.FromContext(e.ctx).Debug("Executing.", "iteration", iteration, "runlists", len(e.runlists))
	switch len(e.runlists) {
	case 0:
		return nil
	case 1:
		return e.runlists[0].Execute(iteration)
	}

	if e.queue == nil {
		e.queue = taskqueue.New()
		e.events = make([]*taskqueue.Event, len(e.runlists))
	}
	for i, rl := range e.runlists {
		if iteration > 0 {
			if err := e.events[i].Wait(); err != nil {
				return err
			}
		}
		e.events[i] = e.queue.Enqueue(func() {
			if err := runTask(rl, iteration); err != nil {
				e.capture(fmt.Errorf("runlist %d (%s), iteration %d: %w", i, rl.Kind(), iteration, err))
			}
		})
	}
	return nil
}

// runTask executes and waits one iteration of a runlist. A panic in a
// kernel or host function becomes the returned error.
func runTask(rl Runlist, iteration int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return errors.Join(rl.Execute(iteration), rl.Wait())
}

// Wait blocks until the latest iteration completed and returns, once, every
// fault captured since the previous Wait.
func (e *Execution) Wait() error {
	ctxlog.FromContext(e.ctx).Debug("Waiting.", "runlists", len(e.runlists))
	switch len(e.runlists) {
	case 0:
		return nil
	case 1:
		return e.runlists[0].Wait()
	}
	if e.events == nil {
		return e.takeFault()
	}
	// Each task waited its predecessor, so the last event covers all.
	if err := e.events[len(e.events)-1].Wait(); err != nil {
		return err
	}
	return e.takeFault()
}

// Close stops the task queue and releases a clone's context reference.
func (e *Execution) Close() error {
	if e.queue != nil {
		e.queue.Close()
	}
	if e.release != nil {
		release := e.release
		e.release = nil
		return release()
	}
	return nil
}
