package recipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/device/sim"
)

func newPlatform(t *testing.T) (*sim.Device, Platform) {
	t.Helper()
	d := sim.New()
	sim.RegisterBuiltins(d)
	return d, Platform{Device: d, Host: d}
}

func newRepo() artifacts.Repo {
	return artifacts.NewMemRepo(map[string][]byte{
		"design.xclbin": []byte("xclbin"),
		"control.elf":   []byte("elf"),
	})
}

func loadRecipe(t *testing.T, plat Platform, text string, opts ...Option) *Recipe {
	t.Helper()
	r, err := Load(context.Background(), plat, text, newRepo(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func allocBytes(t *testing.T, d *sim.Device, data []byte) device.Buffer {
	t.Helper()
	b, err := d.Alloc(len(data))
	require.NoError(t, err)
	copy(b.Bytes(), data)
	return b
}

// countingRun is a KernelRun stub that records starts and waits and
// rejects a start while an invocation is outstanding.
type countingRun struct {
	mu       sync.Mutex
	starts   int
	waits    int
	inFlight bool
	// fault is returned by the wait that completes the first invocation.
	fault error
}

func (r *countingRun) SetArg(int, any) error { return nil }

func (r *countingRun) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight {
		return errors.New("double submission")
	}
	r.inFlight = true
	r.starts++
	return nil
}

func (r *countingRun) Wait() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFlight {
		return nil
	}
	r.inFlight = false
	r.waits++
	err := r.fault
	r.fault = nil
	return err
}

// fakeBatch records the runs added to it.
type fakeBatch struct {
	runs     []device.KernelRun
	executes int
	waits    int
	fault    error
}

func (b *fakeBatch) Add(run device.KernelRun) error {
	b.runs = append(b.runs, run)
	return nil
}

func (b *fakeBatch) Execute() error { b.executes++; return nil }
func (b *fakeBatch) Wait() error {
	b.waits++
	err := b.fault
	b.fault = nil
	return err
}

// traceRunlist is a Runlist that appends its calls to a shared trace.
type traceRunlist struct {
	name  string
	kind  Kind
	trace *trace
	fail  map[int]error
	crash map[int]string
	last  int
}

type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

func (t *trace) index(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (rl *traceRunlist) Kind() Kind { return rl.kind }
func (rl *traceRunlist) Len() int   { return 1 }

func (rl *traceRunlist) Execute(iteration int) error {
	rl.last = iteration
	rl.trace.add("%s.execute.%d.begin", rl.name, iteration)
	if msg, ok := rl.crash[iteration]; ok {
		panic(msg)
	}
	rl.trace.add("%s.execute.%d.end", rl.name, iteration)
	return rl.fail[iteration]
}

func (rl *traceRunlist) Wait() error {
	rl.trace.add("%s.wait.%d", rl.name, rl.last)
	return nil
}
