package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vk/npurunner/internal/device"
)

type kernel struct {
	dev *Device
	def *kernelDef
}

func (k *kernel) Name() string { return k.def.name }
func (k *kernel) NumArgs() int { return k.def.numArgs }

func (k *kernel) NewRun() (device.KernelRun, error) {
	return &kernelRun{kernel: k, args: make([]any, k.def.numArgs)}, nil
}

// invocation tracks one asynchronous submission.
type invocation struct {
	done     chan struct{}
	err      error
	mu       sync.Mutex
	reported bool
}

// submit queues fn on the device's command queue. Commands complete in
// submission order.
func (d *Device) submit(fn func() error) *invocation {
	inv := &invocation{done: make(chan struct{})}
	d.qmu.Lock()
	prev := d.tail
	d.tail = inv
	d.qmu.Unlock()
	go func() {
		defer close(inv.done)
		defer func() {
			if r := recover(); r != nil {
				inv.err = fmt.Errorf("sim: command panicked: %v", r)
			}
		}()
		if prev != nil {
			<-prev.done
		}
		inv.err = fn()
	}()
	return inv
}

// wait blocks until the invocation completes; only the first wait sees its
// error.
func (inv *invocation) wait() error {
	if inv == nil {
		return nil
	}
	<-inv.done
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.reported {
		return nil
	}
	inv.reported = true
	return inv.err
}

func (inv *invocation) running() bool {
	if inv == nil {
		return false
	}
	select {
	case <-inv.done:
		inv.mu.Lock()
		defer inv.mu.Unlock()
		return !inv.reported
	default:
		return true
	}
}

type kernelRun struct {
	kernel *kernel

	mu   sync.Mutex
	args []any
	inv  *invocation
}

func (r *kernelRun) SetArg(idx int, value any) error {
	if idx < 0 || idx >= len(r.args) {
		return fmt.Errorf("sim: kernel %q argument index %d out of range [0,%d)", r.kernel.def.name, idx, len(r.args))
	}
	r.mu.Lock()
	r.args[idx] = value
	r.mu.Unlock()
	return nil
}

func (r *kernelRun) invoke() error {
	r.mu.Lock()
	args := append([]any(nil), r.args...)
	r.mu.Unlock()
	for i, a := range args {
		if a == nil {
			return fmt.Errorf("sim: kernel %q argument %d is unbound", r.kernel.def.name, i)
		}
	}
	return r.kernel.def.fn(args)
}

func (r *kernelRun) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inv.running() {
		return fmt.Errorf("sim: kernel %q run started before previous invocation was waited", r.kernel.def.name)
	}
	r.kernel.dev.Stats.KernelStarts.Add(1)
	r.inv = r.kernel.dev.submit(r.invoke)
	return nil
}

func (r *kernelRun) Wait() error {
	r.mu.Lock()
	inv := r.inv
	r.mu.Unlock()
	return inv.wait()
}

type batch struct {
	dev  *Device
	mu   sync.Mutex
	runs []*kernelRun
	inv  *invocation
}

func (b *batch) Add(run device.KernelRun) error {
	kr, ok := run.(*kernelRun)
	if !ok {
		return errors.New("sim: batch accepts only sim kernel runs")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inv.running() {
		return errors.New("sim: cannot add to a batch in flight")
	}
	b.runs = append(b.runs, kr)
	return nil
}

func (b *batch) Execute() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inv.running() {
		return errors.New("sim: batch executed before previous submission was waited")
	}
	runs := append([]*kernelRun(nil), b.runs...)
	b.dev.Stats.BatchSubmits.Add(1)
	b.inv = b.dev.submit(func() error {
		for _, r := range runs {
			b.dev.Stats.KernelStarts.Add(1)
			if err := r.invoke(); err != nil {
				return fmt.Errorf("sim: batch command failed in kernel %q: %w", r.kernel.def.name, err)
			}
		}
		return nil
	})
	return nil
}

func (b *batch) Wait() error {
	b.mu.Lock()
	inv := b.inv
	b.mu.Unlock()
	return inv.wait()
}
