// Package sim is an in-process device backend. Kernels and host functions
// are Go functions registered by name; device memory is host memory, so
// synchronization only counts calls.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/device"
)

// KernelFunc is the body of a simulated kernel. Buffer arguments arrive as
// device.Buffer, constants as int or string.
type KernelFunc func(args []any) error

type kernelDef struct {
	name    string
	numArgs int
	fn      KernelFunc
}

// Stats counts device activity.
type Stats struct {
	Contexts      atomic.Int64
	Allocs        atomic.Int64
	KernelStarts  atomic.Int64
	BatchSubmits  atomic.Int64
	SyncsToDevice atomic.Int64
	SyncsFromDev  atomic.Int64
	ModulesLoaded atomic.Int64
}

// Device implements device.Device and device.HostLoader.
type Device struct {
	mu        sync.RWMutex
	kernels   map[string]*kernelDef
	libraries map[string]map[string]*device.HostFunction

	qmu  sync.Mutex
	tail *invocation

	// ContextErr, when set, makes CreateContext fail with it.
	ContextErr error

	Stats Stats
}

func New() *Device {
	return &Device{
		kernels:   make(map[string]*kernelDef),
		libraries: make(map[string]map[string]*device.HostFunction),
	}
}

// RegisterKernel makes a kernel instance available to hardware contexts.
func (d *Device) RegisterKernel(name string, numArgs int, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.kernels[name]; exists {
		panic(fmt.Sprintf("kernel with name '%s' already registered", name))
	}
	d.kernels[name] = &kernelDef{name: name, numArgs: numArgs, fn: fn}
}

// RegisterHostFunction adds a symbol to a host library, creating the
// library on first use.
func (d *Device) RegisterHostFunction(library string, fn *device.HostFunction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lib, ok := d.libraries[library]
	if !ok {
		lib = make(map[string]*device.HostFunction)
		d.libraries[library] = lib
	}
	if _, exists := lib[fn.Name]; exists {
		panic(fmt.Sprintf("host function '%s' already registered in '%s'", fn.Name, library))
	}
	lib[fn.Name] = fn
}

func (d *Device) CreateContext(ctx context.Context, img device.Image, qos device.QoS) (device.HwContext, error) {
	if len(img.Xclbin) == 0 && len(img.Program) == 0 {
		return nil, errors.New("sim: empty device image")
	}
	if d.ContextErr != nil {
		return nil, d.ContextErr
	}
	d.Stats.Contexts.Add(1)
	ctxlog.FromContext(ctx).Debug("sim: hardware context created",
		"xclbin_bytes", len(img.Xclbin), "program_bytes", len(img.Program), "qos", qos)
	hc := &hwContext{dev: d}
	hc.refs.Store(1)
	return hc, nil
}

func (d *Device) Alloc(size int) (device.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sim: invalid buffer size %d", size)
	}
	d.Stats.Allocs.Add(1)
	return &buffer{dev: d, data: make([]byte, size)}, nil
}

func (d *Device) Open(path string) (device.HostLibrary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lib, ok := d.libraries[path]
	if !ok {
		return nil, fmt.Errorf("sim: cannot open host library %q", path)
	}
	return hostLibrary{path: path, symbols: lib}, nil
}

type hostLibrary struct {
	path    string
	symbols map[string]*device.HostFunction
}

func (l hostLibrary) Lookup(symbol string) (*device.HostFunction, error) {
	fn, ok := l.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("sim: undefined symbol %q in %q", symbol, l.path)
	}
	return fn, nil
}

type hwContext struct {
	dev  *Device
	refs atomic.Int64
}

func (c *hwContext) Kernel(instance string, ctrlcode device.Module) (device.Kernel, error) {
	c.dev.mu.RLock()
	def, ok := c.dev.kernels[instance]
	c.dev.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sim: no kernel instance %q in hardware context", instance)
	}
	return &kernel{dev: c.dev, def: def}, nil
}

func (c *hwContext) LoadModule(data []byte) (device.Module, error) {
	if len(data) == 0 {
		return nil, errors.New("sim: empty control code")
	}
	c.dev.Stats.ModulesLoaded.Add(1)
	return module(len(data)), nil
}

func (c *hwContext) NewBatch() (device.Batch, error) {
	return &batch{dev: c.dev}, nil
}

func (c *hwContext) Retain() { c.refs.Add(1) }

func (c *hwContext) Release() error {
	if c.refs.Add(-1) < 0 {
		return errors.New("sim: hardware context released too many times")
	}
	return nil
}

// Refs reports the outstanding references of a context created by sim.
func Refs(hc device.HwContext) int64 {
	if c, ok := hc.(*hwContext); ok {
		return c.refs.Load()
	}
	return -1
}

type module int

func (m module) Size() int { return int(m) }
