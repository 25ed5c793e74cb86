package recipe

import (
	"context"
	"path/filepath"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
)

// BufferType classifies a buffer resource.
type BufferType int

const (
	BufferUnknown BufferType = iota
	BufferInput
	BufferOutput
	BufferInOut
	BufferInternal
	BufferWeight
	BufferSpill
	BufferDebug
)

var bufferTypeNames = map[BufferType]string{
	BufferUnknown:  "unknown",
	BufferInput:    "input",
	BufferOutput:   "output",
	BufferInOut:    "inout",
	BufferInternal: "internal",
	BufferWeight:   "weight",
	BufferSpill:    "spill",
	BufferDebug:    "debug",
}

func (t BufferType) String() string { return bufferTypeNames[t] }

func parseBufferType(s string) (BufferType, error) {
	for t, name := range bufferTypeNames {
		if name == s {
			return t, nil
		}
	}
	return BufferUnknown, failure.Recipef("unknown buffer type %q", s)
}

// owned reports whether the recipe allocates the buffer's memory itself.
// Every Execution clone gets its own copy of owned buffers.
func (t BufferType) owned() bool {
	return t == BufferInternal || t == BufferDebug
}

// Buffer is a named buffer resource and the memory currently backing it.
type Buffer struct {
	Name string
	Type BufferType
	// Size is the declared size; zero means the buffer is sized by whatever
	// memory gets bound to it.
	Size int
	mem  device.Buffer
}

// Memory returns the backing memory, or nil while unbound.
func (b *Buffer) Memory() device.Buffer { return b.mem }

func (b *Buffer) bind(mem device.Buffer) error {
	if mem == nil {
		return failure.Recipef("cannot bind nil memory to buffer %q", b.Name)
	}
	if b.Size != 0 && mem.Size() != b.Size {
		return failure.Recipef("buffer size mismatch for buffer %q: declared %d bytes, bound %d bytes",
			b.Name, b.Size, mem.Size())
	}
	b.mem = mem
	return nil
}

func newBuffer(dev device.Device, spec description.Buffer) (*Buffer, error) {
	typ, err := parseBufferType(spec.Type)
	if err != nil {
		return nil, err
	}
	b := &Buffer{Name: spec.Name, Type: typ, Size: spec.Size}
	if typ.owned() {
		if b.mem, err = allocOwned(dev, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func allocOwned(dev device.Device, b *Buffer) (device.Buffer, error) {
	if b.Size <= 0 {
		return nil, failure.Recipef("%s buffer %q requires a positive size", b.Type, b.Name)
	}
	mem, err := dev.Alloc(b.Size)
	if err != nil {
		return nil, failure.Wrap(failure.ErrRecipe, err, "failed to allocate buffer %q", b.Name)
	}
	return mem, nil
}

// cloneBuffers copies a buffer table; owned buffers get fresh memory, all
// others share the memory currently bound.
func cloneBuffers(dev device.Device, src map[string]*Buffer) (map[string]*Buffer, error) {
	out := make(map[string]*Buffer, len(src))
	for name, b := range src {
		c := *b
		if b.Type.owned() {
			mem, err := allocOwned(dev, b)
			if err != nil {
				return nil, err
			}
			c.mem = mem
		}
		out[name] = &c
	}
	return out, nil
}

type kernelResource struct {
	name     string
	instance string
	ctrlcode string
	kernel   device.Kernel
}

type cpuResource struct {
	name    string
	library string
	fn      *device.HostFunction
}

// resources is the resource section of a recipe. The hardware context,
// kernels and cpu functions are shared by every Execution built from it.
type resources struct {
	dev     device.Device
	hwctx   device.HwContext
	buffers map[string]*Buffer
	order   []string
	kernels map[string]*kernelResource
	cpus    map[string]*cpuResource
	modules map[string]device.Module
}

func (r *resources) kernel(name string) (*kernelResource, error) {
	k, ok := r.kernels[name]
	if !ok {
		return nil, failure.Recipef("unknown kernel %q", name)
	}
	return k, nil
}

func (r *resources) cpu(name string) (*cpuResource, error) {
	c, ok := r.cpus[name]
	if !ok {
		return nil, failure.Recipef("unknown cpu %q", name)
	}
	return c, nil
}

func newResources(ctx context.Context, plat Platform, hwctx device.HwContext, desc *description.Recipe, repo artifacts.Repo, cfg *config) (*resources, error) {
	logger := ctxlog.FromContext(ctx)
	res := &resources{
		dev:     plat.Device,
		hwctx:   hwctx,
		buffers: make(map[string]*Buffer),
		kernels: make(map[string]*kernelResource),
		cpus:    make(map[string]*cpuResource),
		modules: make(map[string]device.Module),
	}

	for _, spec := range desc.Buffers {
		if _, dup := res.buffers[spec.Name]; dup {
			return nil, failure.Recipef("duplicate buffer %q", spec.Name)
		}
		b, err := newBuffer(plat.Device, spec)
		if err != nil {
			return nil, err
		}
		res.buffers[b.Name] = b
		res.order = append(res.order, b.Name)
		logger.Debug("Created buffer resource.", "buffer", b.Name, "type", b.Type.String(), "size", b.Size)
	}

	for _, spec := range desc.Kernels {
		if _, dup := res.kernels[spec.Name]; dup {
			return nil, failure.Recipef("duplicate kernel %q", spec.Name)
		}
		var mod device.Module
		if spec.Ctrlcode != "" {
			var err error
			if mod, err = res.module(repo, spec.Ctrlcode); err != nil {
				return nil, err
			}
		}
		k, err := hwctx.Kernel(spec.Instance, mod)
		if err != nil {
			return nil, failure.Wrap(failure.ErrRecipe, err, "failed to create kernel %q (instance %q)", spec.Name, spec.Instance)
		}
		res.kernels[spec.Name] = &kernelResource{name: spec.Name, instance: spec.Instance, ctrlcode: spec.Ctrlcode, kernel: k}
		logger.Debug("Created kernel resource.", "kernel", spec.Name, "instance", spec.Instance, "ctrlcode", spec.Ctrlcode)
	}

	for _, spec := range desc.CPUs {
		if _, dup := res.cpus[spec.Name]; dup {
			return nil, failure.Recipef("duplicate cpu %q", spec.Name)
		}
		if plat.Host == nil {
			return nil, failure.Recipef("cpu %q requires a host loader", spec.Name)
		}
		path := spec.Library
		if cfg.libraryRoot != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.libraryRoot, path)
		}
		lib, err := plat.Host.Open(path)
		if err != nil {
			return nil, failure.Wrap(failure.ErrRecipe, err, "failed to load library for cpu %q", spec.Name)
		}
		fn, err := lib.Lookup(spec.Name)
		if err != nil {
			return nil, failure.Wrap(failure.ErrRecipe, err, "failed to resolve cpu %q", spec.Name)
		}
		res.cpus[spec.Name] = &cpuResource{name: spec.Name, library: path, fn: fn}
		logger.Debug("Resolved cpu function.", "cpu", spec.Name, "library", path, "arity", fn.Arity)
	}
	return res, nil
}

// module loads a control code module once per artifact; kernels naming
// the same path share it.
func (r *resources) module(repo artifacts.Repo, path string) (device.Module, error) {
	if mod, ok := r.modules[path]; ok {
		return mod, nil
	}
	data, err := repo.Get(path)
	if err != nil {
		return nil, err
	}
	mod, err := r.hwctx.LoadModule(data)
	if err != nil {
		return nil, failure.Wrap(failure.ErrRecipe, err, "failed to load control code %q", path)
	}
	r.modules[path] = mod
	return mod, nil
}
