package recipe

import (
	"context"
	"errors"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
)

// Platform bundles the device collaborators a recipe is loaded against.
// Host may be nil for recipes without cpu resources.
type Platform struct {
	Device device.Device
	Host   device.HostLoader
}

type config struct {
	threshold   int
	qos         device.QoS
	libraryRoot string
}

// Option adjusts recipe construction.
type Option func(*config)

// WithRunlistThreshold overrides the description's runlist_threshold.
func WithRunlistThreshold(n int) Option {
	return func(c *config) { c.threshold = n }
}

// WithQoS sets the hardware context options.
func WithQoS(qos device.QoS) Option {
	return func(c *config) { c.qos = qos }
}

// WithLibraryRoot resolves relative cpu library names against dir.
func WithLibraryRoot(dir string) Option {
	return func(c *config) { c.libraryRoot = dir }
}

// Header identifies the image the hardware context was created from.
type Header struct {
	Xclbin  string
	Program string
}

// Recipe is a loaded, resource-bound recipe.
type Recipe struct {
	ctx    context.Context
	desc   *description.Recipe
	header Header
	res    *resources
	exec   *Execution
	cfg    config

	// iteration counts Execute calls made through the recipe itself.
	iteration int
	// fault is the last execution failure; Wait keeps returning it until
	// the next Execute.
	fault error
}

// Load parses a recipe description (inline JSON or a file path) and
// constructs the recipe.
func Load(ctx context.Context, plat Platform, text string, repo artifacts.Repo, opts ...Option) (*Recipe, error) {
	doc, err := description.Load(ctx, text)
	if err != nil {
		return nil, err
	}
	desc, err := description.DecodeRecipe(doc)
	if err != nil {
		return nil, err
	}
	return New(ctx, plat, desc, repo, opts...)
}

// New constructs a recipe from its description. All resources are created
// eagerly; on failure nothing is kept.
func New(ctx context.Context, plat Platform, desc *description.Recipe, repo artifacts.Repo, opts ...Option) (*Recipe, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := config{threshold: desc.RunlistThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.threshold <= 0 {
		cfg.threshold = description.DefaultRunlistThreshold
	}

	var img device.Image
	if desc.Header.Xclbin != "" {
		data, err := repo.Get(desc.Header.Xclbin)
		if err != nil {
			return nil, err
		}
		img.Xclbin = data
	}
	if desc.Header.Program != "" {
		data, err := repo.Get(desc.Header.Program)
		if err != nil {
			return nil, err
		}
		img.Program = data
	}
	if img.Xclbin == nil && img.Program == nil {
		return nil, failure.Recipef("header names neither an xclbin nor a program")
	}
	logger.Debug("Loaded recipe header.", "xclbin", desc.Header.Xclbin, "program", desc.Header.Program)

	hwctx, err := plat.Device.CreateContext(ctx, img, cfg.qos)
	if err != nil {
		return nil, failure.Wrap(failure.ErrHardwareContext, err, "failed to create hardware context")
	}

	res, err := newResources(ctx, plat, hwctx, desc, repo, &cfg)
	if err != nil {
		return nil, errors.Join(err, hwctx.Release())
	}
	exec, err := newExecution(ctx, res, res.buffers, desc.Runs, cfg.threshold)
	if err != nil {
		return nil, errors.Join(err, hwctx.Release())
	}

	logger.Debug("Recipe constructed.", "buffers", len(res.buffers), "kernels", len(res.kernels),
		"cpus", len(res.cpus), "runs", len(exec.runs), "runlists", len(exec.runlists))
	return &Recipe{
		ctx:    ctx,
		desc:   desc,
		header: Header{Xclbin: desc.Header.Xclbin, Program: desc.Header.Program},
		res:    res,
		exec:   exec,
		cfg:    cfg,
	}, nil
}

func (r *Recipe) Header() Header { return r.header }

// Execution returns the base execution.
func (r *Recipe) Execution() *Execution { return r.exec }

// Buffers returns the declared buffer resources in declaration order.
func (r *Recipe) Buffers() []*Buffer {
	out := make([]*Buffer, 0, len(r.res.order))
	for _, name := range r.res.order {
		out = append(out, r.res.buffers[name])
	}
	return out
}

// Buffer returns the named buffer resource of the base execution.
func (r *Recipe) Buffer(name string) (*Buffer, bool) { return r.exec.Buffer(name) }

// Bind backs the named buffer of the base execution with external memory.
func (r *Recipe) Bind(name string, mem device.Buffer) error {
	ctxlog.FromContext(r.ctx).Debug("Binding buffer.", "buffer", name)
	return r.exec.Bind(name, mem)
}

// Alloc allocates device memory for external binding.
func (r *Recipe) Alloc(size int) (device.Buffer, error) {
	mem, err := r.res.dev.Alloc(size)
	if err != nil {
		return nil, failure.Wrap(failure.ErrRecipe, err, "failed to allocate %d bytes", size)
	}
	return mem, nil
}

// MapBuffer syncs the named buffer from the device and returns a copy of
// its content. Unknown or unbound buffers yield nil.
func (r *Recipe) MapBuffer(name string) []byte {
	b, ok := r.exec.Buffer(name)
	if !ok || b.Memory() == nil {
		return nil
	}
	if err := b.Memory().SyncFromDevice(); err != nil {
		ctxlog.FromContext(r.ctx).Warn("Failed to sync buffer from device.", "buffer", name, "error", err)
		return nil
	}
	return append([]byte(nil), b.Memory().Bytes()...)
}

// CloneExecution creates an execution sharing the hardware context, kernels,
// cpu functions and externally bound memory of the base execution, with
// fresh memory for internal and debug buffers. The caller owns the clone
// and must Close it.
func (r *Recipe) CloneExecution() (*Execution, error) {
	buffers, err := cloneBuffers(r.res.dev, r.exec.buffers)
	if err != nil {
		return nil, err
	}
	exec, err := newExecution(r.ctx, r.res, buffers, r.desc.Runs, r.cfg.threshold)
	if err != nil {
		return nil, err
	}
	hwctx := r.res.hwctx
	hwctx.Retain()
	exec.release = hwctx.Release
	return exec, nil
}

// Execute starts the next iteration of the base execution. Calling Execute
// again without Wait waits the previous iteration first.
func (r *Recipe) Execute() error {
	r.fault = r.exec.Execute(r.iteration)
	r.iteration++
	return r.fault
}

// Wait blocks until the latest iteration completed. After a failure it
// returns that failure on every call until the next Execute.
func (r *Recipe) Wait() error {
	if err := r.exec.Wait(); err != nil {
		r.fault = errors.Join(r.fault, err)
	}
	return r.fault
}

// RunCount is the number of runs in the execution.
func (r *Recipe) RunCount() int { return len(r.exec.runs) }

// Close stops the base execution and releases the hardware context.
func (r *Recipe) Close() error {
	return errors.Join(r.exec.Close(), r.res.hwctx.Release())
}
