package recipe

import (
	"fmt"

	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
)

// Kind is where a run executes.
type Kind int

const (
	NPU Kind = iota
	CPU
)

func (k Kind) String() string {
	if k == CPU {
		return "cpu"
	}
	return "npu"
}

func parseKind(where string) (Kind, error) {
	switch where {
	case "", "npu":
		return NPU, nil
	case "cpu":
		return CPU, nil
	}
	return NPU, failure.Recipef("unknown run location %q", where)
}

// unit is the executable behind a run: a device kernel run or a host
// function run, selected by kind.
type unit struct {
	kind Kind
	npu  device.KernelRun
	cpu  *device.HostRun
}

func (u unit) setArg(idx int, value any) error {
	switch u.kind {
	case NPU:
		return u.npu.SetArg(idx, value)
	case CPU:
		return u.cpu.SetArg(idx, value)
	}
	panic("recipe: invalid unit kind")
}

// argument binds a buffer resource, or a slice of it, to an argument index.
type argument struct {
	buffer string
	offset int
	size   int
	idx    int
	// view is the memory currently passed to the run: the buffer memory
	// itself or a sub-view of it. Nil while the buffer is unbound.
	view device.Buffer
}

func (a *argument) sliced() bool { return a.offset != 0 || a.size != 0 }

// refresh recomputes the view from the buffer's current memory.
func (a *argument) refresh(b *Buffer) error {
	mem := b.Memory()
	if mem == nil {
		a.view = nil
		return nil
	}
	if !a.sliced() {
		a.view = mem
		return nil
	}
	size := a.size
	if size == 0 {
		size = mem.Size() - a.offset
	}
	if size <= 0 || a.offset+size > mem.Size() {
		return failure.Recipef("buffer size mismatch for buffer %q: argument [%d,%d) exceeds %d bytes",
			b.Name, a.offset, a.offset+size, mem.Size())
	}
	view, err := mem.SubView(a.offset, size)
	if err != nil {
		return failure.Wrap(failure.ErrRecipe, err, "failed to create sub-view of buffer %q", b.Name)
	}
	a.view = view
	return nil
}

// Run is one executable unit of a recipe with its argument bindings.
type Run struct {
	Name string
	spec description.Run
	unit unit
	args []*argument
}

func (r *Run) Kind() Kind { return r.unit.kind }

func newRun(res *resources, buffers map[string]*Buffer, spec description.Run) (*Run, error) {
	kind, err := parseKind(spec.Where)
	if err != nil {
		return nil, err
	}
	r := &Run{Name: spec.Name, spec: spec}

	var arity int
	switch kind {
	case NPU:
		k, err := res.kernel(spec.Name)
		if err != nil {
			return nil, err
		}
		kr, err := k.kernel.NewRun()
		if err != nil {
			return nil, failure.Wrap(failure.ErrRecipe, err, "failed to create run of kernel %q", spec.Name)
		}
		r.unit = unit{kind: NPU, npu: kr}
		arity = k.kernel.NumArgs()
	case CPU:
		c, err := res.cpu(spec.Name)
		if err != nil {
			return nil, err
		}
		r.unit = unit{kind: CPU, cpu: device.NewHostRun(c.fn)}
		arity = c.fn.Arity
	}

	used := make(map[int]string)
	claim := func(idx int, what string) error {
		if idx < 0 || idx >= arity {
			return failure.Recipef("run %q: argument index %d of %s out of range [0,%d)", spec.Name, idx, what, arity)
		}
		if prev, dup := used[idx]; dup {
			return failure.Recipef("run %q: argument index %d bound by both %s and %s", spec.Name, idx, prev, what)
		}
		used[idx] = what
		return nil
	}

	for _, as := range spec.Arguments {
		b, ok := buffers[as.Name]
		if !ok {
			return nil, failure.Recipef("run %q: unknown buffer %q", spec.Name, as.Name)
		}
		if err := claim(as.ArgIdx, fmt.Sprintf("buffer %q", as.Name)); err != nil {
			return nil, err
		}
		arg := &argument{buffer: as.Name, offset: as.Offset, size: as.Size, idx: as.ArgIdx}
		if err := r.apply(arg, b); err != nil {
			return nil, err
		}
		r.args = append(r.args, arg)
	}

	for _, cs := range spec.Constants {
		if err := claim(cs.ArgIdx, fmt.Sprintf("constant %q", cs.Name)); err != nil {
			return nil, err
		}
		var value any
		switch cs.Type {
		case "int":
			value = cs.Int
		case "string":
			value = cs.String
		default:
			return nil, failure.Recipef("run %q: unknown constant argument type %q", spec.Name, cs.Type)
		}
		if err := r.unit.setArg(cs.ArgIdx, value); err != nil {
			return nil, failure.Wrap(failure.ErrRecipe, err, "run %q: failed to set constant %q", spec.Name, cs.Name)
		}
	}
	return r, nil
}

// apply refreshes an argument's view and passes it to the unit. Unbound
// arguments are left unset.
func (r *Run) apply(arg *argument, b *Buffer) error {
	if err := arg.refresh(b); err != nil {
		return err
	}
	if arg.view == nil {
		return nil
	}
	if err := r.unit.setArg(arg.idx, arg.view); err != nil {
		return failure.Wrap(failure.ErrRecipe, err, "run %q: failed to set argument %d", r.Name, arg.idx)
	}
	return nil
}

// rebind updates every argument referencing buffer b.
func (r *Run) rebind(b *Buffer) error {
	for _, arg := range r.args {
		if arg.buffer != b.Name {
			continue
		}
		if err := r.apply(arg, b); err != nil {
			return err
		}
	}
	return nil
}

