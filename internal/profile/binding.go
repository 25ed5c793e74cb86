package profile

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
)

// debugPreview bounds the bytes logged for an init rule marked debug.
const debugPreview = 64

// Binding is external memory bound to a recipe buffer, together with the
// rules that fill and check it.
type Binding struct {
	ctx  context.Context
	spec description.Binding
	repo artifacts.Repo
	mem  device.Buffer

	// against is the binding a validate rule compares with, if any.
	against *Binding
}

func newBinding(ctx context.Context, rec Recipe, repo artifacts.Repo, spec description.Binding) (*Binding, error) {
	buf, ok := rec.Buffer(spec.Name)
	if !ok {
		return nil, failure.Profilef("binding %q names no buffer of the recipe", spec.Name)
	}

	size := spec.Size
	if size != 0 && buf.Size != 0 && size != buf.Size {
		return nil, failure.Profilef("binding %q: size %d differs from declared buffer size %d", spec.Name, size, buf.Size)
	}
	if size == 0 {
		size = buf.Size
	}
	if size == 0 && spec.Init != nil && spec.Init.Kind == description.InitFile {
		src, err := initSource(repo, spec.Name, spec.Init)
		if err != nil {
			return nil, err
		}
		size = len(src)
	}
	if size <= 0 {
		return nil, failure.Profilef("binding %q: cannot determine buffer size", spec.Name)
	}

	mem, err := rec.Alloc(size)
	if err != nil {
		return nil, err
	}
	b := &Binding{ctx: ctx, spec: spec, repo: repo, mem: mem}
	if err := b.Init(); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Created binding.", "binding", spec.Name, "size", size)
	return b, nil
}

func (b *Binding) Name() string { return b.spec.Name }

// Memory returns the bound memory.
func (b *Binding) Memory() device.Buffer { return b.mem }

// span resolves a [begin,end) range against size; end 0 means size.
func span(name string, begin, end, size int) (int, int, error) {
	if end == 0 {
		end = size
	}
	if begin < 0 || end > size || begin >= end {
		return 0, 0, failure.Profilef("binding %q: range [%d,%d) outside buffer of %d bytes", name, begin, end, size)
	}
	return begin, end, nil
}

func initSource(repo artifacts.Repo, name string, in *description.Init) ([]byte, error) {
	data, err := repo.Get(in.File)
	if err != nil {
		return nil, err
	}
	if in.Skip >= len(data) {
		return nil, failure.Profilef("binding %q: skip %d leaves nothing of %q (%d bytes)", name, in.Skip, in.File, len(data))
	}
	return data[in.Skip:], nil
}

// Init applies the init rule for the first iteration.
func (b *Binding) Init() error { return b.fill(0) }

// Reinit reapplies the init rule for the given iteration if the binding
// asks for it. File content is taken from a different offset each
// iteration.
func (b *Binding) Reinit(iteration int) error {
	if !b.spec.Reinit {
		return nil
	}
	return b.fill(iteration)
}

func (b *Binding) fill(iteration int) error {
	in := b.spec.Init
	if in == nil {
		return nil
	}
	begin, end, err := span(b.spec.Name, in.Begin, in.End, b.mem.Size())
	if err != nil {
		return err
	}
	dst := b.mem.Bytes()[begin:end]

	switch in.Kind {
	case description.InitFile:
		src, err := initSource(b.repo, b.spec.Name, in)
		if err != nil {
			return err
		}
		start := (iteration * len(dst)) % len(src)
		for i := range dst {
			dst[i] = src[(start+i)%len(src)]
		}
	case description.InitStride:
		var value [8]byte
		binary.LittleEndian.PutUint64(value[:], in.Value)
		width := min(in.Stride, len(value))
		for off := 0; off < len(dst); off += in.Stride {
			copy(dst[off:min(off+width, len(dst))], value[:width])
		}
	case description.InitRandom:
		if _, err := rand.Read(dst); err != nil {
			return fmt.Errorf("binding %q: failed to read random data: %w", b.spec.Name, err)
		}
	default:
		return failure.Profilef("binding %q: unsupported init rule", b.spec.Name)
	}

	if in.Debug {
		ctxlog.FromContext(b.ctx).Info("Initialized binding.", "binding", b.spec.Name, "iteration", iteration,
			"range", fmt.Sprintf("[%d,%d)", begin, end), "head", hex.EncodeToString(dst[:min(len(dst), debugPreview)]))
	}
	if err := b.mem.SyncToDevice(); err != nil {
		return fmt.Errorf("binding %q: failed to sync to device: %w", b.spec.Name, err)
	}
	return nil
}

// Validate compares the device content of the binding with its reference
// and reports the first difference.
func (b *Binding) Validate() error {
	v := b.spec.Validate
	if v == nil {
		return nil
	}
	if err := b.mem.SyncFromDevice(); err != nil {
		return fmt.Errorf("binding %q: failed to sync from device: %w", b.spec.Name, err)
	}
	begin, end, err := span(b.spec.Name, v.Begin, v.End, b.mem.Size())
	if err != nil {
		return err
	}
	got := b.mem.Bytes()[begin:end]

	// The reference mirrors the whole buffer (after skipping a file's
	// leading bytes); begin and end select the same range of both.
	var ref []byte
	if b.against != nil {
		other := b.against.mem
		if err := other.SyncFromDevice(); err != nil {
			return fmt.Errorf("binding %q: failed to sync from device: %w", b.against.spec.Name, err)
		}
		ref = other.Bytes()
	} else {
		data, err := b.repo.Get(v.File)
		if err != nil {
			return err
		}
		ref = data[min(v.Skip, len(data)):]
	}
	want := ref[min(begin, len(ref)):min(end, len(ref))]
	if err := compare(b.spec.Name, begin, got, want); err != nil {
		return err
	}
	ctxlog.FromContext(b.ctx).Debug("Validated binding.", "binding", b.spec.Name, "bytes", len(got))
	return nil
}

func compare(name string, base int, got, want []byte) error {
	n := min(len(got), len(want))
	for i := range n {
		if got[i] != want[i] {
			return &failure.ValidationError{Binding: name, Offset: base + i, Got: got[i], Want: want[i]}
		}
	}
	if len(got) != len(want) {
		return &failure.ValidationError{
			Binding: name, Offset: base + n,
			SizeMismatch: true, GotSize: len(got), WantSize: len(want),
		}
	}
	return nil
}

// Bind binds the memory to every copy of an executor.
func (b *Binding) Bind(x *Executor) error {
	return x.bind(b.spec.Name, b.mem)
}

// Rebind rebinds the memory if the binding asks for it.
func (b *Binding) Rebind(x *Executor) error {
	if !b.spec.Rebind {
		return nil
	}
	return b.Bind(x)
}
