package description

import (
	"github.com/vk/npurunner/internal/failure"
)

// Profile is the structural model of a profile description.
type Profile struct {
	QoS      map[string]uint64
	Bindings []Binding
	// Legacy is the unnamed "execution" policy, if present.
	Legacy *Policy
	// Executions are the named policies in declaration order.
	Executions []Policy
}

type Binding struct {
	Name     string
	Size     int
	Init     *Init
	Reinit   bool
	Rebind   bool
	Validate *Validate
}

// InitKind selects the init rule of a binding.
type InitKind int

const (
	InitFile InitKind = iota + 1
	InitStride
	InitRandom
)

type Init struct {
	Kind  InitKind
	File  string
	Skip  int
	Begin int
	// End is exclusive; zero means the end of the buffer.
	End    int
	Stride int
	Value  uint64
	Debug  bool
}

type Validate struct {
	// Name of another binding to compare against; empty when File is used.
	Name  string
	File  string
	Skip  int
	Begin int
	End   int
}

type Iteration struct {
	Bind     bool
	Init     bool
	Wait     bool
	Validate bool
	SleepMs  int
}

type Policy struct {
	Name       string
	Mode       string
	Depth      int
	Iterations int
	Iteration  Iteration
	Verbose    bool
	Validate   bool
}

// DecodeProfile builds a Profile from a parsed description. Structural
// problems are reported as profile errors.
func DecodeProfile(doc *Document) (*Profile, error) {
	kind := failure.ErrProfile
	var file profileFile
	if err := doc.decode(&file, kind); err != nil {
		return nil, err
	}
	p := &Profile{QoS: map[string]uint64{}}

	if qos, ok := doc.root(file.QoS, kind); ok {
		list, err := qos.Entries()
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			v, err := e.Node.Uint()
			if err != nil {
				return nil, err
			}
			p.QoS[e.Key] = v
		}
	}

	if bindings, ok := doc.root(file.Bindings, kind); ok {
		list, err := bindings.Entries()
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			b, err := decodeBinding(e)
			if err != nil {
				return nil, err
			}
			p.Bindings = append(p.Bindings, b)
		}
	}

	if legacy, ok := doc.root(file.Execution, kind); ok {
		pol, err := decodePolicy(legacy, "")
		if err != nil {
			return nil, err
		}
		p.Legacy = &pol
	}

	if execs, ok := doc.root(file.Executions, kind); ok {
		list, err := execs.Entries()
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			pol, err := decodePolicy(e.Node, e.Key)
			if err != nil {
				return nil, err
			}
			p.Executions = append(p.Executions, pol)
		}
	}
	return p, nil
}

func decodeBinding(e Entry) (Binding, error) {
	var bs bindingSchema
	if err := e.Node.Decode(&bs); err != nil {
		return Binding{}, err
	}
	b := Binding{Name: e.Key, Size: bs.Size, Reinit: bs.Reinit, Rebind: bs.Rebind}
	if bs.Name != nil {
		b.Name = *bs.Name
	}

	var err error
	if in, ok := e.Node.Attr(bs.Init); ok {
		if b.Init, err = decodeInit(in); err != nil {
			return b, err
		}
	}
	if val, ok := e.Node.Attr(bs.Validate); ok {
		if b.Validate, err = decodeValidate(val); err != nil {
			return b, err
		}
	}
	return b, nil
}

func checkRange(n Node, begin, end int) error {
	if begin < 0 || end < 0 || (end != 0 && end <= begin) {
		return n.errorf("bad range begin=%d end=%d", begin, end)
	}
	return nil
}

func decodeInit(n Node) (*Init, error) {
	var is initSchema
	if err := n.Decode(&is); err != nil {
		return nil, err
	}
	if err := checkRange(n, is.Begin, is.End); err != nil {
		return nil, err
	}
	in := &Init{Begin: is.Begin, End: is.End, Debug: is.Debug}

	switch {
	case is.File != nil:
		if is.Skip < 0 {
			return nil, n.errorf("negative skip %d", is.Skip)
		}
		in.Kind, in.File, in.Skip = InitFile, *is.File, is.Skip
	case is.Stride != nil:
		if *is.Stride <= 0 {
			return nil, n.errorf("stride must be positive, got %d", *is.Stride)
		}
		value, ok := n.Attr(is.Value)
		if !ok {
			return nil, n.errorf("missing required field %q", "value")
		}
		v, err := value.Uint()
		if err != nil {
			return nil, err
		}
		in.Kind, in.Stride, in.Value = InitStride, *is.Stride, v
	case is.Random:
		in.Kind = InitRandom
	default:
		return nil, n.errorf("unsupported init rule, expected one of \"file\", \"stride\" or \"random\"")
	}
	return in, nil
}

func decodeValidate(n Node) (*Validate, error) {
	var vs validateSchema
	if err := n.Decode(&vs); err != nil {
		return nil, err
	}
	if err := checkRange(n, vs.Begin, vs.End); err != nil {
		return nil, err
	}
	if (vs.Name == "") == (vs.File == "") {
		return nil, n.errorf("exactly one of \"name\" or \"file\" is required")
	}
	return &Validate{Name: vs.Name, File: vs.File, Skip: vs.Skip, Begin: vs.Begin, End: vs.End}, nil
}

func decodePolicy(n Node, key string) (Policy, error) {
	var ps policySchema
	if err := n.Decode(&ps); err != nil {
		return Policy{}, err
	}
	p := Policy{Name: key, Mode: "default", Depth: ps.Depth, Iterations: 1, Verbose: true, Validate: ps.Validate}
	if ps.Name != nil {
		p.Name = *ps.Name
	}
	if ps.Mode != nil {
		p.Mode = *ps.Mode
	}
	switch p.Mode {
	case "default", "latency", "throughput":
	default:
		return p, n.errorf("unknown mode %q", p.Mode)
	}
	if p.Depth < 0 {
		return p, n.errorf("negative depth %d", p.Depth)
	}
	if ps.Iterations != nil {
		p.Iterations = *ps.Iterations
	}
	if p.Iterations < 1 {
		return p, n.errorf("iterations must be positive, got %d", p.Iterations)
	}
	if ps.Verbose != nil {
		p.Verbose = *ps.Verbose
	}

	if it, ok := n.Attr(ps.Iteration); ok {
		var is iterationSchema
		if err := it.Decode(&is); err != nil {
			return p, err
		}
		p.Iteration = Iteration{Bind: is.Bind, Init: is.Init, Wait: is.Wait, Validate: is.Validate, SleepMs: is.SleepMs}
	}
	return p, nil
}
