package description

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/vk/npurunner/internal/failure"
)

// DefaultRunlistThreshold is the number of NPU runs after which a runlist
// switches to a single hardware batch.
const DefaultRunlistThreshold = 6

// Recipe is the structural model of a recipe description.
type Recipe struct {
	Header           Header
	Buffers          []Buffer
	Kernels          []Kernel
	CPUs             []CPU
	Runs             []Run
	RunlistThreshold int
}

type Header struct {
	Xclbin  string
	Program string
}

type Buffer struct {
	Name string
	Type string
	Size int
}

type Kernel struct {
	Name     string
	Instance string
	Ctrlcode string
}

type CPU struct {
	Name    string
	Library string
}

type Run struct {
	Name      string
	Where     string
	Arguments []Argument
	Constants []Constant
}

type Argument struct {
	Name   string
	ArgIdx int
	Offset int
	Size   int
}

type Constant struct {
	Name   string
	ArgIdx int
	Type   string
	Int    int
	String string
}

// DecodeRecipe builds a Recipe from a parsed description. Malformed or
// missing fields are reported as recipe errors.
func DecodeRecipe(doc *Document) (*Recipe, error) {
	kind := failure.ErrRecipe
	var file recipeFile
	if err := doc.decode(&file, kind); err != nil {
		return nil, err
	}
	r := &Recipe{RunlistThreshold: DefaultRunlistThreshold}

	header, ok := doc.root(file.Header, kind)
	if !ok {
		return nil, failure.Recipef("%s: missing required section \"header\"", doc.Source)
	}
	if err := decodeHeader(header, &r.Header); err != nil {
		return nil, err
	}

	resources, ok := doc.root(file.Resources, kind)
	if !ok {
		return nil, failure.Recipef("%s: missing required section \"resources\"", doc.Source)
	}
	if err := decodeResources(resources, r); err != nil {
		return nil, err
	}

	execution, ok := doc.root(file.Execution, kind)
	if !ok {
		return nil, failure.Recipef("%s: missing required section \"execution\"", doc.Source)
	}
	if err := decodeExecution(execution, r); err != nil {
		return nil, err
	}
	return r, nil
}

// first returns the first non-nil alias.
func first(vals ...*string) (string, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return "", false
}

func decodeHeader(n Node, h *Header) error {
	var hs headerSchema
	if err := n.Decode(&hs); err != nil {
		return err
	}
	h.Xclbin, _ = first(hs.Xclbin, hs.XclbinPath)
	h.Program = hs.Program
	if h.Xclbin == "" && h.Program == "" {
		return n.errorf("one of \"xclbin\" or \"program\" is required")
	}
	return nil
}

// entries decodes every entry of a collection attribute with fn.
func entries(n Node, attr *hcl.Attribute, fn func(Entry) error) error {
	c, ok := n.Attr(attr)
	if !ok {
		return nil
	}
	list, err := c.Entries()
	if err != nil {
		return err
	}
	for _, e := range list {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func decodeResources(n Node, r *Recipe) error {
	var rs resourcesSchema
	if err := n.Decode(&rs); err != nil {
		return err
	}

	err := entries(n, rs.Buffers, func(e Entry) error {
		var bs bufferSchema
		if err := e.Node.Decode(&bs); err != nil {
			return err
		}
		b := Buffer{Name: e.Key, Type: bs.Type}
		if bs.Name != nil {
			b.Name = *bs.Name
		}
		if bs.Size != nil {
			b.Size = *bs.Size
		} else if b.Type == "internal" || b.Type == "debug" {
			return e.Node.errorf("missing required field %q", "size")
		}
		if b.Size < 0 {
			return e.Node.errorf("negative size %d", b.Size)
		}
		r.Buffers = append(r.Buffers, b)
		return nil
	})
	if err != nil {
		return err
	}

	err = entries(n, rs.Kernels, func(e Entry) error {
		var ks kernelSchema
		if err := e.Node.Decode(&ks); err != nil {
			return err
		}
		k := Kernel{Name: ks.Name, Instance: ks.Name, Ctrlcode: ks.Ctrlcode}
		if inst, ok := first(ks.Instance, ks.XclbinKernelName); ok {
			k.Instance = inst
		}
		r.Kernels = append(r.Kernels, k)
		return nil
	})
	if err != nil {
		return err
	}

	return entries(n, rs.CPUs, func(e Entry) error {
		var cs cpuSchema
		if err := e.Node.Decode(&cs); err != nil {
			return err
		}
		lib, ok := first(cs.LibraryName, cs.LibraryPath)
		if !ok {
			return e.Node.errorf("missing required field %q", "library_name")
		}
		r.CPUs = append(r.CPUs, CPU{Name: cs.Name, Library: lib})
		return nil
	})
}

func decodeExecution(n Node, r *Recipe) error {
	var es executionSchema
	if err := n.Decode(&es); err != nil {
		return err
	}
	if es.RunlistThreshold != nil {
		r.RunlistThreshold = *es.RunlistThreshold
	}
	if r.RunlistThreshold < 1 {
		return n.errorf("runlist_threshold must be positive, got %d", r.RunlistThreshold)
	}

	return entries(n, es.Runs, func(e Entry) error {
		run, err := decodeRun(e)
		if err != nil {
			return err
		}
		r.Runs = append(r.Runs, run)
		return nil
	})
}

func decodeRun(e Entry) (Run, error) {
	var rs runSchema
	if err := e.Node.Decode(&rs); err != nil {
		return Run{}, err
	}
	run := Run{Name: rs.Name, Where: "npu"}
	if rs.Where != nil {
		run.Where = *rs.Where
	}

	err := entries(e.Node, rs.Arguments, func(ae Entry) error {
		var as argumentSchema
		if err := ae.Node.Decode(&as); err != nil {
			return err
		}
		if as.Offset < 0 || as.Size < 0 {
			return ae.Node.errorf("offset and size must not be negative")
		}
		run.Arguments = append(run.Arguments, Argument{Name: as.Name, ArgIdx: as.ArgIdx, Offset: as.Offset, Size: as.Size})
		return nil
	})
	if err != nil {
		return run, err
	}

	err = entries(e.Node, rs.Constants, func(ce Entry) error {
		var cs constantSchema
		if err := ce.Node.Decode(&cs); err != nil {
			return err
		}
		c := Constant{Name: ce.Key, ArgIdx: cs.ArgIdx, Type: cs.Type}
		value, _ := ce.Node.Attr(cs.Value)
		var err error
		switch c.Type {
		case "int":
			c.Int, err = value.Int()
		case "string":
			c.String, err = value.String()
		default:
			err = ce.Node.errorf("unknown constant argument type %q", c.Type)
		}
		if err != nil {
			return err
		}
		run.Constants = append(run.Constants, c)
		return nil
	})
	return run, err
}
