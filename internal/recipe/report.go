package recipe

// Report describes a loaded recipe.
type Report struct {
	Header   HeaderReport    `json:"header"`
	Buffers  []BufferReport  `json:"buffers"`
	Kernels  []KernelReport  `json:"kernels,omitempty"`
	CPUs     []CPUReport     `json:"cpus,omitempty"`
	Runs     int             `json:"runs"`
	Runlists []RunlistReport `json:"runlists"`
}

type HeaderReport struct {
	Xclbin  string `json:"xclbin,omitempty"`
	Program string `json:"program,omitempty"`
}

type BufferReport struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int    `json:"size"`
	Bound bool   `json:"bound"`
}

type KernelReport struct {
	Name     string `json:"name"`
	Instance string `json:"instance"`
	Ctrlcode string `json:"ctrlcode,omitempty"`
}

type CPUReport struct {
	Name    string `json:"name"`
	Library string `json:"library"`
}

type RunlistReport struct {
	Kind  string `json:"kind"`
	Runs  int    `json:"runs"`
	State string `json:"state,omitempty"`
}

// Report summarizes the recipe's header, resources and runlist partition.
func (r *Recipe) Report() Report {
	rep := Report{
		Header: HeaderReport{Xclbin: r.header.Xclbin, Program: r.header.Program},
		Runs:   len(r.exec.runs),
	}
	for _, b := range r.Buffers() {
		rep.Buffers = append(rep.Buffers, BufferReport{Name: b.Name, Type: b.Type.String(), Size: b.Size, Bound: b.Memory() != nil})
	}
	for _, spec := range r.desc.Kernels {
		k := r.res.kernels[spec.Name]
		rep.Kernels = append(rep.Kernels, KernelReport{Name: k.name, Instance: k.instance, Ctrlcode: k.ctrlcode})
	}
	for _, spec := range r.desc.CPUs {
		c := r.res.cpus[spec.Name]
		rep.CPUs = append(rep.CPUs, CPUReport{Name: c.name, Library: c.library})
	}
	for _, rl := range r.exec.runlists {
		rr := RunlistReport{Kind: rl.Kind().String(), Runs: rl.Len()}
		if n, ok := rl.(*npuRunlist); ok {
			rr.State = n.State().String()
		}
		rep.Runlists = append(rep.Runlists, rr)
	}
	return rep
}
