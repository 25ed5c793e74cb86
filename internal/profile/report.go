package profile

import (
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/recipe"
)

// Report aggregates the recipe report with the bindings and the results
// of every policy.
type Report struct {
	Recipe     recipe.Report   `json:"recipe"`
	Bindings   []BindingReport `json:"bindings,omitempty"`
	Executions []PolicyReport  `json:"executions"`
}

type BindingReport struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Init     string `json:"init,omitempty"`
	Reinit   bool   `json:"reinit,omitempty"`
	Rebind   bool   `json:"rebind,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

type PolicyReport struct {
	Name       string  `json:"name"`
	Mode       string  `json:"mode"`
	Depth      int     `json:"depth"`
	Iterations int     `json:"iterations"`
	Ran        bool    `json:"ran"`
	ElapsedUs  int64   `json:"elapsed_us"`
	LatencyUs  float64 `json:"latency_us"`
	Throughput float64 `json:"throughput"`
	Validated  bool    `json:"validated,omitempty"`
	Error      string  `json:"error,omitempty"`
}

var initNames = map[description.InitKind]string{
	description.InitFile:   "file",
	description.InitStride: "stride",
	description.InitRandom: "random",
}

func (b *Binding) report() BindingReport {
	r := BindingReport{
		Name:     b.spec.Name,
		Size:     b.mem.Size(),
		Reinit:   b.spec.Reinit,
		Rebind:   b.spec.Rebind,
		Validate: b.spec.Validate != nil,
	}
	if b.spec.Init != nil {
		r.Init = initNames[b.spec.Init.Kind]
	}
	return r
}

func (p *Policy) report() PolicyReport {
	r := PolicyReport{
		Name:       p.Name(),
		Mode:       p.spec.Mode,
		Depth:      p.exec.Depth(),
		Iterations: p.spec.Iterations,
		Ran:        p.ran,
		Validated:  p.validated,
	}
	if p.ran {
		r.ElapsedUs = p.metrics.Elapsed.Microseconds()
		r.LatencyUs = micros(p.metrics.Latency)
		r.Throughput = p.metrics.Throughput
	}
	if p.err != nil {
		r.Error = p.err.Error()
	}
	return r
}

// Report summarizes the profile. It is valid after a failed Execute.
func (p *Profile) Report() Report {
	rep := Report{Recipe: p.rec.Report()}
	for _, b := range p.bindings {
		rep.Bindings = append(rep.Bindings, b.report())
	}
	for _, pol := range p.policies {
		rep.Executions = append(rep.Executions, pol.report())
	}
	return rep
}
