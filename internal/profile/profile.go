package profile

import (
	"context"
	"errors"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/description"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/failure"
	"github.com/vk/npurunner/internal/recipe"
)

// Recipe is the part of *recipe.Recipe a profile drives.
type Recipe interface {
	Execution() *recipe.Execution
	CloneExecution() (*recipe.Execution, error)
	RunCount() int
	Buffer(name string) (*recipe.Buffer, bool)
	Alloc(size int) (device.Buffer, error)
	MapBuffer(name string) []byte
	Report() recipe.Report
	Close() error
}

// Profile is a recipe with bindings and execution policies.
type Profile struct {
	ctx        context.Context
	rec        Recipe
	ownsRecipe bool
	bindings   []*Binding
	policies   []*Policy

	// err is the failure of the last Execute or Wait, returned by Wait
	// until the next Execute.
	err error
}

// Load parses the profile description, constructs the recipe with the
// profile's QoS options and builds the profile over it. The profile owns
// the recipe.
func Load(ctx context.Context, plat recipe.Platform, recipeText, profileText string, repo artifacts.Repo, opts ...recipe.Option) (*Profile, error) {
	doc, err := description.Load(ctx, profileText)
	if err != nil {
		return nil, err
	}
	desc, err := description.DecodeProfile(doc)
	if err != nil {
		return nil, err
	}

	opts = append([]recipe.Option{recipe.WithQoS(device.QoS(desc.QoS))}, opts...)
	rec, err := recipe.Load(ctx, plat, recipeText, repo, opts...)
	if err != nil {
		return nil, err
	}
	p, err := New(ctx, rec, desc, repo)
	if err != nil {
		return nil, errors.Join(err, rec.Close())
	}
	p.ownsRecipe = true
	return p, nil
}

// New builds a profile over an existing recipe. Bindings are allocated and
// initialized, and every policy gets its executor, before New returns.
func New(ctx context.Context, rec Recipe, desc *description.Profile, repo artifacts.Repo) (*Profile, error) {
	p := &Profile{ctx: ctx, rec: rec}

	byName := make(map[string]*Binding, len(desc.Bindings))
	for _, spec := range desc.Bindings {
		if _, dup := byName[spec.Name]; dup {
			return nil, failure.Profilef("duplicate binding %q", spec.Name)
		}
		b, err := newBinding(ctx, rec, repo, spec)
		if err != nil {
			return nil, err
		}
		byName[spec.Name] = b
		p.bindings = append(p.bindings, b)
	}
	for _, b := range p.bindings {
		v := b.spec.Validate
		if v == nil || v.Name == "" {
			continue
		}
		other, ok := byName[v.Name]
		if !ok {
			return nil, failure.Profilef("binding %q validates against unknown binding %q", b.spec.Name, v.Name)
		}
		b.against = other
	}

	specs := desc.Executions
	legacy := desc.Legacy
	if legacy == nil && len(specs) == 0 {
		legacy = &description.Policy{Mode: ModeDefault, Iterations: 1, Verbose: true}
	}
	if legacy != nil {
		pol, err := newPolicy(ctx, rec, p.bindings, *legacy, true)
		if err != nil {
			return nil, errors.Join(err, p.closePolicies())
		}
		p.policies = append(p.policies, pol)
	}
	for _, spec := range specs {
		pol, err := newPolicy(ctx, rec, p.bindings, spec, false)
		if err != nil {
			return nil, errors.Join(err, p.closePolicies())
		}
		p.policies = append(p.policies, pol)
	}

	ctxlog.FromContext(ctx).Debug("Profile constructed.", "bindings", len(p.bindings), "policies", len(p.policies))
	return p, nil
}

// Recipe returns the profiled recipe.
func (p *Profile) Recipe() Recipe { return p.rec }

// Bindings returns the bindings in declaration order.
func (p *Profile) Bindings() []*Binding { return p.bindings }

// Policies returns the policies in execution order.
func (p *Profile) Policies() []*Policy { return p.policies }

// Execute runs every policy in turn. The first failing policy ends the
// call.
func (p *Profile) Execute() error {
	p.err = nil
	for _, pol := range p.policies {
		if err := pol.Run(); err != nil {
			p.err = err
			return err
		}
	}
	return nil
}

// Wait waits every policy's executor. After a failed Execute it keeps
// returning the failure until the next Execute.
func (p *Profile) Wait() error {
	errs := []error{p.err}
	for _, pol := range p.policies {
		errs = append(errs, pol.exec.Wait())
	}
	p.err = errors.Join(errs...)
	return p.err
}

// Bind binds external memory to the named buffer in every execution copy.
func (p *Profile) Bind(name string, mem device.Buffer) error {
	if len(p.policies) == 0 {
		return p.rec.Execution().Bind(name, mem)
	}
	for _, pol := range p.policies {
		if err := pol.exec.bind(name, mem); err != nil {
			return err
		}
	}
	return nil
}

func (p *Profile) MapBuffer(name string) []byte { return p.rec.MapBuffer(name) }

func (p *Profile) closePolicies() error {
	var errs []error
	for _, pol := range p.policies {
		errs = append(errs, pol.Close())
	}
	p.policies = nil
	return errors.Join(errs...)
}

// Close releases the executors and, when the profile loaded it, the
// recipe.
func (p *Profile) Close() error {
	err := p.closePolicies()
	if p.ownsRecipe {
		err = errors.Join(err, p.rec.Close())
	}
	return err
}
