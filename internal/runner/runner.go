// Package runner is the entry point for running a recipe, either bare or
// under a profile. It adds no behavior of its own: errors from loading and
// execution reach the caller untranslated.
package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/npurunner/internal/artifacts"
	"github.com/vk/npurunner/internal/ctxlog"
	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/profile"
	"github.com/vk/npurunner/internal/recipe"
)

// impl is implemented by the bare recipe and the profile variants.
type impl interface {
	Bind(name string, mem device.Buffer) error
	Execute() error
	Wait() error
	MapBuffer(name string) []byte
	Alloc(size int) (device.Buffer, error)
	report() any
	buffers() []recipe.BufferReport
	Close() error
}

type recipeImpl struct{ *recipe.Recipe }

func (r recipeImpl) report() any                   { return r.Report() }
func (r recipeImpl) buffers() []recipe.BufferReport { return r.Report().Buffers }

type profileImpl struct{ *profile.Profile }

func (p profileImpl) report() any                   { return p.Report() }
func (p profileImpl) buffers() []recipe.BufferReport { return p.Recipe().Report().Buffers }

func (p profileImpl) Alloc(size int) (device.Buffer, error) { return p.Recipe().Alloc(size) }

// Runner runs a recipe, optionally under a profile.
type Runner struct {
	impl impl
}

// New loads a recipe description and returns a runner executing it bare.
func New(ctx context.Context, plat recipe.Platform, recipeText string, repo artifacts.Repo, opts ...recipe.Option) (*Runner, error) {
	rec, err := recipe.Load(ctx, plat, recipeText, repo, opts...)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Runner created.", "mode", "recipe")
	return &Runner{impl: recipeImpl{rec}}, nil
}

// NewWithProfile loads a recipe and a profile description and returns a
// runner executing the profile's policies.
func NewWithProfile(ctx context.Context, plat recipe.Platform, recipeText, profileText string, repo artifacts.Repo, opts ...recipe.Option) (*Runner, error) {
	p, err := profile.Load(ctx, plat, recipeText, profileText, repo, opts...)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Runner created.", "mode", "profile")
	return &Runner{impl: profileImpl{p}}, nil
}

// BindInput binds external memory to an input buffer.
func (r *Runner) BindInput(name string, mem device.Buffer) error { return r.impl.Bind(name, mem) }

// BindOutput binds external memory to an output buffer.
func (r *Runner) BindOutput(name string, mem device.Buffer) error { return r.impl.Bind(name, mem) }

// Alloc allocates device memory suitable for BindInput and BindOutput.
func (r *Runner) Alloc(size int) (device.Buffer, error) { return r.impl.Alloc(size) }

func (r *Runner) Execute() error { return r.impl.Execute() }

func (r *Runner) Wait() error { return r.impl.Wait() }

// MapBuffer returns the device content of a buffer, or nil for an
// unknown or unbound buffer.
func (r *Runner) MapBuffer(name string) []byte { return r.impl.MapBuffer(name) }

// Buffers describes the recipe's buffers and whether memory backs them.
func (r *Runner) Buffers() []recipe.BufferReport { return r.impl.buffers() }

// Report returns the JSON report of the recipe or profile.
func (r *Runner) Report() (string, error) {
	data, err := json.MarshalIndent(r.impl.report(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return string(data), nil
}

// Close releases every resource held by the runner.
func (r *Runner) Close() error { return r.impl.Close() }
