package profile

import (
	"errors"
	"fmt"

	"github.com/vk/npurunner/internal/device"
	"github.com/vk/npurunner/internal/recipe"
)

// Executor drives the recipe's base execution together with depth-1
// clones of it, keeping up to depth iterations in flight.
type Executor struct {
	copies []*recipe.Execution
	// owned are the clones; the base execution belongs to the recipe.
	owned []*recipe.Execution
}

// NewExecutor creates an executor of the given depth over rec. Depth below
// one is treated as one.
func NewExecutor(rec Recipe, depth int) (*Executor, error) {
	x := &Executor{copies: []*recipe.Execution{rec.Execution()}}
	for i := 1; i < depth; i++ {
		clone, err := rec.CloneExecution()
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to clone execution %d: %w", i, err), x.Close())
		}
		x.copies = append(x.copies, clone)
		x.owned = append(x.owned, clone)
	}
	return x, nil
}

// Depth is the number of execution copies.
func (x *Executor) Depth() int { return len(x.copies) }

// ExecuteIteration starts iteration i on every copy in turn. For i > 0
// each copy first waits its own previous iteration.
func (x *Executor) ExecuteIteration(i int) error {
	var errs []error
	for n, exec := range x.copies {
		if err := exec.Execute(i); err != nil {
			errs = append(errs, fmt.Errorf("copy %d: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Wait waits the latest iteration of every copy.
func (x *Executor) Wait() error {
	var errs []error
	for n, exec := range x.copies {
		if err := exec.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("copy %d: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

func (x *Executor) bind(name string, mem device.Buffer) error {
	for _, exec := range x.copies {
		if err := exec.Bind(name, mem); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the clones.
func (x *Executor) Close() error {
	var errs []error
	for _, exec := range x.owned {
		errs = append(errs, exec.Close())
	}
	x.owned = nil
	return errors.Join(errs...)
}
