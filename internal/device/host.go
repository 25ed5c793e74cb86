package device

import (
	"fmt"
	"sync"
)

// HostLoader opens host libraries.
type HostLoader interface {
	Open(path string) (HostLibrary, error)
}

// HostLibrary resolves function symbols.
type HostLibrary interface {
	Lookup(symbol string) (*HostFunction, error)
}

// HostFunction is a resolved host function of fixed arity.
type HostFunction struct {
	Name  string
	Arity int
	Fn    func(args []any) error
}

// HostRun binds arguments to a host function and calls it synchronously.
type HostRun struct {
	fn   *HostFunction
	mu   sync.Mutex
	args []any
}

func NewHostRun(fn *HostFunction) *HostRun {
	return &HostRun{fn: fn, args: make([]any, fn.Arity)}
}

func (r *HostRun) Function() *HostFunction { return r.fn }

func (r *HostRun) SetArg(idx int, value any) error {
	if idx < 0 || idx >= r.fn.Arity {
		return fmt.Errorf("host function %q: argument index %d out of range [0,%d)", r.fn.Name, idx, r.fn.Arity)
	}
	r.mu.Lock()
	r.args[idx] = value
	r.mu.Unlock()
	return nil
}

// Execute calls the function with the currently bound arguments.
func (r *HostRun) Execute() error {
	r.mu.Lock()
	args := append([]any(nil), r.args...)
	r.mu.Unlock()
	for i, a := range args {
		if a == nil {
			return fmt.Errorf("host function %q: argument %d is unbound", r.fn.Name, i)
		}
	}
	if err := r.fn.Fn(args); err != nil {
		return fmt.Errorf("host function %q: %w", r.fn.Name, err)
	}
	return nil
}
