// Package device declares the collaborators the recipe engine drives:
// hardware context creation from a device image, buffer allocation and
// synchronization, device kernel invocation and host function invocation.
//
// Concrete backends live outside the engine. Package sim provides an
// in-process implementation.
package device

import "context"

// Image is the device image and/or AI-engine program a hardware context is
// created from. At least one of the two is non-empty.
type Image struct {
	Xclbin  []byte
	Program []byte
}

// QoS holds hardware context options such as gops, fps or priority.
type QoS map[string]uint64

// Device allocates memory and creates hardware contexts.
type Device interface {
	CreateContext(ctx context.Context, img Image, qos QoS) (HwContext, error)
	Alloc(size int) (Buffer, error)
}

// HwContext is a compute allocation on the device. Contexts are reference
// counted: Retain adds a reference and Release drops one.
type HwContext interface {
	// Kernel returns a handle to the named kernel instance. ctrlcode is an
	// optional control code module the kernel runs with.
	Kernel(instance string, ctrlcode Module) (Kernel, error)
	// LoadModule builds a control code module from raw bytes.
	LoadModule(data []byte) (Module, error)
	NewBatch() (Batch, error)
	Retain()
	Release() error
}

// Module is a loaded control code module.
type Module interface {
	Size() int
}

// Buffer is a block of device memory with a host mirror.
type Buffer interface {
	Size() int
	// Bytes is the host side view of the buffer.
	Bytes() []byte
	SyncToDevice() error
	SyncFromDevice() error
	// SubView returns a buffer aliasing [offset, offset+size) of this one.
	SubView(offset, size int) (Buffer, error)
}

// Kernel is a device kernel bound to a hardware context.
type Kernel interface {
	Name() string
	NumArgs() int
	NewRun() (KernelRun, error)
}

// KernelRun is one dispatchable invocation of a kernel. After Start the run
// must be waited before it can be started again. The first Wait after a
// Start reports the invocation's result; further waits return nil.
type KernelRun interface {
	SetArg(idx int, value any) error
	Start() error
	Wait() error
}

// Batch is a hardware-level list of kernel runs submitted and waited as
// one command. Wait follows the KernelRun reporting rule.
type Batch interface {
	Add(run KernelRun) error
	Execute() error
	Wait() error
}
