package sim

import (
	"fmt"

	"github.com/vk/npurunner/internal/device"
)

// HostLibrary is the library name under which RegisterBuiltins installs
// its host functions.
const HostLibrary = "libsimhost.so"

// RegisterBuiltins installs the kernels and host functions the CLI offers
// on the simulated device:
//
//	kernel "copy"  (src, dst)        dst = src
//	kernel "add"   (a, b, dst)       dst[i] = a[i] + b[i]
//	kernel "fill"  (dst, int value)  dst[i] = value
//	host   "copy"  (src, dst)
//	host   "scale" (src, dst, int factor)
func RegisterBuiltins(d *Device) {
	d.RegisterKernel("copy", 2, func(args []any) error {
		src, dst, err := twoBuffers(args)
		if err != nil {
			return err
		}
		copy(dst.Bytes(), src.Bytes())
		return nil
	})
	d.RegisterKernel("add", 3, func(args []any) error {
		a, b, err := twoBuffers(args)
		if err != nil {
			return err
		}
		dst, ok := args[2].(device.Buffer)
		if !ok {
			return fmt.Errorf("argument 2 is %T, want buffer", args[2])
		}
		out, x, y := dst.Bytes(), a.Bytes(), b.Bytes()
		for i := range out {
			if i < len(x) && i < len(y) {
				out[i] = x[i] + y[i]
			}
		}
		return nil
	})
	d.RegisterKernel("fill", 2, func(args []any) error {
		dst, ok := args[0].(device.Buffer)
		if !ok {
			return fmt.Errorf("argument 0 is %T, want buffer", args[0])
		}
		v, ok := args[1].(int)
		if !ok {
			return fmt.Errorf("argument 1 is %T, want int", args[1])
		}
		out := dst.Bytes()
		for i := range out {
			out[i] = byte(v)
		}
		return nil
	})

	d.RegisterHostFunction(HostLibrary, &device.HostFunction{Name: "copy", Arity: 2, Fn: func(args []any) error {
		src, dst, err := twoBuffers(args)
		if err != nil {
			return err
		}
		copy(dst.Bytes(), src.Bytes())
		return nil
	}})
	d.RegisterHostFunction(HostLibrary, &device.HostFunction{Name: "scale", Arity: 3, Fn: func(args []any) error {
		src, dst, err := twoBuffers(args)
		if err != nil {
			return err
		}
		factor, ok := args[2].(int)
		if !ok {
			return fmt.Errorf("argument 2 is %T, want int", args[2])
		}
		in, out := src.Bytes(), dst.Bytes()
		for i := range out {
			if i < len(in) {
				out[i] = in[i] * byte(factor)
			}
		}
		return nil
	}})
}

func twoBuffers(args []any) (device.Buffer, device.Buffer, error) {
	a, ok := args[0].(device.Buffer)
	if !ok {
		return nil, nil, fmt.Errorf("argument 0 is %T, want buffer", args[0])
	}
	b, ok := args[1].(device.Buffer)
	if !ok {
		return nil, nil, fmt.Errorf("argument 1 is %T, want buffer", args[1])
	}
	return a, b, nil
}
