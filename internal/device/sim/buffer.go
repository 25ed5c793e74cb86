package sim

import (
	"fmt"

	"github.com/vk/npurunner/internal/device"
)

type buffer struct {
	dev  *Device
	data []byte
}

func (b *buffer) Size() int     { return len(b.data) }
func (b *buffer) Bytes() []byte { return b.data }

func (b *buffer) SyncToDevice() error {
	b.dev.Stats.SyncsToDevice.Add(1)
	return nil
}

func (b *buffer) SyncFromDevice() error {
	b.dev.Stats.SyncsFromDev.Add(1)
	return nil
}

func (b *buffer) SubView(offset, size int) (device.Buffer, error) {
	if offset < 0 || size <= 0 || offset+size > len(b.data) {
		return nil, fmt.Errorf("sim: sub-view [%d,%d) outside buffer of %d bytes", offset, offset+size, len(b.data))
	}
	end := offset + size
	return &buffer{dev: b.dev, data: b.data[offset:end:end]}, nil
}
