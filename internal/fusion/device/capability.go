package device

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/deepsky-data/starfuse/internal/monitoring"
)

// Capability describes the adapter a probe settled on.
type Capability struct {
	AdapterName string
	DeviceType  gputypes.DeviceType
	Discrete    bool
}

// Context owns a GPU device and queue for the lifetime of one or more fusion
// runs. Obtain one with Probe; a nil Context means no device is available and
// runs stay on the host path.
type Context struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	cap      Capability
}

// Probe attempts to acquire a GPU compute device. There is no cached global
// answer: availability is established per call, and the returned Context is
// the only handle to the acquired device. Callers that get an error simply
// run on the host backend.
func Probe() (*Context, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("device: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("device: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("device: no adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("device: open adapter %q: %w", selected.Info.Name, err)
	}

	ctx := &Context{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		cap: Capability{
			AdapterName: selected.Info.Name,
			DeviceType:  selected.Info.DeviceType,
			Discrete:    selected.Info.DeviceType == gputypes.DeviceTypeDiscreteGPU,
		},
	}
	monitoring.Logf("device: acquired %s", ctx.cap.AdapterName)
	return ctx, nil
}

// Capability returns the probed adapter description.
func (c *Context) Capability() Capability { return c.cap }

// Close releases the device and instance. Safe to call more than once.
func (c *Context) Close() {
	if c.device != nil {
		c.device.Destroy()
		c.device = nil
	}
	if c.instance != nil {
		c.instance.Destroy()
		c.instance = nil
	}
	c.queue = nil
}
