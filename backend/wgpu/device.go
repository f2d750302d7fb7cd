package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrNoAdapter is returned when no usable GPU adapter is found.
var ErrNoAdapter = errors.New("wgpu: no GPU adapter available")

// GPUInfo describes the selected GPU.
type GPUInfo struct {
	// Name is the GPU name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// DeviceType is the type of GPU (discrete, integrated, etc.).
	DeviceType gputypes.DeviceType
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%v)", g.Name, g.DeviceType)
}

// Device bundles an open HAL device with its queue and the instance
// that owns them. One Device backs any number of Adapters, though one
// per engine is the expected shape.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	info     GPUInfo
}

// OpenDevice selects a GPU adapter and opens a logical device on it.
// Discrete and integrated GPUs are preferred over software adapters.
func OpenDevice() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
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
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		info: GPUInfo{
			Name:       selected.Info.Name,
			DeviceType: selected.Info.DeviceType,
		},
	}
	slogger().Info("wgpu: device opened", "adapter", d.info.Name)
	return d, nil
}

// Info returns information about the selected GPU.
func (d *Device) Info() GPUInfo { return d.info }

// HALDevice exposes the underlying HAL device for callers that build
// their own pipelines over the engine's textures.
func (d *Device) HALDevice() hal.Device { return d.device }

// HALQueue exposes the underlying HAL queue.
func (d *Device) HALQueue() hal.Queue { return d.queue }

// Close releases the device. Adapters created from it must not be used
// afterwards.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}
