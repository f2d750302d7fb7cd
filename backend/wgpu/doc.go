// Package wgpu provides a hardware GPU adapter for the virtual texture
// engine using gogpu/wgpu.
//
// It implements gpucore.GPUAdapter on top of the wgpu HAL, which
// supports Vulkan, Metal, and DX12 backends depending on the platform.
// Through it the engine's physical cache atlas, page table mirrors,
// and feedback buffer become real GPU resources: page uploads turn
// into queue texture writes and feedback collection into a
// staging-buffer readback with a fence wait.
//
// Typical wiring:
//
//	device, err := wgpu.OpenDevice()
//	if err != nil {
//	    // fall back to gpucore.NewStubAdapter()
//	}
//	defer device.Close()
//
//	engine, err := vtex.NewEngine(cfg, wgpu.NewAdapter(device))
//
// The sampling and feedback WGSL shaders shipped with the engine can be
// compiled for this backend with CompileShader, which lowers WGSL to
// SPIR-V via gogpu/naga.
package wgpu
