// Package gpucore defines the narrow GPU abstraction consumed by the
// virtual texture engine.
//
// The engine needs very little from a graphics API: create a texture,
// write a byte range into a texture region, create a buffer, read a
// buffer back, and submit. GPUAdapter captures exactly that surface so
// the paging core stays independent of any particular backend.
//
// Two implementations exist:
//   - backend/wgpu: GPU-backed adapter over gogpu/wgpu
//   - StubAdapter: in-memory adapter for tests and headless use
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and must not be reused
package gpucore
