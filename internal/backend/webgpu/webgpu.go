// Package webgpu registers the WebGPU execution provider.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Importing the package is enough; the provider probe requests a GPU adapter
// and reports the provider as unavailable when the native library or an
// adapter is missing.
package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/relayout/internal/backend"
)

func init() {
	backend.Register(backend.WebGPUExecutionProvider, IsAvailable)
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}
