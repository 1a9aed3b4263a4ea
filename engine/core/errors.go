package core

import (
	"errors"
)

var (
	ErrSwapchainBooting    = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
	ErrDeviceLost          = errors.New("device lost")
	ErrOutOfDeviceMemory   = errors.New("out of device memory")
	ErrNotInitialized      = errors.New("renderer not initialized")
	ErrInvalidHandle       = errors.New("invalid handle")

	ErrInvalidShader          = errors.New("invalid shader binary")
	ErrUnsupportedShader      = errors.New("unsupported shader interface")
	ErrMissingVertexAttribute = errors.New("vertex attribute not supplied by mesh")
	ErrUnknownVertexAttribute = errors.New("unknown vertex attribute")
	ErrUniformNotFound        = errors.New("uniform path not found")
	ErrUniformSizeMismatch    = errors.New("uniform size mismatch")
	ErrBindingNotFound        = errors.New("descriptor binding not found")
	ErrBindingKindMismatch    = errors.New("descriptor binding kind mismatch")

	ErrUnknown = errors.New("unknown")
)

// IsDeviceFatal reports whether err can not be recovered from without
// recreating the device.
func IsDeviceFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrOutOfDeviceMemory)
}
