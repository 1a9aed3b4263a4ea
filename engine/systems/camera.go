package systems

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
)

/** @brief The name of the camera that always exists. */
const DefaultCameraName = "default"

type cameraReference struct {
	camera         *components.Camera
	referenceCount uint32
}

type CameraSystem struct {
	Config  *CameraSystemConfig
	cameras map[string]*cameraReference
	// A default, non-registered camera that always exists as a fallback.
	DefaultCamera *components.Camera
}

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/** @brief The maximum number of named cameras alive at once. */
	MaxCameraCount uint16
}

func NewCameraSystem(config *CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &CameraSystem{
		Config:        config,
		cameras:       make(map[string]*cameraReference, config.MaxCameraCount),
		DefaultCamera: components.NewCamera(),
	}, nil
}

func (cs *CameraSystem) Shutdown() error {
	clear(cs.cameras)
	return nil
}

/**
 * @brief Acquires a camera by name, creating it on first use. Every call
 * increments the reference count.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == DefaultCameraName {
		return cs.DefaultCamera, nil
	}
	ref, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= int(cs.Config.MaxCameraCount) {
			err := fmt.Errorf("camera system is full (%d cameras), cannot create `%s`", cs.Config.MaxCameraCount, name)
			core.LogError("%s", err.Error())
			return nil, err
		}
		core.LogDebug("creating new camera named `%s`", name)
		ref = &cameraReference{camera: components.NewCamera()}
		cs.cameras[name] = ref
	}
	ref.referenceCount++
	return ref.camera, nil
}

/**
 * @brief Releases a camera by name. The camera is forgotten once its
 * reference count reaches zero.
 */
func (cs *CameraSystem) Release(name string) {
	if name == DefaultCameraName {
		core.LogDebug("cannot release the default camera, nothing was done")
		return
	}
	ref, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("camera `%s` is not registered, nothing was done", name)
		return
	}
	ref.referenceCount--
	if ref.referenceCount == 0 {
		delete(cs.cameras, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.DefaultCamera
}
