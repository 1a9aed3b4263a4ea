package systems

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/mesh"
)

// Names of the meshes every MeshSystem can build without assets.
const (
	QuadMeshName = "quad"
	CubeMeshName = "cube"
)

type meshReference struct {
	handle         renderer.MeshHandle
	referenceCount uint32
}

// MeshSystem registers meshes with the renderer by name.
type MeshSystem struct {
	renderer *renderer.Renderer
	meshes   map[string]*meshReference
}

func NewMeshSystem(r *renderer.Renderer) (*MeshSystem, error) {
	return &MeshSystem{
		renderer: r,
		meshes:   make(map[string]*meshReference),
	}, nil
}

func (ms *MeshSystem) Shutdown() error {
	for name, ref := range ms.meshes {
		if err := ms.renderer.ReleaseMesh(ref.handle); err != nil {
			return err
		}
		delete(ms.meshes, name)
	}
	return nil
}

/**
 * @brief Registers m under its name with one reference. Its device buffers
 * are created on the first frame that draws it.
 */
func (ms *MeshSystem) Register(m *mesh.Mesh) (renderer.MeshHandle, error) {
	if _, ok := ms.meshes[m.Name]; ok {
		err := fmt.Errorf("mesh `%s` is already registered", m.Name)
		core.LogWarn("%s", err.Error())
		return 0, err
	}
	h, err := ms.renderer.RegisterMesh(m)
	if err != nil {
		return 0, err
	}
	ms.meshes[m.Name] = &meshReference{handle: h, referenceCount: 1}
	return h, nil
}

/**
 * @brief Acquires a mesh by name. The builtin quad and cube are created on
 * first use.
 */
func (ms *MeshSystem) Acquire(name string) (renderer.MeshHandle, error) {
	if ref, ok := ms.meshes[name]; ok {
		ref.referenceCount++
		return ref.handle, nil
	}
	switch name {
	case QuadMeshName:
		return ms.Register(mesh.Quad(name))
	case CubeMeshName:
		return ms.Register(mesh.Cube(name))
	}
	return 0, fmt.Errorf("%w: no mesh named `%s`", core.ErrInvalidHandle, name)
}

// Release drops a reference and releases the mesh when none is left.
func (ms *MeshSystem) Release(name string) error {
	ref, ok := ms.meshes[name]
	if !ok {
		return fmt.Errorf("%w: no mesh named `%s`", core.ErrInvalidHandle, name)
	}
	ref.referenceCount--
	if ref.referenceCount > 0 {
		return nil
	}
	delete(ms.meshes, name)
	return ms.renderer.ReleaseMesh(ref.handle)
}
