package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/mesh"
)

// RegisterMesh hands m to the renderer. It is uploaded the first time a
// drawable uses it, and again whenever its host data changes.
func (r *Renderer) RegisterMesh(m *mesh.Mesh) (MeshHandle, error) {
	if err := m.Validate(); err != nil {
		core.LogError("cannot register mesh `%s`: %s", m.Name, err.Error())
		return 0, err
	}
	return r.meshes.Insert(m), nil
}

// ReleaseMesh destroys the mesh's device buffers after the device went idle.
func (r *Renderer) ReleaseMesh(h MeshHandle) error {
	m, ok := r.meshes.Get(h)
	if !ok {
		return fmt.Errorf("%w: mesh %d", core.ErrInvalidHandle, h)
	}
	if err := r.backend.WaitIdle(); err != nil {
		return err
	}
	m.Destroy(r.backend)
	_, err := r.meshes.Remove(h)
	return err
}

func (r *Renderer) Mesh(h MeshHandle) (*mesh.Mesh, bool) {
	return r.meshes.Get(h)
}

// RegisterMaterial hands inst to the renderer. The instance must have one
// slot per frame in flight.
func (r *Renderer) RegisterMaterial(inst *material.Instance) (MaterialHandle, error) {
	if inst.FramesInFlight() != r.FramesInFlight() {
		err := fmt.Errorf("material `%s` has %d frame slots, renderer has %d", inst.Name, inst.FramesInFlight(), r.FramesInFlight())
		core.LogError("%s", err.Error())
		return 0, err
	}
	r.bindShadowMap(inst)
	return r.materials.Insert(inst), nil
}

// ShadowMapBinding is the image binding a material declares to sample the
// shadow map. The renderer keeps it pointed at the current shadow map.
const ShadowMapBinding = "shadow_map"

func samplesShadowMap(m *material.Material) bool {
	_, ok := m.Binding(ShadowMapBinding)
	return ok
}

func (r *Renderer) bindShadowMap(inst *material.Instance) {
	if !samplesShadowMap(inst.Material) {
		return
	}
	// A zero image falls back to the default texture.
	if err := inst.SetTexture(ShadowMapBinding, r.graph.Shadow.Image()); err != nil {
		core.LogWarn("material `%s` can not sample the shadow map: %s", inst.Name, err.Error())
	}
}

// ReleaseMaterial destroys the instance after the device went idle. Its
// material template is left alone.
func (r *Renderer) ReleaseMaterial(h MaterialHandle) error {
	inst, ok := r.materials.Get(h)
	if !ok {
		return fmt.Errorf("%w: material %d", core.ErrInvalidHandle, h)
	}
	if err := r.backend.WaitIdle(); err != nil {
		return err
	}
	inst.Destroy()
	_, err := r.materials.Remove(h)
	return err
}

func (r *Renderer) Material(h MaterialHandle) (*material.Instance, bool) {
	return r.materials.Get(h)
}
