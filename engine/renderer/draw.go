package renderer

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/material"
	"github.com/spaghettifunk/prism/engine/renderer/mesh"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type queuedDraw struct {
	mesh     *mesh.Mesh
	instance *material.Instance
	world    mgl32.Mat4
}

// prepare uploads dirty meshes and resolves the packet's handles into the
// draw queue. Unknown handles are logged and dropped. Uploads happen before
// the slot's fence wait, so a mesh that grows its buffers waits for the
// device itself.
func (r *Renderer) prepare(packet *RenderPacket) error {
	r.queue = r.queue[:0]
	if packet == nil {
		return nil
	}
	for i, d := range packet.Drawables {
		m, ok := r.meshes.Get(d.Mesh)
		if !ok {
			core.LogWarn("drawable %d refers to unknown mesh %d, skipping", i, d.Mesh)
			continue
		}
		inst, ok := r.materials.Get(d.Material)
		if !ok {
			core.LogWarn("drawable %d refers to unknown material %d, skipping", i, d.Material)
			continue
		}
		if m.Dirty() {
			if err := m.Upload(r.backend); err != nil {
				core.LogError("failed to upload mesh `%s`: %s", m.Name, err.Error())
				if core.IsDeviceFatal(err) {
					return err
				}
				continue
			}
		}
		r.queue = append(r.queue, queuedDraw{mesh: m, instance: inst, world: d.World})
	}
	sort.SliceStable(r.queue, func(a, b int) bool {
		return r.queue[a].instance.Material.Queue < r.queue[b].instance.Material.Queue
	})
	return nil
}

// record fills the slot's command buffer: the shadow pass when it has
// layers and a queued draw casts into it or samples it, then the forward
// pass into swap image imageIndex.
func (r *Renderer) record(slotIndex uint32, slot *frameSlot, imageIndex uint32, packet *RenderPacket) error {
	rec, err := r.backend.BeginCommandBuffer(slot.commandBuffer)
	if err != nil {
		return err
	}

	if r.graph.Shadow.Enabled() && r.needsShadowPass() {
		if err := r.graph.Shadow.Begin(rec, slotIndex); err != nil {
			return err
		}
		r.drawQueue(rec, slotIndex, packet, true)
		r.graph.Shadow.End(rec)
	}

	if err := r.graph.Forward.Begin(rec, imageIndex); err != nil {
		return err
	}
	r.drawQueue(rec, slotIndex, packet, false)
	r.graph.Forward.End(rec)

	return rec.End()
}

// needsShadowPass also holds for receivers without casters, so the shadow
// map is cleared and in its sampled layout before the forward pass reads it.
func (r *Renderer) needsShadowPass() bool {
	for _, d := range r.queue {
		if d.instance.Material.Type == material.TypeShadow || samplesShadowMap(d.instance.Material) {
			return true
		}
	}
	return false
}

// drawQueue records the queued draws of the shadow or the forward pass. The pipeline is
// only rebound when it changes between consecutive draws.
func (r *Renderer) drawQueue(rec metadata.CommandRecorder, slotIndex uint32, packet *RenderPacket, shadow bool) {
	var bound metadata.Pipeline
	for _, d := range r.queue {
		mat := d.instance.Material
		if (mat.Type == material.TypeShadow) != shadow {
			continue
		}
		p := mat.Pipeline
		if p.Handle != bound {
			rec.BindPipeline(p.Handle)
			bound = p.Handle
		}
		set, err := d.instance.ResolveForFrame(slotIndex)
		if err != nil {
			core.LogError("failed to resolve material `%s`: %s", d.instance.Name, err.Error())
			continue
		}
		if set != 0 {
			rec.BindDescriptorSet(p.Handle, set)
		}
		if err := d.mesh.Bind(rec, p); err != nil {
			core.LogError("skipping draw of `%s` with `%s`: %s", d.mesh.Name, d.instance.Name, err.Error())
			continue
		}
		if data := r.push.encode(p, packet, d.world); data != nil {
			rec.PushConstants(p.Handle, p.PushConstantStages, 0, data)
		}
		d.mesh.Draw(rec)
	}
}
