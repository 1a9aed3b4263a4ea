package material

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
)

/** @brief Resources bound to image and sampler bindings nobody has set. */
type Defaults struct {
	Texture metadata.Image
	Sampler metadata.Sampler
}

// span is a half open byte range of a block; it is empty when lo >= hi.
type span struct {
	lo, hi uint32
}

func (s span) empty() bool { return s.lo >= s.hi }

func (s *span) widen(lo, hi uint32) {
	if s.empty() {
		s.lo, s.hi = lo, hi
		return
	}
	s.lo = min(s.lo, lo)
	s.hi = max(s.hi, hi)
}

type blockState struct {
	layout *reflection.BindingLayout
	// One host shadow copy, device buffer and stale range per frame slot.
	host    [][]byte
	buffers []metadata.Buffer
	dirty   []span
}

// Instance binds a Material to concrete values. Setters only touch host
// memory and flag every frame slot stale; ResolveForFrame brings the device
// copy of one slot up to date right before that slot records.
type Instance struct {
	ID       uuid.UUID
	Name     string
	Material *Material

	backend  metadata.RendererBackend
	defaults Defaults
	slots    uint32

	sets     []metadata.DescriptorSet
	blocks   []*blockState
	byBind   map[uint32]*blockState
	textures map[uint32]metadata.Image
	samplers map[uint32]metadata.Sampler
	storage  map[uint32]metadata.Buffer
	// Bindings whose descriptor must be rewritten, per slot.
	stale []map[uint32]struct{}
}

// NewInstance allocates per slot descriptor sets and uniform buffers for m.
// An empty name is replaced by one derived from a fresh id.
func NewInstance(backend metadata.RendererBackend, m *Material, framesInFlight uint32, defaults Defaults, name string) (*Instance, error) {
	if framesInFlight == 0 {
		return nil, fmt.Errorf("material instance of `%s` needs at least one frame slot", m.Name)
	}
	id := uuid.New()
	if name == "" {
		name = fmt.Sprintf("%s#%s", m.Name, id.String()[:8])
	}
	inst := &Instance{
		ID:       id,
		Name:     name,
		Material: m,
		backend:  backend,
		defaults: defaults,
		slots:    framesInFlight,
		byBind:   make(map[uint32]*blockState),
		textures: make(map[uint32]metadata.Image),
		samplers: make(map[uint32]metadata.Sampler),
		storage:  make(map[uint32]metadata.Buffer),
		stale:    make([]map[uint32]struct{}, framesInFlight),
	}

	for _, layout := range m.Blocks {
		bs := &blockState{
			layout:  layout,
			host:    make([][]byte, framesInFlight),
			buffers: make([]metadata.Buffer, framesInFlight),
			dirty:   make([]span, framesInFlight),
		}
		inst.blocks = append(inst.blocks, bs)
		inst.byBind[layout.Binding] = bs
		for i := range bs.host {
			bs.host[i] = make([]byte, layout.Size)
			bs.dirty[i] = span{0, layout.Size}
			buf, err := backend.CreateBuffer(uint64(layout.Size), metadata.BufferUsageUniform)
			if err != nil {
				inst.Destroy()
				core.LogError("material instance `%s`: failed to create uniform buffer for `%s`: %s", name, layout.Name, err.Error())
				return nil, err
			}
			bs.buffers[i] = buf
		}
	}

	if m.SetLayout != 0 {
		for i := uint32(0); i < framesInFlight; i++ {
			set, err := backend.AllocateDescriptorSet(m.SetLayout)
			if err != nil {
				inst.Destroy()
				core.LogError("material instance `%s`: failed to allocate descriptor set: %s", name, err.Error())
				return nil, err
			}
			inst.sets = append(inst.sets, set)
		}
	}

	for i := range inst.stale {
		inst.stale[i] = make(map[uint32]struct{}, len(m.Bindings))
		for _, b := range m.Bindings {
			inst.stale[i][b.Binding] = struct{}{}
		}
	}
	return inst, nil
}

// FramesInFlight returns the number of slots the instance was created for.
func (inst *Instance) FramesInFlight() uint32 {
	return inst.slots
}

// locate resolves a uniform path to its block and member. The path may be
// prefixed with the block variable or type name; otherwise every block is
// searched in binding order.
func (inst *Instance) locate(path string) (*blockState, reflection.Member, error) {
	head, rest, qualified := strings.Cut(path, ".")
	for _, bs := range inst.blocks {
		if head != bs.layout.Name && head != bs.layout.TypeName {
			continue
		}
		if !qualified {
			return bs, reflection.Member{Name: bs.layout.Name, Size: bs.layout.Size}, nil
		}
		if m, err := bs.layout.Lookup(rest); err == nil {
			return bs, m, nil
		}
	}
	for _, bs := range inst.blocks {
		if m, err := bs.layout.Lookup(path); err == nil {
			return bs, m, nil
		}
	}
	return nil, reflection.Member{}, fmt.Errorf("%w: `%s` in material `%s`", core.ErrUniformNotFound, path, inst.Material.Name)
}

// SetUniform writes value at path in the host copy of every slot. The value
// must encode to exactly the member's size; on any failure nothing is
// written and the error is returned after being logged.
func (inst *Instance) SetUniform(path string, value any) error {
	bs, m, err := inst.locate(path)
	if err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	data, err := encodeFor(value, m.Size)
	if err != nil {
		err = fmt.Errorf("%w: `%s`: %s", core.ErrUniformSizeMismatch, path, err.Error())
		core.LogError("%s", err.Error())
		return err
	}
	if uint32(len(data)) != m.Size {
		err = fmt.Errorf("%w: `%s` is %d bytes, value %T is %d", core.ErrUniformSizeMismatch, path, m.Size, value, len(data))
		core.LogError("%s", err.Error())
		return err
	}
	for i := range bs.host {
		copy(bs.host[i][m.Offset:], data)
		bs.dirty[i].widen(m.Offset, m.Offset+m.Size)
	}
	return nil
}

// Uniform returns a copy of the current bytes at path.
func (inst *Instance) Uniform(path string) ([]byte, error) {
	bs, m, err := inst.locate(path)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), bs.host[0][m.Offset:m.Offset+m.Size]...), nil
}

func (inst *Instance) binding(name string, accept func(metadata.DescriptorKind) bool) (metadata.DescriptorBinding, error) {
	b, ok := inst.Material.Binding(name)
	if !ok {
		return b, fmt.Errorf("%w: `%s` in material `%s`", core.ErrBindingNotFound, name, inst.Material.Name)
	}
	if !accept(b.Kind) {
		return b, fmt.Errorf("%w: `%s` is a %s binding", core.ErrBindingKindMismatch, name, b.Kind)
	}
	return b, nil
}

func (inst *Instance) markStale(binding uint32) {
	for _, s := range inst.stale {
		s[binding] = struct{}{}
	}
}

// SetTexture binds image to the image binding called name. A zero image
// restores the default texture.
func (inst *Instance) SetTexture(name string, image metadata.Image) error {
	b, err := inst.binding(name, metadata.DescriptorKind.UsesImage)
	if err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	inst.textures[b.Binding] = image
	inst.markStale(b.Binding)
	return nil
}

// SetSampler binds sampler to the sampler binding called name. A zero
// sampler restores the default sampler.
func (inst *Instance) SetSampler(name string, sampler metadata.Sampler) error {
	b, err := inst.binding(name, metadata.DescriptorKind.UsesSampler)
	if err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	inst.samplers[b.Binding] = sampler
	inst.markStale(b.Binding)
	return nil
}

// SetStorageBuffer binds buffer to the storage buffer binding called name.
func (inst *Instance) SetStorageBuffer(name string, buffer metadata.Buffer) error {
	b, err := inst.binding(name, func(k metadata.DescriptorKind) bool { return k == metadata.DescriptorKindStorageBuffer })
	if err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	inst.storage[b.Binding] = buffer
	inst.markStale(b.Binding)
	return nil
}

// ResolveForFrame uploads the stale uniform ranges of slot, rewrites the
// descriptors that changed since the slot was last resolved and returns the
// slot's descriptor set. Calling it again without a setter in between does
// no device work. It must only be called once the slot's fence signaled.
func (inst *Instance) ResolveForFrame(slot uint32) (metadata.DescriptorSet, error) {
	if slot >= inst.slots {
		return 0, fmt.Errorf("%w: slot %d of material instance `%s` with %d slots", core.ErrInvalidHandle, slot, inst.Name, inst.slots)
	}

	for _, bs := range inst.blocks {
		d := bs.dirty[slot]
		if d.empty() {
			continue
		}
		if err := inst.backend.WriteBuffer(bs.buffers[slot], uint64(d.lo), bs.host[slot][d.lo:d.hi]); err != nil {
			return 0, err
		}
		bs.dirty[slot] = span{}
	}

	if len(inst.sets) == 0 {
		return 0, nil
	}
	set := inst.sets[slot]
	stale := inst.stale[slot]
	if len(stale) == 0 {
		return set, nil
	}

	// Bindings with nothing to bind stay stale until something is set.
	writes := make([]metadata.DescriptorWrite, 0, len(stale))
	for binding := range stale {
		if w, ok := inst.write(slot, binding); ok {
			writes = append(writes, w)
		}
	}
	if len(writes) == 0 {
		return set, nil
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].Binding < writes[j].Binding })

	if err := inst.backend.UpdateDescriptorSet(set, writes); err != nil {
		return 0, err
	}
	for _, w := range writes {
		delete(stale, w.Binding)
	}
	return set, nil
}

// write builds the descriptor write of binding for slot. It reports false
// when there is nothing valid to bind yet.
func (inst *Instance) write(slot, binding uint32) (metadata.DescriptorWrite, bool) {
	var b metadata.DescriptorBinding
	for _, mb := range inst.Material.Bindings {
		if mb.Binding == binding {
			b = mb
			break
		}
	}
	w := metadata.DescriptorWrite{Binding: binding, Kind: b.Kind}

	switch b.Kind {
	case metadata.DescriptorKindUniformBlock:
		bs, ok := inst.byBind[binding]
		if !ok {
			return w, false
		}
		w.Buffer = bs.buffers[slot]
		w.Range = uint64(bs.layout.Size)
		return w, true
	case metadata.DescriptorKindStorageBuffer:
		w.Buffer = inst.storage[binding]
		return w, w.Buffer != 0
	}

	if b.Kind.UsesImage() {
		w.Image = inst.textures[binding]
		if w.Image == 0 {
			w.Image = inst.defaults.Texture
		}
		if w.Image == 0 {
			return w, false
		}
	}
	if b.Kind.UsesSampler() {
		w.Sampler = inst.samplers[binding]
		if w.Sampler == 0 {
			w.Sampler = inst.defaults.Sampler
		}
		if w.Sampler == 0 {
			return w, false
		}
	}
	return w, true
}

// Destroy frees the descriptor sets and uniform buffers. The device must be
// idle or every slot's fence signaled.
func (inst *Instance) Destroy() {
	for _, set := range inst.sets {
		inst.backend.FreeDescriptorSet(set)
	}
	inst.sets = nil
	for _, bs := range inst.blocks {
		for _, buf := range bs.buffers {
			if buf != 0 {
				inst.backend.DestroyBuffer(buf)
			}
		}
	}
	inst.blocks = nil
	clear(inst.byBind)
}
