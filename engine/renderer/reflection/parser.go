package reflection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Uniform blocks are padded to a multiple of the std140 struct alignment.
const uniformBlockAlignment uint32 = 16

const (
	maxBlockSize = uint64(^uint32(0))
	// maxLayoutMembers bounds how many nodes a single block expands to.
	maxLayoutMembers = 1 << 16
)

type EntryPoint struct {
	Name  string
	Stage metadata.ShaderStage
}

// VertexInput is a non builtin input of the vertex stage.
type VertexInput struct {
	Name     string
	Location uint32
	Format   metadata.Format
}

// Module is everything reflection recovers from one shader binary.
type Module struct {
	EntryPoints []EntryPoint
	// Stages is the union of the stages of all entry points.
	Stages metadata.ShaderStage
	// Bindings are ordered by set, then binding.
	Bindings []metadata.DescriptorBinding
	// Blocks holds one layout per uniform block binding, in binding order.
	Blocks []*BindingLayout
	// Inputs are ordered by location.
	Inputs        []VertexInput
	PushConstants *BindingLayout
}

// Block returns the uniform block layout called name, matching either the
// variable or the type name.
func (m *Module) Block(name string) (*BindingLayout, bool) {
	for _, b := range m.Blocks {
		if b.Name == name || b.TypeName == name {
			return b, true
		}
	}
	return nil, false
}

// EntryPoint returns the name of the entry point of the given stage.
func (m *Module) EntryPoint(stage metadata.ShaderStage) (string, bool) {
	for _, e := range m.EntryPoints {
		if e.Stage == stage {
			return e.Name, true
		}
	}
	return "", false
}

// Parse reflects a SPIR-V binary. Any structural problem is reported as
// core.ErrInvalidShader; shaders that are valid but use an interface this
// renderer can not drive are reported as core.ErrUnsupportedShader.
func Parse(code []byte) (*Module, error) {
	spv, err := decode(code)
	if err != nil {
		err = fmt.Errorf("%w: %s", core.ErrInvalidShader, err.Error())
		core.LogError("%s", err.Error())
		return nil, err
	}

	r := &reflector{
		spv:      spv,
		out:      &Module{},
		visiting: make(map[uint32]bool),
		sizes:    make(map[uint32]uint32),
	}
	if err := r.run(); err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	return r.out, nil
}

type reflector struct {
	spv *spvModule
	out *Module

	// visiting holds the types sizeOf is inside of.
	visiting map[uint32]bool
	// sizes caches struct sizes by type id.
	sizes map[uint32]uint32
}

func (r *reflector) run() error {
	var vertexInterface []uint32
	for _, ep := range r.spv.entryPoints {
		stage, err := stageOf(ep.model)
		if err != nil {
			return err
		}
		r.out.EntryPoints = append(r.out.EntryPoints, EntryPoint{Name: ep.name, Stage: stage})
		r.out.Stages |= stage
		if stage == metadata.ShaderStageVertex {
			vertexInterface = ep.interfaces
		}
	}

	for _, v := range r.spv.variables {
		var err error
		switch v.storage {
		case storageUniformConstant, storageUniform, storageStorageBuffer:
			err = r.binding(v)
		case storagePushConstant:
			err = r.pushConstants(v)
		}
		if err != nil {
			return err
		}
	}

	if vertexInterface != nil {
		if err := r.vertexInputs(vertexInterface); err != nil {
			return err
		}
	}

	sort.SliceStable(r.out.Bindings, func(i, j int) bool {
		a, b := r.out.Bindings[i], r.out.Bindings[j]
		if a.Set != b.Set {
			return a.Set < b.Set
		}
		return a.Binding < b.Binding
	})
	sort.SliceStable(r.out.Blocks, func(i, j int) bool {
		a, b := r.out.Blocks[i], r.out.Blocks[j]
		if a.Set != b.Set {
			return a.Set < b.Set
		}
		return a.Binding < b.Binding
	})
	sort.SliceStable(r.out.Inputs, func(i, j int) bool {
		return r.out.Inputs[i].Location < r.out.Inputs[j].Location
	})
	return nil
}

func stageOf(model uint32) (metadata.ShaderStage, error) {
	switch model {
	case executionModelVertex:
		return metadata.ShaderStageVertex, nil
	case executionModelTessellationControl:
		return metadata.ShaderStageTessellationControl, nil
	case executionModelTessellationEvaluation:
		return metadata.ShaderStageTessellationEvaluation, nil
	case executionModelGeometry:
		return metadata.ShaderStageGeometry, nil
	case executionModelFragment:
		return metadata.ShaderStageFragment, nil
	case executionModelGLCompute:
		return metadata.ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("%w: execution model %d", core.ErrUnsupportedShader, model)
}

func (r *reflector) invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidShader, fmt.Sprintf(format, args...))
}

// fit narrows a size computed in 64 bits, rejecting anything past 4 GiB.
func (r *reflector) fit(v uint64, typeID uint32) (uint32, error) {
	if v > maxBlockSize {
		return 0, r.invalid("size of type %%%d overflows: %d bytes", typeID, v)
	}
	return uint32(v), nil
}

// place adds a node at offset under parent. Nodes must end inside the block.
func (r *reflector) place(layout *BindingLayout, parent int32, name string, offset uint64, size uint32) (int32, error) {
	if end := offset + uint64(size); end > uint64(layout.Size) {
		return 0, r.invalid("member `%s` of block `%s` ends at %d, past the block size %d", name, layout.Name, end, layout.Size)
	}
	if len(layout.nodes) >= maxLayoutMembers {
		return 0, r.invalid("block `%s` expands to more than %d members", layout.Name, maxLayoutMembers)
	}
	return layout.add(parent, name, uint32(offset), size), nil
}

func (r *reflector) binding(v spvVariable) error {
	ptr, err := r.spv.typeOf(v.typeID)
	if err != nil {
		return r.invalid("variable %%%d: %s", v.id, err)
	}
	if ptr.op != opTypePointer {
		return r.invalid("variable %%%d is not a pointer", v.id)
	}

	typeID := ptr.elem
	t, err := r.spv.typeOf(typeID)
	if err != nil {
		return r.invalid("variable %%%d: %s", v.id, err)
	}
	count := uint32(1)
	for t.op == opTypeArray || t.op == opTypeRuntimeArray {
		if t.op == opTypeRuntimeArray {
			count = 0
		} else {
			n, err := r.spv.arrayLength(t)
			if err != nil {
				return r.invalid("variable %%%d: %s", v.id, err)
			}
			count *= n
		}
		typeID = t.elem
		if t, err = r.spv.typeOf(typeID); err != nil {
			return r.invalid("variable %%%d: %s", v.id, err)
		}
	}

	dec := r.spv.decorationsOf(v.id)
	typeDec := r.spv.decorationsOf(typeID)

	var kind metadata.DescriptorKind
	switch {
	case t.op == opTypeStruct && v.storage == storageUniform && typeDec.bufferBlock:
		kind = metadata.DescriptorKindStorageBuffer
	case t.op == opTypeStruct && v.storage == storageUniform:
		kind = metadata.DescriptorKindUniformBlock
	case t.op == opTypeStruct && v.storage == storageStorageBuffer:
		kind = metadata.DescriptorKindStorageBuffer
	case t.op == opTypeSampler:
		kind = metadata.DescriptorKindSampler
	case t.op == opTypeSampledImage:
		kind = metadata.DescriptorKindCombinedImageSampler
	case t.op == opTypeImage && t.sampled == 2:
		kind = metadata.DescriptorKindStorageImage
	case t.op == opTypeImage:
		kind = metadata.DescriptorKindSampledImage
	default:
		// Not a resource, e.g. a uniform constant of an opaque type we do
		// not bind.
		return nil
	}

	if !dec.hasBinding {
		return fmt.Errorf("%w: resource %%%d has no binding decoration", core.ErrUnsupportedShader, v.id)
	}

	typeName := strings.TrimPrefix(r.spv.names[typeID], "type.")
	name := r.spv.names[v.id]
	if name == "" {
		name = typeName
	}
	if name == "" {
		name = fmt.Sprintf("binding%d", dec.binding)
	}

	r.out.Bindings = append(r.out.Bindings, metadata.DescriptorBinding{
		Name:    name,
		Set:     dec.set,
		Binding: dec.binding,
		Kind:    kind,
		Stages:  r.out.Stages,
		Count:   count,
	})

	if kind != metadata.DescriptorKindUniformBlock {
		return nil
	}
	layout, err := r.blockLayout(name, typeName, dec.set, dec.binding, typeID, true)
	if err != nil {
		return err
	}
	r.out.Blocks = append(r.out.Blocks, layout)
	return nil
}

func (r *reflector) pushConstants(v spvVariable) error {
	ptr, err := r.spv.typeOf(v.typeID)
	if err != nil || ptr.op != opTypePointer {
		return r.invalid("push constant variable %%%d is not a pointer", v.id)
	}
	if r.out.PushConstants != nil {
		return fmt.Errorf("%w: more than one push constant block", core.ErrUnsupportedShader)
	}
	typeName := strings.TrimPrefix(r.spv.names[ptr.elem], "type.")
	name := r.spv.names[v.id]
	if name == "" {
		name = typeName
	}
	layout, err := r.blockLayout(name, typeName, 0, 0, ptr.elem, false)
	if err != nil {
		return err
	}
	r.out.PushConstants = layout
	return nil
}

func (r *reflector) blockLayout(name, typeName string, set, binding, structID uint32, padded bool) (*BindingLayout, error) {
	st, err := r.spv.typeOf(structID)
	if err != nil {
		return nil, r.invalid("block `%s`: %s", name, err)
	}
	if st.op != opTypeStruct {
		return nil, r.invalid("block `%s` is not a struct", name)
	}
	size, err := r.sizeOf(structID, nil)
	if err != nil {
		return nil, err
	}
	if padded {
		if size, err = r.fit(math.AlignUp(uint64(size), uint64(uniformBlockAlignment)), structID); err != nil {
			return nil, err
		}
	}

	layout := newLayout(name, typeName, set, binding, size)
	if err := r.walkStruct(layout, 0, structID, 0); err != nil {
		return nil, err
	}
	return layout, nil
}

// walkStruct adds one node per struct member under parent, with offsets made
// absolute by adding base.
func (r *reflector) walkStruct(layout *BindingLayout, parent int32, structID, base uint32) error {
	st, err := r.spv.typeOf(structID)
	if err != nil {
		return r.invalid("%s", err)
	}
	members := r.spv.members[structID]
	for i, memberType := range st.members {
		var mb spvMember
		if i < len(members) {
			mb = members[i]
		}
		if !mb.hasOffset {
			return r.invalid("member %d of struct %%%d has no offset", i, structID)
		}
		name := mb.name
		if name == "" {
			name = fmt.Sprintf("_m%d", i)
		}

		size, err := r.sizeOf(memberType, &mb)
		if err != nil {
			return err
		}
		offset := uint64(base) + uint64(mb.offset)
		idx, err := r.place(layout, parent, name, offset, size)
		if err != nil {
			return err
		}

		t, err := r.spv.typeOf(memberType)
		if err != nil {
			return r.invalid("%s", err)
		}
		switch t.op {
		case opTypeArray:
			if err := r.walkArray(layout, idx, name, memberType, uint32(offset), &mb); err != nil {
				return err
			}
		case opTypeStruct:
			if err := r.walkStruct(layout, idx, memberType, uint32(offset)); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkArray expands every element of an array member into its own node
// named name[i]. Struct elements are expanded after the array, once per
// element, and nested arrays recurse dimension by dimension.
func (r *reflector) walkArray(layout *BindingLayout, parent int32, name string, arrayID, base uint32, mb *spvMember) error {
	at, err := r.spv.typeOf(arrayID)
	if err != nil {
		return r.invalid("%s", err)
	}
	length, err := r.spv.arrayLength(at)
	if err != nil {
		return r.invalid("%s", err)
	}
	elem, err := r.spv.typeOf(at.elem)
	if err != nil {
		return r.invalid("%s", err)
	}
	elemSize, err := r.sizeOf(at.elem, mb)
	if err != nil {
		return err
	}
	stride := r.spv.decorationsOf(arrayID).arrayStride
	if stride == 0 {
		stride = elemSize
	}

	for i := uint32(0); i < length; i++ {
		childName := elementName(name, i)
		offset := uint64(base) + uint64(i)*uint64(stride)
		switch elem.op {
		case opTypeStruct:
			idx, err := r.place(layout, parent, childName, offset, stride)
			if err != nil {
				return err
			}
			if err := r.walkStruct(layout, idx, at.elem, uint32(offset)); err != nil {
				return err
			}
		case opTypeArray:
			idx, err := r.place(layout, parent, childName, offset, stride)
			if err != nil {
				return err
			}
			if err := r.walkArray(layout, idx, childName, at.elem, uint32(offset), mb); err != nil {
				return err
			}
		default:
			if _, err := r.place(layout, parent, childName, offset, elemSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// sizeOf returns the byte size of a type. mb carries the member decorations
// that affect matrices and may be nil. A type that contains itself is an
// error.
func (r *reflector) sizeOf(typeID uint32, mb *spvMember) (uint32, error) {
	if size, ok := r.sizes[typeID]; ok {
		return size, nil
	}
	t, err := r.spv.typeOf(typeID)
	if err != nil {
		return 0, r.invalid("%s", err)
	}
	if r.visiting[typeID] {
		return 0, r.invalid("type %%%d contains itself", typeID)
	}
	r.visiting[typeID] = true
	defer delete(r.visiting, typeID)

	switch t.op {
	case opTypeBool, opTypeInt, opTypeFloat:
		return t.width / 8, nil
	case opTypeVector:
		comp, err := r.sizeOf(t.elem, nil)
		if err != nil {
			return 0, err
		}
		return r.fit(uint64(t.count)*uint64(comp), typeID)
	case opTypeMatrix:
		column, err := r.spv.typeOf(t.elem)
		if err != nil {
			return 0, r.invalid("%s", err)
		}
		if mb != nil && mb.matrixStride != 0 {
			if mb.rowMajor {
				return r.fit(uint64(column.count)*uint64(mb.matrixStride), typeID)
			}
			return r.fit(uint64(t.count)*uint64(mb.matrixStride), typeID)
		}
		colSize, err := r.sizeOf(t.elem, nil)
		if err != nil {
			return 0, err
		}
		return r.fit(uint64(t.count)*uint64(colSize), typeID)
	case opTypeArray:
		length, err := r.spv.arrayLength(t)
		if err != nil {
			return 0, r.invalid("%s", err)
		}
		if stride := r.spv.decorationsOf(typeID).arrayStride; stride != 0 {
			return r.fit(uint64(length)*uint64(stride), typeID)
		}
		elem, err := r.sizeOf(t.elem, mb)
		if err != nil {
			return 0, err
		}
		return r.fit(uint64(length)*uint64(elem), typeID)
	case opTypeRuntimeArray:
		return 0, nil
	case opTypeStruct:
		members := r.spv.members[typeID]
		var size uint64
		for i, memberType := range t.members {
			var m spvMember
			if i < len(members) {
				m = members[i]
			}
			s, err := r.sizeOf(memberType, &m)
			if err != nil {
				return 0, err
			}
			if end := uint64(m.offset) + uint64(s); end > size {
				size = end
			}
		}
		out, err := r.fit(size, typeID)
		if err != nil {
			return 0, err
		}
		r.sizes[typeID] = out
		return out, nil
	}
	return 0, fmt.Errorf("%w: type %%%d (opcode %d) has no size", core.ErrUnsupportedShader, typeID, t.op)
}

func (r *reflector) vertexInputs(interfaces []uint32) error {
	vars := make(map[uint32]spvVariable, len(r.spv.variables))
	for _, v := range r.spv.variables {
		vars[v.id] = v
	}
	for _, id := range interfaces {
		v, ok := vars[id]
		if !ok || v.storage != storageInput {
			continue
		}
		dec := r.spv.decorationsOf(id)
		if dec.builtin || !dec.hasLocation {
			continue
		}
		ptr, err := r.spv.typeOf(v.typeID)
		if err != nil || ptr.op != opTypePointer {
			return r.invalid("input %%%d is not a pointer", id)
		}
		t, err := r.spv.typeOf(ptr.elem)
		if err != nil {
			return r.invalid("%s", err)
		}
		if t.op == opTypeStruct {
			// Block of builtins, e.g. gl_PerVertex.
			continue
		}
		r.out.Inputs = append(r.out.Inputs, VertexInput{
			Name:     r.spv.names[id],
			Location: dec.location,
			Format:   r.vertexFormat(t),
		})
	}
	return nil
}

func (r *reflector) vertexFormat(t *spvType) metadata.Format {
	switch t.op {
	case opTypeFloat:
		if t.width == 32 {
			return metadata.FormatR32Sfloat
		}
	case opTypeVector:
		comp, err := r.spv.typeOf(t.elem)
		if err != nil || comp.op != opTypeFloat || comp.width != 32 {
			return metadata.FormatUndefined
		}
		switch t.count {
		case 2:
			return metadata.FormatR32G32Sfloat
		case 3:
			return metadata.FormatR32G32B32Sfloat
		case 4:
			return metadata.FormatR32G32B32A32Sfloat
		}
	}
	return metadata.FormatUndefined
}
