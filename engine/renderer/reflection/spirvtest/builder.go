// Package spirvtest assembles small SPIR-V modules for tests. The output
// carries only the declarations reflection reads: entry points, debug names,
// decorations, types, constants and global variables. There are no function
// bodies, so the modules are not valid for a driver.
package spirvtest

import (
	"encoding/binary"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	opName             = 5
	opMemberName       = 6
	opMemoryModel      = 14
	opEntryPoint       = 15
	opCapability       = 17
	opTypeBool         = 20
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampler      = 26
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationRowMajor      = 4
	decorationColMajor      = 5
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBuiltIn       = 11
	decorationLocation      = 30
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageUniformConstant = 0
	storageInput           = 1
	storageUniform         = 2
	storagePushConstant    = 9
)

// Type is the result id of a declared type.
type Type uint32

// Var is the result id of a declared global variable.
type Var uint32

// Field is one member of a struct declared with Builder.Struct.
type Field struct {
	Name   string
	Type   Type
	Offset uint32
	// MatrixStride is required for matrix members and arrays of matrices.
	MatrixStride uint32
	RowMajor     bool
}

type entryPoint struct {
	model uint32
	id    uint32
	name  string
}

// Builder accumulates declarations and serializes them with Bytes.
type Builder struct {
	next        uint32
	entries     []entryPoint
	interfaces  []uint32
	debug       [][]uint32
	annotations [][]uint32
	globals     [][]uint32

	uint32Type Type
	float32    Type
	images     map[bool]Type
}

// New starts a module with one entry point called "main" for stage.
func New(stage metadata.ShaderStage) *Builder {
	b := &Builder{next: 1, images: make(map[bool]Type)}
	return b.WithEntryPoint(stage, "main")
}

// WithEntryPoint declares an additional entry point.
func (b *Builder) WithEntryPoint(stage metadata.ShaderStage, name string) *Builder {
	b.entries = append(b.entries, entryPoint{model: executionModel(stage), id: b.id(), name: name})
	return b
}

func executionModel(stage metadata.ShaderStage) uint32 {
	switch stage {
	case metadata.ShaderStageVertex:
		return 0
	case metadata.ShaderStageTessellationControl:
		return 1
	case metadata.ShaderStageTessellationEvaluation:
		return 2
	case metadata.ShaderStageGeometry:
		return 3
	case metadata.ShaderStageFragment:
		return 4
	case metadata.ShaderStageCompute:
		return 5
	}
	return 0xff
}

func (b *Builder) id() uint32 {
	id := b.next
	b.next++
	return id
}

func (b *Builder) global(op uint32, operands ...uint32) {
	b.globals = append(b.globals, instruction(op, operands...))
}

func (b *Builder) decorate(target uint32, operands ...uint32) {
	b.annotations = append(b.annotations, instruction(opDecorate, append([]uint32{target}, operands...)...))
}

func (b *Builder) name(target uint32, name string) {
	if name == "" {
		return
	}
	b.debug = append(b.debug, instruction(opName, append([]uint32{target}, encodeString(name)...)...))
}

func (b *Builder) Bool() Type {
	id := b.id()
	b.global(opTypeBool, id)
	return Type(id)
}

func (b *Builder) Float32() Type {
	if b.float32 == 0 {
		id := b.id()
		b.global(opTypeFloat, id, 32)
		b.float32 = Type(id)
	}
	return b.float32
}

func (b *Builder) Int32() Type {
	id := b.id()
	b.global(opTypeInt, id, 32, 1)
	return Type(id)
}

func (b *Builder) Uint32() Type {
	if b.uint32Type == 0 {
		id := b.id()
		b.global(opTypeInt, id, 32, 0)
		b.uint32Type = Type(id)
	}
	return b.uint32Type
}

func (b *Builder) Vec(component Type, n uint32) Type {
	id := b.id()
	b.global(opTypeVector, id, uint32(component), n)
	return Type(id)
}

// Mat declares a matrix of cols columns of the given vector type.
func (b *Builder) Mat(column Type, cols uint32) Type {
	id := b.id()
	b.global(opTypeMatrix, id, uint32(column), cols)
	return Type(id)
}

// Array declares a sized array. A zero stride leaves the ArrayStride
// decoration off.
func (b *Builder) Array(elem Type, length, stride uint32) Type {
	length32 := b.Constant(b.Uint32(), length)
	id := b.id()
	b.global(opTypeArray, id, uint32(elem), length32)
	if stride != 0 {
		b.decorate(id, decorationArrayStride, stride)
	}
	return Type(id)
}

// Constant declares a 32 bit scalar constant and returns its id.
func (b *Builder) Constant(t Type, value uint32) uint32 {
	id := b.id()
	b.global(opConstant, uint32(t), id, value)
	return id
}

func (b *Builder) Struct(name string, fields ...Field) Type {
	return b.StructAt(b.Forward(), name, fields...)
}

// Forward reserves a type id for a struct declared later with StructAt, so
// fields can refer to it.
func (b *Builder) Forward() Type {
	return Type(b.id())
}

// StructAt declares a struct with a previously reserved id.
func (b *Builder) StructAt(st Type, name string, fields ...Field) Type {
	members := make([]uint32, 0, len(fields)+1)
	id := uint32(st)
	members = append(members, id)
	for _, f := range fields {
		members = append(members, uint32(f.Type))
	}
	b.global(opTypeStruct, members...)
	b.name(id, name)

	for i, f := range fields {
		index := uint32(i)
		b.debug = append(b.debug, instruction(opMemberName, append([]uint32{id, index}, encodeString(f.Name)...)...))
		b.annotations = append(b.annotations, instruction(opMemberDecorate, id, index, decorationOffset, f.Offset))
		if f.MatrixStride != 0 {
			b.annotations = append(b.annotations, instruction(opMemberDecorate, id, index, decorationMatrixStride, f.MatrixStride))
			major := uint32(decorationColMajor)
			if f.RowMajor {
				major = decorationRowMajor
			}
			b.annotations = append(b.annotations, instruction(opMemberDecorate, id, index, major))
		}
	}
	return Type(id)
}

func (b *Builder) pointer(storage uint32, t Type) uint32 {
	id := b.id()
	b.global(opTypePointer, id, storage, uint32(t))
	return id
}

func (b *Builder) variable(name string, storage uint32, t Type) Var {
	ptr := b.pointer(storage, t)
	id := b.id()
	b.global(opVariable, ptr, id, storage)
	b.name(id, name)
	return Var(id)
}

func (b *Builder) bind(v Var, set, binding uint32) {
	b.decorate(uint32(v), decorationDescriptorSet, set)
	b.decorate(uint32(v), decorationBinding, binding)
}

// UniformBlock declares a uniform buffer variable of struct type st. An
// empty name leaves the variable anonymous.
func (b *Builder) UniformBlock(name string, set, binding uint32, st Type) Var {
	b.decorate(uint32(st), decorationBlock)
	v := b.variable(name, storageUniform, st)
	b.bind(v, set, binding)
	return v
}

// StorageBlock declares a storage buffer the pre 1.3 way, as a BufferBlock
// in the Uniform storage class.
func (b *Builder) StorageBlock(name string, set, binding uint32, st Type) Var {
	b.decorate(uint32(st), decorationBufferBlock)
	v := b.variable(name, storageUniform, st)
	b.bind(v, set, binding)
	return v
}

func (b *Builder) PushConstants(name string, st Type) Var {
	b.decorate(uint32(st), decorationBlock)
	return b.variable(name, storagePushConstant, st)
}

func (b *Builder) image(storage bool) Type {
	if t, ok := b.images[storage]; ok {
		return t
	}
	sampled := uint32(1)
	if storage {
		sampled = 2
	}
	id := b.id()
	// 2D, no depth, not arrayed, single sampled, unknown format.
	b.global(opTypeImage, id, uint32(b.Float32()), 1, 0, 0, 0, sampled, 0)
	b.images[storage] = Type(id)
	return Type(id)
}

func (b *Builder) SampledImage(name string, set, binding uint32) Var {
	v := b.variable(name, storageUniformConstant, b.image(false))
	b.bind(v, set, binding)
	return v
}

func (b *Builder) StorageImage(name string, set, binding uint32) Var {
	v := b.variable(name, storageUniformConstant, b.image(true))
	b.bind(v, set, binding)
	return v
}

func (b *Builder) Sampler(name string, set, binding uint32) Var {
	id := b.id()
	b.global(opTypeSampler, id)
	v := b.variable(name, storageUniformConstant, Type(id))
	b.bind(v, set, binding)
	return v
}

func (b *Builder) CombinedImageSampler(name string, set, binding uint32) Var {
	id := b.id()
	b.global(opTypeSampledImage, id, uint32(b.image(false)))
	v := b.variable(name, storageUniformConstant, Type(id))
	b.bind(v, set, binding)
	return v
}

// SamplerArray declares an array of combined image samplers.
func (b *Builder) SamplerArray(name string, set, binding, count uint32) Var {
	id := b.id()
	b.global(opTypeSampledImage, id, uint32(b.image(false)))
	arr := b.Array(Type(id), count, 0)
	v := b.variable(name, storageUniformConstant, arr)
	b.bind(v, set, binding)
	return v
}

// Input declares a stage input at location and lists it in the interface of
// every entry point.
func (b *Builder) Input(name string, location uint32, t Type) Var {
	v := b.variable(name, storageInput, t)
	b.decorate(uint32(v), decorationLocation, location)
	b.interfaces = append(b.interfaces, uint32(v))
	return v
}

// BuiltinInput declares an input decorated with the given BuiltIn value.
func (b *Builder) BuiltinInput(name string, builtin uint32, t Type) Var {
	v := b.variable(name, storageInput, t)
	b.decorate(uint32(v), decorationBuiltIn, builtin)
	b.interfaces = append(b.interfaces, uint32(v))
	return v
}

// Words returns the module as SPIR-V words.
func (b *Builder) Words() []uint32 {
	words := []uint32{0x07230203, 0x00010000, 0, b.next, 0}
	words = append(words, instruction(opCapability, 1)...)
	words = append(words, instruction(opMemoryModel, 0, 1)...)
	for _, e := range b.entries {
		operands := append([]uint32{e.model, e.id}, encodeString(e.name)...)
		operands = append(operands, b.interfaces...)
		words = append(words, instruction(opEntryPoint, operands...)...)
	}
	for _, section := range [][][]uint32{b.debug, b.annotations, b.globals} {
		for _, inst := range section {
			words = append(words, inst...)
		}
	}
	return words
}

// Bytes returns the module in little endian byte order.
func (b *Builder) Bytes() []byte {
	return Encode(b.Words())
}

// Encode serializes words in little endian byte order.
func Encode(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func instruction(op uint32, operands ...uint32) []uint32 {
	out := make([]uint32, 0, len(operands)+1)
	out = append(out, uint32(len(operands)+1)<<16|op)
	return append(out, operands...)
}

func encodeString(s string) []uint32 {
	n := len(s)/4 + 1
	words := make([]uint32, n)
	for i := 0; i < len(s); i++ {
		words[i/4] |= uint32(s[i]) << (8 * (i % 4))
	}
	return words
}
