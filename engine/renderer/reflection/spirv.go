package reflection

import (
	"encoding/binary"
	"fmt"
)

const (
	spirvMagic        uint32 = 0x07230203
	spirvMagicSwapped uint32 = 0x03022307
	spirvHeaderWords         = 5
)

// Opcodes read by the decoder. Everything else is skipped.
const (
	opName             uint32 = 5
	opMemberName       uint32 = 6
	opEntryPoint       uint32 = 15
	opTypeVoid         uint32 = 19
	opTypeBool         uint32 = 20
	opTypeInt          uint32 = 21
	opTypeFloat        uint32 = 22
	opTypeVector       uint32 = 23
	opTypeMatrix       uint32 = 24
	opTypeImage        uint32 = 25
	opTypeSampler      uint32 = 26
	opTypeSampledImage uint32 = 27
	opTypeArray        uint32 = 28
	opTypeRuntimeArray uint32 = 29
	opTypeStruct       uint32 = 30
	opTypePointer      uint32 = 32
	opConstant         uint32 = 43
	opSpecConstant     uint32 = 50
	opVariable         uint32 = 59
	opDecorate         uint32 = 71
	opMemberDecorate   uint32 = 72
)

const (
	decorationBlock         uint32 = 2
	decorationBufferBlock   uint32 = 3
	decorationRowMajor      uint32 = 4
	decorationArrayStride   uint32 = 6
	decorationMatrixStride  uint32 = 7
	decorationBuiltIn       uint32 = 11
	decorationLocation      uint32 = 30
	decorationBinding       uint32 = 33
	decorationDescriptorSet uint32 = 34
	decorationOffset        uint32 = 35
)

const (
	storageUniformConstant uint32 = 0
	storageInput           uint32 = 1
	storageUniform         uint32 = 2
	storagePushConstant    uint32 = 9
	storageStorageBuffer   uint32 = 12
)

const (
	executionModelVertex                 uint32 = 0
	executionModelTessellationControl    uint32 = 1
	executionModelTessellationEvaluation uint32 = 2
	executionModelGeometry               uint32 = 3
	executionModelFragment               uint32 = 4
	executionModelGLCompute              uint32 = 5
)

type spvType struct {
	op uint32
	// Bit width of scalar types.
	width uint32
	// Component type of vectors, column type of matrices, element type of
	// arrays, pointee of pointers and image type of sampled images.
	elem uint32
	// Component count of vectors and column count of matrices.
	count uint32
	// Id of the constant holding an array length.
	lengthID uint32
	members  []uint32
	storage  uint32
	// Sampled operand of OpTypeImage: 1 sampled, 2 storage.
	sampled uint32
}

type spvMember struct {
	name         string
	offset       uint32
	hasOffset    bool
	matrixStride uint32
	rowMajor     bool
	builtin      bool
}

type spvDecorations struct {
	set, binding, location, arrayStride uint32
	hasSet, hasBinding, hasLocation     bool
	block, bufferBlock, builtin         bool
}

type spvVariable struct {
	id      uint32
	typeID  uint32
	storage uint32
}

type spvEntryPoint struct {
	model      uint32
	name       string
	interfaces []uint32
}

// spvModule is the subset of a SPIR-V module needed for reflection.
type spvModule struct {
	bound       uint32
	entryPoints []spvEntryPoint
	names       map[uint32]string
	members     map[uint32][]spvMember
	decorations map[uint32]*spvDecorations
	types       map[uint32]*spvType
	constants   map[uint32]uint32
	variables   []spvVariable
}

// decode walks the instruction stream once and indexes every instruction
// reflection cares about.
func decode(code []byte) (*spvModule, error) {
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of 4", len(code))
	}
	if len(code) < spirvHeaderWords*4 {
		return nil, fmt.Errorf("size %d is smaller than the header", len(code))
	}

	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	switch words[0] {
	case spirvMagic:
	case spirvMagicSwapped:
		for i := range words {
			words[i] = binary.BigEndian.Uint32(code[i*4:])
		}
	default:
		return nil, fmt.Errorf("bad magic number 0x%08x", words[0])
	}

	m := &spvModule{
		bound:       words[3],
		names:       make(map[uint32]string),
		members:     make(map[uint32][]spvMember),
		decorations: make(map[uint32]*spvDecorations),
		types:       make(map[uint32]*spvType),
		constants:   make(map[uint32]uint32),
	}

	for pos := spirvHeaderWords; pos < len(words); {
		op := words[pos] & 0xffff
		count := int(words[pos] >> 16)
		if count == 0 {
			return nil, fmt.Errorf("zero length instruction at word %d", pos)
		}
		if pos+count > len(words) {
			return nil, fmt.Errorf("instruction %d at word %d runs past the end", op, pos)
		}
		if err := m.instruction(op, words[pos+1:pos+count]); err != nil {
			return nil, fmt.Errorf("word %d: %w", pos, err)
		}
		pos += count
	}

	if len(m.entryPoints) == 0 {
		return nil, fmt.Errorf("no entry point")
	}
	return m, nil
}

func (m *spvModule) instruction(op uint32, args []uint32) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("opcode %d needs %d operands, has %d", op, n, len(args))
		}
		return nil
	}

	switch op {
	case opName:
		if err := need(2); err != nil {
			return err
		}
		name, _ := decodeString(args[1:])
		m.names[args[0]] = name
	case opMemberName:
		if err := need(3); err != nil {
			return err
		}
		name, _ := decodeString(args[2:])
		m.member(args[0], args[1]).name = name
	case opEntryPoint:
		if err := need(3); err != nil {
			return err
		}
		name, used := decodeString(args[2:])
		m.entryPoints = append(m.entryPoints, spvEntryPoint{
			model:      args[0],
			name:       name,
			interfaces: append([]uint32(nil), args[2+used:]...),
		})
	case opTypeVoid, opTypeSampler:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op}
	case opTypeBool:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, width: 32}
	case opTypeInt, opTypeFloat:
		if err := need(2); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, width: args[1]}
	case opTypeVector, opTypeMatrix:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, elem: args[1], count: args[2]}
	case opTypeImage:
		if err := need(8); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, elem: args[1], sampled: args[6]}
	case opTypeSampledImage, opTypeRuntimeArray:
		if err := need(2); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, elem: args[1]}
	case opTypeArray:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, elem: args[1], lengthID: args[2]}
	case opTypeStruct:
		if err := need(1); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, members: append([]uint32(nil), args[1:]...)}
	case opTypePointer:
		if err := need(3); err != nil {
			return err
		}
		m.types[args[0]] = &spvType{op: op, storage: args[1], elem: args[2]}
	case opConstant, opSpecConstant:
		if err := need(3); err != nil {
			return err
		}
		m.constants[args[1]] = args[2]
	case opVariable:
		if err := need(3); err != nil {
			return err
		}
		m.variables = append(m.variables, spvVariable{typeID: args[0], id: args[1], storage: args[2]})
	case opDecorate:
		if err := need(2); err != nil {
			return err
		}
		return m.decorate(args[0], args[1], args[2:])
	case opMemberDecorate:
		if err := need(3); err != nil {
			return err
		}
		return m.memberDecorate(args[0], args[1], args[2], args[3:])
	}
	return nil
}

func (m *spvModule) decorate(target, decoration uint32, literals []uint32) error {
	d := m.decorations[target]
	if d == nil {
		d = &spvDecorations{}
		m.decorations[target] = d
	}
	literal := func() (uint32, error) {
		if len(literals) == 0 {
			return 0, fmt.Errorf("decoration %d on %%%d has no literal", decoration, target)
		}
		return literals[0], nil
	}

	var err error
	switch decoration {
	case decorationBlock:
		d.block = true
	case decorationBufferBlock:
		d.bufferBlock = true
	case decorationBuiltIn:
		d.builtin = true
	case decorationArrayStride:
		d.arrayStride, err = literal()
	case decorationLocation:
		d.location, err = literal()
		d.hasLocation = true
	case decorationBinding:
		d.binding, err = literal()
		d.hasBinding = true
	case decorationDescriptorSet:
		d.set, err = literal()
		d.hasSet = true
	}
	return err
}

func (m *spvModule) memberDecorate(structID, index, decoration uint32, literals []uint32) error {
	mb := m.member(structID, index)
	literal := func() (uint32, error) {
		if len(literals) == 0 {
			return 0, fmt.Errorf("member decoration %d on %%%d.%d has no literal", decoration, structID, index)
		}
		return literals[0], nil
	}

	var err error
	switch decoration {
	case decorationOffset:
		mb.offset, err = literal()
		mb.hasOffset = true
	case decorationMatrixStride:
		mb.matrixStride, err = literal()
	case decorationRowMajor:
		mb.rowMajor = true
	case decorationBuiltIn:
		mb.builtin = true
	}
	return err
}

// member returns the member record of a struct, growing the slice when
// decorations arrive before the struct declaration.
func (m *spvModule) member(structID, index uint32) *spvMember {
	list := m.members[structID]
	for uint32(len(list)) <= index {
		list = append(list, spvMember{})
	}
	m.members[structID] = list
	return &list[index]
}

func (m *spvModule) typeOf(id uint32) (*spvType, error) {
	t, ok := m.types[id]
	if !ok {
		return nil, fmt.Errorf("unknown type %%%d", id)
	}
	return t, nil
}

func (m *spvModule) decorationsOf(id uint32) spvDecorations {
	if d, ok := m.decorations[id]; ok {
		return *d
	}
	return spvDecorations{}
}

func (m *spvModule) arrayLength(t *spvType) (uint32, error) {
	n, ok := m.constants[t.lengthID]
	if !ok {
		return 0, fmt.Errorf("array length %%%d is not a constant", t.lengthID)
	}
	return n, nil
}

// decodeString reads a nul terminated literal string and returns it along
// with the number of words it occupies.
func decodeString(words []uint32) (string, int) {
	buf := make([]byte, 0, len(words)*4)
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}
