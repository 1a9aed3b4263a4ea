package pipeline

import (
	"strings"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Attribute is one of the symbolic vertex streams a mesh can supply.
type Attribute uint8

const (
	AttributePosition Attribute = iota
	AttributeNormal
	AttributeTangent
	AttributeColor
	AttributeUV0
	AttributeUV1
	AttributeUV2
	AttributeUV3

	AttributeCount
)

/** @brief The number of texture coordinate channels a mesh can carry. */
const MaxUVChannels = 4

// UV returns the attribute of texture coordinate channel k.
func UV(k int) Attribute {
	return AttributeUV0 + Attribute(k)
}

func (a Attribute) String() string {
	switch a {
	case AttributePosition:
		return "position"
	case AttributeNormal:
		return "normal"
	case AttributeTangent:
		return "tangent"
	case AttributeColor:
		return "color"
	}
	if a >= AttributeUV0 && a < AttributeCount {
		return "uv" + string(rune('0'+a-AttributeUV0))
	}
	return "unknown"
}

// Format is the element format of the stream as stored in mesh buffers.
func (a Attribute) Format() metadata.Format {
	switch a {
	case AttributePosition, AttributeNormal, AttributeTangent:
		return metadata.FormatR32G32B32Sfloat
	}
	return metadata.FormatR32G32B32A32Sfloat
}

// Stride is the byte size of one element of the stream.
func (a Attribute) Stride() uint32 {
	return a.Format().Size()
}

// AttributeSet is a bit set of attributes.
type AttributeSet uint16

// AttributesOf builds a set.
func AttributesOf(attrs ...Attribute) AttributeSet {
	var s AttributeSet
	for _, a := range attrs {
		s = s.With(a)
	}
	return s
}

// AllAttributes holds every attribute a mesh can supply.
const AllAttributes AttributeSet = 1<<AttributeCount - 1

func (s AttributeSet) Has(a Attribute) bool {
	return s&(1<<a) != 0
}

func (s AttributeSet) With(a Attribute) AttributeSet {
	return s | 1<<a
}

// Each calls fn for every member in stream order.
func (s AttributeSet) Each(fn func(a Attribute)) {
	for a := AttributePosition; a < AttributeCount; a++ {
		if s.Has(a) {
			fn(a)
		}
	}
}

func (s AttributeSet) String() string {
	var names []string
	s.Each(func(a Attribute) { names = append(names, a.String()) })
	return "{" + strings.Join(names, ",") + "}"
}

// inputPrefixes are stripped from shader input names before matching. The
// longest prefixes come first.
var inputPrefixes = []string{"in.var.", "in_", "a_", "v_", "in"}

var attributeAliases = map[string]Attribute{
	"position": AttributePosition,
	"pos":      AttributePosition,
	"vertex":   AttributePosition,
	"normal":   AttributeNormal,
	"norm":     AttributeNormal,
	"tangent":  AttributeTangent,
	"color":    AttributeColor,
	"colour":   AttributeColor,
	"col":      AttributeColor,
	"uv":       AttributeUV0,
	"texcoord": AttributeUV0,
}

// MatchAttribute maps a shader input name such as "in_position",
// "inTexCoord1" or "in.var.NORMAL" to its attribute.
func MatchAttribute(name string) (Attribute, bool) {
	n := strings.ToLower(name)
	for _, p := range inputPrefixes {
		if strings.HasPrefix(n, p) && len(n) > len(p) {
			if a, ok := matchBase(n[len(p):]); ok {
				return a, true
			}
		}
	}
	return matchBase(n)
}

func matchBase(n string) (Attribute, bool) {
	if a, ok := attributeAliases[n]; ok {
		return a, true
	}
	for _, base := range []string{"uv", "texcoord"} {
		if !strings.HasPrefix(n, base) {
			continue
		}
		rest := strings.TrimPrefix(n[len(base):], "_")
		if len(rest) == 1 && rest[0] >= '0' && rest[0] < '0'+MaxUVChannels {
			return UV(int(rest[0] - '0')), true
		}
	}
	return 0, false
}
