package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
	"github.com/spaghettifunk/prism/engine/renderer/reflection"
)

// Push constant members filled per draw, by name. Anything else in the
// block is left zero.
var (
	timeNames           = []string{"time", "elapsed"}
	deltaTimeNames      = []string{"deltaTime", "delta_time", "dt"}
	worldNames          = []string{"world", "model"}
	viewProjectionNames = []string{"viewProjection", "view_projection", "viewProj"}
	lightNames          = []string{"lightViewProjection", "light_view_projection"}
)

// pushWriter encodes push constant blocks into a buffer reused across draws.
type pushWriter struct {
	buf []byte
}

func (w *pushWriter) encode(p *pipeline.Pipeline, packet *RenderPacket, world mgl32.Mat4) []byte {
	layout := p.PushConstants
	if layout == nil {
		return nil
	}
	if cap(w.buf) < int(layout.Size) {
		w.buf = make([]byte, layout.Size)
	}
	w.buf = w.buf[:layout.Size]
	clear(w.buf)

	w.putFloat(layout, timeNames, float32(packet.Time))
	w.putFloat(layout, deltaTimeNames, float32(packet.DeltaTime))
	w.putMat4(layout, worldNames, world)
	w.putMat4(layout, viewProjectionNames, orIdentity(packet.ViewProjection))
	w.putMat4(layout, lightNames, orIdentity(packet.LightViewProjection))
	return w.buf
}

func orIdentity(m mgl32.Mat4) mgl32.Mat4 {
	if m == (mgl32.Mat4{}) {
		return mgl32.Ident4()
	}
	return m
}

// member returns the first of names present in layout with exactly size
// bytes.
func member(layout *reflection.BindingLayout, names []string, size uint32) (reflection.Member, bool) {
	for _, n := range names {
		if m, err := layout.Lookup(n); err == nil && m.Size == size {
			return m, true
		}
	}
	return reflection.Member{}, false
}

func (w *pushWriter) putFloat(layout *reflection.BindingLayout, names []string, v float32) {
	if m, ok := member(layout, names, 4); ok {
		binary.LittleEndian.PutUint32(w.buf[m.Offset:], math.Float32bits(v))
	}
}

func (w *pushWriter) putMat4(layout *reflection.BindingLayout, names []string, v mgl32.Mat4) {
	m, ok := member(layout, names, 64)
	if !ok {
		return
	}
	for i, f := range v {
		binary.LittleEndian.PutUint32(w.buf[m.Offset+uint32(4*i):], math.Float32bits(f))
	}
}
