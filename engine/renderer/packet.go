package renderer

import "github.com/go-gl/mathgl/mgl32"

type MeshHandle uint32

type MaterialHandle uint32

/** @brief One draw: a registered mesh drawn with a registered material instance. */
type Drawable struct {
	Mesh     MeshHandle
	Material MaterialHandle
	World    mgl32.Mat4
}

/** @brief Everything Render needs to produce one frame. */
type RenderPacket struct {
	// Seconds since the previous frame.
	DeltaTime float64
	// Seconds since the application started.
	Time float64
	// ViewProjection is pushed to shaders that declare it. Zero means identity.
	ViewProjection mgl32.Mat4
	// LightViewProjection is the shadow casting light's transform, pushed to
	// shaders that declare it. Zero means identity.
	LightViewProjection mgl32.Mat4
	Drawables           []Drawable
}
