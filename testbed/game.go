package testbed

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/mesh"
)

// lightDirection matches light_direction in assets/materials/lit.toml.
var lightDirection = mgl32.Vec3{-0.4, -1.0, -0.3}

type TestGame struct {
	*engine.Game
}

type object struct {
	mesh   renderer.MeshHandle
	world  mgl32.Mat4
	spin   float32
	angle  float32
	offset mgl32.Vec3
}

type gameState struct {
	worldCamera *components.Camera
	aspect      float32

	lit     renderer.MaterialHandle
	caster  renderer.MaterialHandle
	lightVP mgl32.Mat4
	objects []*object
}

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: configPath,
				Name:       "Prism Testbed",
			},
			State: &gameState{aspect: 1},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	sm := g.SystemManager

	s.worldCamera = sm.CameraSystem.GetDefault()
	s.worldCamera.SetPosition(mgl32.Vec3{0, 3, 10})
	s.worldCamera.SetEulerRotation(mgl32.Vec3{mgl32.DegToRad(-15), 0, 0})

	var err error
	if s.lit, err = sm.MaterialSystem.Acquire("lit"); err != nil {
		return err
	}
	if s.caster, err = sm.MaterialSystem.Acquire("shadow_caster"); err != nil {
		core.LogWarn("shadows disabled: %s", err.Error())
		s.caster = 0
	}
	s.lightVP = lightViewProjection(lightDirection)
	if inst, ok := sm.RendererSystem.Renderer().Material(s.lit); ok {
		if err := inst.SetUniform("light_view_projection", s.lightVP); err != nil {
			return err
		}
	}

	cube := mesh.Cube("test_cube")
	cube.SetUniformColor(mgl32.Vec4{0.9, 0.4, 0.2, 1})
	cubeHandle, err := sm.MeshSystem.Register(cube)
	if err != nil {
		return err
	}
	ground := mesh.Quad("ground").
		Transform(mgl32.HomogRotate3DX(mgl32.DegToRad(-90))).
		Scale(mgl32.Vec3{20, 1, 20})
	ground.SetUniformColor(mgl32.Vec4{0.6, 0.6, 0.6, 1})
	groundHandle, err := sm.MeshSystem.Register(ground)
	if err != nil {
		return err
	}

	s.objects = []*object{
		{mesh: groundHandle, offset: mgl32.Vec3{0, -1, 0}},
		{mesh: cubeHandle, spin: 0.5},
		{mesh: cubeHandle, spin: -1.0, offset: mgl32.Vec3{3, 0, -2}},
		{mesh: cubeHandle, spin: 0.25, offset: mgl32.Vec3{-3, 0.5, -1}},
	}
	for _, o := range s.objects {
		o.world = mgl32.Translate3D(o.offset.X(), o.offset.Y(), o.offset.Z())
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	for _, o := range s.objects {
		if o.spin == 0 {
			continue
		}
		o.angle += o.spin * float32(deltaTime)
		o.world = mgl32.Translate3D(o.offset.X(), o.offset.Y(), o.offset.Z()).Mul4(mgl32.HomogRotate3DY(o.angle))
	}
	return nil
}

func (g *TestGame) Render(packet *renderer.RenderPacket, deltaTime float64) error {
	s := g.state()
	packet.ViewProjection = s.worldCamera.ViewProjection(s.aspect)
	packet.LightViewProjection = s.lightVP
	for _, o := range s.objects {
		packet.Drawables = append(packet.Drawables, renderer.Drawable{Mesh: o.mesh, Material: s.lit, World: o.world})
		if s.caster != 0 {
			packet.Drawables = append(packet.Drawables, renderer.Drawable{Mesh: o.mesh, Material: s.caster, World: o.world})
		}
	}
	return nil
}

// lightViewProjection frames the scene from a directional light, mapped to
// Vulkan clip space: Y down and depth in [0, 1].
func lightViewProjection(direction mgl32.Vec3) mgl32.Mat4 {
	eye := direction.Normalize().Mul(-20)
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Ortho(-12, 12, -12, 12, 1, 40)
	clip := mgl32.Mat4{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, 0.5, 0,
		0, 0, 0.5, 1,
	}
	return clip.Mul4(proj).Mul4(view)
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	if height == 0 {
		return nil
	}
	g.state().aspect = float32(width) / float32(height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	s := g.state()
	if s.lit != 0 {
		if err := g.SystemManager.MaterialSystem.Release(s.lit); err != nil {
			return err
		}
	}
	if s.caster != 0 {
		return g.SystemManager.MaterialSystem.Release(s.caster)
	}
	return nil
}
