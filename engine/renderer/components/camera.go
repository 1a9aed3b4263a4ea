package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/math"
)

/**
 * @brief Represents a perspective camera. The view matrix is rebuilt lazily
 * whenever the position or rotation changed since it was last read.
 */
type Camera struct {
	/** @brief The position of this camera. Use SetPosition so the view matrix is rebuilt. */
	Position mgl32.Vec3
	/** @brief The rotation of this camera using Euler angles (pitch, yaw, roll), in radians. */
	EulerRotation mgl32.Vec3
	/** @brief Vertical field of view, in radians. */
	FOV       float32
	Near, Far float32

	isDirty    bool
	viewMatrix mgl32.Mat4
}

// Pitch is clamped just short of straight up or down to avoid gimbal lock.
const pitchLimit = float32(1.55334306) // 89 degrees

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.FOV = mgl32.DegToRad(45)
	c.Near = 0.1
	c.Far = 1000
	c.isDirty = false
	c.viewMatrix = mgl32.Ident4()
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.isDirty = true
}

func (c *Camera) rotation() mgl32.Mat4 {
	return mgl32.HomogRotate3DY(c.EulerRotation.Y()).
		Mul4(mgl32.HomogRotate3DX(c.EulerRotation.X())).
		Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
}

// View returns the world to view transform.
func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		world := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z()).Mul4(c.rotation())
		c.viewMatrix = world.Inv()
		c.isDirty = false
	}
	return c.viewMatrix
}

// Projection returns a perspective projection for the given aspect ratio
// with the Y axis pointing down in clip space, as Vulkan expects.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	p := mgl32.Perspective(c.FOV, aspect, c.Near, c.Far)
	p[5] *= -1
	return p
}

// ViewProjection returns Projection(aspect) * View().
func (c *Camera) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.Projection(aspect).Mul4(c.View())
}

func (c *Camera) direction(local mgl32.Vec3) mgl32.Vec3 {
	return c.rotation().Mul4x1(local.Vec4(0)).Vec3()
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.direction(mgl32.Vec3{0, 0, -1})
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.direction(mgl32.Vec3{1, 0, 0})
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.Mul(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Forward(), -amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Right(), -amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(mgl32.Vec3{0, 1, 0}, amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(mgl32.Vec3{0, 1, 0}, -amount) }

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0]+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}
