package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameObjectDefaults(t *testing.T) {
	obj := NewGameObject()
	assert.True(t, obj.Enabled())
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, obj.Scale())
	assert.Equal(t, mgl32.Ident4(), obj.LocalTransform())
	assert.Nil(t, obj.Light())
	assert.Nil(t, obj.Mesh())
}

func TestLocalTransformOrder(t *testing.T) {
	obj := NewGameObject(
		WithPosition(mgl32.Vec3{1, 2, 3}),
		WithRotation(mgl32.Vec3{0, mgl32.DegToRad(90), 0}),
		WithUniformScale(2),
	)
	// Scale, then rotate +X onto -Z, then translate.
	p := obj.LocalTransform().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	assert.True(t, p.ApproxEqualThreshold(mgl32.Vec3{1, 2, 1}, 1e-5), "got %v", p)
}

func TestSetLocalTransformOverride(t *testing.T) {
	obj := NewGameObject(WithPosition(mgl32.Vec3{5, 0, 0}))
	m := mgl32.Translate3D(0, 7, 0)
	obj.SetLocalTransform(m)
	assert.Equal(t, m, obj.LocalTransform())

	obj.SetPosition(mgl32.Vec3{0, 0, 1})
	assert.Equal(t, mgl32.Translate3D(0, 0, 1), obj.LocalTransform())
}

func TestWithLightCopies(t *testing.T) {
	l := light.NewLight(light.TypePoint)
	obj := NewGameObject(WithLight(l))
	l.Color = mgl32.Vec3{}

	require.NotNil(t, obj.Light())
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, obj.Light().Color)

	obj.SetLight(nil)
	assert.Nil(t, obj.Light())
}
