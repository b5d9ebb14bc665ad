package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hostengine/internal/core/ecs"
)

func Test_Run_IntersectsOnEveryTerm(t *testing.T) {
	store := ecs.NewStore()
	a := store.CreateEntity()
	b := store.CreateEntity()

	assert.NoError(t, store.Add(a, "pos", []byte{1}))
	assert.NoError(t, store.Add(a, "vel", []byte{2}))
	assert.NoError(t, store.Add(b, "pos", []byte{3}))
	// b has no "vel", so it must not appear in the result.

	data, err := Run(store, []Term{
		{Component: "pos", Access: ecs.Read},
		{Component: "vel", Access: ecs.Read},
	})
	assert.NoError(t, err)
	assert.Equal(t, []ecs.EntityID{a}, data.Entities)
	assert.Equal(t, [][]byte{{1}}, data.Columns["pos"])
	assert.Equal(t, [][]byte{{2}}, data.Columns["vel"])
}

func Test_Run_EmptyTermsYieldsEmptyData(t *testing.T) {
	store := ecs.NewStore()
	store.CreateEntity()

	data, err := Run(store, nil)
	assert.NoError(t, err)
	assert.Empty(t, data.Entities)
}

func Test_WriteBack_AppliesMutatedWriteColumn(t *testing.T) {
	store := ecs.NewStore()
	e := store.CreateEntity()
	assert.NoError(t, store.Add(e, "health", []byte{100}))

	data, err := Run(store, []Term{{Component: "health", Access: ecs.Write}})
	assert.NoError(t, err)

	data.Columns["health"][0] = []byte{42}
	assert.NoError(t, data.WriteBack())

	val, ok := store.Get(e, "health")
	assert.True(t, ok)
	assert.Equal(t, []byte{42}, val)
}

func Test_WriteBack_ReadTermsAreNeverWritten(t *testing.T) {
	store := ecs.NewStore()
	e := store.CreateEntity()
	assert.NoError(t, store.Add(e, "health", []byte{100}))

	data, err := Run(store, []Term{{Component: "health", Access: ecs.Read}})
	assert.NoError(t, err)

	data.Columns["health"][0] = []byte{0} // mutating a Read column is ignored
	assert.NoError(t, data.WriteBack())

	val, ok := store.Get(e, "health")
	assert.True(t, ok)
	assert.Equal(t, []byte{100}, val)
}

func Test_WriteBack_ShapeMismatchOnTruncatedColumn(t *testing.T) {
	store := ecs.NewStore()
	a := store.CreateEntity()
	b := store.CreateEntity()
	assert.NoError(t, store.Add(a, "health", []byte{1}))
	assert.NoError(t, store.Add(b, "health", []byte{2}))

	data, err := Run(store, []Term{{Component: "health", Access: ecs.Write}})
	assert.NoError(t, err)

	data.Columns["health"] = data.Columns["health"][:1] // guest shrank the column

	err = data.WriteBack()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func Test_Registry_AssignsStableBitsLazily(t *testing.T) {
	reg := NewRegistry()

	pos1, err := reg.BitFor("pos")
	assert.NoError(t, err)
	pos2, err := reg.BitFor("vel")
	assert.NoError(t, err)
	again, err := reg.BitFor("pos")
	assert.NoError(t, err)

	assert.NotEqual(t, pos1, pos2)
	assert.Equal(t, pos1, again)
}

func Test_Registry_MaskCombinesBits(t *testing.T) {
	reg := NewRegistry()

	mask, err := reg.Mask("a", "b")
	assert.NoError(t, err)
	assert.NotZero(t, mask)

	soloA, err := reg.Mask("a")
	assert.NoError(t, err)
	assert.True(t, mask&soloA == soloA)
}

func Test_Registry_RejectsOverCapacity(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < maxComponentTypes; i++ {
		_, err := reg.BitFor(ecs.ComponentID(rune('a') + rune(i)))
		assert.NoError(t, err)
	}

	_, err := reg.BitFor("one-too-many")
	assert.Error(t, err)
}
