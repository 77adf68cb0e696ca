package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_Size(t *testing.T) {
	assert.Zero(t, Chunk(nil).Size())
	assert.Equal(t, int64(5), Chunk("12345").Size())
}

func TestChunk_Clone(t *testing.T) {
	t.Run("nil chunk", func(t *testing.T) {
		assert.Nil(t, Chunk(nil).Clone())
	})
	t.Run("clone is independent", func(t *testing.T) {
		original := Chunk("abc")
		clone := original.Clone()
		original[0] = 'z'
		assert.True(t, clone.Equal(Chunk("abc")), "Clone should not observe writes to the original")
	})
}

func TestChunk_Equal(t *testing.T) {
	assert.True(t, Chunk("same").Equal(Chunk("same")))
	assert.True(t, Chunk(nil).Equal(Chunk{}))
	assert.False(t, Chunk("a").Equal(Chunk("b")))
}
