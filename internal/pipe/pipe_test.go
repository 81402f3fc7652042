package pipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-sbus/sbus/internal/membuf"
)

func TestCreateDeletePipe(t *testing.T) {
	r := NewRegistry(4, 8)
	id, err := r.CreatePipe(2, "P", "APP1")
	require.NoError(t, err)
	assert.True(t, r.IsMatch(id))

	require.NoError(t, r.DeletePipe(id))
	assert.False(t, r.IsMatch(id))
}

func TestCreatePipeMaxPipesMet(t *testing.T) {
	r := NewRegistry(1, 8)
	_, err := r.CreatePipe(2, "A", "APP1")
	require.NoError(t, err)

	_, err = r.CreatePipe(2, "B", "APP1")
	assert.ErrorIs(t, err, ErrMaxPipesMet)
}

func TestStaleHandleAfterDelete(t *testing.T) {
	r := NewRegistry(2, 8)
	id, err := r.CreatePipe(2, "P", "APP1")
	require.NoError(t, err)
	require.NoError(t, r.DeletePipe(id))

	id2, err := r.CreatePipe(2, "P", "APP1")
	require.NoError(t, err)

	assert.False(t, r.IsMatch(id), "old handle must not match the reused slot")
	assert.True(t, r.IsMatch(id2))
}

func TestEnqueueReceiveOrderAndDepth(t *testing.T) {
	r := NewRegistry(2, 8)
	id, err := r.CreatePipe(4, "P", "APP1")
	require.NoError(t, err)

	pool := membuf.NewPool(64)
	for i := 0; i < 3; i++ {
		b := pool.Get(4)
		b.Data[0] = byte(i)
		require.NoError(t, r.Enqueue(id, b))
		b.Release()
	}

	desc := r.Descriptor(id)
	assert.EqualValues(t, 3, desc.CurrentDepth())
	assert.EqualValues(t, 3, desc.PeakDepth())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := r.ReceiveBuffer(ctx, id, Poll)
		require.NoError(t, err)
		assert.Equal(t, byte(i), got.Data[0], "messages must be delivered in publish order")
	}

	_, err = r.ReceiveBuffer(ctx, id, Poll)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEnqueueQueueFull(t *testing.T) {
	r := NewRegistry(1, 8)
	id, err := r.CreatePipe(2, "P", "APP1")
	require.NoError(t, err)

	pool := membuf.NewPool(8)
	for i := 0; i < 2; i++ {
		b := pool.Get(4)
		require.NoError(t, r.Enqueue(id, b))
		b.Release()
	}

	b := pool.Get(4)
	err = r.Enqueue(id, b)
	b.Release()
	assert.ErrorIs(t, err, ErrQueueFull)

	desc := r.Descriptor(id)
	assert.EqualValues(t, 2, desc.CurrentDepth())
	assert.EqualValues(t, 2, desc.PeakDepth())
	assert.EqualValues(t, 1, desc.SendErrors())
}

func TestGetPipeIDByName(t *testing.T) {
	r := NewRegistry(2, 8)
	id, err := r.CreatePipe(2, "named-pipe", "APP1")
	require.NoError(t, err)

	got, ok := r.GetPipeIDByName("named-pipe")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = r.GetPipeIDByName("missing")
	assert.False(t, ok)
}
