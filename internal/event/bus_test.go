package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_PublishInOrder(t *testing.T) {
	bus := NewInMemoryBus()

	var got []int
	bus.Subscribe(TransferProgress, func(e Event) {
		got = append(got, e.Payload.(int))
	})

	for i := 0; i < 5; i++ {
		bus.Publish(TransferProgress, "a", i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestInMemoryBus_TopicsAreIsolated(t *testing.T) {
	bus := NewInMemoryBus()

	var status, finished int
	bus.Subscribe(TransferStatus, func(Event) { status++ })
	bus.Subscribe(TransferFinished, func(Event) { finished++ })

	bus.Publish(TransferStatus, "a", nil)
	bus.Publish(TransferStatus, "a", nil)
	bus.Publish(TransferFinished, "a", nil)

	assert.Equal(t, 2, status)
	assert.Equal(t, 1, finished)
}

func TestInMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()

	var a, b int
	idA := bus.Subscribe(TransferStatus, func(Event) { a++ })
	bus.Subscribe(TransferStatus, func(Event) { b++ })
	require.NotEmpty(t, idA)

	bus.Publish(TransferStatus, "x", nil)
	bus.Unsubscribe(TransferStatus, idA)
	bus.Publish(TransferStatus, "x", nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestSubscribeAll(t *testing.T) {
	bus := NewInMemoryBus()

	var seen []Type
	cancel := SubscribeAll(bus, func(e Event) { seen = append(seen, e.Type) })

	bus.Publish(TransferProgress, "x", nil)
	bus.Publish(TransferStatus, "x", nil)
	bus.Publish(TransferFinished, "x", nil)
	cancel()
	bus.Publish(TransferStatus, "x", nil)

	assert.Equal(t, []Type{TransferProgress, TransferStatus, TransferFinished}, seen)
}
