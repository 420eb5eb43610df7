package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/handle"
	"github.com/edgekernel/core/pkg/scope"
	"github.com/edgekernel/core/pkg/value"
)

func TestCallTopicFirstUsesNewestSubscriber(t *testing.T) {
	table := handle.New()
	root := table.CreateRoot()
	bus := NewBus(table)

	bus.Subscribe(root, "greet", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		return "old", nil
	})
	bus.Subscribe(root, "greet", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		return "new", nil
	})

	f := bus.CallTopicFirst(nil, "greet", nil)
	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestCallTopicAllDeliversLIFOToEverySubscriber(t *testing.T) {
	table := handle.New()
	root := table.CreateRoot()
	bus := NewBus(table)

	var order []string
	bus.Subscribe(root, "tick", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		order = append(order, "first-subscribed")
		return nil, nil
	})
	bus.Subscribe(root, "tick", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		order = append(order, "second-subscribed")
		return nil, nil
	})

	futures := bus.CallTopicAll(nil, "tick", nil)
	require.Len(t, futures, 2)
	for _, f := range futures {
		assert.True(t, f.Wait(time.Second))
	}
	assert.Equal(t, []string{"second-subscribed", "first-subscribed"}, order)
}

func TestCallTopicFirstWithNoSubscriberFails(t *testing.T) {
	table := handle.New()
	bus := NewBus(table)

	f := bus.CallTopicFirst(nil, "nobody-home", nil)
	_, err := f.Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.NoSubscriberError))
}

func TestPanicInListenerBecomesCallbackError(t *testing.T) {
	table := handle.New()
	root := table.CreateRoot()
	bus := NewBus(table)

	bus.Subscribe(root, "boom", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		panic("kaboom")
	})

	f := bus.CallTopicFirst(nil, "boom", nil)
	_, err := f.Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.CallbackError))
}

func TestUnsubscribeRemovesListenerAndReleasesHandle(t *testing.T) {
	table := handle.New()
	root := table.CreateRoot()
	bus := NewBus(table)

	sub := bus.Subscribe(root, "greet", func(ctx *scope.ExecContext, topic string, data value.Container) (any, error) {
		return "hi", nil
	})
	bus.Unsubscribe(root, sub)

	f := bus.CallTopicFirst(nil, "greet", nil)
	_, err := f.Value()
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.NoSubscriberError))
	assert.Equal(t, 0, root.Len())
}
