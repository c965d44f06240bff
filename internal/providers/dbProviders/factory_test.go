package dbProviders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grcorsair/flagship/internal/model"
)

func TestFactoryMemoryMode(t *testing.T) {
	registry, err := NewStreamRegistry(ModeMemory, nil)
	require.NoError(t, err)
	require.NotNil(t, registry)

	stream, err := registry.CreateStream(model.StreamConfiguration{
		Delivery:        model.DeliveryConfig{Method: model.DeliveryPoll},
		EventsRequested: []string{model.EventSessionRevoked},
		Format:          "jwt",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StreamStateActive, stream.Status)
}

func TestFactoryPersistedWithoutHandleFailsFast(t *testing.T) {
	registry, err := NewStreamRegistry(ModePersisted, nil)
	assert.Nil(t, registry)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFactoryUnknownMode(t *testing.T) {
	_, err := NewStreamRegistry("etcd", nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
