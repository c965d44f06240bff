package mem_provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grcorsair/flagship/internal/model"
)

func testConfig(events ...string) model.StreamConfiguration {
	return model.StreamConfiguration{
		Delivery:        model.DeliveryConfig{Method: model.DeliveryPoll},
		EventsRequested: events,
		Format:          "jwt",
		Audience:        "did:web:receiver.example.com",
	}
}

func TestStreamLifecycle(t *testing.T) {
	provider := Open()

	stream, err := provider.CreateStream(testConfig(model.EventComplianceChange))
	require.NoError(t, err)
	assert.NotEmpty(t, stream.StreamId)
	assert.Equal(t, model.StreamStateActive, stream.Status)
	assert.False(t, stream.CreatedAt.IsZero())

	// Pause, then resume
	updated, err := provider.UpdateStream(stream.StreamId, model.StreamPatch{Status: model.StreamStatePaused})
	require.NoError(t, err)
	assert.Equal(t, model.StreamStatePaused, updated.Status)
	assert.Equal(t, model.StreamStatePaused, provider.GetStreamStatus(stream.StreamId))

	updated, err = provider.UpdateStream(stream.StreamId, model.StreamPatch{Status: model.StreamStateActive})
	require.NoError(t, err)
	assert.Equal(t, model.StreamStateActive, updated.Status)

	// Delete is terminal
	require.NoError(t, provider.DeleteStream(stream.StreamId))
	assert.Equal(t, model.StreamStateDeleted, provider.GetStreamStatus(stream.StreamId))

	_, err = provider.UpdateStream(stream.StreamId, model.StreamPatch{Status: model.StreamStateActive})
	assert.ErrorIs(t, err, model.ErrStreamDeleted)

	// Idempotent delete
	assert.NoError(t, provider.DeleteStream(stream.StreamId))

	// Deleted streams stay retrievable by id but leave listings
	got, err := provider.GetStream(stream.StreamId)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StreamStateDeleted, got.Status)

	listed, err := provider.ListStreams()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestUpdateStreamMergesOnlyProvidedFields(t *testing.T) {
	provider := Open()

	stream, err := provider.CreateStream(model.StreamConfiguration{
		Delivery:        model.DeliveryConfig{Method: model.DeliveryPush, EndpointUrl: "https://receiver.example.com/events"},
		EventsRequested: []string{model.EventColorsChanged},
		Format:          "jwt",
		Audience:        "did:web:receiver.example.com",
	})
	require.NoError(t, err)

	updated, err := provider.UpdateStream(stream.StreamId, model.StreamPatch{
		EventsRequested: []string{model.EventColorsChanged, model.EventSessionRevoked},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{model.EventColorsChanged, model.EventSessionRevoked}, updated.Config.EventsRequested)
	assert.Equal(t, model.DeliveryPush, updated.Config.Delivery.Method, "unspecified delivery retained")
	assert.Equal(t, "https://receiver.example.com/events", updated.Config.Delivery.EndpointUrl)
	assert.Equal(t, "did:web:receiver.example.com", updated.Config.Audience, "unspecified audience retained")
	assert.True(t, updated.UpdatedAt.After(stream.UpdatedAt) || updated.UpdatedAt.Equal(stream.UpdatedAt))
}

func TestUpdateUnknownStream(t *testing.T) {
	provider := Open()
	_, err := provider.UpdateStream("no-such-stream", model.StreamPatch{Format: "jwt"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, provider.DeleteStream("no-such-stream"), model.ErrNotFound)
}

func TestGetStreamMissReturnsNil(t *testing.T) {
	provider := Open()
	got, err := provider.GetStream("no-such-stream")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, "", provider.GetStreamStatus("no-such-stream"))
}

func TestShouldDeliverFiltersByEventType(t *testing.T) {
	provider := Open()

	stream, err := provider.CreateStream(testConfig(model.EventComplianceChange))
	require.NoError(t, err)

	assert.True(t, provider.ShouldDeliver(stream.StreamId, model.EventComplianceChange))
	assert.False(t, provider.ShouldDeliver(stream.StreamId, model.EventCredentialChange))
	assert.False(t, provider.ShouldDeliver("no-such-stream", model.EventComplianceChange))

	require.NoError(t, provider.DeleteStream(stream.StreamId))
	assert.False(t, provider.ShouldDeliver(stream.StreamId, model.EventComplianceChange))
	assert.False(t, provider.ShouldDeliver(stream.StreamId, model.EventCredentialChange))
}

func TestQueueLifecycle(t *testing.T) {
	provider := Open()

	stream, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)

	var queued []*model.QueuedEvent
	for i := 0; i < 3; i++ {
		rec, err := provider.QueueEvent(stream.StreamId, "token", "jti-"+string(rune('a'+i)))
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusPending, rec.Status)
		assert.Equal(t, 0, rec.Attempts)
		queued = append(queued, rec)
	}

	pending, err := provider.GetPendingEvents(10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.NoError(t, provider.MarkDelivered(queued[0].Id))

	pending, err = provider.GetPendingEvents(10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, rec := range pending {
		assert.NotEqual(t, queued[0].Id, rec.Id, "delivered row permanently excluded")
	}

	// Failed rows leave pending as well; the ledger keeps attempts/nextRetry.
	retryAt := time.Now().Add(time.Minute)
	require.NoError(t, provider.MarkFailed(queued[1].Id, retryAt))

	pending, err = provider.GetPendingEvents(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, queued[2].Id, pending[0].Id)
}

func TestGetPendingEventsLimit(t *testing.T) {
	provider := Open()
	stream, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := provider.QueueEvent(stream.StreamId, "token", "jti")
		require.NoError(t, err)
	}
	pending, err := provider.GetPendingEvents(2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestGetPendingEventsForStream(t *testing.T) {
	provider := Open()
	streamA, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)
	streamB, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)

	// A deep backlog on one stream must not hide another stream's rows.
	for i := 0; i < 120; i++ {
		_, err := provider.QueueEvent(streamA.StreamId, "token-a", "jti-a")
		require.NoError(t, err)
	}
	rec, err := provider.QueueEvent(streamB.StreamId, "token-b", "jti-b")
	require.NoError(t, err)

	global, err := provider.GetPendingEvents(0)
	require.NoError(t, err)
	assert.Len(t, global, 100, "global scan caps at the default limit")

	pendingB, err := provider.GetPendingEventsForStream(streamB.StreamId, 0)
	require.NoError(t, err)
	require.Len(t, pendingB, 1)
	assert.Equal(t, rec.Id, pendingB[0].Id)

	pendingA, err := provider.GetPendingEventsForStream(streamA.StreamId, 0)
	require.NoError(t, err)
	assert.Len(t, pendingA, 120, "limit <= 0 returns the stream's whole backlog")

	limited, err := provider.GetPendingEventsForStream(streamA.StreamId, 5)
	require.NoError(t, err)
	assert.Len(t, limited, 5)
}

func TestClosedRowsLeaveScanListButStayInLedger(t *testing.T) {
	provider := Open()
	stream, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)

	delivered, err := provider.QueueEvent(stream.StreamId, "token", "jti-1")
	require.NoError(t, err)
	failed, err := provider.QueueEvent(stream.StreamId, "token", "jti-2")
	require.NoError(t, err)
	open, err := provider.QueueEvent(stream.StreamId, "token", "jti-3")
	require.NoError(t, err)

	require.NoError(t, provider.MarkDelivered(delivered.Id))
	require.NoError(t, provider.MarkFailed(failed.Id, time.Now().Add(time.Minute)))

	// The scan list only carries the live backlog.
	assert.Equal(t, []string{open.Id}, provider.order)

	// Closed rows remain as ledger records.
	assert.Equal(t, model.DeliveryStatusDelivered, provider.queue[delivered.Id].Status)
	assert.Equal(t, model.DeliveryStatusFailed, provider.queue[failed.Id].Status)
}

func TestMarkFailedRecordsLedgerFields(t *testing.T) {
	provider := Open()
	stream, err := provider.CreateStream(testConfig(model.EventColorsChanged))
	require.NoError(t, err)

	rec, err := provider.QueueEvent(stream.StreamId, "token", "jti-1")
	require.NoError(t, err)

	retryAt := time.Now().Add(2 * time.Second)
	require.NoError(t, provider.MarkFailed(rec.Id, retryAt))
	require.NoError(t, provider.MarkFailed(rec.Id, retryAt.Add(2*time.Second)))

	// The queue only records; scheduling belongs elsewhere.
	pending, err := provider.GetPendingEvents(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcknowledgmentIdempotent(t *testing.T) {
	provider := Open()

	acked, err := provider.IsAcknowledged("stream-1", "jti-1")
	require.NoError(t, err)
	assert.False(t, acked)

	require.NoError(t, provider.AcknowledgeEvent("stream-1", "jti-1"))

	acked, err = provider.IsAcknowledged("stream-1", "jti-1")
	require.NoError(t, err)
	assert.True(t, acked)

	// Re-acknowledging is a no-op
	require.NoError(t, provider.AcknowledgeEvent("stream-1", "jti-1"))
	acked, err = provider.IsAcknowledged("stream-1", "jti-1")
	require.NoError(t, err)
	assert.True(t, acked)

	// Scoped per stream
	acked, err = provider.IsAcknowledged("stream-2", "jti-1")
	require.NoError(t, err)
	assert.False(t, acked)
}
