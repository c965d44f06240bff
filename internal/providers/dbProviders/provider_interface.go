package dbProviders

import (
	"errors"
	"time"

	"github.com/grcorsair/flagship/internal/model"
)

var (
	// ErrNotFound is returned by registry and queue mutations on unknown ids.
	ErrNotFound = model.ErrNotFound

	// ErrStreamDeleted is returned when a mutation targets a stream in the
	// terminal deleted state.
	ErrStreamDeleted = model.ErrStreamDeleted

	// ErrConfiguration indicates the provider was constructed with an
	// unusable configuration (e.g. persisted mode without a store handle).
	ErrConfiguration = errors.New("invalid provider configuration")
)

/*
StreamRegistry is the capability contract for subscription stream storage.
Two interchangeable backends exist: mem_provider (process-local map) and
mongo_provider (persisted). The registry exclusively owns StreamStateRecord
documents.
*/
type StreamRegistry interface {
	// CreateStream stores a new stream in the active state under a fresh id.
	CreateStream(config model.StreamConfiguration) (*model.StreamStateRecord, error)

	// UpdateStream merges only the asserted patch fields into the stored
	// record and touches UpdatedAt. Unknown ids return ErrNotFound; deleted
	// streams return ErrStreamDeleted.
	UpdateStream(streamId string, patch model.StreamPatch) (*model.StreamStateRecord, error)

	// DeleteStream moves the stream to the terminal deleted state. Deleting
	// an already deleted stream is a no-op.
	DeleteStream(streamId string) error

	// GetStream returns the record, including deleted streams (audit trail),
	// or (nil, nil) when the id is unknown.
	GetStream(streamId string) (*model.StreamStateRecord, error)

	// GetStreamStatus is a cheap existence probe: the status string, or ""
	// when the id is unknown. It never returns an error.
	GetStreamStatus(streamId string) string

	// ListStreams returns all streams except deleted ones.
	ListStreams() ([]model.StreamStateRecord, error)

	// ShouldDeliver reports whether the stream is active (or paused) and
	// subscribed to eventUri. Unknown and deleted streams report false.
	ShouldDeliver(streamId string, eventUri string) bool
}

/*
DeliveryQueue is the persisted ledger of per-stream SET deliveries plus the
append-only acknowledgment ledger. MarkFailed records attempts and NextRetry
for an external scheduler to consult; the queue defines no scheduling
behavior of its own.
*/
type DeliveryQueue interface {
	QueueEvent(streamId string, setToken string, jti string) (*model.QueuedEvent, error)

	// GetPendingEvents returns up to limit pending rows in roughly insertion
	// order. limit <= 0 selects the default of 100.
	GetPendingEvents(limit int) ([]model.QueuedEvent, error)

	// GetPendingEventsForStream returns the pending rows for one stream in
	// roughly insertion order. limit <= 0 returns them all: a stream's poll
	// and acknowledge paths must see every one of its rows regardless of how
	// much other streams' backlog precedes them in the global scan.
	GetPendingEventsForStream(streamId string, limit int) ([]model.QueuedEvent, error)

	// MarkDelivered is terminal: status delivered, DeliveredAt set.
	MarkDelivered(id string) error

	// MarkFailed sets status failed, increments Attempts and records
	// nextRetry. It does not route the row back to pending.
	MarkFailed(id string, nextRetry time.Time) error

	AcknowledgeEvent(streamId string, jti string) error
	IsAcknowledged(streamId string, jti string) (bool, error)
}
