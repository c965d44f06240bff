// Package mem_provider is the in-process backend for the stream registry and
// delivery queue. It backs the "memory" registry mode and serves as the test
// double for everything layered above the store.
//
// Delivered and failed queue rows are retained as the delivery ledger, the
// same as the persisted backend, so memory use grows with event volume.
// Restarting the process is the reset; long-lived deployments should run the
// persisted mode. Only pending rows stay on the scan list, so polling cost
// tracks the live backlog, not history.
package mem_provider

import (
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/grcorsair/flagship/internal/model"
)

// MemProvider holds all records behind one RWMutex so that multi-goroutine
// hosts can share a single instance.
type MemProvider struct {
	mu sync.RWMutex

	streams map[string]*model.StreamStateRecord
	queue   map[string]*model.QueuedEvent
	order   []string // pending queue ids in insertion order
	acks    map[string]time.Time
}

func Open() *MemProvider {
	return &MemProvider{
		streams: map[string]*model.StreamStateRecord{},
		queue:   map[string]*model.QueuedEvent{},
		acks:    map[string]time.Time{},
	}
}

func (m *MemProvider) Name() string { return "mem" }

func (m *MemProvider) Check() error { return nil }

func (m *MemProvider) Close() error { return nil }

func (m *MemProvider) CreateStream(config model.StreamConfiguration) (*model.StreamStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	rec := model.StreamStateRecord{
		StreamId:  ksuid.New().String(),
		Status:    model.StreamStateActive,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.streams[rec.StreamId] = &rec

	result := rec
	return &result, nil
}

func (m *MemProvider) UpdateStream(streamId string, patch model.StreamPatch) (*model.StreamStateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.streams[streamId]
	if !ok {
		return nil, model.ErrNotFound
	}
	if rec.Status == model.StreamStateDeleted {
		return nil, model.ErrStreamDeleted
	}

	applyPatch(rec, patch)
	rec.UpdatedAt = time.Now()

	result := *rec
	return &result, nil
}

// applyPatch merges only the asserted patch fields; everything else keeps
// its stored value.
func applyPatch(rec *model.StreamStateRecord, patch model.StreamPatch) {
	if patch.Status == model.StreamStateActive || patch.Status == model.StreamStatePaused {
		rec.Status = patch.Status
	}
	if patch.Delivery != nil {
		rec.Config.Delivery = *patch.Delivery
	}
	if patch.EventsRequested != nil {
		rec.Config.EventsRequested = patch.EventsRequested
	}
	if patch.Format != "" {
		rec.Config.Format = patch.Format
	}
	if patch.Audience != "" {
		rec.Config.Audience = patch.Audience
	}
}

func (m *MemProvider) DeleteStream(streamId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.streams[streamId]
	if !ok {
		return model.ErrNotFound
	}
	if rec.Status != model.StreamStateDeleted {
		rec.Status = model.StreamStateDeleted
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemProvider) GetStream(streamId string) (*model.StreamStateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.streams[streamId]
	if !ok {
		return nil, nil
	}
	result := *rec
	return &result, nil
}

func (m *MemProvider) GetStreamStatus(streamId string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.streams[streamId]
	if !ok {
		return ""
	}
	return rec.Status
}

func (m *MemProvider) ListStreams() ([]model.StreamStateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []model.StreamStateRecord
	for _, rec := range m.streams {
		if rec.Status == model.StreamStateDeleted {
			continue
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StreamId < recs[j].StreamId })
	return recs, nil
}

func (m *MemProvider) ShouldDeliver(streamId string, eventUri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.streams[streamId]
	if !ok || rec.Status == model.StreamStateDeleted {
		return false
	}
	return rec.Config.WantsEvent(eventUri)
}

func (m *MemProvider) QueueEvent(streamId string, setToken string, jti string) (*model.QueuedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := model.QueuedEvent{
		Id:          ksuid.New().String(),
		StreamId:    streamId,
		SetToken:    setToken,
		Jti:         jti,
		Status:      model.DeliveryStatusPending,
		Attempts:    0,
		MaxAttempts: model.DefaultMaxAttempts,
		CreatedAt:   time.Now(),
	}
	m.queue[rec.Id] = &rec
	m.order = append(m.order, rec.Id)

	result := rec
	return &result, nil
}

func (m *MemProvider) GetPendingEvents(limit int) ([]model.QueuedEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []model.QueuedEvent
	for _, id := range m.order {
		rec := m.queue[id]
		if rec.Status != model.DeliveryStatusPending {
			continue
		}
		pending = append(pending, *rec)
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (m *MemProvider) GetPendingEventsForStream(streamId string, limit int) ([]model.QueuedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []model.QueuedEvent
	for _, id := range m.order {
		rec := m.queue[id]
		if rec.Status != model.DeliveryStatusPending || rec.StreamId != streamId {
			continue
		}
		pending = append(pending, *rec)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (m *MemProvider) MarkDelivered(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.queue[id]
	if !ok {
		return model.ErrNotFound
	}
	now := time.Now()
	rec.Status = model.DeliveryStatusDelivered
	rec.DeliveredAt = &now
	m.dropFromOrder(id)
	return nil
}

func (m *MemProvider) MarkFailed(id string, nextRetry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.queue[id]
	if !ok {
		return model.ErrNotFound
	}
	rec.Status = model.DeliveryStatusFailed
	rec.Attempts++
	retry := nextRetry
	rec.NextRetry = &retry
	m.dropFromOrder(id)
	return nil
}

// dropFromOrder removes a closed row from the pending scan list. The row
// itself stays in the queue map as the ledger record. Caller holds the lock.
func (m *MemProvider) dropFromOrder(id string) {
	for i, queued := range m.order {
		if queued == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *MemProvider) AcknowledgeEvent(streamId string, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := streamId + "/" + jti
	if _, ok := m.acks[key]; !ok {
		m.acks[key] = time.Now()
	}
	return nil
}

func (m *MemProvider) IsAcknowledged(streamId string, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.acks[streamId+"/"+jti]
	return ok, nil
}
