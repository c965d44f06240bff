// Package eventRouter composes the FLAGSHIP core: it signs one SET per
// matching stream, records the delivery ledger rows and drives immediate
// push delivery. The delivery client and the queue stay independent layers;
// this router is the caller that wires a final push outcome to one ledger
// write.
package eventRouter

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grcorsair/flagship/internal/model"
	"github.com/grcorsair/flagship/internal/providers/dbProviders"
	"github.com/grcorsair/flagship/pkg/goSet"
)

var routerLog = log.New(os.Stdout, "ROUTER: ", log.Ldate|log.Ltime)

// Pusher is the delivery capability the router needs for push streams.
type Pusher interface {
	PushEvent(endpoint string, setToken string) error
}

/*
DeliveryRecord reports the outcome of one stream's fan-out. Err is non-nil
when a push attempt ultimately failed; the failure is also recorded on the
queue row, never swallowed.
*/
type DeliveryRecord struct {
	StreamId  string `json:"stream_id"`
	Jti       string `json:"jti"`
	QueueId   string `json:"queue_id"`
	Delivered bool   `json:"delivered"`
	Err       error  `json:"-"`
}

type Router struct {
	registry dbProviders.StreamRegistry
	queue    dbProviders.DeliveryQueue
	pusher   Pusher
	keys     goSet.KeyProvider

	issuer          string
	defaultAudience string
	retryDelay      time.Duration

	eventsIn, eventsOut prometheus.Counter
}

func NewRouter(registry dbProviders.StreamRegistry, queue dbProviders.DeliveryQueue, pusher Pusher, keys goSet.KeyProvider, issuer string, defaultAudience string) *Router {
	return &Router{
		registry:        registry,
		queue:           queue,
		pusher:          pusher,
		keys:            keys,
		issuer:          issuer,
		defaultAudience: defaultAudience,
		retryDelay:      time.Minute,
	}
}

// SetEventCounters wires the Prometheus counters. The router tolerates nil
// counters during startup ordering.
func (r *Router) SetEventCounters(inCounter, outCounter prometheus.Counter) {
	r.eventsIn = inCounter
	r.eventsOut = outCounter
}

func (r *Router) incrementIn() {
	if r.eventsIn != nil {
		r.eventsIn.Inc()
	}
}

func (r *Router) incrementOut() {
	if r.eventsOut != nil {
		r.eventsOut.Inc()
	}
}

/*
PublishEvent fans one event out to every subscribed, non-deleted stream.
Each target gets its own SET (the aud claim follows the stream's configured
audience) and one pending queue row. Active push streams are delivered
immediately: success marks the row delivered, a final client error marks it
failed with a retry hint and is reported on the stream's DeliveryRecord.
Paused streams only accumulate queue rows.
*/
func (r *Router) PublishEvent(event model.EventData) ([]DeliveryRecord, error) {
	r.incrementIn()

	streams, err := r.registry.ListStreams()
	if err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}

	var records []DeliveryRecord
	for _, stream := range streams {
		if !r.registry.ShouldDeliver(stream.StreamId, event.EventType()) {
			continue
		}

		audience := stream.Config.Audience
		if audience == "" {
			audience = r.defaultAudience
		}
		set := goSet.CreateSet(event, r.issuer, audience)
		setToken, err := set.JWS(r.keys)
		if err != nil {
			return records, fmt.Errorf("signing event for stream %s: %w", stream.StreamId, err)
		}

		queued, err := r.queue.QueueEvent(stream.StreamId, setToken, set.ID)
		if err != nil {
			return records, fmt.Errorf("queueing event for stream %s: %w", stream.StreamId, err)
		}

		record := DeliveryRecord{
			StreamId: stream.StreamId,
			Jti:      set.ID,
			QueueId:  queued.Id,
		}

		if stream.Config.Delivery.Method == model.DeliveryPush && stream.Status == model.StreamStateActive {
			record.Delivered, record.Err = r.deliverPush(stream, queued)
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Router) deliverPush(stream model.StreamStateRecord, queued *model.QueuedEvent) (bool, error) {
	endpoint := stream.Config.Delivery.EndpointUrl
	err := r.pusher.PushEvent(endpoint, queued.SetToken)
	if err != nil {
		routerLog.Printf("PUSH[%s] Jti[%s] failed: %s", stream.StreamId, queued.Jti, err.Error())
		if markErr := r.queue.MarkFailed(queued.Id, time.Now().Add(r.retryDelay)); markErr != nil {
			routerLog.Printf("PUSH[%s] failed to record failure: %s", stream.StreamId, markErr.Error())
		}
		return false, err
	}

	if err := r.queue.MarkDelivered(queued.Id); err != nil {
		routerLog.Printf("PUSH[%s] failed to record delivery: %s", stream.StreamId, err.Error())
	}
	r.incrementOut()
	routerLog.Printf("PUSH[%s] Jti[%s] delivered to %s", stream.StreamId, queued.Jti, endpoint)
	return true, nil
}

/*
PollStreamEvents returns the pending SETs for one poll stream, excluding any
the receiver has already acknowledged. The rows stay pending until the
acknowledge endpoint records durable processing.
*/
func (r *Router) PollStreamEvents(streamId string, limit int) (*model.PollResponse, error) {
	pending, err := r.queue.GetPendingEventsForStream(streamId, limit)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	for _, rec := range pending {
		acked, err := r.queue.IsAcknowledged(streamId, rec.Jti)
		if err != nil {
			return nil, err
		}
		if acked {
			continue
		}
		sets = append(sets, rec.SetToken)
	}
	return &model.PollResponse{Sets: sets}, nil
}

// AcknowledgeEvent records the receiver's durable processing of one token
// and marks the matching ledger rows delivered.
func (r *Router) AcknowledgeEvent(streamId string, jti string) error {
	if err := r.queue.AcknowledgeEvent(streamId, jti); err != nil {
		return err
	}

	pending, err := r.queue.GetPendingEventsForStream(streamId, 0)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if rec.Jti == jti {
			if err := r.queue.MarkDelivered(rec.Id); err != nil {
				routerLog.Printf("ACK[%s] failed to record delivery of %s: %s", streamId, jti, err.Error())
			}
			r.incrementOut()
		}
	}
	return nil
}
