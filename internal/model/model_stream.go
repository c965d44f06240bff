package model

import "time"

const (
	DeliveryPush = "push"
	DeliveryPoll = "poll"

	StreamStateActive  = "active"
	StreamStatePaused  = "paused"
	StreamStateDeleted = "deleted"
)

// DeliveryConfig selects how a receiver obtains events. EndpointUrl is
// required when Method is DeliveryPush and ignored for DeliveryPoll.
type DeliveryConfig struct {
	Method      string `json:"method" bson:"method"`
	EndpointUrl string `json:"endpoint_url,omitempty" bson:"endpoint_url,omitempty"`
}

type StreamConfiguration struct {
	Delivery        DeliveryConfig `json:"delivery" bson:"delivery"`
	EventsRequested []string       `json:"events_requested" bson:"events_requested"`
	Format          string         `json:"format" bson:"format"`
	Audience        string         `json:"audience,omitempty" bson:"audience,omitempty"`
}

// WantsEvent reports whether eventUri is in EventsRequested.
func (c StreamConfiguration) WantsEvent(eventUri string) bool {
	for _, requested := range c.EventsRequested {
		if requested == eventUri {
			return true
		}
	}
	return false
}

// StreamStateRecord is the registry's record of one subscription stream.
// StreamId is immutable once assigned. StreamStateDeleted is terminal: the
// record remains retrievable by id as an audit trail but leaves listings
// and delivery matching.
type StreamStateRecord struct {
	StreamId  string              `json:"stream_id"`
	Status    string              `json:"status"`
	Config    StreamConfiguration `json:"config"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

/*
StreamPatch carries a partial update. Nil or zero members leave the stored
value untouched; only asserted fields are merged. Status may only move a
stream between active and paused.
*/
type StreamPatch struct {
	Status          string          `json:"status,omitempty"`
	Delivery        *DeliveryConfig `json:"delivery,omitempty"`
	EventsRequested []string        `json:"events_requested,omitempty"`
	Format          string          `json:"format,omitempty"`
	Audience        string          `json:"audience,omitempty"`
}
