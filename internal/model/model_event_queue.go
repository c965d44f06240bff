package model

import "time"

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"

	// DefaultMaxAttempts is recorded on new queue rows for an external
	// scheduler to consult. The queue itself never enforces it.
	DefaultMaxAttempts = 3
)

/*
QueuedEvent is one row of the delivery ledger: a signed SET awaiting (or past)
delivery to one stream. MarkDelivered is terminal. MarkFailed increments
Attempts and records NextRetry but does not reschedule; redelivery timing
belongs to whatever component reads the ledger.
*/
type QueuedEvent struct {
	Id          string     `json:"id" bson:"_id"`
	StreamId    string     `json:"stream_id" bson:"sid"`
	SetToken    string     `json:"set_token" bson:"set_token"`
	Jti         string     `json:"jti" bson:"jti"`
	Status      string     `json:"status" bson:"status"`
	Attempts    int        `json:"attempts" bson:"attempts"`
	MaxAttempts int        `json:"max_attempts" bson:"max_attempts"`
	NextRetry   *time.Time `json:"next_retry,omitempty" bson:"next_retry,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
}

// Acknowledgment is an append-only ledger entry: the receiver of streamId has
// durably processed the token identified by jti.
type Acknowledgment struct {
	StreamId string    `json:"stream_id" bson:"sid"`
	Jti      string    `json:"jti" bson:"jti"`
	AckDate  time.Time `json:"ack_date" bson:"ack_date"`
}
