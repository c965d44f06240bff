package mongo_provider

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

/*
streamRecord is the stored form of a stream. Config is kept opaque: it is
written as a serialized JSON string, but older records (or records written by
other tooling) may hold a pre-parsed BSON document, so reads must tolerate
both forms. bson.RawValue preserves whichever shape the collection returns.
*/
type streamRecord struct {
	StreamId  string        `bson:"_id"`
	Status    string        `bson:"status"`
	Config    bson.RawValue `bson:"config"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}
