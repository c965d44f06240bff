package mongo_provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grcorsair/flagship/internal/model"
)

const (
	CDbName      = "flagship"
	CDbStreamCfg = "streams"
	CDbQueue     = "eventQueue"
	CDbAcks      = "acks"

	CEnvDbName = "FLAGSHIP_DBNAME"

	defaultPendingLimit = 100
)

var dbLog = log.New(os.Stdout, "MONGO:  ", log.Ldate|log.Ltime)

// MongoProvider is the persisted backend for the stream registry and the
// delivery queue. Individual methods are independent statements; atomicity
// beyond a single statement is delegated to the store.
type MongoProvider struct {
	DbUrl  string
	DbName string

	client    *mongo.Client
	db        *mongo.Database
	streamCol *mongo.Collection
	queueCol  *mongo.Collection
	ackCol    *mongo.Collection
	dbInit    bool
}

/*
Open connects to Mongo at mongoUrl and initializes the FLAGSHIP collections.
The database name defaults to "flagship" and may be overridden with the
FLAGSHIP_DBNAME environment variable or the dbName parameter.
*/
func Open(mongoUrl string, dbName string) (*MongoProvider, error) {
	ctx := context.Background()

	if dbName == "" {
		envName, defined := os.LookupEnv(CEnvDbName)
		if defined {
			dbName = envName
		} else {
			dbName = CDbName
		}
	}

	if mongoUrl == "" {
		mongoUrl = "mongodb://localhost:27017/"
		dbLog.Printf("Defaulting Mongo Database to local: %s", mongoUrl)
	}

	opts := options.Client().ApplyURI(mongoUrl)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		dbLog.Printf("Error connecting to: %s.", mongoUrl)
		return nil, err
	}

	m := MongoProvider{
		DbName: dbName,
		DbUrl:  mongoUrl,
		client: client,
	}
	m.initialize(ctx)

	return &m, nil
}

func (m *MongoProvider) initialize(ctx context.Context) {
	m.db = m.client.Database(m.DbName)
	m.streamCol = m.db.Collection(CDbStreamCfg)
	m.queueCol = m.db.Collection(CDbQueue)
	m.ackCol = m.db.Collection(CDbAcks)

	indexSid := mongo.IndexModel{
		Keys: bson.D{{Key: "sid", Value: 1}, {Key: "status", Value: 1}},
	}
	_, err := m.queueCol.Indexes().CreateOne(ctx, indexSid)
	if err != nil {
		dbLog.Println(err.Error())
	}

	// The ack ledger is append-only and unique per (sid, jti).
	ackIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "sid", Value: 1}, {Key: "jti", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err = m.ackCol.Indexes().CreateOne(ctx, ackIndex)
	if err != nil {
		dbLog.Println(err.Error())
	}
	m.dbInit = true
}

func (m *MongoProvider) Name() string { return m.DbName }

func (m *MongoProvider) Check() error {
	return m.client.Ping(context.Background(), nil)
}

// ResetDb drops the database. Used by tests only.
func (m *MongoProvider) ResetDb(initialize bool) error {
	err := m.db.Drop(context.TODO())
	m.dbInit = false
	if initialize {
		m.initialize(context.TODO())
	}
	return err
}

func (m *MongoProvider) Close() error {
	return m.client.Disconnect(context.Background())
}

/*
encodeConfig serializes the stream configuration as an opaque JSON string.
decodeConfig accepts the value back in either form: the string written here,
or a pre-parsed BSON document surfaced by the column type or by records other
tooling wrote.
*/
func encodeConfig(config model.StreamConfiguration) (string, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("serializing stream config: %w", err)
	}
	return string(raw), nil
}

func decodeConfig(raw bson.RawValue) (model.StreamConfiguration, error) {
	var config model.StreamConfiguration
	switch raw.Type {
	case bsontype.String:
		if err := json.Unmarshal([]byte(raw.StringValue()), &config); err != nil {
			return config, fmt.Errorf("parsing stream config string: %w", err)
		}
		return config, nil
	case bsontype.EmbeddedDocument:
		if err := bson.Unmarshal(raw.Value, &config); err != nil {
			return config, fmt.Errorf("parsing stream config document: %w", err)
		}
		return config, nil
	default:
		return config, fmt.Errorf("unexpected stream config type %s", raw.Type)
	}
}

func (r streamRecord) toModel() (model.StreamStateRecord, error) {
	config, err := decodeConfig(r.Config)
	if err != nil {
		return model.StreamStateRecord{}, err
	}
	return model.StreamStateRecord{
		StreamId:  r.StreamId,
		Status:    r.Status,
		Config:    config,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (m *MongoProvider) CreateStream(config model.StreamConfiguration) (*model.StreamStateRecord, error) {
	cfgJson, err := encodeConfig(config)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	streamId := ksuid.New().String()
	doc := bson.D{
		{Key: "_id", Value: streamId},
		{Key: "status", Value: model.StreamStateActive},
		{Key: "config", Value: cfgJson},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}
	if _, err := m.streamCol.InsertOne(context.TODO(), doc); err != nil {
		return nil, err
	}
	return &model.StreamStateRecord{
		StreamId:  streamId,
		Status:    model.StreamStateActive,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (m *MongoProvider) getStreamRecord(streamId string) (*model.StreamStateRecord, error) {
	res := m.streamCol.FindOne(context.TODO(), bson.M{"_id": streamId})
	if res.Err() == mongo.ErrNoDocuments {
		return nil, nil
	}
	if res.Err() != nil {
		return nil, res.Err()
	}

	var rec streamRecord
	if err := res.Decode(&rec); err != nil {
		dbLog.Printf("Error parsing stream record: %s", err.Error())
		return nil, err
	}
	state, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *MongoProvider) UpdateStream(streamId string, patch model.StreamPatch) (*model.StreamStateRecord, error) {
	state, err := m.getStreamRecord(streamId)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, model.ErrNotFound
	}
	if state.Status == model.StreamStateDeleted {
		return nil, model.ErrStreamDeleted
	}

	if patch.Status == model.StreamStateActive || patch.Status == model.StreamStatePaused {
		state.Status = patch.Status
	}
	if patch.Delivery != nil {
		state.Config.Delivery = *patch.Delivery
	}
	if patch.EventsRequested != nil {
		state.Config.EventsRequested = patch.EventsRequested
	}
	if patch.Format != "" {
		state.Config.Format = patch.Format
	}
	if patch.Audience != "" {
		state.Config.Audience = patch.Audience
	}
	state.UpdatedAt = time.Now()

	cfgJson, err := encodeConfig(state.Config)
	if err != nil {
		return nil, err
	}
	update := bson.M{"$set": bson.M{
		"status":     state.Status,
		"config":     cfgJson,
		"updated_at": state.UpdatedAt,
	}}
	if _, err := m.streamCol.UpdateOne(context.TODO(), bson.M{"_id": streamId}, update); err != nil {
		return nil, fmt.Errorf("stream update error: %w", err)
	}
	return state, nil
}

func (m *MongoProvider) DeleteStream(streamId string) error {
	// Deleted is terminal but the record is retained as an audit trail.
	update := bson.M{"$set": bson.M{
		"status":     model.StreamStateDeleted,
		"updated_at": time.Now(),
	}}
	res, err := m.streamCol.UpdateOne(context.TODO(), bson.M{"_id": streamId}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *MongoProvider) GetStream(streamId string) (*model.StreamStateRecord, error) {
	return m.getStreamRecord(streamId)
}

func (m *MongoProvider) GetStreamStatus(streamId string) string {
	state, err := m.getStreamRecord(streamId)
	if err != nil || state == nil {
		return ""
	}
	return state.Status
}

func (m *MongoProvider) ListStreams() ([]model.StreamStateRecord, error) {
	filter := bson.M{"status": bson.M{"$ne": model.StreamStateDeleted}}
	cursor, err := m.streamCol.Find(context.TODO(), filter)
	if err != nil {
		dbLog.Printf("Error listing streams: %v", err)
		return nil, err
	}
	var recs []streamRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		dbLog.Printf("Error parsing streams: %v", err)
		return nil, err
	}

	res := make([]model.StreamStateRecord, 0, len(recs))
	for _, rec := range recs {
		state, err := rec.toModel()
		if err != nil {
			dbLog.Printf("Skipping stream %s: %s", rec.StreamId, err.Error())
			continue
		}
		res = append(res, state)
	}
	return res, nil
}

func (m *MongoProvider) ShouldDeliver(streamId string, eventUri string) bool {
	state, err := m.getStreamRecord(streamId)
	if err != nil || state == nil || state.Status == model.StreamStateDeleted {
		return false
	}
	return state.Config.WantsEvent(eventUri)
}

func (m *MongoProvider) QueueEvent(streamId string, setToken string, jti string) (*model.QueuedEvent, error) {
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
	if _, err := m.queueCol.InsertOne(context.TODO(), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MongoProvider) GetPendingEvents(limit int) ([]model.QueuedEvent, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}

	filter := bson.M{"status": model.DeliveryStatusPending}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := m.queueCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, err
	}
	var events []model.QueuedEvent
	if err = cursor.All(context.TODO(), &events); err != nil {
		dbLog.Println("Error getting pending batch: " + err.Error())
		return nil, err
	}
	return events, nil
}

// GetPendingEventsForStream is served by the (sid, status) queue index.
func (m *MongoProvider) GetPendingEventsForStream(streamId string, limit int) ([]model.QueuedEvent, error) {
	filter := bson.M{"sid": streamId, "status": model.DeliveryStatusPending}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := m.queueCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, err
	}
	var events []model.QueuedEvent
	if err = cursor.All(context.TODO(), &events); err != nil {
		dbLog.Println("Error getting pending batch for stream " + streamId + ": " + err.Error())
		return nil, err
	}
	return events, nil
}

func (m *MongoProvider) MarkDelivered(id string) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":       model.DeliveryStatusDelivered,
		"delivered_at": now,
	}}
	res, err := m.queueCol.UpdateOne(context.TODO(), bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *MongoProvider) MarkFailed(id string, nextRetry time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"status":     model.DeliveryStatusFailed,
			"next_retry": nextRetry,
		},
		"$inc": bson.M{"attempts": 1},
	}
	res, err := m.queueCol.UpdateOne(context.TODO(), bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *MongoProvider) AcknowledgeEvent(streamId string, jti string) error {
	ack := model.Acknowledgment{
		StreamId: streamId,
		Jti:      jti,
		AckDate:  time.Now(),
	}
	_, err := m.ackCol.InsertOne(context.TODO(), &ack)
	if mongo.IsDuplicateKeyError(err) {
		// Already acknowledged; the ledger is append-only and idempotent.
		return nil
	}
	return err
}

func (m *MongoProvider) IsAcknowledged(streamId string, jti string) (bool, error) {
	filter := bson.D{{Key: "sid", Value: streamId}, {Key: "jti", Value: jti}}
	count, err := m.ackCol.CountDocuments(context.TODO(), filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
