package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"stocktake-api/internal/model"
	"stocktake-api/pkg/uid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store using MongoDB. Items and unknown-barcode
// records carry a session_id field; batch writes use BulkWrite so one
// batch commits atomically on the provider side.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	items    *mongo.Collection
	unknown  *mongo.Collection
	presence *mongo.Collection
}

// NewMongoStore connects to MongoDB and prepares the stocktake collections.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		sessions: db.Collection("sessions"),
		items:    db.Collection("items"),
		unknown:  db.Collection("unknown_barcodes"),
		presence: db.Collection("presence"),
	}

	s.ensureIndexes(ctx)

	log.Printf("[MongoStore] Connected to %s", database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) {
	indexes := []struct {
		coll   *mongo.Collection
		model  mongo.IndexModel
	}{
		{s.sessions, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}},
		{s.items, mongo.IndexModel{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.items, mongo.IndexModel{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "sku", Value: 1}}}},
		{s.items, mongo.IndexModel{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "modified", Value: 1}}}},
		{s.unknown, mongo.IndexModel{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "scanned_at", Value: -1}}}},
		{s.presence, mongo.IndexModel{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "operator", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			log.Printf("[MongoStore] Warning: failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}
}

func (s *MongoStore) Sessions() SessionStore               { return &mongoSessions{coll: s.sessions} }
func (s *MongoStore) Items() ItemStore                     { return &mongoItems{coll: s.items} }
func (s *MongoStore) UnknownBarcodes() UnknownBarcodeStore { return &mongoUnknown{coll: s.unknown} }
func (s *MongoStore) Presence() PresenceStore              { return &mongoPresence{coll: s.presence} }

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoSessions struct {
	coll *mongo.Collection
}

func (r *mongoSessions) Create(ctx context.Context, sess *model.Session) error {
	if _, err := r.coll.InsertOne(ctx, sess); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *mongoSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (r *mongoSessions) List(ctx context.Context, limit int) ([]model.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []model.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *mongoSessions) IncrementUpdatedCount(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"updated_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment updated count: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoSessions) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// mongoItemDoc wraps an item with its owning session id.
type mongoItemDoc struct {
	SessionID  string `bson:"session_id"`
	model.Item `bson:",inline"`
}

type mongoItems struct {
	coll *mongo.Collection
}

func (r *mongoItems) BulkPut(ctx context.Context, sessionID string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	models := make([]mongo.WriteModel, len(items))
	for i := range items {
		doc := mongoItemDoc{SessionID: sessionID, Item: items[i]}
		filter := bson.M{"session_id": sessionID, "item_id": items[i].ID}
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(doc).
			SetUpsert(true)
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := r.coll.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to bulk write items: %w", err)
	}
	return nil
}

func (r *mongoItems) Get(ctx context.Context, sessionID, itemID string) (*model.Item, error) {
	var doc mongoItemDoc
	err := r.coll.FindOne(ctx, bson.M{"session_id": sessionID, "item_id": itemID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &doc.Item, nil
}

func (r *mongoItems) FindBySKU(ctx context.Context, sessionID, sku string) (*model.Item, error) {
	var doc mongoItemDoc
	err := r.coll.FindOne(ctx, bson.M{"session_id": sessionID, "sku": sku}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by sku: %w", err)
	}
	return &doc.Item, nil
}

func (r *mongoItems) list(ctx context.Context, filter bson.M) ([]model.Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoItemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	items := make([]model.Item, len(docs))
	for i, doc := range docs {
		items[i] = doc.Item
	}
	return items, nil
}

func (r *mongoItems) List(ctx context.Context, sessionID string) ([]model.Item, error) {
	return r.list(ctx, bson.M{"session_id": sessionID})
}

func (r *mongoItems) ListModified(ctx context.Context, sessionID string) ([]model.Item, error) {
	return r.list(ctx, bson.M{"session_id": sessionID, "modified": true})
}

func (r *mongoItems) SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error {
	update := bson.M{
		"$set": bson.M{
			"product_barcode": productBarcode,
			"quantity":        quantity,
			"modified":        true,
			"modified_at":     time.Now(),
			"modified_by":     operator,
		},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"session_id": sessionID, "item_id": itemID}, update)
	if err != nil {
		return fmt.Errorf("failed to save count: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoItems) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetProjection(bson.M{"item_id": 1})

	cursor, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to page item ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ItemID string `bson:"item_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode item ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ItemID
	}
	return ids, nil
}

func (r *mongoItems) BulkDelete(ctx context.Context, sessionID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if len(itemIDs) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	models := make([]mongo.WriteModel, len(itemIDs))
	for i, id := range itemIDs {
		models[i] = mongo.NewDeleteOneModel().
			SetFilter(bson.M{"session_id": sessionID, "item_id": id})
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := r.coll.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to bulk delete items: %w", err)
	}
	return nil
}

type mongoUnknownDoc struct {
	SessionID            string `bson:"session_id"`
	model.UnknownBarcode `bson:",inline"`
}

type mongoUnknown struct {
	coll *mongo.Collection
}

func (r *mongoUnknown) Add(ctx context.Context, sessionID string, rec *model.UnknownBarcode) error {
	if rec.ID == "" {
		rec.ID = uid.New()
	}
	doc := mongoUnknownDoc{SessionID: sessionID, UnknownBarcode: *rec}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log unknown barcode: %w", err)
	}
	return nil
}

func (r *mongoUnknown) List(ctx context.Context, sessionID string) ([]model.UnknownBarcode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scanned_at", Value: -1}})

	cursor, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list unknown barcodes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoUnknownDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode unknown barcodes: %w", err)
	}

	recs := make([]model.UnknownBarcode, len(docs))
	for i, doc := range docs {
		recs[i] = doc.UnknownBarcode
	}
	return recs, nil
}

func (r *mongoUnknown) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	cursor, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to page unknown barcode ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode unknown barcode ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

func (r *mongoUnknown) BulkDelete(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	models := make([]mongo.WriteModel, len(ids))
	for i, id := range ids {
		models[i] = mongo.NewDeleteOneModel().
			SetFilter(bson.M{"session_id": sessionID, "_id": id})
	}

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := r.coll.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("failed to bulk delete unknown barcodes: %w", err)
	}
	return nil
}

type mongoPresenceDoc struct {
	SessionID string    `bson:"session_id"`
	Operator  string    `bson:"operator"`
	SeenAt    time.Time `bson:"seen_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type mongoPresence struct {
	coll *mongo.Collection
}

func (r *mongoPresence) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	now := time.Now()
	filter := bson.M{"session_id": sessionID, "operator": operator}
	update := bson.M{"$set": bson.M{
		"seen_at":    now,
		"expires_at": now.Add(ttl),
	}}

	opts := options.Update().SetUpsert(true)
	if _, err := r.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (r *mongoPresence) Leave(ctx context.Context, sessionID, operator string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"session_id": sessionID, "operator": operator}); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (r *mongoPresence) Roster(ctx context.Context, sessionID string) ([]model.Presence, error) {
	filter := bson.M{
		"session_id": sessionID,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "operator", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoPresenceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode presence: %w", err)
	}

	out := make([]model.Presence, len(docs))
	for i, doc := range docs {
		out[i] = model.Presence{Operator: doc.Operator, SeenAt: doc.SeenAt}
	}
	return out, nil
}

func (r *mongoPresence) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

// Ensure MongoStore satisfies Store.
var _ Store = (*MongoStore)(nil)
