package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig configures a MongoBackend.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// ApplyDefaults fills unset fields.
func (c *MongoConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "ragd"
	}
	if c.Collection == "" {
		c.Collection = "chunks"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c *MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("%w: mongo uri is required", ErrInvalidConfig)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: mongo connect timeout must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// mongoDoc is the stored document shape. Metadata extras sit inline next
// to the reserved keys.
type mongoDoc struct {
	ID        string    `bson:"_id"`
	Text      string    `bson:"text"`
	Embedding []float32 `bson:"embedding"`
	Metadata  bson.M    `bson:"metadata"`
}

// MongoBackend stores one document per chunk in a MongoDB collection.
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	cfg        MongoConfig
}

// NewMongoBackend connects lazily; reachability is checked by Ping.
func NewMongoBackend(ctx context.Context, cfg MongoConfig) (*MongoBackend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	return &MongoBackend{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:        cfg,
	}, nil
}

// Name implements Backend.
func (m *MongoBackend) Name() string { return "mongo" }

// Ping implements Pinger.
func (m *MongoBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	return m.client.Ping(ctx, readpref.Primary())
}

// GetAll implements Backend. Documents come back in natural order, which
// for an insert-only collection is insertion order.
func (m *MongoBackend) GetAll(ctx context.Context) ([]ChunkRecord, error) {
	cursor, err := m.collection.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("finding chunks: %w", err)
	}
	var docs []mongoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding chunks: %w", err)
	}

	records := make([]ChunkRecord, 0, len(docs))
	for _, d := range docs {
		meta, err := MetadataFromMap(fromBSON(d.Metadata))
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.ID, err)
		}
		records = append(records, ChunkRecord{
			ID:        d.ID,
			Text:      d.Text,
			Embedding: d.Embedding,
			Metadata:  meta,
		})
	}
	return records, nil
}

// InsertOne implements Backend.
func (m *MongoBackend) InsertOne(ctx context.Context, rec ChunkRecord) error {
	_, err := m.collection.InsertOne(ctx, mongoDoc{
		ID:        rec.ID,
		Text:      rec.Text,
		Embedding: rec.Embedding,
		Metadata:  toBSON(rec.Metadata),
	})
	if err != nil {
		return fmt.Errorf("inserting chunk %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteMany implements Backend.
func (m *MongoBackend) DeleteMany(ctx context.Context, source string) (int, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"metadata." + KeySource: source})
	if err != nil {
		return 0, fmt.Errorf("deleting source %q: %w", source, err)
	}
	return int(res.DeletedCount), nil
}

// Clear implements Backend.
func (m *MongoBackend) Clear(ctx context.Context) error {
	if _, err := m.collection.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}

// Close implements Backend.
func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func toBSON(meta Metadata) bson.M {
	out := bson.M(meta.Map())
	out[KeyAddedAt] = meta.AddedAt.UTC()
	return out
}

func fromBSON(raw bson.M) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if dt, ok := v.(primitive.DateTime); ok {
			v = dt.Time().UTC()
		}
		out[k] = v
	}
	return out
}

var (
	_ Backend = (*MongoBackend)(nil)
	_ Pinger  = (*MongoBackend)(nil)
)
