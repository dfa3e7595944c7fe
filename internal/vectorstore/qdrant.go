package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Payload keys used by QdrantBackend.
const (
	qdrantKeyText    = "text"
	qdrantKeyAddedNs = "added_at_ns"
	qdrantKeyExtra   = "extra"
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the gRPC port (6334), not the REST port.
	Port int

	// CollectionName holds every chunk of this store.
	CollectionName string

	// VectorSize is used when creating the collection. When zero the
	// collection is created on first insert with that vector's length.
	VectorSize uint64

	APIKey string
	UseTLS bool

	// MaxRetries bounds retries of transient gRPC failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message limit in bytes.
	MaxMessageSize int

	// ScrollPageSize is the page size used when loading all points.
	ScrollPageSize uint32
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "ragd_chunks"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 256
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.CollectionName) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.CollectionName)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantBackend stores chunks as points of a single Qdrant collection.
// Text and metadata live in the payload; load order is restored from the
// added_at_ns payload field.
type QdrantBackend struct {
	client *qdrant.Client
	config QdrantConfig

	mu      sync.Mutex
	ensured bool
}

// NewQdrantBackend creates the gRPC client. No request is made until Ping.
func NewQdrantBackend(config QdrantConfig) (*QdrantBackend, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &QdrantBackend{client: client, config: config}, nil
}

// Name implements Backend.
func (q *QdrantBackend) Name() string { return "qdrant" }

// Ping implements Pinger.
func (q *QdrantBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// retry runs op with exponential backoff on transient errors.
func (q *QdrantBackend) retry(ctx context.Context, name string, op func() error) error {
	backoff := q.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt >= q.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, q.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (q *QdrantBackend) collectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := q.retry(ctx, "collection exists", func() error {
		var err error
		exists, err = q.client.CollectionExists(ctx, q.config.CollectionName)
		return err
	})
	return exists, err
}

// ensureCollection creates the collection with the given vector size if
// it does not exist yet.
func (q *QdrantBackend) ensureCollection(ctx context.Context, size uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if q.config.VectorSize != 0 {
			size = q.config.VectorSize
		}
		err := q.retry(ctx, "create collection", func() error {
			return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: q.config.CollectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     size,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return err
		}
	}
	q.ensured = true
	return nil
}

// GetAll implements Backend.
func (q *QdrantBackend) GetAll(ctx context.Context) ([]ChunkRecord, error) {
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []ChunkRecord{}, nil
	}

	type ordered struct {
		rec     ChunkRecord
		addedNs int64
	}
	var all []ordered
	var offset *qdrant.PointId
	for {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := q.retry(ctx, "scroll", func() error {
			var err error
			points, next, err = q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: q.config.CollectionName,
				Limit:          qdrant.PtrOf(q.config.ScrollPageSize),
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(true),
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			rec, addedNs, err := pointToRecord(p)
			if err != nil {
				return nil, err
			}
			all = append(all, ordered{rec: rec, addedNs: addedNs})
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].addedNs < all[j].addedNs })
	records := make([]ChunkRecord, len(all))
	for i, o := range all {
		records[i] = o.rec
	}
	return records, nil
}

// InsertOne implements Backend. Record ids must be UUIDs.
func (q *QdrantBackend) InsertOne(ctx context.Context, rec ChunkRecord) error {
	if err := q.ensureCollection(ctx, uint64(len(rec.Embedding))); err != nil {
		return err
	}
	payload, err := recordPayload(rec)
	if err != nil {
		return err
	}
	return q.retry(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewIDUUID(rec.ID),
				Vectors: qdrant.NewVectors(rec.Embedding...),
				Payload: payload,
			}},
		})
		return err
	})
}

// DeleteMany implements Backend.
func (q *QdrantBackend) DeleteMany(ctx context.Context, source string) (int, error) {
	exists, err := q.collectionExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(KeySource, source)}}

	var count uint64
	if err := q.retry(ctx, "count", func() error {
		var err error
		count, err = q.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: q.config.CollectionName,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	}); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	err = q.retry(ctx, "delete", func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(filter),
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Clear implements Backend by dropping the collection. It is recreated on
// the next insert.
func (q *QdrantBackend) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := q.retry(ctx, "delete collection", func() error {
			return q.client.DeleteCollection(ctx, q.config.CollectionName)
		}); err != nil {
			return err
		}
	}
	q.ensured = false
	return nil
}

// Close implements Backend.
func (q *QdrantBackend) Close() error {
	return q.client.Close()
}

func recordPayload(rec ChunkRecord) (map[string]*qdrant.Value, error) {
	payload := map[string]any{
		qdrantKeyText:    rec.Text,
		KeySource:        rec.Metadata.Source,
		KeyChunkIndex:    rec.Metadata.ChunkIndex,
		KeyTotalChunks:   rec.Metadata.TotalChunks,
		KeyAddedAt:       rec.Metadata.AddedAt.UTC().Format(time.RFC3339Nano),
		qdrantKeyAddedNs: rec.Metadata.AddedAt.UnixNano(),
	}
	if len(rec.Metadata.Extra) > 0 {
		// Round-trip through JSON so nested values only use types the
		// payload encoder accepts.
		data, err := json.Marshal(rec.Metadata.Extra)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding extra metadata: %v", ErrInvalidMetadata, err)
		}
		var extra map[string]any
		if err := json.Unmarshal(data, &extra); err != nil {
			return nil, fmt.Errorf("%w: encoding extra metadata: %v", ErrInvalidMetadata, err)
		}
		payload[qdrantKeyExtra] = extra
	}
	values, err := qdrant.TryValueMap(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return values, nil
}

func pointToRecord(p *qdrant.RetrievedPoint) (ChunkRecord, int64, error) {
	payload := p.GetPayload()
	raw := map[string]any{
		KeySource:      payload[KeySource].GetStringValue(),
		KeyChunkIndex:  payload[KeyChunkIndex].GetIntegerValue(),
		KeyTotalChunks: payload[KeyTotalChunks].GetIntegerValue(),
		KeyAddedAt:     payload[KeyAddedAt].GetStringValue(),
	}
	if extra, ok := payload[qdrantKeyExtra]; ok {
		if m, ok := valueToAny(extra).(map[string]any); ok {
			for k, v := range m {
				if !isReservedKey(k) {
					raw[k] = v
				}
			}
		}
	}
	meta, err := MetadataFromMap(raw)
	if err != nil {
		return ChunkRecord{}, 0, fmt.Errorf("point %s: %w", p.GetId().GetUuid(), err)
	}

	var vector []float32
	if out := p.GetVectors().GetVector(); out != nil {
		if dense := out.GetDense(); dense != nil {
			vector = dense.GetData()
		} else {
			vector = out.GetData()
		}
	}
	return ChunkRecord{
		ID:        p.GetId().GetUuid(),
		Text:      payload[qdrantKeyText].GetStringValue(),
		Embedding: vector,
		Metadata:  meta,
	}, payload[qdrantKeyAddedNs].GetIntegerValue(), nil
}

func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for key, field := range k.StructValue.GetFields() {
			out[key] = valueToAny(field)
		}
		return out
	case *qdrant.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

var (
	_ Backend = (*QdrantBackend)(nil)
	_ Pinger  = (*QdrantBackend)(nil)
)
