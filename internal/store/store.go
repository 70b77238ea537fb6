// Package store implements the memory store on top of an embedding client and
// a vector database: deterministic dedupe identity, collection bootstrap with
// a metadata sentinel, similarity search, ordered listing with signed cursors,
// and deletion.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recallhq/recall/internal/cursor"
	"github.com/recallhq/recall/internal/metrics"
	"github.com/recallhq/recall/internal/vectordb"
	"go.uber.org/zap"
)

// SchemaVersion is stamped into every payload so future readers can migrate.
const SchemaVersion = 1

// Namespace for deterministic point IDs. The DNS namespace is reused as a
// stable application UUID.
var Namespace = uuid.NameSpaceDNS

// sentinelName keys the collection metadata point.
const sentinelName = "__meta__"

// ErrNotFound is returned when a memory (or the collection) does not exist.
var ErrNotFound = errors.New("memory not found")

// ModelMismatchError means the collection was built with a different embedding
// model or dimension than the one configured now.
type ModelMismatchError struct {
	StoredModel string
	StoredDim   int
	Model       string
	Dim         int
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf(
		"model mismatch: collection uses %s (%d) but EMBED_MODEL=%s (%d); delete the collection or change EMBED_MODEL",
		e.StoredModel, e.StoredDim, e.Model, e.Dim,
	)
}

// Embedder is the slice of the embedding client the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ProbeDimension(ctx context.Context) (int, error)
	Model() string
}

// VectorStore is the slice of the vector database client the store needs.
type VectorStore interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string, dim int) error
	CreatePayloadIndex(ctx context.Context, collection, field string, schema vectordb.FieldSchema) error
	Upsert(ctx context.Context, collection string, points []vectordb.Point) error
	Retrieve(ctx context.Context, collection string, ids []string) ([]vectordb.Point, error)
	Search(ctx context.Context, collection string, vector []float32, limit int, filter vectordb.Filter) ([]vectordb.ScoredPoint, error)
	Scroll(ctx context.Context, collection string, limit int, offset json.RawMessage, orderBy *vectordb.OrderBy, filter vectordb.Filter) (*vectordb.ScrollPage, error)
	Delete(ctx context.Context, collection string, ids []string) error
}

// Memory is a stored record as returned by listing.
type Memory struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Tags           []string `json:"tags"`
	Source         string   `json:"source"`
	WrittenAt      string   `json:"written_at"`
	FirstWrittenAt string   `json:"first_written_at"`
	DedupeKey      *string  `json:"dedupe_key"`
	ExternalID     *string  `json:"external_id"`
}

// SearchHit is one similarity result. Text is omitted unless requested.
type SearchHit struct {
	ID        string   `json:"id"`
	Score     float64  `json:"score"`
	Tags      []string `json:"tags"`
	Source    string   `json:"source"`
	WrittenAt string   `json:"written_at"`
	Text      *string  `json:"text,omitempty"`
}

// StoreInput is one memory to write.
type StoreInput struct {
	Text       string
	Tags       []string
	Source     string
	DedupeKey  *string
	ExternalID *string
}

// Store coordinates the embedder and the vector database for one collection.
type Store struct {
	vs         VectorStore
	embedder   Embedder
	codec      cursor.Codec
	collection string
	log        *zap.Logger

	// positive-only existence cache: a missing collection is re-checked every
	// time, a present one for cacheTTL
	mu             sync.Mutex
	existsCached   bool
	existsCachedAt time.Time
	cacheTTL       time.Duration

	locks *lockTable
}

// NewStore creates a store for the given collection.
func NewStore(vs VectorStore, embedder Embedder, codec cursor.Codec, collection string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		vs:         vs,
		embedder:   embedder,
		codec:      codec,
		collection: collection,
		log:        logger,
		cacheTTL:   30 * time.Second,
		locks:      newLockTable(1000),
	}
}

// DedupeID derives the deterministic point ID for a dedupe key. The "v1:"
// prefix versions the derivation itself.
func DedupeID(key string) string {
	return uuid.NewSHA1(Namespace, []byte("v1:"+key)).String()
}

// SentinelID is the fixed ID of the collection metadata point.
func SentinelID() string {
	return uuid.NewSHA1(Namespace, []byte(sentinelName)).String()
}

func (s *Store) invalidateExistsCache() {
	s.mu.Lock()
	s.existsCached = false
	s.existsCachedAt = time.Time{}
	s.mu.Unlock()
}

// collectionExists checks for the collection, caching positive answers only.
func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.existsCached && time.Since(s.existsCachedAt) < s.cacheTTL {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	exists, err := s.vs.CollectionExists(ctx, s.collection)
	if err != nil {
		s.invalidateExistsCache()
		return false, err
	}

	s.mu.Lock()
	s.existsCached = exists
	if exists {
		s.existsCachedAt = time.Now()
	}
	s.mu.Unlock()
	return exists, nil
}

// Ping reports whether the vector database answers at all; the collection
// does not have to exist.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.collectionExists(ctx)
	return err
}

// EnsureCollection creates the collection, its payload indexes, and the
// metadata sentinel on first use. Safe to call on every write.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	dim, err := s.embedder.ProbeDimension(ctx)
	if err != nil {
		return err
	}

	if err := s.vs.CreateCollection(ctx, s.collection, dim); err != nil {
		s.invalidateExistsCache()
		return err
	}

	sentinel := vectordb.Point{
		ID:     SentinelID(),
		Vector: make([]float32, dim),
		Payload: map[string]interface{}{
			"schema_version": SchemaVersion,
			"_meta":          true,
			"model":          s.embedder.Model(),
			"dim":            dim,
		},
	}
	if err := s.vs.Upsert(ctx, s.collection, []vectordb.Point{sentinel}); err != nil {
		s.invalidateExistsCache()
		return err
	}

	s.createPayloadIndexes(ctx)

	s.mu.Lock()
	s.existsCached = true
	s.existsCachedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// createPayloadIndexes is best-effort: a failed index degrades performance,
// not correctness.
func (s *Store) createPayloadIndexes(ctx context.Context) {
	indexes := []struct {
		field  string
		schema vectordb.FieldSchema
	}{
		{"dedupe_key", vectordb.SchemaKeyword},
		{"tags", vectordb.SchemaKeyword},
		{"source", vectordb.SchemaKeyword},
		{"written_at", vectordb.SchemaDatetime},
	}
	for _, idx := range indexes {
		if err := s.vs.CreatePayloadIndex(ctx, s.collection, idx.field, idx.schema); err != nil {
			s.log.Warn("Could not create payload index",
				zap.String("field", idx.field),
				zap.Error(err),
			)
		}
	}
}

// ValidateModel compares the collection's recorded embedding model and
// dimension against the current configuration. Collections without metadata
// (pre-v1 or externally created) pass with a warning.
func (s *Store) ValidateModel(ctx context.Context) error {
	points, err := s.vs.Retrieve(ctx, s.collection, []string{SentinelID()})
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			s.log.Warn("Collection has no model metadata, proceeding",
				zap.String("collection", s.collection))
			return nil
		}
		return err
	}
	if len(points) == 0 {
		s.log.Warn("Collection has no model metadata, proceeding",
			zap.String("collection", s.collection))
		return nil
	}

	meta := points[0].Payload
	if isMeta, _ := meta["_meta"].(bool); !isMeta {
		s.log.Warn("Metadata point found but _meta flag missing, proceeding")
		return nil
	}

	storedModel, _ := meta["model"].(string)
	if storedModel == "" {
		s.log.Warn("No model stored in metadata, proceeding")
		return nil
	}
	storedDim := 0
	if f, ok := meta["dim"].(float64); ok {
		storedDim = int(f)
	}

	currentDim, err := s.embedder.ProbeDimension(ctx)
	if err != nil {
		s.log.Warn("Cannot probe embedding dimension, skipping model validation", zap.Error(err))
		return nil
	}

	if storedModel != s.embedder.Model() || storedDim != currentDim {
		return &ModelMismatchError{
			StoredModel: storedModel,
			StoredDim:   storedDim,
			Model:       s.embedder.Model(),
			Dim:         currentDim,
		}
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// StoreMemory writes one memory. Without a dedupe key the ID is random and the
// strategy is "random". With a dedupe key the ID is deterministic; the
// strategy is "deduped" only when a record with that ID already existed, in
// which case its first_written_at is preserved.
func (s *Store) StoreMemory(ctx context.Context, in StoreInput) (id, strategy string, err error) {
	if err := s.EnsureCollection(ctx); err != nil {
		return "", "", err
	}

	now := nowISO()
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	if in.DedupeKey == nil {
		pointID := uuid.NewString()
		if err := s.writePoint(ctx, pointID, in, tags, now, now, nil); err != nil {
			return "", "", err
		}
		metrics.MemoriesStored.WithLabelValues("random").Inc()
		return pointID, "random", nil
	}

	pointID := DedupeID(*in.DedupeKey)
	lk := s.locks.acquire(*in.DedupeKey)
	defer lk.Unlock()

	// A retrieve failure is treated as "new": the write either lands or fails
	// on its own.
	firstWrittenAt := now
	existed := false
	if existing, rerr := s.vs.Retrieve(ctx, s.collection, []string{pointID}); rerr == nil && len(existing) > 0 {
		existed = true
		if prev, ok := existing[0].Payload["first_written_at"].(string); ok && prev != "" {
			firstWrittenAt = prev
		}
	}

	if err := s.writePoint(ctx, pointID, in, tags, now, firstWrittenAt, in.DedupeKey); err != nil {
		return "", "", err
	}

	strategy = "random"
	if existed {
		strategy = "deduped"
	}
	metrics.MemoriesStored.WithLabelValues(strategy).Inc()
	return pointID, strategy, nil
}

func (s *Store) writePoint(ctx context.Context, pointID string, in StoreInput, tags []string, writtenAt, firstWrittenAt string, dedupeKey *string) error {
	vector, err := s.embedder.Embed(ctx, in.Text)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"schema_version":   SchemaVersion,
		"text":             in.Text,
		"tags":             tags,
		"source":           in.Source,
		"dedupe_key":       nil,
		"external_id":      nil,
		"written_at":       writtenAt,
		"first_written_at": firstWrittenAt,
	}
	if dedupeKey != nil {
		payload["dedupe_key"] = *dedupeKey
	}
	if in.ExternalID != nil {
		payload["external_id"] = *in.ExternalID
	}

	return s.vs.Upsert(ctx, s.collection, []vectordb.Point{{
		ID:      pointID,
		Vector:  vector,
		Payload: payload,
	}})
}

// notMeta excludes the metadata sentinel from reads.
func notMeta() vectordb.Filter {
	return vectordb.MustNot("_meta", true)
}

// Search embeds the query and returns the topK most similar memories.
func (s *Store) Search(ctx context.Context, query string, topK int, includeText bool) ([]SearchHit, error) {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []SearchHit{}, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.vs.Search(ctx, s.collection, vector, topK, notMeta())
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			s.invalidateExistsCache()
			return []SearchHit{}, nil
		}
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hit := SearchHit{
			ID:        r.ID,
			Score:     r.Score,
			Tags:      payloadStrings(r.Payload, "tags"),
			Source:    payloadString(r.Payload, "source"),
			WrittenAt: payloadString(r.Payload, "written_at"),
		}
		if includeText {
			text := payloadString(r.Payload, "text")
			hit.Text = &text
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// List returns memories newest-first with an opaque signed continuation
// cursor. An undecodable or tampered cursor yields cursor.ErrInvalidCursor.
func (s *Store) List(ctx context.Context, limit int, pageCursor string) ([]Memory, string, error) {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return []Memory{}, "", nil
	}

	var offset json.RawMessage
	if pageCursor != "" {
		offset, err = s.codec.Decode(pageCursor)
		if err != nil {
			return nil, "", err
		}
	}

	orderBy := &vectordb.OrderBy{Key: "written_at", Direction: "desc"}
	page, err := s.vs.Scroll(ctx, s.collection, limit, offset, orderBy, notMeta())
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			s.invalidateExistsCache()
			return []Memory{}, "", nil
		}
		return nil, "", err
	}

	memories := make([]Memory, 0, len(page.Points))
	for _, p := range page.Points {
		memories = append(memories, Memory{
			ID:             p.ID,
			Text:           payloadString(p.Payload, "text"),
			Tags:           payloadStrings(p.Payload, "tags"),
			Source:         payloadString(p.Payload, "source"),
			WrittenAt:      payloadString(p.Payload, "written_at"),
			FirstWrittenAt: payloadString(p.Payload, "first_written_at"),
			DedupeKey:      payloadOptString(p.Payload, "dedupe_key"),
			ExternalID:     payloadOptString(p.Payload, "external_id"),
		})
	}

	nextCursor := ""
	if page.NextOffset != nil {
		nextCursor, err = s.codec.Encode(page.NextOffset)
		if err != nil {
			return nil, "", err
		}
	}
	return memories, nextCursor, nil
}

// Delete removes a memory by ID. ErrNotFound when the collection or the point
// does not exist.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	points, err := s.vs.Retrieve(ctx, s.collection, []string{memoryID})
	if err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			s.invalidateExistsCache()
			return ErrNotFound
		}
		return err
	}
	if len(points) == 0 {
		return ErrNotFound
	}

	// The collection can vanish between the retrieve and the delete.
	if err := s.vs.Delete(ctx, s.collection, []string{memoryID}); err != nil {
		if errors.Is(err, vectordb.ErrNotFound) {
			s.invalidateExistsCache()
			return ErrNotFound
		}
		return err
	}
	return nil
}

func payloadString(p map[string]interface{}, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

func payloadStrings(p map[string]interface{}, key string) []string {
	out := []string{}
	if p == nil {
		return out
	}
	raw, ok := p[key].([]interface{})
	if !ok {
		return out
	}
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func payloadOptString(p map[string]interface{}, key string) *string {
	if p == nil {
		return nil
	}
	if s, ok := p[key].(string); ok {
		return &s
	}
	return nil
}
