// Package mongostore stores listings in one MongoDB collection per category and
// the scheduler status document in its own collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// Config controls the MongoDB connection.
type Config struct {
	URI              string
	Database         string
	StatusCollection string
	ConnectTimeout   time.Duration
}

// Store implements crawler.JobStore and crawler.StatusStore on MongoDB.
type Store struct {
	client           *mongo.Client
	db               *mongo.Database
	statusCollection string
}

// New connects to MongoDB and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("store.database is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	store := NewWithDatabase(client.Database(cfg.Database), cfg.StatusCollection)
	store.client = client
	return store, nil
}

// NewWithDatabase wraps an existing database handle (primarily for testing).
func NewWithDatabase(db *mongo.Database, statusCollection string) *Store {
	if statusCollection == "" {
		statusCollection = "scheduler_status"
	}
	return &Store{db: db, statusCollection: statusCollection}
}

// Close disconnects the client when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// Ping implements crawler.JobStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// EnsureIndexes creates a unique natural key index on every collection and a
// unique type index on the status collection, so concurrent InitStatus upserts
// cannot create a second status document.
func (s *Store) EnsureIndexes(ctx context.Context, collections []string) error {
	_, err := s.db.Collection(s.statusCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("type_1"),
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", s.statusCollection, err)
	}
	for _, name := range collections {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "unique_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_key_1"),
		})
		if err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}
	return nil
}

// HasKey implements crawler.JobStore.
func (s *Store) HasKey(ctx context.Context, collection, uniqueKey string) (bool, error) {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"unique_key": uniqueKey}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup key: %w", err)
	}
	return true, nil
}

// InsertMany implements crawler.JobStore with an unordered bulk insert.
func (s *Store) InsertMany(ctx context.Context, collection string, records []crawler.JobRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]any, 0, len(records))
	for _, rec := range records {
		if rec.Skills == nil {
			rec.Skills = []string{}
		}
		docs = append(docs, rec)
	}
	_, err := s.db.Collection(collection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		return len(docs) - len(bulkErr.WriteErrors), fmt.Errorf("insert into %s: %w", collection, err)
	}
	return 0, fmt.Errorf("insert into %s: %w", collection, err)
}

// Collections implements crawler.JobStore.
func (s *Store) Collections(ctx context.Context) ([]crawler.CollectionInfo, error) {
	names, err := s.jobCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]crawler.CollectionInfo, 0, len(names))
	for _, name := range names {
		count, err := s.db.Collection(name).CountDocuments(ctx, bson.D{})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out = append(out, crawler.CollectionInfo{Name: name, Count: int(count)})
	}
	return out, nil
}

// FindJobs implements crawler.JobStore.
func (s *Store) FindJobs(ctx context.Context, collection string) ([]crawler.JobRecord, error) {
	names := []string{collection}
	if collection == "" {
		var err error
		if names, err = s.jobCollections(ctx); err != nil {
			return nil, err
		}
	}
	var out []crawler.JobRecord
	for _, name := range names {
		records, err := s.find(ctx, name, bson.D{}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// FindCrawledSince implements crawler.JobStore.
func (s *Store) FindCrawledSince(ctx context.Context, since time.Time) ([]crawler.JobRecord, error) {
	names, err := s.jobCollections(ctx)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"timestamp": bson.M{"$gte": since}}
	var out []crawler.JobRecord
	for _, name := range names {
		records, err := s.find(ctx, name, filter, options.Find())
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CrawledAt.After(out[j].CrawledAt) })
	return out, nil
}

func (s *Store) find(ctx context.Context, collection string, filter any, opts *options.FindOptions) ([]crawler.JobRecord, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	var records []crawler.JobRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	for i := range records {
		records[i].Backfill(collection)
	}
	return records, nil
}

func (s *Store) jobCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := names[:0]
	for _, name := range names {
		if name == s.statusCollection || strings.HasPrefix(name, "system.") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
