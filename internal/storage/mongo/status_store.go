package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

func statusFilter() bson.M {
	return bson.M{"type": crawler.StatusType}
}

// GetStatus implements crawler.StatusStore.
func (s *Store) GetStatus(ctx context.Context) (crawler.CrawlStatus, error) {
	var st crawler.CrawlStatus
	err := s.db.Collection(s.statusCollection).FindOne(ctx, statusFilter()).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return crawler.CrawlStatus{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.CrawlStatus{}, fmt.Errorf("get crawl status: %w", err)
	}
	return st, nil
}

// InitStatus implements crawler.StatusStore.
func (s *Store) InitStatus(ctx context.Context, initial crawler.CrawlStatus) (bool, error) {
	initial.Type = crawler.StatusType
	res, err := s.db.Collection(s.statusCollection).UpdateOne(ctx,
		statusFilter(),
		bson.M{"$setOnInsert": initial},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("init crawl status: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

// PutStatus implements crawler.StatusStore.
func (s *Store) PutStatus(ctx context.Context, status crawler.CrawlStatus) error {
	status.Type = crawler.StatusType
	_, err := s.db.Collection(s.statusCollection).ReplaceOne(ctx,
		statusFilter(),
		status,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put crawl status: %w", err)
	}
	return nil
}

// AcquireRun implements crawler.StatusStore.
func (s *Store) AcquireRun(ctx context.Context, runID string, now, staleBefore time.Time) (bool, error) {
	filter := bson.M{
		"type": crawler.StatusType,
		"$or": bson.A{
			bson.M{"crawl_status": bson.M{"$ne": crawler.StateRunning}},
			bson.M{"updated_at": bson.M{"$lt": staleBefore}},
		},
	}
	update := bson.M{"$set": bson.M{
		"crawl_status":  crawler.StateRunning,
		"crawled_today": false,
		"last_run_id":   runID,
		"updated_at":    now,
	}}
	res, err := s.db.Collection(s.statusCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("acquire crawl lease: %w", err)
	}
	return res.MatchedCount == 1, nil
}
