// Package dedup persists listing records only when their natural key is new
// to the target collection.
package dedup

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/metrics"
)

// Writer implements crawler.RecordWriter on top of a crawler.JobStore.
type Writer struct {
	store  crawler.JobStore
	logger *zap.Logger
}

// New constructs a Writer.
func New(store crawler.JobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// SaveNewRecords assigns each record its natural key, drops records whose key
// already exists in collection or earlier in the same batch, and bulk inserts
// the rest. Store failures are logged and reflected in the returned counts.
func (w *Writer) SaveNewRecords(ctx context.Context, collection string, records []crawler.JobRecord) crawler.SaveResult {
	var res crawler.SaveResult
	if len(records) == 0 {
		return res
	}

	batch := make(map[string]struct{}, len(records))
	fresh := make([]crawler.JobRecord, 0, len(records))
	for _, rec := range records {
		key := crawler.NaturalKey(rec.Title, rec.Company, rec.UpdateDate)
		if _, dup := batch[key]; dup {
			res.Skipped++
			continue
		}
		exists, err := w.store.HasKey(ctx, collection, key)
		if err != nil {
			w.logger.Error("dedup lookup failed",
				zap.String("collection", collection),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			res.Failed = len(records) - res.Skipped
			metrics.ObserveRecords(collection, "failed", res.Failed)
			return res
		}
		if exists {
			res.Skipped++
			continue
		}
		batch[key] = struct{}{}
		rec.UniqueKey = key
		fresh = append(fresh, rec)
	}

	if len(fresh) > 0 {
		inserted, err := w.store.InsertMany(ctx, collection, fresh)
		res.Inserted = inserted
		res.Failed = len(fresh) - inserted
		if err != nil {
			w.logger.Warn("bulk insert partially failed",
				zap.String("collection", collection),
				zap.Int("inserted", inserted),
				zap.Int("failed", res.Failed),
				zap.Error(err),
			)
		}
	}

	metrics.ObserveRecords(collection, "inserted", res.Inserted)
	metrics.ObserveRecords(collection, "skipped", res.Skipped)
	metrics.ObserveRecords(collection, "failed", res.Failed)
	w.logger.Debug("records saved",
		zap.String("collection", collection),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res
}
