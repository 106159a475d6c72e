package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

func TestHasKey(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("present", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "jobs.marketing", mtest.FirstBatch,
			bson.D{{Key: "unique_key", Value: "Go Dev_Acme_N/A"}}))

		ok, err := store.HasKey(context.Background(), "marketing", "Go Dev_Acme_N/A")
		require.NoError(mt, err)
		require.True(mt, ok)
	})

	mt.Run("absent", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "jobs.marketing", mtest.FirstBatch))

		ok, err := store.HasKey(context.Background(), "marketing", "missing")
		require.NoError(mt, err)
		require.False(mt, ok)
	})
}

func TestEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("status and job collections", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(),
		)

		require.NoError(mt, store.EnsureIndexes(context.Background(), []string{"marketing", "data_science"}))

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 3)
		first := started[0].Command
		require.Equal(mt, "scheduler_status", first.Lookup("createIndexes").StringValue())
		index := first.Lookup("indexes").Array().Index(0).Value().Document()
		require.Equal(mt, "type_1", index.Lookup("name").StringValue())
		require.True(mt, index.Lookup("unique").Boolean())
	})

	mt.Run("status index failure", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := store.EnsureIndexes(context.Background(), []string{"marketing"})
		require.Error(mt, err)
		require.Contains(mt, err.Error(), "scheduler_status")
	})
}

func TestInsertMany(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	records := []crawler.JobRecord{
		{UniqueKey: "a", Title: "A", Company: "X"},
		{UniqueKey: "b", Title: "B", Company: "X"},
	}

	mt.Run("all written", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		n, err := store.InsertMany(context.Background(), "marketing", records)
		require.NoError(mt, err)
		require.Equal(mt, 2, n)
	})

	mt.Run("duplicate tolerated", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   1,
			Code:    11000,
			Message: "duplicate key error",
		}))

		n, err := store.InsertMany(context.Background(), "marketing", records)
		require.Error(mt, err)
		require.Equal(mt, 1, n)
	})

	mt.Run("empty batch", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		n, err := store.InsertMany(context.Background(), "marketing", nil)
		require.NoError(mt, err)
		require.Zero(mt, n)
	})
}

func TestFindJobsBackfills(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("single collection", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		crawled := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "jobs.Marketing", mtest.FirstBatch,
			bson.D{
				{Key: "unique_key", Value: "k"},
				{Key: "title", Value: "Growth Lead"},
				{Key: "company", Value: "Acme"},
				{Key: "salary_avg_million_vnd", Value: 25.5},
				{Key: "timestamp", Value: crawled},
			}))

		records, err := store.FindJobs(context.Background(), "Marketing")
		require.NoError(mt, err)
		require.Len(mt, records, 1)
		require.Equal(mt, "Marketing", records[0].Category)
		require.Equal(mt, 25.5, records[0].SalaryAvg)
		require.NotNil(mt, records[0].Skills)
		require.True(mt, crawled.Equal(records[0].CrawledAt))
	})
}

func TestCollectionsSkipsStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("counts", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "scheduler_status")
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "jobs.$cmd.listCollections", mtest.FirstBatch,
				bson.D{{Key: "name", Value: "scheduler_status"}},
				bson.D{{Key: "name", Value: "marketing"}},
			),
			mtest.CreateCursorResponse(0, "jobs.marketing", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
		)

		infos, err := store.Collections(context.Background())
		require.NoError(mt, err)
		require.Equal(mt, []crawler.CollectionInfo{{Name: "marketing", Count: 3}}, infos)
	})
}

func TestStatusDocument(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "jobs.scheduler_status", mtest.FirstBatch))

		_, err := store.GetStatus(context.Background())
		require.ErrorIs(mt, err, crawler.ErrNotFound)
	})

	mt.Run("decode", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "jobs.scheduler_status", mtest.FirstBatch,
			bson.D{
				{Key: "type", Value: crawler.StatusType},
				{Key: "crawl_status", Value: "completed"},
				{Key: "crawled_today", Value: true},
				{Key: "last_crawl_records", Value: 12},
			}))

		st, err := store.GetStatus(context.Background())
		require.NoError(mt, err)
		require.Equal(mt, crawler.StateCompleted, st.State)
		require.True(mt, st.CrawledToday)
		require.Equal(mt, 12, st.LastCrawlRecords)
	})

	mt.Run("init creates once", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: 1},
				bson.E{Key: "nModified", Value: 0},
				bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "id-1"}}}},
			),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
		)

		created, err := store.InitStatus(context.Background(), crawler.CrawlStatus{State: crawler.StateWaiting})
		require.NoError(mt, err)
		require.True(mt, created)
		created, err = store.InitStatus(context.Background(), crawler.CrawlStatus{State: crawler.StateWaiting})
		require.NoError(mt, err)
		require.False(mt, created)
	})

	mt.Run("acquire lease", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		ok, err := store.AcquireRun(context.Background(), "run-1", now, now.Add(-2*time.Hour))
		require.NoError(mt, err)
		require.True(mt, ok)
		ok, err = store.AcquireRun(context.Background(), "run-2", now, now.Add(-2*time.Hour))
		require.NoError(mt, err)
		require.False(mt, ok)
	})

	mt.Run("put", func(mt *mtest.T) {
		store := NewWithDatabase(mt.DB, "")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, store.PutStatus(context.Background(), crawler.CrawlStatus{State: crawler.StateCompleted}))
	})
}
