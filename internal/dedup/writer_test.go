package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
	"github.com/JakeFAU/topcv-job-insights/internal/storage/memory"
)

func job(title, company string, date *time.Time) crawler.JobRecord {
	return crawler.JobRecord{Title: title, Company: company, UpdateDate: date, Skills: []string{}}
}

func TestSaveNewRecordsIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	writer := New(store, nil)
	ctx := context.Background()
	date := time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC)
	batch := []crawler.JobRecord{job("Go Dev", "Acme", &date), job("QA", "Acme", nil)}

	first := writer.SaveNewRecords(ctx, "software-engineering", batch)
	require.Equal(t, 2, first.Inserted)
	require.Zero(t, first.Skipped)

	second := writer.SaveNewRecords(ctx, "software-engineering", batch)
	require.Zero(t, second.Inserted)
	require.Equal(t, 2, second.Skipped)

	stored, err := store.FindJobs(ctx, "software-engineering")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "Go Dev_Acme_2025-10-12", stored[0].UniqueKey)
	require.Equal(t, "QA_Acme_N/A", stored[1].UniqueKey)
}

func TestSaveNewRecordsKeepsFirstOfCollidingBatch(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	writer := New(store, nil)
	ctx := context.Background()
	first := job("Go Dev", "Acme", nil)
	first.SalaryText = "first"
	second := job("Go Dev", "Acme", nil)
	second.SalaryText = "second"

	res := writer.SaveNewRecords(ctx, "it", []crawler.JobRecord{first, second})
	require.Equal(t, 1, res.Inserted)
	require.Equal(t, 1, res.Skipped)

	stored, err := store.FindJobs(ctx, "it")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "first", stored[0].SalaryText)
}

func TestSaveNewRecordsEmptyBatch(t *testing.T) {
	t.Parallel()

	res := New(memory.NewStore(), nil).SaveNewRecords(context.Background(), "it", nil)
	require.Equal(t, crawler.SaveResult{}, res)
}

type failingStore struct {
	crawler.JobStore
	lookupErr error
	insertErr error
	inserted  int
}

func (f *failingStore) HasKey(context.Context, string, string) (bool, error) {
	return false, f.lookupErr
}

func (f *failingStore) InsertMany(_ context.Context, _ string, records []crawler.JobRecord) (int, error) {
	if f.insertErr != nil {
		return f.inserted, f.insertErr
	}
	return len(records), nil
}

func TestSaveNewRecordsStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := &failingStore{lookupErr: errors.New("connection refused")}
	res := New(store, nil).SaveNewRecords(context.Background(), "it", []crawler.JobRecord{job("a", "b", nil)})
	require.Zero(t, res.Inserted)
	require.Equal(t, 1, res.Failed)
}

func TestSaveNewRecordsPartialInsert(t *testing.T) {
	t.Parallel()

	store := &failingStore{insertErr: errors.New("duplicate key"), inserted: 1}
	res := New(store, nil).SaveNewRecords(context.Background(), "it", []crawler.JobRecord{
		job("a", "x", nil), job("b", "x", nil),
	})
	require.Equal(t, 1, res.Inserted)
	require.Equal(t, 1, res.Failed)
}
