package crawler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topcv-job-insights/internal/hash/sha256"
)

type MockPageFetcher struct {
	mock.Mock
}

func (m *MockPageFetcher) FetchPage(ctx context.Context, sourceURL string, page int) Page {
	args := m.Called(ctx, sourceURL, page)
	return args.Get(0).(Page)
}

type titleNormalizer struct{}

func (titleNormalizer) Normalize(raw RawJob, category Category, fetchedAt time.Time) JobRecord {
	return JobRecord{
		Title:     raw.Title,
		Company:   raw.Company,
		Category:  category.Name,
		Page:      raw.Page,
		Skills:    []string{},
		CrawledAt: fetchedAt,
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	batches map[string][][]JobRecord
	seen    map[string]struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{batches: map[string][][]JobRecord{}, seen: map[string]struct{}{}}
}

func (w *recordingWriter) SaveNewRecords(_ context.Context, collection string, records []JobRecord) SaveResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches[collection] = append(w.batches[collection], records)
	var res SaveResult
	for _, rec := range records {
		key := collection + "/" + NaturalKey(rec.Title, rec.Company, rec.UpdateDate)
		if _, ok := w.seen[key]; ok {
			res.Skipped++
			continue
		}
		w.seen[key] = struct{}{}
		res.Inserted++
	}
	return res
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time {
	return f.now
}

type recordingBlobStore struct {
	mu    sync.Mutex
	paths []string
	fail  bool
}

func (b *recordingBlobStore) PutObject(_ context.Context, path string, _ string, body io.Reader) (string, error) {
	if b.fail {
		return "", errors.New("bucket unavailable")
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths = append(b.paths, path)
	return "memory://" + path, nil
}

func pageOf(number int, titles ...string) Page {
	jobs := make([]RawJob, 0, len(titles))
	for _, title := range titles {
		jobs = append(jobs, RawJob{Page: number, Title: title, Company: "Acme"})
	}
	return Page{Number: number, StatusCode: 200, Body: []byte("<html></html>"), Jobs: jobs}
}

func TestOrchestratorStopsAtFirstEmptyPage(t *testing.T) {
	t.Parallel()

	category := Category{Name: "Data Science", Collection: "data-science", URL: "https://example.org/ds"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, 1).Return(pageOf(1, "a", "b"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 2).Return(pageOf(2, "c"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 3).Return(Page{Number: 3, Jobs: []RawJob{}})

	writer := newRecordingWriter()
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}},
		fetcher, titleNormalizer{}, writer, nil,
		fakeClock{now: time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)},
		&recordingPauser{}, nil,
	)

	total, err := orch.RunCrawl(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, writer.batches["data-science"], 2)
	for _, batch := range writer.batches["data-science"] {
		for _, rec := range batch {
			require.LessOrEqual(t, rec.Page, 2)
			require.Equal(t, "Data Science", rec.Category)
		}
	}
	fetcher.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "FetchPage", mock.Anything, category.URL, 4)
}

func TestOrchestratorContinuesAfterDuplicatePage(t *testing.T) {
	t.Parallel()

	category := Category{Name: "Marketing", Collection: "marketing", URL: "https://example.org/mk"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, 1).Return(pageOf(1, "a"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 2).Return(pageOf(2, "a"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 3).Return(pageOf(3, "b"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 4).Return(Page{Number: 4, Jobs: []RawJob{}})

	writer := newRecordingWriter()
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}},
		fetcher, titleNormalizer{}, writer, nil, fakeClock{now: time.Now()}, &recordingPauser{}, nil,
	)

	total, err := orch.RunCrawl(context.Background(), "run-2")
	require.NoError(t, err)
	require.Equal(t, 2, total, "page 2 held only duplicates but page 3 must still be crawled")
	fetcher.AssertExpectations(t)
}

func TestOrchestratorPausesBetweenCategories(t *testing.T) {
	t.Parallel()

	first := Category{Name: "One", Collection: "one", URL: "https://example.org/1"}
	second := Category{Name: "Two", Collection: "two", URL: "https://example.org/2"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, mock.Anything, 1).Return(Page{Jobs: []RawJob{}})

	pauser := &recordingPauser{}
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{first, second}, CategoryDelay: 2 * time.Second},
		fetcher, titleNormalizer{}, newRecordingWriter(), nil, fakeClock{now: time.Now()}, pauser, nil,
	)

	total, err := orch.RunCrawl(context.Background(), "run-3")
	require.NoError(t, err)
	require.Zero(t, total)
	require.Equal(t, []time.Duration{2 * time.Second}, pauser.delays)
	fetcher.AssertNumberOfCalls(t, "FetchPage", 2)
}

func TestOrchestratorHonorsMaxPages(t *testing.T) {
	t.Parallel()

	category := Category{Name: "QA", Collection: "qa", URL: "https://example.org/qa"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, mock.Anything).Return(pageOf(1, "x"))

	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}, MaxPages: 2},
		fetcher, titleNormalizer{}, newRecordingWriter(), nil, fakeClock{now: time.Now()}, &recordingPauser{}, nil,
	)

	_, err := orch.RunCrawl(context.Background(), "run-4")
	require.NoError(t, err)
	fetcher.AssertNumberOfCalls(t, "FetchPage", 2)
}

func TestOrchestratorArchivesPages(t *testing.T) {
	t.Parallel()

	category := Category{Name: "PM", Collection: "product-management", URL: "https://example.org/pm"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, 1).Return(pageOf(1, "a"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 2).Return(Page{Number: 2, Jobs: []RawJob{}})

	blobs := &recordingBlobStore{}
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}, ArchivePrefix: "/raw/"},
		fetcher, titleNormalizer{}, newRecordingWriter(), blobs,
		fakeClock{now: time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)}, &recordingPauser{}, nil,
	)

	_, err := orch.RunCrawl(context.Background(), "run-5")
	require.NoError(t, err)
	require.Equal(t, []string{"raw/product-management/2025-10-12/page-1-run-5.html"}, blobs.paths)
}

func TestOrchestratorArchiveNamesCarryDigest(t *testing.T) {
	t.Parallel()

	category := Category{Name: "PM", Collection: "pm", URL: "https://example.org/pm"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, 1).Return(pageOf(1, "a"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 2).Return(Page{Number: 2, Jobs: []RawJob{}})

	blobs := &recordingBlobStore{}
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}},
		fetcher, titleNormalizer{}, newRecordingWriter(), blobs,
		fakeClock{now: time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)}, &recordingPauser{}, nil,
	).WithHasher(sha256.New(12))

	_, err := orch.RunCrawl(context.Background(), "run-7")
	require.NoError(t, err)
	require.Len(t, blobs.paths, 1)
	require.Regexp(t, `^pm/2025-10-12/page-1-run-7-[0-9a-f]{12}\.html$`, blobs.paths[0])
}

func TestOrchestratorIgnoresArchiveFailure(t *testing.T) {
	t.Parallel()

	category := Category{Name: "PM", Collection: "pm", URL: "https://example.org/pm"}
	fetcher := new(MockPageFetcher)
	fetcher.On("FetchPage", mock.Anything, category.URL, 1).Return(pageOf(1, "a"))
	fetcher.On("FetchPage", mock.Anything, category.URL, 2).Return(Page{Number: 2, Jobs: []RawJob{}})

	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{category}},
		fetcher, titleNormalizer{}, newRecordingWriter(), &recordingBlobStore{fail: true},
		fakeClock{now: time.Now()}, &recordingPauser{}, nil,
	)

	total, err := orch.RunCrawl(context.Background(), "run-6")
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestOrchestratorReturnsErrorWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := new(MockPageFetcher)
	orch := NewOrchestrator(
		OrchestratorConfig{Categories: []Category{{Name: "A", Collection: "a", URL: "https://example.org/a"}}},
		fetcher, titleNormalizer{}, newRecordingWriter(), nil, fakeClock{now: time.Now()}, &recordingPauser{}, nil,
	)

	_, err := orch.RunCrawl(ctx, "run-7")
	require.ErrorIs(t, err, context.Canceled)
	fetcher.AssertNotCalled(t, "FetchPage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNaturalKey(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "Backend Dev_Acme_2025-10-12", NaturalKey("Backend Dev", "Acme", &date))
	require.Equal(t, "Backend Dev_Acme_N/A", NaturalKey("Backend Dev", "Acme", nil))
}

func TestJobRecordBackfill(t *testing.T) {
	t.Parallel()

	rec := JobRecord{SalaryAvg: -1}
	rec.Backfill("Marketing")
	require.Equal(t, "Marketing", rec.Category)
	require.NotNil(t, rec.Skills)
	require.Zero(t, rec.SalaryAvg)

	rec = JobRecord{Category: "Data Science"}
	rec.Backfill("Marketing")
	require.Equal(t, "Data Science", rec.Category)
}
