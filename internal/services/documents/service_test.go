package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/models"
	"github.com/hoistscout/hoistscout/internal/services/ratelimit"
)

// fakeStore keeps uploaded blobs in memory
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// fakeExtractor scripts the text extraction result
type fakeExtractor struct {
	text string
	meta *models.DocumentMetadata
	err  error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, data []byte) (string, *models.DocumentMetadata, error) {
	return f.text, f.meta, f.err
}

func newTestService(store *fakeStore, extractor *fakeExtractor) *Service {
	config := common.NewDefaultConfig()
	config.Scraper.DocumentWorkers = 2
	config.Scraper.PerHostDownloads = 1000
	svc := NewService(store, extractor, ratelimit.NewLimiter(common.GetLogger()), &config.Scraper, common.GetLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestProcess_HappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer server.Close()

	store := newFakeStore()
	extractor := &fakeExtractor{text: "tender text", meta: &models.DocumentMetadata{Pages: 2}}
	svc := newTestService(store, extractor)

	docs := svc.Process(context.Background(), []string{server.URL + "/docs/spec.pdf"})
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, models.DocumentStatusDone, doc.Status)
	assert.Equal(t, "spec.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Equal(t, "tender text", doc.ExtractedText)
	assert.Contains(t, doc.ObjectKey, "pdfs/20260825_120000_")
	assert.Contains(t, string(doc.ExtractedPayload), `"pages":2`)

	stored, err := store.Get(context.Background(), doc.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), stored)
}

func TestProcess_DedupsURLs(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Write([]byte("data"))
	}))
	defer server.Close()

	svc := newTestService(newFakeStore(), &fakeExtractor{})
	docURL := server.URL + "/a.pdf"

	docs := svc.Process(context.Background(), []string{docURL, docURL, docURL})
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, hits)
}

func TestProcess_HTTPErrorMarksFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store, &fakeExtractor{})

	docs := svc.Process(context.Background(), []string{server.URL + "/gone.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].Error, "404")
	assert.Empty(t, store.objects)
}

func TestProcess_RateLimitResponsesTripTheBreaker(t *testing.T) {
	var mu sync.Mutex
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	config := common.NewDefaultConfig()
	config.Scraper.DocumentWorkers = 1
	config.Scraper.PerHostDownloads = 1000
	limiter := ratelimit.NewLimiter(common.GetLogger())
	svc := NewService(newFakeStore(), &fakeExtractor{}, limiter, &config.Scraper, common.GetLogger())

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/doc-%d.pdf", server.URL, i)
	}

	docs := svc.Process(context.Background(), urls)
	require.Len(t, docs, 6)
	for _, doc := range docs {
		assert.Equal(t, models.DocumentStatusFailed, doc.Status)
	}

	domain, err := common.ExtractDomain(server.URL)
	require.NoError(t, err)
	assert.True(t, limiter.Exceeded(domain))
	assert.Equal(t, 4, hits, "downloads stop once the domain trips the threshold")
}

func TestProcess_OversizedDocumentSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	store := newFakeStore()
	extractor := &fakeExtractor{}
	config := common.NewDefaultConfig()
	config.Scraper.MaxDocumentBytes = 1024
	config.Scraper.PerHostDownloads = 1000
	svc := NewService(store, extractor, nil, &config.Scraper, common.GetLogger())

	docs := svc.Process(context.Background(), []string{server.URL + "/huge.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].Error, "cap")
	assert.Empty(t, store.objects)
}

func TestProcess_TextExtractionFailureStillDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not really a pdf"))
	}))
	defer server.Close()

	store := newFakeStore()
	svc := newTestService(store, &fakeExtractor{err: errors.New("garbled stream")})

	docs := svc.Process(context.Background(), []string{server.URL + "/odd.pdf"})
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, models.DocumentStatusDone, doc.Status, "stored blob is the deliverable")
	assert.Empty(t, doc.ExtractedText)
	assert.Len(t, store.objects, 1)
}

func TestProcess_UploadFailureMarksFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	store := newFakeStore()
	store.putErr = errors.New("bucket unavailable")
	svc := newTestService(store, &fakeExtractor{})

	docs := svc.Process(context.Background(), []string{server.URL + "/a.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].Error, "bucket unavailable")
}

func TestProcess_EmptyBatch(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeExtractor{})
	assert.Nil(t, svc.Process(context.Background(), nil))
	assert.Nil(t, svc.Process(context.Background(), []string{""}))
}
