package documents

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Service downloads attachment URLs concurrently, stores the blobs and
// extracts text. It never fails a batch: each URL yields a document whose
// status records what happened to it.
type Service struct {
	store      interfaces.ObjectStore
	extractor  interfaces.TextExtractor
	violations interfaces.RateLimiter
	client     *http.Client
	config     *common.ScraperConfig
	logger     arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// now is replaceable in tests so object keys are deterministic
	now func() time.Time
}

// NewService creates the document processor. The violations limiter is
// shared with the scrape runner so 429 responses from an origin count
// toward the same per-run threshold.
func NewService(store interfaces.ObjectStore, extractor interfaces.TextExtractor, violations interfaces.RateLimiter, config *common.ScraperConfig, logger arbor.ILogger) *Service {
	return &Service{
		store:      store,
		extractor:  extractor,
		violations: violations,
		client:     &http.Client{Timeout: 60 * time.Second},
		config:     config,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
}

// Process handles a deduplicated batch of document URLs
func (s *Service) Process(ctx context.Context, urls []string) []*models.Document {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u != "" && !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	if len(unique) == 0 {
		return nil
	}

	workers := s.config.DocumentWorkers
	if workers <= 0 {
		workers = 4
	}

	docs := make([]*models.Document, len(unique))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, docURL := range unique {
		wg.Add(1)
		go func(i int, docURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			docs[i] = s.processOne(ctx, docURL)
		}(i, docURL)
	}
	wg.Wait()
	return docs
}

func (s *Service) processOne(ctx context.Context, docURL string) *models.Document {
	now := s.now().UTC()
	doc := &models.Document{
		ID:        common.NewDocumentID(),
		SourceURL: docURL,
		Filename:  filenameFor(docURL),
		Status:    models.DocumentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	domain, _ := common.ExtractDomain(docURL)
	if s.violations != nil && domain != "" && s.violations.Exceeded(domain) {
		doc.Status = models.DocumentStatusFailed
		doc.Error = models.ErrRateLimitExceeded.Error()
		return doc
	}

	if err := s.hostLimiter(docURL).Wait(ctx); err != nil {
		doc.Status = models.DocumentStatusFailed
		doc.Error = err.Error()
		return doc
	}

	data, mimeType, err := s.download(ctx, docURL)
	if err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) && s.violations != nil && domain != "" {
			s.violations.RecordViolation(domain)
		}
		s.logger.Warn().Str("url", docURL).Err(err).Msg("Document download failed")
		doc.Status = models.DocumentStatusFailed
		doc.Error = err.Error()
		return doc
	}
	doc.SizeBytes = int64(len(data))
	doc.MimeType = mimeType
	doc.ObjectKey = fmt.Sprintf("pdfs/%s_%x.pdf", now.Format("20060102_150405"), md5.Sum([]byte(docURL)))

	if err := s.store.Put(ctx, doc.ObjectKey, data, mimeType); err != nil {
		s.logger.Warn().Str("url", docURL).Err(err).Msg("Document upload failed")
		doc.Status = models.DocumentStatusFailed
		doc.Error = err.Error()
		return doc
	}

	// Text extraction is best-effort; the stored blob is the deliverable
	text, meta, err := s.extractor.ExtractText(ctx, data)
	if err != nil {
		s.logger.Debug().Str("url", docURL).Err(err).Msg("Text extraction failed")
	} else {
		doc.ExtractedText = text
		if meta != nil {
			if payload, merr := json.Marshal(meta); merr == nil {
				doc.ExtractedPayload = payload
			}
		}
	}
	doc.Status = models.DocumentStatusDone
	return doc
}

func (s *Service) download(ctx context.Context, docURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid document url: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", fmt.Errorf("download returned 429: %w", models.ErrRateLimitExceeded)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	maxBytes := s.config.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	if resp.ContentLength > maxBytes {
		return nil, "", fmt.Errorf("document is %d bytes, cap is %d", resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download read failed: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("document exceeds %d byte cap", maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// hostLimiter returns the download limiter for the URL's host
func (s *Service) hostLimiter(docURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(docURL); err == nil {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[host]
	if !ok {
		perSecond := s.config.PerHostDownloads
		if perSecond <= 0 {
			perSecond = 2
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		s.limiters[host] = limiter
	}
	return limiter
}

func filenameFor(docURL string) string {
	u, err := url.Parse(docURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "document.pdf"
	}
	return path.Base(u.Path)
}

var _ interfaces.DocumentService = (*Service)(nil)
