package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Service turns rendered HTML into opportunity records. The LLM path runs
// first; configured CSS selectors are the fallback when the LLM is
// unavailable or returns unparseable output.
type Service struct {
	provider  interfaces.LLMProvider
	converter *md.Converter
	logger    arbor.ILogger
}

// NewService creates an extractor over the given provider
func NewService(provider interfaces.LLMProvider, logger arbor.ILogger) *Service {
	converter := md.NewConverter("", true, nil)
	return &Service{
		provider:  provider,
		converter: converter,
		logger:    logger,
	}
}

// llmItem is the JSON shape the extraction prompt asks for
type llmItem struct {
	Title           string   `json:"title"`
	ReferenceNumber string   `json:"reference_number"`
	Deadline        string   `json:"deadline"`
	Value           string   `json:"value"`
	Currency        string   `json:"currency"`
	Description     string   `json:"description"`
	Categories      []string `json:"categories"`
	Location        string   `json:"location"`
	SourceURL       string   `json:"source_url"`
	DocumentURLs    []string `json:"document_urls"`
}

// Extract runs LLM extraction with selector fallback, then applies the
// shared post-processing: value and deadline parsing, confidence scoring,
// title filtering and per-page dedup by source_url.
func (s *Service) Extract(ctx context.Context, html string, pageURL string, site *models.Site) (*models.ExtractedPage, error) {
	items, docURLs, err := s.extractViaLLM(ctx, html, pageURL, site)
	if err != nil {
		llmErr := err
		s.logger.Debug().
			Err(err).
			Str("url", pageURL).
			Msg("LLM extraction unavailable, falling back to selectors")
		items, docURLs, err = s.extractViaSelectors(html, pageURL, site)
		if err != nil {
			// A provider outage keeps its transient category so the job
			// requeues instead of failing as unextractable
			if models.Categorize(llmErr) == models.ErrorCategoryTransient {
				return nil, fmt.Errorf("no selector fallback after provider failure: %w", llmErr)
			}
			return nil, err
		}
	}

	page := s.postProcess(items, pageURL, site)
	page.DocumentURLs = dedupeStrings(append(page.DocumentURLs, docURLs...))

	if len(page.Opportunities) == 0 && len(items) > 0 {
		s.logger.Warn().Str("url", pageURL).Msg("All extracted items dropped in post-processing")
	}
	return page, nil
}

// extractViaLLM converts the page to markdown, prompts the provider and
// parses the JSON array it returns.
func (s *Service) extractViaLLM(ctx context.Context, html, pageURL string, site *models.Site) ([]llmItem, []string, error) {
	content, err := s.converter.ConvertString(html)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert page to markdown: %w", err)
	}

	prompt := buildPrompt(content, pageURL, site.ScrapingConfig.ExtractionHints)
	response, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	var items []llmItem
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &items); err != nil {
		return nil, nil, fmt.Errorf("%w: provider returned unparseable JSON: %v", models.ErrExtractionFailed, err)
	}

	var docURLs []string
	for _, item := range items {
		docURLs = append(docURLs, item.DocumentURLs...)
	}
	return items, docURLs, nil
}

// extractViaSelectors applies the configured CSS selector map to the page
func (s *Service) extractViaSelectors(html, pageURL string, site *models.Site) ([]llmItem, []string, error) {
	selectors := site.ScrapingConfig.Selectors
	if selectors.OpportunityContainer == "" {
		return nil, nil, fmt.Errorf("%w: no selectors configured", models.ErrExtractionFailed)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: page is not parseable HTML: %v", models.ErrExtractionFailed, err)
	}

	var (
		items   []llmItem
		docURLs []string
	)
	doc.Find(selectors.OpportunityContainer).Each(func(_ int, container *goquery.Selection) {
		item := llmItem{
			Title:           selectText(container, selectors.Title),
			Description:     selectText(container, selectors.Description),
			Deadline:        selectText(container, selectors.Deadline),
			Value:           selectText(container, selectors.Value),
			ReferenceNumber: selectText(container, selectors.Reference),
		}
		if selectors.Link != "" {
			if href, ok := container.Find(selectors.Link).First().Attr("href"); ok {
				if resolved, err := common.ResolveURL(pageURL, href); err == nil {
					item.SourceURL = resolved
				}
			}
		}
		if selectors.Documents != "" {
			container.Find(selectors.Documents).Each(func(_ int, link *goquery.Selection) {
				if href, ok := link.Attr("href"); ok {
					if resolved, err := common.ResolveURL(pageURL, href); err == nil {
						docURLs = append(docURLs, resolved)
					}
				}
			})
		}
		items = append(items, item)
	})

	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: selectors matched nothing", models.ErrExtractionFailed)
	}
	return items, docURLs, nil
}

// postProcess normalizes raw items into opportunity records
func (s *Service) postProcess(items []llmItem, pageURL string, site *models.Site) *models.ExtractedPage {
	page := &models.ExtractedPage{}
	seen := make(map[string]bool)

	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		sourceURL := strings.TrimSpace(item.SourceURL)
		if sourceURL != "" {
			if resolved, err := common.ResolveURL(pageURL, sourceURL); err == nil {
				sourceURL = resolved
			}
		} else {
			sourceURL = pageURL + "#" + slugify(title)
		}
		if seen[sourceURL] {
			continue
		}
		seen[sourceURL] = true

		value, parsedCurrency := ParseMoney(item.Value)
		currency := strings.ToUpper(strings.TrimSpace(item.Currency))
		if currency == "" {
			currency = parsedCurrency
		}
		if currency == "" {
			currency = "USD"
		}

		deadline := ParseDeadline(item.Deadline)
		payload, err := json.Marshal(item)
		if err != nil {
			payload = nil
		}

		page.Opportunities = append(page.Opportunities, &models.Opportunity{
			ID:               common.NewOpportunityID(),
			SiteID:           site.ID,
			Title:            title,
			Description:      strings.TrimSpace(item.Description),
			Deadline:         deadline,
			Value:            value,
			Currency:         currency,
			ReferenceNumber:  strings.TrimSpace(item.ReferenceNumber),
			SourceURL:        sourceURL,
			Categories:       item.Categories,
			Location:         strings.TrimSpace(item.Location),
			ExtractedPayload: payload,
			Confidence:       ComputeConfidence(title, deadline, item.Description),
		})
	}
	return page
}

// selectText returns the trimmed text of the first match, or ""
func selectText(container *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(container.Find(selector).First().Text())
}

// slugify builds a stable URL fragment from a title
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var _ interfaces.ExtractorService = (*Service)(nil)
