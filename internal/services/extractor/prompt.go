package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxPromptContentChars caps the page content sent to the LLM
const maxPromptContentChars = 15_000

const promptTemplate = `You are extracting tender and grant opportunities from a web page.

Page URL: %s
%s
Return a JSON array. Each element describes one opportunity with these fields:
- "title" (string, required): the opportunity title
- "reference_number" (string): official reference or tender number
- "deadline" (string): submission deadline in ISO-8601 (YYYY-MM-DD), empty if unknown
- "value" (string): monetary value as written on the page, e.g. "$1.2M" or "USD 500,000"
- "currency" (string): ISO-4217 code if identifiable
- "description" (string): a short summary of the opportunity
- "categories" (array of strings): industry or procurement categories
- "location" (string): delivery or issuing location
- "source_url" (string): absolute URL of the opportunity detail page
- "document_urls" (array of strings): URLs of attached documents (PDFs, specs)

Rules: respond with the JSON array only, no prose and no markdown fences.
If the page lists no opportunities, return [].

Page content:
%s`

// buildPrompt assembles the extraction prompt for one page. Free-form
// site hints are passed through verbatim.
func buildPrompt(content, pageURL, hints string) string {
	if len(content) > maxPromptContentChars {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character
		cut := maxPromptContentChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	hintBlock := ""
	if strings.TrimSpace(hints) != "" {
		hintBlock = fmt.Sprintf("Site-specific hints: %s\n", hints)
	}
	return fmt.Sprintf(promptTemplate, pageURL, hintBlock, content)
}

// stripCodeFences removes a surrounding markdown code fence from an LLM
// response, tolerating a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
