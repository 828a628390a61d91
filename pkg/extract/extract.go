package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ErrExtractionFailed marks a source that could not be fetched or parsed.
// Distinct from "the source had no text": callers diagnose the two
// differently, so extraction failures must not degrade to empty content.
var ErrExtractionFailed = errors.New("extraction failed")

type URLExtractorConfig struct {
	RateLimit float64 // requests per second against remote hosts
	Timeout   time.Duration
}

// URLExtractor fetches a page and returns its readable text.
type URLExtractor struct {
	config  URLExtractorConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewURLExtractor(config URLExtractorConfig) *URLExtractor {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	return &URLExtractor{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Extract fetches one URL and returns the text of its main content area.
func (e *URLExtractor) Extract(ctx context.Context, urlStr string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d for %s", ErrExtractionFailed, resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()
	return extractMainContent(doc), nil
}

func extractMainContent(doc *goquery.Document) string {
	selectors := []string{"main", "article", ".content", "#content"}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}
	return strings.TrimSpace(content)
}

// PDFText decodes uploaded PDF-extracted bytes as UTF-8 text, dropping
// invalid sequences. Real PDF parsing happens upstream of this service.
func PDFText(data []byte) string {
	s := string(data)
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
