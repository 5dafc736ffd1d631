// Package wiki fetches encyclopedia summaries for herb species and distills
// the sentences describing medicinal or traditional use.
package wiki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"github.com/k3a/html2text"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/errors"
	"github.com/mkallio/herbid-go/internal/logging"
)

const (
	// User-Agent constants following Wikimedia robot policy
	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	userAgentName    = "HerbID-Go"
	userAgentContact = "https://github.com/mkallio/herbid-go"
	userAgentLibrary = "Go-HTTP-Client"

	requestTimeout = 10 * time.Second

	// Bounds on the distilled summary.
	maxSentences   = 5
	maxSummaryLen  = 1200
	minUsefulLen   = 120 // raw extract shorter than this is not worth returning
	fallbackPrefix = 400 // prefix length returned when no sentence qualifies

	positiveTTL = 12 * time.Hour
	negativeTTL = 30 * time.Minute
)

// ErrNoSummary is returned when every candidate title fails or yields nothing
// usable. Callers treat it as "this source contributed nothing".
var ErrNoSummary = errors.NewStd("no encyclopedia summary found")

// Sentences containing any of these keywords are considered relevant to
// medicinal or traditional use.
var useKeywords = []string{
	"use", "used", "medicinal", "medicine", "treat", "remedy", "herbal",
	"traditional", "therapeutic", "benefit", "cure", "healing",
	"anti-inflammatory", "antioxidant",
}

// Package-level logger for the wiki service
var (
	wikiLogger   *slog.Logger
	wikiLevelVar = new(slog.LevelVar)
	loggerOnce   sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		wikiLevelVar.Set(slog.LevelInfo)

		var err error
		wikiLogger, _, err = logging.NewFileLogger("logs/wiki.log", "wiki", wikiLevelVar)
		if err != nil {
			logging.Error("Failed to initialize wiki file logger", "error", err)
			wikiLogger = logging.NoopLogger("wiki", wikiLevelVar)
		}
	})
	return wikiLogger
}

// Client queries a Wikipedia-compatible REST summary endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache
	userAgent  string
	debug      bool
	maxRetries int
}

// buildUserAgent constructs a user-agent string that complies with Wikimedia's robot policy.
// Format: <client name>/<version> (<contact information>) <library/framework name>/<version>
func buildUserAgent(appVersion string) string {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s) %s/%s",
		userAgentName, appVersion, userAgentContact, userAgentLibrary, runtime.Version())
}

// NewClient creates a summary client for the configured endpoint.
func NewClient(settings *conf.Settings) *Client {
	endpoint := strings.TrimSuffix(settings.Wikipedia.Endpoint, "/")

	// 2 requests per second to respect Wikipedia's rate limits.
	limiter := rate.NewLimiter(rate.Limit(2), 2)

	if settings.Wikipedia.Debug {
		wikiLevelVar.Set(slog.LevelDebug)
	}

	getLogger().Info("Wikipedia summary client initialized",
		"endpoint", endpoint,
		"user_agent", buildUserAgent(settings.Version),
		"rate_limit_rps", 2)

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    limiter,
		cache:      gocache.New(positiveTTL, time.Hour),
		userAgent:  buildUserAgent(settings.Version),
		debug:      settings.Wikipedia.Debug,
		maxRetries: 2,
	}
}

// MedicinalSummary resolves a query to the use-related portion of its
// encyclopedia summary. It tries a cascade of candidate titles and returns
// ErrNoSummary when none yields usable text. Network and status failures
// advance the cascade, they are never raised to the caller.
func (c *Client) MedicinalSummary(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoSummary
	}

	reqID := uuid.New().String()[:8]
	logger := getLogger().With("request_id", reqID, "query", query)

	for _, title := range candidateTitles(query) {
		extract, err := c.fetchExtract(ctx, reqID, title)
		if err != nil {
			logger.Debug("Candidate title yielded no extract", "title", title, "error", err)
			continue
		}

		if summary := distillUseSentences(extract); summary != "" {
			logger.Info("Encyclopedia summary resolved", "title", title, "length", len(summary))
			return summary, nil
		}
		logger.Debug("Extract contained no usable sentences", "title", title)
	}

	return "", ErrNoSummary
}

// candidateTitles expands a query into the title fallback cascade: the raw
// query, the query with trailing species-rank abbreviations stripped, and the
// genus token alone.
func candidateTitles(query string) []string {
	titles := []string{query}

	for _, suffix := range []string{" sp.", " spp."} {
		if strings.HasSuffix(query, suffix) {
			titles = append(titles, strings.TrimSpace(strings.TrimSuffix(query, suffix)))
			break
		}
	}

	if idx := strings.IndexByte(query, ' '); idx > 3 {
		titles = append(titles, query[:idx])
	}

	// Dedupe while preserving order.
	seen := make(map[string]bool, len(titles))
	out := titles[:0]
	for _, title := range titles {
		if !seen[title] {
			seen[title] = true
			out = append(out, title)
		}
	}
	return out
}

// fetchExtract retrieves the plain-text extract for one title, consulting the
// in-process cache first. Cached misses are remembered so repeated failing
// titles do not hammer the API.
func (c *Client) fetchExtract(ctx context.Context, reqID, title string) (string, error) {
	if cached, found := c.cache.Get(title); found {
		extract, _ := cached.(string)
		if extract == "" {
			return "", ErrNoSummary
		}
		return extract, nil
	}

	extract, err := c.fetchExtractUncached(ctx, reqID, title)
	if err != nil {
		if errors.Is(err, ErrNoSummary) {
			c.cache.Set(title, "", negativeTTL)
		}
		return "", err
	}

	c.cache.Set(title, extract, positiveTTL)
	return extract, nil
}

func (c *Client) fetchExtractUncached(ctx context.Context, reqID, title string) (string, error) {
	logger := getLogger().With("request_id", reqID, "title", title)

	fullURL := c.endpoint + "/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.New(err).
				Component("wiki").
				Category(errors.CategoryNetwork).
				Context("operation", "rate_limiter_wait").
				Build()
		}

		body, status, err := c.doRequest(ctx, fullURL)
		if err != nil {
			lastErr = err
			logger.Warn("Summary request failed",
				"attempt", attempt+1,
				"max_attempts", c.maxRetries,
				"error", err)
			continue
		}

		switch {
		case status == http.StatusNotFound:
			// Normal for species without an article, not worth retrying.
			logger.Debug("No encyclopedia page for title")
			return "", ErrNoSummary
		case status != http.StatusOK:
			lastErr = fmt.Errorf("summary endpoint returned status %d", status)
			logger.Warn("Summary request returned non-success status",
				"status", status,
				"attempt", attempt+1)
			continue
		}

		return parseExtract(body, logger)
	}

	if lastErr == nil {
		lastErr = ErrNoSummary
	}
	if errors.Is(lastErr, ErrNoSummary) {
		return "", ErrNoSummary
	}
	return "", errors.New(lastErr).
		Component("wiki").
		Category(errors.CategoryEncyclopedia).
		Context("title", title).
		Context("request_id", reqID).
		Build()
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			getLogger().Debug("Failed to close response body", "error", closeErr)
		}
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// parseExtract probes the summary JSON for a usable extract field. Pages that
// are disambiguation stubs or carry no extract count as misses.
func parseExtract(body []byte, logger *slog.Logger) (string, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		logger.Debug("Summary response is not valid JSON", "error", err)
		return "", ErrNoSummary
	}

	if pageType, err := obj.GetString("type"); err == nil && pageType == "disambiguation" {
		logger.Debug("Title resolves to a disambiguation page")
		return "", ErrNoSummary
	}

	extract, err := obj.GetString("extract")
	if err != nil || strings.TrimSpace(extract) == "" {
		// Some mirrors only populate extract_html.
		extractHTML, htmlErr := obj.GetString("extract_html")
		if htmlErr != nil || strings.TrimSpace(extractHTML) == "" {
			logger.Debug("Summary response carries no extract")
			return "", ErrNoSummary
		}
		extract = html2text.HTML2Text(extractHTML)
	}

	extract = strings.TrimSpace(extract)
	if extract == "" {
		return "", ErrNoSummary
	}
	return extract, nil
}

// distillUseSentences keeps the sentences relevant to medicinal or
// traditional use, joined up to the configured caps. When nothing qualifies
// but the extract is long enough to be informative, a truncated prefix is
// returned instead. Returns "" when the extract is unusable.
func distillUseSentences(extract string) string {
	var kept []string
	total := 0

	for _, sentence := range splitSentences(extract) {
		if !containsUseKeyword(sentence) {
			continue
		}
		kept = append(kept, sentence)
		total += len(sentence)
		if len(kept) >= maxSentences || total >= maxSummaryLen {
			break
		}
	}

	if len(kept) > 0 {
		summary := strings.Join(kept, " ")
		if len(summary) > maxSummaryLen {
			summary = truncateAtWord(summary, maxSummaryLen)
		}
		return strings.TrimSpace(summary)
	}

	if len(extract) >= minUsefulLen {
		return truncateAtWord(extract, fallbackPrefix)
	}
	return ""
}

func containsUseKeyword(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, keyword := range useKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// splitSentences breaks text at sentence-final punctuation. Abbreviation
// handling is deliberately minimal, over-splitting only costs a sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			// Sentence end only when followed by whitespace or end of text.
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
				continue
			}
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// truncateAtWord shortens text to at most limit bytes, cutting at the last
// word boundary so a multi-byte rune is never split.
func truncateAtWord(text string, limit int) string {
	if len(text) <= limit {
		return strings.TrimSpace(text)
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	} else {
		// No space to back up to, drop the bytes of any split rune.
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
	}
	return strings.TrimSpace(cut) + "..."
}
