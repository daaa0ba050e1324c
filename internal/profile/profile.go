// Package profile gathers extra context about a speaker from the web: the
// readable text of their Sessionize profile page and the latest post titles
// from their blog feed.
package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/lirantal/devrel-cfp-committee/internal/logging"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

const (
	defaultMaxChars = 4000
	defaultMaxPosts = 5
	minPageText     = 100
	userAgent       = "cfpeval/1.0 (speaker profile enrichment)"
)

// Options tunes a Fetcher.
type Options struct {
	Timeout  time.Duration
	MaxChars int
	MaxPosts int
}

// Fetcher fetches speaker context. All failures are logged and produce an
// empty result; enrichment never fails an assessment.
type Fetcher struct {
	client   *http.Client
	parser   *gofeed.Parser
	logger   *logging.Logger
	maxChars int
	maxPosts int
}

// NewFetcher creates a new profile fetcher.
func NewFetcher(opts Options, logger *logging.Logger) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}
	if opts.MaxPosts <= 0 {
		opts.MaxPosts = defaultMaxPosts
	}
	if logger == nil {
		logger = logging.Nop()
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	return &Fetcher{
		client:   client,
		parser:   parser,
		logger:   logger,
		maxChars: opts.MaxChars,
		maxPosts: opts.MaxPosts,
	}
}

// Enrich returns prompt context for a speaker with the given links, or ""
// when nothing could be gathered.
func (f *Fetcher) Enrich(ctx context.Context, links []sessionize.Link) string {
	var parts []string

	if profileURL := sessionize.ProfileURL(links); profileURL != "" {
		text, err := f.PageText(ctx, profileURL)
		if err != nil {
			f.logger.Warn("profile page fetch failed", "url", profileURL, "error", err)
		} else if text != "" {
			parts = append(parts, text)
		}
	}

	if blogURL := sessionize.BlogURL(links); blogURL != "" {
		titles, err := f.RecentPosts(ctx, blogURL)
		if err != nil {
			f.logger.Debug("blog feed unavailable", "url", blogURL, "error", err)
		} else if len(titles) > 0 {
			parts = append(parts, "Recent blog posts:\n- "+strings.Join(titles, "\n- "))
		}
	}

	return strings.Join(parts, "\n\n")
}

// PageText downloads a page and returns its readable text, truncated.
// Pages with too little extractable text yield "".
func (f *Fetcher) PageText(ctx context.Context, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minPageText {
		return "", nil
	}
	return truncate(text, f.maxChars), nil
}

// RecentPosts returns up to MaxPosts item titles from an RSS or Atom feed.
func (f *Fetcher) RecentPosts(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, item := range feed.Items {
		if len(titles) >= f.maxPosts {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		titles = append(titles, title)
	}
	return titles, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
