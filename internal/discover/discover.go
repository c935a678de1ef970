// Package discover finds and fetches web sources for a research topic.
package discover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultMaxResults bounds how many sources a single discovery returns.
const DefaultMaxResults = 5

// ErrNoSources is returned when a search yields nothing usable.
var ErrNoSources = errors.New("no sources found for topic")

// Source is one discovered document, fetched and reduced to plain text.
type Source struct {
	URL     string
	Title   string
	Content string
}

// Searcher finds candidate sources for a topic.
type Searcher interface {
	Search(ctx context.Context, topic string) ([]Source, error)
}

// Tavily implements Searcher against the Tavily search API.
type Tavily struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
}

var _ Searcher = (*Tavily)(nil)

// TavilyOption customizes a Tavily client.
type TavilyOption func(*Tavily)

// WithBaseURL overrides the API endpoint, used in tests.
func WithBaseURL(u string) TavilyOption {
	return func(t *Tavily) { t.baseURL = u }
}

// WithMaxResults caps the number of results per search.
func WithMaxResults(n int) TavilyOption {
	return func(t *Tavily) { t.maxResults = n }
}

// NewTavily creates a Tavily search client.
func NewTavily(apiKey string, opts ...TavilyOption) (*Tavily, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavily: API key is required")
	}
	t := &Tavily{
		apiKey:     apiKey,
		baseURL:    "https://api.tavily.com/search",
		maxResults: DefaultMaxResults,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, topic string) ([]Source, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("tavily: topic is empty")
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         topic,
		SearchDepth:   "basic",
		IncludeAnswer: false,
		MaxResults:    t.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: status %d: %s", resp.StatusCode, msg)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decoding response: %w", err)
	}

	sources := make([]Source, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URL == "" || strings.TrimSpace(r.Content) == "" {
			continue
		}
		sources = append(sources, Source{URL: r.URL, Title: r.Title, Content: r.Content})
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

// Fetcher retrieves a web page and reduces it to plain text.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a page fetcher with a bounded timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

// maxPageBytes caps how much of a page the fetcher will read.
const maxPageBytes = 4 << 20

// Fetch downloads the page at url and returns it as a Source with the
// visible text extracted.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Source{}, fmt.Errorf("fetch: building request: %w", err)
	}
	req.Header.Set("User-Agent", "lumenote/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Source{}, fmt.Errorf("fetch: status %d for %s", resp.StatusCode, pageURL)
	}

	title, text, err := ExtractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Source{}, fmt.Errorf("fetch: parsing %s: %w", pageURL, err)
	}
	if strings.TrimSpace(text) == "" {
		return Source{}, fmt.Errorf("fetch: no readable text at %s", pageURL)
	}
	return Source{URL: pageURL, Title: title, Content: text}, nil
}

// skipElements are subtrees that never contribute readable text.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     false, // traversed for <title>
	"nav":      true,
	"footer":   true,
}

// ExtractText parses HTML and returns the page title and its visible text,
// with whitespace collapsed.
func ExtractText(r io.Reader) (title string, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && title == "" {
				if c := n.FirstChild; c != nil && c.Type == html.TextNode {
					title = strings.TrimSpace(c.Data)
				}
				return
			}
			if skipElements[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				sb.WriteString(s)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.Join(strings.Fields(sb.String()), " "), nil
}
