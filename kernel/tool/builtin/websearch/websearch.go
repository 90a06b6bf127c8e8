// Package websearch implements the web_search tool against a SearXNG-style
// JSON search endpoint.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

const (
	ToolName = "web_search"

	defaultLimit   = 5
	maxLimit       = 10
	maxQueryLength = 200
	snippetRunes   = 300
)

// Config configures the web_search tool.
type Config struct {
	// Endpoint is the search URL, for example https://searx.example/search.
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// Tool is the built-in web_search implementation.
type Tool struct {
	endpoint  string
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	fn        tool.Tool
}

type args struct {
	Query string `json:"query" description:"What to search the web for"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of results" jsonschema:"minimum=1,maximum=10,default=5"`
}

func (a *args) Validate() error {
	q := strings.TrimSpace(a.Query)
	if q == "" {
		return fmt.Errorf("query is required and must be a string")
	}
	if len(q) > maxQueryLength {
		return fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}
	if a.Limit < 0 || a.Limit > maxLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return nil
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		ImgSrc  string `json:"img_src"`
	} `json:"results"`
}

// New creates the web_search tool.
func New(cfg Config) (*Tool, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("websearch: endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("websearch: invalid endpoint: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "wisdomcore"
	}
	t := &Tool{
		endpoint:  endpoint,
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("tool", ToolName),
	}
	fn, err := tool.NewFunction(ToolName, t.Description(), t.run)
	if err != nil {
		return nil, err
	}
	t.fn = fn
	return t, nil
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Search the web and return the top results with titles, links and snippets."
}

func (t *Tool) Declaration() model.ToolDefinition {
	return t.fn.Declaration()
}

func (t *Tool) Run(ctx context.Context, arguments string) (*tool.Result, error) {
	return t.fn.Run(ctx, arguments)
}

func (t *Tool) run(ctx context.Context, in args) (*tool.Result, error) {
	query := strings.TrimSpace(in.Query)
	limit := in.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	items, err := t.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(items) == 0 {
		return tool.TextResult(fmt.Sprintf("I couldn't find any web results for %q.", query), "No results found."), nil
	}
	noun := "results"
	if len(items) == 1 {
		noun = "result"
	}
	return &tool.Result{
		Kind: tool.KindSearchResult,
		Content: &model.ContentPart{
			Type:         model.PartSearchResult,
			SearchResult: &model.SearchResult{Source: "web", Query: query, Items: items},
		},
		Summary: fmt.Sprintf("I found %d web %s for %q.", len(items), noun, query),
		Output:  formatItems(items),
	}, nil
}

// Search queries the endpoint and returns at most limit items.
func (t *Tool) Search(ctx context.Context, query string, limit int) ([]model.SearchItem, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", strconv.Itoa(1))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	items := make([]model.SearchItem, 0, min(limit, len(out.Results)))
	for _, r := range out.Results {
		if len(items) >= limit {
			break
		}
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		items = append(items, model.SearchItem{
			Title:    strings.TrimSpace(r.Title),
			URL:      r.URL,
			Snippet:  clip(strings.TrimSpace(r.Content), snippetRunes),
			ImageURL: r.ImgSrc,
		})
	}
	t.logger.Debug("web search completed", "query", query, "results", len(items))
	return items, nil
}

func formatItems(items []model.SearchItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, it.Title, it.URL)
		if it.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", it.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
