// Package imagesearch implements the findFirstImageUrl tool, which returns the
// first Wikimedia Commons file matching a query.
package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

const (
	ToolName = "findFirstImageUrl"

	DefaultEndpoint = "https://commons.wikimedia.org/w/api.php"

	defaultLimit     = 5
	maxLimit         = 25
	maxQueryLength   = 100
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 256
	// MaxRequestsPerSecond bounds outbound Wikimedia requests.
	MaxRequestsPerSecond = 5
)

var (
	// ErrRateLimited is returned when the outbound request budget is spent.
	ErrRateLimited = errors.New("rate limit exceeded, please try again in a few seconds")
	// ErrNoImage is returned when no page of the search carries an image URL.
	ErrNoImage = errors.New("no matching images found")
)

// Config configures the findFirstImageUrl tool.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	CacheTTL   time.Duration
	// Limiter overrides the default 5 requests per second limiter.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Image is the first matching image of a search.
type Image struct {
	URL     string
	Title   string
	Caption string
}

// Tool is the built-in findFirstImageUrl implementation.
type Tool struct {
	endpoint  string
	client    *http.Client
	userAgent string
	cache     *expirable.LRU[string, Image]
	limiter   *rate.Limiter
	logger    *slog.Logger
	fn        tool.Tool
}

type args struct {
	SearchQuery string `json:"searchQuery" description:"Search term to find a relevant image, for example \"water cycle diagram\"" jsonschema:"minLength=1,maxLength=100"`
	Limit       *int   `json:"limit,omitempty" description:"Max number of files to scan." jsonschema:"minimum=1,maximum=25,default=5"`
}

func (a *args) Validate() error {
	n := utf8.RuneCountInString(a.SearchQuery)
	if strings.TrimSpace(a.SearchQuery) == "" || n > maxQueryLength {
		return fmt.Errorf("invalid search parameters: searchQuery must be 1 to %d characters", maxQueryLength)
	}
	if a.Limit != nil && (*a.Limit < 1 || *a.Limit > maxLimit) {
		return fmt.Errorf("invalid search parameters: limit must be between 1 and %d", maxLimit)
	}
	return nil
}

type apiResponse struct {
	Query *struct {
		Pages map[string]apiPage `json:"pages"`
	} `json:"query"`
}

type apiPage struct {
	PageID    int    `json:"pageid"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	ImageInfo []struct {
		URL         string `json:"url"`
		ExtMetadata struct {
			ImageDescription struct {
				Value string `json:"value"`
			} `json:"ImageDescription"`
		} `json:"extmetadata"`
	} `json:"imageinfo"`
}

// New creates the findFirstImageUrl tool.
func New(cfg Config) (*Tool, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("imagesearch: invalid endpoint: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(MaxRequestsPerSecond), MaxRequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "WisdomCore/1.0 (https://github.com/FireFreezer630/Wisdom-Core)"
	}
	t := &Tool{
		endpoint:  endpoint,
		client:    client,
		userAgent: userAgent,
		cache:     expirable.NewLRU[string, Image](defaultCacheSize, nil, ttl),
		limiter:   limiter,
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
	return "Search Wikimedia Commons for an image matching the query and return its URL."
}

func (t *Tool) Declaration() model.ToolDefinition {
	decl := t.fn.Declaration()
	decl.Parameters["additionalProperties"] = false
	return decl
}

func (t *Tool) Run(ctx context.Context, arguments string) (*tool.Result, error) {
	return t.fn.Run(ctx, arguments)
}

func (t *Tool) run(ctx context.Context, in args) (*tool.Result, error) {
	limit := defaultLimit
	if in.Limit != nil {
		limit = *in.Limit
	}
	img, err := t.FindFirst(ctx, in.SearchQuery, limit)
	if errors.Is(err, ErrNoImage) {
		return tool.TextResult(fmt.Sprintf("I couldn't find an image for %q.", in.SearchQuery), "No matching images found."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error searching for image: %w", err)
	}
	out := fmt.Sprintf("Image URL: %s\nTitle: %s", img.URL, img.Title)
	if img.Caption != "" {
		out += "\nCaption: " + img.Caption
	}
	return &tool.Result{
		Kind: tool.KindSearchResult,
		Content: &model.ContentPart{
			Type: model.PartSearchResult,
			SearchResult: &model.SearchResult{
				Source: "wikimedia",
				Query:  in.SearchQuery,
				Items: []model.SearchItem{{
					Title:    img.Title,
					URL:      img.URL,
					Snippet:  img.Caption,
					ImageURL: img.URL,
				}},
			},
		},
		Summary: fmt.Sprintf("I found an image for %q.", in.SearchQuery),
		Output:  out,
	}, nil
}

// FindFirst returns the first search hit carrying an image URL. Successful
// lookups are cached per query; cache hits do not spend rate budget.
func (t *Tool) FindFirst(ctx context.Context, query string, limit int) (Image, error) {
	if img, ok := t.cache.Get(query); ok {
		return img, nil
	}
	if !t.limiter.Allow() {
		t.logger.Warn("image search rate limited", "query", query)
		return Image{}, ErrRateLimited
	}

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return Image{}, err
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("generator", "search")
	q.Set("gsrsearch", query+" filetype:bitmap|drawing|image|video")
	q.Set("gsrlimit", strconv.Itoa(limit))
	q.Set("gsrnamespace", "6")
	q.Set("prop", "imageinfo")
	q.Set("iiprop", "url|extmetadata")
	q.Set("format", "json")
	q.Set("origin", "*")
	q.Set("redirects", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Image{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	resp, err := t.client.Do(req)
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("http status %d", resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Image{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Query == nil || len(body.Query.Pages) == 0 {
		return Image{}, ErrNoImage
	}
	for _, page := range rankedPages(body.Query.Pages) {
		if len(page.ImageInfo) == 0 || page.ImageInfo[0].URL == "" {
			continue
		}
		info := page.ImageInfo[0]
		img := Image{
			URL:     info.URL,
			Title:   page.Title,
			Caption: plainText(info.ExtMetadata.ImageDescription.Value),
		}
		t.cache.Add(query, img)
		t.logger.Debug("image found", "query", query, "url", img.URL)
		return img, nil
	}
	return Image{}, ErrNoImage
}

// rankedPages orders pages by search rank, falling back to page id.
func rankedPages(pages map[string]apiPage) []apiPage {
	out := make([]apiPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].PageID < out[j].PageID
	})
	return out
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func plainText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
