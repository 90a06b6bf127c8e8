// Package syllabus implements the get_syllabus tool, which loads the plain
// text syllabus of a subject from an HTTP base URL or a local directory.
package syllabus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

const (
	ToolName = "get_syllabus"

	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 64
	maxSyllabusBytes = 1 << 20
)

// ErrNotFound is returned when no syllabus exists for a subject.
var ErrNotFound = errors.New("syllabus: not found")

// Config configures the get_syllabus tool.
type Config struct {
	// Source is an http(s) base URL or a local directory holding
	// <subject>_syllabus.txt files.
	Source     string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	CacheSize  int
	Logger     *slog.Logger
}

// Tool is the built-in get_syllabus implementation.
type Tool struct {
	source string
	remote bool
	client *http.Client
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
	fn     tool.Tool
}

type args struct {
	Subject string `json:"subject" description:"The academic subject, for example \"Physics\" or \"Computer Science\""`
}

func (a *args) Validate() error {
	if strings.TrimSpace(a.Subject) == "" {
		return fmt.Errorf("subject is required and must be a string")
	}
	return nil
}

// New creates the get_syllabus tool.
func New(cfg Config) (*Tool, error) {
	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		return nil, fmt.Errorf("syllabus: source is required")
	}
	remote := false
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		remote = true
		source = strings.TrimRight(source, "/")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tool{
		source: source,
		remote: remote,
		client: client,
		cache:  expirable.NewLRU[string, string](size, nil, ttl),
		logger: logger.With("tool", ToolName),
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
	return "Retrieve the syllabus text for an academic subject."
}

func (t *Tool) Declaration() model.ToolDefinition {
	return t.fn.Declaration()
}

func (t *Tool) Run(ctx context.Context, arguments string) (*tool.Result, error) {
	return t.fn.Run(ctx, arguments)
}

func (t *Tool) run(ctx context.Context, in args) (*tool.Result, error) {
	subject := strings.TrimSpace(in.Subject)
	text, err := t.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("syllabus file not found for subject %q", subject)
		}
		return nil, fmt.Errorf("could not fetch syllabus for subject %q: %w", subject, err)
	}
	return tool.TextResult(fmt.Sprintf("I've looked up the %s syllabus.", subject), text), nil
}

// Get returns the syllabus for subject, serving repeated lookups from cache.
func (t *Tool) Get(ctx context.Context, subject string) (string, error) {
	if text, ok := t.cache.Get(subject); ok {
		t.logger.Debug("syllabus cache hit", "subject", subject)
		return text, nil
	}
	name := FileName(subject)
	var (
		text string
		err  error
	)
	if t.remote {
		text, err = t.fetch(ctx, t.source+"/"+url.PathEscape(name))
	} else {
		text, err = t.read(ctx, filepath.Join(t.source, name))
	}
	if err != nil {
		t.logger.Warn("syllabus lookup failed", "subject", subject, "error", err)
		return "", err
	}
	t.cache.Add(subject, text)
	t.logger.Info("syllabus loaded", "subject", subject, "bytes", len(text))
	return text, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName maps a subject to its syllabus file name: lower case, runs of
// whitespace replaced by underscores.
func FileName(subject string) string {
	return whitespace.ReplaceAllString(strings.ToLower(subject), "_") + "_syllabus.txt"
}

func (t *Tool) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("syllabus: http status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSyllabusBytes))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (t *Tool) read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if len(raw) > maxSyllabusBytes {
		raw = raw[:maxSyllabusBytes]
	}
	return string(raw), nil
}
