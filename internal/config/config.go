// Package config resolves wisdomcore settings from defaults, config.toml,
// dotenv files and the environment, in increasing precedence.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/FireFreezer630/Wisdom-Core/internal/envload"
)

const (
	AppDirName = "wisdomcore"

	DefaultModel          = "gpt-4o-mini"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultRetryMaxDelay  = 30 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultStorage        = StorageSQLite
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

//go:embed system_prompt.txt
var defaultSystemPrompt string

// DefaultSystemPrompt is the tutor persona used when none is configured.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(defaultSystemPrompt)
}

// Duration decodes TOML strings such as "1s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	LLM          LLMConfig     `toml:"llm"`
	Tools        ToolsConfig   `toml:"tools"`
	Storage      StorageConfig `toml:"storage"`
	Log          LogConfig     `toml:"log"`
	SystemPrompt string        `toml:"system_prompt"`
	// OnBusy is reject or replace.
	OnBusy string `toml:"on_busy"`

	sources map[string]Source
}

type LLMConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Model          string   `toml:"model"`
	Timeout        Duration `toml:"timeout"`
	MaxRetries     int      `toml:"max_retries"`
	RetryBaseDelay Duration `toml:"retry_base_delay"`
	RetryMaxDelay  Duration `toml:"retry_max_delay"`
}

type ToolsConfig struct {
	// SyllabusSource is an http(s) base URL or a local directory.
	SyllabusSource string `toml:"syllabus_source"`
	// SearchURL enables web_search when set.
	SearchURL      string   `toml:"search_url"`
	ImageSearch    bool     `toml:"image_search"`
	ImageSearchURL string   `toml:"image_search_url"`
	CacheTTL       Duration `toml:"cache_ttl"`
}

type StorageConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:          DefaultModel,
			Timeout:        Duration{DefaultTimeout},
			MaxRetries:     DefaultMaxRetries,
			RetryBaseDelay: Duration{DefaultRetryBaseDelay},
			RetryMaxDelay:  Duration{DefaultRetryMaxDelay},
		},
		Tools: ToolsConfig{
			ImageSearch: true,
			CacheTTL:    Duration{DefaultCacheTTL},
		},
		Storage: StorageConfig{Driver: DefaultStorage},
		Log:     LogConfig{Level: "warn", Format: "text"},
		OnBusy:  "reject",
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is an explicit config.toml. It must exist when set.
	Path string
	// DotEnvDir is where .env and .env.local are looked up. Empty searches
	// from the working directory upwards.
	DotEnvDir string
	// SkipDotEnv disables dotenv loading.
	SkipDotEnv bool
}

// Load resolves the configuration. It does not validate it.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	cfg.sources = map[string]Source{}

	if err := mergeFile(&cfg, opts.Path); err != nil {
		return Config{}, err
	}
	if !opts.SkipDotEnv {
		var err error
		if opts.DotEnvDir != "" {
			_, err = envload.Load(opts.DotEnvDir)
		} else {
			_, err = envload.LoadNearest()
		}
		if err != nil {
			return Config{}, err
		}
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt()
	}
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	return cfg, nil
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName), nil
}

// Path returns the default config.toml location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory conversations are stored under.
func (c Config) DataDir() (string, error) {
	if dir := strings.TrimSpace(c.Storage.DataDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName, "data"), nil
}

func mergeFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = Path()
		if err != nil {
			return nil
		}
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	for _, key := range md.Keys() {
		cfg.sources[key.String()] = SourceFile
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	return nil
}

type envBinding struct {
	key   string
	names []string
	apply func(*Config, string) error
}

var envBindings = []envBinding{
	{"llm.base_url", []string{"WISDOM_BASE_URL", "OPENAI_API_ENDPOINT", "OPENAI_BASE_URL"}, func(c *Config, v string) error { c.LLM.BaseURL = v; return nil }},
	{"llm.api_key", []string{"WISDOM_API_KEY", "OPENAI_API_KEY"}, func(c *Config, v string) error { c.LLM.APIKey = v; return nil }},
	{"llm.model", []string{"WISDOM_MODEL", "OPENAI_MODEL"}, func(c *Config, v string) error { c.LLM.Model = v; return nil }},
	{"llm.timeout", []string{"WISDOM_TIMEOUT"}, func(c *Config, v string) error { return c.LLM.Timeout.UnmarshalText([]byte(v)) }},
	{"llm.max_retries", []string{"WISDOM_MAX_RETRIES"}, func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.LLM.MaxRetries = n
		return nil
	}},
	{"llm.retry_base_delay", []string{"WISDOM_RETRY_BASE_DELAY"}, func(c *Config, v string) error { return c.LLM.RetryBaseDelay.UnmarshalText([]byte(v)) }},
	{"tools.syllabus_source", []string{"WISDOM_SYLLABUS_URL"}, func(c *Config, v string) error { c.Tools.SyllabusSource = v; return nil }},
	{"tools.search_url", []string{"WISDOM_SEARCH_URL"}, func(c *Config, v string) error { c.Tools.SearchURL = v; return nil }},
	{"tools.image_search_url", []string{"WISDOM_IMAGE_SEARCH_URL"}, func(c *Config, v string) error { c.Tools.ImageSearchURL = v; return nil }},
	{"storage.driver", []string{"WISDOM_STORAGE"}, func(c *Config, v string) error { c.Storage.Driver = v; return nil }},
	{"storage.data_dir", []string{"WISDOM_DATA_DIR"}, func(c *Config, v string) error { c.Storage.DataDir = v; return nil }},
	{"log.level", []string{"WISDOM_LOG_LEVEL"}, func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"log.format", []string{"WISDOM_LOG_FORMAT"}, func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"system_prompt", []string{"WISDOM_SYSTEM_PROMPT"}, func(c *Config, v string) error { c.SystemPrompt = v; return nil }},
}

func mergeEnv(cfg *Config) error {
	for _, b := range envBindings {
		for _, name := range b.names {
			v := strings.TrimSpace(os.Getenv(name))
			if v == "" {
				continue
			}
			if err := b.apply(cfg, v); err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			cfg.sources[b.key] = Source("env:" + name)
			break
		}
	}
	return nil
}

// Save writes cfg as TOML to path. The API key is never written.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.LLM.APIKey = ""
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
