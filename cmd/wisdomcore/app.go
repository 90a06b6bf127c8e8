package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/internal/config"
	"github.com/FireFreezer630/Wisdom-Core/internal/logging"
	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation/filestore"
	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation/inmemory"
	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation/sqlitestore"
	"github.com/FireFreezer630/Wisdom-Core/kernel/llmagent"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model/providers"
	"github.com/FireFreezer630/Wisdom-Core/kernel/runtime"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool/builtin/flashcards"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool/builtin/imagesearch"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool/builtin/syllabus"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool/builtin/websearch"
)

// app holds everything a command needs after configuration is resolved.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   conversation.Store
	rt      *runtime.Runtime
	tools   []string
	closers []func() error
}

type appOptions struct {
	flags *rootFlags
	// needModel requires a usable completion endpoint.
	needModel bool
	// stderr receives retry notices and logs when no log file is set.
	stderr io.Writer
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: flags.ConfigPath})
	if err != nil {
		return config.Config{}, err
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.Storage != "" {
		cfg.Storage.Driver = flags.Storage
	}
	if flags.DataDir != "" {
		cfg.Storage.DataDir = flags.DataDir
	}
	if flags.Model != "" {
		cfg.LLM.Model = flags.Model
	}
	return cfg, nil
}

func openApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg, err := loadConfig(opts.flags)
	if err != nil {
		return nil, err
	}
	if verr := cfg.Validate(); verr != nil && (opts.needModel || !config.IsMissing(verr)) {
		return nil, verr
	}
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	stderr := opts.stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logOut := stderr
	if cfg.Log.File != "" {
		f, err := openLogFile(cfg.Log.File)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f.Close)
		logOut = f
	}
	a.logger, err = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: logOut})
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	a.logger.Debug("storage opened", "driver", cfg.Storage.Driver)

	if !opts.needModel {
		return a, nil
	}

	llm, err := providers.New(providers.Config{
		Provider: "openai_compatible",
		API:      providers.APIOpenAICompatible,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout.Duration,
		Retry: providers.RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			BaseDelay:  cfg.LLM.RetryBaseDelay.Duration,
			MaxDelay:   cfg.LLM.RetryMaxDelay.Duration,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				warnColor.Fprintf(stderr, "! retrying in %s (attempt %d): %v\n", delay.Round(100*time.Millisecond), attempt, err)
			},
		},
		Logger: a.logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := buildTools(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.tools = registry.Names()

	agent, err := llmagent.New(llmagent.Config{
		Model:        llm,
		Tools:        registry,
		SystemPrompt: cfg.SystemPrompt,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	conflict := runtime.ConflictReject
	if cfg.OnBusy == "replace" {
		conflict = runtime.ConflictReplace
	}
	a.rt, err = runtime.New(runtime.Config{
		Store:        store,
		Agent:        agent,
		SystemPrompt: cfg.SystemPrompt,
		Conflict:     conflict,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func openStore(cfg config.Config) (conversation.Store, func() error, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return inmemory.New(), nil, nil
	case config.StorageFile, config.StorageSQLite, "":
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver == config.StorageFile {
		store, err := filestore.New(filepath.Join(dir, "conversations"))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	store, err := sqlitestore.Open(filepath.Join(dir, "conversations.db"))
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// buildTools registers the flashcard tools and every configured lookup tool.
func buildTools(cfg config.Config, logger *slog.Logger) (*tool.Registry, error) {
	tools := flashcards.Tools()
	if cfg.Tools.SyllabusSource != "" {
		t, err := syllabus.New(syllabus.Config{
			Source:   cfg.Tools.SyllabusSource,
			CacheTTL: cfg.Tools.CacheTTL.Duration,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if cfg.Tools.SearchURL != "" {
		t, err := websearch.New(websearch.Config{Endpoint: cfg.Tools.SearchURL, Logger: logger})
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if cfg.Tools.ImageSearch {
		t, err := imagesearch.New(imagesearch.Config{
			Endpoint: cfg.Tools.ImageSearchURL,
			CacheTTL: cfg.Tools.CacheTTL.Duration,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tool.NewRegistry(tool.RegistryConfig{Logger: logger}, tools...)
}

// configHint explains how to supply missing connection settings.
func configHint(err error) string {
	var missing *config.MissingError
	if !errors.As(err, &missing) {
		return ""
	}
	path, _ := config.Path()
	return fmt.Sprintf("set WISDOM_BASE_URL, WISDOM_API_KEY and WISDOM_MODEL (or OPENAI_* equivalents), or edit %s (see `wisdomcore config init`)", path)
}
