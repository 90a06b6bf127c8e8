package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MissingError lists required settings that have no value.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	if e == nil || len(e.Keys) == 0 {
		return "config: missing required settings"
	}
	return "config: missing required settings: " + strings.Join(e.Keys, ", ")
}

func IsMissing(err error) bool {
	var target *MissingError
	return errors.As(err, &target)
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		missing = append(missing, "llm.base_url (WISDOM_BASE_URL)")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key (WISDOM_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		missing = append(missing, "llm.model (WISDOM_MODEL)")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	if u, err := url.Parse(c.LLM.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: llm.base_url %q is not an http(s) URL", c.LLM.BaseURL)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("config: llm.max_retries must be >= 0")
	}
	if c.LLM.RetryBaseDelay.Duration <= 0 {
		return fmt.Errorf("config: llm.retry_base_delay must be positive")
	}
	if c.LLM.RetryMaxDelay.Duration < c.LLM.RetryBaseDelay.Duration {
		return fmt.Errorf("config: llm.retry_max_delay must be >= llm.retry_base_delay")
	}
	switch c.Storage.Driver {
	case StorageSQLite, StorageFile, StorageMemory:
	default:
		return fmt.Errorf("config: storage.driver %q is not one of sqlite, file, memory", c.Storage.Driver)
	}
	switch c.OnBusy {
	case "reject", "replace":
	default:
		return fmt.Errorf("config: on_busy %q is not one of reject, replace", c.OnBusy)
	}
	return nil
}
