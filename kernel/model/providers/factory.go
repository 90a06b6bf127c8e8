package providers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// New validates cfg and returns the matching model client.
func New(cfg Config) (model.LLM, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("providers: model is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("providers: base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("providers: invalid base url %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("providers: api key is required")
	}
	switch cfg.API {
	case "", APIOpenAI, APIOpenAICompatible:
		return newOpenAICompat(cfg), nil
	default:
		return nil, fmt.Errorf("providers: unsupported api type %q", cfg.API)
	}
}
