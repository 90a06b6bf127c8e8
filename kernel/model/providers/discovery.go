package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RemoteModel is one entry of the endpoint's model list.
type RemoteModel struct {
	Name                string
	OwnedBy             string
	ContextWindowTokens int
}

// ListModels queries GET <base>/models on an OpenAI-compatible endpoint.
// Model is not required; everything else is validated like New.
func ListModels(ctx context.Context, cfg Config) ([]RemoteModel, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	probe := cfg
	if strings.TrimSpace(probe.Model) == "" {
		probe.Model = "-"
	}
	if _, err := New(probe); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/models"
	resp, err := FetchWithRetry(ctx, client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, cfg.Retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data []struct {
			ID              string `json:"id"`
			OwnedBy         string `json:"owned_by"`
			ContextWindow   any    `json:"context_window"`
			ContextLength   any    `json:"context_length"`
			InputTokenLimit any    `json:"input_token_limit"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("providers: decode model list: %w", err)
	}
	models := make([]RemoteModel, 0, len(payload.Data))
	for _, item := range payload.Data {
		models = append(models, RemoteModel{
			Name:    item.ID,
			OwnedBy: strings.TrimSpace(item.OwnedBy),
			ContextWindowTokens: firstPositiveInt(
				toInt(item.ContextWindow),
				toInt(item.ContextLength),
				toInt(item.InputTokenLimit),
			),
		})
	}
	return normalizeRemoteModels(models), nil
}

func normalizeRemoteModels(in []RemoteModel) []RemoteModel {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]RemoteModel, len(in))
	for _, item := range in {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		item.Name = name
		existing, ok := seen[name]
		if !ok {
			seen[name] = item
			continue
		}
		if existing.ContextWindowTokens <= 0 && item.ContextWindowTokens > 0 {
			existing.ContextWindowTokens = item.ContextWindowTokens
		}
		if existing.OwnedBy == "" {
			existing.OwnedBy = item.OwnedBy
		}
		seen[name] = existing
	}
	out := make([]RemoteModel, 0, len(seen))
	for _, item := range seen {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func toInt(raw any) int {
	switch value := raw.(type) {
	case float64:
		return int(value)
	case json.Number:
		i, _ := value.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(value))
		return i
	default:
		return 0
	}
}

func firstPositiveInt(values ...int) int {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}
	return 0
}
