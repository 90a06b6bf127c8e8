package providers

import (
	"log/slog"
	"net/http"
	"time"
)

// APIType defines protocol dialect used by a model provider.
type APIType string

const (
	APIOpenAI           APIType = "openai"
	APIOpenAICompatible APIType = "openai_compatible"
)

// Config describes one chat-completion endpoint.
type Config struct {
	Provider string
	API      APIType
	Model    string
	// BaseURL is the API root; requests go to BaseURL + "/chat/completions".
	BaseURL string
	APIKey  string
	Headers map[string]string
	// Timeout bounds the wait for response headers. Streaming bodies are
	// bounded only by the request context.
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	Logger     *slog.Logger
}
