package config

import (
	"fmt"
	"strings"
)

// Source tells where a value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "config.toml"
)

// FieldInfo describes one effective setting.
type FieldInfo struct {
	Key       string
	Value     string
	Source    Source
	Sensitive bool
}

// Fields lists the effective settings with their provenance. Sensitive
// values are masked.
func (c Config) Fields() []FieldInfo {
	prompt := "(built-in)"
	if c.SystemPrompt != DefaultSystemPrompt() {
		prompt = fmt.Sprintf("(%d chars)", len(c.SystemPrompt))
	}
	rows := []FieldInfo{
		{Key: "llm.base_url", Value: c.LLM.BaseURL},
		{Key: "llm.api_key", Value: Mask(c.LLM.APIKey), Sensitive: true},
		{Key: "llm.model", Value: c.LLM.Model},
		{Key: "llm.timeout", Value: c.LLM.Timeout.String()},
		{Key: "llm.max_retries", Value: fmt.Sprint(c.LLM.MaxRetries)},
		{Key: "llm.retry_base_delay", Value: c.LLM.RetryBaseDelay.String()},
		{Key: "llm.retry_max_delay", Value: c.LLM.RetryMaxDelay.String()},
		{Key: "tools.syllabus_source", Value: c.Tools.SyllabusSource},
		{Key: "tools.search_url", Value: c.Tools.SearchURL},
		{Key: "tools.image_search", Value: fmt.Sprint(c.Tools.ImageSearch)},
		{Key: "tools.image_search_url", Value: c.Tools.ImageSearchURL},
		{Key: "tools.cache_ttl", Value: c.Tools.CacheTTL.String()},
		{Key: "storage.driver", Value: c.Storage.Driver},
		{Key: "storage.data_dir", Value: c.Storage.DataDir},
		{Key: "log.level", Value: c.Log.Level},
		{Key: "log.format", Value: c.Log.Format},
		{Key: "log.file", Value: c.Log.File},
		{Key: "system_prompt", Value: prompt},
		{Key: "on_busy", Value: c.OnBusy},
	}
	for i := range rows {
		rows[i].Source = c.SourceOf(rows[i].Key)
	}
	return rows
}

// SourceOf returns where key was last set.
func (c Config) SourceOf(key string) Source {
	if s, ok := c.sources[key]; ok {
		return s
	}
	return SourceDefault
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
