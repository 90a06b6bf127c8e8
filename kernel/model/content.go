package model

import "github.com/FireFreezer630/Wisdom-Core/kernel/flashcard"

// PartType discriminates ContentPart payloads.
type PartType string

const (
	PartText         PartType = "text"
	PartImageURL     PartType = "image_url"
	PartFlashcard    PartType = "flashcard"
	PartFlashcardSet PartType = "flashcard_set"
	PartSearchResult PartType = "search_result"
)

// ContentPart is one typed element of message content. Only text and
// image_url parts are sent to the model; the rich kinds are for the UI.
type ContentPart struct {
	Type         PartType        `json:"type"`
	Text         string          `json:"text,omitempty"`
	ImageURL     *ImageURL       `json:"image_url,omitempty"`
	Flashcard    *flashcard.Card `json:"flashcard,omitempty"`
	FlashcardSet *flashcard.Set  `json:"flashcard_set,omitempty"`
	SearchResult *SearchResult   `json:"search_result,omitempty"`
}

// ImageURL references an image by URL or data URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// SearchResult is the UI payload of the web and image search tools.
type SearchResult struct {
	Source string       `json:"source"`
	Query  string       `json:"query"`
	Items  []SearchItem `json:"items,omitempty"`
}

// SearchItem is one hit of a search tool.
type SearchItem struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image_url part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: url, Detail: "auto"}}
}

// IsModelVisible reports whether the part is sent to the completion endpoint.
func (p ContentPart) IsModelVisible() bool {
	return p.Type == PartText || p.Type == PartImageURL
}
