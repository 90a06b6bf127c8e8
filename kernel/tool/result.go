package tool

import (
	"fmt"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// Kind tags the payload of a Result.
type Kind string

const (
	KindText         Kind = "text"
	KindFlashcard    Kind = "flashcard"
	KindFlashcardSet Kind = "flashcard_set"
	KindSearchResult Kind = "search_result"
)

// Result is the outcome of one tool dispatch.
//
// Content is the structured payload handed to the UI and may be nil.
// Summary is the short text appended to the visible assistant reply. Output
// is what the model receives as the tool message; it falls back to Summary.
type Result struct {
	Kind    Kind
	Content *model.ContentPart
	Summary string
	Output  string
	Err     error
}

// Failed reports whether the result describes a failure.
func (r *Result) Failed() bool {
	return r != nil && r.Err != nil
}

// ModelContent returns the text sent back to the model for this result.
func (r *Result) ModelContent() string {
	if r == nil {
		return ""
	}
	if r.Output != "" {
		return r.Output
	}
	return r.Summary
}

// TextResult builds a plain text result visible to both the user and model.
func TextResult(summary, output string) *Result {
	return &Result{Kind: KindText, Summary: summary, Output: output}
}

// ErrorResult converts err into an error-flavored result.
func ErrorResult(err error) *Result {
	if err == nil {
		err = fmt.Errorf("tool: unknown error")
	}
	return &Result{
		Kind:    KindText,
		Summary: "Error: " + err.Error(),
		Err:     err,
	}
}
