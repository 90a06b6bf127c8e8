// Package flashcard defines study card types and the validation rules the
// flashcard tools apply to model-supplied arguments.
package flashcard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the flashcard variant.
type Kind string

const (
	KindBasic     Kind = "basic"
	KindMCQ       Kind = "mcq"
	KindTrueFalse Kind = "truefalse"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBasic, KindMCQ, KindTrueFalse:
		return true
	default:
		return false
	}
}

// Option is one answer choice of a multiple-choice card.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Card is a single flashcard. Answer applies to basic cards, Options and
// CorrectOptionID to mcq cards, IsTrue to truefalse cards.
type Card struct {
	ID              string   `json:"id"`
	Type            Kind     `json:"type"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer,omitempty"`
	Options         []Option `json:"options,omitempty"`
	CorrectOptionID string   `json:"correctOptionId,omitempty"`
	IsTrue          *bool    `json:"isTrue,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
}

// Set is a titled collection of cards.
type Set struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Cards       []Card `json:"cards"`
}

// ErrInvalid is the sentinel matched by every validation failure.
var ErrInvalid = errors.New("flashcard: invalid")

// ValidationError names the field (and card index for sets) that failed.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "flashcard: invalid"
	}
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "card at index %d: ", e.Index)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(" ")
	}
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Index: -1, Field: field, Reason: reason}
}

type cardArgs struct {
	Type            Kind     `json:"type"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId"`
	IsTrue          *bool    `json:"isTrue"`
	Explanation     string   `json:"explanation"`
	ImageURL        string   `json:"imageUrl"`
}

type setArgs struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Cards       []json.RawMessage `json:"cards"`
}

// ParseCard decodes raw arguments into a card of the given kind and
// validates it. When kind is empty the "type" field of raw decides.
func ParseCard(raw []byte, kind Kind) (*Card, error) {
	args, err := decodeCard(raw)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		args.Type = kind
	}
	card := args.card()
	if err := Validate(card); err != nil {
		return nil, err
	}
	card.ID = uuid.NewString()
	return &card, nil
}

// ParseSet decodes and validates a flashcard set. Every card must pass its
// own validation; the first failure rejects the whole set.
func ParseSet(raw []byte) (*Set, error) {
	var args setArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, decodeError(err)
	}
	if strings.TrimSpace(args.Title) == "" {
		return nil, invalid("title", "is required and must be a string")
	}
	if len(args.Cards) == 0 {
		return nil, invalid("cards", "must be a non-empty array")
	}
	cards := make([]Card, 0, len(args.Cards))
	for i, rawCard := range args.Cards {
		one, err := decodeCard(rawCard)
		if err != nil {
			return nil, atIndex(err, i)
		}
		if !one.Type.Valid() {
			return nil, &ValidationError{Index: i, Field: "type", Reason: fmt.Sprintf("%q is not one of basic, mcq, truefalse", one.Type)}
		}
		card := one.card()
		if err := Validate(card); err != nil {
			return nil, atIndex(err, i)
		}
		cards = append(cards, card)
	}
	for i := range cards {
		cards[i].ID = uuid.NewString()
	}
	return &Set{
		ID:          uuid.NewString(),
		Title:       args.Title,
		Description: args.Description,
		Cards:       cards,
	}, nil
}

// Validate checks the required fields of c for its kind.
func Validate(c Card) error {
	if strings.TrimSpace(c.Question) == "" {
		return invalid("question", "is required and must be a string")
	}
	switch c.Type {
	case KindBasic:
		if strings.TrimSpace(c.Answer) == "" {
			return invalid("answer", "is required and must be a string")
		}
	case KindMCQ:
		if len(c.Options) == 0 {
			return invalid("options", "must be a non-empty array")
		}
		if strings.TrimSpace(c.CorrectOptionID) == "" {
			return invalid("correctOptionId", "is required and must be a string")
		}
		seen := make(map[string]struct{}, len(c.Options))
		for i, opt := range c.Options {
			if strings.TrimSpace(opt.ID) == "" {
				return invalid(fmt.Sprintf("options[%d].id", i), "is required")
			}
			if _, dup := seen[opt.ID]; dup {
				return invalid(fmt.Sprintf("options[%d].id", i), fmt.Sprintf("%q is duplicated", opt.ID))
			}
			seen[opt.ID] = struct{}{}
		}
		if _, ok := seen[c.CorrectOptionID]; !ok {
			return invalid("correctOptionId", fmt.Sprintf("%q does not match any option id", c.CorrectOptionID))
		}
	case KindTrueFalse:
		if c.IsTrue == nil {
			return invalid("isTrue", "is required and must be a boolean")
		}
	default:
		return invalid("type", fmt.Sprintf("%q is not one of basic, mcq, truefalse", c.Type))
	}
	return nil
}

func decodeCard(raw []byte) (cardArgs, error) {
	var args cardArgs
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return args, invalid("", "arguments must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return args, decodeError(err)
	}
	return args, nil
}

func (a cardArgs) card() Card {
	c := Card{
		Type:        a.Type,
		Question:    a.Question,
		Explanation: a.Explanation,
		ImageURL:    a.ImageURL,
	}
	switch a.Type {
	case KindBasic:
		c.Answer = a.Answer
	case KindMCQ:
		c.Options = append([]Option(nil), a.Options...)
		c.CorrectOptionID = a.CorrectOptionID
	case KindTrueFalse:
		if a.IsTrue != nil {
			v := *a.IsTrue
			c.IsTrue = &v
		}
	}
	return c
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.Field, fmt.Sprintf("must be of type %s, got %s", jsonKind(typeErr.Type.Kind().String()), typeErr.Value))
	}
	return invalid("", fmt.Sprintf("arguments are not valid JSON: %v", err))
}

func atIndex(err error, index int) error {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		out := *vErr
		out.Index = index
		return &out
	}
	return &ValidationError{Index: index, Reason: err.Error()}
}

func jsonKind(goKind string) string {
	switch goKind {
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "slice", "array":
		return "array"
	case "struct", "map":
		return "object"
	default:
		return goKind
	}
}
