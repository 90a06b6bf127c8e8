package flashcards

import (
	"context"
	"fmt"

	"github.com/FireFreezer630/Wisdom-Core/kernel/flashcard"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

const (
	CreateFlashcardToolName = "create_flashcard"
	CreateMCQToolName       = "create_mcq"
	CreateTrueFalseToolName = "create_truefalse"
	CreateSetToolName       = "create_flashcard_set"
)

// CardTool builds one flashcard of a fixed kind.
type CardTool struct {
	kind        flashcard.Kind
	name        string
	description string
	summary     string
	label       string
}

// NewBasic creates the create_flashcard tool.
func NewBasic() *CardTool {
	return &CardTool{
		kind:        flashcard.KindBasic,
		name:        CreateFlashcardToolName,
		description: "Create a basic flashcard with a question and answer",
		summary:     "I've created a flashcard for you.",
		label:       "flashcard",
	}
}

// NewMCQ creates the create_mcq tool.
func NewMCQ() *CardTool {
	return &CardTool{
		kind:        flashcard.KindMCQ,
		name:        CreateMCQToolName,
		description: "Create a multiple-choice question with options",
		summary:     "I've created a multiple-choice question for you.",
		label:       "MCQ",
	}
}

// NewTrueFalse creates the create_truefalse tool.
func NewTrueFalse() *CardTool {
	return &CardTool{
		kind:        flashcard.KindTrueFalse,
		name:        CreateTrueFalseToolName,
		description: "Create a true/false question",
		summary:     "I've created a true/false question for you.",
		label:       "true/false question",
	}
}

func (t *CardTool) Name() string {
	return t.name
}

func (t *CardTool) Description() string {
	return t.description
}

func (t *CardTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  cardSchema(t.kind),
	}
}

func (t *CardTool) Run(ctx context.Context, arguments string) (*tool.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	card, err := flashcard.ParseCard([]byte(arguments), t.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", t.label, err)
	}
	return &tool.Result{
		Kind:    tool.KindFlashcard,
		Content: &model.ContentPart{Type: model.PartFlashcard, Flashcard: card},
		Summary: t.summary,
	}, nil
}

// Tools returns every flashcard tool in declaration order.
func Tools() []tool.Tool {
	return []tool.Tool{NewBasic(), NewMCQ(), NewTrueFalse(), NewSet()}
}
