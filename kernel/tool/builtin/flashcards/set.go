package flashcards

import (
	"context"
	"fmt"

	"github.com/FireFreezer630/Wisdom-Core/kernel/flashcard"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

// SetTool builds a titled flashcard set. The whole set is rejected when any
// card is invalid.
type SetTool struct{}

// NewSet creates the create_flashcard_set tool.
func NewSet() *SetTool {
	return &SetTool{}
}

func (t *SetTool) Name() string {
	return CreateSetToolName
}

func (t *SetTool) Description() string {
	return "Create a set of flashcards"
}

func (t *SetTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  setSchema(),
	}
}

func (t *SetTool) Run(ctx context.Context, arguments string) (*tool.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set, err := flashcard.ParseSet([]byte(arguments))
	if err != nil {
		return nil, fmt.Errorf("failed to create flashcard set: %w", err)
	}
	noun := "cards"
	if len(set.Cards) == 1 {
		noun = "card"
	}
	return &tool.Result{
		Kind:    tool.KindFlashcardSet,
		Content: &model.ContentPart{Type: model.PartFlashcardSet, FlashcardSet: set},
		Summary: fmt.Sprintf("I've created a flashcard set %q with %d %s for you.", set.Title, len(set.Cards), noun),
	}, nil
}
