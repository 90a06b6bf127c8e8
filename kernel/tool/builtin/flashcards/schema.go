package flashcards

import "github.com/FireFreezer630/Wisdom-Core/kernel/flashcard"

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func optionsSchema(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":   str("Unique identifier for the option"),
				"text": str("Text of the option"),
			},
			"required": []string{"id", "text"},
		},
	}
}

func cardSchema(kind flashcard.Kind) map[string]any {
	props := map[string]any{
		"explanation": str("Optional explanation of the answer"),
		"imageUrl":    str("Optional URL to an image to display with the question"),
	}
	var required []string
	switch kind {
	case flashcard.KindBasic:
		props["question"] = str("The question to display on the flashcard")
		props["answer"] = str("The answer to the question")
		required = []string{"question", "answer"}
	case flashcard.KindMCQ:
		props["question"] = str("The question to display")
		props["options"] = optionsSchema("Array of options for the question")
		props["correctOptionId"] = str("ID of the correct option")
		required = []string{"question", "options", "correctOptionId"}
	case flashcard.KindTrueFalse:
		props["question"] = str("The statement to evaluate as true or false")
		props["isTrue"] = map[string]any{"type": "boolean", "description": "Whether the statement is true or false"}
		required = []string{"question", "isTrue"}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func setSchema() map[string]any {
	card := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type":        "string",
				"enum":        []string{string(flashcard.KindBasic), string(flashcard.KindMCQ), string(flashcard.KindTrueFalse)},
				"description": "Type of flashcard",
			},
			"question":        str("The question or statement"),
			"answer":          str("For basic type: the answer to the question"),
			"options":         optionsSchema("For mcq type: array of options"),
			"correctOptionId": str("For mcq type: ID of the correct option"),
			"isTrue":          map[string]any{"type": "boolean", "description": "For truefalse type: whether the statement is true or false"},
			"explanation":     str("Optional explanation"),
			"imageUrl":        str("Optional image URL"),
		},
		"required": []string{"type", "question"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       str("Title of the flashcard set"),
			"description": str("Optional description of the flashcard set"),
			"cards": map[string]any{
				"type":        "array",
				"description": "Array of flashcards in the set",
				"items":       card,
			},
		},
		"required": []string{"title", "cards"},
	}
}
