package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// Handler is a typed function tool handler.
type Handler[TArgs any] func(context.Context, TArgs) (*Result, error)

// Validator is implemented by argument types that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

type functionTool[TArgs any] struct {
	name        string
	description string
	handler     Handler[TArgs]
}

// NewFunction creates a typed function-backed tool. The parameter schema is
// derived from TArgs.
func NewFunction[TArgs any](name, description string, handler Handler[TArgs]) (Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool: name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool: handler is nil")
	}
	return &functionTool[TArgs]{
		name:        name,
		description: description,
		handler:     handler,
	}, nil
}

func (t *functionTool[TArgs]) Name() string {
	return t.name
}

func (t *functionTool[TArgs]) Description() string {
	return t.description
}

func (t *functionTool[TArgs]) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  schemaForType[TArgs](),
	}
}

func (t *functionTool[TArgs]) Run(ctx context.Context, arguments string) (*Result, error) {
	var args TArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %s", t.name, describeDecodeError(err))
	}
	if v, ok := any(&args).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	return t.handler(ctx, args)
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be %s, got %s", typeErr.Field, typeErr.Type.String(), typeErr.Value)
	}
	return err.Error()
}
