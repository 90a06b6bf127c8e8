package runtime

import (
	"context"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
)

// NewConversation creates an empty conversation using the runtime's system
// prompt.
func (r *Runtime) NewConversation(ctx context.Context, title string) (*conversation.Conversation, error) {
	return r.store.Create(ctx, conversation.New(title, r.systemPrompt))
}

// Resume returns the most recently active conversation, creating the
// welcome conversation on first run.
func (r *Runtime) Resume(ctx context.Context) (*conversation.Conversation, error) {
	list, err := r.store.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return r.store.Create(ctx, conversation.Welcome(r.systemPrompt))
	}
	return r.store.Get(ctx, list[0].ID)
}

func (r *Runtime) Conversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	return r.store.Get(ctx, id)
}

func (r *Runtime) Conversations(ctx context.Context, limit int) ([]conversation.Summary, error) {
	return r.store.List(ctx, limit)
}

// DeleteConversation removes a conversation that has no send in flight.
func (r *Runtime) DeleteConversation(ctx context.Context, id string) error {
	if r.Active(id) {
		return &ConversationBusyError{ConversationID: id}
	}
	return r.store.Delete(ctx, id)
}
