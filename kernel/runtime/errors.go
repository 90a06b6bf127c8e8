package runtime

import (
	"errors"
	"fmt"
)

// ConversationBusyError indicates a conversation already has an in-flight
// send and the runtime is configured to reject the new one.
type ConversationBusyError struct {
	ConversationID string
}

func (e *ConversationBusyError) Error() string {
	if e == nil {
		return "runtime: conversation is busy"
	}
	return fmt.Sprintf("runtime: conversation %q is busy", e.ConversationID)
}

func IsConversationBusy(err error) bool {
	var target *ConversationBusyError
	return errors.As(err, &target)
}
