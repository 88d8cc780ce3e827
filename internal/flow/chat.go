package flow

import (
	"context"
	"strings"

	"smartpdf-web/internal/session"
)

type ChatController struct {
	store *session.Store
}

func NewChatController(store *session.Store) *ChatController {
	return &ChatController{store: store}
}

// Send asks text against the active session and returns the answer.
func (c *ChatController) Send(ctx context.Context, text string) (session.Message, error) {
	if err := validate.Struct(queryInput{Query: text}); err != nil {
		return session.Message{}, precondition(err, session.ErrEmptyQuery)
	}

	snap := c.store.Snapshot()
	if snap.Phase != session.PhaseActive {
		return session.Message{}, session.ErrNoActiveSession
	}
	if snap.ChatPending {
		return session.Message{}, session.ErrChatPending
	}

	return c.store.Chat(ctx, strings.TrimSpace(text))
}
