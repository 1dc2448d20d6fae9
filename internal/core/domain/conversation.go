package domain

import "time"

// ConversationState is the per-thread message history. It is owned by
// the session store; a turn borrows it under the store's per-thread
// lock and appends exactly one user and one assistant message.
type ConversationState struct {
	ThreadID  string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *ConversationState) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
}
