package session

import (
	"time"

	"smartpdf-web/internal/gateway"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one chat turn. The transcript is append-only.
type Message struct {
	ID        string           `json:"id"`
	Sender    Sender           `json:"sender"`
	Text      string           `json:"text"`
	Sources   []gateway.Source `json:"sources,omitempty"`
	Failed    bool             `json:"failed,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func newUserMessage(text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Text:      text,
		Timestamp: now,
	}
}

func newAssistantMessage(result gateway.ChatResult, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    SenderAssistant,
		Text:      result.Answer,
		Sources:   result.Sources,
		Timestamp: now,
	}
}

// FileInfo describes a pending file without its contents.
type FileInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Snapshot is a deep copy of Store state, safe to share with observers.
type Snapshot struct {
	Version      uint64     `json:"version"`
	Phase        Phase      `json:"phase"`
	SessionID    string     `json:"session_id,omitempty"`
	PendingFiles []FileInfo `json:"pending_files"`
	LastError    string     `json:"last_error,omitempty"`
	IsLoading    bool       `json:"is_loading"`
	ChatPending  bool       `json:"chat_pending"`
	Transcript   []Message  `json:"transcript"`
}

func (s Snapshot) HasSession() bool {
	return s.SessionID != ""
}
