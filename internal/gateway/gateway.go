package gateway

import "context"

// Document is one file blob selected for upload, in selection order.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	SessionID string
}

// Source is a retrieved passage the backend used to ground an answer.
type Source struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type ChatResult struct {
	Answer  string
	Sources []Source
}

// Ack is the backend acknowledgement of a terminated session. Its shape is
// not load-bearing; Message is kept for logging only.
type Ack struct {
	Message string
}

// Gateway is the boundary to the external document-QA backend. It holds no
// session state; callers own sequencing and admission.
type Gateway interface {
	UploadDocuments(ctx context.Context, docs []Document) (UploadResult, error)
	SubmitQuery(ctx context.Context, sessionID, query string) (ChatResult, error)
	TerminateSession(ctx context.Context, sessionID string) (Ack, error)
	// TerminateDetached dispatches a termination without waiting for it.
	// The outcome is logged and never reported back to the caller.
	TerminateDetached(sessionID string)
}
