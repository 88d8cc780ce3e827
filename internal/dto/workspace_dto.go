package dto

import "smartpdf-web/internal/session"

type CreateWorkspaceResponse struct {
	Id       string           `json:"id"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type ChatRequest struct {
	Query string `json:"query" form:"query" validate:"required,max=4000"`
}

type ChatResponse struct {
	Answer   session.Message  `json:"answer"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type SelectFilesResponse struct {
	Files    []session.FileInfo `json:"files"`
	Snapshot session.Snapshot   `json:"snapshot"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Workspaces int    `json:"workspaces"`
}
