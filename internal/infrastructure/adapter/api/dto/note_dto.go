package dto

import (
	"time"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
)

// CreateNoteRequest is the body of POST /api/v1/tenants/:tenant/notes
type CreateNoteRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
}

// RenameNoteRequest is the body of PATCH /api/v1/tenants/:tenant/notes/:id
type RenameNoteRequest struct {
	Title string `json:"title" binding:"required"`
}

// ImportNotesRequest is the body of POST /api/v1/tenants/:tenant/notes/import
type ImportNotesRequest struct {
	Notes []CreateNoteRequest `json:"notes" binding:"required,dive"`
}

// NoteResponse is a note as returned by the API
type NoteResponse struct {
	Tenant    string    `json:"tenant"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ImportNotesResponse lists the notes an import created
type ImportNotesResponse struct {
	Count int            `json:"count"`
	Notes []NoteResponse `json:"notes"`
}

// NewNoteResponse converts a note entity
func NewNoteResponse(note *entity.Note) NoteResponse {
	return NoteResponse{
		Tenant:    note.Tenant,
		ID:        note.ID,
		Title:     note.Title,
		Body:      note.Body,
		Archived:  note.Archived,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

// NewImportNotesResponse converts the notes an import created
func NewImportNotesResponse(notes []*entity.Note) ImportNotesResponse {
	resp := ImportNotesResponse{
		Count: len(notes),
		Notes: make([]NoteResponse, 0, len(notes)),
	}
	for _, note := range notes {
		resp.Notes = append(resp.Notes, NewNoteResponse(note))
	}
	return resp
}
