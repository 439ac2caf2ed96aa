package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amirhossein-jamali/workscope/internal/domain/entity"
	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
	"github.com/amirhossein-jamali/workscope/internal/domain/usecase/note"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/workscope/internal/infrastructure/adapter/api/middleware"
)

// NoteService is the note use case the handler drives
type NoteService interface {
	CreateNote(ctx context.Context, tenant, title, body string) (*entity.Note, error)
	GetNote(ctx context.Context, key entity.TableKey) (*entity.Note, error)
	RenameNote(ctx context.Context, key entity.TableKey, title string) (*entity.Note, error)
	ArchiveNote(ctx context.Context, key entity.TableKey) (*entity.Note, error)
	DeleteNote(ctx context.Context, key entity.TableKey) error
	ImportNotes(ctx context.Context, tenant string, items []note.ImportItem) ([]*entity.Note, error)
}

// NoteHandler handles note-related HTTP requests
type NoteHandler struct {
	notes  NoteService
	logger core.Logger
}

// NewNoteHandler creates a new note handler instance
func NewNoteHandler(notes NoteService, logger core.Logger) *NoteHandler {
	return &NoteHandler{
		notes:  notes,
		logger: logger,
	}
}

// CreateNote handles POST /api/v1/tenants/:tenant/notes
func (h *NoteHandler) CreateNote(c *gin.Context) {
	var req dto.CreateNoteRequest
	if !h.bind(c, &req) {
		return
	}

	created, err := h.notes.CreateNote(c.Request.Context(), c.Param("tenant"), req.Title, req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, dto.NewNoteResponse(created))
}

// GetNote handles GET /api/v1/tenants/:tenant/notes/:id
func (h *NoteHandler) GetNote(c *gin.Context) {
	found, err := h.notes.GetNote(c.Request.Context(), noteKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewNoteResponse(found))
}

// RenameNote handles PATCH /api/v1/tenants/:tenant/notes/:id
func (h *NoteHandler) RenameNote(c *gin.Context) {
	var req dto.RenameNoteRequest
	if !h.bind(c, &req) {
		return
	}

	renamed, err := h.notes.RenameNote(c.Request.Context(), noteKey(c), req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, dto.NewNoteResponse(renamed))
}

// ArchiveNote handles POST /api/v1/tenants/:tenant/notes/:id/archive
func (h *NoteHandler) ArchiveNote(c *gin.Context) {
	archived, err := h.notes.ArchiveNote(c.Request.Context(), noteKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, dto.NewNoteResponse(archived))
}

// DeleteNote handles DELETE /api/v1/tenants/:tenant/notes/:id
func (h *NoteHandler) DeleteNote(c *gin.Context) {
	if err := h.notes.DeleteNote(c.Request.Context(), noteKey(c)); err != nil {
		h.fail(c, err)
		return
	}
	if err := middleware.CommitRequest(c); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ImportNotes handles POST /api/v1/tenants/:tenant/notes/import
func (h *NoteHandler) ImportNotes(c *gin.Context) {
	var req dto.ImportNotesRequest
	if !h.bind(c, &req) {
		return
	}

	items := make([]note.ImportItem, 0, len(req.Notes))
	for _, n := range req.Notes {
		items = append(items, note.ImportItem{Title: n.Title, Body: n.Body})
	}

	imported, err := h.notes.ImportNotes(c.Request.Context(), c.Param("tenant"), items)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, dto.NewImportNotesResponse(imported))
}

func noteKey(c *gin.Context) entity.TableKey {
	return entity.NewTableKey(c.Param("tenant"), c.Param("id"))
}

func (h *NoteHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fmt.Errorf("%w: %s", errs.ErrInvalidRequest, err.Error()))
		return false
	}
	return true
}

// respond commits the request's unit of work, then writes body
func (h *NoteHandler) respond(c *gin.Context, status int, body any) {
	if err := middleware.CommitRequest(c); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, body)
}

// fail hands err to the error middleware, which renders it
func (h *NoteHandler) fail(c *gin.Context, err error) {
	h.logger.Debug("Note request failed", map[string]any{
		"path":  c.FullPath(),
		"error": err.Error(),
	})
	_ = c.Error(err)
	c.Abort()
}
