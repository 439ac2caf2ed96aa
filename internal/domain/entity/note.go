package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
	tport "github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// NotesTable is the table-storage table holding notes
const NotesTable = "notes"

// MaxNoteTitleLength bounds the title of a note
const MaxNoteTitleLength = 200

// Note is a tenant-scoped document kept in table storage.
// The tenant is the partition key so one tenant's notes batch together.
type Note struct {
	Tenant    string    `dynamodbav:"PartitionKey" json:"tenant"`
	ID        string    `dynamodbav:"RowKey" json:"id"`
	Title     string    `dynamodbav:"Title" json:"title"`
	Body      string    `dynamodbav:"Body" json:"body"`
	Archived  bool      `dynamodbav:"Archived" json:"archived"`
	CreatedAt time.Time `dynamodbav:"CreatedAt" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"UpdatedAt" json:"updatedAt"`
}

// NewNote creates a note with a generated row key
func NewNote(tenant, title, body string, timeProvider tport.TimeProvider) (*Note, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return nil, fmt.Errorf("%w: tenant cannot be empty", errs.ErrInvalidRequest)
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	now := timeProvider.Now()
	return &Note{
		Tenant:    tenant,
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Key returns the composite table key
func (n *Note) Key() TableKey {
	return NewTableKey(n.Tenant, n.ID)
}

// TableName returns the table the note lives in
func (n *Note) TableName() string {
	return NotesTable
}

// Rename changes the title
func (n *Note) Rename(title string, timeProvider tport.TimeProvider) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	n.Title = strings.TrimSpace(title)
	n.UpdatedAt = timeProvider.Now()
	return nil
}

// Archive marks the note archived; archiving twice is a no-op
func (n *Note) Archive(timeProvider tport.TimeProvider) bool {
	if n.Archived {
		return false
	}
	n.Archived = true
	n.UpdatedAt = timeProvider.Now()
	return true
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", errs.ErrInvalidRequest)
	}
	if len(title) > MaxNoteTitleLength {
		return fmt.Errorf("%w: title longer than %d characters", errs.ErrInvalidRequest, MaxNoteTitleLength)
	}
	return nil
}
