package entity

import (
	"fmt"
	"time"

	tport "github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

// AuditEntriesTable is the relational table holding audit entries
const AuditEntriesTable = "audit_entries"

// AuditAction describes what happened to the audited entity
type AuditAction string

// Audit actions
const (
	AuditCreated  AuditAction = "created"
	AuditUpdated  AuditAction = "updated"
	AuditArchived AuditAction = "archived"
	AuditDeleted  AuditAction = "deleted"
)

// AuditEntry records one mutation of a table-storage entity in the relational store
type AuditEntry struct {
	ID           RecordID    `gorm:"primaryKey;size:36"`
	EntityTable  string      `gorm:"not null;size:100;index:idx_audit_entity"`
	EntityKey    string      `gorm:"not null;size:255;index:idx_audit_entity"`
	Action       AuditAction `gorm:"not null;size:20"`
	UnitOfWorkID string      `gorm:"size:36"`
	CreatedAt    time.Time   `gorm:"not null"`
}

// NewAuditEntry creates an audit entry for the given entity key
func NewAuditEntry(table string, key fmt.Stringer, action AuditAction, unitOfWorkID string, timeProvider tport.TimeProvider) *AuditEntry {
	return &AuditEntry{
		ID:           NewRecordID(),
		EntityTable:  table,
		EntityKey:    key.String(),
		Action:       action,
		UnitOfWorkID: unitOfWorkID,
		CreatedAt:    timeProvider.Now(),
	}
}

// Key returns the record ID
func (a *AuditEntry) Key() RecordID {
	return a.ID
}

// TableName specifies the table name for AuditEntry
func (a *AuditEntry) TableName() string {
	return AuditEntriesTable
}
