// Package restart persists restart intent across a process re-exec and
// resumes it on the next boot.
package restart

import (
	"context"
	"fmt"
)

// Reason explains why a restart was requested.
type Reason string

const (
	ReasonManual Reason = "manual"
	ReasonUpdate Reason = "update"
)

// ParseReason validates a stored reason string.
func ParseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonManual, ReasonUpdate:
		return Reason(s), nil
	default:
		return "", fmt.Errorf("unknown restart reason %q", s)
	}
}

// Record is one pending restart. It is the only payload that crosses the
// re-exec boundary and must round-trip exactly.
type Record struct {
	StatusChatID      int64  `json:"status_chat_id"`
	StatusMessageID   int64  `json:"status_message_id"`
	ScheduledAtMicros int64  `json:"scheduled_at_micros"`
	Reason            Reason `json:"reason"`
}

// HasStatusMessage reports whether the record points at a message to edit.
func (r Record) HasStatusMessage() bool {
	return r.StatusChatID != 0 && r.StatusMessageID != 0
}

// Document is the set of records stored under one owner.
type Document struct {
	OwnerID int64
	Records []Record
}

// DocumentStore is the persistence contract for restart state.
type DocumentStore interface {
	// FindOne returns the owner's document, or nil when none exists.
	FindOne(ctx context.Context, ownerID int64) (*Document, error)

	// AppendToSet adds rec to the owner's set, creating the document if
	// absent. Adding a record already in the set is a no-op. The append
	// must be atomic: readers never observe a partially written record.
	AppendToSet(ctx context.Context, ownerID int64, rec Record) error

	// DeleteOne removes the owner's document and every record in it.
	DeleteOne(ctx context.Context, ownerID int64) error
}
