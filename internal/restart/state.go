package restart

import (
	"context"
	"fmt"
	"sync"
)

// StateStore scopes a DocumentStore to the running bot's identity and
// serializes read-modify-write sequences against its document.
type StateStore struct {
	docs    DocumentStore
	ownerID int64

	mu sync.Mutex
}

// NewStateStore creates a StateStore for ownerID.
func NewStateStore(docs DocumentStore, ownerID int64) *StateStore {
	return &StateStore{docs: docs, ownerID: ownerID}
}

// OwnerID returns the identity the state is keyed by.
func (s *StateStore) OwnerID() int64 {
	return s.ownerID
}

// AddRecord appends rec to the owner's record set.
func (s *StateStore) AddRecord(ctx context.Context, rec Record) error {
	if _, err := ParseReason(string(rec.Reason)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.docs.AppendToSet(ctx, s.ownerID, rec); err != nil {
		return fmt.Errorf("saving restart record: %w", err)
	}
	return nil
}

// TakeFirst consumes the pending restart state. The whole document is
// deleted before the first record is returned, so anything the caller
// does with the record afterwards cannot cause it to be replayed.
// Returns nil when nothing is pending.
func (s *StateStore) TakeFirst(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.FindOne(ctx, s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("reading restart state: %w", err)
	}
	if doc == nil {
		return nil, nil
	}

	if err := s.docs.DeleteOne(ctx, s.ownerID); err != nil {
		return nil, fmt.Errorf("clearing restart state: %w", err)
	}

	if len(doc.Records) == 0 {
		return nil, nil
	}
	first := doc.Records[0]
	return &first, nil
}

// Peek returns the first pending record without consuming it.
func (s *StateStore) Peek(ctx context.Context) (*Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.FindOne(ctx, s.ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("reading restart state: %w", err)
	}
	if doc == nil || len(doc.Records) == 0 {
		return nil, 0, nil
	}
	first := doc.Records[0]
	return &first, len(doc.Records), nil
}
