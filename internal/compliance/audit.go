package compliance

import (
	"cmp"
	"context"
	"slices"
)

// RecordAudit appends an entry with an engine-assigned id and timestamp.
func (s *InMemory) RecordAudit(ctx context.Context, in NewAuditEntry) (AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(in), nil
}

// appendAudit must run under the write lock, in the same critical section
// as the mutation it describes.
func (s *InMemory) appendAudit(in NewAuditEntry) AuditEntry {
	ts := s.now()
	return s.audits.insert(func(id int64) AuditEntry {
		return AuditEntry{
			ID:           id,
			UserID:       cloneInt64(in.UserID),
			Action:       in.Action,
			Details:      in.Details,
			Timestamp:    ts,
			PharmacyID:   in.PharmacyID,
			ResourceType: in.ResourceType,
			ResourceID:   cloneInt64(in.ResourceID),
		}
	})
}

// audit records a mutation of resource id performed by actor.
func (s *InMemory) audit(actor Actor, action, resourceType string, id int64, pharmacyID, details string) {
	s.appendAudit(NewAuditEntry{
		UserID:       actor.UserID,
		Action:       action,
		Details:      details,
		PharmacyID:   pharmacyID,
		ResourceType: resourceType,
		ResourceID:   &id,
	})
}

// ListAudits returns the newest entries for a pharmacy first.
func (s *InMemory) ListAudits(ctx context.Context, pharmacyID string, limit int) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentAudits(pharmacyID, limitOr(limit, DefaultAuditEntries)), nil
}

func (s *InMemory) recentAudits(pharmacyID string, limit int) []AuditEntry {
	entries := s.audits.list(func(a AuditEntry) bool { return a.PharmacyID == pharmacyID })
	slices.SortStableFunc(entries, func(a, b AuditEntry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return head(entries, limit)
}
