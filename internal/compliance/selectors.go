package compliance

import (
	"context"
	"slices"
	"time"
)

// UpcomingTasks returns tasks due strictly after now, soonest first.
// Tasks without a due date are never upcoming.
func (s *InMemory) UpcomingTasks(ctx context.Context, pharmacyID string, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upcomingTasks(pharmacyID, limitOr(limit, DefaultUpcomingTasks)), nil
}

func (s *InMemory) upcomingTasks(pharmacyID string, limit int) []Task {
	now := s.now()
	tasks := s.tasks.list(func(t Task) bool {
		return t.PharmacyID == pharmacyID && t.DueDate != nil && t.DueDate.After(now)
	})
	slices.SortStableFunc(tasks, func(a, b Task) int { return a.DueDate.Compare(*b.DueDate) })
	return head(tasks, limit)
}

// RecentDocuments returns the most recently uploaded documents first.
func (s *InMemory) RecentDocuments(ctx context.Context, pharmacyID string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentDocuments(pharmacyID, limitOr(limit, DefaultRecentDocuments)), nil
}

func (s *InMemory) recentDocuments(pharmacyID string, limit int) []Document {
	docs := s.documents.list(func(d Document) bool { return d.PharmacyID == pharmacyID })
	slices.SortStableFunc(docs, func(a, b Document) int { return b.UploadedAt.Compare(a.UploadedAt) })
	return head(docs, limit)
}

// ExpiringTrainings lists completed trainings whose certification lapses
// within the given window, earliest expiry first.
func (s *InMemory) ExpiringTrainings(ctx context.Context, pharmacyID string, within time.Duration) ([]Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := s.trainings.list(func(t Training) bool {
		return t.PharmacyID == pharmacyID && expiresWithin(t, now, within)
	})
	slices.SortStableFunc(out, func(a, b Training) int { return a.ExpiresAt.Compare(*b.ExpiresAt) })
	return out, nil
}
