package compliance

import "context"

// Dashboard composes the dashboard read model from one consistent snapshot.
func (s *InMemory) Dashboard(ctx context.Context, pharmacyID string) (DashboardView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.currentByRequirement(pharmacyID)
	chapters := s.chapterSummaries(current)
	issues := s.criticalIssues(current)

	return DashboardView{
		PharmacyID:         pharmacyID,
		OverallCompliance:  overall(chapters),
		Chapters:           chapters,
		CriticalIssues:     head(issues, dashboardCriticalIssues),
		CriticalIssueCount: len(issues),
		UpcomingTasks:      s.upcomingTasks(pharmacyID, dashboardTasks),
		RecentDocuments:    s.recentDocuments(pharmacyID, dashboardDocuments),
		RecentActivity:     s.recentAudits(pharmacyID, dashboardActivity),
		GeneratedAt:        s.now(),
	}, nil
}
