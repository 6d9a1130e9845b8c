package compliance

import (
	"context"
	"slices"
)

// ComplianceByChapter joins every requirement of a chapter with the pharmacy's
// current compliance record. Requirements without a record are omitted.
func (s *InMemory) ComplianceByChapter(ctx context.Context, chapterID int64, pharmacyID string) ([]ComplianceDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.chapters.get(chapterID); !ok {
		return nil, ErrNotFound
	}
	return s.joinChapter(chapterID, s.currentByRequirement(pharmacyID)), nil
}

// currentByRequirement indexes the current record per requirement for a
// pharmacy. Current is the latest LastUpdated; ties go to the newer record.
func (s *InMemory) currentByRequirement(pharmacyID string) map[int64]Compliance {
	current := make(map[int64]Compliance)
	for _, rec := range s.compliance.rows {
		if rec.PharmacyID != pharmacyID {
			continue
		}
		prev, ok := current[rec.RequirementID]
		if !ok || newerRecord(rec, prev) {
			current[rec.RequirementID] = rec
		}
	}
	return current
}

func newerRecord(a, b Compliance) bool {
	if !a.LastUpdated.Equal(b.LastUpdated) {
		return a.LastUpdated.After(b.LastUpdated)
	}
	return a.ID > b.ID
}

func (s *InMemory) joinChapter(chapterID int64, current map[int64]Compliance) []ComplianceDetail {
	out := make([]ComplianceDetail, 0)
	for _, req := range s.requirementsOf(chapterID) {
		rec, ok := current[req.ID]
		if !ok {
			continue
		}
		out = append(out, ComplianceDetail{Compliance: rec.clone(), Requirement: req})
	}
	return out
}

// ChapterCompliance summarizes every chapter that has at least one requirement.
func (s *InMemory) ChapterCompliance(ctx context.Context, pharmacyID string) ([]ChapterSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chapterSummaries(s.currentByRequirement(pharmacyID)), nil
}

// OverallCompliance is the unweighted mean of the chapter percentages.
func (s *InMemory) OverallCompliance(ctx context.Context, pharmacyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overall(s.chapterSummaries(s.currentByRequirement(pharmacyID))), nil
}

func (s *InMemory) chapterSummaries(current map[int64]Compliance) []ChapterSummary {
	out := make([]ChapterSummary, 0)
	for _, ch := range s.chapters.list(nil) {
		reqs := s.requirementsOf(ch.ID)
		if len(reqs) == 0 {
			continue
		}
		met := 0
		for _, req := range reqs {
			if rec, ok := current[req.ID]; ok && rec.Status == StatusMet {
				met++
			}
		}
		pct := percentage(met, len(reqs))
		out = append(out, ChapterSummary{
			Chapter:    ch,
			Total:      len(reqs),
			Met:        met,
			Percentage: pct,
			Status:     tierFor(pct),
		})
	}
	return out
}

// percentage is round-half-up of met/total*100 in integer arithmetic.
func percentage(met, total int) int {
	if total <= 0 {
		return 0
	}
	return (met*200 + total) / (2 * total)
}

func tierFor(pct int) Tier {
	switch {
	case pct < 70:
		return TierDanger
	case pct < 80:
		return TierWarning
	default:
		return TierSuccess
	}
}

func overall(chapters []ChapterSummary) int {
	n := len(chapters)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, c := range chapters {
		sum += c.Percentage
	}
	return (2*sum + n) / (2 * n)
}

// CriticalIssues lists unmet critical requirements, Not Met before any other
// open status. The list is unbounded.
func (s *InMemory) CriticalIssues(ctx context.Context, pharmacyID string) ([]ComplianceDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criticalIssues(s.currentByRequirement(pharmacyID)), nil
}

func (s *InMemory) criticalIssues(current map[int64]Compliance) []ComplianceDetail {
	issues := make([]ComplianceDetail, 0)
	for _, ch := range s.chapters.list(nil) {
		for _, d := range s.joinChapter(ch.ID, current) {
			if d.Requirement.Criticality == CriticalityCritical && d.Status != StatusMet {
				issues = append(issues, d)
			}
		}
	}
	slices.SortStableFunc(issues, func(a, b ComplianceDetail) int {
		return notMetRank(a.Status) - notMetRank(b.Status)
	})
	return issues
}

func notMetRank(st Status) int {
	if st == StatusNotMet {
		return 0
	}
	return 1
}
