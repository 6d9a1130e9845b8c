package compliance

import (
	"context"
	"fmt"
	"slices"
)

func (s *InMemory) CreateRiskAssessment(ctx context.Context, in NewRiskAssessment, actor Actor) (RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ra := s.risks.insert(func(id int64) RiskAssessment {
		return RiskAssessment{
			ID:                  id,
			Title:               in.Title,
			Description:         in.Description,
			PharmacyID:          in.PharmacyID,
			Likelihood:          in.Likelihood,
			Impact:              in.Impact,
			DetectionDifficulty: in.DetectionDifficulty,
			RiskLevel:           in.Likelihood * in.Impact,
			MitigationStatus:    in.MitigationStatus,
			Owner:               in.Owner,
			DueDate:             cloneTime(in.DueDate),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	})
	s.audit(actor, ActionCreate, ResourceRiskAssessment, ra.ID, ra.PharmacyID,
		fmt.Sprintf("Risk assessment %q created with risk level %d", ra.Title, ra.RiskLevel))
	return ra, nil
}

// UpdateRiskAssessment applies a partial update. The risk level is recomputed
// only when likelihood or impact is part of the update.
func (s *InMemory) UpdateRiskAssessment(ctx context.Context, id int64, upd RiskAssessmentUpdate, actor Actor) (RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.risks.get(id)
	if !ok {
		return RiskAssessment{}, ErrNotFound
	}
	if upd.Title != nil {
		ra.Title = *upd.Title
	}
	if upd.Description != nil {
		ra.Description = *upd.Description
	}
	if upd.DetectionDifficulty != nil {
		ra.DetectionDifficulty = *upd.DetectionDifficulty
	}
	if upd.MitigationStatus != nil {
		ra.MitigationStatus = *upd.MitigationStatus
	}
	if upd.Owner != nil {
		ra.Owner = *upd.Owner
	}
	if upd.DueDate != nil {
		ra.DueDate = cloneTime(upd.DueDate)
	}
	if upd.Likelihood != nil || upd.Impact != nil {
		if upd.Likelihood != nil {
			ra.Likelihood = *upd.Likelihood
		}
		if upd.Impact != nil {
			ra.Impact = *upd.Impact
		}
		ra.RiskLevel = ra.Likelihood * ra.Impact
	}
	ra.UpdatedAt = s.now()
	s.risks.put(id, ra)
	s.audit(actor, ActionUpdate, ResourceRiskAssessment, ra.ID, ra.PharmacyID,
		fmt.Sprintf("Risk assessment %q updated, risk level %d", ra.Title, ra.RiskLevel))
	return ra, nil
}

func (s *InMemory) GetRiskAssessment(ctx context.Context, id int64) (RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ra, ok := s.risks.get(id)
	if !ok {
		return RiskAssessment{}, ErrNotFound
	}
	return ra, nil
}

func (s *InMemory) ListRiskAssessments(ctx context.Context, pharmacyID string) ([]RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.risks.list(func(r RiskAssessment) bool { return r.PharmacyID == pharmacyID }), nil
}

// CriticalRiskAssessments ranks a pharmacy's assessments by risk level, highest first.
func (s *InMemory) CriticalRiskAssessments(ctx context.Context, pharmacyID string, limit int) ([]RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ranked := s.risks.list(func(r RiskAssessment) bool { return r.PharmacyID == pharmacyID })
	slices.SortStableFunc(ranked, func(a, b RiskAssessment) int { return b.RiskLevel - a.RiskLevel })
	return head(ranked, limitOr(limit, DefaultCriticalRisks)), nil
}
