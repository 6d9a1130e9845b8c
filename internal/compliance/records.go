package compliance

import (
	"context"
	"fmt"
	"time"
)

func (s *InMemory) CreateCompliance(ctx context.Context, in NewCompliance, actor Actor) (Compliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requirements.get(in.RequirementID); !ok {
		return Compliance{}, fmt.Errorf("%w: requirement %d", ErrInvalidReference, in.RequirementID)
	}
	now := s.now()
	rec := s.compliance.insert(func(id int64) Compliance {
		return Compliance{
			ID:            id,
			RequirementID: in.RequirementID,
			PharmacyID:    in.PharmacyID,
			Status:        in.Status,
			Evidence:      in.Evidence,
			LastUpdated:   now,
			UpdatedBy:     cloneInt64(actor.UserID),
		}
	})
	s.audit(actor, ActionCreate, ResourceCompliance, rec.ID, rec.PharmacyID,
		fmt.Sprintf("Compliance for requirement %d set to %s", rec.RequirementID, rec.Status))
	return rec, nil
}

func (s *InMemory) UpdateCompliance(ctx context.Context, id int64, upd ComplianceUpdate, actor Actor) (Compliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.compliance.get(id)
	if !ok {
		return Compliance{}, ErrNotFound
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Evidence != nil {
		rec.Evidence = *upd.Evidence
	}
	rec.LastUpdated = s.now()
	rec.UpdatedBy = cloneInt64(actor.UserID)
	s.compliance.put(id, rec)
	s.audit(actor, ActionUpdate, ResourceCompliance, rec.ID, rec.PharmacyID,
		fmt.Sprintf("Compliance for requirement %d updated to %s", rec.RequirementID, rec.Status))
	return rec, nil
}

func (s *InMemory) GetCompliance(ctx context.Context, id int64) (Compliance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.compliance.get(id)
	if !ok {
		return Compliance{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemory) ListCompliance(ctx context.Context, pharmacyID string) ([]Compliance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compliance.list(func(c Compliance) bool { return c.PharmacyID == pharmacyID }), nil
}

func (s *InMemory) CreateTask(ctx context.Context, in NewTask, actor Actor) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.RequirementID != nil {
		if _, ok := s.requirements.get(*in.RequirementID); !ok {
			return Task{}, fmt.Errorf("%w: requirement %d", ErrInvalidReference, *in.RequirementID)
		}
	}
	t := s.tasks.insert(func(id int64) Task {
		return Task{
			ID:            id,
			Title:         in.Title,
			Description:   in.Description,
			DueDate:       cloneTime(in.DueDate),
			AssignedTo:    cloneInt64(in.AssignedTo),
			Status:        in.Status,
			RequirementID: cloneInt64(in.RequirementID),
			PharmacyID:    in.PharmacyID,
			Priority:      in.Priority,
			TaskType:      in.TaskType,
		}
	})
	s.audit(actor, ActionCreate, ResourceTask, t.ID, t.PharmacyID, fmt.Sprintf("Task %q created", t.Title))
	return t, nil
}

func (s *InMemory) UpdateTask(ctx context.Context, id int64, upd TaskUpdate, actor Actor) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks.get(id)
	if !ok {
		return Task{}, ErrNotFound
	}
	if upd.RequirementID != nil {
		if _, ok := s.requirements.get(*upd.RequirementID); !ok {
			return Task{}, fmt.Errorf("%w: requirement %d", ErrInvalidReference, *upd.RequirementID)
		}
		t.RequirementID = cloneInt64(upd.RequirementID)
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.DueDate != nil {
		t.DueDate = cloneTime(upd.DueDate)
	}
	if upd.ClearDueDate {
		t.DueDate = nil
	}
	if upd.AssignedTo != nil {
		t.AssignedTo = cloneInt64(upd.AssignedTo)
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.TaskType != nil {
		t.TaskType = *upd.TaskType
	}
	s.tasks.put(id, t)
	s.audit(actor, ActionUpdate, ResourceTask, t.ID, t.PharmacyID, fmt.Sprintf("Task %q updated", t.Title))
	return t, nil
}

func (s *InMemory) GetTask(ctx context.Context, id int64) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks.get(id)
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemory) ListTasks(ctx context.Context, pharmacyID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks.list(func(t Task) bool { return t.PharmacyID == pharmacyID }), nil
}

func (s *InMemory) CreateDocument(ctx context.Context, in NewDocument, actor Actor) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ChapterID != nil {
		if _, ok := s.chapters.get(*in.ChapterID); !ok {
			return Document{}, fmt.Errorf("%w: chapter %d", ErrInvalidReference, *in.ChapterID)
		}
	}
	uploadedAt := in.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = s.now()
	}
	uploadedBy := in.UploadedBy
	if uploadedBy == nil {
		uploadedBy = actor.UserID
	}
	d := s.documents.insert(func(id int64) Document {
		return Document{
			ID:         id,
			Title:      in.Title,
			Filename:   in.Filename,
			Type:       in.Type,
			Version:    in.Version,
			UploadedBy: cloneInt64(uploadedBy),
			UploadedAt: uploadedAt,
			PharmacyID: in.PharmacyID,
			ChapterID:  cloneInt64(in.ChapterID),
		}
	})
	s.audit(actor, ActionCreate, ResourceDocument, d.ID, d.PharmacyID, fmt.Sprintf("Document %q uploaded", d.Title))
	return d, nil
}

func (s *InMemory) UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate, actor Actor) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents.get(id)
	if !ok {
		return Document{}, ErrNotFound
	}
	if upd.ChapterID != nil {
		if _, ok := s.chapters.get(*upd.ChapterID); !ok {
			return Document{}, fmt.Errorf("%w: chapter %d", ErrInvalidReference, *upd.ChapterID)
		}
		d.ChapterID = cloneInt64(upd.ChapterID)
	}
	if upd.Title != nil {
		d.Title = *upd.Title
	}
	if upd.Type != nil {
		d.Type = *upd.Type
	}
	if upd.Version != nil {
		d.Version = *upd.Version
	}
	s.documents.put(id, d)
	s.audit(actor, ActionUpdate, ResourceDocument, d.ID, d.PharmacyID, fmt.Sprintf("Document %q updated", d.Title))
	return d, nil
}

// DeleteDocument permanently removes a document. It reports false when the
// document does not exist, which is not an error.
func (s *InMemory) DeleteDocument(ctx context.Context, id int64, actor Actor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents.get(id)
	if !ok {
		return false, nil
	}
	s.documents.remove(id)
	s.audit(actor, ActionDelete, ResourceDocument, d.ID, d.PharmacyID, fmt.Sprintf("Document %q deleted", d.Title))
	return true, nil
}

func (s *InMemory) GetDocument(ctx context.Context, id int64) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents.get(id)
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (s *InMemory) ListDocuments(ctx context.Context, pharmacyID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documents.list(func(d Document) bool { return d.PharmacyID == pharmacyID }), nil
}

func (s *InMemory) CreateTraining(ctx context.Context, in NewTraining) (Training, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users.get(in.UserID); !ok {
		return Training{}, fmt.Errorf("%w: user %d", ErrInvalidReference, in.UserID)
	}
	return s.trainings.insert(func(id int64) Training {
		return Training{
			ID:          id,
			UserID:      in.UserID,
			Title:       in.Title,
			PharmacyID:  in.PharmacyID,
			VerifiedBy:  cloneInt64(in.VerifiedBy),
			CompletedAt: cloneTime(in.CompletedAt),
			ExpiresAt:   cloneTime(in.ExpiresAt),
		}
	}), nil
}

func (s *InMemory) UpdateTraining(ctx context.Context, id int64, upd TrainingUpdate) (Training, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trainings.get(id)
	if !ok {
		return Training{}, ErrNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.VerifiedBy != nil {
		t.VerifiedBy = cloneInt64(upd.VerifiedBy)
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = cloneTime(upd.CompletedAt)
	}
	if upd.ExpiresAt != nil {
		t.ExpiresAt = cloneTime(upd.ExpiresAt)
	}
	s.trainings.put(id, t)
	return t, nil
}

func (s *InMemory) GetTraining(ctx context.Context, id int64) (Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trainings.get(id)
	if !ok {
		return Training{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemory) ListTrainings(ctx context.Context, pharmacyID string) ([]Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trainings.list(func(t Training) bool { return t.PharmacyID == pharmacyID }), nil
}

func (s *InMemory) ListTrainingsByUser(ctx context.Context, userID int64) ([]Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trainings.list(func(t Training) bool { return t.UserID == userID }), nil
}

func (s *InMemory) CreateGapAnalysis(ctx context.Context, in NewGapAnalysis, actor Actor) (GapAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	g := s.gaps.insert(func(id int64) GapAnalysis {
		return GapAnalysis{
			ID:          id,
			Title:       in.Title,
			Description: in.Description,
			PharmacyID:  in.PharmacyID,
			CreatedBy:   cloneInt64(actor.UserID),
			CreatedAt:   now,
		}
	})
	s.audit(actor, ActionCreate, ResourceGapAnalysis, g.ID, g.PharmacyID, fmt.Sprintf("Gap analysis %q created", g.Title))
	return g, nil
}

func (s *InMemory) UpdateGapAnalysis(ctx context.Context, id int64, upd GapAnalysisUpdate, actor Actor) (GapAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gaps.get(id)
	if !ok {
		return GapAnalysis{}, ErrNotFound
	}
	if upd.Title != nil {
		g.Title = *upd.Title
	}
	if upd.Description != nil {
		g.Description = *upd.Description
	}
	s.gaps.put(id, g)
	s.audit(actor, ActionUpdate, ResourceGapAnalysis, g.ID, g.PharmacyID, fmt.Sprintf("Gap analysis %q updated", g.Title))
	return g, nil
}

func (s *InMemory) GetGapAnalysis(ctx context.Context, id int64) (GapAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gaps.get(id)
	if !ok {
		return GapAnalysis{}, ErrNotFound
	}
	return g, nil
}

func (s *InMemory) ListGapAnalyses(ctx context.Context, pharmacyID string) ([]GapAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gaps.list(func(g GapAnalysis) bool { return g.PharmacyID == pharmacyID }), nil
}

func (s *InMemory) CreateInspection(ctx context.Context, in NewInspection, actor Actor) (Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp := s.inspections.insert(func(id int64) Inspection {
		return Inspection{
			ID:             id,
			Title:          in.Title,
			PharmacyID:     in.PharmacyID,
			Status:         in.Status,
			Findings:       cloneString(in.Findings),
			InspectionDate: cloneTime(in.InspectionDate),
			CreatedBy:      cloneInt64(actor.UserID),
		}
	})
	s.audit(actor, ActionCreate, ResourceInspection, insp.ID, insp.PharmacyID, fmt.Sprintf("Inspection %q created", insp.Title))
	return insp, nil
}

func (s *InMemory) UpdateInspection(ctx context.Context, id int64, upd InspectionUpdate, actor Actor) (Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.inspections.get(id)
	if !ok {
		return Inspection{}, ErrNotFound
	}
	if upd.Title != nil {
		insp.Title = *upd.Title
	}
	if upd.Status != nil {
		insp.Status = *upd.Status
	}
	if upd.Findings != nil {
		insp.Findings = cloneString(upd.Findings)
	}
	if upd.InspectionDate != nil {
		insp.InspectionDate = cloneTime(upd.InspectionDate)
	}
	s.inspections.put(id, insp)
	s.audit(actor, ActionUpdate, ResourceInspection, insp.ID, insp.PharmacyID, fmt.Sprintf("Inspection %q updated", insp.Title))
	return insp, nil
}

func (s *InMemory) GetInspection(ctx context.Context, id int64) (Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	insp, ok := s.inspections.get(id)
	if !ok {
		return Inspection{}, ErrNotFound
	}
	return insp, nil
}

func (s *InMemory) ListInspections(ctx context.Context, pharmacyID string) ([]Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inspections.list(func(i Inspection) bool { return i.PharmacyID == pharmacyID }), nil
}

// expiresWithin reports whether t expires in [now, now+within].
func expiresWithin(t Training, now time.Time, within time.Duration) bool {
	if t.CompletedAt == nil || t.ExpiresAt == nil {
		return false
	}
	return !t.ExpiresAt.Before(now) && !t.ExpiresAt.After(now.Add(within))
}
