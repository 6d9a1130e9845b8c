package compliance

// Clones detach pointer fields so that records handed out by the engine
// never share memory with the stored rows.

func (c Compliance) clone() Compliance {
	c.UpdatedBy = cloneInt64(c.UpdatedBy)
	return c
}

func (t Task) clone() Task {
	t.DueDate = cloneTime(t.DueDate)
	t.AssignedTo = cloneInt64(t.AssignedTo)
	t.RequirementID = cloneInt64(t.RequirementID)
	return t
}

func (d Document) clone() Document {
	d.UploadedBy = cloneInt64(d.UploadedBy)
	d.ChapterID = cloneInt64(d.ChapterID)
	return d
}

func (t Training) clone() Training {
	t.VerifiedBy = cloneInt64(t.VerifiedBy)
	t.CompletedAt = cloneTime(t.CompletedAt)
	t.ExpiresAt = cloneTime(t.ExpiresAt)
	return t
}

func (a AuditEntry) clone() AuditEntry {
	a.UserID = cloneInt64(a.UserID)
	a.ResourceID = cloneInt64(a.ResourceID)
	return a
}

func (g GapAnalysis) clone() GapAnalysis {
	g.CreatedBy = cloneInt64(g.CreatedBy)
	return g
}

func (i Inspection) clone() Inspection {
	i.Findings = cloneString(i.Findings)
	i.InspectionDate = cloneTime(i.InspectionDate)
	i.CreatedBy = cloneInt64(i.CreatedBy)
	return i
}

func (r RiskAssessment) clone() RiskAssessment {
	r.DueDate = cloneTime(r.DueDate)
	return r
}
