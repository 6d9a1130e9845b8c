package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"uspguard.org/internal/compliance"
)

// --- compliance ---

func (a *API) listCompliance(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	records, err := a.engine.ListCompliance(r.Context(), pharmacy)
	listResource(w, r, records, err)
}

func (a *API) createCompliance(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, func(in *compliance.NewCompliance) error { return validateCompliance(*in) },
		func(ctx context.Context, in compliance.NewCompliance) (compliance.Compliance, error) {
			return a.engine.CreateCompliance(ctx, in, actor)
		})
}

func (a *API) getCompliance(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetCompliance)
}

func (a *API) updateCompliance(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, validateComplianceUpdate,
		func(ctx context.Context, id int64, upd compliance.ComplianceUpdate) (compliance.Compliance, error) {
			return a.engine.UpdateCompliance(ctx, id, upd, actor)
		})
}

// complianceSummary reports per-chapter standing plus the overall percentage.
func (a *API) complianceSummary(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	chapters, err := a.engine.ChapterCompliance(r.Context(), pharmacy)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	overall, err := a.engine.OverallCompliance(r.Context(), pharmacy)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pharmacy_id": pharmacy,
		"overall":     overall,
		"chapters":    chapters,
	})
}

func (a *API) criticalIssues(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	issues, err := a.engine.CriticalIssues(r.Context(), pharmacy)
	listResource(w, r, issues, err)
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	view, err := a.engine.Dashboard(r.Context(), pharmacy)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- tasks ---

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	if flag(r, "upcoming") {
		limit, ok := limitParam(w, r)
		if !ok {
			return
		}
		tasks, err := a.engine.UpcomingTasks(r.Context(), pharmacy, limit)
		listResource(w, r, tasks, err)
		return
	}
	tasks, err := a.engine.ListTasks(r.Context(), pharmacy)
	listResource(w, r, tasks, err)
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, validateTask, func(ctx context.Context, in compliance.NewTask) (compliance.Task, error) {
		return a.engine.CreateTask(ctx, in, actor)
	})
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetTask)
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, validateTaskUpdate, func(ctx context.Context, id int64, upd compliance.TaskUpdate) (compliance.Task, error) {
		return a.engine.UpdateTask(ctx, id, upd, actor)
	})
}

// --- documents ---

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	if flag(r, "recent") {
		limit, ok := limitParam(w, r)
		if !ok {
			return
		}
		docs, err := a.engine.RecentDocuments(r.Context(), pharmacy, limit)
		listResource(w, r, docs, err)
		return
	}
	docs, err := a.engine.ListDocuments(r.Context(), pharmacy)
	listResource(w, r, docs, err)
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, func(in *compliance.NewDocument) error {
		if in.UploadedBy == nil {
			in.UploadedBy = actor.UserID
		}
		return validateDocument(*in)
	}, func(ctx context.Context, in compliance.NewDocument) (compliance.Document, error) {
		return a.engine.CreateDocument(ctx, in, actor)
	})
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetDocument)
}

func (a *API) updateDocument(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, nil, func(ctx context.Context, id int64, upd compliance.DocumentUpdate) (compliance.Document, error) {
		return a.engine.UpdateDocument(ctx, id, upd, actor)
	})
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := a.engine.DeleteDocument(r.Context(), id, requestActor(r.Context()))
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- trainings ---

func (a *API) listTrainings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, r, http.StatusBadRequest, "user_id must be a positive integer")
			return
		}
		trainings, err := a.engine.ListTrainingsByUser(r.Context(), userID)
		listResource(w, r, trainings, err)
		return
	}
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	if raw := q.Get("expiring_days"); raw != "" {
		days, err := parsePositiveInt(raw, 30, 1, 3650)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "expiring_days must be between 1 and 3650")
			return
		}
		trainings, err := a.engine.ExpiringTrainings(r.Context(), pharmacy, time.Duration(days)*24*time.Hour)
		listResource(w, r, trainings, err)
		return
	}
	trainings, err := a.engine.ListTrainings(r.Context(), pharmacy)
	listResource(w, r, trainings, err)
}

func (a *API) createTraining(w http.ResponseWriter, r *http.Request) {
	createResource(w, r, func(in *compliance.NewTraining) error { return validateTraining(*in) }, a.engine.CreateTraining)
}

func (a *API) getTraining(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetTraining)
}

func (a *API) updateTraining(w http.ResponseWriter, r *http.Request) {
	updateResource(w, r, nil, a.engine.UpdateTraining)
}

// --- audits ---

func (a *API) listAudits(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := a.engine.ListAudits(r.Context(), pharmacy, limit)
	listResource(w, r, entries, err)
}

// recordAudit appends a manual entry. The user is always the caller.
func (a *API) recordAudit(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, func(in *compliance.NewAuditEntry) error {
		in.UserID = actor.UserID
		return validateAudit(*in)
	}, a.engine.RecordAudit)
}

// --- gap analyses ---

func (a *API) listGapAnalyses(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	gaps, err := a.engine.ListGapAnalyses(r.Context(), pharmacy)
	listResource(w, r, gaps, err)
}

func (a *API) createGapAnalysis(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, func(in *compliance.NewGapAnalysis) error { return validateGapAnalysis(*in) },
		func(ctx context.Context, in compliance.NewGapAnalysis) (compliance.GapAnalysis, error) {
			return a.engine.CreateGapAnalysis(ctx, in, actor)
		})
}

func (a *API) getGapAnalysis(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetGapAnalysis)
}

func (a *API) updateGapAnalysis(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, nil, func(ctx context.Context, id int64, upd compliance.GapAnalysisUpdate) (compliance.GapAnalysis, error) {
		return a.engine.UpdateGapAnalysis(ctx, id, upd, actor)
	})
}

// --- inspections ---

func (a *API) listInspections(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	inspections, err := a.engine.ListInspections(r.Context(), pharmacy)
	listResource(w, r, inspections, err)
}

func (a *API) createInspection(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, validateInspection, func(ctx context.Context, in compliance.NewInspection) (compliance.Inspection, error) {
		return a.engine.CreateInspection(ctx, in, actor)
	})
}

func (a *API) getInspection(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetInspection)
}

func (a *API) updateInspection(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, validateInspectionUpdate, func(ctx context.Context, id int64, upd compliance.InspectionUpdate) (compliance.Inspection, error) {
		return a.engine.UpdateInspection(ctx, id, upd, actor)
	})
}

// --- risk assessments ---

func (a *API) listRiskAssessments(w http.ResponseWriter, r *http.Request) {
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	if flag(r, "critical") {
		limit, ok := limitParam(w, r)
		if !ok {
			return
		}
		risks, err := a.engine.CriticalRiskAssessments(r.Context(), pharmacy, limit)
		listResource(w, r, risks, err)
		return
	}
	risks, err := a.engine.ListRiskAssessments(r.Context(), pharmacy)
	listResource(w, r, risks, err)
}

func (a *API) createRiskAssessment(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	createResource(w, r, validateRisk, func(ctx context.Context, in compliance.NewRiskAssessment) (compliance.RiskAssessment, error) {
		return a.engine.CreateRiskAssessment(ctx, in, actor)
	})
}

func (a *API) getRiskAssessment(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetRiskAssessment)
}

func (a *API) updateRiskAssessment(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r.Context())
	updateResource(w, r, validateRiskUpdate, func(ctx context.Context, id int64, upd compliance.RiskAssessmentUpdate) (compliance.RiskAssessment, error) {
		return a.engine.UpdateRiskAssessment(ctx, id, upd, actor)
	})
}
