package httpapi

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"uspguard.org/internal/auth"
	"uspguard.org/internal/compliance"
)

var (
	taskStatuses       = []string{"Pending", "In Progress", "Completed", "Overdue"}
	taskPriorities     = []string{"High", "Medium", "Low"}
	mitigationStatuses = []string{"Open", "Mitigating", "Closed"}
	inspectionStatuses = []string{"Scheduled", "In Progress", "Completed"}
)

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func oneOf(field, v string, allowed []string) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%s must be one of %s", field, strings.Join(allowed, ", "))
	}
	return nil
}

func score(field string, v int) error {
	if v < 1 || v > 5 {
		return fmt.Errorf("%s must be between 1 and 5", field)
	}
	return nil
}

func validateUser(in *compliance.NewUser) error {
	in.Username = strings.TrimSpace(in.Username)
	if err := required("username", in.Username); err != nil {
		return err
	}
	if err := required("full_name", in.FullName); err != nil {
		return err
	}
	if !auth.KnownRole(in.Role) {
		return errors.New("role must be one of admin, pharmacist, technician, viewer")
	}
	return nil
}

func validateChapter(in compliance.NewChapter) error {
	if err := required("number", in.Number); err != nil {
		return err
	}
	return required("title", in.Title)
}

func validateRequirement(in compliance.NewRequirement) error {
	if in.ChapterID <= 0 {
		return errors.New("chapter_id is required")
	}
	if err := required("section", in.Section); err != nil {
		return err
	}
	if err := required("title", in.Title); err != nil {
		return err
	}
	if !in.Criticality.Valid() {
		return errors.New("criticality must be one of Critical, Major, Minor")
	}
	return nil
}

func validateStatus(st compliance.Status) error {
	if !st.Valid() {
		return errors.New("status must be one of Met, Not Met, In Progress")
	}
	return nil
}

func validateCompliance(in compliance.NewCompliance) error {
	if in.RequirementID <= 0 {
		return errors.New("requirement_id is required")
	}
	if err := required("pharmacy_id", in.PharmacyID); err != nil {
		return err
	}
	return validateStatus(in.Status)
}

func validateComplianceUpdate(upd compliance.ComplianceUpdate) error {
	if upd.Status != nil {
		return validateStatus(*upd.Status)
	}
	return nil
}

func validateTask(in *compliance.NewTask) error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	if err := required("pharmacy_id", in.PharmacyID); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = "Pending"
	}
	if in.Priority == "" {
		in.Priority = "Medium"
	}
	if err := oneOf("status", in.Status, taskStatuses); err != nil {
		return err
	}
	return oneOf("priority", in.Priority, taskPriorities)
}

func validateTaskUpdate(upd compliance.TaskUpdate) error {
	if upd.ClearDueDate && upd.DueDate != nil {
		return errors.New("due_date and clear_due_date are mutually exclusive")
	}
	if upd.Title != nil {
		if err := required("title", *upd.Title); err != nil {
			return err
		}
	}
	if upd.Status != nil {
		if err := oneOf("status", *upd.Status, taskStatuses); err != nil {
			return err
		}
	}
	if upd.Priority != nil {
		return oneOf("priority", *upd.Priority, taskPriorities)
	}
	return nil
}

func validateDocument(in compliance.NewDocument) error {
	for _, f := range []struct{ name, v string }{
		{"title", in.Title},
		{"filename", in.Filename},
		{"type", in.Type},
		{"pharmacy_id", in.PharmacyID},
	} {
		if err := required(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func validateTraining(in compliance.NewTraining) error {
	if in.UserID <= 0 {
		return errors.New("user_id is required")
	}
	if err := required("title", in.Title); err != nil {
		return err
	}
	if err := required("pharmacy_id", in.PharmacyID); err != nil {
		return err
	}
	if in.CompletedAt != nil && in.ExpiresAt != nil && in.ExpiresAt.Before(*in.CompletedAt) {
		return errors.New("expires_at must not precede completed_at")
	}
	return nil
}

func validateAudit(in compliance.NewAuditEntry) error {
	for _, f := range []struct{ name, v string }{
		{"action", in.Action},
		{"pharmacy_id", in.PharmacyID},
		{"resource_type", in.ResourceType},
	} {
		if err := required(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func validateGapAnalysis(in compliance.NewGapAnalysis) error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	return required("pharmacy_id", in.PharmacyID)
}

func validateInspection(in *compliance.NewInspection) error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	if err := required("pharmacy_id", in.PharmacyID); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = "Scheduled"
	}
	return oneOf("status", in.Status, inspectionStatuses)
}

func validateInspectionUpdate(upd compliance.InspectionUpdate) error {
	if upd.Status != nil {
		return oneOf("status", *upd.Status, inspectionStatuses)
	}
	return nil
}

func validateRisk(in *compliance.NewRiskAssessment) error {
	if err := required("title", in.Title); err != nil {
		return err
	}
	if err := required("pharmacy_id", in.PharmacyID); err != nil {
		return err
	}
	if err := score("likelihood", in.Likelihood); err != nil {
		return err
	}
	if err := score("impact", in.Impact); err != nil {
		return err
	}
	if in.DetectionDifficulty != 0 {
		if err := score("detection_difficulty", in.DetectionDifficulty); err != nil {
			return err
		}
	}
	if in.MitigationStatus == "" {
		in.MitigationStatus = "Open"
	}
	return oneOf("mitigation_status", in.MitigationStatus, mitigationStatuses)
}

func validateRiskUpdate(upd compliance.RiskAssessmentUpdate) error {
	if upd.Likelihood != nil {
		if err := score("likelihood", *upd.Likelihood); err != nil {
			return err
		}
	}
	if upd.Impact != nil {
		if err := score("impact", *upd.Impact); err != nil {
			return err
		}
	}
	if upd.DetectionDifficulty != nil {
		if err := score("detection_difficulty", *upd.DetectionDifficulty); err != nil {
			return err
		}
	}
	if upd.MitigationStatus != nil {
		return oneOf("mitigation_status", *upd.MitigationStatus, mitigationStatuses)
	}
	return nil
}
