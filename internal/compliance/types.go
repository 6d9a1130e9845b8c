package compliance

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidReference = errors.New("invalid reference")
	ErrConflict         = errors.New("already exists")
)

// Status is a pharmacy's standing against one requirement.
type Status string

const (
	StatusMet        Status = "Met"
	StatusNotMet     Status = "Not Met"
	StatusInProgress Status = "In Progress"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusMet, StatusNotMet, StatusInProgress:
		return true
	}
	return false
}

// Criticality ranks how severe a requirement gap is.
type Criticality string

const (
	CriticalityCritical Criticality = "Critical"
	CriticalityMajor    Criticality = "Major"
	CriticalityMinor    Criticality = "Minor"
)

func (c Criticality) Valid() bool {
	switch c {
	case CriticalityCritical, CriticalityMajor, CriticalityMinor:
		return true
	}
	return false
}

// Tier classifies a chapter percentage for display.
type Tier string

const (
	TierDanger  Tier = "Danger"
	TierWarning Tier = "Warning"
	TierSuccess Tier = "Success"
)

// Resource types recorded on audit entries.
const (
	ResourceCompliance     = "compliance"
	ResourceTask           = "task"
	ResourceDocument       = "document"
	ResourceGapAnalysis    = "gap_analysis"
	ResourceInspection     = "inspection"
	ResourceRiskAssessment = "risk_assessment"
)

// Audit actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Actor identifies who performs a mutation. UserID is nil for system changes.
type Actor struct {
	UserID *int64
}

// ActorFor returns an Actor attributed to the given user.
func ActorFor(userID int64) Actor {
	return Actor{UserID: &userID}
}

// System is the unattributed actor.
var System = Actor{}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

type NewUser struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// Chapter is a USP chapter such as 795, 797 or 800.
type Chapter struct {
	ID          int64  `json:"id"`
	Number      string `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type NewChapter struct {
	Number      string `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Requirement struct {
	ID          int64       `json:"id"`
	ChapterID   int64       `json:"chapter_id"`
	Section     string      `json:"section"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Criticality Criticality `json:"criticality"`
}

type NewRequirement struct {
	ChapterID   int64       `json:"chapter_id"`
	Section     string      `json:"section"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Criticality Criticality `json:"criticality"`
}

// Compliance is a pharmacy's status against one requirement at a point in time.
// Several records may exist for the same (requirement, pharmacy) pair.
type Compliance struct {
	ID            int64     `json:"id"`
	RequirementID int64     `json:"requirement_id"`
	PharmacyID    string    `json:"pharmacy_id"`
	Status        Status    `json:"status"`
	Evidence      string    `json:"evidence,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	UpdatedBy     *int64    `json:"updated_by,omitempty"`
}

type NewCompliance struct {
	RequirementID int64  `json:"requirement_id"`
	PharmacyID    string `json:"pharmacy_id"`
	Status        Status `json:"status"`
	Evidence      string `json:"evidence,omitempty"`
}

type ComplianceUpdate struct {
	Status   *Status `json:"status,omitempty"`
	Evidence *string `json:"evidence,omitempty"`
}

// ComplianceDetail is a compliance record joined with its requirement.
type ComplianceDetail struct {
	Compliance
	Requirement Requirement `json:"requirement"`
}

type Task struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	AssignedTo    *int64     `json:"assigned_to,omitempty"`
	Status        string     `json:"status"`
	RequirementID *int64     `json:"requirement_id,omitempty"`
	PharmacyID    string     `json:"pharmacy_id"`
	Priority      string     `json:"priority"`
	TaskType      string     `json:"task_type"`
}

type NewTask struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	AssignedTo    *int64     `json:"assigned_to,omitempty"`
	Status        string     `json:"status"`
	RequirementID *int64     `json:"requirement_id,omitempty"`
	PharmacyID    string     `json:"pharmacy_id"`
	Priority      string     `json:"priority"`
	TaskType      string     `json:"task_type"`
}

// TaskUpdate changes the non-nil fields. ClearDueDate removes the due date
// and wins over DueDate.
type TaskUpdate struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ClearDueDate  bool       `json:"clear_due_date,omitempty"`
	AssignedTo    *int64     `json:"assigned_to,omitempty"`
	Status        *string    `json:"status,omitempty"`
	RequirementID *int64     `json:"requirement_id,omitempty"`
	Priority      *string    `json:"priority,omitempty"`
	TaskType      *string    `json:"task_type,omitempty"`
}

type Document struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	Type       string    `json:"type"`
	Version    string    `json:"version"`
	UploadedBy *int64    `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	PharmacyID string    `json:"pharmacy_id"`
	ChapterID  *int64    `json:"chapter_id,omitempty"`
}

// NewDocument describes an uploaded document. A zero UploadedAt means now.
type NewDocument struct {
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	Type       string    `json:"type"`
	Version    string    `json:"version"`
	UploadedBy *int64    `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
	PharmacyID string    `json:"pharmacy_id"`
	ChapterID  *int64    `json:"chapter_id,omitempty"`
}

type DocumentUpdate struct {
	Title     *string `json:"title,omitempty"`
	Type      *string `json:"type,omitempty"`
	Version   *string `json:"version,omitempty"`
	ChapterID *int64  `json:"chapter_id,omitempty"`
}

type Training struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	PharmacyID  string     `json:"pharmacy_id"`
	VerifiedBy  *int64     `json:"verified_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type NewTraining struct {
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	PharmacyID  string     `json:"pharmacy_id"`
	VerifiedBy  *int64     `json:"verified_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type TrainingUpdate struct {
	Title       *string    `json:"title,omitempty"`
	VerifiedBy  *int64     `json:"verified_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// AuditEntry is immutable once recorded.
type AuditEntry struct {
	ID           int64     `json:"id"`
	UserID       *int64    `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
	PharmacyID   string    `json:"pharmacy_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *int64    `json:"resource_id,omitempty"`
}

type NewAuditEntry struct {
	UserID       *int64 `json:"user_id,omitempty"`
	Action       string `json:"action"`
	Details      string `json:"details"`
	PharmacyID   string `json:"pharmacy_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   *int64 `json:"resource_id,omitempty"`
}

type GapAnalysis struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PharmacyID  string    `json:"pharmacy_id"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type NewGapAnalysis struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PharmacyID  string `json:"pharmacy_id"`
}

type GapAnalysisUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Inspection struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	PharmacyID     string     `json:"pharmacy_id"`
	Status         string     `json:"status"`
	Findings       *string    `json:"findings,omitempty"`
	InspectionDate *time.Time `json:"inspection_date,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
}

type NewInspection struct {
	Title          string     `json:"title"`
	PharmacyID     string     `json:"pharmacy_id"`
	Status         string     `json:"status"`
	Findings       *string    `json:"findings,omitempty"`
	InspectionDate *time.Time `json:"inspection_date,omitempty"`
}

type InspectionUpdate struct {
	Title          *string    `json:"title,omitempty"`
	Status         *string    `json:"status,omitempty"`
	Findings       *string    `json:"findings,omitempty"`
	InspectionDate *time.Time `json:"inspection_date,omitempty"`
}

// RiskAssessment scores a hazard. RiskLevel is always Likelihood * Impact.
type RiskAssessment struct {
	ID                  int64      `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	PharmacyID          string     `json:"pharmacy_id"`
	Likelihood          int        `json:"likelihood"`
	Impact              int        `json:"impact"`
	DetectionDifficulty int        `json:"detection_difficulty"`
	RiskLevel           int        `json:"risk_level"`
	MitigationStatus    string     `json:"mitigation_status"`
	Owner               string     `json:"owner"`
	DueDate             *time.Time `json:"due_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type NewRiskAssessment struct {
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	PharmacyID          string     `json:"pharmacy_id"`
	Likelihood          int        `json:"likelihood"`
	Impact              int        `json:"impact"`
	DetectionDifficulty int        `json:"detection_difficulty"`
	MitigationStatus    string     `json:"mitigation_status"`
	Owner               string     `json:"owner"`
	DueDate             *time.Time `json:"due_date,omitempty"`
}

type RiskAssessmentUpdate struct {
	Title               *string    `json:"title,omitempty"`
	Description         *string    `json:"description,omitempty"`
	Likelihood          *int       `json:"likelihood,omitempty"`
	Impact              *int       `json:"impact,omitempty"`
	DetectionDifficulty *int       `json:"detection_difficulty,omitempty"`
	MitigationStatus    *string    `json:"mitigation_status,omitempty"`
	Owner               *string    `json:"owner,omitempty"`
	DueDate             *time.Time `json:"due_date,omitempty"`
}

// ChapterSummary is the compliance standing of one pharmacy in one chapter.
type ChapterSummary struct {
	Chapter    Chapter `json:"chapter"`
	Total      int     `json:"total"`
	Met        int     `json:"met"`
	Percentage int     `json:"percentage"`
	Status     Tier    `json:"status"`
}

// DashboardView is the read model rendered by the dashboard.
type DashboardView struct {
	PharmacyID         string             `json:"pharmacy_id"`
	OverallCompliance  int                `json:"overall_compliance"`
	Chapters           []ChapterSummary   `json:"chapters"`
	CriticalIssues     []ComplianceDetail `json:"critical_issues"`
	CriticalIssueCount int                `json:"critical_issue_count"`
	UpcomingTasks      []Task             `json:"upcoming_tasks"`
	RecentDocuments    []Document         `json:"recent_documents"`
	RecentActivity     []AuditEntry       `json:"recent_activity"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// Dashboard section sizes.
const (
	dashboardCriticalIssues = 3
	dashboardTasks          = 3
	dashboardDocuments      = 3
	dashboardActivity       = 4
)

// Defaults applied when a limit <= 0 is passed.
const (
	DefaultUpcomingTasks   = 10
	DefaultRecentDocuments = 3
	DefaultAuditEntries    = 10
	DefaultCriticalRisks   = 5
)
