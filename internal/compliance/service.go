package compliance

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"uspguard.org/internal/ids"
)

// Service defines the compliance engine operations.
type Service interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	CreateChapter(ctx context.Context, in NewChapter) (Chapter, error)
	GetChapter(ctx context.Context, id int64) (Chapter, error)
	GetChapterByNumber(ctx context.Context, number string) (Chapter, error)
	ListChapters(ctx context.Context) ([]Chapter, error)

	CreateRequirement(ctx context.Context, in NewRequirement) (Requirement, error)
	GetRequirement(ctx context.Context, id int64) (Requirement, error)
	ListRequirements(ctx context.Context, chapterID int64) ([]Requirement, error)

	CreateCompliance(ctx context.Context, in NewCompliance, actor Actor) (Compliance, error)
	UpdateCompliance(ctx context.Context, id int64, upd ComplianceUpdate, actor Actor) (Compliance, error)
	GetCompliance(ctx context.Context, id int64) (Compliance, error)
	ListCompliance(ctx context.Context, pharmacyID string) ([]Compliance, error)
	ComplianceByChapter(ctx context.Context, chapterID int64, pharmacyID string) ([]ComplianceDetail, error)

	CreateTask(ctx context.Context, in NewTask, actor Actor) (Task, error)
	UpdateTask(ctx context.Context, id int64, upd TaskUpdate, actor Actor) (Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	ListTasks(ctx context.Context, pharmacyID string) ([]Task, error)
	UpcomingTasks(ctx context.Context, pharmacyID string, limit int) ([]Task, error)

	CreateDocument(ctx context.Context, in NewDocument, actor Actor) (Document, error)
	UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate, actor Actor) (Document, error)
	DeleteDocument(ctx context.Context, id int64, actor Actor) (bool, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, pharmacyID string) ([]Document, error)
	RecentDocuments(ctx context.Context, pharmacyID string, limit int) ([]Document, error)

	CreateTraining(ctx context.Context, in NewTraining) (Training, error)
	UpdateTraining(ctx context.Context, id int64, upd TrainingUpdate) (Training, error)
	GetTraining(ctx context.Context, id int64) (Training, error)
	ListTrainings(ctx context.Context, pharmacyID string) ([]Training, error)
	ListTrainingsByUser(ctx context.Context, userID int64) ([]Training, error)
	ExpiringTrainings(ctx context.Context, pharmacyID string, within time.Duration) ([]Training, error)

	RecordAudit(ctx context.Context, in NewAuditEntry) (AuditEntry, error)
	ListAudits(ctx context.Context, pharmacyID string, limit int) ([]AuditEntry, error)

	CreateGapAnalysis(ctx context.Context, in NewGapAnalysis, actor Actor) (GapAnalysis, error)
	UpdateGapAnalysis(ctx context.Context, id int64, upd GapAnalysisUpdate, actor Actor) (GapAnalysis, error)
	GetGapAnalysis(ctx context.Context, id int64) (GapAnalysis, error)
	ListGapAnalyses(ctx context.Context, pharmacyID string) ([]GapAnalysis, error)

	CreateInspection(ctx context.Context, in NewInspection, actor Actor) (Inspection, error)
	UpdateInspection(ctx context.Context, id int64, upd InspectionUpdate, actor Actor) (Inspection, error)
	GetInspection(ctx context.Context, id int64) (Inspection, error)
	ListInspections(ctx context.Context, pharmacyID string) ([]Inspection, error)

	CreateRiskAssessment(ctx context.Context, in NewRiskAssessment, actor Actor) (RiskAssessment, error)
	UpdateRiskAssessment(ctx context.Context, id int64, upd RiskAssessmentUpdate, actor Actor) (RiskAssessment, error)
	GetRiskAssessment(ctx context.Context, id int64) (RiskAssessment, error)
	ListRiskAssessments(ctx context.Context, pharmacyID string) ([]RiskAssessment, error)
	CriticalRiskAssessments(ctx context.Context, pharmacyID string, limit int) ([]RiskAssessment, error)

	ChapterCompliance(ctx context.Context, pharmacyID string) ([]ChapterSummary, error)
	OverallCompliance(ctx context.Context, pharmacyID string) (int, error)
	CriticalIssues(ctx context.Context, pharmacyID string) ([]ComplianceDetail, error)
	Dashboard(ctx context.Context, pharmacyID string) (DashboardView, error)
	Pharmacies(ctx context.Context) ([]string, error)
}

var _ Service = (*InMemory)(nil)

// table is an id-keyed collection with its own identifier counter.
// Callers hold the engine lock. Every row leaving the table goes through
// clone, so stored pointer fields are never shared with callers.
type table[T any] struct {
	seq   ids.Counter
	rows  map[int64]T
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{rows: make(map[int64]T), clone: clone}
}

// insert assigns the next id and stores the record built for it.
func (t *table[T]) insert(build func(id int64) T) T {
	id := t.seq.Next()
	row := build(id)
	t.rows[id] = row
	return t.clone(row)
}

func (t *table[T]) get(id int64) (T, bool) {
	row, ok := t.rows[id]
	if !ok {
		return row, false
	}
	return t.clone(row), true
}

func (t *table[T]) put(id int64, row T) { t.rows[id] = t.clone(row) }

func (t *table[T]) remove(id int64) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

// list returns matching records in id order.
func (t *table[T]) list(keep func(T) bool) []T {
	out := make([]T, 0)
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		row := t.rows[id]
		if keep == nil || keep(row) {
			out = append(out, t.clone(row))
		}
	}
	return out
}

// InMemory implements Service with in-process concurrency safety.
// State lives for the lifetime of the value; nothing is persisted.
type InMemory struct {
	mu  sync.RWMutex
	now func() time.Time

	users        *table[User]
	chapters     *table[Chapter]
	requirements *table[Requirement]
	compliance   *table[Compliance]
	tasks        *table[Task]
	documents    *table[Document]
	trainings    *table[Training]
	audits       *table[AuditEntry]
	gaps         *table[GapAnalysis]
	inspections  *table[Inspection]
	risks        *table[RiskAssessment]
}

// Option configures InMemory.
type Option func(*InMemory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewInMemory creates an empty engine.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		now:          func() time.Time { return time.Now().UTC() },
		users:        newTable[User](nil),
		chapters:     newTable[Chapter](nil),
		requirements: newTable[Requirement](nil),
		compliance:   newTable(Compliance.clone),
		tasks:        newTable(Task.clone),
		documents:    newTable(Document.clone),
		trainings:    newTable(Training.clone),
		audits:       newTable(AuditEntry.clone),
		gaps:         newTable(GapAnalysis.clone),
		inspections:  newTable(Inspection.clone),
		risks:        newTable(RiskAssessment.clone),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser stores a user. Usernames are unique.
func (s *InMemory) CreateUser(ctx context.Context, in NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if taken := s.users.list(func(u User) bool { return u.Username == in.Username }); len(taken) > 0 {
		return User{}, fmt.Errorf("%w: username %q", ErrConflict, in.Username)
	}
	return s.users.insert(func(id int64) User {
		return User{ID: id, Username: in.Username, FullName: in.FullName, Role: in.Role, Email: in.Email}
	}), nil
}

func (s *InMemory) GetUser(ctx context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users.get(id)
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) GetUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.users.list(func(u User) bool { return u.Username == username })
	if len(found) == 0 {
		return User{}, ErrNotFound
	}
	return found[0], nil
}

func (s *InMemory) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.list(nil), nil
}

// CreateChapter stores a chapter. Chapter numbers are unique.
func (s *InMemory) CreateChapter(ctx context.Context, in NewChapter) (Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if taken := s.chapters.list(func(c Chapter) bool { return c.Number == in.Number }); len(taken) > 0 {
		return Chapter{}, fmt.Errorf("%w: chapter %s", ErrConflict, in.Number)
	}
	return s.chapters.insert(func(id int64) Chapter {
		return Chapter{ID: id, Number: in.Number, Title: in.Title, Description: in.Description}
	}), nil
}

func (s *InMemory) GetChapter(ctx context.Context, id int64) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chapters.get(id)
	if !ok {
		return Chapter{}, ErrNotFound
	}
	return ch, nil
}

func (s *InMemory) GetChapterByNumber(ctx context.Context, number string) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.chapters.list(func(c Chapter) bool { return c.Number == number })
	if len(found) == 0 {
		return Chapter{}, ErrNotFound
	}
	return found[0], nil
}

func (s *InMemory) ListChapters(ctx context.Context) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chapters.list(nil), nil
}

func (s *InMemory) CreateRequirement(ctx context.Context, in NewRequirement) (Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chapters.get(in.ChapterID); !ok {
		return Requirement{}, fmt.Errorf("%w: chapter %d", ErrInvalidReference, in.ChapterID)
	}
	return s.requirements.insert(func(id int64) Requirement {
		return Requirement{
			ID:          id,
			ChapterID:   in.ChapterID,
			Section:     in.Section,
			Title:       in.Title,
			Description: in.Description,
			Criticality: in.Criticality,
		}
	}), nil
}

func (s *InMemory) GetRequirement(ctx context.Context, id int64) (Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requirements.get(id)
	if !ok {
		return Requirement{}, ErrNotFound
	}
	return r, nil
}

// ListRequirements returns the requirements of one chapter, or all when chapterID is 0.
func (s *InMemory) ListRequirements(ctx context.Context, chapterID int64) ([]Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if chapterID == 0 {
		return s.requirements.list(nil), nil
	}
	return s.requirementsOf(chapterID), nil
}

func (s *InMemory) requirementsOf(chapterID int64) []Requirement {
	return s.requirements.list(func(r Requirement) bool { return r.ChapterID == chapterID })
}

// Pharmacies returns every pharmacy identifier that owns at least one record.
func (s *InMemory) Pharmacies(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	add := func(id string) {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	for _, r := range s.compliance.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.tasks.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.documents.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.trainings.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.audits.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.gaps.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.inspections.rows {
		add(r.PharmacyID)
	}
	for _, r := range s.risks.rows {
		add(r.PharmacyID)
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// limitOr returns def when n is not positive.
func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
