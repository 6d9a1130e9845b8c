package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*InMemory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	return NewInMemory(WithClock(clock.Now)), clock
}

func ptr[T any](v T) *T { return &v }

func mustChapter(t *testing.T, s *InMemory, number string) Chapter {
	t.Helper()
	ch, err := s.CreateChapter(context.Background(), NewChapter{Number: number, Title: "USP <" + number + ">"})
	require.NoError(t, err)
	return ch
}

func mustRequirement(t *testing.T, s *InMemory, chapterID int64, crit Criticality) Requirement {
	t.Helper()
	req, err := s.CreateRequirement(context.Background(), NewRequirement{
		ChapterID:   chapterID,
		Section:     "1",
		Title:       "requirement",
		Criticality: crit,
	})
	require.NoError(t, err)
	return req
}

func mustCompliance(t *testing.T, s *InMemory, reqID int64, pharmacy string, st Status) Compliance {
	t.Helper()
	rec, err := s.CreateCompliance(context.Background(), NewCompliance{
		RequirementID: reqID,
		PharmacyID:    pharmacy,
		Status:        st,
	}, System)
	require.NoError(t, err)
	return rec
}

func TestIdentifiersArePerTypeAndMonotonic(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	ch1 := mustChapter(t, s, "795")
	ch2 := mustChapter(t, s, "797")
	req := mustRequirement(t, s, ch1.ID, CriticalityMajor)
	task, err := s.CreateTask(ctx, NewTask{Title: "Clean hood", PharmacyID: "Central"}, System)
	require.NoError(t, err)

	require.Equal(t, int64(1), ch1.ID)
	require.Equal(t, int64(2), ch2.ID)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, int64(1), task.ID)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := s.GetChapter(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTask(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdateCompliance(ctx, 42, ComplianceUpdate{}, System)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdateRiskAssessment(ctx, 42, RiskAssessmentUpdate{}, System)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetUserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidReferencesAreRejected(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := s.CreateRequirement(ctx, NewRequirement{ChapterID: 9, Title: "orphan"})
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.CreateCompliance(ctx, NewCompliance{RequirementID: 9, PharmacyID: "Central", Status: StatusMet}, System)
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.CreateTask(ctx, NewTask{Title: "t", PharmacyID: "Central", RequirementID: ptr(int64(9))}, System)
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.CreateDocument(ctx, NewDocument{Title: "d", PharmacyID: "Central", ChapterID: ptr(int64(9))}, System)
	require.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.CreateTraining(ctx, NewTraining{UserID: 9, Title: "Garbing", PharmacyID: "Central"})
	require.ErrorIs(t, err, ErrInvalidReference)

	// Rejected writes store nothing and record nothing.
	audits, err := s.ListAudits(ctx, "Central", 100)
	require.NoError(t, err)
	require.Empty(t, audits)
	tasks, err := s.ListTasks(ctx, "Central")
	require.NoError(t, err)
	require.Empty(t, tasks)

	// A rejected write does not consume an identifier.
	ch := mustChapter(t, s, "795")
	req := mustRequirement(t, s, ch.ID, CriticalityMinor)
	require.Equal(t, int64(1), req.ID)
}

func TestUpdateTaskRejectsDanglingRequirement(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, NewTask{Title: "t", PharmacyID: "Central"}, System)
	require.NoError(t, err)
	_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{RequirementID: ptr(int64(77))}, System)
	require.True(t, errors.Is(err, ErrInvalidReference))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Nil(t, got.RequirementID)
}

func TestPartialTaskUpdate(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	due := epoch.Add(48 * time.Hour)
	task, err := s.CreateTask(ctx, NewTask{
		Title:      "Recertify hood",
		DueDate:    &due,
		Status:     "Pending",
		PharmacyID: "Central",
		Priority:   "High",
	}, System)
	require.NoError(t, err)

	updated, err := s.UpdateTask(ctx, task.ID, TaskUpdate{Status: ptr("Completed")}, ActorFor(3))
	require.NoError(t, err)
	require.Equal(t, "Completed", updated.Status)
	require.Equal(t, "Recertify hood", updated.Title)
	require.Equal(t, "High", updated.Priority)
	require.True(t, updated.DueDate.Equal(due))
}

func TestReadsDoNotAliasCallerMemory(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	due := epoch.Add(time.Hour)
	task, err := s.CreateTask(ctx, NewTask{Title: "t", DueDate: &due, PharmacyID: "Central"}, System)
	require.NoError(t, err)

	due = due.Add(1000 * time.Hour)
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, got.DueDate.Equal(epoch.Add(time.Hour)))
}

func TestReturnedRecordsDoNotAliasStore(t *testing.T) {
	s, clock := newTestEngine(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, NewUser{Username: "tech", Role: "technician"})
	require.NoError(t, err)
	ch := mustChapter(t, s, "797")
	req := mustRequirement(t, s, ch.ID, CriticalityMajor)

	due := clock.Now().Add(time.Hour)
	task, err := s.CreateTask(ctx, NewTask{Title: "t", DueDate: &due, AssignedTo: ptr(u.ID), RequirementID: ptr(req.ID), PharmacyID: "Central"}, System)
	require.NoError(t, err)
	doc, err := s.CreateDocument(ctx, NewDocument{Title: "SOP", PharmacyID: "Central", ChapterID: ptr(ch.ID)}, ActorFor(u.ID))
	require.NoError(t, err)
	done := clock.Now().Add(-time.Hour)
	expires := clock.Now().Add(10 * 24 * time.Hour)
	training, err := s.CreateTraining(ctx, NewTraining{UserID: u.ID, Title: "Garbing", PharmacyID: "Central", CompletedAt: &done, ExpiresAt: &expires})
	require.NoError(t, err)
	when := clock.Now().Add(24 * time.Hour)
	insp, err := s.CreateInspection(ctx, NewInspection{Title: "Board", PharmacyID: "Central", Status: "Scheduled", Findings: ptr("none"), InspectionDate: &when}, System)
	require.NoError(t, err)
	risk, err := s.CreateRiskAssessment(ctx, NewRiskAssessment{Title: "Spill", PharmacyID: "Central", Likelihood: 2, Impact: 3, DetectionDifficulty: 1, MitigationStatus: "Open", DueDate: &when}, System)
	require.NoError(t, err)

	// Scribble over everything handed back by creates, gets and lists.
	past := clock.Now().Add(-1000 * time.Hour)
	*task.DueDate = past
	*task.AssignedTo = 99
	gotTask, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	*gotTask.DueDate = past
	*gotTask.RequirementID = 99
	tasks, err := s.ListTasks(ctx, "Central")
	require.NoError(t, err)
	*tasks[0].DueDate = past

	gotDoc, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	*gotDoc.UploadedBy = 99
	docs, err := s.ListDocuments(ctx, "Central")
	require.NoError(t, err)
	*docs[0].ChapterID = 99

	gotTraining, err := s.GetTraining(ctx, training.ID)
	require.NoError(t, err)
	*gotTraining.ExpiresAt = past
	trainings, err := s.ListTrainings(ctx, "Central")
	require.NoError(t, err)
	*trainings[0].CompletedAt = past.Add(-time.Hour)

	gotInsp, err := s.GetInspection(ctx, insp.ID)
	require.NoError(t, err)
	*gotInsp.Findings = "tampered"
	inspections, err := s.ListInspections(ctx, "Central")
	require.NoError(t, err)
	*inspections[0].InspectionDate = past

	gotRisk, err := s.GetRiskAssessment(ctx, risk.ID)
	require.NoError(t, err)
	*gotRisk.DueDate = past
	risks, err := s.ListRiskAssessments(ctx, "Central")
	require.NoError(t, err)
	*risks[0].DueDate = past

	upcoming, err := s.UpcomingTasks(ctx, "Central", 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.True(t, upcoming[0].DueDate.Equal(due))
	require.Equal(t, u.ID, *upcoming[0].AssignedTo)
	require.Equal(t, req.ID, *upcoming[0].RequirementID)

	storedDoc, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, *storedDoc.UploadedBy)
	require.Equal(t, ch.ID, *storedDoc.ChapterID)

	expiring, err := s.ExpiringTrainings(ctx, "Central", 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.True(t, expiring[0].CompletedAt.Equal(done))

	storedInsp, err := s.GetInspection(ctx, insp.ID)
	require.NoError(t, err)
	require.Equal(t, "none", *storedInsp.Findings)
	require.True(t, storedInsp.InspectionDate.Equal(when))

	storedRisk, err := s.GetRiskAssessment(ctx, risk.ID)
	require.NoError(t, err)
	require.True(t, storedRisk.DueDate.Equal(when))
}

func TestUpdateTaskClearsDueDate(t *testing.T) {
	s, clock := newTestEngine(t)
	ctx := context.Background()

	due := clock.Now().Add(time.Hour)
	task, err := s.CreateTask(ctx, NewTask{Title: "t", DueDate: &due, PharmacyID: "Central"}, System)
	require.NoError(t, err)

	other := due.Add(time.Hour)
	updated, err := s.UpdateTask(ctx, task.ID, TaskUpdate{DueDate: &other, ClearDueDate: true}, System)
	require.NoError(t, err)
	require.Nil(t, updated.DueDate)

	upcoming, err := s.UpcomingTasks(ctx, "Central", 5)
	require.NoError(t, err)
	require.Empty(t, upcoming)

	updated, err = s.UpdateTask(ctx, task.ID, TaskUpdate{Title: ptr("renamed")}, System)
	require.NoError(t, err)
	require.Nil(t, updated.DueDate, "omitting the due date leaves it cleared")
}

func TestUniqueUsernamesAndChapterNumbers(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	const n = 10

	var wg sync.WaitGroup
	userErrs := make(chan error, n)
	chapterErrs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, NewUser{Username: "alice", Role: "pharmacist"})
			userErrs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.CreateChapter(ctx, NewChapter{Number: "797", Title: "Sterile"})
			chapterErrs <- err
		}()
	}
	wg.Wait()
	close(userErrs)
	close(chapterErrs)

	count := func(errs <-chan error) (ok, conflict int) {
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		return ok, conflict
	}
	ok, conflict := count(userErrs)
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflict)
	ok, conflict = count(chapterErrs)
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflict)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	chapters, err := s.ListChapters(ctx)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
}

func TestDeleteDocumentIsPermanentAndIdempotent(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, NewDocument{Title: "SOP", Filename: "sop.pdf", PharmacyID: "Central"}, ActorFor(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), *doc.UploadedBy)

	deleted, err := s.DeleteDocument(ctx, doc.ID, ActorFor(1))
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = s.GetDocument(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err = s.DeleteDocument(ctx, doc.ID, ActorFor(1))
	require.NoError(t, err)
	require.False(t, deleted)

	next, err := s.CreateDocument(ctx, NewDocument{Title: "SOP v2", PharmacyID: "Central"}, System)
	require.NoError(t, err)
	require.Equal(t, int64(2), next.ID, "identifiers are never reused")
}

func TestConcurrentCreatesYieldDistinctIdentifiers(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	const n = 100

	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := s.CreateTask(ctx, NewTask{Title: "t", PharmacyID: "Central"}, System)
			if err != nil {
				t.Errorf("create task: %v", err)
				return
			}
			ids <- task.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	require.Len(t, seen, n)

	audits, err := s.ListAudits(ctx, "Central", 1000)
	require.NoError(t, err)
	require.Len(t, audits, n)
}

func TestUsersAndTrainings(t *testing.T) {
	s, clock := newTestEngine(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, NewUser{Username: "jdoe", FullName: "J. Doe", Role: "pharmacist"})
	require.NoError(t, err)
	byName, err := s.GetUserByUsername(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, u, byName)

	completed := clock.Now().Add(-300 * 24 * time.Hour)
	soon := clock.Now().Add(20 * 24 * time.Hour)
	later := clock.Now().Add(200 * 24 * time.Hour)
	lapsed := clock.Now().Add(-24 * time.Hour)

	for _, exp := range []time.Time{later, soon, lapsed} {
		_, err := s.CreateTraining(ctx, NewTraining{
			UserID:      u.ID,
			Title:       "Aseptic technique",
			PharmacyID:  "Central",
			CompletedAt: &completed,
			ExpiresAt:   &exp,
		})
		require.NoError(t, err)
	}
	// Not completed yet: never expiring.
	_, err = s.CreateTraining(ctx, NewTraining{UserID: u.ID, Title: "Hazardous drugs", PharmacyID: "Central", ExpiresAt: &soon})
	require.NoError(t, err)

	expiring, err := s.ExpiringTrainings(ctx, "Central", 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.True(t, expiring[0].ExpiresAt.Equal(soon))

	mine, err := s.ListTrainingsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 4)

	upd, err := s.UpdateTraining(ctx, mine[0].ID, TrainingUpdate{VerifiedBy: ptr(u.ID)})
	require.NoError(t, err)
	require.Equal(t, u.ID, *upd.VerifiedBy)
}

func TestPharmaciesListsDistinctPartitions(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, NewTask{Title: "t", PharmacyID: "North"}, System)
	require.NoError(t, err)
	_, err = s.CreateInspection(ctx, NewInspection{Title: "State board", PharmacyID: "Central", Status: "Scheduled"}, System)
	require.NoError(t, err)
	_, err = s.CreateGapAnalysis(ctx, NewGapAnalysis{Title: "Q1", PharmacyID: "Central"}, System)
	require.NoError(t, err)

	got, err := s.Pharmacies(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Central", "North"}, got)
}
