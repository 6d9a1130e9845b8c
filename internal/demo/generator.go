package demo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"uspguard.org/internal/compliance"
)

const (
	day            = 24 * time.Hour
	tasksPer       = 5
	documentsPer   = 4
	risksPer       = 3
	taskSpreadDays = 30
)

type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
	now      func() time.Time
}

// NewGenerator returns a generator. The same non-zero seed always produces the
// same data; zero seeds from the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		scenario: CompoundingPharmacyScenario(),
		rnd:      rand.New(rand.NewSource(seed)),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock pins the reference time used for due dates and uploads.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Populate fills svc for every pharmacy. The catalog must already be loaded;
// every requirement gets one compliance record per pharmacy.
func (g *Generator) Populate(ctx context.Context, svc compliance.Service, pharmacies []string) (Counts, error) {
	var total Counts
	staff, created, err := g.ensureStaff(ctx, svc)
	if err != nil {
		return total, err
	}
	total.Users = created

	reqs, err := svc.ListRequirements(ctx, 0)
	if err != nil {
		return total, err
	}
	if len(reqs) == 0 {
		return total, errors.New("demo: no requirements loaded")
	}
	chapters, err := svc.ListChapters(ctx)
	if err != nil {
		return total, err
	}

	for _, p := range pharmacies {
		c, err := g.populatePharmacy(ctx, svc, p, staff, reqs, chapters)
		total.Add(c)
		if err != nil {
			return total, fmt.Errorf("demo: pharmacy %s: %w", p, err)
		}
	}
	return total, nil
}

func (g *Generator) ensureStaff(ctx context.Context, svc compliance.Service) ([]compliance.User, int, error) {
	var (
		users   []compliance.User
		created int
	)
	for _, s := range g.scenario.Staff {
		u, err := svc.CreateUser(ctx, compliance.NewUser{
			Username: s.Username,
			FullName: s.FullName,
			Role:     s.Role,
			Email:    s.Username + "@pharmacy.example",
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, compliance.ErrConflict):
			u, err = svc.GetUserByUsername(ctx, s.Username)
		}
		if err != nil {
			return nil, created, err
		}
		users = append(users, u)
	}
	return users, created, nil
}

func (g *Generator) populatePharmacy(ctx context.Context, svc compliance.Service, pharmacy string, staff []compliance.User, reqs []compliance.Requirement, chapters []compliance.Chapter) (Counts, error) {
	var c Counts
	now := g.now()
	actor := compliance.ActorFor(staff[g.rnd.Intn(len(staff))].ID)

	for _, req := range reqs {
		st := g.status()
		evidence := ""
		if st == compliance.StatusMet {
			evidence = "Verified during walkthrough"
		}
		if _, err := svc.CreateCompliance(ctx, compliance.NewCompliance{
			RequirementID: req.ID,
			PharmacyID:    pharmacy,
			Status:        st,
			Evidence:      evidence,
		}, actor); err != nil {
			return c, err
		}
		c.Compliance++
	}

	for i := 0; i < tasksPer; i++ {
		due := now.Add(time.Duration(g.rnd.Intn(2*taskSpreadDays+1)-taskSpreadDays) * day)
		req := reqs[g.rnd.Intn(len(reqs))]
		assignee := staff[g.rnd.Intn(len(staff))].ID
		status := "Pending"
		if due.Before(now) {
			status = g.pick("Completed", "Overdue")
		}
		if _, err := svc.CreateTask(ctx, compliance.NewTask{
			Title:         g.scenario.Tasks[g.rnd.Intn(len(g.scenario.Tasks))],
			Description:   "Addresses " + req.Section + " " + req.Title,
			DueDate:       &due,
			AssignedTo:    &assignee,
			Status:        status,
			RequirementID: &req.ID,
			PharmacyID:    pharmacy,
			Priority:      g.pick("High", "Medium", "Low"),
			TaskType:      g.pick("Maintenance", "Review", "Training"),
		}, actor); err != nil {
			return c, err
		}
		c.Tasks++
	}

	for i := 0; i < documentsPer; i++ {
		ch := chapters[g.rnd.Intn(len(chapters))]
		title := g.scenario.Documents[g.rnd.Intn(len(g.scenario.Documents))]
		if _, err := svc.CreateDocument(ctx, compliance.NewDocument{
			Title:      title,
			Filename:   fmt.Sprintf("%s-%d.pdf", ch.Number, i+1),
			Type:       g.pick("SOP", "Report", "Policy"),
			Version:    fmt.Sprintf("1.%d", g.rnd.Intn(5)),
			UploadedAt: now.Add(-time.Duration(g.rnd.Intn(60)+1) * day),
			PharmacyID: pharmacy,
			ChapterID:  &ch.ID,
		}, actor); err != nil {
			return c, err
		}
		c.Documents++
	}

	for _, u := range staff {
		completed := now.Add(-time.Duration(g.rnd.Intn(330)+30) * day)
		expires := completed.Add(365 * day)
		if _, err := svc.CreateTraining(ctx, compliance.NewTraining{
			UserID:      u.ID,
			Title:       g.scenario.Trainings[g.rnd.Intn(len(g.scenario.Trainings))],
			PharmacyID:  pharmacy,
			VerifiedBy:  &staff[0].ID,
			CompletedAt: &completed,
			ExpiresAt:   &expires,
		}); err != nil {
			return c, err
		}
		c.Trainings++
	}

	for i := 0; i < risksPer; i++ {
		tpl := g.scenario.Risks[g.rnd.Intn(len(g.scenario.Risks))]
		due := now.Add(time.Duration(g.rnd.Intn(90)+7) * day)
		if _, err := svc.CreateRiskAssessment(ctx, compliance.NewRiskAssessment{
			Title:               tpl.Title,
			Description:         tpl.Description,
			PharmacyID:          pharmacy,
			Likelihood:          g.rnd.Intn(5) + 1,
			Impact:              g.rnd.Intn(5) + 1,
			DetectionDifficulty: g.rnd.Intn(5) + 1,
			MitigationStatus:    g.pick("Open", "Mitigating", "Closed"),
			Owner:               tpl.Owner,
			DueDate:             &due,
		}, actor); err != nil {
			return c, err
		}
		c.Risks++
	}

	if _, err := svc.CreateGapAnalysis(ctx, compliance.NewGapAnalysis{
		Title:       "Annual USP gap analysis",
		Description: "Baseline assessment against USP 795, 797 and 800.",
		PharmacyID:  pharmacy,
	}, actor); err != nil {
		return c, err
	}
	c.GapAnalyses++

	inspected := now.Add(time.Duration(g.rnd.Intn(47)+14) * day)
	if _, err := svc.CreateInspection(ctx, compliance.NewInspection{
		Title:          "State board of pharmacy inspection",
		PharmacyID:     pharmacy,
		Status:         "Scheduled",
		InspectionDate: &inspected,
	}, actor); err != nil {
		return c, err
	}
	c.Inspections++
	return c, nil
}

func (g *Generator) status() compliance.Status {
	w := g.scenario.StatusWeights
	n := g.rnd.Intn(w[0] + w[1] + w[2])
	switch {
	case n < w[0]:
		return statuses[0]
	case n < w[0]+w[1]:
		return statuses[1]
	default:
		return statuses[2]
	}
}

func (g *Generator) pick(options ...string) string {
	return options[g.rnd.Intn(len(options))]
}
