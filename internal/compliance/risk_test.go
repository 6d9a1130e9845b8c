package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRiskLevelFollowsLikelihoodAndImpact(t *testing.T) {
	s, clock := newTestEngine(t)
	ctx := context.Background()

	ra, err := s.CreateRiskAssessment(ctx, NewRiskAssessment{
		Title:      "Hood airflow drift",
		PharmacyID: "Central",
		Likelihood: 4,
		Impact:     5,
	}, System)
	require.NoError(t, err)
	require.Equal(t, 20, ra.RiskLevel)
	require.True(t, ra.CreatedAt.Equal(epoch))

	clock.Advance(time.Hour)
	ra, err = s.UpdateRiskAssessment(ctx, ra.ID, RiskAssessmentUpdate{Impact: ptr(2)}, System)
	require.NoError(t, err)
	require.Equal(t, 4, ra.Likelihood)
	require.Equal(t, 2, ra.Impact)
	require.Equal(t, 8, ra.RiskLevel)
	require.True(t, ra.UpdatedAt.Equal(epoch.Add(time.Hour)))
	require.True(t, ra.CreatedAt.Equal(epoch))

	ra, err = s.UpdateRiskAssessment(ctx, ra.ID, RiskAssessmentUpdate{Owner: ptr("QA lead")}, System)
	require.NoError(t, err)
	require.Equal(t, 8, ra.RiskLevel)
	require.Equal(t, "QA lead", ra.Owner)

	ra, err = s.UpdateRiskAssessment(ctx, ra.ID, RiskAssessmentUpdate{Likelihood: ptr(1)}, System)
	require.NoError(t, err)
	require.Equal(t, 2, ra.RiskLevel)

	stored, err := s.GetRiskAssessment(ctx, ra.ID)
	require.NoError(t, err)
	require.Equal(t, stored.Likelihood*stored.Impact, stored.RiskLevel)
}

func TestCriticalRiskAssessmentsRanking(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()

	scores := [][2]int{{1, 1}, {5, 5}, {2, 3}, {4, 4}, {3, 2}, {5, 4}, {1, 2}}
	for i, sc := range scores {
		_, err := s.CreateRiskAssessment(ctx, NewRiskAssessment{
			Title:      "risk",
			PharmacyID: "Central",
			Likelihood: sc[0],
			Impact:     sc[1],
		}, System)
		require.NoError(t, err, "risk %d", i)
	}
	_, err := s.CreateRiskAssessment(ctx, NewRiskAssessment{Title: "elsewhere", PharmacyID: "North", Likelihood: 5, Impact: 5}, System)
	require.NoError(t, err)

	top, err := s.CriticalRiskAssessments(ctx, "Central", 0)
	require.NoError(t, err)
	require.Len(t, top, DefaultCriticalRisks)
	levels := make([]int, len(top))
	for i, ra := range top {
		levels[i] = ra.RiskLevel
	}
	require.Equal(t, []int{25, 20, 16, 6, 6}, levels)
	// Equal levels keep creation order.
	require.Less(t, top[3].ID, top[4].ID)

	two, err := s.CriticalRiskAssessments(ctx, "Central", 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
}
