package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/config"
	"secondbrain/internal/model"
)

func testCfg() config.SessionDefaults {
	return config.Defaults().Session
}

func TestNewTimeBudgetExercisesOnlyTakesEverything(t *testing.T) {
	b := NewTimeBudget(30, model.ContentModeExercisesOnly, nil, false, testCfg())
	require.Equal(t, 30.0, b.ExerciseBudget)
	require.Equal(t, 0.0, b.CardBudget)
}

func TestNewTimeBudgetCardsOnlyTakesEverything(t *testing.T) {
	b := NewTimeBudget(30, model.ContentModeCardsOnly, nil, false, testCfg())
	require.Equal(t, 0.0, b.ExerciseBudget)
	require.Equal(t, 30.0, b.CardBudget)
}

func TestNewTimeBudgetBothUsesExplicitRatio(t *testing.T) {
	ratio := 0.6
	b := NewTimeBudget(20, model.ContentModeBoth, &ratio, false, testCfg())
	require.InDelta(t, 12.0, b.ExerciseBudget, 0.001)
	require.InDelta(t, 8.0, b.CardBudget, 0.001)
}

func TestNewTimeBudgetTopicSelectedUsesTopicRatio(t *testing.T) {
	cfg := testCfg()
	b := NewTimeBudget(20, model.ContentModeBoth, nil, true, cfg)
	require.InDelta(t, 20*cfg.TopicExerciseRatio, b.ExerciseBudget, 0.001)
}

func TestAddExerciseOverflowsIntoTotalRemaining(t *testing.T) {
	b := NewTimeBudget(10, model.ContentModeBoth, floatPtr(0.2), false, testCfg())
	// exercise budget is small (2 min); a 9min item should still fit via overflow.
	require.True(t, b.AddExercise(9))
	require.Equal(t, 1, b.ExerciseCount)
}

func TestCanFitExerciseRejectsInCardsOnlyMode(t *testing.T) {
	b := NewTimeBudget(10, model.ContentModeCardsOnly, nil, false, testCfg())
	fit, reason := b.CanFitExercise(1, true)
	require.False(t, fit)
	require.Contains(t, reason, "cards_only")
}

func TestMaxExercisesGuaranteesAtLeastOneWhenMinimumMet(t *testing.T) {
	cfg := testCfg()
	b := NewTimeBudget(cfg.MinTimeForExercise, model.ContentModeExercisesOnly, nil, false, cfg)
	require.GreaterOrEqual(t, b.MaxExercises(cfg.TimePerExerciseMinutes*100), 1)
}

func TestIsFullWhenBelowBothMinimums(t *testing.T) {
	cfg := testCfg()
	b := NewTimeBudget(0.1, model.ContentModeBoth, nil, false, cfg)
	require.True(t, b.IsFull())
}

func TestResolveContentModeFallsBackToDefault(t *testing.T) {
	cfg := testCfg()
	require.Equal(t, model.SessionContentMode(cfg.DefaultContentMode), ResolveContentMode("", cfg))
	require.Equal(t, model.ContentModeExercisesOnly, ResolveContentMode("exercises_only", cfg))
}

func TestInterleavePutsWorkedExamplesFirst(t *testing.T) {
	we := Item{Kind: ItemExercise, Exercise: &model.Exercise{ExerciseType: model.ExerciseWorkedExample}}
	other := Item{Kind: ItemExercise, Exercise: &model.Exercise{ExerciseType: model.ExerciseRecall}}
	card := Item{Kind: ItemCard, Card: &model.SpacedRepCard{ID: "c1"}}

	result := interleave([]Item{other, card, we})
	require.Len(t, result, 3)
	require.Equal(t, model.ExerciseWorkedExample, result[0].Exercise.ExerciseType)
}

func TestAlternateMergeHandlesUnequalLengths(t *testing.T) {
	a := []Item{{Kind: ItemCard}, {Kind: ItemCard}}
	b := []Item{{Kind: ItemExercise}}
	merged := alternateMerge(a, b)
	require.Len(t, merged, 3)
	require.Equal(t, ItemCard, merged[0].Kind)
	require.Equal(t, ItemExercise, merged[1].Kind)
	require.Equal(t, ItemCard, merged[2].Kind)
}

func TestEndSessionComputesDurationAndAverageScore(t *testing.T) {
	start := time.Now().UTC()
	end := start.Add(15 * time.Minute)
	duration, avg := EndSession(start, end, []model.ExerciseAttempt{{Score: 0.8}, {Score: 0.4}})
	require.InDelta(t, 15, duration, 0.01)
	require.InDelta(t, 0.6, avg, 0.001)
}

func floatPtr(v float64) *float64 { return &v }
