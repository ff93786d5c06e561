package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
)

func TestSaveCardUpsertsByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := model.SpacedRepCard{
		ID:        "card-1",
		CardType:  model.CardDefinition,
		Front:     "What is a monad?",
		Back:      "A monoid in the category of endofunctors.",
		State:     model.CardNew,
		Stability: 0,
		DueDate:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveCard(ctx, c))

	c.State = model.CardReview
	c.Stability = 4.5
	c.Repetitions = 1
	require.NoError(t, s.SaveCard(ctx, c))

	got, err := s.GetCard(ctx, "card-1")
	require.NoError(t, err)
	require.Equal(t, model.CardReview, got.State)
	require.InDelta(t, 4.5, got.Stability, 0.001)
	require.Equal(t, 1, got.Repetitions)
}

func TestDueCardsExcludesNewAndFuture(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.SaveCard(ctx, model.SpacedRepCard{ID: "due", State: model.CardReview, DueDate: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveCard(ctx, model.SpacedRepCard{ID: "future", State: model.CardReview, DueDate: now.Add(48 * time.Hour)}))
	require.NoError(t, s.SaveCard(ctx, model.SpacedRepCard{ID: "new", State: model.CardNew, DueDate: now.Add(-time.Hour)}))

	due, err := s.DueCards(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
}

func TestCardsByConceptFiltersOnSourceConcept(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCard(ctx, model.SpacedRepCard{ID: "a", SourceConcept: "gradient descent", DueDate: time.Now()}))
	require.NoError(t, s.SaveCard(ctx, model.SpacedRepCard{ID: "b", SourceConcept: "backpropagation", DueDate: time.Now()}))

	cards, err := s.CardsByConcept(ctx, "gradient descent")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "a", cards[0].ID)
}

func TestSaveExerciseRoundTripsContentLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ex := model.Exercise{
		ID:           "ex-1",
		ExerciseType: model.ExerciseCodeImplement,
		Topic:        "recursion",
		Difficulty:   model.DifficultyIntermediate,
		Prompt:       "implement factorial",
		ContentUUIDs: []string{"uuid-a", "uuid-b"},
	}
	require.NoError(t, s.SaveExercise(ctx, ex))

	got, err := s.GetExercise(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, "recursion", got.Topic)
	require.ElementsMatch(t, []string{"uuid-a", "uuid-b"}, got.ContentUUIDs)

	ex.ContentUUIDs = []string{"uuid-c"}
	require.NoError(t, s.SaveExercise(ctx, ex))
	got, err = s.GetExercise(ctx, "ex-1")
	require.NoError(t, err)
	require.Equal(t, []string{"uuid-c"}, got.ContentUUIDs)
}

func TestMasterySnapshotUpsertAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMasterySnapshot(ctx, model.MasterySnapshot{SnapshotDate: day1, TopicPath: "ml/optimization", MasteryScore: 0.4, Trend: model.TrendStable}))
	require.NoError(t, s.SaveMasterySnapshot(ctx, model.MasterySnapshot{SnapshotDate: day2, TopicPath: "ml/optimization", MasteryScore: 0.6, Trend: model.TrendImproving}))

	history, err := s.MasteryHistory(ctx, "ml/optimization")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.InDelta(t, 0.4, history[0].MasteryScore, 0.001)
	require.InDelta(t, 0.6, history[1].MasteryScore, 0.001)
}
