package fsrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
)

func TestFirstReviewInitializesNewCard(t *testing.T) {
	s := New()
	card := NewCard()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	out, log, err := s.Review(card, model.RatingGood, now)
	require.NoError(t, err)
	require.Equal(t, now, *out.LastReviewed)
	require.Contains(t, []model.CardState{model.CardLearning, model.CardReview}, out.State)
	require.Greater(t, out.Stability, 0.0)
	require.GreaterOrEqual(t, out.Difficulty, 1.0)
	require.LessOrEqual(t, out.Difficulty, 10.0)
	require.Equal(t, 1, out.Repetitions)
	require.Equal(t, 0, out.Lapses)
	require.GreaterOrEqual(t, out.ScheduledDays, 1)
	require.Equal(t, model.RatingGood, log.Rating)
}

func TestGoodReviewStrictlyIncreasesStability(t *testing.T) {
	s := New()
	card := NewCard()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first, _, err := s.Review(card, model.RatingGood, t0)
	require.NoError(t, err)

	t1 := t0.AddDate(0, 0, first.ScheduledDays)
	second, _, err := s.Review(first, model.RatingGood, t1)
	require.NoError(t, err)

	require.Greater(t, second.Stability, first.Stability)
	require.Greater(t, second.ScheduledDays, 0)
}

func TestAgainOnReviewCardTriggersLapse(t *testing.T) {
	s := New()
	card := NewCard()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reviewed, _, err := s.Review(card, model.RatingGood, t0)
	require.NoError(t, err)
	require.Equal(t, model.CardReview, reviewed.State)

	t1 := t0.AddDate(0, 0, reviewed.ScheduledDays)
	lapsed, _, err := s.Review(reviewed, model.RatingAgain, t1)
	require.NoError(t, err)

	require.Equal(t, reviewed.Lapses+1, lapsed.Lapses)
	require.Equal(t, model.CardRelearning, lapsed.State)
	require.Less(t, lapsed.Stability, reviewed.Stability)
}

func TestScheduledDaysNeverExceedsMaxInterval(t *testing.T) {
	s := New()
	s.MaxInterval = 30
	card := NewCard()
	card.State = model.CardReview
	card.Stability = 100000
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	card.LastReviewed = &last

	out, _, err := s.Review(card, model.RatingEasy, last.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.LessOrEqual(t, out.ScheduledDays, 30)
}

func TestRetrievabilityIsOneForNewCard(t *testing.T) {
	require.Equal(t, 1.0, Retrievability(0, 48*time.Hour))
}

func TestRetrievabilityDecaysMonotonicallyWithElapsedTime(t *testing.T) {
	r1 := Retrievability(10, 24*time.Hour)
	r2 := Retrievability(10, 48*time.Hour)
	r3 := Retrievability(10, 72*time.Hour)
	require.Greater(t, r1, r2)
	require.Greater(t, r2, r3)
}

func TestForecastExcludesNewCardsAndBucketsCorrectly(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	cards := []model.SpacedRepCard{
		{State: model.CardNew, DueDate: now},
		{State: model.CardReview, DueDate: now.AddDate(0, 0, -2)},
		{State: model.CardReview, DueDate: now},
		{State: model.CardReview, DueDate: now.AddDate(0, 0, 1)},
		{State: model.CardReview, DueDate: now.AddDate(0, 0, 4)},
		{State: model.CardReview, DueDate: now.AddDate(0, 0, 30)},
	}
	buckets := Forecast(cards, now)
	require.Len(t, buckets[BucketOverdue], 1)
	require.Len(t, buckets[BucketToday], 1)
	require.Len(t, buckets[BucketTomorrow], 1)
	require.Len(t, buckets[BucketThisWeek], 1)
	require.Len(t, buckets[BucketLater], 1)
}
