// Package fsrs implements the card scheduling algorithm of spec.md
// §4.11: a stability/difficulty memory model driven by review ratings,
// targeting a configurable retention probability with a capped maximum
// interval. Grounded on
// original_source/backend/app/services/learning/spaced_rep_service.py's
// state machine (new cards carry no stability/difficulty until their
// first review initializes them; Again on a review-state card lapses
// it) — no third-party FSRS implementation appeared anywhere in the
// example pack, so the update rules are implemented directly here.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"secondbrain/internal/model"
)

// Scheduler holds the tunable parameters of the algorithm.
type Scheduler struct {
	TargetRetention float64 // default 0.9
	MaxInterval     int     // days, default 365
	LapseStabilityFactor float64 // stability multiplier applied on a lapse, default 0.5
}

// New returns a Scheduler with spec.md's documented defaults.
func New() *Scheduler {
	return &Scheduler{
		TargetRetention:       0.9,
		MaxInterval:           365,
		LapseStabilityFactor:  0.5,
	}
}

var initialStability = map[model.Rating]float64{
	model.RatingAgain: 0.4,
	model.RatingHard:  0.8,
	model.RatingGood:  2.4,
	model.RatingEasy:  5.8,
}

var initialDifficulty = map[model.Rating]float64{
	model.RatingAgain: 9.0,
	model.RatingHard:  7.0,
	model.RatingGood:  5.0,
	model.RatingEasy:  3.0,
}

var difficultyDelta = map[model.Rating]float64{
	model.RatingAgain: 1.0,
	model.RatingHard:  0.3,
	model.RatingGood:  0.0,
	model.RatingEasy:  -0.5,
}

var stabilityBoost = map[model.Rating]float64{
	model.RatingHard: 0.5,
	model.RatingGood: 1.0,
	model.RatingEasy: 1.3,
}

const stabilityGrowth = 0.9

// Retrievability returns the probability of successful recall at
// elapsed time since the last review, for a card with the given
// stability. A new card (stability <= 0) always returns 1.0, per
// spec.md invariant 8.
func Retrievability(stability float64, elapsed time.Duration) float64 {
	if stability <= 0 {
		return 1.0
	}
	days := elapsed.Hours() / 24
	if days <= 0 {
		return 1.0
	}
	return math.Pow(0.9, days/stability)
}

func scheduledDays(stability, targetRetention float64, maxInterval int) int {
	if stability <= 0 {
		return 1
	}
	days := stability * (math.Log(targetRetention) / math.Log(0.9))
	n := int(math.Round(days))
	if n < 1 {
		n = 1
	}
	if n > maxInterval {
		n = maxInterval
	}
	return n
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Review advances card's state per rating at time now, returning the
// updated card and a ReviewLog. now must not be before card.LastReviewed
// (except on the card's first review, where LastReviewed is nil).
func (s *Scheduler) Review(card model.SpacedRepCard, rating model.Rating, now time.Time) (model.SpacedRepCard, model.ReviewLog, error) {
	if _, ok := initialStability[rating]; !ok {
		return card, model.ReviewLog{}, fmt.Errorf("fsrs: unknown rating %q", rating)
	}

	before := card.State
	log := model.ReviewLog{
		CardID:      card.ID,
		Rating:      rating,
		ReviewedAt:  now,
		BeforeState: before,
	}

	out := card
	out.TotalReviews++
	if rating != model.RatingAgain {
		out.CorrectReviews++
	}

	isFirstReview := card.LastReviewed == nil

	switch {
	case isFirstReview:
		out.Stability = initialStability[rating]
		out.Difficulty = initialDifficulty[rating]
		if rating == model.RatingAgain {
			out.State = model.CardLearning
		} else {
			out.State = model.CardReview
		}
		out.Repetitions = 1

	case rating == model.RatingAgain && card.State == model.CardReview:
		// Lapse: spec.md invariant 7.
		out.Lapses = card.Lapses + 1
		out.State = model.CardRelearning
		out.Stability = card.Stability * s.LapseStabilityFactor
		out.Difficulty = clip(card.Difficulty+difficultyDelta[rating], 1, 10)
		out.Repetitions = card.Repetitions

	case rating == model.RatingAgain:
		// Again on a learning/relearning card: reset progress, no lapse.
		out.State = model.CardLearning
		out.Stability = initialStability[model.RatingAgain]
		out.Difficulty = clip(card.Difficulty+difficultyDelta[rating], 1, 10)
		out.Repetitions = card.Repetitions

	default:
		elapsed := now.Sub(*card.LastReviewed)
		r := Retrievability(card.Stability, elapsed)
		growth := 1 + stabilityGrowth*stabilityBoost[rating]*(1-r)
		out.Stability = card.Stability * growth
		out.Difficulty = clip(card.Difficulty+difficultyDelta[rating], 1, 10)
		out.State = model.CardReview
		out.Repetitions = card.Repetitions + 1
	}

	out.ScheduledDays = scheduledDays(out.Stability, s.TargetRetention, s.MaxInterval)
	out.DueDate = now.AddDate(0, 0, out.ScheduledDays)
	out.LastReviewed = &now

	log.AfterState = out.State
	log.Interval = out.ScheduledDays
	return out, log, nil
}

// NewCard returns the zero-value card state for a freshly generated
// card: new state, no stability/difficulty yet, due immediately.
func NewCard() model.SpacedRepCard {
	return model.SpacedRepCard{
		State:     model.CardNew,
		Stability: 0,
		Difficulty: 0,
		DueDate:   time.Now().UTC(),
	}
}

// ForecastBucket is one of the mutually exclusive due-date buckets.
type ForecastBucket string

const (
	BucketOverdue  ForecastBucket = "overdue"
	BucketToday    ForecastBucket = "today"
	BucketTomorrow ForecastBucket = "tomorrow"
	BucketThisWeek ForecastBucket = "this_week"
	BucketLater    ForecastBucket = "later"
)

// Forecast buckets due cards by distance from now. New cards are
// excluded (spec.md §4.11).
func Forecast(cards []model.SpacedRepCard, now time.Time) map[ForecastBucket][]model.SpacedRepCard {
	buckets := map[ForecastBucket][]model.SpacedRepCard{
		BucketOverdue: {}, BucketToday: {}, BucketTomorrow: {}, BucketThisWeek: {}, BucketLater: {},
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrowStart := dayStart.AddDate(0, 0, 1)
	dayAfterTomorrow := dayStart.AddDate(0, 0, 2)
	weekEnd := dayStart.AddDate(0, 0, 7)

	for _, c := range cards {
		if c.State == model.CardNew {
			continue
		}
		switch {
		case c.DueDate.Before(dayStart):
			buckets[BucketOverdue] = append(buckets[BucketOverdue], c)
		case c.DueDate.Before(tomorrowStart):
			buckets[BucketToday] = append(buckets[BucketToday], c)
		case c.DueDate.Before(dayAfterTomorrow):
			buckets[BucketTomorrow] = append(buckets[BucketTomorrow], c)
		case c.DueDate.Before(weekEnd):
			buckets[BucketThisWeek] = append(buckets[BucketThisWeek], c)
		default:
			buckets[BucketLater] = append(buckets[BucketLater], c)
		}
	}
	return buckets
}
