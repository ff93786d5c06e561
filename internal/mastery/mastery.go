// Package mastery implements C14: per-topic mastery scoring, trend
// classification, weak-spot detection, and the daily snapshot/forecast
// pipeline. Grounded on
// original_source/backend/app/services/learning/mastery_service.py's
// fetch-all-then-explode-by-tag aggregation shape, carried over to Go
// with the FSRS state this module depends on (internal/fsrs).
package mastery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"secondbrain/internal/config"
	"secondbrain/internal/fsrs"
	"secondbrain/internal/logging"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
)

var log = logging.Get(logging.CategoryMastery)

// Service computes and persists mastery aggregates over every card in
// the store.
type Service struct {
	SQL     *sqlstore.Store
	Cfg     config.MasteryDefaults
}

// New builds a Service over cfg's tunables.
func New(sql *sqlstore.Store, cfg config.MasteryDefaults) *Service {
	return &Service{SQL: sql, Cfg: cfg}
}

// topicStats accumulates the raw counts a topic's mastery score is
// derived from, built once per Aggregate call and reused across every
// consumer (overview, weak spots, snapshot) in the same pass.
type topicStats struct {
	topic          string
	totalAttempts  int
	correctAttempts int
	stabilities    []float64 // stability of every review-state card
	lastPracticed  *time.Time
	cards          []model.SpacedRepCard
}

// Aggregate fetches every card once and explodes it by tag into
// per-topic stats, the batched approach spec.md §4.14 requires in
// place of one query per topic.
func (s *Service) Aggregate(ctx context.Context) (map[string]*topicStats, error) {
	cards, err := s.SQL.AllCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("mastery: load cards: %w", err)
	}

	byTopic := make(map[string]*topicStats)
	for _, c := range cards {
		for _, tag := range c.Tags {
			st, ok := byTopic[tag]
			if !ok {
				st = &topicStats{topic: tag}
				byTopic[tag] = st
			}
			st.cards = append(st.cards, c)
			st.totalAttempts += c.TotalReviews
			st.correctAttempts += c.CorrectReviews
			if c.State == model.CardReview || c.State == model.CardRelearning {
				st.stabilities = append(st.stabilities, c.Stability)
			}
			if c.LastReviewed != nil && (st.lastPracticed == nil || c.LastReviewed.After(*st.lastPracticed)) {
				st.lastPracticed = c.LastReviewed
			}
		}
	}
	return byTopic, nil
}

// TopicMastery returns one topic's current mastery score, 0 when the
// topic has no cards at all. Used by the session composer to pick
// mastery-matched exercise difficulty (spec.md §4.13).
func (s *Service) TopicMastery(ctx context.Context, topic string) (float64, error) {
	byTopic, err := s.Aggregate(ctx)
	if err != nil {
		return 0, err
	}
	st, ok := byTopic[topic]
	if !ok {
		return 0, nil
	}
	score, _ := s.score(st)
	return score, nil
}

// score computes a topic's mastery per spec.md §4.14: 60% success
// rate, 40% average stability normalized by a horizon and clipped to
// 1.0. Mastery is 0 until min-attempts is crossed.
func (s *Service) score(st *topicStats) (mastery float64, successRate float64) {
	if st.totalAttempts < s.Cfg.MinAttempts {
		return 0, 0
	}
	successRate = float64(st.correctAttempts) / float64(st.totalAttempts)

	var avgStability float64
	if len(st.stabilities) > 0 {
		var sum float64
		for _, v := range st.stabilities {
			sum += v
		}
		avgStability = sum / float64(len(st.stabilities))
	}
	normalizedStability := avgStability / s.Cfg.MasteryStabilityNormalizationDays
	if normalizedStability > 1.0 {
		normalizedStability = 1.0
	}

	mastery = 0.6*successRate + 0.4*normalizedStability
	return mastery, successRate
}

// trend compares current to previous, classifying by Cfg.TrendThreshold.
func (s *Service) trend(current, previous float64, hasPrevious bool) model.Trend {
	if !hasPrevious {
		return model.TrendStable
	}
	delta := current - previous
	switch {
	case delta > s.Cfg.TrendThreshold:
		return model.TrendImproving
	case delta < -s.Cfg.TrendThreshold:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// retentionEstimate averages fsrs.Retrievability across a topic's
// review-state cards as of now.
func retentionEstimate(st *topicStats, now time.Time) float64 {
	if len(st.cards) == 0 {
		return 1.0
	}
	var sum float64
	var n int
	for _, c := range st.cards {
		if c.LastReviewed == nil {
			continue
		}
		sum += fsrs.Retrievability(c.Stability, now.Sub(*c.LastReviewed))
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// Snapshot computes and persists today's MasterySnapshot for every
// topic with at least one card, comparing against the most recent
// persisted snapshot's score for trend (spec.md §4.14 "once per day").
func (s *Service) Snapshot(ctx context.Context, now time.Time) error {
	byTopic, err := s.Aggregate(ctx)
	if err != nil {
		return err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for topic, st := range byTopic {
		mastery, successRate := s.score(st)

		history, err := s.SQL.MasteryHistory(ctx, topic)
		if err != nil {
			log.Warn("load history for %s: %v", topic, err)
		}
		var previous float64
		hasPrevious := len(history) > 0
		if hasPrevious {
			previous = history[len(history)-1].MasteryScore
		}
		trend := s.trend(mastery, previous, hasPrevious)

		var daysSinceReview *int
		if st.lastPracticed != nil {
			d := int(now.Sub(*st.lastPracticed).Hours() / 24)
			daysSinceReview = &d
		}

		snap := model.MasterySnapshot{
			SnapshotDate:      today,
			TopicPath:         topic,
			PracticeCount:     st.totalAttempts,
			SuccessRate:       &successRate,
			MasteryScore:      mastery,
			Trend:             trend,
			RetentionEstimate: retentionEstimate(st, now),
			LastPracticed:     st.lastPracticed,
			DaysSinceReview:   daysSinceReview,
		}
		if err := s.SQL.SaveMasterySnapshot(ctx, snap); err != nil {
			log.Error("save snapshot for %s: %v", topic, err)
		}
	}
	return nil
}

// WeakSpot is one topic flagged for extra practice.
type WeakSpot struct {
	Topic                  string
	MasteryScore           float64
	Trend                  model.Trend
	Recommendation         string
	SuggestedExerciseTypes []model.ExerciseType
}

// WeakSpots returns topics below Cfg.WeakSpotThreshold with enough
// attempts to be meaningful, declining-trend first then ascending
// mastery (spec.md §4.14).
func (s *Service) WeakSpots(ctx context.Context, now time.Time) ([]WeakSpot, error) {
	byTopic, err := s.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	var spots []WeakSpot
	for topic, st := range byTopic {
		if st.totalAttempts < s.Cfg.MinAttempts {
			continue
		}
		mastery, _ := s.score(st)
		if mastery >= s.Cfg.WeakSpotThreshold {
			continue
		}

		history, _ := s.SQL.MasteryHistory(ctx, topic)
		var previous float64
		hasPrevious := len(history) > 0
		if hasPrevious {
			previous = history[len(history)-1].MasteryScore
		}
		trend := s.trend(mastery, previous, hasPrevious)

		spots = append(spots, WeakSpot{
			Topic: topic, MasteryScore: mastery, Trend: trend,
			Recommendation:         recommendationFor(trend, st.lastPracticed, now),
			SuggestedExerciseTypes: exerciseTypesFor(mastery),
		})
	}

	sort.Slice(spots, func(i, j int) bool {
		iDeclining := spots[i].Trend == model.TrendDeclining
		jDeclining := spots[j].Trend == model.TrendDeclining
		if iDeclining != jDeclining {
			return iDeclining
		}
		return spots[i].MasteryScore < spots[j].MasteryScore
	})
	return spots, nil
}

func recommendationFor(trend model.Trend, lastPracticed *time.Time, now time.Time) string {
	switch {
	case trend == model.TrendDeclining:
		return "Recent performance is slipping here — revisit the core concepts before your next review."
	case lastPracticed == nil:
		return "No review history yet for this topic — start with a few foundational cards."
	case now.Sub(*lastPracticed) > 14*24*time.Hour:
		return "It's been a while since you practiced this — a quick refresh will help retention."
	default:
		return "Keep practicing; mastery is building but not there yet."
	}
}

func exerciseTypesFor(mastery float64) []model.ExerciseType {
	switch {
	case mastery < 0.3:
		return []model.ExerciseType{model.ExerciseWorkedExample, model.ExerciseRecall}
	case mastery < 0.7:
		return []model.ExerciseType{model.ExerciseRecall, model.ExerciseCodeComplete}
	default:
		return []model.ExerciseType{model.ExerciseCodeDebug, model.ExerciseCodeRefactor}
	}
}

// Overview is the top-level dashboard aggregate.
type Overview struct {
	TotalCards     int
	CardsMastered  int
	CardsLearning  int
	CardsNew       int
	AverageMastery float64
	TopTopics      []TopicMastery
	StreakDays     int
}

// TopicMastery is one topic's score in an Overview's top-N listing.
type TopicMastery struct {
	Topic string
	Score float64
	State model.Trend
}

// Overview computes the dashboard aggregate: card-state counts,
// top-N topics by mastery, average mastery, and the practice streak
// (spec.md §4.14).
func (s *Service) Overview(ctx context.Context, now time.Time, topN int) (Overview, error) {
	cards, err := s.SQL.AllCards(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("mastery: load cards: %w", err)
	}

	var ov Overview
	ov.TotalCards = len(cards)
	for _, c := range cards {
		switch {
		case c.State == model.CardNew:
			ov.CardsNew++
		case c.Stability >= s.Cfg.MasteredStabilityThreshold:
			ov.CardsMastered++
		case c.State == model.CardLearning || c.State == model.CardRelearning ||
			(c.State == model.CardReview && c.Stability < s.Cfg.MasteredStabilityThreshold):
			ov.CardsLearning++
		}
	}

	byTopic, err := s.Aggregate(ctx)
	if err != nil {
		return Overview{}, err
	}
	var topics []TopicMastery
	var total float64
	for topic, st := range byTopic {
		mastery, _ := s.score(st)
		total += mastery
		history, _ := s.SQL.MasteryHistory(ctx, topic)
		var previous float64
		hasPrevious := len(history) > 0
		if hasPrevious {
			previous = history[len(history)-1].MasteryScore
		}
		topics = append(topics, TopicMastery{Topic: topic, Score: mastery, State: s.trend(mastery, previous, hasPrevious)})
	}
	if len(byTopic) > 0 {
		ov.AverageMastery = total / float64(len(byTopic))
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Score > topics[j].Score })
	if topN > 0 && len(topics) > topN {
		topics = topics[:topN]
	}
	ov.TopTopics = topics

	ov.StreakDays = s.streak(cards, now)
	return ov, nil
}

// streak counts consecutive UTC days with at least one review,
// starting today and looking back up to Cfg.StreakWindowDays.
func (s *Service) streak(cards []model.SpacedRepCard, now time.Time) int {
	reviewedDays := make(map[string]bool)
	for _, c := range cards {
		if c.LastReviewed == nil {
			continue
		}
		reviewedDays[c.LastReviewed.UTC().Format("2006-01-02")] = true
	}

	streak := 0
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < s.Cfg.StreakWindowDays; i++ {
		key := day.Format("2006-01-02")
		if !reviewedDays[key] {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// LearningCurvePoint is one point of a topic's mastery time series.
type LearningCurvePoint struct {
	Date  time.Time
	Score float64
}

// LearningCurve returns topic's snapshot history within
// Cfg.LearningCurveWindow days, plus a linear-extrapolation forecast
// over the same horizon when at least two points exist.
func (s *Service) LearningCurve(ctx context.Context, topic string, now time.Time) (points []LearningCurvePoint, forecast []LearningCurvePoint, trend model.Trend, err error) {
	history, err := s.SQL.MasteryHistory(ctx, topic)
	if err != nil {
		return nil, nil, model.TrendStable, fmt.Errorf("mastery: learning curve %s: %w", topic, err)
	}

	cutoff := now.AddDate(0, 0, -s.Cfg.LearningCurveWindow)
	for _, snap := range history {
		if snap.SnapshotDate.Before(cutoff) {
			continue
		}
		points = append(points, LearningCurvePoint{Date: snap.SnapshotDate, Score: snap.MasteryScore})
	}

	if len(points) < 2 {
		return points, nil, model.TrendStable, nil
	}

	first, last := points[0], points[len(points)-1]
	trend = s.trend(last.Score, first.Score, true)

	days := last.Date.Sub(first.Date).Hours() / 24
	if days <= 0 {
		return points, nil, trend, nil
	}
	slope := (last.Score - first.Score) / days

	horizon := s.Cfg.LearningCurveWindow
	for i := 1; i <= horizon; i++ {
		projected := last.Score + slope*float64(i)
		if projected < 0 {
			projected = 0
		}
		if projected > 1 {
			projected = 1
		}
		forecast = append(forecast, LearningCurvePoint{Date: last.Date.AddDate(0, 0, i), Score: projected})
	}
	return points, forecast, trend, nil
}
