// Package session implements C13: the practice-session composer.
// Grounded on
// original_source/backend/app/services/learning/session_budget.py's
// SessionTimeBudget dataclass (ported field-for-field) and
// session_service.py's interleaving (worked examples first, then
// zip_longest-style alternating merge of the shuffled remainder).
package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"secondbrain/internal/cards"
	"secondbrain/internal/config"
	"secondbrain/internal/logging"
	"secondbrain/internal/mastery"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
)

var log = logging.Get(logging.CategorySession)

// TimeBudget tracks total session minutes, the exercises/cards split,
// and cumulative consumption. It is a direct Go port of
// SessionTimeBudget.
type TimeBudget struct {
	TotalMinutes  float64
	ContentMode   model.SessionContentMode
	ExerciseBudget float64
	CardBudget     float64
	ExerciseConsumed float64
	CardConsumed     float64
	ExerciseCount    int
	CardCount        int

	cfg config.SessionDefaults
}

// NewTimeBudget computes the initial exercise/card split per spec.md
// §4.13's allocation rules.
func NewTimeBudget(totalMinutes float64, mode model.SessionContentMode, exerciseRatio *float64, topicSelected bool, cfg config.SessionDefaults) *TimeBudget {
	b := &TimeBudget{TotalMinutes: totalMinutes, ContentMode: mode, cfg: cfg}

	switch mode {
	case model.ContentModeExercisesOnly:
		b.ExerciseBudget = totalMinutes
		return b
	case model.ContentModeCardsOnly:
		b.CardBudget = totalMinutes
		return b
	}

	var exRatio float64
	switch {
	case exerciseRatio != nil:
		exRatio = *exerciseRatio
	case topicSelected:
		exRatio = cfg.TopicExerciseRatio
	default:
		exRatio = cfg.TimeRatioWeakSpots + cfg.TimeRatioNewContent
	}

	b.ExerciseBudget = totalMinutes * exRatio
	b.CardBudget = totalMinutes * (1 - exRatio)
	return b
}

func (b *TimeBudget) ExerciseRemaining() float64 {
	return max0(b.ExerciseBudget - b.ExerciseConsumed)
}

func (b *TimeBudget) CardRemaining() float64 {
	return max0(b.CardBudget - b.CardConsumed)
}

func (b *TimeBudget) TotalConsumed() float64 {
	return b.ExerciseConsumed + b.CardConsumed
}

func (b *TimeBudget) TotalRemaining() float64 {
	return max0(b.TotalMinutes - b.TotalConsumed())
}

// IsFull reports whether there is not enough time left for even one
// more minimal item of either type.
func (b *TimeBudget) IsFull() bool {
	return b.TotalRemaining() < min(b.cfg.MinTimeForExercise, b.cfg.MinTimeForCard)
}

// MaxExercises estimates how many more exercises fit, allowing
// overflow into the total remaining time and guaranteeing at least
// one when the minimum threshold is met.
func (b *TimeBudget) MaxExercises(timePerExercise float64) int {
	if b.ContentMode == model.ContentModeCardsOnly {
		return 0
	}
	if timePerExercise <= 0 {
		timePerExercise = b.cfg.TimePerExerciseMinutes
	}
	available := b.ExerciseRemaining()
	if b.cfg.MinTimeForExercise <= b.TotalRemaining() {
		available = max(available, b.TotalRemaining())
	}
	count := int(available / timePerExercise)
	if count == 0 && available >= b.cfg.MinTimeForExercise {
		count = 1
	}
	if count < 0 {
		count = 0
	}
	return count
}

// MaxCards mirrors MaxExercises for the card budget, except that it
// does not guarantee at least one card when the threshold is met.
func (b *TimeBudget) MaxCards(timePerCard float64) int {
	if b.ContentMode == model.ContentModeExercisesOnly {
		return 0
	}
	if timePerCard <= 0 {
		timePerCard = b.cfg.TimePerCardMinutes
	}
	available := b.CardRemaining()
	if b.cfg.MinTimeForCard <= b.TotalRemaining() {
		available = max(available, b.TotalRemaining())
	}
	count := int(available / timePerCard)
	if count < 0 {
		count = 0
	}
	return count
}

// CanFitExercise reports whether estimatedMinutes fits the exercise
// budget, optionally overflowing into the total remaining time.
func (b *TimeBudget) CanFitExercise(estimatedMinutes float64, allowOverflow bool) (bool, string) {
	if b.ContentMode == model.ContentModeCardsOnly {
		return false, "content mode is cards_only"
	}
	if estimatedMinutes <= b.ExerciseRemaining() {
		return true, "fits in exercise budget"
	}
	if allowOverflow && estimatedMinutes <= b.TotalRemaining() {
		return true, "fits in remaining session time (overflow)"
	}
	return false, fmt.Sprintf("insufficient time: need %.1fmin, have %.1fmin", estimatedMinutes, b.TotalRemaining())
}

// CanFitCard mirrors CanFitExercise for the card budget.
func (b *TimeBudget) CanFitCard(estimatedMinutes float64, allowOverflow bool) (bool, string) {
	if b.ContentMode == model.ContentModeExercisesOnly {
		return false, "content mode is exercises_only"
	}
	if estimatedMinutes <= b.CardRemaining() {
		return true, "fits in card budget"
	}
	if allowOverflow && estimatedMinutes <= b.TotalRemaining() {
		return true, "fits in remaining session time (overflow)"
	}
	return false, fmt.Sprintf("insufficient time: need %.1fmin, have %.1fmin", estimatedMinutes, b.TotalRemaining())
}

// AddExercise consumes estimatedMinutes from the exercise budget if it
// fits, reporting whether the item was added.
func (b *TimeBudget) AddExercise(estimatedMinutes float64) bool {
	if fit, _ := b.CanFitExercise(estimatedMinutes, true); !fit {
		return false
	}
	b.ExerciseConsumed += estimatedMinutes
	b.ExerciseCount++
	return true
}

// AddCard mirrors AddExercise for the card budget.
func (b *TimeBudget) AddCard(estimatedMinutes float64) bool {
	if fit, _ := b.CanFitCard(estimatedMinutes, true); !fit {
		return false
	}
	b.CardConsumed += estimatedMinutes
	b.CardCount++
	return true
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ResolveContentMode falls back to cfg's default when requested is "".
func ResolveContentMode(requested string, cfg config.SessionDefaults) model.SessionContentMode {
	if requested != "" {
		return model.SessionContentMode(requested)
	}
	return model.SessionContentMode(cfg.DefaultContentMode)
}

// ResolveExerciseSource falls back to cfg's default when requested is "".
func ResolveExerciseSource(requested string, cfg config.SessionDefaults) model.ContentSourcePreference {
	if requested != "" {
		return model.ContentSourcePreference(requested)
	}
	return model.ContentSourcePreference(cfg.DefaultExerciseSource)
}

// ResolveCardSource falls back to cfg's default when requested is "".
func ResolveCardSource(requested string, cfg config.SessionDefaults) model.ContentSourcePreference {
	if requested != "" {
		return model.ContentSourcePreference(requested)
	}
	return model.ContentSourcePreference(cfg.DefaultCardSource)
}

// Request configures one call to Compose.
type Request struct {
	DurationMinutes float64
	ContentMode     string
	ExerciseSource  string
	CardSource      string
	TopicFilter     string
	ExerciseRatio   *float64
}

// ItemKind distinguishes a session Item's payload.
type ItemKind string

const (
	ItemCard     ItemKind = "card"
	ItemExercise ItemKind = "exercise"
)

// Item is one unit of practice content placed into a session.
type Item struct {
	Kind     ItemKind
	Card     *model.SpacedRepCard
	Exercise *model.Exercise
}

// EstimatedMinutes returns the time budget charged for the item.
func (i Item) EstimatedMinutes(cfg config.SessionDefaults) float64 {
	if i.Kind == ItemCard {
		return cfg.TimePerCardMinutes
	}
	if i.Exercise != nil && i.Exercise.EstimatedTimeMinutes > 0 {
		return i.Exercise.EstimatedTimeMinutes
	}
	return cfg.TimePerExerciseMinutes
}

// Session is the composed, ordered set of practice items.
type Session struct {
	Items         []Item
	TopicsCovered []string
	Budget        *TimeBudget
}

// Composer builds Sessions from existing/generated cards and exercises.
type Composer struct {
	SQL       *sqlstore.Store
	Mastery   *mastery.Service
	Exercises *cards.ExerciseGenerator
	Cfg       config.SessionDefaults
}

// New builds a Composer.
func New(sql *sqlstore.Store, masterySvc *mastery.Service, exGen *cards.ExerciseGenerator, cfg config.SessionDefaults) *Composer {
	return &Composer{SQL: sql, Mastery: masterySvc, Exercises: exGen, Cfg: cfg}
}

// Compose builds a session per req, following the selection order of
// spec.md §4.13: exercises up to budget, then due cards, then
// best-effort fill, then interleave.
func (c *Composer) Compose(ctx context.Context, req Request) (Session, error) {
	mode := ResolveContentMode(req.ContentMode, c.Cfg)
	exSource := ResolveExerciseSource(req.ExerciseSource, c.Cfg)
	cardSource := ResolveCardSource(req.CardSource, c.Cfg)
	topicSelected := req.TopicFilter != ""

	masteryScore := c.topicMastery(ctx, req.TopicFilter)
	budget := NewTimeBudget(req.DurationMinutes, mode, req.ExerciseRatio, topicSelected, c.Cfg)

	var items []Item
	topicSet := make(map[string]bool)

	exercises, err := c.collectExercises(ctx, budget, exSource, req.TopicFilter, masteryScore)
	if err != nil {
		return Session{}, err
	}
	items = append(items, exercises...)

	cardItems, err := c.collectCards(ctx, budget, cardSource, req.TopicFilter)
	if err != nil {
		return Session{}, err
	}
	items = append(items, cardItems...)

	items = append(items, c.fillRemaining(ctx, budget, exSource, cardSource, req.TopicFilter, masteryScore)...)

	for _, item := range items {
		for _, tag := range itemTags(item) {
			topicSet[tag] = true
		}
	}
	var topics []string
	for t := range topicSet {
		topics = append(topics, t)
	}

	if len(items) == 0 && topicSelected {
		return Session{}, fmt.Errorf("session: no content available for topic %q", req.TopicFilter)
	}

	items = interleave(items)
	return Session{Items: items, TopicsCovered: topics, Budget: budget}, nil
}

func itemTags(item Item) []string {
	if item.Kind == ItemCard && item.Card != nil {
		return item.Card.Tags
	}
	if item.Kind == ItemExercise && item.Exercise != nil && item.Exercise.Topic != "" {
		return []string{item.Exercise.Topic}
	}
	return nil
}

func (c *Composer) topicMastery(ctx context.Context, topic string) float64 {
	if topic == "" || c.Mastery == nil {
		return 0.5
	}
	score, err := c.Mastery.TopicMastery(ctx, topic)
	if err != nil {
		log.Warn("topic mastery lookup for %s: %v", topic, err)
		return 0.5
	}
	return score
}

// collectExercises gathers exercises up to the exercise budget,
// respecting source preference and mastery-matched difficulty.
func (c *Composer) collectExercises(ctx context.Context, budget *TimeBudget, source model.ContentSourcePreference, topic string, masteryScore float64) ([]Item, error) {
	want := budget.MaxExercises(c.Cfg.TimePerExerciseMinutes)
	if want == 0 || topic == "" {
		return nil, nil
	}

	var pool []model.Exercise
	if source != model.SourceGenerateNew {
		existing, err := c.SQL.ExercisesByTopic(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("session: exercises by topic %s: %w", topic, err)
		}
		pool = existing
	}

	var items []Item
	for i := 0; i < len(pool) && len(items) < want; i++ {
		e := pool[i]
		est := e.EstimatedTimeMinutes
		if est <= 0 {
			est = c.Cfg.TimePerExerciseMinutes
		}
		if !budget.AddExercise(est) {
			break
		}
		ex := e
		items = append(items, Item{Kind: ItemExercise, Exercise: &ex})
	}

	if len(items) < want && source != model.SourceExistingOnly && c.Exercises != nil {
		for len(items) < want {
			e, err := c.Exercises.GenerateExercise(ctx, topic, masteryScore, nil)
			if err != nil {
				log.Warn("generate exercise for %s: %v", topic, err)
				break
			}
			est := e.EstimatedTimeMinutes
			if est <= 0 {
				est = c.Cfg.TimePerExerciseMinutes
			}
			if !budget.AddExercise(est) {
				break
			}
			items = append(items, Item{Kind: ItemExercise, Exercise: &e})
		}
	}
	return items, nil
}

// collectCards gathers due cards (from FSRS's forecast) up to the card
// budget, filtered by topic when set.
func (c *Composer) collectCards(ctx context.Context, budget *TimeBudget, source model.ContentSourcePreference, topic string) ([]Item, error) {
	want := budget.MaxCards(c.Cfg.TimePerCardMinutes)
	if want == 0 {
		return nil, nil
	}

	due, err := c.SQL.DueCards(ctx, time.Now().UTC(), 0)
	if err != nil {
		return nil, fmt.Errorf("session: due cards: %w", err)
	}

	var items []Item
	for i := range due {
		card := due[i]
		if topic != "" && !containsTag(card.Tags, topic) {
			continue
		}
		if len(items) >= want {
			break
		}
		if !budget.AddCard(c.Cfg.TimePerCardMinutes) {
			break
		}
		items = append(items, Item{Kind: ItemCard, Card: &card})
	}
	return items, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// fillRemaining makes a best-effort attempt to use any time left over
// after the primary exercise and card passes; failure to find more
// content is not an error (spec.md §4.13).
func (c *Composer) fillRemaining(ctx context.Context, budget *TimeBudget, exSource, cardSource model.ContentSourcePreference, topic string, masteryScore float64) []Item {
	if budget.IsFull() {
		return nil
	}

	var items []Item
	if topic != "" {
		more, err := c.collectExercises(ctx, budget, exSource, topic, masteryScore)
		if err != nil {
			log.Warn("fill remaining exercises: %v", err)
		} else {
			items = append(items, more...)
		}
	}
	more, err := c.collectCards(ctx, budget, cardSource, topic)
	if err != nil {
		log.Warn("fill remaining cards: %v", err)
	} else {
		items = append(items, more...)
	}
	return items
}

// interleave reorders items: worked examples first (novice
// scaffolding), then the shuffled remainder alternating cards and
// exercises via a zip-longest-style merge.
func interleave(items []Item) []Item {
	var workedExamples, remainingCards, otherExercises []Item
	for _, item := range items {
		switch {
		case item.Kind == ItemCard:
			remainingCards = append(remainingCards, item)
		case item.Kind == ItemExercise && item.Exercise != nil && item.Exercise.ExerciseType == model.ExerciseWorkedExample:
			workedExamples = append(workedExamples, item)
		default:
			otherExercises = append(otherExercises, item)
		}
	}

	result := append([]Item{}, workedExamples...)

	rand.Shuffle(len(remainingCards), func(i, j int) { remainingCards[i], remainingCards[j] = remainingCards[j], remainingCards[i] })
	rand.Shuffle(len(otherExercises), func(i, j int) { otherExercises[i], otherExercises[j] = otherExercises[j], otherExercises[i] })

	result = append(result, alternateMerge(remainingCards, otherExercises)...)
	return result
}

func alternateMerge(a, b []Item) []Item {
	out := make([]Item, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// EndSession returns the duration and average attempt score of a
// finished session (spec.md §4.13's end_session). It stamps no fields,
// persists nothing and does not trigger per-topic mastery recomputation.
func EndSession(startedAt time.Time, endedAt time.Time, attempts []model.ExerciseAttempt) (durationMinutes, averageScore float64) {
	durationMinutes = endedAt.Sub(startedAt).Minutes()
	if len(attempts) == 0 {
		return durationMinutes, 0
	}
	var sum float64
	for _, a := range attempts {
		sum += a.Score
	}
	return durationMinutes, sum / float64(len(attempts))
}
