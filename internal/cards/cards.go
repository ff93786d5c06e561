// Package cards implements C12: deriving spaced-repetition cards from
// extracted concepts, and generating on-demand topic cards/exercises
// via an LLM JSON-mode call, grounded on spec.md §4.12.
package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"secondbrain/internal/costledger"
	"secondbrain/internal/fsrs"
	"secondbrain/internal/llm"
	"secondbrain/internal/model"
)

const propertiesThreshold = 3

// Generator derives cards from the concepts extracted for one
// ProcessingRun.
type Generator struct{}

// NewGenerator returns a ready-to-use Generator; it holds no state.
func NewGenerator() *Generator { return &Generator{} }

// GenerateFromConcepts emits structural cards directly derivable from
// extraction output: one definition card per concept with a non-empty
// definition, plus a properties card when the concept carries enough
// related concepts to quiz on. Richer card types (why-it-matters,
// example, misconception, comparison) need prose the extractor doesn't
// capture per-concept; those are generated on demand by
// ExerciseGenerator.GenerateTopicCards instead. Cards inherit
// contentTags and start in the new state, due now.
func (g *Generator) GenerateFromConcepts(contentUUID string, concepts []model.Concept, contentTags []string) []model.SpacedRepCard {
	var out []model.SpacedRepCard
	for _, c := range concepts {
		if strings.TrimSpace(c.Definition) == "" {
			continue
		}
		out = append(out, g.cardsForConcept(contentUUID, c, contentTags)...)
	}
	return out
}

func (g *Generator) cardsForConcept(contentUUID string, c model.Concept, tags []string) []model.SpacedRepCard {
	base := func(cardType model.CardType, front, back string) model.SpacedRepCard {
		card := fsrs.NewCard()
		card.CardType = cardType
		card.Front = front
		card.Back = back
		card.Tags = append([]string{}, tags...)
		card.SourceContentUUID = contentUUID
		card.SourceConcept = c.CanonicalName
		return card
	}

	out := []model.SpacedRepCard{
		base(model.CardDefinition, fmt.Sprintf("What is %s?", c.Name), c.Definition),
	}

	if len(c.RelatedConcepts) >= propertiesThreshold {
		names := make([]string, 0, len(c.RelatedConcepts))
		for _, r := range c.RelatedConcepts {
			names = append(names, fmt.Sprintf("%s (%s)", r.TargetName, r.RelationshipType))
		}
		out = append(out, base(model.CardProperties,
			fmt.Sprintf("What are %s's key relationships?", c.Name),
			strings.Join(names, "; ")))
	}

	return out
}

// ExerciseGenerator asks an LLM for N cards/exercises for an
// arbitrary topic, used by the on-demand topic-study flow.
type ExerciseGenerator struct {
	LLM    llm.Client
	Ledger costledger.Ledger
}

type topicCardsResponse struct {
	Cards []struct {
		CardType string `json:"card_type"`
		Front    string `json:"front"`
		Back     string `json:"back"`
	} `json:"cards"`
}

// GenerateTopicCards asks the LLM for count cards of varied type about
// topic, using contextSnippets (titles/summaries matching the topic)
// as grounding, per spec.md §4.12's "on-demand cards for a topic".
func (g *ExerciseGenerator) GenerateTopicCards(ctx context.Context, topic string, contextSnippets []string, count int) ([]model.SpacedRepCard, error) {
	prompt := fmt.Sprintf(`Generate %d spaced-repetition flashcards about "%s" using this context:

%s

Vary card_type across: definition, application, example, misconception, comparison, properties.
Respond as JSON: {"cards": [{"card_type": "...", "front": "...", "back": "..."}]}`,
		count, topic, strings.Join(contextSnippets, "\n---\n"))

	resp, usage, err := g.LLM.Complete(ctx, "topic_cards", []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{MaxTokens: 1500, JSONMode: true})

	if g.Ledger != nil {
		_ = g.Ledger.Record(ctx, model.CostRecord{
			Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Pipeline: "cards", Operation: "topic_card_generation",
			LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("cards: generate topic cards: %w", err)
	}

	var parsed topicCardsResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return nil, fmt.Errorf("cards: parse topic card response: %w", err)
	}

	cards := make([]model.SpacedRepCard, 0, len(parsed.Cards))
	for _, raw := range parsed.Cards {
		card := fsrs.NewCard()
		card.CardType = model.CardType(raw.CardType)
		card.Front = raw.Front
		card.Back = raw.Back
		card.Tags = []string{"topic/" + topic}
		cards = append(cards, card)
	}
	return cards, nil
}

// difficultyFromKeyword maps a free-text difficulty hint to a scheduler
// difficulty parameter (1..10), defaulting to the midpoint when the
// keyword isn't recognized.
func difficultyFromKeyword(keyword string) float64 {
	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case "easy", "foundational":
		return 3
	case "medium", "intermediate":
		return 5
	case "hard", "advanced":
		return 8
	default:
		if v, err := strconv.ParseFloat(keyword, 64); err == nil {
			if v < 1 {
				return 1
			}
			if v > 10 {
				return 10
			}
			return v
		}
		return 5
	}
}

// exerciseTypeForMastery picks the exercise shape appropriate to a
// learner's current mastery level, per spec.md §4.12: novice gets
// worked examples, intermediate gets recall/application, advanced gets
// debug/refactor/synthesis.
func exerciseTypeForMastery(masteryScore float64) model.ExerciseType {
	switch {
	case masteryScore < 0.3:
		return model.ExerciseWorkedExample
	case masteryScore < 0.7:
		return model.ExerciseRecall
	default:
		return model.ExerciseCodeDebug
	}
}

func difficultyTierForMastery(masteryScore float64) model.Difficulty {
	switch {
	case masteryScore < 0.3:
		return model.DifficultyFoundational
	case masteryScore < 0.7:
		return model.DifficultyIntermediate
	default:
		return model.DifficultyAdvanced
	}
}

type generatedExercise struct {
	Prompt            string   `json:"prompt"`
	Hints             []string `json:"hints"`
	ExpectedKeyPoints []string `json:"expected_key_points"`
	WorkedExample     string   `json:"worked_example"`
	FollowUpProblem   string   `json:"follow_up_problem"`
	Language          string   `json:"language"`
	StarterCode       string   `json:"starter_code"`
	SolutionCode      string   `json:"solution_code"`
	TestCases         []string `json:"test_cases"`
	BuggyCode         string   `json:"buggy_code"`
}

// GenerateExercise asks the LLM for one exercise on topic, matched to
// masteryScore (spec.md §4.12's mastery-appropriate exercise-type
// selection). The LLM response is validated by JSON-unmarshaling into
// a fixed schema before being attached to the returned Exercise.
func (g *ExerciseGenerator) GenerateExercise(ctx context.Context, topic string, masteryScore float64, contentUUIDs []string) (model.Exercise, error) {
	exerciseType := exerciseTypeForMastery(masteryScore)
	tier := difficultyTierForMastery(masteryScore)

	prompt := fmt.Sprintf(`Generate one %s exercise about "%s" for a learner at %s level.

Respond as JSON:
{"prompt": "...", "hints": ["..."], "expected_key_points": ["..."],
 "worked_example": "...", "follow_up_problem": "...",
 "language": "...", "starter_code": "...", "solution_code": "...",
 "test_cases": ["..."], "buggy_code": "..."}

Leave code fields empty strings/arrays if the exercise type is not code-related.`,
		exerciseType, topic, tier)

	resp, usage, err := g.LLM.Complete(ctx, "exercise_generation", []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.CompleteOptions{MaxTokens: 2000, JSONMode: true})

	if g.Ledger != nil {
		_ = g.Ledger.Record(ctx, model.CostRecord{
			Model: usage.Model, Provider: usage.Provider, RequestType: usage.RequestType,
			InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens,
			Pipeline: "cards", Operation: "exercise_generation",
			LatencyMS: usage.LatencyMS, Success: usage.Success, ErrorMessage: usage.ErrorMessage,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return model.Exercise{}, fmt.Errorf("cards: generate exercise: %w", err)
	}

	var parsed generatedExercise
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return model.Exercise{}, fmt.Errorf("cards: parse exercise response: %w", err)
	}

	return model.Exercise{
		ExerciseType:      exerciseType,
		Topic:             topic,
		Difficulty:        tier,
		Prompt:            parsed.Prompt,
		Hints:             parsed.Hints,
		ExpectedKeyPoints: parsed.ExpectedKeyPoints,
		WorkedExample:     parsed.WorkedExample,
		FollowUpProblem:   parsed.FollowUpProblem,
		Language:          parsed.Language,
		StarterCode:       parsed.StarterCode,
		SolutionCode:      parsed.SolutionCode,
		TestCases:         parsed.TestCases,
		BuggyCode:         parsed.BuggyCode,
		ContentUUIDs:      contentUUIDs,
	}, nil
}
