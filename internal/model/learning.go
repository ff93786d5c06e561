package model

import "time"

// CardState is the FSRS lifecycle state of a SpacedRepCard.
type CardState string

const (
	CardNew        CardState = "new"
	CardLearning   CardState = "learning"
	CardReview     CardState = "review"
	CardRelearning CardState = "relearning"
)

// CardType is the closed set of card shapes a generator can produce.
type CardType string

const (
	CardDefinition   CardType = "definition"
	CardApplication  CardType = "application"
	CardExample      CardType = "example"
	CardMisconception CardType = "misconception"
	CardComparison   CardType = "comparison"
	CardProperties   CardType = "properties"
)

// SpacedRepCard is one review unit scheduled by the FSRS engine.
type SpacedRepCard struct {
	ID               string
	CardType         CardType
	Front            string
	Back             string
	Hints            []string
	Tags             []string
	SourceContentUUID string
	SourceConcept    string

	State          CardState
	Stability      float64 // days; zero/uninitialized while State == CardNew
	Difficulty     float64 // 1..10
	DueDate        time.Time
	LastReviewed   *time.Time
	ScheduledDays  int
	Repetitions    int
	Lapses         int
	TotalReviews   int
	CorrectReviews int
}

// Rating is the learner's recall-quality input to a review.
type Rating string

const (
	RatingAgain Rating = "again"
	RatingHard  Rating = "hard"
	RatingGood  Rating = "good"
	RatingEasy  Rating = "easy"
)

// ReviewLog records one FSRS state transition.
type ReviewLog struct {
	CardID      string
	Rating      Rating
	ReviewedAt  time.Time
	BeforeState CardState
	AfterState  CardState
	Interval    int
}

// ExerciseType is the closed set of exercise shapes.
type ExerciseType string

const (
	ExerciseWorkedExample ExerciseType = "worked_example"
	ExerciseRecall        ExerciseType = "recall"
	ExerciseCodeImplement ExerciseType = "code_implement"
	ExerciseCodeComplete  ExerciseType = "code_complete"
	ExerciseCodeDebug     ExerciseType = "code_debug"
	ExerciseCodeRefactor  ExerciseType = "code_refactor"
	ExerciseCodeExplain   ExerciseType = "code_explain"
)

// Difficulty is the closed set of exercise difficulty tiers.
type Difficulty string

const (
	DifficultyFoundational Difficulty = "foundational"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Exercise is a generated practice item, linked to content many-to-many.
type Exercise struct {
	ID                   string
	ExerciseType         ExerciseType
	Topic                string
	Difficulty           Difficulty
	Prompt               string
	Hints                []string
	ExpectedKeyPoints    []string
	WorkedExample        string
	FollowUpProblem      string
	Language             string
	StarterCode          string
	SolutionCode         string
	TestCases            []string
	BuggyCode            string
	EstimatedTimeMinutes float64
	ContentUUIDs         []string
}

// ExerciseAttempt is one learner response to an Exercise.
type ExerciseAttempt struct {
	ExerciseID        string
	Response          string
	ResponseCode      string
	Score             float64 // 0..1
	IsCorrect         bool
	Feedback          string
	CoveredPoints     []string
	MissingPoints     []string
	Misconceptions    []string
	TestsPassed       int
	TestsTotal        int
	ConfidenceBefore  float64
	ConfidenceAfter   float64
	TimeSpentSeconds  int
}

// SessionContentMode controls which item types a session may contain.
type SessionContentMode string

const (
	ContentModeExercisesOnly SessionContentMode = "exercises_only"
	ContentModeCardsOnly     SessionContentMode = "cards_only"
	ContentModeBoth          SessionContentMode = "both"
)

// ContentSourcePreference controls whether a composer generates new
// items or only draws from what already exists.
type ContentSourcePreference string

const (
	SourceExistingOnly    ContentSourcePreference = "existing_only"
	SourcePreferExisting  ContentSourcePreference = "prefer_existing"
	SourceGenerateNew     ContentSourcePreference = "generate_new"
)

// PracticeSession is one bounded practice sitting.
type PracticeSession struct {
	ID             string
	SessionType    string
	StartedAt      time.Time
	EndedAt        *time.Time
	DurationMinutes float64
	TopicsCovered  []string
	TotalCards     int
	ExerciseCount  int
	CorrectCount   int
	AverageScore   float64
}

// Trend classifies mastery movement between two snapshots.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// MasterySnapshot is a point-in-time aggregate for one topic.
type MasterySnapshot struct {
	SnapshotDate           time.Time
	TopicPath              string
	PracticeCount          int
	SuccessRate            *float64
	MasteryScore           float64
	Trend                  Trend
	RetentionEstimate      float64
	LastPracticed          *time.Time
	DaysSinceReview        *int
	Recommendation         string
	SuggestedExerciseTypes []ExerciseType
}

// TagTaxonomy is the process-wide controlled vocabulary.
type TagTaxonomy struct {
	Domains map[string]any // nested tree, e.g. ml/architecture/transformers
	Status  []string
	Quality []string
}

// BudgetState is the closed set of cost-ledger budget checks.
type BudgetState string

const (
	BudgetUnder   BudgetState = "under"
	BudgetWarning BudgetState = "warning" // >= 80%
	BudgetOver    BudgetState = "over"
)

// RequestType is the closed set of LLM call shapes for cost attribution.
type RequestType string

const (
	RequestText      RequestType = "text"
	RequestVision    RequestType = "vision"
	RequestEmbedding RequestType = "embedding"
)

// CostRecord is one append-only row in the cost ledger.
type CostRecord struct {
	Model         string
	Provider      string
	RequestType   RequestType
	InputTokens   int
	OutputTokens  int
	CostUSD       float64
	InputCostUSD  float64
	OutputCostUSD float64
	Pipeline      string
	ContentUUID   string
	Operation     string
	LatencyMS     int64
	Success       bool
	ErrorMessage  string
	CreatedAt     time.Time
}
