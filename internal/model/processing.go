package model

import "time"

// RunStatus is the closed set of ProcessingRun outcomes.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// ProcessingRun records one enrichment attempt over a ContentRecord.
// Reprocessing deletes prior runs wholesale (§4.7); a run owns its
// Concepts, Connections, Questions, and Followups by cascade.
type ProcessingRun struct {
	ID            int64
	ContentUUID   string
	Analysis      ContentAnalysis
	Summaries     map[string]string // level -> text, keys "brief"|"standard"|"detailed"
	Extraction    Extraction
	DomainTags    []string
	MetaTags      []string
	Concepts      []Concept
	Connections   []Connection
	Questions     []string
	Followups     []string
	ModelsUsed    []string
	TotalCostUSD  float64
	LatencyMS     int64
	Status        RunStatus
	ErrorMessage  string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// ContentAnalysis is the output of orchestrator stage 2.
type ContentAnalysis struct {
	ContentType  string
	Domain       string
	Complexity   string
	EstLength    int
	HasCode      bool
	HasMath      bool
	HasDiagrams  bool
	KeyTopics    []string // at most 10
	Language     string
}

// Extraction is the output of orchestrator stage 4.
type Extraction struct {
	Concepts     []Concept
	KeyFindings  []string
	Methodologies []string
	Tools        []string
	People       []string
}

// Importance classifies a concept's relevance within its source content.
type Importance string

const (
	ImportanceCore        Importance = "core"
	ImportanceSupporting  Importance = "supporting"
	ImportanceTangential  Importance = "tangential"
)

// ConceptRelation is one edge suggested by extraction ("related_concepts").
type ConceptRelation struct {
	TargetName       string
	RelationshipType string
}

// Concept is a unit of knowledge, deduplicated by CanonicalName in the
// graph store (see internal/concept).
type Concept struct {
	ID              string
	Name            string
	CanonicalName   string
	Aliases         []string
	Definition      string
	Importance      Importance
	Embedding       []float32
	RelatedConcepts []ConceptRelation
}

// RelationshipType is the closed set of Content-to-Content edges.
type RelationshipType string

const (
	RelRelatesTo       RelationshipType = "RELATES_TO"
	RelExtends         RelationshipType = "EXTENDS"
	RelContradicts     RelationshipType = "CONTRADICTS"
	RelPrerequisiteFor RelationshipType = "PREREQUISITE_FOR"
	RelApplies         RelationshipType = "APPLIES"
)

// Connection is a typed, scored relationship between two ContentRecords.
type Connection struct {
	SourceContentUUID string
	TargetContentUUID string
	RelationshipType  RelationshipType
	Strength          float64 // 0..1
	Explanation       string
	VerifiedByUser    bool
}

// NoteNode mirrors a vault file in the graph store.
type NoteNode struct {
	ID           string // frontmatter id or UUID5 of absolute path
	Title        string
	NoteType     string
	Tags         []string
	FilePath     string
	SourceURL    string
	LastSyncedAt time.Time
}
