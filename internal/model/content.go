// Package model defines the canonical entities shared across components.
//
// Two identifiers exist on ContentRecord: ContentUUID (opaque, crosses
// component boundaries) and DBID (dense integer key, package-private to
// sqlstore). Nothing outside sqlstore may read or set DBID, so it is not
// exported here; sqlstore keeps its own internal row type for that.
package model

import "time"

// SourceType is the closed set of content origins.
type SourceType string

const (
	SourcePaper      SourceType = "paper"
	SourceArticle    SourceType = "article"
	SourceBook       SourceType = "book"
	SourceCode       SourceType = "code"
	SourceIdea       SourceType = "idea"
	SourceVoiceMemo  SourceType = "voice_memo"
	SourceConcept    SourceType = "concept"
	SourceDaily      SourceType = "daily"
	SourceExercise   SourceType = "exercise"
	SourceCareer     SourceType = "career"
	SourcePersonal   SourceType = "personal"
	SourceProject    SourceType = "project"
	SourceReflection SourceType = "reflection"
	SourceNonTech    SourceType = "non_tech"
)

// ValidSourceType reports whether s is a member of the closed set.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourcePaper, SourceArticle, SourceBook, SourceCode, SourceIdea,
		SourceVoiceMemo, SourceConcept, SourceDaily, SourceExercise,
		SourceCareer, SourcePersonal, SourceProject, SourceReflection, SourceNonTech:
		return true
	}
	return false
}

// ProcessingStatus tracks a ContentRecord through the orchestrator.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

// ContentRecord is the canonical unit of ingested material.
type ContentRecord struct {
	ContentUUID      string
	SourceType       SourceType
	Title            string
	Authors          []string
	SourceURL        string
	SourceFilePath   string
	FullText         string
	RawFileHash      string
	ProcessingStatus ProcessingStatus
	VaultPath        string
	Tags             []string
	Metadata         map[string]any
	Annotations      []Annotation
	CreatedAt        time.Time
	IngestedAt       time.Time
	ProcessedAt      *time.Time
}

// Extras returns rec.Metadata, creating it if nil. Dedup markers and other
// ad-hoc pipeline fields live here, keyed by well-known constants below.
func (rec *ContentRecord) Extras() map[string]any {
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any)
	}
	return rec.Metadata
}

// Well-known Metadata keys. Dedup markers are also surfaced on SaveResult
// (sqlstore) as a return value rather than mutated in-band on the record;
// these constants exist for the rare caller that persists metadata back.
const (
	MetaDedupedKey         = "_deduped"
	MetaDedupeExistingIDKey = "_dedupe_existing_id"
	MetaPageCount          = "page_count"
	MetaModelIDs           = "model_ids"
	MetaSuggestedNewTags   = "suggested_new_tags"
)

// AnnotationType is the closed set of annotation kinds.
type AnnotationType string

const (
	AnnotationDigitalHighlight AnnotationType = "digital_highlight"
	AnnotationHandwrittenNote  AnnotationType = "handwritten_note"
	AnnotationTypedComment     AnnotationType = "typed_comment"
	AnnotationDiagram          AnnotationType = "diagram"
	AnnotationUnderline        AnnotationType = "underline"
)

// Annotation is owned by exactly one ContentRecord.
type Annotation struct {
	Type       AnnotationType
	Content    string
	PageNumber *int
	Position   map[string]any
	Context    string
	Confidence *float64
}
