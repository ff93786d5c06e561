// Package tristore implements C9, the component that fans a single
// ProcessingRun's output out to the three stores a processed piece of
// content lives in: a Markdown note in the vault, rows in sqlstore, and
// nodes/edges in the graph store. Grounded on spec.md §4.9's six
// ordered, independently-best-effort steps.
package tristore

import (
	"context"

	"secondbrain/internal/graphstore"
	"secondbrain/internal/logging"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/vault"
)

var log = logging.Get(logging.CategoryTristore)

// Writer persists one (ContentRecord, ProcessingRun) pair across all
// three stores. A failure in one step is logged and does not prevent
// the remaining steps from running: spec.md §4.9 requires that a
// graph-store failure, say, never roll back the vault write or the
// sqlstore row.
type Writer struct {
	Vault *vault.Manager
	SQL   *sqlstore.Store
	Graph graphstore.Store
}

// New builds a Writer over the three stores.
func New(v *vault.Manager, sql *sqlstore.Store, graph graphstore.Store) *Writer {
	return &Writer{Vault: v, SQL: sql, Graph: graph}
}

// contentTypeDir maps a SourceType to the vault subfolder new notes of
// that type land in, mirroring the teacher's one-folder-per-shard-kind
// layout generalized to spec.md §4.3's content-type folders.
func contentTypeDir(st model.SourceType) string {
	switch st {
	case model.SourceBook:
		return "library/books"
	case model.SourcePaper:
		return "library/papers"
	case model.SourceCode:
		return "library/repos"
	case model.SourceArticle:
		return "library/articles"
	case model.SourceVoiceMemo:
		return "journal/voice"
	case model.SourceIdea:
		return "journal/ideas"
	default:
		return "library/misc"
	}
}

// Persist runs the six tri-store steps for rec/run in order. rec must
// already carry its ContentUUID; run must carry the same ContentUUID.
// Persist mutates rec.VaultPath in place so the caller can save the
// chosen path back via sqlstore if step 1 picked a new one.
func (w *Writer) Persist(ctx context.Context, rec *model.ContentRecord, run model.ProcessingRun) {
	w.writeNote(ctx, rec, run)
	w.saveRun(ctx, run)
	w.writeConcepts(ctx, rec, run)
	w.writeContentNode(ctx, rec, run)
	w.writeConnections(ctx, run)
	w.linkNoteToContent(ctx, rec)
}

// step 1: render the note and choose its path via vault.PathForUpdate,
// preferring the content's existing VaultPath (reprocessing in place)
// over a freshly derived one.
func (w *Writer) writeNote(ctx context.Context, rec *model.ContentRecord, run model.ProcessingRun) {
	if w.Vault == nil {
		return
	}
	rendered, err := vault.RenderContentNote(*rec, run)
	if err != nil {
		log.Error("render note for %s: %v", rec.ContentUUID, err)
		return
	}

	basePath := w.Vault.GetUniquePath(contentTypeDir(rec.SourceType), rec.Title, ".md")
	path := vault.PathForUpdate(rec.VaultPath, basePath)

	if err := w.Vault.WriteNote(path, rendered); err != nil {
		log.Error("write note for %s: %v", rec.ContentUUID, err)
		return
	}
	rec.VaultPath = path
}

// step 2: persist the ProcessingRun and its owned children.
func (w *Writer) saveRun(ctx context.Context, run model.ProcessingRun) {
	if w.SQL == nil {
		return
	}
	if _, err := w.SQL.SaveRun(ctx, run); err != nil {
		log.Error("save processing run for %s: %v", run.ContentUUID, err)
	}
}

// step 3: for each core concept, optionally write a concept note, then
// MERGE the ConceptNode and its CONTAINS/concept-to-concept edges.
func (w *Writer) writeConcepts(ctx context.Context, rec *model.ContentRecord, run model.ProcessingRun) {
	if w.Graph == nil {
		return
	}
	for _, c := range run.Concepts {
		filePath := w.writeConceptNote(c)

		if err := w.Graph.CreateConceptNode(ctx, graphstore.ConceptNode{
			Name: c.Name, Definition: c.Definition, Aliases: c.Aliases,
			Embedding: c.Embedding, FilePath: filePath,
		}); err != nil {
			log.Error("create concept node %q: %v", c.Name, err)
			continue
		}

		if err := w.Graph.CreateRelationship(ctx, rec.ContentUUID, c.CanonicalName, "CONTAINS",
			map[string]any{"importance": string(c.Importance)}); err != nil {
			log.Error("link content %s to concept %q: %v", rec.ContentUUID, c.Name, err)
		}

		for _, rel := range c.RelatedConcepts {
			if _, err := w.Graph.LinkConceptToConcept(ctx, c.CanonicalName, rel.TargetName,
				model.RelationshipType(rel.RelationshipType)); err != nil {
				log.Error("link concept %q -> %q: %v", c.Name, rel.TargetName, err)
			}
		}
	}
}

// writeConceptNote writes an optional standalone note for a core
// concept under concepts/, returning the vault-relative path used as
// the ConceptNode's file_path, or "" when no file was written.
func (w *Writer) writeConceptNote(c model.Concept) string {
	if w.Vault == nil || c.Importance != model.ImportanceCore || c.Definition == "" {
		return ""
	}
	path := w.Vault.GetUniquePath("concepts", c.Name, ".md")
	fm := vault.Frontmatter{ID: c.CanonicalName, Title: c.Name, Type: "concept", Tags: c.Aliases}
	body := "# " + c.Name + "\n\n" + c.Definition + "\n"
	rendered, err := vault.RenderNote(fm, body)
	if err != nil {
		log.Error("render concept note %q: %v", c.Name, err)
		return ""
	}
	if err := w.Vault.WriteNote(path, rendered); err != nil {
		log.Error("write concept note %q: %v", c.Name, err)
		return ""
	}
	return path
}

// step 4: MERGE the ContentNode, carrying the note's file_path so
// LinkContentToNoteByPath can find it in step 6.
func (w *Writer) writeContentNode(ctx context.Context, rec *model.ContentRecord, run model.ProcessingRun) {
	if w.Graph == nil {
		return
	}
	var embedding []float32
	if len(run.Concepts) > 0 {
		embedding = run.Concepts[0].Embedding
	}
	if err := w.Graph.CreateContentNode(ctx, graphstore.ContentNode{
		UUID: rec.ContentUUID, Title: rec.Title, Type: string(rec.SourceType),
		Summary: run.Summaries["brief"], Embedding: embedding, Tags: rec.Tags,
		URL: rec.SourceURL, FilePath: rec.VaultPath, Metadata: rec.Metadata,
	}); err != nil {
		log.Error("create content node %s: %v", rec.ContentUUID, err)
	}
}

// step 5: create a typed, scored relationship for each discovered
// Connection between two pieces of content.
func (w *Writer) writeConnections(ctx context.Context, run model.ProcessingRun) {
	if w.Graph == nil {
		return
	}
	for _, c := range run.Connections {
		if err := w.Graph.CreateRelationship(ctx, c.SourceContentUUID, c.TargetContentUUID, c.RelationshipType,
			map[string]any{"strength": c.Strength, "explanation": c.Explanation, "verified_by_user": c.VerifiedByUser}); err != nil {
			log.Error("create connection %s -> %s: %v", c.SourceContentUUID, c.TargetContentUUID, err)
		}
	}
}

// step 6: tie the Content and Note nodes together by shared file_path.
func (w *Writer) linkNoteToContent(ctx context.Context, rec *model.ContentRecord) {
	if w.Graph == nil || rec.VaultPath == "" {
		return
	}
	if err := w.Graph.LinkContentToNoteByPath(ctx, rec.VaultPath); err != nil {
		log.Error("link content to note by path %s: %v", rec.VaultPath, err)
	}
}

// PersistCards saves generated spaced-repetition cards, a best-effort
// step layered on top of the six core steps for callers that generate
// cards in the same orchestrator pass (spec.md §4.12).
func (w *Writer) PersistCards(ctx context.Context, cardList []model.SpacedRepCard) {
	if w.SQL == nil {
		return
	}
	for _, c := range cardList {
		if err := w.SQL.SaveCard(ctx, c); err != nil {
			log.Error("save card %q: %v", c.Front, err)
		}
	}
}
