package tristore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/config"
	"secondbrain/internal/graphstore"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/vault"
)

type fakeGraph struct {
	contentNodes  []graphstore.ContentNode
	conceptNodes  []graphstore.ConceptNode
	relationships []fakeRelationship
	linkedPaths   []string
}

type fakeRelationship struct {
	sourceID, targetID string
	relType            model.RelationshipType
	properties         map[string]any
}

func (f *fakeGraph) CreateContentNode(ctx context.Context, n graphstore.ContentNode) error {
	f.contentNodes = append(f.contentNodes, n)
	return nil
}

func (f *fakeGraph) CreateConceptNode(ctx context.Context, c graphstore.ConceptNode) error {
	f.conceptNodes = append(f.conceptNodes, c)
	return nil
}

func (f *fakeGraph) CreateRelationship(ctx context.Context, sourceID, targetID string, relType model.RelationshipType, properties map[string]any) error {
	f.relationships = append(f.relationships, fakeRelationship{sourceID, targetID, relType, properties})
	return nil
}

func (f *fakeGraph) LinkConceptToConcept(ctx context.Context, sourceName, targetName string, relType model.RelationshipType) (bool, error) {
	return true, nil
}

func (f *fakeGraph) DeleteContentRelationships(ctx context.Context, contentUUID string) error { return nil }

func (f *fakeGraph) VectorSearch(ctx context.Context, embedding []float32, nodeType string, topK int, threshold float64) ([]graphstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeGraph) MergeNoteNode(ctx context.Context, n model.NoteNode) error { return nil }

func (f *fakeGraph) SyncNoteLinks(ctx context.Context, sourceID string, targetIDs []string) error { return nil }

func (f *fakeGraph) LinkContentToNoteByPath(ctx context.Context, filePath string) error {
	f.linkedPaths = append(f.linkedPaths, filePath)
	return nil
}

func (f *fakeGraph) Close(ctx context.Context) error { return nil }

var _ graphstore.Store = (*fakeGraph)(nil)

func newTestWriter(t *testing.T) (*Writer, *fakeGraph, *sqlstore.Store) {
	t.Helper()
	vm := vault.NewManager(config.VaultConfig{
		RootPath: t.TempDir(),
		SystemFolders: []string{"library/misc", "concepts"},
		ContentTypeFolders: map[string][]string{
			"article": {"library/articles"},
		},
	})
	require.NoError(t, vm.EnsureStructure())

	store, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	graph := &fakeGraph{}
	return New(vm, store, graph), graph, store
}

func sampleRun(contentUUID string) model.ProcessingRun {
	return model.ProcessingRun{
		ContentUUID: contentUUID,
		Status:      model.RunStatusDone,
		Summaries:   map[string]string{"brief": "a short summary", "standard": "a longer summary"},
		Concepts: []model.Concept{
			{
				Name: "Gradient Descent", CanonicalName: "gradient descent",
				Definition: "an optimization algorithm", Importance: model.ImportanceCore,
				RelatedConcepts: []model.ConceptRelation{{TargetName: "learning rate", RelationshipType: "RELATES_TO"}},
			},
		},
		Connections: []model.Connection{
			{SourceContentUUID: contentUUID, TargetContentUUID: "other-uuid", RelationshipType: model.RelExtends, Strength: 0.8, Explanation: "builds on it"},
		},
	}
}

func TestPersistWritesNoteAndAllStores(t *testing.T) {
	w, graph, store := newTestWriter(t)
	rec := &model.ContentRecord{
		ContentUUID: "content-1", SourceType: model.SourceArticle, Title: "Understanding Gradient Descent",
		ProcessingStatus: model.StatusProcessed,
	}
	_, err := store.Save(context.Background(), *rec)
	require.NoError(t, err)
	run := sampleRun(rec.ContentUUID)

	w.Persist(context.Background(), rec, run)

	require.NotEmpty(t, rec.VaultPath)
	content, err := w.Vault.ReadNote(rec.VaultPath)
	require.NoError(t, err)
	require.Contains(t, content, "Understanding Gradient Descent")
	require.Contains(t, content, "a longer summary")
	require.Contains(t, content, "[[Gradient Descent]]")

	require.Len(t, graph.contentNodes, 1)
	require.Equal(t, rec.VaultPath, graph.contentNodes[0].FilePath)
	require.Len(t, graph.conceptNodes, 1)
	require.Len(t, graph.relationships, 2) // CONTAINS + the EXTENDS connection
	require.Equal(t, []string{rec.VaultPath}, graph.linkedPaths)

	savedRun, err := store.LatestRun(context.Background(), rec.ContentUUID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusDone, savedRun.Status)
}

func TestPersistReprocessReusesKnownVaultPath(t *testing.T) {
	w, _, _ := newTestWriter(t)
	existingPath := filepath.Join("library", "articles", "Existing.md")
	rec := &model.ContentRecord{
		ContentUUID: "content-2", SourceType: model.SourceArticle, Title: "New Title", VaultPath: existingPath,
	}
	run := sampleRun(rec.ContentUUID)

	w.Persist(context.Background(), rec, run)

	require.Equal(t, existingPath, rec.VaultPath)
}

func TestPersistToleratesNilStores(t *testing.T) {
	w := New(nil, nil, nil)
	rec := &model.ContentRecord{ContentUUID: "content-3", Title: "No Stores"}
	require.NotPanics(t, func() {
		w.Persist(context.Background(), rec, sampleRun(rec.ContentUUID))
	})
}
