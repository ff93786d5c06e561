package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/config"
	"secondbrain/internal/graphstore"
	"secondbrain/internal/model"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/vault"
)

type fakeGraph struct {
	notes       map[string]model.NoteNode
	links       map[string][]string
	contentLink []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{notes: make(map[string]model.NoteNode), links: make(map[string][]string)}
}

func (f *fakeGraph) CreateContentNode(ctx context.Context, n graphstore.ContentNode) error { return nil }
func (f *fakeGraph) CreateConceptNode(ctx context.Context, c graphstore.ConceptNode) error { return nil }
func (f *fakeGraph) CreateRelationship(ctx context.Context, sourceID, targetID string, relType model.RelationshipType, properties map[string]any) error {
	return nil
}
func (f *fakeGraph) LinkConceptToConcept(ctx context.Context, sourceName, targetName string, relType model.RelationshipType) (bool, error) {
	return true, nil
}
func (f *fakeGraph) DeleteContentRelationships(ctx context.Context, contentUUID string) error {
	return nil
}
func (f *fakeGraph) VectorSearch(ctx context.Context, embedding []float32, nodeType string, topK int, threshold float64) ([]graphstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeGraph) MergeNoteNode(ctx context.Context, n model.NoteNode) error {
	f.notes[n.ID] = n
	return nil
}
func (f *fakeGraph) SyncNoteLinks(ctx context.Context, sourceID string, targetIDs []string) error {
	f.links[sourceID] = targetIDs
	return nil
}
func (f *fakeGraph) LinkContentToNoteByPath(ctx context.Context, filePath string) error {
	f.contentLink = append(f.contentLink, filePath)
	return nil
}
func (f *fakeGraph) Close(ctx context.Context) error { return nil }

func newTestReconciler(t *testing.T) (*Reconciler, *fakeGraph, *vault.Manager) {
	root := t.TempDir()
	v := vault.NewManager(config.VaultConfig{RootPath: root})
	sql, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sql.Close() })

	g := newFakeGraph()
	return New(v, g, sql), g, v
}

func TestSyncNoteGeneratesIDWhenFrontmatterMissing(t *testing.T) {
	r, g, v := newTestReconciler(t)
	require.NoError(t, v.WriteNote("note.md", "no frontmatter here, links to [[Other Note]] and #tag/one"))

	require.NoError(t, r.SyncNote(context.Background(), "note.md"))

	require.Len(t, g.notes, 1)
	var note model.NoteNode
	for _, n := range g.notes {
		note = n
	}
	require.NotEmpty(t, note.ID)
	require.Contains(t, note.Tags, "tag/one")
	require.Equal(t, []string{"Other Note"}, g.links[note.ID])

	// id should be written back to frontmatter on disk.
	raw, err := v.ReadNote("note.md")
	require.NoError(t, err)
	fm, _, err := vault.ParseNote(raw)
	require.NoError(t, err)
	require.Equal(t, note.ID, fm.ID)
}

func TestSyncNoteUsesExistingFrontmatterID(t *testing.T) {
	r, g, v := newTestReconciler(t)
	rendered, err := vault.RenderNote(vault.Frontmatter{ID: "fixed-id", Title: "T", Tags: []string{"a"}}, "body")
	require.NoError(t, err)
	require.NoError(t, v.WriteNote("note.md", rendered))

	require.NoError(t, r.SyncNote(context.Background(), "note.md"))

	_, ok := g.notes["fixed-id"]
	require.True(t, ok)
}

func TestReconcileOnlySyncsFilesModifiedSinceLastSync(t *testing.T) {
	r, g, v := newTestReconciler(t)
	require.NoError(t, v.WriteNote("old.md", "old note"))
	require.NoError(t, v.WriteNote("new.md", "new note"))

	require.NoError(t, r.Reconcile(context.Background()))
	require.Len(t, g.notes, 2)

	// A second run right after the first: no file changed since last_sync_time, so nothing is synced.
	g2 := newFakeGraph()
	r2 := New(v, g2, r.SQL)
	require.NoError(t, r2.Reconcile(context.Background()))
	require.Empty(t, g2.notes)
}

func TestReconcileExcludesObsidianDir(t *testing.T) {
	r, g, v := newTestReconciler(t)
	require.NoError(t, v.WriteNote(".obsidian/workspace.md", "should be skipped"))
	require.NoError(t, v.WriteNote("real.md", "kept"))

	require.NoError(t, r.Reconcile(context.Background()))

	require.Len(t, g.notes, 1)
}

func TestSecondConcurrentRunReturnsAlreadyInProgress(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.tryStart("full"))
	require.False(t, r.tryStart("full"))
	r.finish(nil)
}

func TestLastSyncTimePersistsAcrossInstances(t *testing.T) {
	r, _, v := newTestReconciler(t)
	now := time.Now().UTC()
	require.NoError(t, r.setLastSyncTime(context.Background(), now))

	r2 := New(v, newFakeGraph(), r.SQL)
	got := r2.lastSyncTime(context.Background())
	require.WithinDuration(t, now, got, time.Second)
}
