package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAssignsUUID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Save(ctx, model.ContentRecord{
		SourceType: model.SourceArticle,
		Title:      "A Paper",
		FullText:   "body",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.UUID)
	require.False(t, res.Deduped)

	rec, err := s.Load(ctx, res.UUID)
	require.NoError(t, err)
	require.Equal(t, "A Paper", rec.Title)
	require.Equal(t, model.StatusPending, rec.ProcessingStatus)
}

func TestSaveDedupsByRawFileHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, model.ContentRecord{
		SourceType:  model.SourceBook,
		Title:       "Book One",
		RawFileHash: "hash-123",
	})
	require.NoError(t, err)

	second, err := s.Save(ctx, model.ContentRecord{
		SourceType:  model.SourceBook,
		Title:       "Book One Again",
		RawFileHash: "hash-123",
	})
	require.NoError(t, err)
	require.True(t, second.Deduped)
	require.Equal(t, first.UUID, second.ExistingUUID)
}

func TestSaveDedupsByNormalizedURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, model.ContentRecord{
		SourceType: model.SourceArticle,
		SourceURL:  "https://Example.com/post/",
	})
	require.NoError(t, err)

	second, err := s.Save(ctx, model.ContentRecord{
		SourceType: model.SourceArticle,
		SourceURL:  "https://example.com/post",
	})
	require.NoError(t, err)
	require.True(t, second.Deduped)
	require.Equal(t, first.UUID, second.ExistingUUID)
}

func TestUpdateStatusSetsProcessedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "idea"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, res.UUID, model.StatusProcessed, ""))

	rec, err := s.Load(ctx, res.UUID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessed, rec.ProcessingStatus)
	require.NotNil(t, rec.ProcessedAt)
}

func TestUpdateStatusFailedStoresErrorMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "idea"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, res.UUID, model.StatusFailed, "boom"))

	rec, err := s.Load(ctx, res.UUID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, rec.ProcessingStatus)
	require.Equal(t, "boom", rec.Metadata["error_message"])
}

func TestGetPendingReturnsOnlyPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pending, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "pending one"})
	require.NoError(t, err)
	processed, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "processed one"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, processed.UUID, model.StatusProcessed, ""))

	rows, err := s.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pending.UUID, rows[0].ContentUUID)
}

func TestAnnotationsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	page := 3
	confidence := 0.92
	res, err := s.Save(ctx, model.ContentRecord{
		SourceType: model.SourceBook,
		Title:      "annotated",
		Annotations: []model.Annotation{
			{Type: model.AnnotationDigitalHighlight, Content: "important bit", PageNumber: &page, Confidence: &confidence},
		},
	})
	require.NoError(t, err)

	rec, err := s.Load(ctx, res.UUID)
	require.NoError(t, err)
	require.Len(t, rec.Annotations, 1)
	require.Equal(t, "important bit", rec.Annotations[0].Content)
	require.Equal(t, 3, *rec.Annotations[0].PageNumber)
}

func TestGetDBIDByUUIDIsStablePerRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "a"})
	require.NoError(t, err)
	b, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourceIdea, Title: "b"})
	require.NoError(t, err)

	idA, err := s.GetDBIDByUUID(ctx, a.UUID)
	require.NoError(t, err)
	idB, err := s.GetDBIDByUUID(ctx, b.UUID)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)
}
