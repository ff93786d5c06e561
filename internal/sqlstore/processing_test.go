package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/model"
)

func TestSaveRunAndLatestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	content, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourcePaper, Title: "paper"})
	require.NoError(t, err)

	run := model.ProcessingRun{
		ContentUUID: content.UUID,
		Analysis:    model.ContentAnalysis{ContentType: "paper", Domain: "ml"},
		Summaries:   map[string]string{"brief": "short"},
		Concepts:    []model.Concept{{ID: "c1", Name: "Gradient Descent", CanonicalName: "gradient descent"}},
		Connections: []model.Connection{{SourceContentUUID: content.UUID, TargetContentUUID: "other", RelationshipType: model.RelRelatesTo, Strength: 0.5}},
		Questions:   []string{"what is the learning rate?"},
		Followups:   []string{"read the follow-up paper"},
		ModelsUsed:  []string{"gemini-pro"},
		Status:      model.RunStatusDone,
		StartedAt:   time.Now().UTC(),
	}
	_, err = s.SaveRun(ctx, run)
	require.NoError(t, err)

	got, err := s.LatestRun(ctx, content.UUID)
	require.NoError(t, err)
	require.Equal(t, "ml", got.Analysis.Domain)
	require.Len(t, got.Concepts, 1)
	require.Equal(t, "gradient descent", got.Concepts[0].CanonicalName)
	require.Len(t, got.Connections, 1)
	require.Equal(t, []string{"what is the learning rate?"}, got.Questions)
	require.Equal(t, []string{"read the follow-up paper"}, got.Followups)
}

func TestDeleteRunsCascadesChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	content, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourcePaper, Title: "paper"})
	require.NoError(t, err)

	_, err = s.SaveRun(ctx, model.ProcessingRun{
		ContentUUID: content.UUID,
		Concepts:    []model.Concept{{ID: "c1", Name: "x"}},
		Questions:   []string{"q1"},
		Status:      model.RunStatusDone,
		StartedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRuns(ctx, content.UUID))

	_, err = s.LatestRun(ctx, content.UUID)
	require.Error(t, err)
}

func TestLatestRunPicksMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	content, err := s.Save(ctx, model.ContentRecord{SourceType: model.SourcePaper, Title: "paper"})
	require.NoError(t, err)

	base := time.Now().UTC()
	_, err = s.SaveRun(ctx, model.ProcessingRun{ContentUUID: content.UUID, Status: model.RunStatusDone, StartedAt: base, Analysis: model.ContentAnalysis{Domain: "old"}})
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, model.ProcessingRun{ContentUUID: content.UUID, Status: model.RunStatusDone, StartedAt: base.Add(time.Hour), Analysis: model.ContentAnalysis{Domain: "new"}})
	require.NoError(t, err)

	got, err := s.LatestRun(ctx, content.UUID)
	require.NoError(t, err)
	require.Equal(t, "new", got.Analysis.Domain)
}
