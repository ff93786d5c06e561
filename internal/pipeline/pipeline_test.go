package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secondbrain/internal/costledger"
	"secondbrain/internal/model"
	"secondbrain/internal/ocr"
)

// fakeOCR is a canned ocr.Client test double; each method returns
// whatever the test pre-loaded.
type fakeOCR struct {
	pages      []ocr.Page
	page       ocr.Page
	transcript string
	err        error
}

func (f *fakeOCR) TranscribePDF(ctx context.Context, path string) ([]ocr.Page, error) {
	return f.pages, f.err
}

func (f *fakeOCR) TranscribeImage(ctx context.Context, path string) (ocr.Page, error) {
	return f.page, f.err
}

func (f *fakeOCR) TranscribeAudio(ctx context.Context, path string) (string, error) {
	return f.transcript, f.err
}

var _ ocr.Client = (*fakeOCR)(nil)

// stubLedger records every CostRecord handed to it, for assertions.
type stubLedger struct {
	records []model.CostRecord
}

func (l *stubLedger) Record(ctx context.Context, rec model.CostRecord) error {
	l.records = append(l.records, rec)
	return nil
}

func (l *stubLedger) RecordMany(ctx context.Context, recs []model.CostRecord) error {
	l.records = append(l.records, recs...)
	return nil
}

func (l *stubLedger) Aggregate(ctx context.Context, q costledger.AggregateQuery) (costledger.AggregateResult, error) {
	return costledger.AggregateResult{}, nil
}

func (l *stubLedger) BudgetStatus(ctx context.Context, periodStart, periodEnd time.Time, limitUSD float64) (model.BudgetState, float64, error) {
	return model.BudgetUnder, 0, nil
}

var _ costledger.Ledger = (*stubLedger)(nil)

type dummyPipeline struct {
	supports bool
}

func (d dummyPipeline) Supports(input Input) bool { return d.supports }
func (d dummyPipeline) Process(ctx context.Context, input Input) (model.ContentRecord, error) {
	return model.ContentRecord{Title: "dummy"}, nil
}

func TestRegistryGetPipelineReturnsFirstMatch(t *testing.T) {
	reg := NewRegistry(dummyPipeline{supports: false}, dummyPipeline{supports: true})
	p, err := reg.GetPipeline(Input{Type: InputTextIdea})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestRegistryGetPipelineErrorsWhenNoneSupport(t *testing.T) {
	reg := NewRegistry(dummyPipeline{supports: false})
	_, err := reg.GetPipeline(Input{Type: InputTextIdea})
	require.Error(t, err)
}

func TestTitleFromTextUsesFirstNonEmptyLine(t *testing.T) {
	require.Equal(t, "Hello world", titleFromText("\n\nHello world\nmore text"))
}

func TestTitleFromTextFallsBackToUntitled(t *testing.T) {
	require.Equal(t, "Untitled", titleFromText("   \n  \n"))
}
