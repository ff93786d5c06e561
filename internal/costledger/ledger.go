// Package costledger implements C1: an append-only journal of
// per-LLM-call usage, aggregated by day/month/model/pipeline/content,
// with a budget check. Recording failures are logged and swallowed —
// they must never abort the calling pipeline stage (spec.md §4.1).
package costledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"secondbrain/internal/logging"
	"secondbrain/internal/model"
)

var log = logging.Get(logging.CategoryCostLedger)

const schema = `
CREATE TABLE IF NOT EXISTS llm_usage_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	request_type TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	input_cost_usd REAL NOT NULL,
	output_cost_usd REAL NOT NULL,
	pipeline TEXT,
	content_id TEXT,
	operation TEXT,
	latency_ms INTEGER,
	success INTEGER NOT NULL,
	error_message TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created_at ON llm_usage_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_model ON llm_usage_logs(model);
CREATE INDEX IF NOT EXISTS idx_usage_pipeline ON llm_usage_logs(pipeline);
CREATE INDEX IF NOT EXISTS idx_usage_content ON llm_usage_logs(content_id);
`

// Ledger is the C1 contract.
type Ledger interface {
	Record(ctx context.Context, rec model.CostRecord) error
	RecordMany(ctx context.Context, recs []model.CostRecord) error
	Aggregate(ctx context.Context, q AggregateQuery) (AggregateResult, error)
	BudgetStatus(ctx context.Context, periodStart, periodEnd time.Time, limitUSD float64) (model.BudgetState, float64, error)
}

// SQLLedger persists rows to a SQLite-backed table.
type SQLLedger struct {
	db *sql.DB
}

// NewSQLLedger opens (creating if needed) the usage-log schema on db.
func NewSQLLedger(db *sql.DB) (*SQLLedger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("costledger: create schema: %w", err)
	}
	return &SQLLedger{db: db}, nil
}

// Record inserts one row. Failures are logged, never returned, per
// spec.md §4.1 ("Failures to record must not abort the calling
// operation").
func (l *SQLLedger) Record(ctx context.Context, rec model.CostRecord) error {
	if err := l.insert(ctx, rec); err != nil {
		log.Error("failed to record cost entry for %s/%s: %v", rec.Pipeline, rec.Operation, err)
	}
	return nil
}

// RecordMany batches rec insertion, same failure policy as Record.
func (l *SQLLedger) RecordMany(ctx context.Context, recs []model.CostRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin batch cost insert: %v", err)
		return nil
	}
	for _, rec := range recs {
		if err := l.insertTx(ctx, tx, rec); err != nil {
			log.Error("failed to record batched cost entry: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Error("failed to commit batch cost insert: %v", err)
	}
	return nil
}

func (l *SQLLedger) insert(ctx context.Context, rec model.CostRecord) error {
	_, err := l.db.ExecContext(ctx, insertSQL,
		rec.Model, rec.Provider, string(rec.RequestType), rec.InputTokens, rec.OutputTokens,
		rec.CostUSD, rec.InputCostUSD, rec.OutputCostUSD, rec.Pipeline, rec.ContentUUID,
		rec.Operation, rec.LatencyMS, rec.Success, rec.ErrorMessage, rec.CreatedAt)
	return err
}

func (l *SQLLedger) insertTx(ctx context.Context, tx *sql.Tx, rec model.CostRecord) error {
	_, err := tx.ExecContext(ctx, insertSQL,
		rec.Model, rec.Provider, string(rec.RequestType), rec.InputTokens, rec.OutputTokens,
		rec.CostUSD, rec.InputCostUSD, rec.OutputCostUSD, rec.Pipeline, rec.ContentUUID,
		rec.Operation, rec.LatencyMS, rec.Success, rec.ErrorMessage, rec.CreatedAt)
	return err
}

const insertSQL = `
INSERT INTO llm_usage_logs
(model, provider, request_type, input_tokens, output_tokens, cost_usd, input_cost_usd,
 output_cost_usd, pipeline, content_id, operation, latency_ms, success, error_message, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`

// AggregateQuery selects which dimension to roll usage up by, within
// an optional time window.
type AggregateQuery struct {
	GroupBy  string // "day" | "month" | "model" | "pipeline" | "content"
	Start    time.Time
	End      time.Time
}

// AggregateResult is the rollup: total plus a per-key breakdown.
type AggregateResult struct {
	TotalCostUSD float64
	TotalCalls   int
	ByKey        map[string]KeyTotals
}

// KeyTotals is one group's totals within an AggregateResult.
type KeyTotals struct {
	CostUSD      float64
	Calls        int
	InputTokens  int
	OutputTokens int
}

func groupExpr(groupBy string) (string, error) {
	switch groupBy {
	case "day":
		return "date(created_at)", nil
	case "month":
		return "strftime('%Y-%m', created_at)", nil
	case "model":
		return "model", nil
	case "pipeline":
		return "pipeline", nil
	case "content":
		return "content_id", nil
	default:
		return "", fmt.Errorf("costledger: unknown group_by %q", groupBy)
	}
}

// Aggregate rolls up usage rows within [q.Start, q.End) by q.GroupBy.
func (l *SQLLedger) Aggregate(ctx context.Context, q AggregateQuery) (AggregateResult, error) {
	expr, err := groupExpr(q.GroupBy)
	if err != nil {
		return AggregateResult{}, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS grp, SUM(cost_usd), COUNT(*), SUM(input_tokens), SUM(output_tokens)
		FROM llm_usage_logs
		WHERE created_at >= ? AND created_at < ?
		GROUP BY grp`, expr)

	rows, err := l.db.QueryContext(ctx, query, q.Start, q.End)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("costledger: aggregate: %w", err)
	}
	defer rows.Close()

	result := AggregateResult{ByKey: make(map[string]KeyTotals)}
	for rows.Next() {
		var key sql.NullString
		var kt KeyTotals
		if err := rows.Scan(&key, &kt.CostUSD, &kt.Calls, &kt.InputTokens, &kt.OutputTokens); err != nil {
			return AggregateResult{}, fmt.Errorf("costledger: scan: %w", err)
		}
		k := key.String
		if !key.Valid {
			k = "(unknown)"
		}
		result.ByKey[k] = kt
		result.TotalCostUSD += kt.CostUSD
		result.TotalCalls += kt.Calls
	}
	return result, rows.Err()
}

// BudgetStatus compares spend within [periodStart, periodEnd) to
// limitUSD, returning the three-state classification of spec.md §4.1:
// under, warning (>=80%), over.
func (l *SQLLedger) BudgetStatus(ctx context.Context, periodStart, periodEnd time.Time, limitUSD float64) (model.BudgetState, float64, error) {
	var spend sql.NullFloat64
	err := l.db.QueryRowContext(ctx,
		`SELECT SUM(cost_usd) FROM llm_usage_logs WHERE created_at >= ? AND created_at < ?`,
		periodStart, periodEnd).Scan(&spend)
	if err != nil {
		return "", 0, fmt.Errorf("costledger: budget status: %w", err)
	}

	total := spend.Float64
	if limitUSD <= 0 {
		return model.BudgetUnder, total, nil
	}
	ratio := total / limitUSD
	switch {
	case ratio >= 1.0:
		return model.BudgetOver, total, nil
	case ratio >= 0.8:
		return model.BudgetWarning, total, nil
	default:
		return model.BudgetUnder, total, nil
	}
}

var _ Ledger = (*SQLLedger)(nil)
