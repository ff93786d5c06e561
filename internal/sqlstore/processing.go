package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"secondbrain/internal/model"
)

// SaveRun inserts a ProcessingRun and its owned Concepts, Connections,
// Questions, and Followups in one transaction.
func (s *Store) SaveRun(ctx context.Context, run model.ProcessingRun) (int64, error) {
	contentID, err := s.dbIDByUUID(ctx, run.ContentUUID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: begin save run: %w", err)
	}
	defer tx.Rollback()

	analysisJSON, _ := json.Marshal(run.Analysis)
	summariesJSON, _ := json.Marshal(run.Summaries)
	extractionJSON, _ := json.Marshal(run.Extraction)
	domainTagsJSON, _ := json.Marshal(run.DomainTags)
	metaTagsJSON, _ := json.Marshal(run.MetaTags)
	modelsJSON, _ := json.Marshal(run.ModelsUsed)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO processing_runs
		(content_id, analysis_json, summaries_json, extraction_json, domain_tags_json,
		 meta_tags_json, models_used_json, total_cost_usd, latency_ms, status, error_message,
		 started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		contentID, string(analysisJSON), string(summariesJSON), string(extractionJSON),
		string(domainTagsJSON), string(metaTagsJSON), string(modelsJSON), run.TotalCostUSD,
		run.LatencyMS, string(run.Status), run.ErrorMessage, run.StartedAt, run.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: run id: %w", err)
	}

	for _, c := range run.Concepts {
		cJSON, _ := json.Marshal(c)
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_concepts (run_id, concept_json) VALUES (?,?)`, runID, string(cJSON)); err != nil {
			return 0, fmt.Errorf("sqlstore: insert run concept: %w", err)
		}
	}
	for _, c := range run.Connections {
		cJSON, _ := json.Marshal(c)
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_connections (run_id, connection_json) VALUES (?,?)`, runID, string(cJSON)); err != nil {
			return 0, fmt.Errorf("sqlstore: insert run connection: %w", err)
		}
	}
	for _, q := range run.Questions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_questions (run_id, question) VALUES (?,?)`, runID, q); err != nil {
			return 0, fmt.Errorf("sqlstore: insert run question: %w", err)
		}
	}
	for _, f := range run.Followups {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_followups (run_id, followup) VALUES (?,?)`, runID, f); err != nil {
			return 0, fmt.Errorf("sqlstore: insert run followup: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: commit save run: %w", err)
	}
	return runID, nil
}

// LatestRun returns the most recent ProcessingRun for a content uuid,
// with its Concepts/Connections/Questions/Followups populated.
func (s *Store) LatestRun(ctx context.Context, contentUUID string) (model.ProcessingRun, error) {
	contentID, err := s.dbIDByUUID(ctx, contentUUID)
	if err != nil {
		return model.ProcessingRun{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, analysis_json, summaries_json, extraction_json, domain_tags_json,
		       meta_tags_json, models_used_json, total_cost_usd, latency_ms, status,
		       error_message, started_at, completed_at
		FROM processing_runs WHERE content_id = ? ORDER BY started_at DESC LIMIT 1`, contentID)

	run, err := scanRun(row)
	if err != nil {
		return model.ProcessingRun{}, fmt.Errorf("sqlstore: latest run for %s: %w", contentUUID, err)
	}
	run.ContentUUID = contentUUID

	if err := s.fillRunChildren(ctx, &run); err != nil {
		return model.ProcessingRun{}, err
	}
	return run, nil
}

func scanRun(row rowScanner) (model.ProcessingRun, error) {
	var run model.ProcessingRun
	var status string
	var analysisJSON, summariesJSON, extractionJSON, domainTagsJSON, metaTagsJSON, modelsJSON sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&run.ID, &analysisJSON, &summariesJSON, &extractionJSON, &domainTagsJSON,
		&metaTagsJSON, &modelsJSON, &run.TotalCostUSD, &run.LatencyMS, &status, &run.ErrorMessage,
		&run.StartedAt, &completedAt); err != nil {
		return model.ProcessingRun{}, err
	}

	run.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if analysisJSON.Valid {
		_ = json.Unmarshal([]byte(analysisJSON.String), &run.Analysis)
	}
	if summariesJSON.Valid {
		_ = json.Unmarshal([]byte(summariesJSON.String), &run.Summaries)
	}
	if extractionJSON.Valid {
		_ = json.Unmarshal([]byte(extractionJSON.String), &run.Extraction)
	}
	if domainTagsJSON.Valid {
		_ = json.Unmarshal([]byte(domainTagsJSON.String), &run.DomainTags)
	}
	if metaTagsJSON.Valid {
		_ = json.Unmarshal([]byte(metaTagsJSON.String), &run.MetaTags)
	}
	if modelsJSON.Valid {
		_ = json.Unmarshal([]byte(modelsJSON.String), &run.ModelsUsed)
	}
	return run, nil
}

func (s *Store) fillRunChildren(ctx context.Context, run *model.ProcessingRun) error {
	conceptRows, err := s.db.QueryContext(ctx, `SELECT concept_json FROM run_concepts WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: load run concepts: %w", err)
	}
	defer conceptRows.Close()
	for conceptRows.Next() {
		var raw string
		if err := conceptRows.Scan(&raw); err != nil {
			return fmt.Errorf("sqlstore: scan run concept: %w", err)
		}
		var c model.Concept
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			run.Concepts = append(run.Concepts, c)
		}
	}

	connRows, err := s.db.QueryContext(ctx, `SELECT connection_json FROM run_connections WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: load run connections: %w", err)
	}
	defer connRows.Close()
	for connRows.Next() {
		var raw string
		if err := connRows.Scan(&raw); err != nil {
			return fmt.Errorf("sqlstore: scan run connection: %w", err)
		}
		var c model.Connection
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			run.Connections = append(run.Connections, c)
		}
	}

	qRows, err := s.db.QueryContext(ctx, `SELECT question FROM run_questions WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: load run questions: %w", err)
	}
	defer qRows.Close()
	for qRows.Next() {
		var q string
		if err := qRows.Scan(&q); err != nil {
			return fmt.Errorf("sqlstore: scan run question: %w", err)
		}
		run.Questions = append(run.Questions, q)
	}

	fRows, err := s.db.QueryContext(ctx, `SELECT followup FROM run_followups WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: load run followups: %w", err)
	}
	defer fRows.Close()
	for fRows.Next() {
		var f string
		if err := fRows.Scan(&f); err != nil {
			return fmt.Errorf("sqlstore: scan run followup: %w", err)
		}
		run.Followups = append(run.Followups, f)
	}

	return nil
}

// DeleteRuns removes every ProcessingRun owned by contentUUID (and by FK
// cascade its concepts/connections/questions/followups), implementing
// the reprocess cleanup of spec.md §4.7.
func (s *Store) DeleteRuns(ctx context.Context, contentUUID string) error {
	contentID, err := s.dbIDByUUID(ctx, contentUUID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processing_runs WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("sqlstore: delete runs for %s: %w", contentUUID, err)
	}
	return nil
}
