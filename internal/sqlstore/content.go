package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondbrain/internal/logging"
	"secondbrain/internal/model"
)

var log = logging.Get(logging.CategoryStore)

// SaveResult reports whether Save deduplicated against an existing row
// instead of mutating the caller's record in-band (spec.md §9).
type SaveResult struct {
	UUID         string
	Deduped      bool
	ExistingUUID string
}

// NormalizeURL strips the fragment and trailing slash and lower-cases
// the URL, per spec.md §4.2's dedup normalization rule.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(u, "#"); idx >= 0 {
		u = u[:idx]
	}
	u = strings.TrimSuffix(u, "/")
	return u
}

// Save inserts rec, assigning a UUID if absent. If an existing non-failed
// record shares rec.RawFileHash or rec.SourceURL (normalized), Save
// returns that record's uuid with Deduped=true instead of inserting.
// A query error during the dedup check is logged and falls through to
// insert (spec.md §9 Open Question: kept as documented best-effort,
// observable via the dedupe_check_failed log line — see DESIGN.md).
func (s *Store) Save(ctx context.Context, rec model.ContentRecord) (SaveResult, error) {
	if existingUUID, found := s.findDuplicate(ctx, rec); found {
		return SaveResult{UUID: existingUUID, Deduped: true, ExistingUUID: existingUUID}, nil
	}

	if rec.ContentUUID == "" {
		rec.ContentUUID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = rec.CreatedAt
	}
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = model.StatusPending
	}

	authorsJSON, _ := json.Marshal(rec.Authors)
	tagsJSON, _ := json.Marshal(rec.Tags)
	metaJSON, _ := json.Marshal(rec.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content
		(content_uuid, source_type, title, authors_json, source_url, source_file_path,
		 full_text, raw_file_hash, status, vault_path, tags_json, metadata_json,
		 created_at, ingested_at, processed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ContentUUID, string(rec.SourceType), rec.Title, string(authorsJSON), rec.SourceURL,
		rec.SourceFilePath, rec.FullText, rec.RawFileHash, string(rec.ProcessingStatus),
		rec.VaultPath, string(tagsJSON), string(metaJSON), rec.CreatedAt, rec.IngestedAt, rec.ProcessedAt)
	if err != nil {
		return SaveResult{}, fmt.Errorf("sqlstore: save content: %w", err)
	}

	for _, a := range rec.Annotations {
		if err := s.insertAnnotation(ctx, rec.ContentUUID, a); err != nil {
			return SaveResult{}, err
		}
	}

	return SaveResult{UUID: rec.ContentUUID}, nil
}

func (s *Store) findDuplicate(ctx context.Context, rec model.ContentRecord) (string, bool) {
	if rec.RawFileHash != "" {
		var existing string
		err := s.db.QueryRowContext(ctx,
			`SELECT content_uuid FROM content WHERE raw_file_hash = ? AND status != ? LIMIT 1`,
			rec.RawFileHash, model.StatusFailed).Scan(&existing)
		switch {
		case err == nil:
			return existing, true
		case err == sql.ErrNoRows:
			// fall through to URL check / insert
		default:
			log.Warn("dedupe_check_failed: raw_file_hash lookup error, falling through to insert: %v", err)
		}
	}
	if rec.SourceURL != "" {
		normalized := NormalizeURL(rec.SourceURL)
		var existing, existingURL string
		rows, err := s.db.QueryContext(ctx,
			`SELECT content_uuid, source_url FROM content WHERE source_url IS NOT NULL AND status != ?`,
			model.StatusFailed)
		if err != nil {
			log.Warn("dedupe_check_failed: source_url lookup error, falling through to insert: %v", err)
			return "", false
		}
		defer rows.Close()
		for rows.Next() {
			if err := rows.Scan(&existing, &existingURL); err != nil {
				continue
			}
			if NormalizeURL(existingURL) == normalized {
				return existing, true
			}
		}
	}
	return "", false
}

func (s *Store) insertAnnotation(ctx context.Context, contentUUID string, a model.Annotation) error {
	dbID, err := s.dbIDByUUID(ctx, contentUUID)
	if err != nil {
		return err
	}
	posJSON, _ := json.Marshal(a.Position)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO annotations (content_id, type, content, page_number, position_json, context, confidence)
		VALUES (?,?,?,?,?,?,?)`,
		dbID, string(a.Type), a.Content, a.PageNumber, string(posJSON), a.Context, a.Confidence)
	if err != nil {
		return fmt.Errorf("sqlstore: insert annotation: %w", err)
	}
	return nil
}

// dbIDByUUID resolves the internal integer key. It never leaves this
// package (spec.md §9: db_id is package-private to the relational
// adapter).
func (s *Store) dbIDByUUID(ctx context.Context, contentUUID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM content WHERE content_uuid = ?`, contentUUID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: resolve db id for %s: %w", contentUUID, err)
	}
	return id, nil
}

// GetDBIDByUUID exists only for components (processing run persistence)
// that must join against content.id; it is not part of any
// cross-component struct.
func (s *Store) GetDBIDByUUID(ctx context.Context, contentUUID string) (int64, error) {
	return s.dbIDByUUID(ctx, contentUUID)
}

// Load fetches a ContentRecord (with annotations) by its external uuid.
func (s *Store) Load(ctx context.Context, contentUUID string) (model.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_uuid, source_type, title, authors_json, source_url, source_file_path,
		       full_text, raw_file_hash, status, vault_path, tags_json, metadata_json,
		       created_at, ingested_at, processed_at
		FROM content WHERE content_uuid = ?`, contentUUID)

	rec, err := scanContent(row)
	if err != nil {
		return model.ContentRecord{}, fmt.Errorf("sqlstore: load %s: %w", contentUUID, err)
	}

	annotations, err := s.loadAnnotations(ctx, contentUUID)
	if err != nil {
		return model.ContentRecord{}, err
	}
	rec.Annotations = annotations
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (model.ContentRecord, error) {
	var rec model.ContentRecord
	var sourceType, status string
	var authorsJSON, tagsJSON, metaJSON sql.NullString
	var sourceURL, sourceFilePath, vaultPath sql.NullString
	var processedAt sql.NullTime

	if err := row.Scan(&rec.ContentUUID, &sourceType, &rec.Title, &authorsJSON, &sourceURL,
		&sourceFilePath, &rec.FullText, &rec.RawFileHash, &status, &vaultPath, &tagsJSON, &metaJSON,
		&rec.CreatedAt, &rec.IngestedAt, &processedAt); err != nil {
		return model.ContentRecord{}, err
	}

	rec.SourceType = model.SourceType(sourceType)
	rec.ProcessingStatus = model.ProcessingStatus(status)
	rec.SourceURL = sourceURL.String
	rec.SourceFilePath = sourceFilePath.String
	rec.VaultPath = vaultPath.String
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	if authorsJSON.Valid {
		_ = json.Unmarshal([]byte(authorsJSON.String), &rec.Authors)
	}
	if tagsJSON.Valid {
		_ = json.Unmarshal([]byte(tagsJSON.String), &rec.Tags)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &rec.Metadata)
	}
	return rec, nil
}

func (s *Store) loadAnnotations(ctx context.Context, contentUUID string) ([]model.Annotation, error) {
	dbID, err := s.dbIDByUUID(ctx, contentUUID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, content, page_number, position_json, context, confidence
		FROM annotations WHERE content_id = ?`, dbID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load annotations: %w", err)
	}
	defer rows.Close()

	var out []model.Annotation
	for rows.Next() {
		var a model.Annotation
		var typ string
		var posJSON sql.NullString
		var page sql.NullInt64
		var confidence sql.NullFloat64
		if err := rows.Scan(&typ, &a.Content, &page, &posJSON, &a.Context, &confidence); err != nil {
			return nil, fmt.Errorf("sqlstore: scan annotation: %w", err)
		}
		a.Type = model.AnnotationType(typ)
		if page.Valid {
			v := int(page.Int64)
			a.PageNumber = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			a.Confidence = &v
		}
		if posJSON.Valid {
			_ = json.Unmarshal([]byte(posJSON.String), &a.Position)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a record's processing status, setting
// processed_at when the new status is "processed".
func (s *Store) UpdateStatus(ctx context.Context, contentUUID string, status model.ProcessingStatus, errorMessage string) error {
	var processedAt *time.Time
	if status == model.StatusProcessed {
		now := time.Now().UTC()
		processedAt = &now
	}

	query := `UPDATE content SET status = ?, processed_at = COALESCE(?, processed_at) WHERE content_uuid = ?`
	args := []any{string(status), processedAt, contentUUID}
	if errorMessage != "" {
		// merge error_message into metadata_json rather than a dedicated column,
		// matching ContentRecord's "status=failed + error_message in metadata" contract.
		rec, err := s.Load(ctx, contentUUID)
		if err != nil {
			return err
		}
		rec.Extras()["error_message"] = errorMessage
		metaJSON, _ := json.Marshal(rec.Metadata)
		query = `UPDATE content SET status = ?, processed_at = COALESCE(?, processed_at), metadata_json = ? WHERE content_uuid = ?`
		args = []any{string(status), processedAt, string(metaJSON), contentUUID}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sqlstore: update status: no row for %s", contentUUID)
	}
	return nil
}

// UpdateContent overwrites the mutable fields of a record (full text,
// vault path, tags, metadata) after pipeline/orchestrator processing.
func (s *Store) UpdateContent(ctx context.Context, rec model.ContentRecord) error {
	tagsJSON, _ := json.Marshal(rec.Tags)
	metaJSON, _ := json.Marshal(rec.Metadata)

	res, err := s.db.ExecContext(ctx, `
		UPDATE content SET full_text = ?, vault_path = ?, tags_json = ?, metadata_json = ?
		WHERE content_uuid = ?`,
		rec.FullText, rec.VaultPath, string(tagsJSON), string(metaJSON), rec.ContentUUID)
	if err != nil {
		return fmt.Errorf("sqlstore: update content: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sqlstore: update content: no row for %s", rec.ContentUUID)
	}
	return nil
}

// GetPending returns all records awaiting processing.
func (s *Store) GetPending(ctx context.Context) ([]model.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_uuid, source_type, title, authors_json, source_url, source_file_path,
		       full_text, raw_file_hash, status, vault_path, tags_json, metadata_json,
		       created_at, ingested_at, processed_at
		FROM content WHERE status = ? ORDER BY created_at ASC`, string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get pending: %w", err)
	}
	defer rows.Close()

	var out []model.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan pending row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a ContentRecord and (by FK cascade) its annotations
// and processing runs. Cards/exercises are not cascaded here; callers
// apply the orchestrator's documented preserve-by-default policy.
func (s *Store) Delete(ctx context.Context, contentUUID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE content_uuid = ?`, contentUUID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", contentUUID, err)
	}
	return nil
}
