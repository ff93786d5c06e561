package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"secondbrain/internal/model"
)

// SaveCard upserts a SpacedRepCard by its ID.
func (s *Store) SaveCard(ctx context.Context, c model.SpacedRepCard) error {
	hintsJSON, _ := json.Marshal(c.Hints)
	tagsJSON, _ := json.Marshal(c.Tags)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaced_rep_cards
		(id, card_type, front, back, hints_json, tags_json, source_content_uuid, source_concept,
		 state, stability, difficulty, due_date, last_reviewed, scheduled_days, repetitions,
		 lapses, total_reviews, correct_reviews)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			card_type=excluded.card_type, front=excluded.front, back=excluded.back,
			hints_json=excluded.hints_json, tags_json=excluded.tags_json,
			source_content_uuid=excluded.source_content_uuid, source_concept=excluded.source_concept,
			state=excluded.state, stability=excluded.stability, difficulty=excluded.difficulty,
			due_date=excluded.due_date, last_reviewed=excluded.last_reviewed,
			scheduled_days=excluded.scheduled_days, repetitions=excluded.repetitions,
			lapses=excluded.lapses, total_reviews=excluded.total_reviews,
			correct_reviews=excluded.correct_reviews`,
		c.ID, string(c.CardType), c.Front, c.Back, string(hintsJSON), string(tagsJSON),
		c.SourceContentUUID, c.SourceConcept, string(c.State), c.Stability, c.Difficulty,
		c.DueDate, c.LastReviewed, c.ScheduledDays, c.Repetitions, c.Lapses, c.TotalReviews,
		c.CorrectReviews)
	if err != nil {
		return fmt.Errorf("sqlstore: save card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard loads one card by id.
func (s *Store) GetCard(ctx context.Context, id string) (model.SpacedRepCard, error) {
	row := s.db.QueryRowContext(ctx, cardSelectCols+`WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		return model.SpacedRepCard{}, fmt.Errorf("sqlstore: get card %s: %w", id, err)
	}
	return c, nil
}

// DueCards returns cards with due_date <= asOf, ordered soonest-first.
// Cards in the new state are excluded; a limit <= 0 means no limit.
func (s *Store) DueCards(ctx context.Context, asOf time.Time, limit int) ([]model.SpacedRepCard, error) {
	query := cardSelectCols + `WHERE due_date <= ? AND state != ? ORDER BY due_date ASC`
	args := []any{asOf, string(model.CardNew)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: due cards: %w", err)
	}
	defer rows.Close()

	var out []model.SpacedRepCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan due card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CardsByConcept returns every card grounded on the given canonical
// concept name, used to avoid regenerating duplicate cards (spec.md §6).
func (s *Store) CardsByConcept(ctx context.Context, concept string) ([]model.SpacedRepCard, error) {
	rows, err := s.db.QueryContext(ctx, cardSelectCols+`WHERE source_concept = ?`, concept)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: cards by concept: %w", err)
	}
	defer rows.Close()

	var out []model.SpacedRepCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan concept card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllCards returns every card in the store, for mastery's batched
// aggregation (fetch once, explode by tag, group in-memory) rather
// than issuing one query per topic (spec.md §4.14).
func (s *Store) AllCards(ctx context.Context) ([]model.SpacedRepCard, error) {
	rows, err := s.db.QueryContext(ctx, cardSelectCols)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: all cards: %w", err)
	}
	defer rows.Close()

	var out []model.SpacedRepCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const cardSelectCols = `
	SELECT id, card_type, front, back, hints_json, tags_json, source_content_uuid, source_concept,
	       state, stability, difficulty, due_date, last_reviewed, scheduled_days, repetitions,
	       lapses, total_reviews, correct_reviews
	FROM spaced_rep_cards
`

func scanCard(row rowScanner) (model.SpacedRepCard, error) {
	var c model.SpacedRepCard
	var cardType, state string
	var hintsJSON, tagsJSON sql.NullString
	var lastReviewed sql.NullTime
	var scheduledDays, repetitions, lapses, totalReviews, correctReviews sql.NullInt64

	if err := row.Scan(&c.ID, &cardType, &c.Front, &c.Back, &hintsJSON, &tagsJSON,
		&c.SourceContentUUID, &c.SourceConcept, &state, &c.Stability, &c.Difficulty, &c.DueDate,
		&lastReviewed, &scheduledDays, &repetitions, &lapses, &totalReviews, &correctReviews); err != nil {
		return model.SpacedRepCard{}, err
	}

	c.CardType = model.CardType(cardType)
	c.State = model.CardState(state)
	if lastReviewed.Valid {
		t := lastReviewed.Time
		c.LastReviewed = &t
	}
	c.ScheduledDays = int(scheduledDays.Int64)
	c.Repetitions = int(repetitions.Int64)
	c.Lapses = int(lapses.Int64)
	c.TotalReviews = int(totalReviews.Int64)
	c.CorrectReviews = int(correctReviews.Int64)
	if hintsJSON.Valid {
		_ = json.Unmarshal([]byte(hintsJSON.String), &c.Hints)
	}
	if tagsJSON.Valid {
		_ = json.Unmarshal([]byte(tagsJSON.String), &c.Tags)
	}
	return c, nil
}

// SaveExercise upserts an Exercise and its content links.
func (s *Store) SaveExercise(ctx context.Context, e model.Exercise) error {
	hintsJSON, _ := json.Marshal(e.Hints)
	pointsJSON, _ := json.Marshal(e.ExpectedKeyPoints)
	testsJSON, _ := json.Marshal(e.TestCases)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin save exercise: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exercises
		(id, exercise_type, topic, difficulty, prompt, hints_json, expected_key_points_json,
		 worked_example, follow_up_problem, language, starter_code, solution_code,
		 test_cases_json, buggy_code, estimated_time_minutes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			exercise_type=excluded.exercise_type, topic=excluded.topic, difficulty=excluded.difficulty,
			prompt=excluded.prompt, hints_json=excluded.hints_json,
			expected_key_points_json=excluded.expected_key_points_json,
			worked_example=excluded.worked_example, follow_up_problem=excluded.follow_up_problem,
			language=excluded.language, starter_code=excluded.starter_code,
			solution_code=excluded.solution_code, test_cases_json=excluded.test_cases_json,
			buggy_code=excluded.buggy_code, estimated_time_minutes=excluded.estimated_time_minutes`,
		e.ID, string(e.ExerciseType), e.Topic, string(e.Difficulty), e.Prompt, string(hintsJSON),
		string(pointsJSON), e.WorkedExample, e.FollowUpProblem, e.Language, e.StarterCode,
		e.SolutionCode, string(testsJSON), e.BuggyCode, e.EstimatedTimeMinutes)
	if err != nil {
		return fmt.Errorf("sqlstore: save exercise %s: %w", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM exercise_content_links WHERE exercise_id = ?`, e.ID); err != nil {
		return fmt.Errorf("sqlstore: clear exercise links %s: %w", e.ID, err)
	}
	for _, uuid := range e.ContentUUIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO exercise_content_links (exercise_id, content_uuid) VALUES (?,?)`, e.ID, uuid); err != nil {
			return fmt.Errorf("sqlstore: link exercise %s to %s: %w", e.ID, uuid, err)
		}
	}

	return tx.Commit()
}

// GetExercise loads one exercise with its content links by id.
func (s *Store) GetExercise(ctx context.Context, id string) (model.Exercise, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exercise_type, topic, difficulty, prompt, hints_json, expected_key_points_json,
		       worked_example, follow_up_problem, language, starter_code, solution_code,
		       test_cases_json, buggy_code, estimated_time_minutes
		FROM exercises WHERE id = ?`, id)

	var e model.Exercise
	var exerciseType, difficulty string
	var hintsJSON, pointsJSON, testsJSON sql.NullString
	if err := row.Scan(&e.ID, &exerciseType, &e.Topic, &difficulty, &e.Prompt, &hintsJSON,
		&pointsJSON, &e.WorkedExample, &e.FollowUpProblem, &e.Language, &e.StarterCode,
		&e.SolutionCode, &testsJSON, &e.BuggyCode, &e.EstimatedTimeMinutes); err != nil {
		return model.Exercise{}, fmt.Errorf("sqlstore: get exercise %s: %w", id, err)
	}
	e.ExerciseType = model.ExerciseType(exerciseType)
	e.Difficulty = model.Difficulty(difficulty)
	if hintsJSON.Valid {
		_ = json.Unmarshal([]byte(hintsJSON.String), &e.Hints)
	}
	if pointsJSON.Valid {
		_ = json.Unmarshal([]byte(pointsJSON.String), &e.ExpectedKeyPoints)
	}
	if testsJSON.Valid {
		_ = json.Unmarshal([]byte(testsJSON.String), &e.TestCases)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content_uuid FROM exercise_content_links WHERE exercise_id = ?`, id)
	if err != nil {
		return model.Exercise{}, fmt.Errorf("sqlstore: load exercise links %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return model.Exercise{}, fmt.Errorf("sqlstore: scan exercise link: %w", err)
		}
		e.ContentUUIDs = append(e.ContentUUIDs, uuid)
	}
	return e, rows.Err()
}

// ExercisesByTopic returns every stored exercise tagged with topic, for
// the session composer's existing_only/prefer_existing source
// preference (spec.md §4.13).
func (s *Store) ExercisesByTopic(ctx context.Context, topic string) ([]model.Exercise, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exercise_type, topic, difficulty, prompt, hints_json, expected_key_points_json,
		       worked_example, follow_up_problem, language, starter_code, solution_code,
		       test_cases_json, buggy_code, estimated_time_minutes
		FROM exercises WHERE topic = ?`, topic)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: exercises by topic %s: %w", topic, err)
	}
	defer rows.Close()

	var out []model.Exercise
	for rows.Next() {
		var e model.Exercise
		var exerciseType, difficulty string
		var hintsJSON, pointsJSON, testsJSON sql.NullString
		if err := rows.Scan(&e.ID, &exerciseType, &e.Topic, &difficulty, &e.Prompt, &hintsJSON,
			&pointsJSON, &e.WorkedExample, &e.FollowUpProblem, &e.Language, &e.StarterCode,
			&e.SolutionCode, &testsJSON, &e.BuggyCode, &e.EstimatedTimeMinutes); err != nil {
			return nil, fmt.Errorf("sqlstore: scan exercise by topic: %w", err)
		}
		e.ExerciseType = model.ExerciseType(exerciseType)
		e.Difficulty = model.Difficulty(difficulty)
		if hintsJSON.Valid {
			_ = json.Unmarshal([]byte(hintsJSON.String), &e.Hints)
		}
		if pointsJSON.Valid {
			_ = json.Unmarshal([]byte(pointsJSON.String), &e.ExpectedKeyPoints)
		}
		if testsJSON.Valid {
			_ = json.Unmarshal([]byte(testsJSON.String), &e.TestCases)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveMasterySnapshot upserts a daily per-topic mastery rollup, keyed
// by (snapshot_date, topic_path).
func (s *Store) SaveMasterySnapshot(ctx context.Context, snap model.MasterySnapshot) error {
	typesJSON, _ := json.Marshal(snap.SuggestedExerciseTypes)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mastery_snapshots
		(snapshot_date, topic_path, practice_count, success_rate, mastery_score, trend,
		 retention_estimate, last_practiced, days_since_review, recommendation,
		 suggested_exercise_types_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(snapshot_date, topic_path) DO UPDATE SET
			practice_count=excluded.practice_count, success_rate=excluded.success_rate,
			mastery_score=excluded.mastery_score, trend=excluded.trend,
			retention_estimate=excluded.retention_estimate, last_practiced=excluded.last_practiced,
			days_since_review=excluded.days_since_review, recommendation=excluded.recommendation,
			suggested_exercise_types_json=excluded.suggested_exercise_types_json`,
		snap.SnapshotDate, snap.TopicPath, snap.PracticeCount, snap.SuccessRate, snap.MasteryScore,
		string(snap.Trend), snap.RetentionEstimate, snap.LastPracticed, snap.DaysSinceReview,
		snap.Recommendation, string(typesJSON))
	if err != nil {
		return fmt.Errorf("sqlstore: save mastery snapshot %s/%s: %w", snap.TopicPath, snap.SnapshotDate, err)
	}
	return nil
}

// MasteryHistory returns every snapshot for topicPath, oldest first,
// feeding the learning-curve forecast.
func (s *Store) MasteryHistory(ctx context.Context, topicPath string) ([]model.MasterySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_date, topic_path, practice_count, success_rate, mastery_score, trend,
		       retention_estimate, last_practiced, days_since_review, recommendation,
		       suggested_exercise_types_json
		FROM mastery_snapshots WHERE topic_path = ? ORDER BY snapshot_date ASC`, topicPath)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: mastery history %s: %w", topicPath, err)
	}
	defer rows.Close()

	var out []model.MasterySnapshot
	for rows.Next() {
		var snap model.MasterySnapshot
		var trend string
		var successRate sql.NullFloat64
		var lastPracticed sql.NullTime
		var daysSinceReview sql.NullInt64
		var typesJSON sql.NullString

		if err := rows.Scan(&snap.SnapshotDate, &snap.TopicPath, &snap.PracticeCount, &successRate,
			&snap.MasteryScore, &trend, &snap.RetentionEstimate, &lastPracticed, &daysSinceReview,
			&snap.Recommendation, &typesJSON); err != nil {
			return nil, fmt.Errorf("sqlstore: scan mastery snapshot: %w", err)
		}
		snap.Trend = model.Trend(trend)
		if successRate.Valid {
			v := successRate.Float64
			snap.SuccessRate = &v
		}
		if lastPracticed.Valid {
			t := lastPracticed.Time
			snap.LastPracticed = &t
		}
		if daysSinceReview.Valid {
			v := int(daysSinceReview.Int64)
			snap.DaysSinceReview = &v
		}
		if typesJSON.Valid {
			_ = json.Unmarshal([]byte(typesJSON.String), &snap.SuggestedExerciseTypes)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
