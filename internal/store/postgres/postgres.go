package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"questions",
		"question_trail",
		"question_events",
		"question_event_sequences",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) CreateQuestion(ctx context.Context, question store.Question) error {
	status := strings.TrimSpace(question.Status)
	if status == "" {
		status = store.StatusQueued
	}
	const query = `
		INSERT INTO questions (
			id,
			question,
			status,
			answer,
			final_answer,
			answered,
			rounds,
			error,
			checkpoint_seq,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		question.ID,
		question.Question,
		status,
		nullString(question.Answer),
		nullString(question.FinalAnswer),
		question.Answered,
		question.Rounds,
		nullString(question.Error),
		question.CheckpointSeq,
		parseTimestampValue(question.CreatedAt),
		parseTimestampValue(question.UpdatedAt),
	)
	return err
}

const selectQuestion = `
	SELECT id, question, status, answer, final_answer, answered, rounds, error, checkpoint_seq, created_at, updated_at
	FROM questions
`

func (p *PostgresStore) GetQuestion(ctx context.Context, questionID string) (*store.Question, error) {
	row := p.db.QueryRowContext(ctx, selectQuestion+" WHERE id = $1", questionID)
	question, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (p *PostgresStore) ListQuestions(ctx context.Context) ([]store.Question, error) {
	rows, err := p.db.QueryContext(ctx, selectQuestion+" ORDER BY updated_at DESC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Question{}
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, question)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (store.Question, error) {
	var question store.Question
	var answer, finalAnswer, reason sql.NullString
	var createdAt, updatedAt time.Time
	if err := row.Scan(
		&question.ID,
		&question.Question,
		&question.Status,
		&answer,
		&finalAnswer,
		&question.Answered,
		&question.Rounds,
		&reason,
		&question.CheckpointSeq,
		&createdAt,
		&updatedAt,
	); err != nil {
		return store.Question{}, err
	}
	question.Answer = answer.String
	question.FinalAnswer = finalAnswer.String
	question.Error = reason.String
	question.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	question.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return question, nil
}

func (p *PostgresStore) UpdateQuestion(ctx context.Context, question store.Question) error {
	const query = `
		UPDATE questions
		SET
			status = $2,
			answer = $3,
			final_answer = $4,
			answered = $5,
			rounds = $6,
			error = $7,
			checkpoint_seq = GREATEST(checkpoint_seq, $8),
			updated_at = $9
		WHERE id = $1
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		question.ID,
		question.Status,
		nullString(question.Answer),
		nullString(question.FinalAnswer),
		question.Answered,
		question.Rounds,
		nullString(question.Error),
		question.CheckpointSeq,
		parseTimestampValue(question.UpdatedAt),
	)
	return err
}

func (p *PostgresStore) DeleteQuestion(ctx context.Context, questionID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DELETE FROM question_event_sequences WHERE question_id = $1", questionID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM questions WHERE id = $1", questionID); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// AppendTrail upserts nodes by (question_id, node_id). New nodes get the next trail seq; replaced nodes keep theirs.
func (p *PostgresStore) AppendTrail(ctx context.Context, questionID string, nodes []store.TrailNode) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lastSeq int64
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM question_trail WHERE question_id = $1", questionID).Scan(&lastSeq); err != nil {
		return err
	}
	const query = `
		INSERT INTO question_trail (
			question_id,
			node_id,
			parent_id,
			branch_point_id,
			sender,
			content,
			kind,
			attributes,
			seq,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (question_id, node_id)
		DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			branch_point_id = EXCLUDED.branch_point_id,
			sender = EXCLUDED.sender,
			content = EXCLUDED.content,
			kind = EXCLUDED.kind,
			attributes = EXCLUDED.attributes
	`
	for _, node := range nodes {
		attributes := node.Attributes
		if attributes == nil {
			attributes = map[string]any{}
		}
		var encoded []byte
		encoded, err = json.Marshal(attributes)
		if err != nil {
			return err
		}
		lastSeq++
		if _, err = tx.ExecContext(
			ctx,
			query,
			questionID,
			node.ID,
			nullString(node.ParentID),
			nullString(node.BranchPointID),
			node.Sender,
			node.Content,
			nullString(node.Kind),
			encoded,
			lastSeq,
			parseTimestampValue(node.CreatedAt),
		); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func (p *PostgresStore) ListTrail(ctx context.Context, questionID string) ([]store.TrailNode, error) {
	const query = `
		SELECT question_id, node_id, parent_id, branch_point_id, sender, content, kind, attributes, seq, created_at
		FROM question_trail
		WHERE question_id = $1
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.TrailNode{}
	for rows.Next() {
		var node store.TrailNode
		var parentID, branchPointID, kind sql.NullString
		var attributes []byte
		var createdAt time.Time
		if err := rows.Scan(
			&node.QuestionID,
			&node.ID,
			&parentID,
			&branchPointID,
			&node.Sender,
			&node.Content,
			&kind,
			&attributes,
			&node.Seq,
			&createdAt,
		); err != nil {
			return nil, err
		}
		node.ParentID = parentID.String
		node.BranchPointID = branchPointID.String
		node.Kind = kind.String
		node.Attributes = decodeJSONMap(attributes)
		node.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		results = append(results, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, event store.QuestionEvent) error {
	event.Type = store.NormalizeEventType(event.Type)
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.Timestamp = timestamp
	traceID := strings.TrimSpace(event.TraceID)
	var traceIDValue any
	if traceID == "" {
		traceIDValue = nil
	} else if _, err := uuid.Parse(traceID); err != nil {
		traceIDValue = nil
	} else {
		traceIDValue = traceID
	}
	const query = `
		INSERT INTO question_events (question_id, seq, type, timestamp, source, trace_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, query, event.QuestionID, event.Seq, event.Type, parseTimestampValue(timestamp), event.Source, traceIDValue, encoded); err != nil {
		return err
	}
	if err = applyQuestionStateUpdateTx(ctx, tx, event); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func (p *PostgresStore) ListEvents(ctx context.Context, questionID string, afterSeq int64) ([]store.QuestionEvent, error) {
	const query = `
		SELECT question_id, seq, type, timestamp, source, trace_id, payload
		FROM question_events
		WHERE question_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, questionID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.QuestionEvent{}
	for rows.Next() {
		var payloadBytes []byte
		var timestamp time.Time
		var traceID sql.NullString
		var event store.QuestionEvent
		if err := rows.Scan(&event.QuestionID, &event.Seq, &event.Type, &timestamp, &event.Source, &traceID, &payloadBytes); err != nil {
			return nil, err
		}
		event.Timestamp = timestamp.UTC().Format(time.RFC3339Nano)
		if traceID.Valid {
			event.TraceID = traceID.String
		}
		if len(payloadBytes) > 0 {
			payload := map[string]any{}
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				return nil, err
			}
			event.Payload = payload
		} else {
			event.Payload = map[string]any{}
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) NextSeq(ctx context.Context, questionID string) (int64, error) {
	const query = `
		INSERT INTO question_event_sequences (question_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (question_id)
		DO UPDATE SET last_seq = question_event_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := p.db.QueryRowContext(ctx, query, questionID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func applyQuestionStateUpdateTx(ctx context.Context, tx *sql.Tx, event store.QuestionEvent) error {
	update, ok := store.QuestionUpdateFromEvent(event)
	if !ok {
		const touch = `
			UPDATE questions
			SET checkpoint_seq = GREATEST(checkpoint_seq, $2), updated_at = $3
			WHERE id = $1
		`
		_, err := tx.ExecContext(ctx, touch, event.QuestionID, event.Seq, parseTimestampValue(event.Timestamp))
		return err
	}

	const query = `
		UPDATE questions
		SET
			status = COALESCE(NULLIF($2, ''), status),
			answer = CASE
				WHEN NULLIF($3, '') IS NOT NULL THEN $3
				ELSE answer
			END,
			final_answer = CASE
				WHEN NULLIF($4, '') IS NOT NULL THEN $4
				ELSE final_answer
			END,
			answered = answered OR $5,
			rounds = GREATEST(rounds, $6),
			error = CASE
				WHEN NULLIF($7, '') IS NOT NULL THEN $7
				ELSE error
			END,
			checkpoint_seq = GREATEST(checkpoint_seq, $8),
			updated_at = $9
		WHERE id = $1
	`
	_, err := tx.ExecContext(
		ctx,
		query,
		event.QuestionID,
		update.Status,
		update.Answer,
		update.FinalAnswer,
		update.Answered,
		update.Rounds,
		update.Error,
		event.Seq,
		parseTimestampValue(event.Timestamp),
	)
	return err
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func decodeJSONMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}
