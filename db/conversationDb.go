package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"socratic/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var postgresSchema string

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository persists conversation records and the per-message log.
// SaveConversation is an upsert keyed by session id.
type ConversationRepository interface {
	SaveConversation(ctx context.Context, record *models.ConversationRecord) error
	AppendMessage(ctx context.Context, entry *models.MessageLogEntry) error
	GetConversationsByOwner(ctx context.Context, owner string) ([]*models.ConversationRecord, error)
	GetConversation(ctx context.Context, owner, sessionID string) (*models.ConversationRecord, error)
	GetMessages(ctx context.Context, owner, sessionID string) ([]*models.MessageLogEntry, error)
	Close() error
}

type PostgresConversationRepository struct {
	db *sql.DB
}

func NewPostgresConversationRepository(databaseURL string) (*PostgresConversationRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresConversationRepository{db: db}, nil
}

// EnsureSchema creates the schema and tables if they are missing.
func (r *PostgresConversationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *PostgresConversationRepository) SaveConversation(ctx context.Context, record *models.ConversationRecord) error {
	turnsJSON, err := json.Marshal(record.Turns)
	if err != nil {
		return fmt.Errorf("failed to marshal turns: %w", err)
	}

	var evaluationJSON []byte
	if record.Evaluation != nil {
		evaluationJSON, err = json.Marshal(record.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation: %w", err)
		}
	}

	query := `
		INSERT INTO socratic.conversations
			(session_id, user_email, schema_version, topic, category, variant, turns, evaluation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			turns = EXCLUDED.turns,
			evaluation = EXCLUDED.evaluation,
			updated_at = EXCLUDED.updated_at
		WHERE socratic.conversations.updated_at <= EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		record.SessionID, record.Owner, record.SchemaVersion, record.Topic, record.Category,
		record.Variant, turnsJSON, evaluationJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", record.SessionID, err)
	}

	return nil
}

func (r *PostgresConversationRepository) AppendMessage(ctx context.Context, entry *models.MessageLogEntry) error {
	query := `
		INSERT INTO socratic.messages (session_id, user_email, user_text, bot_text, topic, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		entry.SessionID, entry.Owner, entry.UserText, entry.BotText, entry.Topic, entry.Category, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message for %s: %w", entry.SessionID, err)
	}

	return nil
}

func (r *PostgresConversationRepository) GetConversationsByOwner(ctx context.Context, owner string) ([]*models.ConversationRecord, error) {
	query := `
		SELECT session_id, user_email, schema_version, topic, category, variant, turns, evaluation, created_at, updated_at
		FROM socratic.conversations
		WHERE user_email = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	records := []*models.ConversationRecord{}
	for rows.Next() {
		record, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return records, nil
}

func (r *PostgresConversationRepository) GetConversation(ctx context.Context, owner, sessionID string) (*models.ConversationRecord, error) {
	query := `
		SELECT session_id, user_email, schema_version, topic, category, variant, turns, evaluation, created_at, updated_at
		FROM socratic.conversations
		WHERE user_email = $1 AND session_id = $2`

	record, err := scanConversation(r.db.QueryRowContext(ctx, query, owner, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return record, nil
}

func (r *PostgresConversationRepository) GetMessages(ctx context.Context, owner, sessionID string) ([]*models.MessageLogEntry, error) {
	query := `
		SELECT session_id, user_email, user_text, bot_text, topic, category, created_at
		FROM socratic.messages
		WHERE user_email = $1 AND session_id = $2
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, owner, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	entries := []*models.MessageLogEntry{}
	for rows.Next() {
		entry := &models.MessageLogEntry{}
		var category sql.NullString
		err := rows.Scan(&entry.SessionID, &entry.Owner, &entry.UserText, &entry.BotText, &entry.Topic, &category, &entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		entry.Category = category.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return entries, nil
}

func (r *PostgresConversationRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.ConversationRecord, error) {
	record := &models.ConversationRecord{}
	var (
		category       sql.NullString
		turnsJSON      []byte
		evaluationJSON []byte
	)

	err := row.Scan(&record.SessionID, &record.Owner, &record.SchemaVersion, &record.Topic, &category,
		&record.Variant, &turnsJSON, &evaluationJSON, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	record.Category = category.String

	if err := json.Unmarshal(turnsJSON, &record.Turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turns: %w", err)
	}
	if len(evaluationJSON) > 0 {
		record.Evaluation = &models.EvaluationResult{}
		if err := json.Unmarshal(evaluationJSON, record.Evaluation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
		}
	}

	return record, nil
}
