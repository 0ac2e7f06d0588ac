package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/modelgate/convctx"
	"github.com/sweetpotato0/modelgate/message"
)

// PostgresStore implements ConversationStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "modelgate",
		SSLMode:  "disable",
	}
}

// NewPostgresStore creates a new PostgreSQL-based conversation store
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTables(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS conversation_messages (
		id VARCHAR(255) PRIMARY KEY,
		conversation_id VARCHAR(255) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conv_messages_conversation
		ON conversation_messages(conversation_id, created_at);
	CREATE TABLE IF NOT EXISTS conversation_contexts (
		conversation_id VARCHAR(255) PRIMARY KEY,
		context JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) GetHistory(ctx context.Context, conversationID string) (*History, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM conversation_messages
		 WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	history := &History{Context: convctx.Context{}}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		var msg message.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode stored message: %w", err)
		}
		history.Messages = append(history.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	var ctxPayload []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT context FROM conversation_contexts WHERE conversation_id = $1`,
		conversationID).Scan(&ctxPayload)
	switch {
	case err == sql.ErrNoRows:
		// No context yet; empty map.
	case err != nil:
		return nil, fmt.Errorf("failed to query context: %w", err)
	default:
		if err := json.Unmarshal(ctxPayload, &history.Context); err != nil {
			return nil, fmt.Errorf("failed to decode stored context: %w", err)
		}
	}
	return history, nil
}

func (s *PostgresStore) Append(ctx context.Context, conversationID string, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (id, conversation_id, payload, created_at)
		 VALUES ($1, $2, $3, $4)`,
		msg.ID, conversationID, payload, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetContext(ctx context.Context, conversationID string, c convctx.Context) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_contexts (conversation_id, context, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET context = EXCLUDED.context, updated_at = EXCLUDED.updated_at`,
		conversationID, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert context: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
