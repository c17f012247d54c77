// Package store implements domain.Store and domain.KnowledgeStore on SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agenthub/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists conversations, turns, agents, and knowledge documents.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id             TEXT PRIMARY KEY,
		owner_id       TEXT NOT NULL,
		tenant_id      TEXT NOT NULL,
		turn_count     INTEGER NOT NULL DEFAULT 0,
		primary_intent TEXT NOT NULL DEFAULT '',
		agents_used    TEXT NOT NULL DEFAULT '[]',
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_activity  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, tenant_id, last_activity);

	CREATE TABLE IF NOT EXISTS turns (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		turn_index      INTEGER NOT NULL,
		user_message    TEXT NOT NULL,
		agent_reply     TEXT NOT NULL,
		intent          TEXT NOT NULL,
		confidence      REAL NOT NULL,
		agent_id        TEXT,
		decision        TEXT NOT NULL,
		reasoning       TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(conversation_id, turn_index)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		type                TEXT NOT NULL,
		description         TEXT,
		system_prompt       TEXT,
		capabilities        TEXT NOT NULL DEFAULT '[]',
		knowledge_available INTEGER NOT NULL DEFAULT 0,
		usage_count         INTEGER NOT NULL DEFAULT 0,
		owner_id            TEXT NOT NULL,
		tenant_id           TEXT NOT NULL,
		is_public           INTEGER NOT NULL DEFAULT 0,
		active              INTEGER NOT NULL DEFAULT 1,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used           DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents(tenant_id, active);

	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		mime_type   TEXT,
		size        INTEGER DEFAULT 0,
		chunk_count INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		agent_id    TEXT NOT NULL,
		content     TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		token_count INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent ON document_chunks(agent_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastActivity.IsZero() {
		conv.LastActivity = now
	}
	used, err := json.Marshal(conv.AgentsUsed)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, tenant_id, turn_count, primary_intent, agents_used, created_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.TenantID, conv.TurnCount, string(conv.PrimaryIntent), string(used),
		conv.CreatedAt, conv.LastActivity,
	)
	return err
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var (
		conv   domain.Conversation
		intent string
		used   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, tenant_id, turn_count, primary_intent, agents_used, created_at, last_activity
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.OwnerID, &conv.TenantID, &conv.TurnCount, &intent, &used,
		&conv.CreatedAt, &conv.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.PrimaryIntent = domain.Category(intent)
	if err := json.Unmarshal([]byte(used), &conv.AgentsUsed); err != nil {
		return nil, fmt.Errorf("corrupt agents_used for %s: %w", conv.ID, err)
	}
	return &conv, nil
}

// AppendTurn writes the turn and the conversation update in one transaction.
// The conversation update is guarded by an optimistic check on the previous
// turn_count; losing the race returns domain.ErrConflict. The UNIQUE index on
// (conversation_id, turn_index) backs the same guarantee on the insert side.
func (s *SQLiteStore) AppendTurn(ctx context.Context, conv domain.Conversation, turn domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	used, err := json.Marshal(conv.AgentsUsed)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, turn_index, user_message, agent_reply, intent, confidence, agent_id, decision, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, turn.Index, turn.UserMessage, turn.AgentReply,
		string(turn.Intent), turn.Confidence, nullable(turn.AgentID), string(turn.Decision),
		turn.Reasoning, turn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations
		 SET turn_count = ?, primary_intent = ?, agents_used = ?, last_activity = ?
		 WHERE id = ? AND turn_count = ?`,
		conv.TurnCount, string(conv.PrimaryIntent), string(used), conv.LastActivity,
		conv.ID, conv.TurnCount-1,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConflict
	}

	return tx.Commit()
}

// RecentTurns returns up to limit most recent turns, reversed into
// chronological order. Text columns come back untouched.
func (s *SQLiteStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, turn_index, user_message, agent_reply, intent, confidence, agent_id, decision, reasoning, created_at
		 FROM turns WHERE conversation_id = ?
		 ORDER BY turn_index DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			t        domain.Turn
			intent   string
			agentID  sql.NullString
			decision string
		)
		if err := rows.Scan(&t.ConversationID, &t.Index, &t.UserMessage, &t.AgentReply,
			&intent, &t.Confidence, &agentID, &decision, &t.Reasoning, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Intent = domain.Category(intent)
		t.AgentID = agentID.String
		t.Decision = domain.Decision(decision)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) ListActiveAgents(ctx context.Context, ownerID, tenantID string) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, description, system_prompt, capabilities, knowledge_available,
		        usage_count, owner_id, tenant_id, is_public, active, created_at, last_used
		 FROM agents
		 WHERE tenant_id = ? AND active = 1 AND (owner_id = ? OR is_public = 1)
		 ORDER BY usage_count DESC, created_at DESC`, tenantID, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, description, system_prompt, capabilities, knowledge_available,
		        usage_count, owner_id, tenant_id, is_public, active, created_at, last_used
		 FROM agents WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	a, err := scanAgent(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAgent(rows *sql.Rows) (domain.Agent, error) {
	var (
		a            domain.Agent
		description  sql.NullString
		systemPrompt sql.NullString
		caps         string
		lastUsed     sql.NullTime
	)
	if err := rows.Scan(&a.ID, &a.Name, &a.Type, &description, &systemPrompt, &caps,
		&a.Knowledge, &a.UsageCount, &a.OwnerID, &a.TenantID, &a.IsPublic, &a.Active,
		&a.CreatedAt, &lastUsed); err != nil {
		return domain.Agent{}, err
	}
	a.Description = description.String
	a.SystemPrompt = systemPrompt.String
	if err := json.Unmarshal([]byte(caps), &a.Capabilities); err != nil {
		return domain.Agent{}, fmt.Errorf("corrupt capabilities for %s: %w", a.ID, err)
	}
	if lastUsed.Valid {
		a.LastUsed = &lastUsed.Time
	}
	return a, nil
}

// UpsertAgent inserts or refreshes an agent definition. The usage counter and
// last_used timestamp are operational state and survive the update.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent domain.Agent) error {
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	caps, err := json.Marshal(agent.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, type, description, system_prompt, capabilities, knowledge_available,
		                     usage_count, owner_id, tenant_id, is_public, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   type = excluded.type,
		   description = excluded.description,
		   system_prompt = excluded.system_prompt,
		   capabilities = excluded.capabilities,
		   knowledge_available = excluded.knowledge_available,
		   owner_id = excluded.owner_id,
		   tenant_id = excluded.tenant_id,
		   is_public = excluded.is_public,
		   active = excluded.active`,
		agent.ID, agent.Name, agent.Type, agent.Description, agent.SystemPrompt, string(caps),
		agent.Knowledge, agent.UsageCount, agent.OwnerID, agent.TenantID, agent.IsPublic,
		agent.Active, agent.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) IncrementAgentUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		time.Now(), id,
	)
	return err
}

func (s *SQLiteStore) AddDocument(ctx context.Context, doc domain.Document, chunks []domain.DocumentChunk) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, agent_id, name, mime_type, size, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.AgentID, doc.Name, doc.MimeType, doc.Size, doc.ChunkCount, doc.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO document_chunks (id, document_id, agent_id, content, chunk_index, token_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.AgentID, c.Content, c.ChunkIndex, c.TokenCount,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SearchChunks runs a LIKE prefilter per query word; the knowledge engine
// ranks the candidates afterwards.
func (s *SQLiteStore) SearchChunks(ctx context.Context, agentID, query string, limit int) ([]domain.DocumentChunk, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	words := strings.Fields(strings.ToLower(query))

	// Broad match: chunk contains the whole query or any single word.
	clauses := []string{"content LIKE ?"}
	args := []any{agentID, pattern}
	for _, w := range words {
		clauses = append(clauses, "content LIKE ?")
		args = append(args, "%"+w+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, agent_id, content, chunk_index, token_count
		 FROM document_chunks
		 WHERE agent_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		 LIMIT ?`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.AgentID, &c.Content, &c.ChunkIndex, &c.TokenCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, agentID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, name, mime_type, size, chunk_count, created_at
		 FROM documents WHERE agent_id = ? ORDER BY created_at DESC`, agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.AgentID, &d.Name, &d.MimeType, &d.Size, &d.ChunkCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
