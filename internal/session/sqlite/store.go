// Package sqlite implements session.Store on a local pure-Go SQLite file,
// giving sessions, messages, and tasks durability across process restarts
// without a cgo toolchain or an external database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/kory-ai/workbench-core/internal/session"
)

// Store implements session.Store backed by a local SQLite file in WAL mode.
type Store struct {
	db *sql.DB
}

var _ session.Store = (*Store)(nil)

// Open opens (creating if absent) a SQLite-backed session.Store at path and
// runs its schema migrations. A single connection serializes all writers,
// matching the pure-Go driver's recommended usage for a local file.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			total_cost_usd REAL NOT NULL DEFAULT 0,
			workflow_state TEXT NOT NULL DEFAULT 'idle',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_calls TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			description TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id, status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

func unixMilli(t time.Time) int64 { return t.UnixMilli() }
func fromMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (s *Store) CreateSession(ctx context.Context, title, parentID string) (session.Session, error) {
	now := time.Now().UTC()
	sess := session.Session{
		ID:            uuid.NewString(),
		Title:         title,
		ParentID:      parentID,
		WorkflowState: session.StateIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, parent_id, workflow_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.ParentID, string(sess.WorkflowState), unixMilli(now), unixMilli(now),
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite: create session: %w", err)
	}
	return sess, nil
}

func (s *Store) scanSession(row *sql.Row) (session.Session, error) {
	var sess session.Session
	var state string
	var createdAt, updatedAt int64
	err := row.Scan(&sess.ID, &sess.Title, &sess.ParentID, &sess.MessageCount,
		&sess.TokensIn, &sess.TokensOut, &sess.TotalCostUSD, &state, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite: scan session: %w", err)
	}
	sess.WorkflowState = session.WorkflowState(state)
	sess.CreatedAt = fromMilli(createdAt)
	sess.UpdatedAt = fromMilli(updatedAt)
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, parent_id, message_count, tokens_in, tokens_out, total_cost_usd, workflow_state, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return s.scanSession(row)
}

func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, parent_id, message_count, tokens_in, tokens_out, total_cost_usd, workflow_state, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var sess session.Session
		var state string
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.ParentID, &sess.MessageCount,
			&sess.TokensIn, &sess.TokensOut, &sess.TotalCostUSD, &state, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		sess.WorkflowState = session.WorkflowState(state)
		sess.CreatedAt = fromMilli(createdAt)
		sess.UpdatedAt = fromMilli(updatedAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSession(ctx context.Context, id string, patch session.SessionPatch) (session.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	if patch.Title != nil {
		sess.Title = *patch.Title
	}
	if patch.TokensIn != nil {
		sess.TokensIn = *patch.TokensIn
	}
	if patch.TokensOut != nil {
		sess.TokensOut = *patch.TokensOut
	}
	if patch.AddCostUSD != nil {
		sess.TotalCostUSD += *patch.AddCostUSD
	}
	sess.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET title=?, tokens_in=?, tokens_out=?, total_cost_usd=?, updated_at=? WHERE id=?`,
		sess.Title, sess.TokensIn, sess.TokensOut, sess.TotalCostUSD, unixMilli(sess.UpdatedAt), id,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite: update session: %w", err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) SetWorkflowState(ctx context.Context, id string, state session.WorkflowState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET workflow_state=?, updated_at=? WHERE id=?`,
		string(state), unixMilli(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: set workflow state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) ClearSessions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("sqlite: clear sessions: %w", err)
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, msg session.Message) (session.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var toolCallsJSON *string
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return session.Message{}, fmt.Errorf("sqlite: marshal tool calls: %w", err)
		}
		v := string(data)
		toolCallsJSON = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Message{}, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id=?`, msg.SessionID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return session.Message{}, session.ErrNotFound
		}
		return session.Message{}, fmt.Errorf("sqlite: lookup session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, model, provider, tool_call_id, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Model, msg.Provider, msg.ToolCallID, toolCallsJSON, unixMilli(msg.CreatedAt),
	)
	if err != nil {
		return session.Message{}, fmt.Errorf("sqlite: insert message: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1, updated_at = ? WHERE id = ?`,
		unixMilli(msg.CreatedAt), msg.SessionID)
	if err != nil {
		return session.Message{}, fmt.Errorf("sqlite: bump message count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Message{}, fmt.Errorf("sqlite: commit message: %w", err)
	}
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]session.Message, error) {
	var out []session.Message
	for rows.Next() {
		var msg session.Message
		var role string
		var toolCallsJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Model,
			&msg.Provider, &msg.ToolCallID, &toolCallsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		msg.Role = session.Role(role)
		msg.CreatedAt = fromMilli(createdAt)
		if toolCallsJSON.Valid {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) GetAllMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, model, provider, tool_call_id, tool_calls, created_at
		 FROM messages WHERE session_id=? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get all messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]session.Message, error) {
	if limit <= 0 {
		return s.GetAllMessages(ctx, sessionID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, model, provider, tool_call_id, tool_calls, created_at
		 FROM messages WHERE session_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get recent messages: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) CreateTask(ctx context.Context, task session.Task) (session.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = session.TaskPending
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, session_id, description, domain, model, status, plan, result, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.SessionID, task.Description, task.Domain, task.Model, string(task.Status),
		task.Plan, task.Result, task.Error, unixMilli(now), unixMilli(now),
	)
	if err != nil {
		return session.Task{}, fmt.Errorf("sqlite: create task: %w", err)
	}
	return task, nil
}

func (s *Store) scanTask(row *sql.Row) (session.Task, error) {
	var task session.Task
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&task.ID, &task.SessionID, &task.Description, &task.Domain, &task.Model,
		&status, &task.Plan, &task.Result, &task.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return session.Task{}, session.ErrNotFound
	}
	if err != nil {
		return session.Task{}, fmt.Errorf("sqlite: scan task: %w", err)
	}
	task.Status = session.TaskStatus(status)
	task.CreatedAt = fromMilli(createdAt)
	task.UpdatedAt = fromMilli(updatedAt)
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (session.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, description, domain, model, status, plan, result, error, created_at, updated_at
		 FROM tasks WHERE id=?`, id)
	return s.scanTask(row)
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch session.TaskPatch) (session.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return session.Task{}, err
	}
	if patch.Status != nil {
		if !session.ValidTransition(task.Status, *patch.Status) {
			return session.Task{}, session.ErrInvalidTransition(task.Status, *patch.Status)
		}
		task.Status = *patch.Status
	}
	if patch.Plan != nil {
		task.Plan = *patch.Plan
	}
	if patch.Result != nil {
		task.Result = *patch.Result
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	task.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET status=?, plan=?, result=?, error=?, updated_at=? WHERE id=?`,
		string(task.Status), task.Plan, task.Result, task.Error, unixMilli(task.UpdatedAt), id,
	)
	if err != nil {
		return session.Task{}, fmt.Errorf("sqlite: update task: %w", err)
	}
	return task, nil
}

func (s *Store) ListActiveTasks(ctx context.Context, sessionID string) ([]session.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, description, domain, model, status, plan, result, error, created_at, updated_at
		 FROM tasks WHERE session_id=? AND status IN (?, ?) ORDER BY created_at ASC`,
		sessionID, string(session.TaskPending), string(session.TaskActive))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active tasks: %w", err)
	}
	defer rows.Close()

	var out []session.Task
	for rows.Next() {
		var task session.Task
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&task.ID, &task.SessionID, &task.Description, &task.Domain, &task.Model,
			&status, &task.Plan, &task.Result, &task.Error, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		task.Status = session.TaskStatus(status)
		task.CreatedAt = fromMilli(createdAt)
		task.UpdatedAt = fromMilli(updatedAt)
		out = append(out, task)
	}
	return out, rows.Err()
}
