// Package inmem provides a process-local, mutex-guarded session.Store
// suitable for tests and for single-process deployments that do not need
// durability across restarts (see spec §1 Non-goals).
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kory-ai/workbench-core/internal/session"
)

type store struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	messages map[string][]session.Message
	tasks    map[string]session.Task
}

// New constructs an empty in-memory session.Store.
func New() session.Store {
	return &store{
		sessions: make(map[string]session.Session),
		messages: make(map[string][]session.Message),
		tasks:    make(map[string]session.Task),
	}
}

func (s *store) CreateSession(_ context.Context, title, parentID string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := session.Session{
		ID:            uuid.NewString(),
		Title:         title,
		ParentID:      parentID,
		WorkflowState: session.StateIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *store) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *store) ListSessions(_ context.Context) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *store) UpdateSession(_ context.Context, id string, patch session.SessionPatch) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
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
	s.sessions[id] = sess
	return sess, nil
}

func (s *store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	for tid, task := range s.tasks {
		if task.SessionID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *store) SetWorkflowState(_ context.Context, id string, state session.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.WorkflowState = state
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

func (s *store) ClearSessions(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]session.Session)
	s.messages = make(map[string][]session.Message)
	s.tasks = make(map[string]session.Task)
	return nil
}

func (s *store) AddMessage(_ context.Context, msg session.Message) (session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return session.Message{}, session.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	sess := s.sessions[msg.SessionID]
	sess.MessageCount++
	sess.UpdatedAt = msg.CreatedAt
	s.sessions[msg.SessionID] = sess
	return msg, nil
}

func (s *store) GetAllMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]session.Message(nil), s.messages[sessionID]...)
	return out, nil
}

func (s *store) GetRecentMessages(_ context.Context, sessionID string, limit int) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[sessionID]
	if limit <= 0 || limit >= len(all) {
		return append([]session.Message(nil), all...), nil
	}
	start := len(all) - limit
	return append([]session.Message(nil), all[start:]...), nil
}

func (s *store) CreateTask(_ context.Context, task session.Task) (session.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	if task.Status == "" {
		task.Status = session.TaskPending
	}
	s.tasks[task.ID] = task
	return task, nil
}

func (s *store) UpdateTask(_ context.Context, id string, patch session.TaskPatch) (session.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return session.Task{}, session.ErrNotFound
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
	s.tasks[id] = task
	return task, nil
}

func (s *store) GetTask(_ context.Context, id string) (session.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return session.Task{}, session.ErrNotFound
	}
	return task, nil
}

func (s *store) ListActiveTasks(_ context.Context, sessionID string) ([]session.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Task
	for _, task := range s.tasks {
		if task.SessionID != sessionID {
			continue
		}
		if task.Status == session.TaskPending || task.Status == session.TaskActive {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
