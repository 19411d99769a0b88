// Package session defines the durable session, message, and task entities
// (spec §3) and the Store contract every backend (in-memory, sqlite) must
// satisfy. The Manager is the only writer of WorkflowState; everything else
// treats Session as read-mostly.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WorkflowState is the coarse state machine the Manager drives a session
// through (spec invariants I2/I4, testable property P1).
type WorkflowState string

const (
	StateIdle        WorkflowState = "idle"
	StateAnalyzing   WorkflowState = "analyzing"
	StatePlanning    WorkflowState = "planning"
	StateExecuting   WorkflowState = "executing"
	StateWaitingUser WorkflowState = "waiting_user"
	StateError       WorkflowState = "error"
)

// ValidWorkflowTransition reports whether a WorkflowState transition from
// 'from' to 'to' stays on a valid path through
// idle -> analyzing -> (planning|waiting_user) -> executing -> idle|error
// (spec property P1). Self-transitions are always allowed, matching
// ValidTransition's TaskStatus convention.
func ValidWorkflowTransition(from, to WorkflowState) bool {
	if from == to {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateAnalyzing
	case StateAnalyzing:
		return to == StatePlanning || to == StateWaitingUser || to == StateExecuting || to == StateIdle || to == StateError
	case StateWaitingUser:
		return to == StateAnalyzing || to == StateIdle
	case StatePlanning:
		return to == StateExecuting || to == StateIdle || to == StateError
	case StateExecuting:
		return to == StateIdle || to == StateError
	case StateError:
		return to == StateAnalyzing
	default:
		return false
	}
}

// Role identifies the speaker of a stored Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// TaskStatus is the lifecycle of a spawned worker task (spec invariant I2:
// forward-only transitions).
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskActive      TaskStatus = "active"
	TaskDone        TaskStatus = "done"
	TaskFailed      TaskStatus = "failed"
	TaskInterrupted TaskStatus = "interrupted"
)

type (
	// Session is the top-level conversational container.
	Session struct {
		ID            string
		Title         string
		ParentID      string
		MessageCount  int
		TokensIn      int
		TokensOut     int
		TotalCostUSD  float64
		WorkflowState WorkflowState
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// ToolCallRecord is a completed tool call attached to an assistant
	// message (role=assistant only).
	ToolCallRecord struct {
		ID   string
		Name string
		Args string
	}

	// Message is a single append-only conversation entry.
	Message struct {
		ID         string
		SessionID  string
		Role       Role
		Content    string
		Model      string
		Provider   string
		ToolCallID string // set when Role == RoleTool
		ToolCalls  []ToolCallRecord
		CreatedAt  time.Time
	}

	// Task corresponds one-to-one with a spawned worker.
	Task struct {
		ID          string
		SessionID   string
		Description string
		Domain      string
		Model       string
		Status      TaskStatus
		Plan        string
		Result      string
		Error       string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// SessionPatch describes a partial Session update; nil fields are left
	// unchanged.
	SessionPatch struct {
		Title     *string
		TokensIn  *int
		TokensOut *int
		AddCostUSD *float64
	}

	// TaskPatch describes a partial Task update; nil/empty fields are left
	// unchanged.
	TaskPatch struct {
		Status *TaskStatus
		Plan   *string
		Result *string
		Error  *string
	}

	// Store persists sessions, messages, and tasks. Implementations must
	// cascade Delete to a session's messages and tasks.
	Store interface {
		CreateSession(ctx context.Context, title, parentID string) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		ListSessions(ctx context.Context) ([]Session, error)
		UpdateSession(ctx context.Context, id string, patch SessionPatch) (Session, error)
		DeleteSession(ctx context.Context, id string) error
		SetWorkflowState(ctx context.Context, id string, state WorkflowState) error
		ClearSessions(ctx context.Context) error

		AddMessage(ctx context.Context, msg Message) (Message, error)
		GetAllMessages(ctx context.Context, sessionID string) ([]Message, error)
		GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

		CreateTask(ctx context.Context, task Task) (Task, error)
		UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		ListActiveTasks(ctx context.Context, sessionID string) ([]Task, error)
	}
)

// ErrNotFound is returned when a session, message, or task lookup misses.
var ErrNotFound = errors.New("session: not found")

// ErrInvalidTransition reports a rejected TaskStatus transition.
func ErrInvalidTransition(from, to TaskStatus) error {
	return fmt.Errorf("session: invalid task transition %s -> %s", from, to)
}

// ValidTransition reports whether a TaskStatus transition from 'from' to
// 'to' is allowed under spec invariant I2 (pending -> active ->
// {done|failed|interrupted}, forward-only).
func ValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskPending:
		return to == TaskActive || to == TaskInterrupted || to == TaskFailed
	case TaskActive:
		return to == TaskDone || to == TaskFailed || to == TaskInterrupted
	default:
		return false
	}
}
