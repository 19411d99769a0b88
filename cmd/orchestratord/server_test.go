package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/manager"
	"github.com/kory-ai/workbench-core/internal/prompt"
	"github.com/kory-ai/workbench-core/internal/provider"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/session/inmem"
	"github.com/kory-ai/workbench-core/internal/telemetry"
	"github.com/kory-ai/workbench-core/internal/tools"
)

func newTestApp(t *testing.T) (*app, session.Store) {
	t.Helper()
	sessions := inmem.New()
	eventBus := bus.New()
	mgr := manager.New(manager.Deps{
		Sessions:  sessions,
		Bus:       eventBus,
		Providers: provider.NewRegistry(nil),
		Tools:     tools.NewRegistry(),
		Ledger:    ledger.New(),
		Prompts:   prompt.New(),
		Logger:    telemetry.NewNoopLogger(),
		WorkDir:   func(string) string { return t.TempDir() },
	})
	return &app{manager: mgr, sessions: sessions, bus: eventBus, logger: telemetry.NewNoopLogger()}, sessions
}

func TestHandleCreateSessionReturnsIdleSession(t *testing.T) {
	a, _ := newTestApp(t)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"title":"demo"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "demo", got.Title)
	assert.Equal(t, session.StateIdle, got.WorkflowState)
	assert.NotEmpty(t, got.ID)
}

func TestHandleSendMessageRejectsUnknownSession(t *testing.T) {
	a, _ := newTestApp(t)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodPost, "/sessions/missing/messages", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSendMessageRejectsEmptyText(t *testing.T) {
	a, sessions := newTestApp(t)
	sess, err := sessions.CreateSession(t.Context(), "demo", "")
	require.NoError(t, err)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", bytes.NewBufferString(`{"text":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSendMessagePersistsUserMessageAndStartsProcessing(t *testing.T) {
	a, sessions := newTestApp(t)
	sess, err := sessions.CreateSession(t.Context(), "demo", "")
	require.NoError(t, err)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/messages", bytes.NewBufferString(`{"text":"fix the bug"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	msgs, err := sessions.GetAllMessages(t.Context(), sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "fix the bug", msgs[0].Content)

	a.manager.Cancel()
}

func TestHandleGetChangesEmptyForNewSession(t *testing.T) {
	a, sessions := newTestApp(t)
	sess, err := sessions.CreateSession(t.Context(), "demo", "")
	require.NoError(t, err)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/changes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHandleStatusReportsNoActiveSessions(t *testing.T) {
	a, _ := newTestApp(t)
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got manager.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.ActiveSessions)
	assert.False(t, got.YoloMode)
}
