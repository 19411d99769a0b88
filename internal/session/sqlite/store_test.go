package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/session/sqlite"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetSessionRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := open(t)

	sess, err := store.CreateSession(ctx, "first run", "")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, sess.WorkflowState)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "first run", got.Title)
}

func TestAddMessagePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	sess, err := store.CreateSession(ctx, "t", "")
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, session.Message{SessionID: sess.ID, Role: session.RoleUser, Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.GetAllMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	again, err := reopened.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.MessageCount)
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	store := open(t)
	sess, _ := store.CreateSession(ctx, "t", "")
	_, err := store.AddMessage(ctx, session.Message{SessionID: sess.ID, Role: session.RoleUser, Content: "hi"})
	require.NoError(t, err)
	task, err := store.CreateTask(ctx, session.Task{SessionID: sess.ID})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	_, err = store.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	msgs, err := store.GetAllMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = store.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestTaskTransitionRejectedAcrossBackend(t *testing.T) {
	ctx := context.Background()
	store := open(t)
	sess, _ := store.CreateSession(ctx, "t", "")
	task, err := store.CreateTask(ctx, session.Task{SessionID: sess.ID})
	require.NoError(t, err)

	done := session.TaskDone
	_, err = store.UpdateTask(ctx, task.ID, session.TaskPatch{Status: &done})
	assert.Error(t, err)

	active := session.TaskActive
	updated, err := store.UpdateTask(ctx, task.ID, session.TaskPatch{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, session.TaskActive, updated.Status)
}

func TestListActiveTasksExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	store := open(t)
	sess, _ := store.CreateSession(ctx, "t", "")

	pending, _ := store.CreateTask(ctx, session.Task{SessionID: sess.ID})
	terminal, _ := store.CreateTask(ctx, session.Task{SessionID: sess.ID})
	active := session.TaskActive
	_, err := store.UpdateTask(ctx, terminal.ID, session.TaskPatch{Status: &active})
	require.NoError(t, err)
	done := session.TaskDone
	_, err = store.UpdateTask(ctx, terminal.ID, session.TaskPatch{Status: &done})
	require.NoError(t, err)

	active_, err := store.ListActiveTasks(ctx, sess.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, task := range active_ {
		ids[task.ID] = true
	}
	assert.True(t, ids[pending.ID])
	assert.False(t, ids[terminal.ID])
}

func TestGetRecentMessagesOrdersChronologically(t *testing.T) {
	ctx := context.Background()
	store := open(t)
	sess, _ := store.CreateSession(ctx, "t", "")
	for i := 0; i < 3; i++ {
		_, err := store.AddMessage(ctx, session.Message{SessionID: sess.ID, Role: session.RoleUser, Content: "m"})
		require.NoError(t, err)
	}
	recent, err := store.GetRecentMessages(ctx, sess.ID, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
