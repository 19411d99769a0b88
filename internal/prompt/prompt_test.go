package prompt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/prompt"
)

func TestResolveDeliversReplyToWaiter(t *testing.T) {
	table := prompt.New()
	reqID := table.NewRequest("s1")

	done := make(chan prompt.Reply, 1)
	go func() {
		r, err := table.Wait(context.Background(), reqID, time.Second)
		require.NoError(t, err)
		done <- r
	}()

	// Give the waiter a moment to register before resolving.
	time.Sleep(10 * time.Millisecond)
	assert.True(t, table.Resolve("s1", reqID, prompt.Reply{Selection: "yes"}))

	select {
	case r := <-done:
		assert.Equal(t, "yes", r.Selection)
	case <-time.After(time.Second):
		t.Fatal("waiter never received reply")
	}
}

func TestResolveWithoutRequestIDPicksMostRecent(t *testing.T) {
	table := prompt.New()
	first := table.NewRequest("s1")
	second := table.NewRequest("s1")
	_ = first

	resolved := make(chan string, 1)
	go func() {
		r, err := table.Wait(context.Background(), second, time.Second)
		require.NoError(t, err)
		resolved <- r.Selection
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, table.Resolve("s1", "", prompt.Reply{Selection: "latest"}))
	assert.Equal(t, "latest", <-resolved)
}

func TestWaitTimesOut(t *testing.T) {
	table := prompt.New()
	reqID := table.NewRequest("s1")

	_, err := table.Wait(context.Background(), reqID, 10*time.Millisecond)
	assert.ErrorIs(t, err, prompt.ErrTimedOut)
}

func TestCancelSessionUnblocksAllPending(t *testing.T) {
	table := prompt.New()
	reqA := table.NewRequest("s1")
	reqB := table.NewRequest("s1")

	errs := make(chan error, 2)
	go func() { _, err := table.Wait(context.Background(), reqA, time.Second); errs <- err }()
	go func() { _, err := table.Wait(context.Background(), reqB, time.Second); errs <- err }()

	time.Sleep(10 * time.Millisecond)
	table.CancelSession("s1")

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, prompt.ErrCancelled)
		case <-time.After(time.Second):
			t.Fatal("waiter never unblocked")
		}
	}
}
