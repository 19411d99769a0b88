package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kory-ai/workbench-core/internal/ledger"
)

func TestAppendAndGetAccumulates(t *testing.T) {
	l := ledger.New()
	l.Append("s1", ledger.ChangeSummary{Path: "a.txt", LinesAdded: 1, Operation: "create"})
	l.Append("s1", ledger.ChangeSummary{Path: "b.txt", LinesAdded: 2, Operation: "edit"})

	got := l.Get("s1")
	assert.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].Path)
}

func TestClearEmptiesSessionOnly(t *testing.T) {
	l := ledger.New()
	l.Append("s1", ledger.ChangeSummary{Path: "a.txt"})
	l.Append("s2", ledger.ChangeSummary{Path: "b.txt"})

	l.Clear("s1")
	assert.Empty(t, l.Get("s1"))
	assert.Len(t, l.Get("s2"), 1)
}

func TestRemoveSplitsRemovedAndKept(t *testing.T) {
	l := ledger.New()
	l.Append("s1", ledger.ChangeSummary{Path: "a.ts", Operation: "create"})
	l.Append("s1", ledger.ChangeSummary{Path: "b.ts", Operation: "edit"})

	removed := l.Remove("s1", []string{"a.ts"})
	assert.Len(t, removed, 1)
	assert.Equal(t, "a.ts", removed[0].Path)

	remaining := l.Get("s1")
	assert.Len(t, remaining, 1)
	assert.Equal(t, "b.ts", remaining[0].Path)
}
