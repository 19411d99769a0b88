package builtin

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// unifiedDiff renders a unified diff of before -> after, labeled with path
// on both sides (this project never diffs across renamed files).
func unifiedDiff(path, before, after string) string {
	edits := myers.ComputeEdits(span.URIFromPath(path), before, after)
	return fmt.Sprint(gotextdiff.ToUnified(path, path, before, edits))
}

// lineDelta reports how many lines were added and removed going from
// before to after, used to populate ChangeSummary.LinesAdded/LinesDeleted.
func lineDelta(path, before, after string) (added, deleted int) {
	edits := myers.ComputeEdits(span.URIFromPath(path), before, after)
	unified := gotextdiff.ToUnified(path, path, before, edits)
	for _, hunk := range unified.Hunks {
		for _, line := range hunk.Lines {
			switch line.Kind {
			case gotextdiff.Insert:
				added++
			case gotextdiff.Delete:
				deleted++
			}
		}
	}
	return added, deleted
}
