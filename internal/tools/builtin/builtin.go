package builtin

import "github.com/kory-ai/workbench-core/internal/tools"

// RegisterAll registers every built-in tool spec into reg. Manager and
// worker setups both call this; role gating happens per-spec via
// AllowedRoles, not by registering a different set.
func RegisterAll(reg *tools.Registry) {
	for _, spec := range []tools.Spec{
		Shell(),
		ReadFile(),
		WriteFile(),
		EditFile(),
		DeleteFile(),
		MoveFile(),
		Diff(),
		Glob(),
		Grep(),
		ListDirectory(),
		WebFetch(),
		WebSearch(),
		AskUser(),
		AskManager(),
	} {
		reg.Register(spec)
	}
}
