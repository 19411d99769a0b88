package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/streamevent"
	"github.com/kory-ai/workbench-core/internal/trace"
)

// specificityMarkers are the patterns spec §4.9's clarification heuristic
// treats as evidence a message is already specific enough to skip
// clarification: fenced/inline code, file extensions, path prefixes, and
// bulleted/numbered lists.
var specificityMarkers = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile("`[^`\n]+`"),
	regexp.MustCompile(`\.[a-zA-Z][a-zA-Z0-9]{1,5}\b`),
	regexp.MustCompile(`(^|\s)(/|\./|\.\./)[\w./-]+`),
	regexp.MustCompile(`(?m)^\s*([-*]|\d+[.)])\s+\S`),
}

func countSpecificityMarkers(message string) int {
	n := 0
	for _, re := range specificityMarkers {
		if re.MatchString(message) {
			n++
		}
	}
	return n
}

// shouldClarify applies spec §4.9's heuristic: clarify by default, unless
// the message is long and specific enough to plan from directly, or short
// enough to be an obvious trivial fix.
func shouldClarify(message string) bool {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if len(trimmed) < 20 && (strings.Contains(lower, "fix") || strings.Contains(lower, "typo")) {
		return false
	}
	if len(trimmed) > 80 && countSpecificityMarkers(trimmed) >= 2 {
		return false
	}
	return true
}

// yesNoPrefixes and majorBranchWhitelist implement the "no yes/no question
// unless it names a major branch" rule. The six whitelisted phrasings are
// not enumerated in the source spec (an Open Question, see DESIGN.md); this
// project fixes them to the branch points the classifier/routing layer
// itself recognizes, so a clarifying question can legitimately ask which
// branch without degenerating into a disguised yes/no.
var yesNoPrefixes = []string{"is ", "are ", "do ", "does ", "can ", "could ", "should ", "will ", "would ", "did "}

var majorBranchWhitelist = []string{
	"frontend or backend",
	"new feature or bug fix",
	"read-only or write",
	"add or remove",
	"create or update",
	"local or remote",
}

func isDisallowedYesNo(question string) bool {
	lower := strings.ToLower(strings.TrimSpace(question))
	hasYesNoPrefix := false
	for _, p := range yesNoPrefixes {
		if strings.HasPrefix(lower, p) {
			hasYesNoPrefix = true
			break
		}
	}
	if !hasYesNoPrefix {
		return false
	}
	if strings.Contains(lower, " or ") {
		return false
	}
	for _, wl := range majorBranchWhitelist {
		if strings.Contains(lower, wl) {
			return false
		}
	}
	return true
}

type clarifyAction struct {
	Action      string   `json:"action"`
	Questions   []string `json:"questions,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// parseClarifyResponse validates the manager model's JSON clarify decision
// per spec §9's permissive-preamble-extraction note: a provider that
// prefixes prose or wraps the object in a code fence is still accepted, as
// long as exactly one JSON object can be recovered from the text.
func parseClarifyResponse(raw string, maxQuestions int) (clarifyAction, error) {
	extracted := extractJSONObject(raw)
	var out clarifyAction
	if err := json.Unmarshal([]byte(extracted), &out); err != nil {
		return clarifyAction{}, fmt.Errorf("manager: clarify response not JSON: %w", err)
	}

	switch out.Action {
	case "proceed":
		return out, nil
	case "clarify":
		if len(out.Questions) == 0 {
			return clarifyAction{}, errors.New("manager: clarify action with no questions")
		}
		if maxQuestions > 0 && len(out.Questions) > maxQuestions {
			out.Questions = out.Questions[:maxQuestions]
		}
		kept := out.Questions[:0:0]
		for _, q := range out.Questions {
			if !isDisallowedYesNo(q) {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			return clarifyAction{}, errors.New("manager: every clarify question was a disallowed yes/no question")
		}
		out.Questions = kept
		return out, nil
	default:
		return clarifyAction{}, fmt.Errorf("manager: unknown clarify action %q", out.Action)
	}
}

// extractJSONObject strips a surrounding code fence and any leading/
// trailing prose, returning the substring from the first '{' to the last
// '}'. Returns s unmodified if no braces are found.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// clarify runs the clarification step of the pipeline (spec §4.9 step 2).
// It returns message unchanged whenever clarification is disabled, the
// heuristic says to skip it, the manager model declines to ask, or the
// model call itself fails — clarification failures degrade to proceeding
// with the original message rather than aborting the pipeline (spec §7's
// Protocol error handling policy).
func (m *Manager) clarify(ctx context.Context, sessionID string, route routeTarget, message string) string {
	cfg := m.deps.Config
	if cfg == nil || !cfg.Interaction.ClarifyFirstEnabled || !shouldClarify(message) {
		return message
	}

	cctx, cancel := context.WithTimeout(ctx, config.DefaultClarificationTimeout)
	resp, err := m.completeManager(cctx, route, clarifySystemPrompt, message)
	cancel()
	if err != nil {
		m.deps.Logger.Warn(ctx, "clarify call failed, proceeding with original message", "sessionId", sessionID, "err", err)
		return message
	}

	action, err := parseClarifyResponse(responseText(resp), cfg.Interaction.MaxQuestions())
	if err != nil || action.Action != "clarify" {
		return message
	}

	m.setState(ctx, sessionID, session.StateWaitingUser)
	defer m.setState(ctx, sessionID, session.StateAnalyzing)

	var answered []string
	for _, q := range action.Questions {
		if ctx.Err() != nil {
			break
		}
		reqID := m.deps.Prompts.NewRequest(sessionID)
		m.deps.Bus.Publish(streamevent.NewAskUser(sessionID, q, reqID, nil, true))
		m.appendTrace(sessionID, "manager", trace.KindClarificationAsked, map[string]any{"question": q})

		reply, err := m.deps.Prompts.Wait(ctx, reqID, config.DefaultPendingPromptTimeout)
		if err != nil {
			m.appendTrace(sessionID, "manager", trace.KindClarificationTimedOut, map[string]any{"question": q})
			break
		}
		answer := reply.Selection
		if answer == "" {
			answer = reply.Text
		}
		m.appendTrace(sessionID, "manager", trace.KindClarificationAnswered, map[string]any{"question": q, "answer": answer})
		answered = append(answered, fmt.Sprintf("Q: %s\nA: %s", q, answer))
	}

	if len(answered) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\nClarifications:\n")
	for _, qa := range answered {
		b.WriteString(qa)
		b.WriteString("\n")
	}
	if len(action.Assumptions) > 0 {
		b.WriteString("Assumptions:\n")
		for _, a := range action.Assumptions {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
	}
	return b.String()
}
