// Package config defines the plain configuration value type consumed by the
// manager, provider registry, and tool registry. Loading and validating this
// structure (from a file, environment, or admin API) is an external
// collaborator's responsibility — this package only defines the shape.
package config

import "time"

// Config is the full recognized configuration surface.
type Config struct {
	Server       ServerConfig             `json:"server"`
	Agents       AgentsConfig             `json:"agents"`
	Assignments  map[string]string        `json:"assignments"`
	Fallbacks    map[string][]string      `json:"fallbacks"`
	Providers    map[string]ProviderConfig `json:"providers"`
	MCPServers   map[string]MCPServerConfig `json:"mcpServers"`
	Telegram     TelegramConfig           `json:"telegram"`
	ContextPaths []string                 `json:"contextPaths"`
	DataDirectory string                  `json:"dataDirectory"`
	Safety       SafetyConfig             `json:"safety"`
	Interaction  InteractionConfig        `json:"interaction"`
}

// ServerConfig controls the (externally owned) listen address.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// AgentConfig is the per-role model assignment.
type AgentConfig struct {
	Model          string `json:"model"`
	MaxTokens      *int   `json:"maxTokens,omitempty"`
	ReasoningLevel string `json:"reasoningLevel,omitempty"`
}

// AgentsConfig is the fixed set of roles the Manager drives directly.
type AgentsConfig struct {
	Manager AgentConfig `json:"manager"`
	Coder   AgentConfig `json:"coder"`
	Task    AgentConfig `json:"task"`
}

// ProviderConfig describes one configured LLM backend.
type ProviderConfig struct {
	APIKey             string   `json:"apiKey,omitempty"`
	AuthToken          string   `json:"authToken,omitempty"`
	BaseURL            string   `json:"baseUrl,omitempty"`
	Disabled           bool     `json:"disabled,omitempty"`
	SelectedModels     []string `json:"selectedModels,omitempty"`
	HideModelSelector  bool     `json:"hideModelSelector,omitempty"`
}

// MCPServerConfig describes one configured MCP server the tool registry may
// bridge tools from.
type MCPServerConfig struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// TelegramConfig configures the optional Telegram chat-bot bridge.
type TelegramConfig struct {
	BotToken     string `json:"botToken"`
	AdminID      string `json:"adminId"`
	SecretToken  string `json:"secretToken,omitempty"`
	WebhookURL   string `json:"webhookUrl,omitempty"`
}

// SafetyConfig bounds resource usage per session/turn/tool call.
type SafetyConfig struct {
	MaxTokensPerTurn          int `json:"maxTokensPerTurn"`
	MaxFileSizeBytes          int64 `json:"maxFileSizeBytes"`
	ToolExecutionTimeoutMs    int `json:"toolExecutionTimeoutMs"`
}

// InteractionConfig controls the clarification step of the pipeline.
type InteractionConfig struct {
	ClarifyFirstEnabled bool `json:"clarifyFirstEnabled"`
	MaxClarifyQuestions int  `json:"maxClarifyQuestions"`
}

// Default safety/interaction values used when a Config field is left at its
// zero value, matching spec §6's stated defaults.
const (
	DefaultMaxTokensPerTurn       = 4096
	DefaultToolExecutionTimeoutMs = 60_000
	DefaultMaxClarifyQuestions    = 4
	DefaultClarificationTimeout   = 10 * time.Second
	DefaultPendingPromptTimeout   = 120 * time.Second
	DefaultFallbackDepth          = 25
)

// ToolExecutionTimeout returns the configured per-tool timeout, or the spec
// default if unset.
func (s SafetyConfig) ToolExecutionTimeout() time.Duration {
	if s.ToolExecutionTimeoutMs <= 0 {
		return time.Duration(DefaultToolExecutionTimeoutMs) * time.Millisecond
	}
	return time.Duration(s.ToolExecutionTimeoutMs) * time.Millisecond
}

// MaxTokens returns the configured per-turn token cap, or the spec default
// if unset.
func (s SafetyConfig) MaxTokens() int {
	if s.MaxTokensPerTurn <= 0 {
		return DefaultMaxTokensPerTurn
	}
	return s.MaxTokensPerTurn
}

// MaxQuestions returns the configured clarification question cap, bounded to
// the spec's hard limit of 4.
func (i InteractionConfig) MaxQuestions() int {
	if i.MaxClarifyQuestions <= 0 || i.MaxClarifyQuestions > DefaultMaxClarifyQuestions {
		return DefaultMaxClarifyQuestions
	}
	return i.MaxClarifyQuestions
}
