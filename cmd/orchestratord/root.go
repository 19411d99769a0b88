package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// serveOptions collects every flag/env value needed to wire a Manager and
// its HTTP surface. There is deliberately no file path here: configuration
// loading is out of scope (see main.go's doc comment).
type serveOptions struct {
	host string
	port int

	dataDir   string
	sessionDB string // empty = in-memory session store
	traceFile string // empty = in-memory trace sink

	anthropicAPIKey string
	anthropicModel  string
	openaiAPIKey    string
	openaiModel     string
	bedrockRegion   string
	bedrockModel    string

	managerModel string
	yolo         bool
	clarifyFirst bool
}

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}

	root := &cobra.Command{
		Use:   "orchestratord",
		Short: "orchestratord runs the multi-agent orchestrator as an HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.host, "host", envOr("ORCHESTRATORD_HOST", "localhost"), "listen host")
	flags.IntVar(&opts.port, "port", envOrInt("ORCHESTRATORD_PORT", 8090), "listen port")
	flags.StringVar(&opts.dataDir, "data-dir", envOr("ORCHESTRATORD_DATA_DIR", "./data"), "working directory root for session workspaces and snapshots")
	flags.StringVar(&opts.sessionDB, "session-db", envOr("ORCHESTRATORD_SESSION_DB", ""), "sqlite file for durable session storage (default: in-memory)")
	flags.StringVar(&opts.traceFile, "trace-file", envOr("ORCHESTRATORD_TRACE_FILE", ""), "JSONL file to append execution trace events to (default: in-memory)")

	flags.StringVar(&opts.anthropicAPIKey, "anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key (enables the anthropic provider)")
	flags.StringVar(&opts.anthropicModel, "anthropic-default-model", envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5"), "default Anthropic model id")
	flags.StringVar(&opts.openaiAPIKey, "openai-api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key (enables the openai provider)")
	flags.StringVar(&opts.openaiModel, "openai-default-model", envOr("OPENAI_DEFAULT_MODEL", "gpt-4o"), "default OpenAI model id")
	flags.StringVar(&opts.bedrockRegion, "bedrock-region", os.Getenv("AWS_REGION"), "AWS region (enables the bedrock provider when set)")
	flags.StringVar(&opts.bedrockModel, "bedrock-default-model", envOr("BEDROCK_DEFAULT_MODEL", "anthropic.claude-sonnet-4-5-v1:0"), "default Bedrock model id")

	flags.StringVar(&opts.managerModel, "manager-model", envOr("ORCHESTRATORD_MANAGER_MODEL", ""), "provider:model the manager classifies/clarifies/plans with (default: anthropic:claude-sonnet-4-5)")
	flags.BoolVar(&opts.yolo, "yolo", false, "auto-confirm tool-initiated ask_user prompts instead of blocking")
	flags.BoolVar(&opts.clarifyFirst, "clarify-first", true, "ask clarifying questions before planning ambiguous requests")

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
