package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/config"
	"github.com/kory-ai/workbench-core/internal/ledger"
	"github.com/kory-ai/workbench-core/internal/manager"
	"github.com/kory-ai/workbench-core/internal/prompt"
	"github.com/kory-ai/workbench-core/internal/provider"
	"github.com/kory-ai/workbench-core/internal/provider/anthropic"
	"github.com/kory-ai/workbench-core/internal/provider/bedrock"
	"github.com/kory-ai/workbench-core/internal/provider/openai"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/session/inmem"
	"github.com/kory-ai/workbench-core/internal/session/sqlite"
	"github.com/kory-ai/workbench-core/internal/snapshot"
	"github.com/kory-ai/workbench-core/internal/telemetry"
	"github.com/kory-ai/workbench-core/internal/tools"
	"github.com/kory-ai/workbench-core/internal/tools/builtin"
	"github.com/kory-ai/workbench-core/internal/trace"
)

// buildConfig turns serveOptions into the plain config.Config value the
// manager and provider registry consume. This is the one place flags/env
// are translated into the domain shape; there is no file format involved.
func buildConfig(opts *serveOptions) *config.Config {
	cfg := &config.Config{
		Server:        config.ServerConfig{Host: opts.host, Port: opts.port},
		DataDirectory: opts.dataDir,
		Assignments:   map[string]string{},
		Fallbacks:     map[string][]string{},
		Providers:     map[string]config.ProviderConfig{},
		Interaction: config.InteractionConfig{
			ClarifyFirstEnabled: opts.clarifyFirst,
			MaxClarifyQuestions: config.DefaultMaxClarifyQuestions,
		},
	}
	if opts.managerModel != "" {
		cfg.Agents.Manager.Model = opts.managerModel
	}
	return cfg
}

// buildProviders registers a model.Client for every backend opts supplied
// credentials for. A deployment with no keys at all still starts (useful
// for exercising the HTTP surface against a scripted client in tests), but
// every Manager.Process run ends in the error state for lack of a route.
func buildProviders(ctx context.Context, opts *serveOptions, logger telemetry.Logger) *provider.Registry {
	reg := provider.NewRegistry(buildConfig(opts))

	if opts.anthropicAPIKey != "" {
		client, err := anthropic.NewFromAPIKey(opts.anthropicAPIKey, opts.anthropicModel)
		if err != nil {
			logger.Error(ctx, "anthropic provider disabled", "err", err)
		} else {
			reg.Register("anthropic", client, []provider.ModelInfo{
				{ID: opts.anthropicModel, Provider: "anthropic"},
			})
		}
	}

	if opts.openaiAPIKey != "" {
		client, err := openai.NewFromAPIKey(opts.openaiAPIKey, opts.openaiModel)
		if err != nil {
			logger.Error(ctx, "openai provider disabled", "err", err)
		} else {
			reg.Register("openai", client, []provider.ModelInfo{
				{ID: opts.openaiModel, Provider: "openai"},
			})
		}
	}

	if opts.bedrockRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.bedrockRegion))
		if err != nil {
			logger.Error(ctx, "bedrock provider disabled: loading AWS config", "err", err)
		} else {
			rt := bedrockruntime.NewFromConfig(awsCfg)
			client, err := bedrock.NewFromClient(rt, bedrock.Options{DefaultModel: opts.bedrockModel})
			if err != nil {
				logger.Error(ctx, "bedrock provider disabled", "err", err)
			} else {
				reg.Register("bedrock", client, []provider.ModelInfo{
					{ID: opts.bedrockModel, Provider: "bedrock"},
				})
			}
		}
	}

	return reg
}

func buildSessionStore(opts *serveOptions) (session.Store, error) {
	if opts.sessionDB == "" {
		return inmem.New(), nil
	}
	store, err := sqlite.Open(context.Background(), opts.sessionDB)
	if err != nil {
		return nil, fmt.Errorf("opening session db %q: %w", opts.sessionDB, err)
	}
	return store, nil
}

func buildTraceSink(opts *serveOptions) (trace.Sink, error) {
	if opts.traceFile == "" {
		return trace.NewInmemSink(), nil
	}
	sink, err := trace.OpenJSONLSink(opts.traceFile)
	if err != nil {
		return nil, fmt.Errorf("opening trace file %q: %w", opts.traceFile, err)
	}
	return sink, nil
}

func buildToolRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	builtin.RegisterAll(reg)
	return reg
}

// app bundles the Manager alongside the collaborators the HTTP layer needs
// direct access to (to persist inbound messages and subscribe to the event
// bus) rather than going through the Manager for everything.
type app struct {
	manager  *manager.Manager
	sessions session.Store
	bus      bus.Bus
	logger   telemetry.Logger
}

// newApp assembles every manager.Deps collaborator from opts.
func newApp(opts *serveOptions) (*app, error) {
	logger := telemetry.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %q: %w", opts.dataDir, err)
	}

	sessions, err := buildSessionStore(opts)
	if err != nil {
		return nil, err
	}
	traceSink, err := buildTraceSink(opts)
	if err != nil {
		return nil, err
	}

	cfg := buildConfig(opts)
	providers := buildProviders(context.Background(), opts, logger)
	eventBus := bus.New()
	workspaces := filepath.Join(opts.dataDir, "workspaces")

	mgr := manager.New(manager.Deps{
		Sessions:  sessions,
		Bus:       eventBus,
		Providers: providers,
		Tools:     buildToolRegistry(),
		Ledger:    ledger.New(),
		Prompts:   prompt.New(),
		Snapshots: snapshot.New(filepath.Join(opts.dataDir, "snapshots")),
		Trace:     traceSink,
		Logger:    logger,
		Config:    cfg,
		WorkDir: func(sessionID string) string {
			return filepath.Join(workspaces, sessionID)
		},
	})
	mgr.SetYoloMode(opts.yolo)

	return &app{manager: mgr, sessions: sessions, bus: eventBus, logger: logger}, nil
}
