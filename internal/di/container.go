// Package di assembles the concrete adapters behind every port into one
// running system: a Browser Host and Debugger Channel sharing the one
// rod browser process, a Tab Registry and Observation/Action layer built
// on top of them, the Tool Catalog closing over all of it, and the Agent
// Loop plus Research Orchestrator driving the LLM against that catalog.
package di

import (
	"context"
	"fmt"

	"browsercore/internal/application/port/input"
	"browsercore/internal/application/port/output"
	"browsercore/internal/application/toolcatalog"
	"browsercore/internal/domain/agentrun"
	"browsercore/internal/infrastructure/browser/debugger"
	"browsercore/internal/infrastructure/browser/host"
	"browsercore/internal/infrastructure/env"
	"browsercore/internal/infrastructure/httpapi"
	"browsercore/internal/infrastructure/llm/openrouter"
	"browsercore/internal/infrastructure/logging"
	"browsercore/internal/infrastructure/observation"
	"browsercore/internal/infrastructure/prompts"
	"browsercore/internal/infrastructure/storage"
	"browsercore/internal/infrastructure/tabregistry"
	"browsercore/internal/infrastructure/userinteraction"
	"browsercore/internal/usecase/agentloop"
	"browsercore/internal/usecase/research"
)

// Container owns every long-lived adapter this process needs and the two
// use cases assembled on top of them. Close releases the browser process
// and flushes the logger; everything else is stateless or in-memory.
type Container struct {
	Logger   output.LoggerPort
	Storage  output.StoragePort
	Abort    *agentrun.Handle
	Agent    input.AgentRunner
	Research input.ResearchRunner
	HTTP     *httpapi.Server

	host *host.Host
}

// Config gathers the knobs New needs from the environment. The
// env.EnvService itself resolves these from .env/.env.<APP_ENV> files and
// os.Getenv, per the teacher's layered-dotenv convention.
type Config struct {
	OpenRouterAPIKey     string
	OpenRouterModel      string
	OpenRouterBaseURL    string
	RequestsPerSecond    float64
	BrowserHeadless      bool
	DisableCursorOverlay bool
	TaskName             string
}

// ConfigFromEnv reads Config from an env.EnvService, applying its own
// defaults for anything unset.
func ConfigFromEnv(e *env.EnvService, taskName string) Config {
	return Config{
		OpenRouterAPIKey:     e.MustGet("OPENROUTER_API_KEY"),
		OpenRouterModel:      e.GetWithDefault("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
		OpenRouterBaseURL:    e.GetWithDefault("OPENROUTER_BASE_URL", ""),
		RequestsPerSecond:    float64(e.GetInt("OPENROUTER_REQUESTS_PER_SECOND", 2)),
		BrowserHeadless:      e.GetBool("BROWSER_HEADLESS", false),
		DisableCursorOverlay: e.GetBool("DISABLE_CURSOR_OVERLAY", false),
		TaskName:             taskName,
	}
}

func New(ctx context.Context, cfg Config) (*Container, error) {
	log, err := logging.New(cfg.TaskName)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	hostCfg := host.DefaultConfig()
	hostCfg.Headless = cfg.BrowserHeadless
	browserHost, err := host.New(hostCfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("create browser host: %w", err)
	}

	debuggerChannel := debugger.New(browserHost, log)
	registry := tabregistry.New(browserHost, debuggerChannel, log)
	observer := observation.NewProducer(debuggerChannel, log)
	actions := observation.NewActions(debuggerChannel, browserHost, log).WithCursorOverlay(cfg.DisableCursorOverlay)
	userInteraction := userinteraction.NewConsoleUserInteraction()

	deps := toolcatalog.Deps{
		Observation:     observer,
		Action:          actions,
		Registry:        registry,
		UserInteraction: userInteraction,
	}

	llm := openrouter.New(openrouter.Config{
		APIKey:            cfg.OpenRouterAPIKey,
		Model:             cfg.OpenRouterModel,
		BaseURL:           cfg.OpenRouterBaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            log,
	})

	abort := agentrun.New()

	agentLoop := agentloop.New(llm, deps, abort, log, agentloop.Config{
		Mode:         toolcatalog.ModeSingleTab,
		SystemPrompt: prompts.SingleTabSystemPrompt,
	})

	orchestrator := research.New(llm, deps, abort, log, research.Prompts{
		Decompose: prompts.DecomposePrompt,
		Aggregate: prompts.AggregatePrompt,
	})

	store := storage.NewMemory(output.Settings{
		APIKey:     cfg.OpenRouterAPIKey,
		APIBaseURL: cfg.OpenRouterBaseURL,
		Model:      cfg.OpenRouterModel,
	})

	httpServer := httpapi.New(agentLoop, orchestrator, abort, store, log)

	return &Container{
		Logger:   log,
		Storage:  store,
		Abort:    abort,
		Agent:    agentLoop,
		Research: orchestrator,
		HTTP:     httpServer,
		host:     browserHost,
	}, nil
}

func (c *Container) Close() {
	if c.host != nil {
		c.host.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
