package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/smartspec/smartspec/internal/config"
	"github.com/smartspec/smartspec/internal/logger"
	"github.com/smartspec/smartspec/pkg/apperr"
	"github.com/smartspec/smartspec/pkg/bundle"
	"github.com/smartspec/smartspec/pkg/engine"
	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/store"
	"github.com/smartspec/smartspec/pkg/workflow"
	"github.com/smartspec/smartspec/pkg/workflows"

	"github.com/smartspec/smartspec/internal/orchestrator"
)

// System is everything Bootstrap assembles: the orchestrator plus the
// collaborators whose lifecycle the caller (the daemon, or a test) must
// close.
type System struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Log          arbor.ILogger
}

// Close releases the collaborators Bootstrap opened.
func (s *System) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// Bootstrap runs the startup sequence Design Notes mandate: validate
// config, run the store's migrations, initialize the workflow
// registry, and verify the governed directories exist, aborting with a
// typed diagnostic on any failure rather than starting degraded.
func Bootstrap(ctx context.Context, cfg *config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Validation("invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, apperr.IO(err, "creating service data directories")
	}

	log := logger.SetupLogger(cfg)

	if err := ensureGovernedDirectories(cfg.Service.RepoRoot); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, apperr.IO(err, "opening store at %q", cfg.Store.Path)
	}

	mgr, err := bundle.NewManager(cfg.Service.RepoRoot)
	if err != nil {
		st.Close()
		return nil, apperr.Internal(err, "constructing bundle manager at %q", cfg.Service.RepoRoot)
	}

	watcher, err := bundle.NewStalenessWatcher(mgr)
	if err != nil {
		st.Close()
		return nil, apperr.Internal(err, "starting staleness watcher")
	}

	table := defaultRoutingTable()
	gw := gateway.New(gateway.Config{
		DefaultMarkupRate:  cfg.Gateway.MarkupRate,
		RateLimitPerMinute: cfg.Gateway.RateLimitPerMin,
	}, st, table)

	if cfg.Gateway.GenAIAPIKey != "" {
		provider, err := gateway.NewGenAIProvider(ctx, gateway.GenAIConfig{
			APIKey:   cfg.Gateway.GenAIAPIKey,
			Model:    cfg.Gateway.GenAIModel,
			Thinking: cfg.Gateway.GenAIThinking,
			Timeout:  30 * time.Second,
		})
		if err != nil {
			log.Warn().Err(err).Msg("genai provider unavailable, continuing without a network-backed route")
		} else {
			gw.RegisterProvider(provider)
		}
	}

	verifier := evidence.NewVerifier(cfg.Service.RepoRoot)

	reg := workflow.NewRegistry()
	deps := workflows.Deps{Bundle: mgr, Gate: gw, Verify: verifier}
	for _, d := range workflows.All(deps) {
		if err := reg.Register(d); err != nil {
			st.Close()
			watcher.Close()
			return nil, apperr.Internal(err, "registering workflow %q", d.Name)
		}
	}

	eng := engine.New(engine.Config{
		DefaultFanOut:     cfg.Engine.DefaultFanOut,
		CancelGracePeriod: time.Duration(cfg.Engine.CancelGracePeriodSecs) * time.Second,
		InterruptTimeout:  time.Duration(cfg.Engine.InterruptTimeoutSeconds) * time.Second,
	}, st, mgr, log)

	embedded, err := workflow.NewEmbeddedClassifier(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("embedded classifier unavailable, Ask will skip straight to the gateway tier")
		embedded = nil
	}

	orch, err := orchestrator.New(reg, eng, gw, mgr, verifier,
		orchestrator.WithLogger(log),
		orchestrator.WithStalenessWatcher(watcher),
		orchestrator.WithEmbeddedClassifier(embedded),
	)
	if err != nil {
		st.Close()
		watcher.Close()
		return nil, fmt.Errorf("service: assembling orchestrator: %w", err)
	}

	return &System{Orchestrator: orch, Store: st, Log: log}, nil
}

// ensureGovernedDirectories verifies specs/ and .spec/ exist under
// root, creating them on first run rather than failing a fresh
// checkout that has never generated a spec.
func ensureGovernedDirectories(root string) error {
	for _, dir := range []string{string(bundle.ScopeGoverned), string(bundle.ScopeRuntime)} {
		path := filepath.Join(root, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return apperr.IO(err, "ensuring governed directory %q exists", path)
		}
	}
	return nil
}

// defaultRoutingTable seeds every task/priority combination with the
// genai provider as the sole route. The table is built here in code;
// the service configuration has no routing section.
func defaultRoutingTable() gateway.RoutingTable {
	table := gateway.NewRoutingTable()
	tasks := []gateway.TaskClass{gateway.TaskChat, gateway.TaskCodeGeneration, gateway.TaskReasoning, gateway.TaskSummarization}
	priorities := []gateway.Priority{gateway.PriorityQuality, gateway.PriorityCost, gateway.PrioritySpeed}
	for _, task := range tasks {
		for _, pr := range priorities {
			table.AddRoute(task, pr, gateway.Route{
				Provider:      "genai",
				Model:         "gemini-1.5-flash",
				PriceInPer1k:  0.000075,
				PriceOutPer1k: 0.0003,
			})
		}
	}
	return table
}
