package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ctxpkg "github.com/coderunner/agentcore/internal/domain/context"
	"github.com/coderunner/agentcore/internal/domain/service"
	"github.com/coderunner/agentcore/internal/domain/tool"
	"github.com/coderunner/agentcore/internal/infrastructure/config"
	"github.com/coderunner/agentcore/internal/infrastructure/llm"
	"github.com/coderunner/agentcore/internal/infrastructure/llm/anthropic"
	"github.com/coderunner/agentcore/internal/infrastructure/llm/gemini"
	"github.com/coderunner/agentcore/internal/infrastructure/llm/openai"
	"github.com/coderunner/agentcore/internal/infrastructure/persistence"
	"github.com/coderunner/agentcore/internal/infrastructure/persistence/index"
	"github.com/coderunner/agentcore/internal/infrastructure/sandbox"
	infratool "github.com/coderunner/agentcore/internal/infrastructure/tool"
)

func newRunCmd() *cobra.Command {
	var sessionID string
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive agent session in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := newRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			if modeFlag != "" {
				rt.permission.SetMode(service.Mode(modeFlag))
			}

			if sessionID == "" {
				sessionID = persistence.NewSessionID()
			} else if rec, err := rt.journal.Get(sessionID); err == nil && rec != nil {
				rt.messageLog.SetAll(rec.Messages)
			}

			return rt.interactiveLoop(cmd.Context(), sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id (default: start a new session)")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "permission mode override: normal | auto-edit | yolo | plan")
	return cmd
}

// runtime bundles every wired component one `agentcore run` invocation needs.
type runtime struct {
	cfg          *config.Config
	logger       *zap.Logger
	provider     *llm.Router
	registry     tool.Registry
	permission   *service.PermissionEngine
	ruleWatcher  *config.RuleWatcher
	checkpointer *service.Checkpointer
	router       *service.ToolRouter
	ctxManager   *service.ContextManager
	messageLog   *ctxpkg.MessageLog
	loop         *service.AgentLoop
	journal      *persistence.Journal
	idx          *index.Index
	sandbox      *sandbox.ProcessSandbox
}

func newRuntime(cfg *config.Config, log *zap.Logger) (*runtime, error) {
	router := llm.NewRouter(log)
	providers := append([]config.LLMProviderConfig(nil), cfg.Agent.Providers...)
	sort.SliceStable(providers, func(i, j int) bool { return providers[i].Priority < providers[j].Priority })
	for _, p := range providers {
		pc := llm.ProviderConfig{
			Name: p.Name, Type: p.Type, BaseURL: p.BaseURL,
			APIKey: p.APIKey, Models: p.Models, Priority: p.Priority,
		}
		switch p.Type {
		case "anthropic":
			router.AddProvider(anthropic.New(pc, log))
		case "gemini":
			router.AddProvider(gemini.New(pc, log))
		default:
			router.AddProvider(openai.New(pc, log))
		}
	}

	sb, err := sandbox.NewProcessSandbox(sandbox.DefaultConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	registry := tool.NewInMemoryRegistry()
	for _, t := range []tool.Tool{
		infratool.NewBashTool(sb, log),
		infratool.NewReadFileTool(),
		infratool.NewWriteFileTool(),
		infratool.NewEditFileTool(),
		infratool.NewListDirTool(),
	} {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}

	rulesPath := expandHome(cfg.Agent.PermissionRulesFile)
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		log.Warn("failed to load permission rules, starting with none", zap.Error(err))
	}
	permission := service.NewPermissionEngine(service.Mode(cfg.Agent.PermissionMode), rules, log)

	ruleWatcher, err := config.NewRuleWatcher(rulesPath, permission, log)
	if err != nil {
		log.Warn("rule hot-reload disabled", zap.Error(err))
	} else {
		go ruleWatcher.Start()
	}

	checkpointer := service.NewCheckpointer(cfg.Agent.Runtime.CheckpointCap, log)
	toolRouter := service.NewToolRouter(registry, permission, checkpointer, log)

	tuning := service.CompactionTuning{
		TriggerRatio:         cfg.Agent.Compaction.CompactThreshold,
		RecentWindowSize:     cfg.Agent.Compaction.RecentMessageCount,
		MaxSummaryCandidates: cfg.Agent.Compaction.MaxSummaryMessages,
		SummaryModel:         cfg.Agent.Compaction.SummaryModel,
	}
	contextManager := service.NewContextManager(router, cfg.Agent.Runtime.MaxOutputTokens, tuning, log)
	messageLog := ctxpkg.NewMessageLog(ctxpkg.NewTokenCounter())

	loopConfig := service.AgentLoopConfig{
		Model:               cfg.Agent.DefaultModel,
		MaxTurns:            cfg.Agent.Runtime.MaxTurns,
		MaxOutputTokens:     cfg.Agent.Runtime.MaxOutputTokens,
		Temperature:         cfg.Agent.Runtime.Temperature,
		ThinkingBudget:      cfg.Agent.Runtime.ThinkingBudget,
		LoopWindowSize:      cfg.Agent.Runtime.LoopWindowSize,
		LoopDetectThreshold: cfg.Agent.Runtime.LoopDetectThreshold,
		LoopNameThreshold:   cfg.Agent.Runtime.LoopNameThreshold,
	}
	loop := service.NewAgentLoop(router, toolRouter, contextManager, messageLog, loopConfig, log)

	idx, err := index.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	journalPath := filepath.Join(config.HomeDir(), "sessions.ndjson")
	journal := persistence.NewJournal(journalPath)

	return &runtime{
		cfg: cfg, logger: log, provider: router, registry: registry,
		permission: permission, ruleWatcher: ruleWatcher, checkpointer: checkpointer,
		router: toolRouter, ctxManager: contextManager, messageLog: messageLog,
		loop: loop, journal: journal, idx: idx, sandbox: sb,
	}, nil
}

func (rt *runtime) close() {
	if rt.ruleWatcher != nil {
		rt.ruleWatcher.Stop()
	}
}

// interactiveLoop reads lines from stdin, drives one AgentLoop turn per
// line, and appends the resulting conversation snapshot to the journal
// (and its index) after every turn so a crash never loses more than the
// in-flight turn.
func (rt *runtime) interactiveLoop(ctx context.Context, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	createdAt := time.Now().UTC()

	fmt.Fprintf(os.Stdout, "session %s ready (%s mode)\n", sessionID, rt.permission.GetMode())
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		result, err := rt.loop.ProcessUserInput(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(os.Stdout, result)

		rec := persistence.SessionRecord{
			ID:        sessionID,
			CreatedAt: createdAt,
			UpdatedAt: time.Now().UTC(),
			Messages:  rt.messageLog.All(),
		}
		if err := rt.journal.Append(rec); err != nil {
			rt.logger.Warn("failed to append session journal", zap.Error(err))
			continue
		}
		if err := rt.idx.Upsert(rec); err != nil {
			rt.logger.Warn("failed to update session index", zap.Error(err))
		}
	}
	return scanner.Err()
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
