package service

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/domain/tool"
)

// Decision is the outcome of a permission check.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
	Ask     Decision = "ask"
)

// RuleType is the action a PermissionRule declares.
type RuleType string

const (
	RuleAllow RuleType = "allow"
	RuleDeny  RuleType = "deny"
	RuleAsk   RuleType = "ask"
)

// PermissionRule is one line of the rule file. Rules are evaluated in
// declaration order; the first whose tool/path/command patterns all
// match returns its type. An empty pattern field matches anything.
type PermissionRule struct {
	Type           RuleType `yaml:"type"`
	ToolPattern    string   `yaml:"tool,omitempty"`
	PathPattern    string   `yaml:"path_pattern,omitempty"`
	CommandPattern string   `yaml:"command_pattern,omitempty"`
}

// Mode is one of the four operating modes that modulate default
// category behavior.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeAutoEdit Mode = "auto-edit"
	ModeYolo     Mode = "yolo"
	ModePlan     Mode = "plan"
)

// builtinDenyPatterns are destructive shell command globs denied before
// any other rule is consulted, in every mode except yolo.
var builtinDenyPatterns = []string{
	"rm -rf /*",
	"sudo rm*",
	":(){:|:&};:*",
	"mkfs*",
	"dd if=/dev/zero*",
	"chmod 777 /*",
	"*>/dev/sd*",
	"*>/dev/nvme*",
}

// PermissionEngine evaluates tool calls against the built-in
// destructive-command denials, the active mode, a session allow-list,
// and a user-declared rule set. The mutex-protected config mirrors the
// runtime-mutable approval config the engine is grounded on; callers
// may flip mode or grant session trust while turns are in flight.
type PermissionEngine struct {
	mu        sync.RWMutex
	mode      Mode
	rules     []PermissionRule
	allowlist map[string]bool
	logger    *zap.Logger

	builtinDeny []*regexp.Regexp
}

// NewPermissionEngine builds an engine in the given mode with the given
// user rule set.
func NewPermissionEngine(mode Mode, rules []PermissionRule, logger *zap.Logger) *PermissionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make([]*regexp.Regexp, len(builtinDenyPatterns))
	for i, p := range builtinDenyPatterns {
		compiled[i] = globToRegexp(p)
	}
	return &PermissionEngine{
		mode:        mode,
		rules:       rules,
		allowlist:   make(map[string]bool),
		logger:      logger,
		builtinDeny: compiled,
	}
}

// Check evaluates one tool call and returns a decision.
//
// Order matters and is not a straight read of §4.3's prose order: yolo
// mode short-circuits to Allowed *before* the built-in deny rules are
// consulted (the source this is grounded on — and the tested behavior —
// allows yolo to override even the hard-coded destructive-command
// denials; flagged as a safety concern, not fixed, per the resolved
// open question).
func (e *PermissionEngine) Check(call entity.ToolCall, category tool.Category) Decision {
	e.mu.RLock()
	mode := e.mode
	rules := e.rules
	e.mu.RUnlock()

	if mode == ModeYolo {
		return Allowed
	}

	if e.matchesBuiltinDeny(call) {
		e.logger.Warn("tool call denied by built-in destructive-command rule",
			zap.String("tool", call.Name))
		return Denied
	}

	if mode == ModePlan {
		if category == tool.CategoryReadonly {
			return Allowed
		}
		return Denied
	}

	if e.isSessionAllowed(call.Name) {
		return Allowed
	}

	for _, r := range rules {
		if ruleMatches(r, call) {
			switch r.Type {
			case RuleAllow:
				return Allowed
			case RuleDeny:
				return Denied
			case RuleAsk:
				return Ask
			}
		}
	}

	return defaultForCategory(category, mode)
}

func defaultForCategory(category tool.Category, mode Mode) Decision {
	switch category {
	case tool.CategoryReadonly, tool.CategoryInteractive:
		return Allowed
	case tool.CategoryWrite:
		if mode == ModeAutoEdit {
			return Allowed
		}
		return Ask
	case tool.CategoryExecute:
		return Ask
	default:
		return Ask
	}
}

func (e *PermissionEngine) matchesBuiltinDeny(call entity.ToolCall) bool {
	cmd, ok := call.Input["command"].(string)
	if !ok {
		return false
	}
	for _, re := range e.builtinDeny {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

func ruleMatches(r PermissionRule, call entity.ToolCall) bool {
	if r.ToolPattern != "" && !globToRegexp(r.ToolPattern).MatchString(call.Name) {
		return false
	}
	if r.CommandPattern != "" {
		cmd, _ := call.Input["command"].(string)
		if !globToRegexp(r.CommandPattern).MatchString(cmd) {
			return false
		}
	}
	if r.PathPattern != "" {
		path, _ := call.Input["file_path"].(string)
		if !globToRegexp(r.PathPattern).MatchString(path) {
			return false
		}
	}
	return true
}

// globToRegexp compiles a shell-glob-style pattern ('*' -> '.*') into an
// anchored regexp.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return regexp.MustCompile("$^") // matches nothing
	}
	return re
}

// --- session allow-list ---

// AllowForSession grants a tool blanket approval for the remainder of
// this process's lifetime.
func (e *PermissionEngine) AllowForSession(toolName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowlist[toolName] = true
}

func (e *PermissionEngine) isSessionAllowed(toolName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.allowlist[toolName]
}

// --- runtime mode/rule mutation ---

// SetMode changes the active permission mode.
func (e *PermissionEngine) SetMode(mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// GetMode returns the active permission mode.
func (e *PermissionEngine) GetMode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetRules replaces the user rule set (e.g. after a rule-file reload).
func (e *PermissionEngine) SetRules(rules []PermissionRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}
