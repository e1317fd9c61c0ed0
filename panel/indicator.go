package panel

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/config"
)

// Level is the severity shown by an indicator.
type Level string

const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Rule holds boolean expressions over {count, items, mode}. Empty
// expressions never match.
type Rule struct {
	Warning string
	Error   string
}

var (
	// DefaultLightsRule warns for a single light and errors for more.
	DefaultLightsRule = Rule{Warning: "count == 1", Error: "count > 1"}
	// DefaultDoorsRule errors as soon as a door is open.
	DefaultDoorsRule = Rule{Error: "count > 0"}
)

// RuleFromConfig merges a configured rule with the defaults. A configured
// rule replaces both expressions.
func RuleFromConfig(cfg *config.IndicatorConfig, fallback Rule) Rule {
	if cfg == nil {
		return fallback
	}
	return Rule{Warning: cfg.Warning, Error: cfg.Error}
}

// Indicator evaluates a compiled rule.
type Indicator struct {
	warn *vm.Program
	fail *vm.Program
}

func indicatorEnv(items []string, mode box.HouseMode) map[string]interface{} {
	wire, _ := mode.Wire()
	return map[string]interface{}{
		"count": len(items),
		"items": items,
		"mode":  wire,
	}
}

// CompileIndicator type-checks both expressions.
func CompileIndicator(rule Rule) (*Indicator, error) {
	warning, err := compileRule("warning", rule.Warning)
	if err != nil {
		return nil, err
	}
	fail, err := compileRule("error", rule.Error)
	if err != nil {
		return nil, err
	}
	return &Indicator{warn: warning, fail: fail}, nil
}

func compileRule(name, source string) (*vm.Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(indicatorEnv([]string{}, box.ModeNone)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %s expression %q: %w", name, source, err)
	}
	return program, nil
}

// Evaluate returns the most severe matching level.
func (i *Indicator) Evaluate(items []string, mode box.HouseMode) (Level, error) {
	if items == nil {
		items = []string{}
	}
	env := indicatorEnv(items, mode)
	for _, candidate := range []struct {
		program *vm.Program
		level   Level
	}{{i.fail, LevelError}, {i.warn, LevelWarning}} {
		if candidate.program == nil {
			continue
		}
		out, err := expr.Run(candidate.program, env)
		if err != nil {
			return LevelOK, fmt.Errorf("evaluate %s rule: %w", candidate.level, err)
		}
		if matched, _ := out.(bool); matched {
			return candidate.level, nil
		}
	}
	return LevelOK, nil
}
