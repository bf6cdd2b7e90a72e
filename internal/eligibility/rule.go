package eligibility

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/giftcard-bot/internal/core"
)

// Rule decides whether a sender may receive a card, on top of group membership.
// Bots are never eligible. An empty expression admits every human.
type Rule struct {
	source  string
	program *vm.Program
}

type userEnv struct {
	ID           int64  `expr:"id"`
	Username     string `expr:"username"`
	IsBot        bool   `expr:"is_bot"`
	LanguageCode string `expr:"language_code"`
}

type env struct {
	User userEnv `expr:"user"`
}

func NewRule(source string) (*Rule, error) {
	source = strings.TrimSpace(source)
	rule := &Rule{source: source}
	if source == "" {
		return rule, nil
	}
	program, err := expr.Compile(source, expr.Env(env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile eligibility rule: %w", err)
	}
	rule.program = program
	return rule, nil
}

func (r *Rule) String() string {
	return r.source
}

// Allows evaluates the rule for user. An evaluation error counts as not eligible.
func (r *Rule) Allows(user core.User) (bool, error) {
	if user.IsBot {
		return false, nil
	}
	if r == nil || r.program == nil {
		return true, nil
	}
	result, err := expr.Run(r.program, env{User: userEnv{
		ID:           user.ID,
		Username:     user.Username,
		IsBot:        user.IsBot,
		LanguageCode: user.LanguageCode,
	}})
	if err != nil {
		return false, fmt.Errorf("evaluate eligibility rule: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("eligibility rule did not return bool")
	}
	return allowed, nil
}
