package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/pkg/schema"
)

// RuleKind selects how an allow-list rule matches an object name.
type RuleKind string

const (
	RuleExact  RuleKind = "exact"
	RulePrefix RuleKind = "prefix"
	RuleSuffix RuleKind = "suffix"
	RuleGlob   RuleKind = "glob"
	RuleExpr   RuleKind = "expr"
)

var ruleKinds = map[RuleKind]bool{
	RuleExact: true, RulePrefix: true, RuleSuffix: true, RuleGlob: true, RuleExpr: true,
}

// Rule is a parsed allow-list entry.
type Rule struct {
	Kind    RuleKind
	Pattern string
}

// ParseRule reads "kind:pattern". Text without a known kind prefix is a glob
// over the whole string, so "red*" and "glob:red*" are equivalent.
func ParseRule(raw string) Rule {
	if kind, pattern, ok := strings.Cut(raw, ":"); ok && ruleKinds[RuleKind(kind)] {
		return Rule{Kind: RuleKind(kind), Pattern: pattern}
	}
	return Rule{Kind: RuleGlob, Pattern: raw}
}

func (r Rule) String() string {
	return string(r.Kind) + ":" + r.Pattern
}

// Matcher evaluates allow-list rules. Glob patterns are matched case-sensitively:
// '*' matches any run, '?' one character, and "[...]" a class ("[!...]" negates).
// No character is special to '*', so object names may contain '/' or '.'.
type Matcher struct {
	exprs *expressions.ExprEngine

	mu    sync.RWMutex
	globs map[string]*regexp.Regexp
}

// NewMatcher creates a Matcher evaluating expr rules with engine.
func NewMatcher(engine *expressions.ExprEngine) *Matcher {
	if engine == nil {
		engine = expressions.NewExprEngine()
	}
	return &Matcher{
		exprs: engine,
		globs: make(map[string]*regexp.Regexp),
	}
}

// Match reports whether object may be placed in slot under rule.
func (m *Matcher) Match(ctx context.Context, rule Rule, object, slot string) (bool, error) {
	switch rule.Kind {
	case RuleExact:
		return object == rule.Pattern, nil
	case RulePrefix:
		return strings.HasPrefix(object, rule.Pattern), nil
	case RuleSuffix:
		return strings.HasSuffix(object, rule.Pattern), nil
	case RuleGlob:
		re, err := m.glob(rule.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(object), nil
	case RuleExpr:
		return expressions.EvaluateBool(ctx, m.exprs, rule.Pattern, map[string]any{
			"object": object,
			"slot":   slot,
		})
	}
	return false, fmt.Errorf("unknown rule kind %q", rule.Kind)
}

// Allowed reports whether any rule admits object. Rules that fail to compile
// or evaluate never match; their errors are returned alongside the verdict.
func (m *Matcher) Allowed(ctx context.Context, rules []string, object, slot string) (bool, []string) {
	var problems []string
	for _, raw := range rules {
		ok, err := m.Match(ctx, ParseRule(raw), object, slot)
		if err != nil {
			problems = append(problems, fmt.Sprintf("rule %q: %s", raw, err.Error()))
			continue
		}
		if ok {
			return true, problems
		}
	}
	return false, problems
}

// Lint compiles a rule without evaluating it.
func (m *Matcher) Lint(raw string) error {
	rule := ParseRule(raw)
	switch rule.Kind {
	case RuleGlob:
		_, err := m.glob(rule.Pattern)
		return err
	case RuleExpr:
		return m.exprs.Compile(rule.Pattern)
	}
	return nil
}

func (m *Matcher) glob(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	if re, ok := m.globs[pattern]; ok {
		m.mu.RUnlock()
		return re, nil
	}
	m.mu.RUnlock()

	src, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "glob %q: %s", pattern, err.Error()).WithCause(err)
	}

	m.mu.Lock()
	m.globs[pattern] = re
	m.mu.Unlock()
	return re, nil
}

// globToRegexp translates a glob into an anchored regular expression.
// Patterns are scanned by code point.
func globToRegexp(pattern string) (string, error) {
	runes := []rune(pattern)
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			b.WriteString("(?s:.*)")
		case '?':
			b.WriteString("(?s:.)")
		case '[':
			end := classEnd(runes, i)
			if end < 0 {
				return "", schema.NewErrorf(schema.ErrCodeValidation, "glob %q: unterminated character class", pattern)
			}
			body := string(runes[i+1 : end])
			b.WriteByte('[')
			if strings.HasPrefix(body, "!") {
				b.WriteByte('^')
				body = body[1:]
			} else if strings.HasPrefix(body, "^") {
				b.WriteString(`\^`)
				body = body[1:]
			}
			b.WriteString(strings.ReplaceAll(body, `\`, `\\`))
			b.WriteByte(']')
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return b.String(), nil
}

// classEnd returns the index of the ']' closing the class opened at start.
// A ']' right after '[' or '[!' is a literal member.
func classEnd(runes []rune, start int) int {
	j := start + 1
	if j < len(runes) && runes[j] == '!' {
		j++
	}
	if j < len(runes) && runes[j] == ']' {
		j++
	}
	for ; j < len(runes); j++ {
		if runes[j] == ']' {
			return j
		}
	}
	return -1
}
