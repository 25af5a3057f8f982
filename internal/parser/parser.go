// Package parser implements the shift-reduce DSL parser (C4): a
// tokenizer plus a declarative reduction table that turns a rule string
// into a check.Check expression tree.
package parser

import (
	"log/slog"

	"github.com/garenchan/policy/internal/domain/check"
)

// Parser turns a single rule string into a check.Check tree. It is not
// safe for concurrent use by multiple goroutines on the same instance,
// but each call to Parse constructs fresh internal state, so a *Parser
// may be reused sequentially (e.g. by the enforcer's loader, which parses
// every rule in a catalog one at a time).
type Parser struct {
	registry   *check.Registry
	raiseError bool
	logger     *slog.Logger
	onInvalid  func(rule string)

	stack []token
}

// Option configures a Parser built by New.
type Option func(*Parser)

// WithOnInvalid registers a callback invoked whenever a rule fails to
// parse and the parser is not configured to raise -- e.g. to drive a
// "policy_parse_errors_total" metric counter.
func WithOnInvalid(f func(rule string)) Option {
	return func(p *Parser) { p.onInvalid = f }
}

// New creates a Parser that dispatches base checks through registry and,
// when raiseError is true, raises InvalidRuleError on malformed rules
// instead of silently compiling them to check.False.
func New(registry *check.Registry, raiseError bool, logger *slog.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{registry: registry, raiseError: raiseError, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// failClosed logs and reports an invalid rule, then returns check.False
// for the caller to use when the parser is not configured to raise.
func (p *Parser) failClosed(rule, reason string) check.Check {
	p.logger.Warn("policy parser: failed to understand rule, "+reason, "rule", rule)
	if p.onInvalid != nil {
		p.onInvalid(rule)
	}
	return check.False{}
}

// Parse translates rule, written in the policy DSL, into a check tree.
// An empty rule string always parses to check.True (the DSL's explicit
// "empty policy admits" rule). On malformed input, Parse either returns
// an *InvalidRuleError (when the parser was built with raiseError=true)
// or silently returns check.False, so that later enforcement fails
// closed rather than panicking on a broken policy file.
func (p *Parser) Parse(rule string) (check.Check, error) {
	if rule == "" {
		return check.True{}, nil
	}

	p.stack = nil
	tokens, err := p.tokenize(rule)
	if err != nil {
		return nil, err
	}

	for _, tok := range tokens {
		p.shift(tok)
	}

	if len(p.stack) != 1 {
		if p.raiseError {
			return nil, &InvalidRuleError{Rule: rule}
		}
		return p.failClosed(rule, "did not reduce to a single result"), nil
	}

	result := p.stack[0]
	if result.kind != tokCheck && result.kind != tokAndExpr && result.kind != tokOrExpr {
		// A lone "and"/"or"/"not"/"(" token, or an un-reduced "string"
		// token, survived to the end: not a usable check.
		if p.raiseError {
			return nil, &InvalidRuleError{Rule: rule}
		}
		return p.failClosed(rule, "incomplete expression"), nil
	}
	return result.checkVal, nil
}

// shift pushes tok onto the stack and then greedily reduces.
func (p *Parser) shift(tok token) {
	p.stack = append(p.stack, tok)
	p.reduce()
}

// reduce applies the first matching reduction rule against the tail of
// the stack, replacing the matched tokens with the reduction's result,
// then recurses to look for further reductions. The grammar is such that
// at most one pattern of a given length can ever match a given tail (no
// two patterns of the same length have the same sequence of token kinds),
// so reduction order does not affect the result.
func (p *Parser) reduce() {
	for _, red := range reductionTable {
		n := len(red.pattern)
		if len(p.stack) < n {
			continue
		}
		tail := p.stack[len(p.stack)-n:]
		if !matches(tail, red.pattern) {
			continue
		}

		result := red.apply(tail)
		p.stack = append(p.stack[:len(p.stack)-n], result)
		p.reduce()
		return
	}
}

func matches(tail []token, pattern []string) bool {
	for i, kind := range pattern {
		if tail[i].kind != kind {
			return false
		}
	}
	return true
}

// reduction pairs a token-kind pattern with the handler that collapses a
// matching stack tail into a single replacement token.
type reduction struct {
	pattern []string
	apply   func(tail []token) token
}

// reductionTable is the declarative shift-reduce table driving the
// parser (C4 reductions). Patterns are tried in this order, but as noted
// in reduce, the grammar never lets two patterns of the same length
// match the same tail, so order is not load-bearing -- it is kept in
// spec order for readability.
var reductionTable = []reduction{
	{[]string{tokOpenParen, tokCheck, tokCloseParen}, wrapParens},
	{[]string{tokOpenParen, tokAndExpr, tokCloseParen}, wrapParens},
	{[]string{tokOpenParen, tokOrExpr, tokCloseParen}, wrapParens},
	{[]string{tokCheck, tokAnd, tokCheck}, makeAndExpr},
	{[]string{tokOrExpr, tokAnd, tokCheck}, mixOrAndExpr},
	{[]string{tokAndExpr, tokAnd, tokCheck}, extendAndExpr},
	{[]string{tokCheck, tokOr, tokCheck}, makeOrExpr},
	{[]string{tokAndExpr, tokOr, tokCheck}, makeOrExpr},
	{[]string{tokOrExpr, tokOr, tokCheck}, extendOrExpr},
	{[]string{tokNot, tokCheck}, makeNotExpr},
}

// wrapParens turns "( check )" / "( and_expr )" / "( or_expr )" into a
// single "check" token -- parenthesization.
func wrapParens(tail []token) token {
	return token{kind: tokCheck, checkVal: tail[1].checkVal}
}

// makeAndExpr turns "check and check" into a new and_expr conjunction.
func makeAndExpr(tail []token) token {
	return token{kind: tokAndExpr, checkVal: check.NewAnd(tail[0].checkVal, tail[2].checkVal)}
}

// extendAndExpr turns "and_expr and check" into a larger and_expr by
// appending the new check to the existing conjunction.
func extendAndExpr(tail []token) token {
	and := tail[0].checkVal.(*check.And)
	and.Append(tail[2].checkVal)
	return token{kind: tokAndExpr, checkVal: and}
}

// makeOrExpr turns "check or check" or "and_expr or check" into a new
// or_expr disjunction.
func makeOrExpr(tail []token) token {
	return token{kind: tokOrExpr, checkVal: check.NewOr(tail[0].checkVal, tail[2].checkVal)}
}

// extendOrExpr turns "or_expr or check" into a larger or_expr by
// appending the new check to the existing disjunction.
func extendOrExpr(tail []token) token {
	or := tail[0].checkVal.(*check.Or)
	or.Append(tail[2].checkVal)
	return token{kind: tokOrExpr, checkVal: or}
}

// mixOrAndExpr implements the "A or B and C" precedence fix: 'and' binds
// tighter than 'or', so on "or_expr and check" the last disjunct B is
// pulled back out of the disjunction, folded into a conjunction with C
// (reusing B if it is already an And, otherwise wrapping both in a new
// And), and the conjunction is pushed back as the disjunction's new last
// disjunct. This yields "A or (B and C)".
func mixOrAndExpr(tail []token) token {
	or := tail[0].checkVal.(*check.Or)
	last := or.PopLast()

	var and *check.And
	if existing, ok := last.(*check.And); ok {
		and = existing
		and.Append(tail[2].checkVal)
	} else {
		and = check.NewAnd(last, tail[2].checkVal)
	}

	or.Append(and)
	return token{kind: tokOrExpr, checkVal: or}
}

// makeNotExpr turns "not check" into a single negated check.
func makeNotExpr(tail []token) token {
	return token{kind: tokCheck, checkVal: &check.Not{Rule: tail[1].checkVal}}
}
