// Package eligibility evaluates structured scheme clauses against a user
// profile with three-valued logic and folds the outcome into a rule score.
package eligibility

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/fieldmap"
)

// Status is the outcome of one clause.
type Status string

const (
	StatusMatched Status = "matched"
	StatusUnmet   Status = "unmet"
	StatusUnknown Status = "unknown"
)

const (
	// RequiredWeight and OptionalWeight blend the scope scores into R.
	RequiredWeight = 0.8
	OptionalWeight = 0.2

	// unknownCredit is the share of a matched clause an unknown clause earns.
	unknownCredit = 0.5
)

// Reasons attached to unknown clauses.
const (
	ReasonFieldUnmapped       = "field_mapped_to_other"
	ReasonUnsupportedOperator = "unsupported_operator"
	ReasonMissingRuleValue    = "missing_rule_value"
	ReasonMissingProfileValue = "missing_profile_value"
	ReasonNotNumeric          = "not_numeric"
	ReasonClauseUndecodable   = "clause_undecodable"
)

// ClauseResult explains how a single clause was decided.
type ClauseResult struct {
	Scope        string   `json:"scope"`
	Field        string   `json:"field"`
	ProfileField string   `json:"profile_field"`
	Operator     Operator `json:"operator"`
	Value        any      `json:"value"`
	UserValue    any      `json:"user_value"`
	Status       Status   `json:"status"`
	Reason       string   `json:"reason,omitempty"`
	TextSpan     string   `json:"text_span,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// ScopeResult aggregates the clauses of one scope.
type ScopeResult struct {
	Total   int            `json:"total"`
	Matched int            `json:"matched"`
	Unmet   int            `json:"unmet"`
	Unknown int            `json:"unknown"`
	Score   float64        `json:"score"`
	Clauses []ClauseResult `json:"clauses"`
}

// Result is the evaluation of a whole Spec.
type Result struct {
	R              float64        `json:"R"`
	Required       ScopeResult    `json:"required"`
	Optional       ScopeResult    `json:"optional"`
	MatchedClauses []ClauseResult `json:"matched_clauses"`
	UnmetClauses   []ClauseResult `json:"unmet_clauses"`
	UnknownClauses []ClauseResult `json:"unknown_clauses"`
}

// Engine evaluates clauses. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	mapper *fieldmap.Mapper
	logger *zap.Logger
}

// NewEngine creates an engine. A nil mapper falls back to the built-in aliases.
func NewEngine(mapper *fieldmap.Mapper, logger *zap.Logger) *Engine {
	if mapper == nil {
		mapper = fieldmap.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{mapper: mapper, logger: logger}
}

// Mapper exposes the field mapper the engine resolves clause fields with.
func (e *Engine) Mapper() *fieldmap.Mapper {
	return e.mapper
}

// Evaluate scores a spec against a profile. It never fails: anything that
// cannot be decided is reported as unknown.
func (e *Engine) Evaluate(spec Spec, attrs Attributes) Result {
	required := e.evaluateScope("required", spec.Required, attrs)
	optional := e.evaluateScope("optional", spec.Optional, attrs)

	res := Result{
		R:              combine(required, optional),
		Required:       required,
		Optional:       optional,
		MatchedClauses: []ClauseResult{},
		UnmetClauses:   []ClauseResult{},
		UnknownClauses: []ClauseResult{},
	}

	for _, scope := range []ScopeResult{required, optional} {
		for _, cr := range scope.Clauses {
			switch cr.Status {
			case StatusMatched:
				res.MatchedClauses = append(res.MatchedClauses, cr)
			case StatusUnmet:
				res.UnmetClauses = append(res.UnmetClauses, cr)
			default:
				res.UnknownClauses = append(res.UnknownClauses, cr)
			}
		}
	}

	e.logger.Debug("eligibility evaluated",
		zap.Float64("R", res.R),
		zap.Int("matched", len(res.MatchedClauses)),
		zap.Int("unmet", len(res.UnmetClauses)),
		zap.Int("unknown", len(res.UnknownClauses)),
	)

	return res
}

func (e *Engine) evaluateScope(name string, clauses []Clause, attrs Attributes) ScopeResult {
	scope := ScopeResult{Total: len(clauses), Clauses: make([]ClauseResult, 0, len(clauses))}
	for _, c := range clauses {
		cr := e.EvaluateClause(c, attrs)
		cr.Scope = name
		switch cr.Status {
		case StatusMatched:
			scope.Matched++
		case StatusUnmet:
			scope.Unmet++
		default:
			scope.Unknown++
		}
		scope.Clauses = append(scope.Clauses, cr)
	}

	if scope.Total == 0 {
		scope.Score = 1.0
	} else {
		scope.Score = (float64(scope.Matched) + unknownCredit*float64(scope.Unknown)) / float64(scope.Total)
	}
	return scope
}

// combine blends scope scores. An empty scope carries no weight; a spec with
// no clauses at all scores zero.
func combine(required, optional ScopeResult) float64 {
	switch {
	case required.Total == 0 && optional.Total == 0:
		return 0
	case required.Total == 0:
		return optional.Score
	case optional.Total == 0:
		return required.Score
	}

	return (RequiredWeight*required.Score + OptionalWeight*optional.Score) / (RequiredWeight + OptionalWeight)
}

// EvaluateClause decides one clause against a profile.
func (e *Engine) EvaluateClause(c Clause, attrs Attributes) ClauseResult {
	mapped := e.mapper.Map(c.Field)
	res := ClauseResult{
		Field:        c.Field,
		ProfileField: mapped,
		Operator:     c.Operator,
		Value:        c.Raw,
		TextSpan:     c.TextSpan,
		Confidence:   c.Confidence,
	}

	unknown := func(reason string) ClauseResult {
		res.Status = StatusUnknown
		res.Reason = reason
		return res
	}

	// Clauses built as literals or decoded elsewhere carry only Raw.
	value := c.Value
	if value == nil {
		value = typedValue(c.Operator, c.Raw)
	}

	if v, ok := value.(Malformed); ok && v.Reason == ReasonClauseUndecodable {
		return unknown(ReasonClauseUndecodable)
	}
	if mapped == fieldmap.Other {
		return unknown(ReasonFieldUnmapped)
	}
	if !c.Operator.Supported() {
		return unknown(ReasonUnsupportedOperator)
	}

	switch v := value.(type) {
	case Missing:
		return unknown(ReasonMissingRuleValue)
	case Malformed:
		return unknown(v.Reason)
	}

	user := attrs.Lookup(mapped)
	res.UserValue = user

	switch c.Operator {
	case OpExists:
		res.Status = boolStatus(present(user))
		return res
	case OpNotExists:
		res.Status = boolStatus(!present(user))
		return res
	}

	if user == nil {
		return unknown(ReasonMissingProfileValue)
	}

	switch v := value.(type) {
	case Scalar:
		return scalarResult(res, c.Operator, user, v.V)
	case List:
		res.Status = boolStatus(inList(user, v))
		return res
	case Range:
		u, okU := toFloat(user)
		lo, okLo := toFloat(v.Min)
		hi, okHi := toFloat(v.Max)
		if !okU || !okLo || !okHi {
			return unknown(ReasonNotNumeric)
		}
		res.Status = boolStatus(lo <= u && u <= hi)
		return res
	}

	return unknown(ReasonMissingRuleValue)
}

func scalarResult(res ClauseResult, op Operator, user, want any) ClauseResult {
	if op.numeric() {
		u, okU := toFloat(user)
		w, okW := toFloat(want)
		if !okU || !okW {
			res.Status = StatusUnknown
			res.Reason = ReasonNotNumeric
			return res
		}
		var ok bool
		switch op {
		case OpGt:
			ok = u > w
		case OpGe:
			ok = u >= w
		case OpLt:
			ok = u < w
		case OpLe:
			ok = u <= w
		}
		res.Status = boolStatus(ok)
		return res
	}

	switch op {
	case OpEq:
		res.Status = boolStatus(strings.EqualFold(toString(user), toString(want)))
	case OpNe:
		res.Status = boolStatus(!strings.EqualFold(toString(user), toString(want)))
	case OpContains:
		res.Status = boolStatus(contains(user, toString(want)))
	}
	return res
}

func contains(user any, needle string) bool {
	needle = strings.ToLower(needle)
	if items, ok := asSlice(user); ok {
		for _, item := range items {
			if strings.Contains(strings.ToLower(toString(item)), needle) {
				return true
			}
		}
		return false
	}
	if m, ok := asMap(user); ok {
		for key := range m {
			if strings.Contains(strings.ToLower(key), needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(toString(user)), needle)
}

func inList(user any, list List) bool {
	candidates := []any{user}
	if items, ok := asSlice(user); ok {
		candidates = items
	}
	for _, candidate := range candidates {
		got := toString(candidate)
		for _, item := range list {
			if strings.EqualFold(got, toString(item)) {
				return true
			}
		}
	}
	return false
}

func boolStatus(ok bool) Status {
	if ok {
		return StatusMatched
	}
	return StatusUnmet
}
