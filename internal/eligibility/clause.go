package eligibility

import (
	"encoding/json"
	"strings"
)

// Operator is the comparison a clause applies to a profile value.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpGt        Operator = ">"
	OpGe        Operator = ">="
	OpLt        Operator = "<"
	OpLe        Operator = "<="
	OpIn        Operator = "in"
	OpContains  Operator = "contains"
	OpBetween   Operator = "between"
	OpExists    Operator = "exists"
	OpNotExists Operator = "not_exists"
)

var supportedOperators = map[Operator]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpGe: {}, OpLt: {}, OpLe: {},
	OpIn: {}, OpContains: {}, OpBetween: {}, OpExists: {}, OpNotExists: {},
}

// Supported reports whether the operator can be evaluated.
func (o Operator) Supported() bool {
	_, ok := supportedOperators[o]
	return ok
}

func (o Operator) numeric() bool {
	return o == OpGt || o == OpGe || o == OpLt || o == OpLe
}

func (o Operator) existence() bool {
	return o == OpExists || o == OpNotExists
}

// Value is the operand of a clause. The concrete type is chosen by the operator
// when the clause is built, so evaluation never inspects raw JSON shapes.
type Value interface {
	isValue()
}

// Scalar is the operand of equality, contains and numeric operators.
type Scalar struct {
	V any
}

// List is the operand of the in operator.
type List []any

// Range is the inclusive operand of the between operator.
type Range struct {
	Min any
	Max any
}

// Missing marks a clause that needs an operand but has none.
type Missing struct{}

// Malformed marks an operand whose shape does not fit the operator.
type Malformed struct {
	Reason string
}

func (Scalar) isValue()    {}
func (List) isValue()      {}
func (Range) isValue()     {}
func (Missing) isValue()   {}
func (Malformed) isValue() {}

// Clause is one eligibility condition.
type Clause struct {
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"`
	Raw        any      `json:"value"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
	TextSpan   string   `json:"text_span,omitempty"`

	Value Value `json:"-"`
}

// NewClause builds a clause and types its operand according to the operator.
func NewClause(field, operator string, value any) Clause {
	op := Operator(strings.ToLower(strings.TrimSpace(operator)))
	return Clause{
		Field:      strings.TrimSpace(field),
		Operator:   op,
		Raw:        value,
		Confidence: 1.0,
		Value:      typedValue(op, value),
	}
}

// UnmarshalJSON decodes a clause the same way ParseSpec does, so the operand
// is typed and a missing confidence defaults to 1.0.
func (c *Clause) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	*c, _ = parseClause(doc)
	return nil
}

func typedValue(op Operator, raw any) Value {
	if op.existence() {
		return nil
	}
	if raw == nil {
		return Missing{}
	}

	switch op {
	case OpBetween:
		return rangeValue(raw)
	case OpIn:
		if items, ok := asSlice(raw); ok {
			return List(items)
		}
		if _, ok := asMap(raw); ok {
			return Malformed{Reason: "in_value_not_list"}
		}
		return List{raw}
	default:
		if _, ok := asSlice(raw); ok {
			return Malformed{Reason: "scalar_expected"}
		}
		if _, ok := asMap(raw); ok {
			return Malformed{Reason: "scalar_expected"}
		}
		return Scalar{V: raw}
	}
}

func rangeValue(raw any) Value {
	if items, ok := asSlice(raw); ok {
		if len(items) != 2 {
			return Malformed{Reason: "between_value_not_pair"}
		}
		return Range{Min: items[0], Max: items[1]}
	}
	if m, ok := asMap(raw); ok {
		lo, hasMin := m["min"]
		hi, hasMax := m["max"]
		if !hasMin || !hasMax {
			return Malformed{Reason: "between_value_missing_bound"}
		}
		return Range{Min: lo, Max: hi}
	}
	return Malformed{Reason: "between_value_not_range"}
}
