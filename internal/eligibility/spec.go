package eligibility

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Spec is the structured eligibility of a scheme.
type Spec struct {
	Required []Clause `json:"required"`
	Optional []Clause `json:"optional"`

	// Warnings lists clause attributes that could not be decoded.
	Warnings []string `json:"-"`
}

type rawSpec struct {
	Required []any `mapstructure:"required"`
	Optional []any `mapstructure:"optional"`
}

type rawClause struct {
	Field      string   `mapstructure:"field"`
	Operator   string   `mapstructure:"operator"`
	Value      any      `mapstructure:"value"`
	Confidence *float64 `mapstructure:"confidence"`
	Source     string   `mapstructure:"source"`
	TextSpan   string   `mapstructure:"text_span"`
}

// ParseSpec accepts a decoded document, a JSON string or bytes. An empty or
// null input yields an empty Spec. List entries that are not objects are skipped.
// A clause with bad attributes never fails the document: it is kept and
// evaluates to unknown, or keeps the default confidence.
func ParseSpec(raw any) (Spec, error) {
	switch v := raw.(type) {
	case nil:
		return Spec{}, nil
	case Spec:
		return v, nil
	case *Spec:
		if v == nil {
			return Spec{}, nil
		}
		return *v, nil
	case []byte:
		return parseJSON(string(v))
	case string:
		return parseJSON(v)
	case json.RawMessage:
		return parseJSON(string(v))
	}

	doc, ok := asMap(raw)
	if !ok {
		return Spec{}, fmt.Errorf("eligibility must be an object, got %T", raw)
	}

	var rs rawSpec
	if err := decode(doc, &rs); err != nil {
		return Spec{}, fmt.Errorf("decoding eligibility: %w", err)
	}

	var warnings []string
	required := parseClauses("required", rs.Required, &warnings)
	optional := parseClauses("optional", rs.Optional, &warnings)

	return Spec{Required: required, Optional: optional, Warnings: warnings}, nil
}

func parseJSON(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return Spec{}, nil
	}

	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return Spec{}, fmt.Errorf("parsing eligibility json: %w", err)
	}
	if doc == nil {
		return Spec{}, nil
	}
	return ParseSpec(doc)
}

func parseClauses(scope string, items []any, warnings *[]string) []Clause {
	clauses := make([]Clause, 0, len(items))
	for i, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}

		c, faults := parseClause(m)
		for _, f := range faults {
			*warnings = append(*warnings, fmt.Sprintf("%s clause %d: %s", scope, i, f))
		}
		clauses = append(clauses, c)
	}
	return clauses
}

// parseClause decodes one clause attribute by attribute. A bad confidence
// keeps the default, any other bad attribute marks the clause undecodable.
func parseClause(m map[string]any) (Clause, []string) {
	var rc rawClause
	if err := decode(m, &rc); err == nil {
		c := NewClause(rc.Field, rc.Operator, rc.Value)
		if rc.Confidence != nil {
			c.Confidence = *rc.Confidence
		}
		c.Source = rc.Source
		c.TextSpan = rc.TextSpan
		return c, nil
	}

	var (
		faults      []string
		undecodable bool
	)
	attrs := []struct {
		key string
		dst *string
	}{
		{key: "field", dst: &rc.Field},
		{key: "operator", dst: &rc.Operator},
		{key: "source", dst: &rc.Source},
		{key: "text_span", dst: &rc.TextSpan},
	}
	for _, a := range attrs {
		v, ok := m[a.key]
		if !ok || v == nil {
			continue
		}
		if err := decode(v, a.dst); err != nil {
			faults = append(faults, fmt.Sprintf("%s: %v", a.key, err))
			undecodable = true
		}
	}

	c := NewClause(rc.Field, rc.Operator, m["value"])
	if v, ok := m["confidence"]; ok && v != nil {
		var confidence float64
		if err := decode(v, &confidence); err != nil {
			faults = append(faults, fmt.Sprintf("confidence: %v", err))
		} else {
			c.Confidence = confidence
		}
	}
	c.Source = rc.Source
	c.TextSpan = rc.TextSpan
	if undecodable {
		c.Value = Malformed{Reason: ReasonClauseUndecodable}
	}
	return c, faults
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// UnmarshalJSON lets a Spec be decoded straight from a stored document.
func (s *Spec) UnmarshalJSON(data []byte) error {
	parsed, err := parseJSON(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Len returns the number of clauses across both scopes.
func (s Spec) Len() int {
	return len(s.Required) + len(s.Optional)
}

// Fields returns every raw clause field in order of appearance.
func (s Spec) Fields() []string {
	fields := make([]string, 0, s.Len())
	for _, c := range s.Required {
		fields = append(fields, c.Field)
	}
	for _, c := range s.Optional {
		fields = append(fields, c.Field)
	}
	return fields
}
