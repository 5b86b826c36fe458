// Package catalog describes welfare scheme records and the stores that serve
// them by id.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/yojana-matcher/internal/eligibility"
)

// ErrNotFound is returned by stores for unknown scheme ids.
var ErrNotFound = errors.New("scheme not found")

// MaxEmbedDocLen caps the embedding document length in runes.
const MaxEmbedDocLen = 4000

// Scheme is a catalog record. EligibilityStructured holds either a decoded
// document or its JSON text, as it was stored.
type Scheme struct {
	ID                    string `json:"scheme_id" yaml:"scheme_id"`
	Name                  string `json:"scheme_name" yaml:"scheme_name"`
	DescriptionRaw        string `json:"description_raw,omitempty" yaml:"description_raw"`
	BenefitsRaw           string `json:"benefits_raw,omitempty" yaml:"benefits_raw"`
	EligibilityRaw        string `json:"eligibility_raw,omitempty" yaml:"eligibility_raw"`
	ProcessRaw            string `json:"process_raw,omitempty" yaml:"process_raw"`
	StateScope            string `json:"state_scope,omitempty" yaml:"state_scope"`
	Category              string `json:"category,omitempty" yaml:"category"`
	SourceURL             string `json:"source_url,omitempty" yaml:"source_url"`
	LastUpdated           string `json:"last_updated,omitempty" yaml:"last_updated"`
	EligibilityStructured any    `json:"eligibility_structured,omitempty" yaml:"eligibility_structured"`
}

// Spec parses the structured eligibility of the scheme.
func (s Scheme) Spec() (eligibility.Spec, error) {
	return eligibility.ParseSpec(s.EligibilityStructured)
}

// EligibilityJSON renders the structured eligibility as JSON text for storage.
// Stored text is returned unchanged.
func (s Scheme) EligibilityJSON() (string, error) {
	switch v := s.EligibilityStructured.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}

	spec, err := s.Spec()
	if err != nil {
		return "", fmt.Errorf("scheme %s: %w", s.ID, err)
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("scheme %s: encoding eligibility: %w", s.ID, err)
	}
	return string(data), nil
}

var whitespace = regexp.MustCompile(`\s+`)

func clean(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// EmbedDocument builds the text that represents the scheme in the vector
// index. Name, description and eligibility always come first; benefits and
// process are added while room is left; the metadata block closes the
// document.
func (s Scheme) EmbedDocument() string {
	meta := fmt.Sprintf("State scope: %s\nCategory: %s\nSource: %s", clean(s.StateScope), clean(s.Category), clean(s.SourceURL))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nDescription:\n%s\n\nEligibility:\n%s\n\n", clean(s.Name), clean(s.DescriptionRaw), clean(s.EligibilityRaw))

	for _, section := range []struct{ title, body string }{
		{"Benefits", clean(s.BenefitsRaw)},
		{"Process", clean(s.ProcessRaw)},
	} {
		if section.body == "" {
			continue
		}
		block := []rune(fmt.Sprintf("%s:\n%s\n\n", section.title, section.body))
		room := MaxEmbedDocLen - len([]rune(b.String())) - len([]rune(meta)) - 1
		if room <= 0 {
			break
		}
		if len(block) > room {
			block = block[:room]
		}
		b.WriteString(string(block))
	}
	b.WriteString(meta)

	doc := []rune(b.String())
	if len(doc) > MaxEmbedDocLen {
		doc = doc[:MaxEmbedDocLen]
	}
	return string(doc)
}

// Store serves schemes by id.
type Store interface {
	Get(ctx context.Context, id string) (Scheme, error)
	List(ctx context.Context) ([]Scheme, error)
	Count(ctx context.Context) (int, error)
}
