// Package gender infers implicit gender restrictions of schemes and splits a
// ranked list into per-gender buckets.
package gender

import (
	"regexp"
	"strings"

	"github.com/spigell/yojana-matcher/internal/eligibility"
	"github.com/spigell/yojana-matcher/internal/fieldmap"
)

// Gender is a restriction inferred for a scheme. The empty value means none.
type Gender string

const (
	Unrestricted Gender = ""
	Male         Gender = "male"
	Female       Gender = "female"
)

const (
	ProvenanceRequiredClause = "required_clause"
	ProvenanceTitle          = "title_heuristic"
	ProvenanceRawText        = "raw_text_heuristic"

	confidenceClause      = 0.95
	confidenceTitleFemale = 0.85
	confidenceTitleMale   = 0.80
	confidenceRawText     = 0.80
)

var (
	femaleValues = map[string]struct{}{"f": {}, "female": {}, "woman": {}, "women": {}, "mahila": {}}
	maleValues   = map[string]struct{}{"m": {}, "male": {}, "man": {}, "men": {}}

	femaleKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmahila\b`),
		regexp.MustCompile(`(?i)\bwom[ae]n(?:'s)?\b`),
		regexp.MustCompile(`(?i)\bladki\b`),
		regexp.MustCompile(`(?i)\bbeti\b`),
		regexp.MustCompile(`(?i)\bgirls?\b`),
		regexp.MustCompile(`(?i)\bfemales?\b`),
		regexp.MustCompile(`(?i)\bsamridd?hi\b`),
	}
	maleKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpurush\b`),
		regexp.MustCompile(`(?i)\bmale\b`),
		regexp.MustCompile(`(?i)\bm[ae]n\b`),
	}
)

// Restriction is the inferred gender of a scheme and how it was found.
type Restriction struct {
	Gender     Gender  `json:"gender,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Provenance string  `json:"provenance,omitempty"`
}

// Restricted reports whether the scheme targets a single gender.
func (r Restriction) Restricted() bool {
	return r.Gender != Unrestricted
}

// Scheme carries the fields the disambiguator looks at.
type Scheme struct {
	Name     string
	Required []eligibility.Clause
	RawText  string
}

// Infer applies, in order: an explicit required gender clause, the title
// keywords and the raw eligibility text keywords. The first hit wins.
func Infer(s Scheme, mapper *fieldmap.Mapper) Restriction {
	if mapper == nil {
		mapper = fieldmap.Default()
	}

	for _, c := range s.Required {
		if mapper.Map(c.Field) != "gender" {
			continue
		}
		if c.Operator != eligibility.OpEq && c.Operator != eligibility.OpIn {
			continue
		}
		if g := clauseGender(c.Raw); g != Unrestricted {
			return Restriction{Gender: g, Confidence: confidenceClause, Provenance: ProvenanceRequiredClause}
		}
	}

	if g := keywordGender(s.Name); g != Unrestricted {
		confidence := confidenceTitleMale
		if g == Female {
			confidence = confidenceTitleFemale
		}
		return Restriction{Gender: g, Confidence: confidence, Provenance: ProvenanceTitle}
	}

	if g := keywordGender(s.RawText); g != Unrestricted {
		return Restriction{Gender: g, Confidence: confidenceRawText, Provenance: ProvenanceRawText}
	}

	return Restriction{}
}

// Normalize maps a free-form gender value to Male, Female or Unrestricted.
func Normalize(value string) Gender {
	v := strings.ToLower(strings.TrimSpace(value))
	if _, ok := femaleValues[v]; ok {
		return Female
	}
	if _, ok := maleValues[v]; ok {
		return Male
	}
	return Unrestricted
}

func clauseGender(raw any) Gender {
	switch v := raw.(type) {
	case string:
		return Normalize(v)
	case []any:
		var found Gender
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			g := Normalize(s)
			if g == Unrestricted {
				continue
			}
			if found != Unrestricted && found != g {
				return Unrestricted
			}
			found = g
		}
		return found
	}
	return Unrestricted
}

func keywordGender(text string) Gender {
	if strings.TrimSpace(text) == "" {
		return Unrestricted
	}
	for _, re := range femaleKeywords {
		if re.MatchString(text) {
			return Female
		}
	}
	for _, re := range maleKeywords {
		if re.MatchString(text) {
			return Male
		}
	}
	return Unrestricted
}
