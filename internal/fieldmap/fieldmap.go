// Package fieldmap resolves the many spellings rule authors use for a clause
// field to the canonical profile attribute names.
package fieldmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Other is returned for field names that do not map to any profile attribute.
const Other = "other"

// Canonical lists every profile attribute a clause may address.
var Canonical = []string{
	"state", "district", "pincode", "age", "gender", "category",
	"income_annual", "monthly_income", "occupation", "education_level",
	"farmer", "land_area", "land_type", "disability", "business_type",
	"documents", "extra_flags",
}

var canonicalSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Canonical))
	for _, name := range Canonical {
		set[name] = struct{}{}
	}
	return set
}()

// defaultAliases is the curated alias table. Keys are lower case.
var defaultAliases = map[string]string{
	"age":                "age",
	"state":              "state",
	"district":           "district",
	"pincode":            "pincode",
	"gender":             "gender",
	"occupation":         "occupation",
	"education":          "education_level",
	"education_level":    "education_level",
	"farmer":             "farmer",
	"land":               "land_area",
	"land_area":          "land_area",
	"land_type":          "land_type",
	"disability":         "disability",
	"business":           "business_type",
	"business_type":      "business_type",
	"income_annual":      "income_annual",
	"monthly_income":     "monthly_income",
	"category":           "category",
	"documents":          "documents",
	"extra_flags":        "extra_flags",
	"income":             "income_annual",
	"annual_income":      "income_annual",
	"family_income":      "income_annual",
	"household_income":   "income_annual",
	"state_of_residence": "state",
	"residing_state":     "state",
	"residence_state":    "state",
	"location_state":     "state",
	"caste":              "category",
	"social_category":    "category",
	"woman":              "gender",
	"women":              "gender",
	"female":             "gender",
	"other":              Other,
}

// Mapper is a read-only lookup table. The zero value maps everything to Other.
type Mapper struct {
	aliases  map[string]string
	identity bool
	logger   *zap.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger enables debug logging of unmapped field names.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// Default returns a mapper backed by the built-in alias table.
func Default(opts ...Option) *Mapper {
	return New(defaultAliases, opts...)
}

// Identity returns a mapper that keeps canonical names and maps the rest to Other.
func Identity(opts ...Option) *Mapper {
	m := &Mapper{identity: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// New builds a mapper from an arbitrary alias table. Keys are matched case-insensitively.
func New(aliases map[string]string, opts ...Option) *Mapper {
	m := &Mapper{aliases: make(map[string]string, len(aliases))}
	for raw, canonical := range aliases {
		key := normalize(raw)
		if key == "" {
			continue
		}
		if _, exists := m.aliases[key]; exists {
			continue
		}
		m.aliases[key] = strings.TrimSpace(canonical)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads a JSON mapping file. A missing file falls back to Identity.
func Load(path string, opts ...Option) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m := Identity(opts...)
		if m.logger != nil {
			m.logger.Warn("field mapping file not found, using identity mapping", zap.String("path", path))
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading field mapping %q: %w", path, err)
	}

	var aliases map[string]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parsing field mapping %q: %w", path, err)
	}

	return New(aliases, opts...), nil
}

// Map returns the canonical attribute for a raw clause field, or Other.
func (m *Mapper) Map(raw string) string {
	key := normalize(raw)
	if key == "" || m == nil {
		return Other
	}

	if m.identity {
		if IsCanonical(key) {
			return key
		}
		m.unmapped(raw)
		return Other
	}

	if canonical, ok := m.aliases[key]; ok && canonical != "" {
		return canonical
	}

	m.unmapped(raw)
	return Other
}

// Len reports the number of aliases in the table.
func (m *Mapper) Len() int {
	if m == nil {
		return 0
	}
	return len(m.aliases)
}

func (m *Mapper) unmapped(raw string) {
	if m.logger != nil {
		m.logger.Debug("clause field is not mapped", zap.String("field", raw))
	}
}

// IsCanonical reports whether the root segment of a path is a profile attribute.
func IsCanonical(path string) bool {
	root := path
	if idx := strings.IndexAny(root, ".["); idx >= 0 {
		root = root[:idx]
	}
	_, ok := canonicalSet[root]
	return ok
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Build maps every observed raw field through the default alias table.
// It returns the mapping and the sorted names that fell back to Other.
func Build(observed []string) (map[string]string, []string) {
	mapping := make(map[string]string, len(observed))
	unmappedSet := make(map[string]struct{})

	for _, field := range observed {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		canonical, ok := defaultAliases[normalize(field)]
		if !ok {
			canonical = Other
		}
		mapping[field] = canonical
		if canonical == Other {
			unmappedSet[field] = struct{}{}
		}
	}

	unmapped := make([]string, 0, len(unmappedSet))
	for field := range unmappedSet {
		unmapped = append(unmapped, field)
	}
	sort.Strings(unmapped)

	return mapping, unmapped
}

// WriteFile persists a mapping as indented JSON.
func WriteFile(path string, mapping map[string]string) error {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding field mapping: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing field mapping %q: %w", path, err)
	}
	return nil
}
