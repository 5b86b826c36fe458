package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/yojana-matcher/internal/recommend"
)

// ExcludedSchemes is the content of an exclude file: schemes the requester
// has already handled.
type ExcludedSchemes struct {
	Items []*ExcludedScheme `json:"items"`
}

type ExcludedScheme struct {
	ID         string    `json:"scheme_id"`
	Name       string    `json:"scheme_name,omitempty"`
	URL        string    `json:"source_url,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// ToExcluded converts candidates into exclude entries stamped with now.
func ToExcluded(candidates []recommend.Candidate, now time.Time) *ExcludedSchemes {
	excluded := &ExcludedSchemes{}
	for _, c := range candidates {
		excluded.Items = append(excluded.Items, &ExcludedScheme{
			ID:         c.SchemeID,
			Name:       c.SchemeName,
			URL:        c.SourceURL,
			ExcludedAt: now.UTC(),
		})
	}
	return excluded
}

// LoadExcluded reads an exclude file. A missing or empty file is an empty list.
func LoadExcluded(path string) (*ExcludedSchemes, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedSchemes{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading exclude file %q: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &ExcludedSchemes{}, nil
	}

	var excluded ExcludedSchemes
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("parsing exclude file %q: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries whose id is not yet present.
func (e *ExcludedSchemes) Append(other *ExcludedSchemes) {
	seen := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		seen[item.ID] = struct{}{}
	}
	for _, item := range other.Items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedSchemes) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ToFile overwrites path with the list.
func (e *ExcludedSchemes) ToFile(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding exclude file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing exclude file %q: %w", path, err)
	}
	return nil
}

type excludeFileFilter struct {
	path   string
	logger *zap.Logger
}

// NewExcludeFile drops candidates listed in the exclude file at path. An empty
// path drops nothing.
func NewExcludeFile(path string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: logger}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Apply(_ context.Context, candidates []recommend.Candidate) ([]recommend.Candidate, Step, error) {
	initial := len(candidates)
	if f.path == "" {
		return candidates, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return candidates, Step{}, err
	}

	ids := make(map[string]struct{}, len(excluded.Items))
	for _, id := range excluded.IDs() {
		ids[id] = struct{}{}
	}

	kept, dropped := keep(candidates, func(c recommend.Candidate) bool {
		_, skip := ids[c.SchemeID]
		return !skip
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding schemes based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_schemes", dropped),
			zap.Int("schemes_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
