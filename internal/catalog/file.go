package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// MemoryStore keeps schemes in memory in dataset order. It is read-only after
// construction.
type MemoryStore struct {
	schemes []Scheme
	byID    map[string]int
}

// NewMemoryStore indexes schemes by id. Later duplicates of an id are ignored.
func NewMemoryStore(schemes []Scheme) *MemoryStore {
	s := &MemoryStore{
		schemes: make([]Scheme, 0, len(schemes)),
		byID:    make(map[string]int, len(schemes)),
	}
	for _, scheme := range schemes {
		id := strings.TrimSpace(scheme.ID)
		if id == "" {
			continue
		}
		if _, dup := s.byID[id]; dup {
			continue
		}
		scheme.ID = id
		s.byID[id] = len(s.schemes)
		s.schemes = append(s.schemes, scheme)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (Scheme, error) {
	idx, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.schemes[idx], nil
}

func (s *MemoryStore) List(context.Context) ([]Scheme, error) {
	out := make([]Scheme, len(s.schemes))
	copy(out, s.schemes)
	return out, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	return len(s.schemes), nil
}

type datasetEnvelope struct {
	Schemes []Scheme `json:"schemes" yaml:"schemes"`
}

// LoadFile reads a dataset file. JSON Lines files (".jsonl") hold one scheme
// per line; anything else is parsed as YAML, which also covers JSON, and may
// be a list of schemes or an object with a "schemes" list.
func LoadFile(path string) ([]Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %q: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return parseJSONLines(path, data)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var probe any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing dataset %q: %w", path, err)
	}

	switch probe.(type) {
	case []any:
		var schemes []Scheme
		if err := yaml.Unmarshal(data, &schemes); err != nil {
			return nil, fmt.Errorf("parsing dataset %q: %w", path, err)
		}
		return schemes, nil
	case map[string]any, map[any]any:
		var env datasetEnvelope
		if err := yaml.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parsing dataset %q: %w", path, err)
		}
		return env.Schemes, nil
	default:
		return nil, fmt.Errorf("parsing dataset %q: expected a list of schemes, got %T", path, probe)
	}
}

func parseJSONLines(path string, data []byte) ([]Scheme, error) {
	var schemes []Scheme
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var scheme Scheme
		if err := json.Unmarshal(text, &scheme); err != nil {
			return nil, fmt.Errorf("parsing dataset %q line %d: %w", path, line, err)
		}
		schemes = append(schemes, scheme)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %q: %w", path, err)
	}
	return schemes, nil
}

// WriteFile stores schemes as an indented JSON list.
func WriteFile(path string, schemes []Scheme) error {
	data, err := json.MarshalIndent(schemes, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing dataset %q: %w", path, err)
	}
	return nil
}
