package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json list",
			file:    "schemes.json",
			content: `[{"scheme_id": "s1", "scheme_name": "One", "eligibility_structured": {"required": [{"field": "age", "operator": ">", "value": 18}]}}, {"scheme_id": "s2", "scheme_name": "Two"}]`,
		},
		{
			name:    "json envelope",
			file:    "schemes.json",
			content: `{"schemes": [{"scheme_id": "s1", "scheme_name": "One", "eligibility_structured": "{\"required\": [{\"field\": \"age\", \"operator\": \">\", \"value\": 18}]}"}, {"scheme_id": "s2", "scheme_name": "Two"}]}`,
		},
		{
			name: "yaml list",
			file: "schemes.yaml",
			content: `- scheme_id: s1
  scheme_name: One
  eligibility_structured:
    required:
      - field: age
        operator: ">"
        value: 18
- scheme_id: s2
  scheme_name: Two
`,
		},
		{
			name: "json lines",
			file: "schemes.jsonl",
			content: `{"scheme_id": "s1", "scheme_name": "One", "eligibility_structured": {"required": [{"field": "age", "operator": ">", "value": 18}]}}

{"scheme_id": "s2", "scheme_name": "Two"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schemes, err := LoadFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, schemes, 2)

			assert.Equal(t, "s1", schemes[0].ID)
			assert.Equal(t, "Two", schemes[1].Name)

			spec, err := schemes[0].Spec()
			require.NoError(t, err)
			require.Len(t, spec.Required, 1)
			assert.Equal(t, "age", spec.Required[0].Field)

			spec, err = schemes[1].Spec()
			require.NoError(t, err)
			assert.Zero(t, spec.Len())
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadFile(writeFile(t, "bad.jsonl", "{\"scheme_id\": \"s1\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore([]Scheme{
		{ID: "a", Name: "first"},
		{ID: " b ", Name: "second"},
		{ID: "a", Name: "duplicate"},
		{ID: "", Name: "no id"},
	})

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)

	got, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)

	_, err = store.Get(ctx, "zzz")
	assert.True(t, errors.Is(err, ErrNotFound))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestEligibilityJSON(t *testing.T) {
	s := Scheme{ID: "s1", EligibilityStructured: map[string]any{
		"optional": []any{map[string]any{"field": "state", "operator": "=", "value": "Goa"}},
	}}

	text, err := s.EligibilityJSON()
	require.NoError(t, err)

	roundTrip := Scheme{ID: "s1", EligibilityStructured: text}
	spec, err := roundTrip.Spec()
	require.NoError(t, err)
	require.Len(t, spec.Optional, 1)
	assert.Equal(t, "Goa", spec.Optional[0].Raw)

	empty, err := Scheme{ID: "s2"}.EligibilityJSON()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmbedDocument(t *testing.T) {
	s := Scheme{
		Name:           "PM  Kisan",
		DescriptionRaw: "Income support\n\nfor farmers",
		EligibilityRaw: "Landholding farmers",
		BenefitsRaw:    "Rs 6000 per year",
		StateScope:     "All India",
		Category:       "Agriculture",
		SourceURL:      "https://example.org/pm-kisan",
	}

	doc := s.EmbedDocument()
	assert.True(t, strings.HasPrefix(doc, "PM Kisan\n\nDescription:\nIncome support for farmers"))
	assert.Contains(t, doc, "Benefits:\nRs 6000 per year")
	assert.NotContains(t, doc, "Process:")
	assert.True(t, strings.HasSuffix(doc, "Source: https://example.org/pm-kisan"))

	s.ProcessRaw = strings.Repeat("apply online ", 1000)
	long := s.EmbedDocument()
	assert.LessOrEqual(t, len([]rune(long)), MaxEmbedDocLen)
	assert.True(t, strings.HasSuffix(long, "Source: https://example.org/pm-kisan"))
}
