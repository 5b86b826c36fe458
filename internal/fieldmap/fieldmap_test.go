package fieldmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultMapper(t *testing.T) {
	m := Default()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "age", want: "age"},
		{raw: "  Annual_Income ", want: "income_annual"},
		{raw: "FAMILY_INCOME", want: "income_annual"},
		{raw: "state_of_residence", want: "state"},
		{raw: "Caste", want: "category"},
		{raw: "women", want: "gender"},
		{raw: "education", want: "education_level"},
		{raw: "land", want: "land_area"},
		{raw: "is_bpl_card_holder", want: Other},
		{raw: "", want: Other},
		{raw: "   ", want: Other},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.raw))
		})
	}
}

func TestIdentityMapper(t *testing.T) {
	m := Identity()

	assert.Equal(t, "state", m.Map("State"))
	assert.Equal(t, "documents.aadhar", m.Map("documents.aadhar"))
	assert.Equal(t, "extra_flags[0]", m.Map("extra_flags[0]"))
	assert.Equal(t, Other, m.Map("annual_income"))
	assert.Equal(t, Other, m.Map("residency"))
}

func TestNilMapper(t *testing.T) {
	var m *Mapper
	assert.Equal(t, Other, m.Map("age"))
	assert.Zero(t, m.Len())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.json")
	data, err := json.Marshal(map[string]string{
		"Applicant_Age": "age",
		"Residence":     "state",
		"bpl":           "other",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "age", m.Map("applicant_age"))
	assert.Equal(t, "state", m.Map("RESIDENCE"))
	assert.Equal(t, Other, m.Map("bpl"))
	assert.Equal(t, Other, m.Map("age"), "a loaded table does not fall back to the built-in aliases")
}

func TestLoadMissingFileFallsBackToIdentity(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)

	m, err := Load(filepath.Join(t.TempDir(), "absent.json"), WithLogger(zap.New(core)))
	require.NoError(t, err)

	assert.Equal(t, "age", m.Map("age"))
	assert.Equal(t, Other, m.Map("annual_income"))
	assert.Equal(t, 1, observed.FilterMessage("field mapping file not found, using identity mapping").Len())
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing field mapping")
}

func TestUnmappedFieldsAreLoggedAtDebug(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	m := Default(WithLogger(zap.New(core)))

	m.Map("age")
	m.Map("ration_card")

	entries := observed.FilterMessage("clause field is not mapped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ration_card", entries[0].ContextMap()["field"])
}

func TestBuild(t *testing.T) {
	mapping, unmapped := Build([]string{"Age", "income", "ration_card", " ", "bpl", "ration_card"})

	assert.Equal(t, map[string]string{
		"Age":         "age",
		"income":      "income_annual",
		"ration_card": Other,
		"bpl":         Other,
	}, mapping)
	assert.Equal(t, []string{"bpl", "ration_card"}, unmapped)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	mapping, _ := Build([]string{"Annual_Income", "caste"})

	require.NoError(t, WriteFile(path, mapping))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "income_annual", m.Map("annual_income"))
	assert.Equal(t, "category", m.Map("CASTE"))
}
