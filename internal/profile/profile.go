// Package profile holds the requester profile and turns loosely keyed user
// input into canonical attributes.
package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/spigell/yojana-matcher/internal/eligibility"
)

// Profile is a normalized requester. Empty strings and nil pointers are absent.
type Profile struct {
	UserID         string            `json:"user_id,omitempty" mapstructure:"user_id"`
	State          string            `json:"state,omitempty" mapstructure:"state"`
	District       string            `json:"district,omitempty" mapstructure:"district"`
	Pincode        string            `json:"pincode,omitempty" mapstructure:"pincode"`
	Age            *int              `json:"age,omitempty" mapstructure:"age"`
	Gender         string            `json:"gender,omitempty" mapstructure:"gender"`
	Category       string            `json:"category,omitempty" mapstructure:"category"`
	IncomeAnnual   *float64          `json:"income_annual,omitempty" mapstructure:"income_annual"`
	MonthlyIncome  *float64          `json:"monthly_income,omitempty" mapstructure:"monthly_income"`
	Occupation     string            `json:"occupation,omitempty" mapstructure:"occupation"`
	EducationLevel string            `json:"education_level,omitempty" mapstructure:"education_level"`
	Farmer         *bool             `json:"farmer,omitempty" mapstructure:"farmer"`
	LandArea       *float64          `json:"land_area,omitempty" mapstructure:"land_area"`
	LandType       string            `json:"land_type,omitempty" mapstructure:"land_type"`
	Disability     string            `json:"disability,omitempty" mapstructure:"disability"`
	BusinessType   string            `json:"business_type,omitempty" mapstructure:"business_type"`
	Documents      map[string]string `json:"documents,omitempty" mapstructure:"documents"`
	ExtraFlags     map[string]any    `json:"extra_flags,omitempty" mapstructure:"extra_flags"`
}

// Attributes flattens the profile for rule evaluation, omitting absent values.
func (p Profile) Attributes() eligibility.Attributes {
	attrs := eligibility.Attributes{}

	setString := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			attrs[key] = value
		}
	}
	setString("state", p.State)
	setString("district", p.District)
	setString("pincode", p.Pincode)
	setString("gender", p.Gender)
	setString("category", p.Category)
	setString("occupation", p.Occupation)
	setString("education_level", p.EducationLevel)
	setString("land_type", p.LandType)
	setString("disability", p.Disability)
	setString("business_type", p.BusinessType)

	if p.Age != nil {
		attrs["age"] = *p.Age
	}
	if p.IncomeAnnual != nil {
		attrs["income_annual"] = *p.IncomeAnnual
	}
	if p.MonthlyIncome != nil {
		attrs["monthly_income"] = *p.MonthlyIncome
	}
	if p.Farmer != nil {
		attrs["farmer"] = *p.Farmer
	}
	if p.LandArea != nil {
		attrs["land_area"] = *p.LandArea
	}
	if len(p.Documents) > 0 {
		docs := make(map[string]any, len(p.Documents))
		for k, v := range p.Documents {
			docs[k] = v
		}
		attrs["documents"] = docs
	}
	if len(p.ExtraFlags) > 0 {
		attrs["extra_flags"] = p.ExtraFlags
	}

	return attrs
}

// Diagnostics reports what normalization could not do.
type Diagnostics struct {
	MissingFields []string       `json:"missing_fields"`
	InvalidFields map[string]any `json:"invalid_fields"`
	Warnings      []string       `json:"warnings"`
}

func newDiagnostics() Diagnostics {
	return Diagnostics{
		MissingFields: []string{},
		InvalidFields: map[string]any{},
		Warnings:      []string{},
	}
}

func (d *Diagnostics) invalid(field string, raw any) {
	d.InvalidFields[field] = raw
	d.Warnings = append(d.Warnings, fmt.Sprintf("%s could not be parsed from '%v'.", field, raw))
}

// CommonlyRequired are the attributes most scheme rules ask about.
var CommonlyRequired = []string{"state", "age", "income_annual", "category", "occupation"}

// inputAliases lists accepted input keys per attribute, in lookup order.
var inputAliases = map[string][]string{
	"state":           {"state", "state_name", "user_state", "residing_state", "state_of_residence"},
	"district":        {"district", "district_name"},
	"pincode":         {"pincode", "pin", "zip", "zipcode"},
	"age":             {"age", "user_age"},
	"gender":          {"gender", "sex"},
	"category":        {"category", "caste", "social_category"},
	"income_annual":   {"income_annual", "annual_income", "income", "yearly_income", "family_income"},
	"monthly_income":  {"monthly_income", "income_monthly", "monthly_salary"},
	"occupation":      {"occupation", "job", "work"},
	"education_level": {"education_level", "education", "qualification"},
	"farmer":          {"farmer", "is_farmer"},
	"land_area":       {"land_area", "land", "landholding"},
	"land_type":       {"land_type"},
	"disability":      {"disability", "disability_type"},
	"business_type":   {"business_type", "business"},
	"user_id":         {"user_id", "userid"},
	"documents":       {"documents"},
	"extra_flags":     {"extra_flags"},
}

type rawInput map[string]any

// newRawInput indexes keys case-insensitively. When two keys collide the
// lexically smallest original key wins.
func newRawInput(raw map[string]any) rawInput {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	in := make(rawInput, len(raw))
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, exists := in[lk]; !exists {
			in[lk] = raw[k]
		}
	}
	return in
}

func (in rawInput) get(attribute string) any {
	for _, key := range inputAliases[attribute] {
		if v, ok := in[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (in rawInput) text(attribute string) string {
	v := in.get(attribute)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

// Normalize builds a Profile from loosely keyed input and reports missing or
// unparsable fields. It never fails.
func Normalize(raw map[string]any) (Profile, Diagnostics) {
	in := newRawInput(raw)
	diag := newDiagnostics()
	var p Profile

	p.UserID = in.text("user_id")
	p.District = in.text("district")
	p.Pincode = in.text("pincode")
	p.Occupation = in.text("occupation")
	p.LandType = in.text("land_type")
	p.Disability = in.text("disability")
	p.BusinessType = in.text("business_type")

	if rawState := in.text("state"); rawState != "" {
		p.State = NormalizeState(rawState)
		if p.State != rawState {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("state '%s' normalized to '%s'.", rawState, p.State))
		}
	}
	p.Gender = NormalizeGender(in.text("gender"))
	p.Category = NormalizeCategory(in.text("category"))

	if v := in.get("age"); v != nil {
		if age, ok := ParseAge(v); ok {
			p.Age = &age
		} else {
			diag.invalid("age", v)
		}
	}

	if v := in.get("income_annual"); v != nil {
		if income, ok := ParseIncome(v); ok {
			p.IncomeAnnual = &income
		} else {
			diag.invalid("income_annual", v)
		}
	}
	if v := in.get("monthly_income"); v != nil {
		if income, ok := ParseIncome(v); ok {
			p.MonthlyIncome = &income
		} else {
			diag.invalid("monthly_income", v)
		}
	}

	if rawEdu := in.text("education_level"); rawEdu != "" {
		p.EducationLevel = NormalizeEducation(rawEdu)
		if p.EducationLevel == "" {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("education_level could not be normalized from '%s'.", rawEdu))
		}
	}

	if v := in.get("farmer"); v != nil {
		if farmer, ok := ParseBool(v); ok {
			p.Farmer = &farmer
		} else {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("farmer could not be parsed from '%v'.", v))
		}
	}

	if v := in.get("land_area"); v != nil {
		if area, ok := parseNumber(v); ok {
			p.LandArea = &area
		} else {
			diag.invalid("land_area", v)
		}
	}

	if v := in.get("documents"); v != nil {
		if docs, ok := stringMap(v); ok {
			p.Documents = docs
		} else {
			diag.Warnings = append(diag.Warnings, "documents field was not a map and has been ignored.")
		}
	}
	if v := in.get("extra_flags"); v != nil {
		if flags, ok := anyMap(v); ok {
			p.ExtraFlags = flags
		} else {
			diag.Warnings = append(diag.Warnings, "extra_flags field was not a map and has been ignored.")
		}
	}

	attrs := p.Attributes()
	for _, field := range CommonlyRequired {
		if attrs.Lookup(field) == nil {
			diag.MissingFields = append(diag.MissingFields, field)
		}
	}

	return p, diag
}

// ReadFile loads a profile from a YAML or JSON file and normalizes it.
func ReadFile(path string) (Profile, Diagnostics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, Diagnostics{}, fmt.Errorf("reading profile %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Profile{}, Diagnostics{}, fmt.Errorf("parsing profile %q: %w", path, err)
	}

	p, diag := Normalize(raw)
	return p, diag, nil
}

func anyMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[fmt.Sprintf("%v", k)] = item
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = item
		}
		return out, true
	}
	return nil, false
}

func stringMap(v any) (map[string]string, bool) {
	m, ok := anyMap(v)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		out[k] = fmt.Sprintf("%v", item)
	}
	return out, true
}
