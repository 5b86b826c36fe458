package profile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var stateAliases = map[string][]string{
	"Maharashtra":       {"mh", "maha", "maharastra", "maharashtra"},
	"Uttar Pradesh":     {"up", "u.p.", "uttar pradesh"},
	"Madhya Pradesh":    {"mp", "m.p.", "madhya pradesh"},
	"Gujarat":           {"gj", "guj", "gujarat"},
	"Karnataka":         {"ka", "kar", "karnataka"},
	"Tamil Nadu":        {"tn", "tamilnadu", "tamil nadu"},
	"Telangana":         {"ts", "tg", "telangana"},
	"Andhra Pradesh":    {"ap", "andhra pradesh"},
	"Rajasthan":         {"rj", "raj", "rajasthan"},
	"Bihar":             {"br", "bih", "bihar"},
	"West Bengal":       {"wb", "w.b.", "west bengal"},
	"Odisha":            {"od", "odisha", "orissa"},
	"Delhi":             {"dl", "delhi", "nct delhi", "nct of delhi"},
	"Haryana":           {"hr", "haryana"},
	"Punjab":            {"pb", "punjab"},
	"Kerala":            {"kl", "kerala"},
	"Jharkhand":         {"jh", "jharkhand"},
	"Chhattisgarh":      {"ct", "cg", "chhattisgarh", "chattisgarh"},
	"Assam":             {"as", "assam"},
	"Goa":               {"ga", "goa"},
	"Jammu and Kashmir": {"jk", "j&k", "jammu & kashmir", "jammu and kashmir"},
	"Ladakh":            {"la", "ladakh"},
}

var categoryAliases = map[string][]string{
	"SC":      {"sc", "scheduled caste", "schedule caste"},
	"ST":      {"st", "scheduled tribe", "schedule tribe"},
	"OBC":     {"obc", "other backward class", "other backward classes"},
	"EWS":     {"ews", "economically weaker section"},
	"General": {"gen", "general", "open", "unreserved"},
}

var genderValues = map[string]string{
	"m":           "male",
	"male":        "male",
	"man":         "male",
	"boy":         "male",
	"f":           "female",
	"female":      "female",
	"woman":       "female",
	"girl":        "female",
	"transgender": "other",
	"other":       "other",
	"non-binary":  "other",
	"nb":          "other",
}

var educationValues = map[string]string{
	"below 10th":       "below_10th",
	"under 10th":       "below_10th",
	"upto 9th":         "below_10th",
	"10th":             "10th",
	"ssc":              "10th",
	"matric":           "10th",
	"matriculation":    "10th",
	"12th":             "12th",
	"hsc":              "12th",
	"higher secondary": "12th",
	"diploma":          "diploma",
	"iti":              "diploma",
	"polytechnic":      "diploma",
	"graduate":         "graduate",
	"bachelor":         "graduate",
	"bachelors":        "graduate",
	"ba":               "graduate",
	"bsc":              "graduate",
	"bcom":             "graduate",
	"b.tech":           "graduate",
	"btech":            "graduate",
	"postgraduate":     "postgraduate",
	"post graduate":    "postgraduate",
	"pg":               "postgraduate",
	"ma":               "postgraduate",
	"msc":              "postgraduate",
	"mcom":             "postgraduate",
	"m.tech":           "postgraduate",
	"mtech":            "postgraduate",
	"doctorate":        "doctorate",
	"phd":              "doctorate",
}

var (
	trueWords  = map[string]struct{}{"yes": {}, "y": {}, "true": {}, "1": {}, "farmer": {}}
	falseWords = map[string]struct{}{"no": {}, "n": {}, "false": {}, "0": {}, "non_farmer": {}, "non-farmer": {}, "not farmer": {}}
)

var (
	stateLookup    = invert(stateAliases)
	categoryLookup = invert(categoryAliases)

	currencyNoise = regexp.MustCompile(`(?i)₹|\brs\.?|\binr\b|/-`)
	incomePattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*(lakhs?|lacs?|crores?|cr|k)?$`)
)

func invert(aliases map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, names := range aliases {
		for _, name := range names {
			out[strings.ToLower(strings.TrimSpace(name))] = canonical
		}
	}
	return out
}

// NormalizeState maps a state code or spelling to its canonical name. Unknown
// values are title-cased.
func NormalizeState(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	if canonical, ok := stateLookup[strings.ToLower(raw)]; ok {
		return canonical
	}
	return titleCase(raw)
}

// NormalizeCategory maps a social category to SC, ST, OBC, EWS or General.
func NormalizeCategory(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	if canonical, ok := categoryLookup[strings.ToLower(raw)]; ok {
		return canonical
	}
	return titleCase(raw)
}

// NormalizeGender returns male, female, other or unspecified.
func NormalizeGender(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return ""
	}
	if g, ok := genderValues[raw]; ok {
		return g
	}
	return "unspecified"
}

// NormalizeEducation maps a qualification to a coarse level, or "" when it
// cannot be recognised.
func NormalizeEducation(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return ""
	}
	if level, ok := educationValues[key]; ok {
		return level
	}

	switch {
	case strings.Contains(key, "12"):
		return "12th"
	case strings.Contains(key, "10"):
		return "10th"
	case strings.Contains(key, "diploma"), strings.Contains(key, "iti"), strings.Contains(key, "polytechnic"):
		return "diploma"
	case strings.Contains(key, "phd"), strings.Contains(key, "ph.d"), strings.Contains(key, "doctor"):
		return "doctorate"
	case strings.HasPrefix(key, "b.") || strings.HasPrefix(key, "b "):
		return "graduate"
	case strings.HasPrefix(key, "m.") || strings.HasPrefix(key, "m "):
		return "postgraduate"
	}
	return ""
}

// ParseIncome understands plain numbers, thousands separators, currency marks
// and lakh or crore magnitudes.
func ParseIncome(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case string:
		return parseIncomeString(v)
	default:
		return parseNumber(value)
	}
}

func parseIncomeString(value string) (float64, bool) {
	cleaned := strings.ReplaceAll(value, ",", "")
	cleaned = currencyNoise.ReplaceAllString(cleaned, "")
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	if cleaned == "" {
		return 0, false
	}

	m := incomePattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, false
	}
	base, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	switch {
	case strings.HasPrefix(m[2], "lakh"), strings.HasPrefix(m[2], "lac"):
		base *= 100_000
	case strings.HasPrefix(m[2], "cr"):
		base *= 10_000_000
	case m[2] == "k":
		base *= 1_000
	}
	return base, true
}

// ParseBool understands yes/no style words. Numbers are true when non-zero.
func ParseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		key := strings.ToLower(strings.TrimSpace(v))
		if _, ok := trueWords[key]; ok {
			return true, true
		}
		if _, ok := falseWords[key]; ok {
			return false, true
		}
		return false, false
	default:
		f, ok := parseNumber(value)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

// ParseAge accepts integers, whole floats and numeric strings.
func ParseAge(value any) (int, bool) {
	f, ok := parseNumber(value)
	if !ok || f != math.Trunc(f) || f < 0 {
		return 0, false
	}
	return int(f), true
}

func parseNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
