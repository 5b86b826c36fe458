package eligibility

import (
	"strconv"
	"strings"
)

// Attributes is a flat profile keyed by canonical attribute name. Values may be
// nested maps or lists, addressed with dotted paths and [i] indices.
type Attributes map[string]any

const (
	annualIncomeField  = "income_annual"
	monthlyIncomeField = "monthly_income"
)

// Lookup resolves a path such as "documents.aadhar" or "extra_flags[0]".
// It returns nil when any segment is absent.
func (a Attributes) Lookup(path string) any {
	v := lookupPath(map[string]any(a), path)
	if v == nil && path == annualIncomeField {
		if monthly, ok := toFloat(lookupPath(map[string]any(a), monthlyIncomeField)); ok {
			return monthly * 12
		}
	}
	return v
}

func lookupPath(root map[string]any, path string) any {
	path = strings.TrimSpace(path)
	if path == "" || root == nil {
		return nil
	}

	var cur any = root
	for _, segment := range strings.Split(path, ".") {
		name, indices, ok := splitSegment(segment)
		if !ok {
			return nil
		}

		if name != "" {
			m, isMap := asMap(cur)
			if !isMap {
				return nil
			}
			next, exists := m[name]
			if !exists {
				return nil
			}
			cur = next
		}

		for _, idx := range indices {
			items, isSlice := asSlice(cur)
			if !isSlice || idx < 0 || idx >= len(items) {
				return nil
			}
			cur = items[idx]
		}
	}
	return cur
}

// splitSegment parses "name[0][1]" into its name and indices.
func splitSegment(segment string) (string, []int, bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil, segment != ""
	}

	name := segment[:open]
	rest := segment[open:]
	var indices []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, false
		}
		indices = append(indices, idx)
		rest = rest[end+1:]
	}
	return name, indices, true
}
