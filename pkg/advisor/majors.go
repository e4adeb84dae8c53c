package advisor

import (
	"sort"
	"strings"
)

// DepartmentPrefixes maps a lowercased major to the course code prefixes that
// belong to it.
var DepartmentPrefixes = map[string][]string{
	"computer science":       {"CSCI"},
	"cs":                     {"CSCI"},
	"data science":           {"DATA", "CSCI", "APMA"},
	"applied mathematics":    {"APMA", "MATH"},
	"applied math":           {"APMA", "MATH"},
	"mathematics":            {"MATH"},
	"math":                   {"MATH"},
	"economics":              {"ECON"},
	"engineering":            {"ENGN"},
	"physics":                {"PHYS"},
	"chemistry":              {"CHEM"},
	"biology":                {"BIOL"},
	"neuroscience":           {"NEUR", "CLPS"},
	"cognitive science":      {"CLPS", "CSCI"},
	"psychology":             {"CLPS"},
	"philosophy":             {"PHIL"},
	"history":                {"HIST"},
	"english":                {"ENGL"},
	"political science":      {"POLS"},
	"sociology":              {"SOC"},
	"music":                  {"MUSC"},
	"visual arts":            {"VISA"},
	"linguistics":            {"LING"},
	"statistics":             {"APMA", "MATH", "DATA"},
	"electrical engineering": {"ENGN"},
}

// PrefixesForMajor returns the department prefixes for a major, matching the
// normalized major exactly first and then by containment, so "BS Computer
// Science" still resolves.
func PrefixesForMajor(major string) []string {
	m := strings.ToLower(strings.Join(strings.Fields(major), " "))
	if m == "" {
		return nil
	}
	if p, ok := DepartmentPrefixes[m]; ok {
		return p
	}
	for _, name := range KnownMajors() {
		if len(name) > 3 && strings.Contains(m, name) {
			return DepartmentPrefixes[name]
		}
	}
	return nil
}

// KnownMajors lists the table's major names, longest first.
func KnownMajors() []string {
	names := make([]string, 0, len(DepartmentPrefixes))
	for name := range DepartmentPrefixes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
