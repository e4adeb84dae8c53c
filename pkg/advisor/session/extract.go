package session

import (
	"regexp"
	"strings"

	"course-advisor-be/pkg/advisor"
)

var (
	majorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:i'?m|i am)\s+(?:an?\s+)?([a-z][a-z ]{1,40}?)\s+(?:major|student)\b`),
		regexp.MustCompile(`(?i)\bmajoring in\s+([a-z][a-z ]{1,40}?)(?:[.,;!?]|\s+and\b|\s+but\b|$)`),
		regexp.MustCompile(`(?i)\bmy major is\s+([a-z][a-z ]{1,40}?)(?:[.,;!?]|\s+and\b|\s+but\b|$)`),
		regexp.MustCompile(`(?i)\bi study\s+([a-z][a-z ]{1,40}?)(?:[.,;!?]|\s+and\b|\s+but\b|$)`),
	}

	interestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\binterested in\s+([^.;!?]{2,120})`),
		regexp.MustCompile(`(?i)\bi (?:really )?(?:like|love|enjoy)\s+([^.;!?]{2,120})`),
		regexp.MustCompile(`(?i)\bi want to (?:learn|study)(?: about)?\s+([^.;!?]{2,120})`),
		regexp.MustCompile(`(?i)\bcourses? (?:on|about)\s+([^.;!?]{2,120})`),
	}

	listSplitter = regexp.MustCompile(`\s*(?:,|\band\b|\bor\b|/)\s*`)
)

// DetectMajor finds a declared major in a chat message. Explicit statements
// ("I'm a physics major", "majoring in economics") win over a bare mention of
// a known major name.
func DetectMajor(message string) (string, bool) {
	for _, re := range majorPatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			major := strings.TrimSpace(m[1])
			if major != "" {
				return major, true
			}
		}
	}

	lower := " " + strings.ToLower(message) + " "
	for _, name := range advisor.KnownMajors() {
		if len(name) <= 4 {
			continue
		}
		if strings.Contains(lower, " "+name+" ") || strings.Contains(lower, " "+name+",") || strings.Contains(lower, " "+name+".") {
			return name, true
		}
	}
	return "", false
}

// ExtractInterests pulls topic phrases from a chat message. A message that
// matches no pattern yields nothing; the caller still uses the raw message
// for retrieval.
func ExtractInterests(message string) []string {
	var out []string
	seen := map[string]bool{}
	for _, re := range interestPatterns {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			for _, part := range listSplitter.Split(m[1], -1) {
				part = strings.Trim(strings.TrimSpace(part), "\"'")
				key := strings.ToLower(part)
				if len(part) < 2 || seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, part)
			}
		}
	}
	return out
}
