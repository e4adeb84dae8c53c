package prompt

import (
	"fmt"
	"strings"

	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/llm"
)

const (
	// DescriptionBudget caps each candidate description in the prompt.
	DescriptionBudget = 200
	TitleBudget       = 120

	// SessionInterestsBudget caps the accumulated interests line.
	SessionInterestsBudget = 500
	HistoryTurnBudget      = 1000

	MaxRecommendations = 5
)

type Prompt struct {
	System string
	User   string
}

func (p Prompt) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.System},
		{Role: llm.RoleUser, Content: p.User},
	}
}

type RecommendationInput struct {
	Major            string
	Interests        string
	SessionInterests []string
	Candidates       []*contract.ScoredCourse
}

// BuildRecommendation grounds the model in the candidate list and asks for a
// JSON array of {code, title, reason}.
func BuildRecommendation(in RecommendationInput) Prompt {
	var system strings.Builder
	writeRole(&system)
	writeRecommendationRules(&system)

	var user strings.Builder
	writeStudent(&user, in.Major, in.Interests, in.SessionInterests)
	writeCandidates(&user, in.Candidates)
	user.WriteString(fmt.Sprintf("Recommend up to %d courses from the list above as a JSON array.\n", MaxRecommendations))

	return Prompt{System: system.String(), User: user.String()}
}

type ChatInput struct {
	Message    string
	Major      string
	Interests  []string
	History    []llm.Message
	Candidates []*contract.ScoredCourse
}

// BuildChat returns the full message list for a conversational turn:
// system, prior turns, then the grounded user turn.
func BuildChat(in ChatInput) []llm.Message {
	var system strings.Builder
	writeRole(&system)
	writeChatRules(&system)

	var user strings.Builder
	writeStudent(&user, in.Major, "", in.Interests)
	writeCandidates(&user, in.Candidates)
	user.WriteString("<message>\n")
	user.WriteString(in.Message)
	user.WriteString("\n</message>\n")

	messages := make([]llm.Message, 0, len(in.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system.String()})
	for _, turn := range in.History {
		messages = append(messages, llm.Message{Role: turn.Role, Content: Truncate(turn.Content, HistoryTurnBudget)})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user.String()})
	return messages
}

func writeRole(b *strings.Builder) {
	b.WriteString("<role>\n")
	b.WriteString("You are an academic advisor for this university's course catalog.\n")
	b.WriteString("You help students choose courses that fit their major and interests.\n")
	b.WriteString("</role>\n\n")
}

func writeRecommendationRules(b *strings.Builder) {
	b.WriteString("<rules>\n")
	b.WriteString("1. Recommend ONLY courses that appear in the <courses> list. Never invent a course code.\n")
	b.WriteString("2. Copy each code and title exactly as listed.\n")
	b.WriteString(fmt.Sprintf("3. Return at most %d courses, best fit first.\n", MaxRecommendations))
	b.WriteString("4. The reason is one or two sentences tying the course to the student's interests.\n")
	b.WriteString("</rules>\n\n")
	b.WriteString("<output_format>\n")
	b.WriteString("Respond with a JSON array and nothing else:\n")
	b.WriteString(`[{"code": "DEPT 0000", "title": "Course Title", "reason": "Why it fits"}]`)
	b.WriteString("\n</output_format>\n")
}

func writeChatRules(b *strings.Builder) {
	b.WriteString("<rules>\n")
	b.WriteString("1. Only mention courses from the <courses> list, using their exact codes.\n")
	b.WriteString("2. If nothing in the list fits, say so instead of naming other courses.\n")
	b.WriteString("3. Keep answers short and conversational.\n")
	b.WriteString("</rules>\n")
}

func writeStudent(b *strings.Builder, major, interests string, accumulated []string) {
	b.WriteString("<student>\n")
	if major != "" {
		b.WriteString("Major: ")
		b.WriteString(major)
		b.WriteString("\n")
	}
	if interests != "" {
		b.WriteString("Interests: ")
		b.WriteString(interests)
		b.WriteString("\n")
	}
	if len(accumulated) > 0 {
		b.WriteString("Earlier interests: ")
		b.WriteString(Truncate(strings.Join(accumulated, ", "), SessionInterestsBudget))
		b.WriteString("\n")
	}
	b.WriteString("</student>\n\n")
}

func writeCandidates(b *strings.Builder, candidates []*contract.ScoredCourse) {
	b.WriteString("<courses>\n")
	for _, c := range candidates {
		b.WriteString(fmt.Sprintf("- %s | %s | %s\n",
			c.Course.Code,
			Truncate(singleLine(c.Course.Title), TitleBudget),
			Truncate(singleLine(c.Course.Description), DescriptionBudget),
		))
	}
	b.WriteString("</courses>\n\n")
}

// Truncate shortens s to at most budget runes, marking the cut with "...".
func Truncate(s string, budget int) string {
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	if budget <= 3 {
		return string(r[:budget])
	}
	return strings.TrimRight(string(r[:budget-3]), " ") + "..."
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
