package prompt

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"course-advisor-be/internal/entity"
	"course-advisor-be/internal/repository/contract"
	"course-advisor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longCandidates(n int, descLen int) []*contract.ScoredCourse {
	out := make([]*contract.ScoredCourse, n)
	for i := range out {
		out[i] = &contract.ScoredCourse{
			Course: &entity.Course{
				Code:        fmt.Sprintf("CSCI %04d", i),
				Title:       strings.Repeat("T", 300),
				Description: strings.Repeat("word ", descLen/5),
			},
		}
	}
	return out
}

func TestBuildRecommendation_ContainsGroundingAndCandidates(t *testing.T) {
	p := BuildRecommendation(RecommendationInput{
		Major:            "Computer Science",
		Interests:        "machine learning",
		SessionInterests: []string{"graphics"},
		Candidates:       longCandidates(2, 50),
	})

	assert.Contains(t, p.System, "ONLY")
	assert.Contains(t, p.System, `"code"`)
	assert.Contains(t, p.User, "Major: Computer Science")
	assert.Contains(t, p.User, "Interests: machine learning")
	assert.Contains(t, p.User, "Earlier interests: graphics")
	assert.Contains(t, p.User, "- CSCI 0000 |")
	assert.Contains(t, p.User, "- CSCI 0001 |")

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
}

func TestBuildRecommendation_PromptSizeIsBounded(t *testing.T) {
	small := BuildRecommendation(RecommendationInput{
		Major:      strings.Repeat("m", 200),
		Interests:  strings.Repeat("i", 1000),
		Candidates: longCandidates(15, 250),
	})
	huge := BuildRecommendation(RecommendationInput{
		Major:            strings.Repeat("m", 200),
		Interests:        strings.Repeat("i", 1000),
		SessionInterests: []string{strings.Repeat("s", 5000), strings.Repeat("z", 5000)},
		Candidates:       longCandidates(15, 50000),
	})

	// Descriptions and accumulated interests are truncated, so growing them
	// by orders of magnitude barely moves the prompt.
	assert.Less(t, len(huge.User), len(small.User)+SessionInterestsBudget+64)

	perCandidate := len("- CSCI 0000 |  |  \n") + TitleBudget + DescriptionBudget
	bound := 200 + 1000 + SessionInterestsBudget + 15*perCandidate + 512
	assert.LessOrEqual(t, len(huge.User), bound)
}

func TestBuildChat_IncludesHistoryBetweenSystemAndUser(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "I'm a CS major"},
		{Role: llm.RoleAssistant, Content: strings.Repeat("x", 5000)},
	}
	msgs := BuildChat(ChatInput{
		Message:    "What about graphics?",
		Major:      "computer science",
		Interests:  []string{"graphics"},
		History:    history,
		Candidates: longCandidates(1, 10),
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "I'm a CS major", msgs[1].Content)
	assert.LessOrEqual(t, utf8.RuneCountInString(msgs[2].Content), HistoryTurnBudget)
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
	assert.Contains(t, msgs[3].Content, "What about graphics?")
	assert.Contains(t, msgs[3].Content, "CSCI 0000")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))

	got := Truncate(strings.Repeat("é", 300), DescriptionBudget)
	assert.Equal(t, DescriptionBudget, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
