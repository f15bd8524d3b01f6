package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildGroundedPrompt(t *testing.T) {
	matches := []Match{
		{Text: "first\nsegment  text", Score: 0.9},
		{Text: "second segment", Score: 0.8},
	}
	got := BuildGroundedPrompt("my question", matches, 10, 400)

	assert.Contains(t, got, "[1] first segment text")
	assert.Contains(t, got, "[2] second segment")
	assert.Contains(t, got, "问题：my question")
	// 调试信息不进 Prompt
	assert.NotContains(t, got, "0.9")
}

func TestBuildGroundedPromptBounds(t *testing.T) {
	matches := []Match{
		{Text: strings.Repeat("长", 500)},
		{Text: "b"},
		{Text: "c"},
	}
	got := BuildGroundedPrompt("q", matches, 2, 100)

	assert.NotContains(t, got, "[3]")
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 120)
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 200))
	assert.Equal(t, "a b", Excerpt("a\nb", 200))

	long := strings.Repeat("x", 300)
	got := Excerpt(long, 200)
	assert.Equal(t, 203, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}
