package knowledge

import (
	"fmt"
	"strings"
)

const (
	defaultMaxContextSegments  = 10
	defaultMaxRunesPerSegment  = 400
	defaultExcerptRunes        = 200
	groundedSystemInstruction  = "你是一个知识库问答助手。只依据提供的上下文回答问题；上下文中没有的信息不要编造。引用上下文时用 [n] 标注编号。"
	groundedAnswerInstruction  = "请仅依据以上上下文回答下面的问题。"
)

// BuildGroundedPrompt 将检索命中格式化为带编号的上下文块并拼接问题。
// 约束：不把 score 等调试信息塞进 Prompt。
func BuildGroundedPrompt(question string, matches []Match, maxSegments, maxRunesPerSegment int) string {
	if maxSegments <= 0 {
		maxSegments = defaultMaxContextSegments
	}
	if maxRunesPerSegment <= 0 {
		maxRunesPerSegment = defaultMaxRunesPerSegment
	}

	n := len(matches)
	if n > maxSegments {
		n = maxSegments
	}

	lines := make([]string, 0, n+4)
	lines = append(lines, "【上下文】")
	for i := 0; i < n; i++ {
		txt := truncateRunes(compactOneLine(matches[i].Text), maxRunesPerSegment)
		if txt == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, txt))
	}
	lines = append(lines, "", groundedAnswerInstruction, "问题："+strings.TrimSpace(question))
	return strings.Join(lines, "\n")
}

// Excerpt 生成引用摘录：压成单行并按符文截断，截断时追加省略号
func Excerpt(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultExcerptRunes
	}
	s := compactOneLine(text)
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}

func compactOneLine(s string) string {
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.TrimSpace(out)
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
