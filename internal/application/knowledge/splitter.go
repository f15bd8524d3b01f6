package knowledge

import "strings"

// SplitTokens 将文本按空白分词后做滑动窗口切分。
// 词元约定：strings.Fields 的空白分词，切分与"每块不超过 maxTokens"的约束
// 使用同一套约定。确定性：相同输入永远产生相同切分。
// 空白文本返回 nil；步长 = maxTokens - overlapTokens，非法配置在这里兜底归一。
func SplitTokens(text string, maxTokens, overlapTokens int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return []string{strings.Join(tokens, " ")}
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if len(tokens) <= maxTokens {
		return []string{strings.Join(tokens, " ")}
	}
	step := maxTokens - overlapTokens
	if step <= 0 {
		step = maxTokens
	}

	out := make([]string, 0, (len(tokens)/step)+1)
	for start := 0; start < len(tokens); start += step {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.Join(tokens[start:end], " "))
		if end >= len(tokens) {
			break
		}
	}
	return out
}
