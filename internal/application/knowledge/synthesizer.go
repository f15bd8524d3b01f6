package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	obseino "synapse-knowledge-api/internal/observability/eino"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/metrics"
)

// InsufficientKnowledgeAnswer 零命中时的固定兜底回复，不发起模型调用
const InsufficientKnowledgeAnswer = "知识库中没有足够的信息来回答这个问题。"

// ChatModelProvider 按名称解析 ChatModel。由 infrastructure/llm.EinoFactory 实现。
type ChatModelProvider interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// Synthesizer 基于检索结果合成有依据的答案。
// 引用只来自进入 Prompt 的记录，绝不引用未召回的内容。
type Synthesizer struct {
	factory ChatModelProvider

	provider           string
	model              string
	maxSegments        int
	maxRunesPerSegment int
}

// NewSynthesizer 创建答案合成器。provider 为空时使用默认 LLM 提供方。
func NewSynthesizer(factory ChatModelProvider, provider, model string, maxSegments, maxRunesPerSegment int) *Synthesizer {
	if maxSegments <= 0 {
		maxSegments = defaultMaxContextSegments
	}
	if maxRunesPerSegment <= 0 {
		maxRunesPerSegment = defaultMaxRunesPerSegment
	}
	return &Synthesizer{
		factory:            factory,
		provider:           provider,
		model:              model,
		maxSegments:        maxSegments,
		maxRunesPerSegment: maxRunesPerSegment,
	}
}

// Synthesize 合成答案。空检索结果直接返回兜底回复。
func (s *Synthesizer) Synthesize(ctx context.Context, q Query, res *RetrievalResult) (*Answer, error) {
	if res.Empty() {
		return &Answer{Text: InsufficientKnowledgeAnswer, Grounded: false}, nil
	}
	if s == nil || s.factory == nil {
		return nil, errors.New(errors.CodeSynthesisFailed, "LLM 未配置")
	}

	chatModel, err := s.factory.Get(ctx, s.provider)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSynthesisFailed, "获取 LLM 客户端失败")
	}

	prompt := BuildGroundedPrompt(q.Question, res.Matches, s.maxSegments, s.maxRunesPerSegment)
	msgs := []*schema.Message{
		schema.SystemMessage(groundedSystemInstruction),
		schema.UserMessage(prompt),
	}

	start := time.Now()
	outMsg, err := chatModel.Generate(obseino.WithProvider(ctx, s.provider), msgs)
	metrics.LLMCallDuration.WithLabelValues(s.provider, s.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(s.provider, s.model, "error").Inc()
		return nil, errors.WrapTransient(err, errors.CodeCompletionFailed, "答案生成失败")
	}
	metrics.LLMCallTotal.WithLabelValues(s.provider, s.model, "ok").Inc()

	content := ""
	if outMsg != nil {
		content = strings.TrimSpace(outMsg.Content)
	}
	if content == "" {
		return nil, errors.New(errors.CodeCompletionFailed, "LLM 返回空内容")
	}

	n := len(res.Matches)
	if n > s.maxSegments {
		n = s.maxSegments
	}
	citations := make([]Citation, 0, n)
	for i := 0; i < n; i++ {
		m := res.Matches[i]
		citations = append(citations, Citation{
			Index:     i + 1,
			RecordID:  m.ID,
			SourceRef: m.SourceRef,
			Excerpt:   Excerpt(m.Text, defaultExcerptRunes),
			Score:     m.Score,
		})
	}

	return &Answer{
		Text:      content,
		Citations: citations,
		Grounded:  true,
	}, nil
}
