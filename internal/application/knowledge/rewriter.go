package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	obseino "synapse-knowledge-api/internal/observability/eino"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/metrics"
)

const rewriteSystemInstruction = "你是检索查询改写助手。把用户的问题改写为更适合向量检索的查询：补全关键词、消除指代、保持原意。只输出改写后的查询，不要任何解释。"

// Rewriter 无状态的查询改写器。只做文本变换，从不接触向量索引。
// 调用方在任何错误时退回原始问题。
type Rewriter struct {
	factory  ChatModelProvider
	provider string
	model    string
}

// NewRewriter 创建查询改写器
func NewRewriter(factory ChatModelProvider, provider, model string) *Rewriter {
	return &Rewriter{factory: factory, provider: provider, model: model}
}

// Rewrite 改写问题。失败返回错误，由调用方决定是否退回原问题。
func (r *Rewriter) Rewrite(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New(errors.CodeInvalidParam, "问题不能为空")
	}
	if r == nil || r.factory == nil {
		return "", errors.New(errors.CodeCompletionFailed, "LLM 未配置")
	}

	chatModel, err := r.factory.Get(ctx, r.provider)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeCompletionFailed, "获取 LLM 客户端失败")
	}

	msgs := []*schema.Message{
		schema.SystemMessage(rewriteSystemInstruction),
		schema.UserMessage(question),
	}

	start := time.Now()
	outMsg, err := chatModel.Generate(obseino.WithProvider(ctx, r.provider), msgs)
	metrics.LLMCallDuration.WithLabelValues(r.provider, r.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return "", errors.WrapTransient(err, errors.CodeCompletionFailed, "查询改写失败")
	}
	metrics.LLMCallTotal.WithLabelValues(r.provider, r.model, "ok").Inc()

	rewritten := ""
	if outMsg != nil {
		rewritten = strings.TrimSpace(outMsg.Content)
	}
	if rewritten == "" {
		return "", errors.New(errors.CodeCompletionFailed, "改写结果为空")
	}
	return rewritten, nil
}
