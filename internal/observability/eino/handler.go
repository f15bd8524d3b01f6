package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"synapse-knowledge-api/pkg/metrics"
)

// startTimeKey 保存调用开始时间，供 OnEnd/OnError 计算耗时
type startTimeKey struct{}

// newChatModelCallbackHandler 创建模型调用回调处理器。
// 每次模型生成触发一次，记录分布式追踪 Span 和 Token 消耗；
// 调用次数与耗时由调用方自行上报，这里不重复计数。
func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("llm.provider", ProviderFromContext(ctx)),
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			provider := ProviderFromContext(ctx)
			modelName := modelNameFromOutput(output)

			if output != nil && output.TokenUsage != nil {
				metrics.LLMTokensTotal.WithLabelValues(provider, modelName, "prompt").
					Add(float64(output.TokenUsage.PromptTokens))
				metrics.LLMTokensTotal.WithLabelValues(provider, modelName, "completion").
					Add(float64(output.TokenUsage.CompletionTokens))
			}

			span := trace.SpanFromContext(ctx)
			if span != nil {
				if output != nil && output.TokenUsage != nil {
					span.SetAttributes(
						attribute.Int("llm.prompt_tokens", output.TokenUsage.PromptTokens),
						attribute.Int("llm.completion_tokens", output.TokenUsage.CompletionTokens),
					)
				}
				if d := elapsedSeconds(ctx); d > 0 {
					span.SetAttributes(attribute.Float64("llm.duration_seconds", d))
				}
				span.End()
			}
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			span := trace.SpanFromContext(ctx)
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
			}
			return ctx
		},
	}
}

// elapsedSeconds 计算从 OnStart 到当前的耗时（秒），取不到开始时间返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
