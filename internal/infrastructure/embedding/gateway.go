package embedding

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/embedding"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/metrics"
)

var tracer = otel.Tracer("infrastructure/embedding")

const (
	defaultMaxAttempts       = 3
	defaultBackoffInitial    = 500 * time.Millisecond
	defaultBackoffMax        = 10 * time.Second
	defaultBackoffMultiplier = 2.0
)

// Gateway 向量化网关：包装底层 Embedder，负责
//   - 维度校验（不匹配视为上游致命错误）
//   - 把供应商错误归类为可重试/致命的带类型错误，调用方只看错误类型
//   - 瞬时失败的指数退避重试，尊重 ctx 截止时间
type Gateway struct {
	embedder  embedding.Embedder
	dimension int

	maxAttempts int
	backoffCfg  config.BackoffConfig
}

// NewGateway 创建向量化网关
func NewGateway(embedder embedding.Embedder, cfg *config.EmbeddingConfig) *Gateway {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	bc := cfg.Backoff
	if bc.Initial <= 0 {
		bc.Initial = defaultBackoffInitial
	}
	if bc.Max <= 0 {
		bc.Max = defaultBackoffMax
	}
	if bc.Multiplier <= 1 {
		bc.Multiplier = defaultBackoffMultiplier
	}
	return &Gateway{
		embedder:    embedder,
		dimension:   cfg.Dimension,
		maxAttempts: maxAttempts,
		backoffCfg:  bc,
	}
}

// Dimension 返回网关约定的向量维度
func (g *Gateway) Dimension() int {
	return g.dimension
}

// Embed 向量化单条文本
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errors.New(errors.CodeEmbeddingFailed, "上游返回向量数量异常")
	}
	return vecs[0], nil
}

// EmbedBatch 向量化一批文本。整批重试，逐条校验维度。
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "embedding.EmbedBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.batch_size", len(texts)))

	var out [][]float32
	operation := func() error {
		start := time.Now()
		v64, err := g.embedder.EmbedStrings(ctx, texts)
		metrics.EmbeddingCallDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.EmbeddingCallTotal.WithLabelValues("error").Inc()
			classified := classify(err)
			if errors.IsTransient(classified) {
				return classified
			}
			return backoff.Permanent(classified)
		}
		metrics.EmbeddingCallTotal.WithLabelValues("ok").Inc()

		if len(v64) != len(texts) {
			return backoff.Permanent(errors.New(errors.CodeEmbeddingFailed, "上游返回向量数量异常"))
		}
		out = make([][]float32, 0, len(v64))
		for _, vec := range v64 {
			if len(vec) != g.dimension {
				return backoff.Permanent(errors.New(errors.CodeDimensionMismatch, "向量维度不匹配"))
			}
			f32 := make([]float32, 0, len(vec))
			for _, x := range vec {
				f32 = append(f32, float32(x))
			}
			out = append(out, f32)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.backoffCfg.Initial
	b.MaxInterval = g.backoffCfg.Max
	b.Multiplier = g.backoffCfg.Multiplier

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(g.maxAttempts-1)), ctx))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// classify 把供应商错误归类为带类型的应用错误。
// 分类只发生在这里，调用方依赖错误类型而非消息文本。
// 优先使用客户端的带类型错误（HTTP 状态码），消息匹配只作最后兜底。
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.WrapTransient(err, errors.CodeEmbeddingFailed, "向量化调用超时或被取消")
	}

	if status, ok := httpStatusOf(err); ok {
		switch {
		case status == 401 || status == 403:
			return errors.Wrap(err, errors.CodeUpstreamAuthFailed, "向量化服务认证失败")
		case status == 429:
			return errors.WrapTransient(err, errors.CodeEmbeddingFailed, "向量化服务限流")
		case status >= 500:
			return errors.WrapTransient(err, errors.CodeUpstreamUnavailable, "向量化服务不可用")
		default:
			return errors.Wrap(err, errors.CodeEmbeddingFailed, "向量化调用失败")
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.WrapTransient(err, errors.CodeUpstreamUnavailable, "向量化服务连接失败")
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "status code: 401", "status code: 403", "invalid api key", "incorrect api key"):
		return errors.Wrap(err, errors.CodeUpstreamAuthFailed, "向量化服务认证失败")
	case containsAny(msg, "status code: 429", "rate limit"):
		return errors.WrapTransient(err, errors.CodeEmbeddingFailed, "向量化服务限流")
	case containsAny(msg, "status code: 500", "status code: 502", "status code: 503", "status code: 504"):
		return errors.WrapTransient(err, errors.CodeUpstreamUnavailable, "向量化服务不可用")
	default:
		return errors.Wrap(err, errors.CodeEmbeddingFailed, "向量化调用失败")
	}
}

// httpStatusOf 提取 OpenAI 客户端带类型错误的 HTTP 状态码
func httpStatusOf(err error) (int, bool) {
	var apiErr *goopenai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func containsAny(s string, subs ...string) bool {
	ls := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(ls, sub) {
			return true
		}
	}
	return false
}
