package eino

import "context"

type providerKey struct{}

// WithProvider 将 LLM 提供方名称写入 context，供回调处理器打标签
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey{}, provider)
}

// ProviderFromContext 读取 LLM 提供方名称，未设置时返回 "default"
func ProviderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(providerKey{}).(string); ok && v != "" {
		return v
	}
	return "default"
}
