package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const cancelFlagTTL = 24 * time.Hour

// CancelFlags 同步任务的协作取消标记。
// Cancel 接口写标记，worker 在文档边界轮询；标记带 TTL 防止泄漏。
type CancelFlags struct {
	client *Client
}

// NewCancelFlags 创建取消标记存储
func NewCancelFlags(client *Client) *CancelFlags {
	return &CancelFlags{client: client}
}

func cancelKey(jobID string) string {
	return fmt.Sprintf("synapse:sync:cancel:%s", jobID)
}

// Set 标记任务请求取消
func (f *CancelFlags) Set(ctx context.Context, jobID string) error {
	ctx, span := tracer.Start(ctx, "cancel.Set",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	err := f.client.rdb.Set(ctx, cancelKey(jobID), "1", cancelFlagTTL).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// IsSet 检查任务是否被请求取消。
// 查询失败按未取消处理，worker 下个边界再查。
func (f *CancelFlags) IsSet(ctx context.Context, jobID string) bool {
	n, err := f.client.rdb.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Clear 清除取消标记
func (f *CancelFlags) Clear(ctx context.Context, jobID string) error {
	return f.client.rdb.Del(ctx, cancelKey(jobID)).Err()
}
