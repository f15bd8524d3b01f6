package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
)

// fakeEmbedder 返回确定性向量：维度 3，首维为文本词元数
type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string

	failOn  map[string]error // 按文本触发失败
	failAll error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{failOn: make(map[string]error)}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err, ok := f.failOn[text]; ok {
		return nil, err
	}
	return []float32{float32(len(strings.Fields(text))), 1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeVectorStore 记录写入并返回预置命中
type fakeVectorStore struct {
	mu       sync.Mutex
	records  []*entity.Record
	deletes  []map[string]string
	searches []*SearchParams

	searchOut []*Match
	searchErr error
	upsertErr error
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectorStore) Upsert(ctx context.Context, records []*entity.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeVectorStore) Search(ctx context.Context, params *SearchParams) ([]*Match, error) {
	f.mu.Lock()
	f.searches = append(f.searches, params)
	f.mu.Unlock()
	if params.ContextID == "" {
		return nil, errors.New(errors.CodeMalformedFilter, "context_id missing")
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchOut, nil
}

func (f *fakeVectorStore) DeleteByFilter(ctx context.Context, filter map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, filter)
	return nil
}

// fakeChatModel 实现 eino 的 BaseChatModel
type fakeChatModel struct {
	reply string
	err   error

	mu       sync.Mutex
	received [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.received = append(f.received, input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("stream not supported")
}

type fakeProvider struct {
	model  *fakeChatModel
	getErr error
}

func (f *fakeProvider) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.model, nil
}
