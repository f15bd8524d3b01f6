package handler

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"synapse-knowledge-api/internal/application/knowledge"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/pkg/errors"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(strings.Fields(text))), 1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := f.Embed(ctx, t)
		out = append(out, v)
	}
	return out, nil
}

type fakeVectorStore struct {
	mu        sync.Mutex
	records   []*entity.Record
	deletes   []map[string]string
	searchOut []*knowledge.Match
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectorStore) Upsert(ctx context.Context, records []*entity.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeVectorStore) Search(ctx context.Context, params *knowledge.SearchParams) ([]*knowledge.Match, error) {
	if params.ContextID == "" {
		return nil, errors.New(errors.CodeMalformedFilter, "context_id missing")
	}
	return f.searchOut, nil
}

func (f *fakeVectorStore) DeleteByFilter(ctx context.Context, filter map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, filter)
	return nil
}

type fakeChatModel struct {
	reply string
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New(errors.CodeCompletionFailed, "stream not supported")
}

type fakeProvider struct {
	chat *fakeChatModel
}

func (f *fakeProvider) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	return f.chat, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*entity.SyncJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*entity.SyncJob)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *entity.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*entity.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *fakeJobRepo) Update(ctx context.Context, job *entity.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.Status = status
		return nil
	}
	return errors.ErrJobNotFound
}

func (r *fakeJobRepo) List(ctx context.Context, filter *repository.SyncJobFilter, limit int) ([]*entity.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.SyncJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter != nil && filter.ContextID != "" && job.ContextID != filter.ContextID {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeJobRepo) GetPendingJobs(ctx context.Context, limit int) ([]*entity.SyncJob, error) {
	return nil, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*messaging.SyncJobMessage
	err       error
}

func (p *fakePublisher) PublishSyncJob(ctx context.Context, job *messaging.SyncJobMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, job)
	return "1-0", nil
}

type fakeFlags struct {
	mu  sync.Mutex
	set map[string]bool
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{set: make(map[string]bool)}
}

func (f *fakeFlags) Set(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[jobID] = true
	return nil
}

func (f *fakeFlags) IsSet(ctx context.Context, jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set[jobID]
}

func (f *fakeFlags) Clear(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set, jobID)
	return nil
}
