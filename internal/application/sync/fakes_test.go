package sync

import (
	"context"
	stderrors "errors"
	"sync"

	"synapse-knowledge-api/internal/application/knowledge"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/internal/domain/repository"
	"synapse-knowledge-api/internal/infrastructure/messaging"
	"synapse-knowledge-api/internal/infrastructure/source"
	"synapse-knowledge-api/pkg/errors"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*entity.SyncJob
	createN int
	updateN int
	failOps bool
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*entity.SyncJob)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *entity.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return errors.New(errors.CodeDatabaseError, "create failed")
	}
	r.createN++
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
	r.updateN++
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.ErrJobNotFound
	}
	job.Status = status
	return nil
}

func (r *fakeJobRepo) List(ctx context.Context, filter *repository.SyncJobFilter, limit int) ([]*entity.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.SyncJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeJobRepo) GetPendingJobs(ctx context.Context, limit int) ([]*entity.SyncJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) get(id string) *entity.SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
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
	mu    sync.Mutex
	set   map[string]bool
	setN  int
	calls int
	// setAfterCalls 在第 N 次 IsSet 查询后自动置位（模拟运行中取消）
	setAfterCalls int
	target        string
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{set: make(map[string]bool)}
}

func (f *fakeFlags) Set(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[jobID] = true
	f.setN++
	return nil
}

func (f *fakeFlags) IsSet(ctx context.Context, jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.setAfterCalls > 0 && f.calls > f.setAfterCalls && jobID == f.target {
		f.set[jobID] = true
	}
	return f.set[jobID]
}

func (f *fakeFlags) Clear(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set, jobID)
	return nil
}

type fakeConnector struct {
	kind entity.SourceKind
	docs []*entity.Document
	err  error
}

func (c *fakeConnector) Kind() entity.SourceKind { return c.kind }

func (c *fakeConnector) Fetch(ctx context.Context, sourceRef string, emit source.EmitFunc) error {
	if c.err != nil {
		return c.err
	}
	for _, doc := range c.docs {
		if err := emit(doc); err != nil {
			return err
		}
	}
	return nil
}

type fakeIngestor struct {
	mu       sync.Mutex
	ingested []string
	failOn   map[string]error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{failOn: make(map[string]error)}
}

func (i *fakeIngestor) Ingest(ctx context.Context, contextID string, doc *entity.Document, opts knowledge.IngestOptions) (*knowledge.IngestResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err, ok := i.failOn[doc.SourceRef]; ok {
		return nil, err
	}
	i.ingested = append(i.ingested, doc.SourceRef)
	return &knowledge.IngestResult{ChunksTotal: 3, ChunksWritten: 3}, nil
}

func (i *fakeIngestor) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ingested)
}

var errBoom = stderrors.New("boom")
