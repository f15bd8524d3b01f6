package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
)

func uploadDoc(text string) *entity.Document {
	return &entity.Document{
		Text:       text,
		SourceKind: entity.SourceKindUpload,
		SourceRef:  "notes.md",
	}
}

func TestPipelineIngest(t *testing.T) {
	emb := newFakeEmbedder()
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 3, 1, 2)

	res, err := p.Ingest(context.Background(), "project-a", uploadDoc("a b c d e"), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunksTotal)
	assert.Equal(t, 2, res.ChunksWritten)
	assert.Equal(t, 0, res.ChunksFailed)

	require.Len(t, store.records, 2)
	for _, r := range store.records {
		assert.Equal(t, "project-a", r.ContextID)
		assert.Equal(t, entity.SourceKindUpload, r.SourceKind)
		assert.Equal(t, "notes.md", r.SourceRef)
		assert.NotEmpty(t, r.ID)
		assert.Len(t, r.Embedding, 3)
		assert.Empty(t, r.DedupKey)
	}
	assert.Equal(t, []string{"a b c", "c d e"}, []string{store.records[0].Text, store.records[1].Text})
}

func TestPipelineIngestRequiresContext(t *testing.T) {
	p := NewPipeline(newFakeEmbedder(), &fakeVectorStore{}, 3, 1, 2)
	_, err := p.Ingest(context.Background(), "  ", uploadDoc("hello"), IngestOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeContextRequired))
}

func TestPipelineIngestEmptyDocument(t *testing.T) {
	emb := newFakeEmbedder()
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 3, 1, 2)

	res, err := p.Ingest(context.Background(), "project-a", uploadDoc("   \n\t "), IngestOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.ChunksTotal)
	assert.Zero(t, res.ChunksWritten)
	assert.Zero(t, emb.callCount())
	assert.Empty(t, store.records)
}

func TestPipelineIngestPartialFailure(t *testing.T) {
	emb := newFakeEmbedder()
	emb.failOn["c d e"] = errors.NewTransient(errors.CodeEmbeddingFailed, "rate limited")
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 3, 1, 1)

	res, err := p.Ingest(context.Background(), "project-a", uploadDoc("a b c d e f g"), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksTotal)
	assert.Equal(t, 2, res.ChunksWritten)
	assert.Equal(t, 1, res.ChunksFailed)

	require.Len(t, store.records, 2)
	texts := []string{store.records[0].Text, store.records[1].Text}
	assert.NotContains(t, texts, "c d e")
}

func TestPipelineIngestAllChunksFailed(t *testing.T) {
	emb := newFakeEmbedder()
	emb.failAll = errors.NewTransient(errors.CodeEmbeddingFailed, "upstream down")
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 3, 1, 2)

	_, err := p.Ingest(context.Background(), "project-a", uploadDoc("a b c d e"), IngestOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIngestionFailed))
	assert.Empty(t, store.records)
}

func TestPipelineIngestFatalUpstreamStops(t *testing.T) {
	emb := newFakeEmbedder()
	emb.failAll = errors.New(errors.CodeUpstreamAuthFailed, "invalid api key")
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 2, 0, 1)

	words := strings.Repeat("w ", 40)
	_, err := p.Ingest(context.Background(), "project-a", uploadDoc(words), IngestOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIngestionFailed))
	// 致命错误取消后续调度，不会把 20 个分块全部打到上游
	assert.Less(t, emb.callCount(), 20)
	assert.Empty(t, store.records)
}

func TestPipelineIngestReplaceDeletesByDedupKey(t *testing.T) {
	emb := newFakeEmbedder()
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 3, 1, 2)

	text := "a b c d e"
	_, err := p.Ingest(context.Background(), "project-a", uploadDoc(text), IngestOptions{Replace: true})
	require.NoError(t, err)

	require.Len(t, store.deletes, 1)
	assert.Equal(t, "project-a", store.deletes[0]["context_id"])
	assert.Equal(t, DedupKey("project-a", text), store.deletes[0]["dedup_key"])
	for _, r := range store.records {
		assert.Equal(t, DedupKey("project-a", text), r.DedupKey)
	}
}

func TestPipelineIngestNoReplaceDuplicates(t *testing.T) {
	emb := newFakeEmbedder()
	store := &fakeVectorStore{}
	p := NewPipeline(emb, store, 10, 0, 2)

	for i := 0; i < 2; i++ {
		_, err := p.Ingest(context.Background(), "project-a", uploadDoc("same text"), IngestOptions{})
		require.NoError(t, err)
	}
	assert.Empty(t, store.deletes)
	assert.Len(t, store.records, 2)
}

func TestDedupKeyScopedByContext(t *testing.T) {
	assert.NotEqual(t, DedupKey("project-a", "text"), DedupKey("project-b", "text"))
	assert.Equal(t, DedupKey("project-a", "text"), DedupKey("project-a", "text"))
}
