package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse-knowledge-api/pkg/errors"
)

func TestEngineRetrieve(t *testing.T) {
	store := &fakeVectorStore{
		searchOut: []*Match{
			{ID: "r1", Text: "apples are red", Score: 0.92, ContextID: "project-a"},
			{ID: "r2", Text: "apples are sweet", Score: 0.81, ContextID: "project-a"},
		},
	}
	e := NewEngine(newFakeEmbedder(), store, 5)

	res, err := e.Retrieve(context.Background(), Query{ContextID: "project-a", Question: "what color are apples?"})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "r1", res.Matches[0].ID)
	assert.Greater(t, res.Matches[0].Score, res.Matches[1].Score)

	require.Len(t, store.searches, 1)
	assert.Equal(t, "project-a", store.searches[0].ContextID)
	assert.Equal(t, 5, store.searches[0].TopK)
	require.Len(t, store.searches[0].QueryVector, 3)
}

func TestEngineRetrieveValidation(t *testing.T) {
	e := NewEngine(newFakeEmbedder(), &fakeVectorStore{}, 5)

	_, err := e.Retrieve(context.Background(), Query{ContextID: "", Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeContextRequired))

	_, err = e.Retrieve(context.Background(), Query{ContextID: "project-a", Question: "   "})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestEngineRetrieveFilterCannotOverrideContext(t *testing.T) {
	store := &fakeVectorStore{}
	e := NewEngine(newFakeEmbedder(), store, 5)

	_, err := e.Retrieve(context.Background(), Query{
		ContextID: "project-a",
		Question:  "q",
		Filters:   map[string]string{"context_id": "project-b"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformedFilter))
	assert.Empty(t, store.searches)

	// 与自身一致的 context_id 过滤是冗余但合法的，且不会传给存储层
	_, err = e.Retrieve(context.Background(), Query{
		ContextID: "project-a",
		Question:  "q",
		Filters:   map[string]string{"context_id": "project-a", "source_kind": "upload"},
	})
	require.NoError(t, err)
	require.Len(t, store.searches, 1)
	assert.Equal(t, "project-a", store.searches[0].ContextID)
	assert.Equal(t, map[string]string{"source_kind": "upload"}, store.searches[0].Filters)
}

func TestEngineRetrieveTopKBounds(t *testing.T) {
	store := &fakeVectorStore{}
	e := NewEngine(newFakeEmbedder(), store, 5)

	_, err := e.Retrieve(context.Background(), Query{ContextID: "p", Question: "q", TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, maxTopK, store.searches[0].TopK)

	_, err = e.Retrieve(context.Background(), Query{ContextID: "p", Question: "q", TopK: -1})
	require.NoError(t, err)
	assert.Equal(t, 5, store.searches[1].TopK)
}

func TestEngineRetrieveEmptyIsNotError(t *testing.T) {
	e := NewEngine(newFakeEmbedder(), &fakeVectorStore{}, 5)

	res, err := e.Retrieve(context.Background(), Query{ContextID: "project-a", Question: "unknown topic"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestEngineRetrieveEmbedFailure(t *testing.T) {
	emb := newFakeEmbedder()
	emb.failAll = errors.NewTransient(errors.CodeEmbeddingFailed, "timeout")
	e := NewEngine(emb, &fakeVectorStore{}, 5)

	_, err := e.Retrieve(context.Background(), Query{ContextID: "p", Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRetrievalFailed))
}
