package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse-knowledge-api/pkg/errors"
)

func TestRewrite(t *testing.T) {
	chat := &fakeChatModel{reply: "  apple color attributes  "}
	r := NewRewriter(&fakeProvider{model: chat}, "openai", "gpt-4o-mini")

	got, err := r.Rewrite(context.Background(), "what about apples?")
	require.NoError(t, err)
	assert.Equal(t, "apple color attributes", got)
}

func TestRewriteBlankQuestion(t *testing.T) {
	r := NewRewriter(&fakeProvider{model: &fakeChatModel{reply: "x"}}, "", "")
	_, err := r.Rewrite(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestRewriteFailureSurfacesError(t *testing.T) {
	chat := &fakeChatModel{err: errors.NewTransient(errors.CodeUpstreamUnavailable, "timeout")}
	r := NewRewriter(&fakeProvider{model: chat}, "", "")

	_, err := r.Rewrite(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCompletionFailed))
}

func TestRewriteEmptyOutput(t *testing.T) {
	chat := &fakeChatModel{reply: "   "}
	r := NewRewriter(&fakeProvider{model: chat}, "", "")

	_, err := r.Rewrite(context.Background(), "question")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCompletionFailed))
}
