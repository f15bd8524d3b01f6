package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
)

// newGitHubTestConnector 指向本地测试服务器的连接器
func newGitHubTestConnector(t *testing.T, handler http.HandlerFunc) *GitHubConnector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gh.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL

	return &GitHubConnector{
		client:       client,
		maxFileBytes: defaultMaxFileBytes,
		maxIssues:    defaultMaxIssues,
	}
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		name      string
		sourceRef string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "valid", sourceRef: "acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{name: "trims whitespace", sourceRef: "  acme/widgets  ", wantOwner: "acme", wantRepo: "widgets"},
		{name: "missing repo", sourceRef: "acme/", wantErr: true},
		{name: "missing owner", sourceRef: "/widgets", wantErr: true},
		{name: "no slash", sourceRef: "acme", wantErr: true},
		{name: "too many parts", sourceRef: "a/b/c", wantErr: true},
		{name: "empty", sourceRef: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := parseRepoRef(tt.sourceRef)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestGitHubFetchIssuesPagination(t *testing.T) {
	conn := newGitHubTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues", r.URL.Path)

		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 2, "title": "second", "body": "page two"}]`)
			return
		}
		w.Header().Set("Link", `<http://`+r.Host+`/repos/acme/widgets/issues?page=2>; rel="next"`)
		fmt.Fprint(w, `[{"number": 1, "title": "first", "body": "page one"}]`)
	})

	var refs []string
	err := conn.fetchIssues(context.Background(), "acme", "widgets", func(doc *entity.Document) error {
		refs = append(refs, doc.SourceRef)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme/widgets#issue-1",
		"acme/widgets#issue-2",
	}, refs)
}

func TestRegistryLookup(t *testing.T) {
	slack := NewSlackConnector(config.SlackSourceConfig{Token: "t"})
	registry := NewRegistry(slack)

	got, ok := registry.Get(entity.SourceKindChat)
	require.True(t, ok)
	assert.Same(t, slack, got)

	_, ok = registry.Get(entity.SourceKindRepository)
	assert.False(t, ok)
}
