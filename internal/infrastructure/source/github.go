package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
)

const (
	defaultMaxFileBytes = 256 * 1024
	defaultMaxIssues    = 200
	githubTimeout       = 30 * time.Second
	issuePageSize       = 100
)

// textFileExtensions 仅索引纯文本内容
var textFileExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".rst": true,
}

// GitHubConnector 从 GitHub 仓库拉取文档和 issue
//
// sourceRef 格式为 owner/repo
type GitHubConnector struct {
	client       *gh.Client
	maxFileBytes int64
	maxIssues    int
}

// NewGitHubConnector 创建 GitHub 连接器
func NewGitHubConnector(ctx context.Context, cfg config.GitHubSourceConfig) *GitHubConnector {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = githubTimeout

	maxFileBytes := cfg.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	maxIssues := cfg.MaxIssues
	if maxIssues <= 0 {
		maxIssues = defaultMaxIssues
	}

	return &GitHubConnector{
		client:       gh.NewClient(tc),
		maxFileBytes: maxFileBytes,
		maxIssues:    maxIssues,
	}
}

func (c *GitHubConnector) Kind() entity.SourceKind {
	return entity.SourceKindRepository
}

// Fetch 拉取仓库的文本文件和 issue
func (c *GitHubConnector) Fetch(ctx context.Context, sourceRef string, emit EmitFunc) error {
	ctx, span := tracer.Start(ctx, "github.Fetch",
		trace.WithAttributes(attribute.String("source_ref", sourceRef)))
	defer span.End()

	owner, repo, err := parseRepoRef(sourceRef)
	if err != nil {
		return err
	}

	repository, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return c.wrapGitHubError(err, "failed to get repository")
	}
	branch := repository.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	if err := c.fetchFiles(ctx, owner, repo, branch, emit); err != nil {
		return err
	}
	return c.fetchIssues(ctx, owner, repo, emit)
}

// fetchFiles 遍历仓库树并拉取文本文件
func (c *GitHubConnector) fetchFiles(ctx context.Context, owner, repo, branch string, emit EmitFunc) error {
	log := logger.FromContext(ctx)

	tree, _, err := c.client.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return c.wrapGitHubError(err, "failed to get repository tree")
	}

	for _, item := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item.GetType() != "blob" {
			continue
		}
		if !textFileExtensions[strings.ToLower(path.Ext(item.GetPath()))] {
			continue
		}
		if item.GetSize() > int(c.maxFileBytes) {
			log.Info("skipping oversized file", "path", item.GetPath(), "size", item.GetSize())
			continue
		}

		content, _, _, err := c.client.Repositories.GetContents(ctx, owner, repo, item.GetPath(),
			&gh.RepositoryContentGetOptions{Ref: branch})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// 单文件失败只记录，继续其余文件
			log.Warn("failed to fetch file", "path", item.GetPath(), "error", err)
			continue
		}
		if content == nil {
			continue
		}

		text, err := content.GetContent()
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		doc := &entity.Document{
			Text:       text,
			SourceKind: entity.SourceKindRepository,
			SourceRef:  fmt.Sprintf("%s/%s#%s", owner, repo, item.GetPath()),
		}
		if err := emit(doc); err != nil {
			return err
		}
	}

	return nil
}

// fetchIssues 拉取仓库 issue（标题 + 正文），跳过 PR
func (c *GitHubConnector) fetchIssues(ctx context.Context, owner, repo string, emit EmitFunc) error {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: issuePageSize},
	}

	fetched := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return c.wrapGitHubError(err, "failed to list issues")
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			text := strings.TrimSpace(issue.GetTitle() + "\n\n" + issue.GetBody())
			if text == "" {
				continue
			}

			doc := &entity.Document{
				Text:       text,
				SourceKind: entity.SourceKindRepository,
				SourceRef:  fmt.Sprintf("%s/%s#issue-%d", owner, repo, issue.GetNumber()),
			}
			if err := emit(doc); err != nil {
				return err
			}

			fetched++
			if fetched >= c.maxIssues {
				return nil
			}
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

func (c *GitHubConnector) wrapGitHubError(err error, message string) error {
	var rateLimitErr *gh.RateLimitError
	if stderrors.As(err, &rateLimitErr) {
		return errors.WrapTransient(err, errors.CodeUpstreamUnavailable, "github rate limited")
	}

	var ghErr *gh.ErrorResponse
	if stderrors.As(err, &ghErr) && ghErr.Response != nil {
		switch {
		case ghErr.Response.StatusCode == 401 || ghErr.Response.StatusCode == 403:
			return errors.Wrap(err, errors.CodeUpstreamAuthFailed, "github authentication failed")
		case ghErr.Response.StatusCode == 404:
			return errors.Wrap(err, errors.CodeNotFound, "github repository not found")
		case ghErr.Response.StatusCode >= 500:
			return errors.WrapTransient(err, errors.CodeUpstreamUnavailable, message)
		}
	}

	return errors.WrapTransient(err, errors.CodeSyncFailed, message)
}

func parseRepoRef(sourceRef string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(sourceRef), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New(errors.CodeInvalidParam, "sourceRef must be in owner/repo format")
	}
	return parts[0], parts[1], nil
}
