package source

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/domain/entity"
	"synapse-knowledge-api/pkg/errors"
	"synapse-knowledge-api/pkg/logger"
)

const (
	defaultSlackEndpoint = "https://slack.com/api"
	defaultSlackTimeout  = 30 * time.Second
	defaultSlackRPS      = 1.0
	defaultMaxMessages   = 500
	slackPageSize        = 200
)

// SlackConnector 从 Slack 频道拉取历史消息
//
// sourceRef 为逗号分隔的频道 ID 列表，单个频道失败不会中断其它频道
type SlackConnector struct {
	httpClient  *http.Client
	endpoint    string
	token       string
	limiter     *rate.Limiter
	maxMessages int
}

// NewSlackConnector 创建 Slack 连接器
func NewSlackConnector(cfg config.SlackSourceConfig) *SlackConnector {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultSlackEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSlackTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultSlackRPS
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}

	return &SlackConnector{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		token:       cfg.Token,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		maxMessages: maxMessages,
	}
}

func (c *SlackConnector) Kind() entity.SourceKind {
	return entity.SourceKindChat
}

// Fetch 拉取 sourceRef 中每个频道的消息历史
func (c *SlackConnector) Fetch(ctx context.Context, sourceRef string, emit EmitFunc) error {
	ctx, span := tracer.Start(ctx, "slack.Fetch",
		trace.WithAttributes(attribute.String("source_ref", sourceRef)))
	defer span.End()

	channels := splitChannels(sourceRef)
	if len(channels) == 0 {
		return errors.New(errors.CodeInvalidParam, "sourceRef must contain at least one channel id")
	}

	log := logger.FromContext(ctx)
	failed := 0

	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.fetchChannel(ctx, channel, emit); err != nil {
			var chErr *channelError
			if !stderrors.As(err, &chErr) {
				// emit 回调或 ctx 的错误终止整个拉取
				return err
			}
			if errors.HasCode(err, errors.CodeUpstreamAuthFailed) {
				return chErr.err
			}
			// 单频道失败只记录，继续其余频道
			failed++
			log.Warn("slack channel fetch failed", "channel", channel, "error", chErr.err)
		}
	}

	if failed == len(channels) {
		return errors.NewTransient(errors.CodeSyncFailed, "all slack channels failed")
	}
	return nil
}

// channelError 标记频道抓取自身的失败，与 emit 回调返回的错误区分开
type channelError struct {
	err error
}

func (e *channelError) Error() string { return e.err.Error() }

func (e *channelError) Unwrap() error { return e.err }

// slackHistoryResponse conversations.history 响应
type slackHistoryResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Messages []struct {
		Type    string `json:"type"`
		SubType string `json:"subtype"`
		User    string `json:"user"`
		Text    string `json:"text"`
		TS      string `json:"ts"`
	} `json:"messages"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (c *SlackConnector) fetchChannel(ctx context.Context, channel string, emit EmitFunc) error {
	cursor := ""
	fetched := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := c.historyPage(ctx, channel, cursor)
		if err != nil {
			return &channelError{err: err}
		}

		for _, m := range page.Messages {
			// 跳过系统消息（加入/离开等）和空消息
			if m.SubType != "" || strings.TrimSpace(m.Text) == "" {
				continue
			}

			doc := &entity.Document{
				Text:       m.Text,
				SourceKind: entity.SourceKindChat,
				SourceRef:  fmt.Sprintf("%s/%s", channel, m.TS),
			}
			if err := emit(doc); err != nil {
				return err
			}

			fetched++
			if fetched >= c.maxMessages {
				return nil
			}
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			return nil
		}
	}
}

func (c *SlackConnector) historyPage(ctx context.Context, channel, cursor string) (*slackHistoryResponse, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("limit", fmt.Sprintf("%d", slackPageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	reqURL := fmt.Sprintf("%s/conversations.history?%s", c.endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to build slack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, errors.CodeUpstreamUnavailable, "slack request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.New(errors.CodeUpstreamAuthFailed, "slack authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewTransient(errors.CodeUpstreamUnavailable, "slack rate limited")
	case resp.StatusCode >= 500:
		return nil, errors.NewTransient(errors.CodeUpstreamUnavailable,
			fmt.Sprintf("slack server error: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.CodeSyncFailed,
			fmt.Sprintf("unexpected slack status: %d", resp.StatusCode))
	}

	var out slackHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.CodeSyncFailed, "failed to decode slack response")
	}
	if !out.OK {
		if out.Error == "invalid_auth" || out.Error == "not_authed" || out.Error == "token_revoked" {
			return nil, errors.New(errors.CodeUpstreamAuthFailed, "slack authentication failed").WithDetail(out.Error)
		}
		return nil, errors.New(errors.CodeSyncFailed, "slack api error").WithDetail(out.Error)
	}
	return &out, nil
}

func splitChannels(sourceRef string) []string {
	parts := strings.Split(sourceRef, ",")
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			channels = append(channels, p)
		}
	}
	return channels
}
