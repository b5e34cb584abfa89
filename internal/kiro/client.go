package kiro

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/kirogate/kirogate/internal/apperr"
	"github.com/kirogate/kirogate/internal/translator"
)

const (
	defaultEndpoint = "https://q.us-east-1.amazonaws.com"
	targetChat      = "AmazonCodeWhispererStreamingService.GenerateAssistantResponse"
	contentTypeAmz  = "application/x-amz-json-1.0"
	acceptStream    = "application/vnd.amazon.eventstream"
)

// Client talks to the CodeWhisperer chat API. One retry budget covers both
// recovery paths: a stale-token retry after 401/403 and an origin fallback
// after 429 on the primary quota pool.
type Client struct {
	endpoint   string
	httpClient *http.Client
	session    *Session
}

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(session *Session, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: defaultEndpoint,
		// No overall client timeout: streams run as long as the model
		// talks. Idle enforcement is the caller's job; connection limits
		// live in the transport.
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          32,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 120 * time.Second,
			},
		},
		session: session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session exposes the credential session for health reporting.
func (c *Client) Session() *Session { return c.session }

// call issues one upstream round trip, handling token refresh and origin
// fallback, and returns the open response body on success.
func (c *Client) call(ctx context.Context, req *translator.Request) (*http.Response, error) {
	token, profileArn, err := c.session.AccessToken(ctx)
	if err != nil {
		return nil, apperr.Auth(err)
	}

	origin := OriginEditor
	refreshed := false
	for attempt := 0; attempt < 3; attempt++ {
		body, err := buildPayload(req, profileArn, origin)
		if err != nil {
			return nil, apperr.Validation("%v", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
		if err != nil {
			return nil, apperr.Upstream(0, "build upstream request", err)
		}
		httpReq.Header.Set("Content-Type", contentTypeAmz)
		httpReq.Header.Set("x-amz-target", targetChat)
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Accept", acceptStream)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperr.Canceled(ctx.Err())
			}
			return nil, apperr.Upstream(0, "upstream request failed", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil

		case (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && !refreshed:
			drainBody(resp)
			refreshed = true
			log.Warnf("kiro: upstream rejected token (%d), forcing refresh", resp.StatusCode)
			token, profileArn, err = c.session.ForceRefresh(ctx)
			if err != nil {
				return nil, apperr.Auth(err)
			}

		case resp.StatusCode == http.StatusTooManyRequests && origin == OriginEditor:
			drainBody(resp)
			log.Warn("kiro: editor quota exhausted (429), falling back to CLI origin")
			origin = OriginCLI

		default:
			detail := upstreamErrorDetail(resp)
			drainBody(resp)
			return nil, apperr.Upstream(resp.StatusCode, detail, nil)
		}
	}
	return nil, apperr.Upstream(http.StatusTooManyRequests, "upstream quota exhausted on all origins", nil)
}

func drainBody(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}

// upstreamErrorDetail extracts a short error description from a failed
// upstream response without leaking whole payloads to clients.
func upstreamErrorDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	if msg := gjson.GetBytes(raw, "message").String(); msg != "" {
		return msg
	}
	if msg := gjson.GetBytes(raw, "Message").String(); msg != "" {
		return msg
	}
	return fmt.Sprintf("upstream returned status %d", resp.StatusCode)
}

// Send performs a buffered exchange: the whole event stream is drained and
// folded into one canonical response.
func (c *Client) Send(ctx context.Context, req *translator.Request) (*translator.Response, error) {
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, tools, usage, sawUsage, err := parseResponse(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Canceled(ctx.Err())
		}
		return nil, apperr.Upstream(0, "decode upstream stream", err)
	}
	if !sawUsage {
		usage = translator.Usage{
			InputTokens:  EstimateInputTokens(req),
			OutputTokens: EstimateOutputTokens(content, tools),
		}
	}

	stopReason := translator.StopEndTurn
	if len(tools) > 0 {
		stopReason = translator.StopToolUse
	}
	return &translator.Response{
		ID:         newMessageID(),
		Model:      req.Model,
		Content:    content,
		ToolUses:   tools,
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

// SendStream performs a streaming exchange. The returned channel carries
// deltas followed by exactly one terminal item (Stop or Err) and is then
// closed. Cancelling ctx tears down the upstream connection.
func (c *Client) SendStream(ctx context.Context, req *translator.Request) (<-chan translator.StreamItem, error) {
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan translator.StreamItem)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := newEventDecoder(resp.Body)
		var outputText strings.Builder
		var sawToolUse bool

		emit := func(item translator.StreamItem) bool {
			select {
			case out <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			deltas, derr := dec.Next()
			if derr == io.EOF {
				usage, sawUsage := dec.Usage()
				if !sawUsage {
					usage = translator.Usage{
						InputTokens:  EstimateInputTokens(req),
						OutputTokens: countTokens(outputText.String()),
					}
				}
				reason := translator.StopEndTurn
				if sawToolUse {
					reason = translator.StopToolUse
				}
				emit(translator.StreamItem{Stop: &translator.StopInfo{Reason: reason, Usage: usage}})
				return
			}
			if derr != nil {
				if ctx.Err() != nil {
					emit(translator.StreamItem{Err: apperr.Canceled(ctx.Err())})
					return
				}
				emit(translator.StreamItem{Err: apperr.Upstream(0, "decode upstream stream", derr)})
				return
			}
			for _, d := range deltas {
				outputText.WriteString(d.Text)
				if d.ToolUse != nil {
					sawToolUse = true
				}
				if !emit(translator.StreamItem{Delta: &d}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
