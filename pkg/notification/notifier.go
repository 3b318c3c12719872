package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/httpclient"
)

// Poster performs outbound HTTP calls
type Poster interface {
	Do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error)
	PostJSON(ctx context.Context, rawURL string, body []byte, headers ...httpclient.Header) (*httpclient.Response, error)
}

// Options configures the channel handlers
type Options struct {
	Client      Poster
	Mailer      Mailer
	MailFrom    string
	DingTalkURL string
	WeComURL    string
	LarkURL     string
	Now         func() time.Time
}

// NewResolver builds the handler table for every alert type
func NewResolver(opts Options) *alert.Resolver {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dingTalk := NewDingTalkNotifier(opts.Client, opts.DingTalkURL)
	dingTalk.now = now
	lark := NewLarkNotifier(opts.Client, opts.LarkURL)
	lark.now = now

	return alert.NewResolver(map[alert.Type]alert.Handler{
		alert.Email:        NewEmailNotifier(opts.Mailer, opts.MailFrom),
		alert.DingTalk:     dingTalk,
		alert.WeCom:        NewWeComNotifier(opts.Client, opts.WeComURL),
		alert.HTTPCallback: NewHTTPCallbackNotifier(opts.Client),
		alert.Lark:         lark,
	})
}

// robotResponse is the reply body of the chat robot webhooks
type robotResponse struct {
	ErrCode       *int   `json:"errcode"`
	ErrMsg        string `json:"errmsg"`
	Code          *int   `json:"code"`
	Msg           string `json:"msg"`
	StatusCode    *int   `json:"StatusCode"`
	StatusMessage string `json:"StatusMessage"`
}

// failure returns a non-empty description when the robot rejected the message
func (r robotResponse) failure() string {
	switch {
	case r.ErrCode != nil && *r.ErrCode != 0:
		return fmt.Sprintf("errcode %d: %s", *r.ErrCode, r.ErrMsg)
	case r.Code != nil && *r.Code != 0:
		return fmt.Sprintf("code %d: %s", *r.Code, r.Msg)
	case r.StatusCode != nil && *r.StatusCode != 0:
		return fmt.Sprintf("code %d: %s", *r.StatusCode, r.StatusMessage)
	}
	return ""
}

// postRobot sends a JSON payload to a chat robot and checks both the HTTP
// status and the robot's own result code.
func postRobot(ctx context.Context, client Poster, t alert.Type, endpoint, logURL string, payload any) error {
	if client == nil {
		return alert.NewChannelError(t, nil, "http client is not configured")
	}

	body, err := marshalRobot(payload)
	if err != nil {
		return alert.NewChannelError(t, err, "failed to marshal payload")
	}

	resp, err := client.PostJSON(ctx, endpoint, body)
	if err != nil {
		return alert.NewChannelError(t, err, "failed to send request to %s", logURL)
	}

	if !resp.OK() {
		return alert.NewChannelError(t, nil, "unexpected response status %d from %s", resp.StatusCode, logURL)
	}

	var result robotResponse
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		return alert.NewChannelError(t, err, "invalid response from %s", logURL)
	}
	if msg := result.failure(); msg != "" {
		return alert.NewChannelError(t, nil, "%s rejected the message: %s", logURL, msg)
	}

	return nil
}

// marshalRobot encodes payload without escaping the markup robots render
func marshalRobot(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// redactToken hides a webhook token in URLs written to errors and logs
func redactToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, token, "***")
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimRight(value, "/")
}
