package notification

import (
	"context"
	"net/url"
	"strings"

	"alert-dispatch/pkg/alert"
)

// DefaultWeComURL is the WeCom robot endpoint
const DefaultWeComURL = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send"

// WeComNotifier sends alerts through a WeCom robot webhook
type WeComNotifier struct {
	client  Poster
	baseURL string
}

// NewWeComNotifier creates a WeCom notifier; an empty baseURL uses the public endpoint
func NewWeComNotifier(client Poster, baseURL string) *WeComNotifier {
	return &WeComNotifier{client: client, baseURL: fallback(baseURL, DefaultWeComURL)}
}

// Notify implements alert.Handler
func (n *WeComNotifier) Notify(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) error {
	params := cfg.WeCom
	if params == nil || strings.TrimSpace(params.Token) == "" {
		return alert.NewChannelError(alert.WeCom, nil, "robot key is not configured")
	}

	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": formatMarkdown(tpl, true),
		},
	}

	endpoint := n.baseURL + "?key=" + url.QueryEscape(params.Token)
	return postRobot(ctx, n.client, alert.WeCom, endpoint, n.baseURL, payload)
}
