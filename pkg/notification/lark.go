package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alert-dispatch/pkg/alert"
)

// DefaultLarkURL is the Lark robot endpoint prefix
const DefaultLarkURL = "https://open.feishu.cn/open-apis/bot/v2/hook"

// LarkNotifier sends alerts through a Lark robot webhook
type LarkNotifier struct {
	client  Poster
	baseURL string
	now     func() time.Time
}

// NewLarkNotifier creates a Lark notifier; an empty baseURL uses the public endpoint
func NewLarkNotifier(client Poster, baseURL string) *LarkNotifier {
	return &LarkNotifier{
		client:  client,
		baseURL: fallback(baseURL, DefaultLarkURL),
		now:     time.Now,
	}
}

// Notify implements alert.Handler
func (n *LarkNotifier) Notify(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) error {
	params := cfg.Lark
	if params == nil || strings.TrimSpace(params.Token) == "" {
		return alert.NewChannelError(alert.Lark, nil, "robot token is not configured")
	}

	content := formatMarkdown(tpl, false)
	if params.IsAtAll {
		content += "\n<at id=all></at>"
	}

	payload := map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": tpl.Title},
				"template": larkColor(tpl.Status),
			},
			"elements": []any{
				map[string]any{"tag": "markdown", "content": content},
			},
		},
	}
	if params.SecretEnable && params.SecretToken != "" {
		timestamp := strconv.FormatInt(n.now().Unix(), 10)
		payload["timestamp"] = timestamp
		payload["sign"] = larkSign(timestamp, params.SecretToken)
	}

	endpoint := n.baseURL + "/" + params.Token
	return postRobot(ctx, n.client, alert.Lark, endpoint, n.baseURL+"/***", payload)
}

// larkSign signs with HMAC-SHA256 keyed by "timestamp\nsecret" over an empty message
func larkSign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(fmt.Sprintf("%s\n%s", timestamp, secret)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func larkColor(status string) string {
	switch status {
	case "RUNNING", "FINISHED", "COMPLETED", "TEST":
		return "green"
	default:
		return "red"
	}
}
