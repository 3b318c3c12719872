package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alert-dispatch/pkg/alert"
)

// DefaultDingTalkURL is the DingTalk robot endpoint
const DefaultDingTalkURL = "https://oapi.dingtalk.com/robot/send"

// DingTalkNotifier sends alerts through a DingTalk robot webhook
type DingTalkNotifier struct {
	client  Poster
	baseURL string
	now     func() time.Time
}

// NewDingTalkNotifier creates a DingTalk notifier; an empty baseURL uses the public endpoint
func NewDingTalkNotifier(client Poster, baseURL string) *DingTalkNotifier {
	return &DingTalkNotifier{
		client:  client,
		baseURL: fallback(baseURL, DefaultDingTalkURL),
		now:     time.Now,
	}
}

// Notify implements alert.Handler
func (n *DingTalkNotifier) Notify(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) error {
	params := cfg.DingTalk
	if params == nil || strings.TrimSpace(params.Token) == "" {
		return alert.NewChannelError(alert.DingTalk, nil, "access token is not configured")
	}

	endpoint, err := n.endpoint(params)
	if err != nil {
		return alert.NewChannelError(alert.DingTalk, err, "invalid webhook url")
	}

	mobiles := params.Mobiles()
	text := formatMarkdown(tpl, false)
	if len(mobiles) > 0 {
		text += "\n\n@" + strings.Join(mobiles, " @")
	}

	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": tpl.Title,
			"text":  text,
		},
		"at": map[string]any{
			"atMobiles": mobiles,
			"isAtAll":   params.IsAtAll,
		},
	}

	return postRobot(ctx, n.client, alert.DingTalk, endpoint, redactToken(n.base(params), params.Token), payload)
}

func (n *DingTalkNotifier) base(params *alert.DingTalkParams) string {
	if params.AlertDingURL != "" {
		return strings.TrimRight(params.AlertDingURL, "/")
	}
	return n.baseURL
}

func (n *DingTalkNotifier) endpoint(params *alert.DingTalkParams) (string, error) {
	u, err := url.Parse(n.base(params))
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("access_token", params.Token)
	if params.SecretEnable && params.SecretToken != "" {
		timestamp := strconv.FormatInt(n.now().UnixMilli(), 10)
		q.Set("timestamp", timestamp)
		q.Set("sign", dingTalkSign(timestamp, params.SecretToken))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// dingTalkSign signs "timestamp\nsecret" with HMAC-SHA256 keyed by the secret
func dingTalkSign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s", timestamp, secret)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
