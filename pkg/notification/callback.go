package notification

import (
	"context"
	"encoding/json"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/httpclient"
)

// HTTPCallbackNotifier posts the alert template to a user supplied URL
type HTTPCallbackNotifier struct {
	client Poster
}

// NewHTTPCallbackNotifier creates a callback notifier
func NewHTTPCallbackNotifier(client Poster) *HTTPCallbackNotifier {
	return &HTTPCallbackNotifier{client: client}
}

// Notify implements alert.Handler
func (n *HTTPCallbackNotifier) Notify(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) error {
	params := cfg.HTTPCallback
	if params == nil || strings.TrimSpace(params.URL) == "" {
		return alert.NewChannelError(alert.HTTPCallback, nil, "callback url is not configured")
	}
	if n.client == nil {
		return alert.NewChannelError(alert.HTTPCallback, nil, "http client is not configured")
	}

	body, err := callbackBody(params.RequestTemplate, tpl)
	if err != nil {
		return alert.NewChannelError(alert.HTTPCallback, err, "failed to build request body")
	}

	method := strings.ToUpper(strings.TrimSpace(params.Method))
	if method == "" {
		method = "POST"
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}

	resp, err := n.client.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     params.URL,
		Headers: []httpclient.Header{{Name: "Content-Type", Value: contentType}},
		Body:    body,
	})
	if err != nil {
		return alert.NewChannelError(alert.HTTPCallback, err, "failed to call %s", params.URL)
	}
	if !resp.OK() {
		return alert.NewChannelError(alert.HTTPCallback, nil, "unexpected response status %d from %s", resp.StatusCode, params.URL)
	}
	return nil
}

// callbackBody serialises the template, projecting it through expr when set
func callbackBody(expr string, tpl *alert.Template) ([]byte, error) {
	raw, err := json.Marshal(tpl)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(expr) == "" {
		return raw, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	projected, err := jmespath.Search(expr, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(projected)
}
