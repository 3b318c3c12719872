package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/httpclient"
)

type capturedRequest struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   map[string]any
	raw    string
}

func robotServer(t *testing.T, status int, reply string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req := capturedRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query(), header: r.Header, raw: string(raw)}
		_ = json.Unmarshal(raw, &req.body)
		captured = append(captured, req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func testTemplate() *alert.Template {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &alert.Template{
		Title:            "Notify: wordcount FAILED",
		Subject:          "Alert: wordcount FAILED",
		JobName:          "wordcount",
		Status:           "FAILED",
		Type:             alert.TemplateStateChange,
		StartTime:        &start,
		DurationReadable: "02h 00m 00s",
		Link:             "http://console/app/1",
		OccurredAt:       start.Add(2 * time.Hour),
	}
}

var fixedNow = func() time.Time { return time.UnixMilli(1700000000123) }

func TestDingTalkNotify(t *testing.T) {
	srv, captured := robotServer(t, http.StatusOK, `{"errcode":0,"errmsg":"ok"}`)
	n := NewDingTalkNotifier(httpclient.New(httpclient.Config{}), srv.URL+"/robot/send")
	n.now = fixedNow

	cfg := &alert.ConfigWithParams{DingTalk: &alert.DingTalkParams{
		Token: "tok", Contacts: "13800000000", SecretEnable: true, SecretToken: "sec",
	}}
	require.NoError(t, n.Notify(context.Background(), cfg, testTemplate()))

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/robot/send", req.path)
	assert.Equal(t, "tok", req.query.Get("access_token"))
	assert.Equal(t, "1700000000123", req.query.Get("timestamp"))
	assert.Equal(t, dingTalkSign("1700000000123", "sec"), req.query.Get("sign"))
	assert.Equal(t, "markdown", req.body["msgtype"])

	markdown := req.body["markdown"].(map[string]any)
	assert.Equal(t, "Notify: wordcount FAILED", markdown["title"])
	assert.Contains(t, markdown["text"], "> **Job Name**: wordcount")
	assert.Contains(t, markdown["text"], "@13800000000")

	at := req.body["at"].(map[string]any)
	assert.Equal(t, []any{"13800000000"}, at["atMobiles"])
}

func TestDingTalkRejected(t *testing.T) {
	srv, _ := robotServer(t, http.StatusOK, `{"errcode":310000,"errmsg":"sign not match"}`)
	n := NewDingTalkNotifier(httpclient.New(httpclient.Config{}), srv.URL)

	err := n.Notify(context.Background(), &alert.ConfigWithParams{DingTalk: &alert.DingTalkParams{Token: "secret-token"}}, testTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errcode 310000: sign not match")
	assert.NotContains(t, err.Error(), "secret-token")

	var chErr *alert.ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, alert.DingTalk, chErr.Type)
}

func TestDingTalkMissingToken(t *testing.T) {
	n := NewDingTalkNotifier(nil, "")
	err := n.Notify(context.Background(), &alert.ConfigWithParams{}, testTemplate())
	assert.EqualError(t, err, "dingtalk alert failed: access token is not configured")
}

func TestWeComNotify(t *testing.T) {
	srv, captured := robotServer(t, http.StatusOK, `{"errcode":0,"errmsg":"ok"}`)
	n := NewWeComNotifier(httpclient.New(httpclient.Config{}), srv.URL+"/cgi-bin/webhook/send")

	require.NoError(t, n.Notify(context.Background(), &alert.ConfigWithParams{WeCom: &alert.WeComParams{Token: "key-1"}}, testTemplate()))
	req := (*captured)[0]
	assert.Equal(t, "key-1", req.query.Get("key"))
	content := req.body["markdown"].(map[string]any)["content"].(string)
	assert.Contains(t, content, `<font color="warning">FAILED</font>`)
	assert.Contains(t, req.raw, `<font color=\"warning\">FAILED</font>`)
	assert.True(t, strings.HasPrefix(req.header.Get("Content-Type"), "application/json"))
}

func TestWeComStatusFailure(t *testing.T) {
	srv, _ := robotServer(t, http.StatusServiceUnavailable, "")
	n := NewWeComNotifier(httpclient.New(httpclient.Config{}), srv.URL)

	err := n.Notify(context.Background(), &alert.ConfigWithParams{WeCom: &alert.WeComParams{Token: "k"}}, testTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response status 503 from "+srv.URL)
}

func TestLarkNotify(t *testing.T) {
	srv, captured := robotServer(t, http.StatusOK, `{"code":0,"msg":"success"}`)
	n := NewLarkNotifier(httpclient.New(httpclient.Config{}), srv.URL+"/hook")
	n.now = fixedNow

	cfg := &alert.ConfigWithParams{Lark: &alert.LarkParams{Token: "abc", IsAtAll: true, SecretEnable: true, SecretToken: "s"}}
	require.NoError(t, n.Notify(context.Background(), cfg, testTemplate()))

	req := (*captured)[0]
	assert.Equal(t, "/hook/abc", req.path)
	assert.Equal(t, "interactive", req.body["msg_type"])
	assert.Equal(t, "1700000000", req.body["timestamp"])
	assert.Equal(t, larkSign("1700000000", "s"), req.body["sign"])
	assert.Contains(t, req.raw, "<at id=all></at>")
	assert.NotContains(t, req.raw, `\u003c`)
}

func TestMarshalRobotKeepsMarkup(t *testing.T) {
	raw, err := marshalRobot(map[string]string{"content": `<at id=all></at> a & b`})
	require.NoError(t, err)
	assert.Equal(t, `{"content":"<at id=all></at> a & b"}`, string(raw))
}

func TestLarkLegacyStatusCode(t *testing.T) {
	srv, _ := robotServer(t, http.StatusOK, `{"StatusCode":9499,"StatusMessage":"Bad Request"}`)
	n := NewLarkNotifier(httpclient.New(httpclient.Config{}), srv.URL)

	err := n.Notify(context.Background(), &alert.ConfigWithParams{Lark: &alert.LarkParams{Token: "abc"}}, testTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 9499: Bad Request")
	assert.NotContains(t, err.Error(), "/abc")
}

func TestHTTPCallbackNotify(t *testing.T) {
	srv, captured := robotServer(t, http.StatusOK, "")
	n := NewHTTPCallbackNotifier(httpclient.New(httpclient.Config{}))

	cfg := &alert.ConfigWithParams{HTTPCallback: &alert.HTTPCallbackParams{URL: srv.URL + "/cb"}}
	require.NoError(t, n.Notify(context.Background(), cfg, testTemplate()))

	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "wordcount", req.body["jobName"])
	assert.Equal(t, "FAILED", req.body["status"])
}

func TestHTTPCallbackRequestTemplate(t *testing.T) {
	srv, captured := robotServer(t, http.StatusOK, "")
	n := NewHTTPCallbackNotifier(httpclient.New(httpclient.Config{}))

	cfg := &alert.ConfigWithParams{HTTPCallback: &alert.HTTPCallbackParams{
		URL:             srv.URL,
		Method:          "put",
		RequestTemplate: "{job: jobName, state: status}",
	}}
	require.NoError(t, n.Notify(context.Background(), cfg, testTemplate()))

	req := (*captured)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, map[string]any{"job": "wordcount", "state": "FAILED"}, req.body)
}

func TestHTTPCallbackFailures(t *testing.T) {
	srv, _ := robotServer(t, http.StatusInternalServerError, "")
	n := NewHTTPCallbackNotifier(httpclient.New(httpclient.Config{}))

	err := n.Notify(context.Background(), &alert.ConfigWithParams{HTTPCallback: &alert.HTTPCallbackParams{URL: srv.URL}}, testTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response status 500")

	err = n.Notify(context.Background(), &alert.ConfigWithParams{HTTPCallback: &alert.HTTPCallbackParams{URL: srv.URL, RequestTemplate: "[["}}, testTemplate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build request body")

	err = n.Notify(context.Background(), &alert.ConfigWithParams{}, testTemplate())
	assert.EqualError(t, err, "http_callback alert failed: callback url is not configured")
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) DialAndSend(msgs ...*gomail.Message) error {
	args := m.Called(msgs)
	return args.Error(0)
}

func TestEmailNotify(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("DialAndSend", mock.MatchedBy(func(msgs []*gomail.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		m := msgs[0]
		return assert.ObjectsAreEqual([]string{"a@example.com", "b@example.com"}, m.GetHeader("To")) &&
			assert.ObjectsAreEqual([]string{"Alert: wordcount FAILED"}, m.GetHeader("Subject")) &&
			assert.ObjectsAreEqual([]string{"alerts@example.com"}, m.GetHeader("From"))
	})).Return(nil)

	n := NewEmailNotifier(mailer, "alerts@example.com")
	cfg := &alert.ConfigWithParams{Email: &alert.EmailParams{Contacts: "a@example.com,b@example.com"}}
	require.NoError(t, n.Notify(context.Background(), cfg, testTemplate()))
	mailer.AssertNumberOfCalls(t, "DialAndSend", 1)
}

func TestEmailFailures(t *testing.T) {
	smtpErr := errors.New("SMTP timeout")
	mailer := new(mockMailer)
	mailer.On("DialAndSend", mock.Anything).Return(smtpErr)

	n := NewEmailNotifier(mailer, "alerts@example.com")
	err := n.Notify(context.Background(), &alert.ConfigWithParams{Email: &alert.EmailParams{Contacts: "a@example.com"}}, testTemplate())
	assert.ErrorIs(t, err, smtpErr)

	err = n.Notify(context.Background(), &alert.ConfigWithParams{Email: &alert.EmailParams{Contacts: " , "}}, testTemplate())
	assert.EqualError(t, err, "email alert failed: no recipients configured")

	err = NewEmailNotifier(nil, "").Notify(context.Background(), &alert.ConfigWithParams{}, testTemplate())
	assert.EqualError(t, err, "email alert failed: smtp server is not configured")
}

func TestNewResolverCoversEveryType(t *testing.T) {
	r := NewResolver(Options{})
	assert.Empty(t, r.Missing())
}

func TestNewDialer(t *testing.T) {
	assert.Nil(t, NewDialer(SMTPConfig{}))
	d := NewDialer(SMTPConfig{Host: "smtp.example.com", Port: 465, SSL: true})
	require.NotNil(t, d)
	assert.True(t, d.SSL)
}
