package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := New(Config{})
	cfg := c.Config()
	assert.Equal(t, 50, cfg.MaxTotal)
	assert.Equal(t, 50, cfg.MaxPerRoute)
	assert.Equal(t, 120*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 300*time.Second, cfg.SocketTimeout)
}

func TestDoFormPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded; charset=gbk", r.Header.Get("Content-Type"))
		assert.Equal(t, "z=1&a=two+words", string(body))
		assert.Equal(t, []string{"first", "second"}, r.Header.Values("X-Trace"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := New(Config{}).Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: []Header{{"X-Trace", "first"}, {"X-Trace", "second"}},
		Form:    []Param{{"z", "1"}, {"a", "two words"}},
		Charset: "gbk",
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "ok", resp.Body)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, `{"a":1}`, string(body))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	resp, err := New(Config{}).PostJSON(context.Background(), srv.URL, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "busy", resp.Body)
}

func TestDoNoRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/target" {
			_, _ = w.Write([]byte("landed"))
			return
		}
		http.Redirect(w, r, "/target", http.StatusFound)
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.DoNoRedirect(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/start"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/target", resp.Location)

	resp, err = c.Get(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, "landed", resp.Body)
	assert.Empty(t, resp.Location)
}

func TestPoolAcquireTimeout(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{MaxTotal: 1, AcquireTimeout: 50 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), srv.URL)
		done <- err
	}()
	<-entered

	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrPoolTimeout)
}

func TestTransportErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := New(Config{ConnectTimeout: time.Second}).Get(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET "+addr)
}

func TestInvalidRequest(t *testing.T) {
	c := New(Config{})
	_, err := c.Do(context.Background(), Request{Method: "DELETE", URL: "http://example.com"})
	assert.Error(t, err)

	_, err = c.Do(context.Background(), Request{Method: "GET", URL: "not a url"})
	assert.Error(t, err)
}
