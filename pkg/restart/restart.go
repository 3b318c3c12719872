package restart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"alert-dispatch/pkg/httpclient"
)

// ErrJobNotFound is returned when the console lists no application for a job
var ErrJobNotFound = errors.New("job not found")

// appIDQuery locates the first matching application in the list reply
const appIDQuery = "data.records[0].id"

// Poster performs outbound HTTP calls
type Poster interface {
	Do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error)
}

// Config describes the console that owns the jobs
type Config struct {
	BaseURL       string
	Authorization string
	TeamID        int
}

// Restarter restarts jobs through the console API
type Restarter struct {
	client Poster
	cfg    Config
}

// NewRestarter creates a restarter
func NewRestarter(client Poster, cfg Config) *Restarter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TeamID == 0 {
		cfg.TeamID = 1
	}
	return &Restarter{client: client, cfg: cfg}
}

// Restart looks up the application running jobName and starts it again
// from its latest savepoint. It returns the console's message.
func (r *Restarter) Restart(ctx context.Context, jobName string) (string, error) {
	if strings.TrimSpace(jobName) == "" {
		return "", errors.New("job name is required")
	}
	if r.cfg.BaseURL == "" {
		return "", errors.New("restart base url is not configured")
	}

	list := url.Values{}
	list.Set("jobName", jobName)
	list.Set("teamId", strconv.Itoa(r.cfg.TeamID))
	list.Set("pageNum", "1")
	list.Set("pageSize", "1")

	reply, err := r.post(ctx, "/flink/app/list", list)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", jobName, err)
	}

	id, err := jmespath.Search(appIDQuery, reply)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", jobName, err)
	}
	appID := formatID(id)
	if appID == "" {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	start := url.Values{}
	start.Set("id", appID)
	start.Set("savePointed", "true")

	reply, err = r.post(ctx, "/flink/app/start", start)
	if err != nil {
		return "", fmt.Errorf("start %s: %w", jobName, err)
	}

	if msg, ok := reply["message"].(string); ok && msg != "" {
		return msg, nil
	}
	return "restart success", nil
}

func (r *Restarter) post(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	resp, err := r.client.Do(ctx, httpclient.Request{
		Method: "POST",
		URL:    r.cfg.BaseURL + path + "?" + query.Encode(),
		Headers: []httpclient.Header{
			{Name: "Accept", Value: "*/*"},
			{Name: "Authorization", Value: r.cfg.Authorization},
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	var reply map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return reply, nil
}

func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return ""
}
