package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// sessionSchema constrains the session service response before any field of
// it is trusted.
const sessionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "session lookup response",
	"type": "object",
	"required": ["websocketUrl", "heartbeatSeconds"],
	"properties": {
		"websocketUrl": {"type": "string", "minLength": 1},
		"heartbeatSeconds": {"type": "integer", "minimum": 1}
	}
}`

var sessionSch = jsonschema.MustCompileString("session.json", sessionSchema)

// session is what the session service knows about a room.
type session struct {
	WebsocketURL     string `json:"websocketUrl"`
	HeartbeatSeconds int    `json:"heartbeatSeconds"`
}

// WithHttpclient sets the session lookup client.
func WithHttpclient(hc httpclient) Opt {
	return func(c *Client) {
		c.http = hc
	}
}

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHttpLogger struct {
	inner *zap.Logger
}

func (r retryableHttpLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHttpLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHttpLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHttpLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}

type resolveClient struct {
	client *retryablehttp.Client
}

func newResolveClient(cfg Config, logger *zap.Logger) *resolveClient {
	return &resolveClient{client: &retryablehttp.Client{
		RetryMax:     cfg.ResolveRetries,
		RetryWaitMin: cfg.ResolveRetryDelay,
		RetryWaitMax: 2 * cfg.ResolveRetryDelay,
		Backoff:      retryablehttp.LinearJitterBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Logger:       &retryableHttpLogger{inner: logger},
	}}
}

func (r *resolveClient) Get(ctx context.Context, target string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(resp.Body)
		}
		return nil, fmt.Errorf("request failed with code %d (message: %s)", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// resolve asks the session service where the room's relay lives. An
// endpoint that is itself a websocket URL is the relay, so it is dialed
// as-is with the default heartbeat.
func (c *Client) resolve(ctx context.Context, roomID string) (*session, error) {
	base, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if base.Scheme == "ws" || base.Scheme == "wss" {
		return &session{WebsocketURL: c.cfg.Endpoint}, nil
	}
	data, err := c.http.Get(ctx, base.JoinPath("rooms", roomID).String())
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	if err := sessionSch.Validate(v); err != nil {
		return nil, fmt.Errorf("validate session data: %w", err)
	}
	sess := &session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	switch u, err := url.Parse(sess.WebsocketURL); {
	case err != nil:
		return nil, fmt.Errorf("parsing websocket url: %w", err)
	case u.Scheme != "ws" && u.Scheme != "wss":
		return nil, fmt.Errorf("unexpected websocket url scheme %q", u.Scheme)
	}
	return sess, nil
}
