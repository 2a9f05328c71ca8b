// Package ask drives the Ask service one request at a time and classifies
// every answer against its golden expectations.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/logging"
)

// DefaultTimeout bounds a single request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// RoutingOnlyHeader asks the service to skip RAG and answer with the
// routing decision only.
const RoutingOnlyHeader = "X-Quality-Routing-Only"

// ErrReadTimeout is the request error recorded for timed out requests.
const ErrReadTimeout = "read_timeout"

// Identity is the conversation identity sent with every question.
// Reusing one Identity across questions keeps multi-turn context.
type Identity struct {
	ConversationID string
	ClientID       string
	Nickname       string
	TypeUser       string
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	Explain     bool
	RoutingOnly bool
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client posts questions to <base>/ask.
type Client struct {
	endpoint    string
	token       string
	timeout     time.Duration
	routingOnly bool
	http        *http.Client
	logger      *zap.Logger
}

// Asker is the part of Client used by batch drivers.
type Asker interface {
	Ask(ctx context.Context, question string, id Identity) Result
}

var _ Asker = (*Client)(nil)

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/ask")
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", opts.BaseURL)
	}
	if opts.Explain {
		q := u.Query()
		q.Set("explain", "true")
		u.RawQuery = q.Encode()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		endpoint:    u.String(),
		token:       opts.Token,
		timeout:     timeout,
		routingOnly: opts.RoutingOnly,
		http:        hc,
		logger:      logging.OrNop(opts.Logger),
	}, nil
}

// Endpoint returns the full request URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	Nickname       string `json:"nickname"`
	ClientID       string `json:"client_id"`
	TypeUser       string `json:"type_user,omitempty"`
}

// Result is the raw outcome of one request. HTTPStatus is nil when no
// response was received; RequestError is set on transport failures and
// undecodable bodies.
type Result struct {
	HTTPStatus   *int
	RequestError *string
	Body         map[string]any
	Latency      time.Duration
}

// OK reports whether the request succeeded with a 2xx status.
func (r Result) OK() bool {
	return r.RequestError == nil && r.HTTPStatus != nil && *r.HTTPStatus >= 200 && *r.HTTPStatus < 300
}

// Ask sends one question. It never retries and never returns an error:
// failures are recorded in the Result.
func (c *Client) Ask(ctx context.Context, question string, id Identity) Result {
	start := time.Now()
	res := c.do(ctx, question, id)
	res.Latency = time.Since(start)

	fields := []zap.Field{zap.Duration("latency", res.Latency)}
	if res.HTTPStatus != nil {
		fields = append(fields, zap.Int("status", *res.HTTPStatus))
	}
	if res.RequestError != nil {
		fields = append(fields, zap.String("error", *res.RequestError))
	}
	c.logger.Debug("ask", fields...)
	return res
}

func (c *Client) do(ctx context.Context, question string, id Identity) Result {
	body, err := json.Marshal(askRequest{
		Question:       question,
		ConversationID: id.ConversationID,
		Nickname:       id.Nickname,
		ClientID:       id.ClientID,
		TypeUser:       id.TypeUser,
	})
	if err != nil {
		return failed(fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.routingOnly {
		req.Header.Set(RoutingOnlyHeader, "1")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failed(transportError(err))
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	res := Result{HTTPStatus: &status}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		msg := transportError(err)
		res.RequestError = &msg
		return res
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if status >= 200 && status < 300 {
			msg := "invalid_json: " + err.Error()
			res.RequestError = &msg
		}
		return res
	}
	res.Body, _ = decoded.(map[string]any)
	return res
}

func failed(msg string) Result {
	return Result{RequestError: &msg}
}

// transportError maps timeouts to ErrReadTimeout and keeps the message of
// every other failure.
func transportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrReadTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrReadTimeout
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
