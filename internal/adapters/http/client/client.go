// Package client is a Go client for the ovationd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/ovation/internal/app"
	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
)

const cborType = "application/cbor"

// ErrStatus reports a response outside the expected status codes.
var ErrStatus = errors.New("unexpected status")

// StatusError carries the status and error code of a failed request.
type StatusError struct {
	Code    int
	APICode string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Code, e.APICode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// IsDuplicate reports whether err is the server refusing an already seen
// submission.
func IsDuplicate(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}

// Request is the body of POST /replays.
type Request struct {
	ID      string         `json:"id" cbor:"id"`
	Player  string         `json:"player" cbor:"player"`
	Track   model.TrackID  `json:"track" cbor:"track"`
	Log     replay.Log     `json:"log" cbor:"log"`
	Claimed replay.Summary `json:"claimed" cbor:"claimed"`
}

// Client talks to a running ovationd.
type Client struct {
	baseURL string
	client  *http.Client
	cbor    bool
}

// Option configures a Client.
type Option func(*Client)

// WithCBOR sends submissions as CBOR instead of JSON.
func WithCBOR(on bool) Option {
	return func(c *Client) { c.cbor = on }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Tracks lists the tracks the service verifies.
func (c *Client) Tracks(ctx context.Context) ([]service.TrackInfo, error) {
	var out []service.TrackInfo
	return out, c.get(ctx, "/tracks", &out)
}

// Submit posts a run and returns the queued result.
func (c *Client) Submit(ctx context.Context, req Request) (replay.Result, error) { //nolint:gocritic // hugeParam
	var (
		body []byte
		err  error
		ct   = "application/json"
	)
	if c.cbor {
		body, err = replay.Marshal(req)
		ct = cborType
	} else {
		body, err = json.Marshal(req)
	}
	if err != nil {
		return replay.Result{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/replays", bytes.NewReader(body))
	if err != nil {
		return replay.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", ct)

	var res replay.Result
	return res, c.do(httpReq, http.StatusAccepted, &res)
}

// Status returns the verification state of a submission.
func (c *Client) Status(ctx context.Context, id string) (replay.Result, error) {
	var res replay.Result
	return res, c.get(ctx, "/replays/"+url.PathEscape(id), &res)
}

// Leaderboard returns the top limit entries of a track.
func (c *Client) Leaderboard(ctx context.Context, track model.TrackID, limit int) ([]repository.Entry, error) {
	var out []repository.Entry
	path := "/leaderboard/" + url.PathEscape(string(track)) + "?limit=" + strconv.Itoa(limit)
	return out, c.get(ctx, path, &out)
}

// Rank returns a player's entry on a track.
func (c *Client) Rank(ctx context.Context, track model.TrackID, player string) (repository.Entry, error) {
	var e repository.Entry
	path := "/rank/" + url.PathEscape(string(track)) + "/" + url.PathEscape(player)
	return e, c.get(ctx, path, &e)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		se := &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &e) == nil && e.Code != "" {
			se.APICode, se.Message = e.Code, e.Message
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
