package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnavailable reports that no barscan API answered at the configured address.
var ErrUnavailable = errors.New("barscan API unavailable")

// Client talks to a running barscan API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient returns a client for bind (host:port or URL). An empty bind
// returns nil, nil.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: long polls block until an update arrives or the caller cancels.
		http: &http.Client{},
	}, nil
}

// Updates fetches updates after since; wait long-polls until one arrives.
func (c *Client) Updates(ctx context.Context, since uint64, limit int, wait bool) (UpdatesResponse, error) {
	values := url.Values{}
	if since > 0 {
		values.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if wait {
		values.Set("wait", "1")
	}
	var out UpdatesResponse
	err := c.do(ctx, http.MethodGet, "/api/updates", values, &out)
	return out, err
}

// Session returns the current session status.
func (c *Client) Session(ctx context.Context) (SessionStatus, error) {
	var out SessionStatus
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &out)
	return out, err
}

// Start asks the remote session to start scanning.
func (c *Client) Start(ctx context.Context) (SessionStatus, error) {
	var out SessionStatus
	err := c.do(ctx, http.MethodPost, "/api/session/start", nil, &out)
	return out, err
}

// Stop asks the remote session to stop scanning.
func (c *Client) Stop(ctx context.Context) (SessionStatus, error) {
	var out SessionStatus
	err := c.do(ctx, http.MethodPost, "/api/session/stop", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode, payload.Message)
		}
		if payload.Error != "" {
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode, payload.Error)
		}
	}
	return fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// IsUnavailable reports whether err means nothing is listening.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
